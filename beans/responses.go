package beans

import (
	"math/big"

	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// TransactionResponse is the result of an accepted transaction, as
// persisted in the trie of responses. Rejected requests never produce
// a response.
type TransactionResponse interface {
	// Into writes the response with its selector.
	Into(ctx *marshal.Context)
}

// ResponseWithUpdates is a response that commits state updates.
type ResponseWithUpdates interface {
	TransactionResponse

	// Updates yields the state deltas committed by the response, in
	// canonical order.
	Updates() []Update
}

// ResponseWithEvents is a response that notifies events.
type ResponseWithEvents interface {
	TransactionResponse

	// Events yields the storage references of the emitted events.
	Events() []StorageReference
}

// FailedResponse is a response of a transaction whose body failed; it
// carries the classification of the failure.
type FailedResponse interface {
	TransactionResponse

	// Cause yields the class name of the cause, its message and the
	// program point where it occurred.
	Cause() (class, message, where string)
}

// Selectors of responses.
const (
	responseSelectorGameteCreation       = 0
	responseSelectorInitialJarStore      = 1
	responseSelectorJarStoreFailed       = 2
	responseSelectorJarStoreSuccessful   = 3
	responseSelectorConstructorException = 4
	responseSelectorConstructorFailed    = 5
	responseSelectorConstructorOK        = 6
	responseSelectorMethodException      = 7
	responseSelectorMethodFailed         = 8
	responseSelectorMethodOK             = 9
	responseSelectorVoidMethodOK         = 10
	responseSelectorInitialization       = 11
)

// GasAccount is the gas accounting carried by every non-initial
// response.
type GasAccount struct {
	ForCPU     *big.Int
	ForRAM     *big.Int
	ForStorage *big.Int
}

func (g *GasAccount) into(ctx *marshal.Context) {
	ctx.WriteBigInt(g.ForCPU)
	ctx.WriteBigInt(g.ForRAM)
	ctx.WriteBigInt(g.ForStorage)
}

func gasAccountFrom(ctx *marshal.UnmarshalContext) GasAccount {
	return GasAccount{
		ForCPU:     ctx.ReadBigInt(),
		ForRAM:     ctx.ReadBigInt(),
		ForStorage: ctx.ReadBigInt(),
	}
}

// Consumed yields the total gas consumed, penalty excluded.
func (g *GasAccount) Consumed() *big.Int {
	total := new(big.Int).Add(g.ForCPU, g.ForRAM)
	return total.Add(total, g.ForStorage)
}

// InitialJarStoreResponse is the response of the installation of the
// base jar.
type InitialJarStoreResponse struct {
	InstrumentedJar []byte
	Dependencies    []TransactionReference
}

func (r *InitialJarStoreResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorInitialJarStore)
	ctx.WriteBytes(r.InstrumentedJar)
	writeTransactionReferences(ctx, r.Dependencies)
}

// GameteCreationResponse is the response of the creation of the
// gamete.
type GameteCreationResponse struct {
	UpdateSet []Update
	Gamete    StorageReference
}

func (r *GameteCreationResponse) Updates() []Update { return r.UpdateSet }

func (r *GameteCreationResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorGameteCreation)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gamete.IntoWithoutSelector(ctx)
}

// InitializationResponse marks the node as initialized.
type InitializationResponse struct{}

func (r *InitializationResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorInitialization)
}

// JarStoreResponse is implemented by the two possible outcomes of a
// jar installation.
type JarStoreResponse interface {
	TransactionResponse
	jarStoreResponse()
}

// JarStoreSuccessfulResponse carries the instrumented jar, so that
// every node produces byte-identical artifacts for the same input.
type JarStoreSuccessfulResponse struct {
	InstrumentedJar []byte
	Dependencies    []TransactionReference
	UpdateSet       []Update
	Gas             GasAccount
}

func (r *JarStoreSuccessfulResponse) jarStoreResponse() {}

func (r *JarStoreSuccessfulResponse) Updates() []Update { return r.UpdateSet }

func (r *JarStoreSuccessfulResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorJarStoreSuccessful)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	ctx.WriteBytes(r.InstrumentedJar)
	writeTransactionReferences(ctx, r.Dependencies)
}

// JarStoreFailedResponse reports a failed jar installation; the
// verifier diagnostics travel in the message.
type JarStoreFailedResponse struct {
	ClassOfCause   string
	MessageOfCause string
	UpdateSet      []Update
	Gas            GasAccount
	GasPenalty     *big.Int
}

func (r *JarStoreFailedResponse) jarStoreResponse() {}

func (r *JarStoreFailedResponse) Updates() []Update { return r.UpdateSet }

func (r *JarStoreFailedResponse) Cause() (string, string, string) {
	return r.ClassOfCause, r.MessageOfCause, ""
}

func (r *JarStoreFailedResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorJarStoreFailed)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	ctx.WriteBigInt(r.GasPenalty)
	ctx.WriteString(r.ClassOfCause)
	ctx.WriteString(r.MessageOfCause)
}

// ConstructorCallResponse is implemented by the possible outcomes of a
// constructor call.
type ConstructorCallResponse interface {
	TransactionResponse
	constructorCallResponse()
}

// ConstructorCallSuccessfulResponse reports a normal return, with the
// reference of the created object.
type ConstructorCallSuccessfulResponse struct {
	NewObject StorageReference
	UpdateSet []Update
	EventRefs []StorageReference
	Gas       GasAccount
}

func (r *ConstructorCallSuccessfulResponse) constructorCallResponse() {}

func (r *ConstructorCallSuccessfulResponse) Updates() []Update { return r.UpdateSet }

func (r *ConstructorCallSuccessfulResponse) Events() []StorageReference { return r.EventRefs }

func (r *ConstructorCallSuccessfulResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorConstructorOK)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	r.NewObject.IntoWithoutSelector(ctx)
	writeStorageReferences(ctx, r.EventRefs)
}

// ConstructorCallExceptionResponse reports a constructor that threw an
// exception declared with throws-exceptions: a success outcome whose
// updates are committed.
type ConstructorCallExceptionResponse struct {
	ClassOfCause   string
	MessageOfCause string
	Where          string
	UpdateSet      []Update
	EventRefs      []StorageReference
	Gas            GasAccount
}

func (r *ConstructorCallExceptionResponse) constructorCallResponse() {}

func (r *ConstructorCallExceptionResponse) Updates() []Update { return r.UpdateSet }

func (r *ConstructorCallExceptionResponse) Events() []StorageReference { return r.EventRefs }

func (r *ConstructorCallExceptionResponse) Cause() (string, string, string) {
	return r.ClassOfCause, r.MessageOfCause, r.Where
}

func (r *ConstructorCallExceptionResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorConstructorException)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	writeStorageReferences(ctx, r.EventRefs)
	ctx.WriteString(r.ClassOfCause)
	ctx.WriteString(r.MessageOfCause)
	ctx.WriteString(r.Where)
}

// ConstructorCallFailedResponse reports a constructor whose execution
// failed; only the caller accounting updates are committed.
type ConstructorCallFailedResponse struct {
	ClassOfCause   string
	MessageOfCause string
	Where          string
	UpdateSet      []Update
	Gas            GasAccount
	GasPenalty     *big.Int
}

func (r *ConstructorCallFailedResponse) constructorCallResponse() {}

func (r *ConstructorCallFailedResponse) Updates() []Update { return r.UpdateSet }

func (r *ConstructorCallFailedResponse) Cause() (string, string, string) {
	return r.ClassOfCause, r.MessageOfCause, r.Where
}

func (r *ConstructorCallFailedResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorConstructorFailed)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	ctx.WriteBigInt(r.GasPenalty)
	ctx.WriteString(r.ClassOfCause)
	ctx.WriteString(r.MessageOfCause)
	ctx.WriteString(r.Where)
}

// MethodCallResponse is implemented by the possible outcomes of a
// method call.
type MethodCallResponse interface {
	TransactionResponse
	methodCallResponse()
}

// MethodCallSuccessfulResponse reports a normal return of a non-void
// method.
type MethodCallSuccessfulResponse struct {
	Result    StorageValue
	UpdateSet []Update
	EventRefs []StorageReference
	Gas       GasAccount
}

func (r *MethodCallSuccessfulResponse) methodCallResponse() {}

func (r *MethodCallSuccessfulResponse) Updates() []Update { return r.UpdateSet }

func (r *MethodCallSuccessfulResponse) Events() []StorageReference { return r.EventRefs }

func (r *MethodCallSuccessfulResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorMethodOK)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	r.Result.Into(ctx)
	writeStorageReferences(ctx, r.EventRefs)
}

// VoidMethodCallSuccessfulResponse reports a normal return of a void
// method.
type VoidMethodCallSuccessfulResponse struct {
	UpdateSet []Update
	EventRefs []StorageReference
	Gas       GasAccount
}

func (r *VoidMethodCallSuccessfulResponse) methodCallResponse() {}

func (r *VoidMethodCallSuccessfulResponse) Updates() []Update { return r.UpdateSet }

func (r *VoidMethodCallSuccessfulResponse) Events() []StorageReference { return r.EventRefs }

func (r *VoidMethodCallSuccessfulResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorVoidMethodOK)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	writeStorageReferences(ctx, r.EventRefs)
}

// MethodCallExceptionResponse reports a method that threw an exception
// declared with throws-exceptions: a success outcome whose updates are
// committed.
type MethodCallExceptionResponse struct {
	ClassOfCause   string
	MessageOfCause string
	Where          string
	UpdateSet      []Update
	EventRefs      []StorageReference
	Gas            GasAccount
}

func (r *MethodCallExceptionResponse) methodCallResponse() {}

func (r *MethodCallExceptionResponse) Updates() []Update { return r.UpdateSet }

func (r *MethodCallExceptionResponse) Events() []StorageReference { return r.EventRefs }

func (r *MethodCallExceptionResponse) Cause() (string, string, string) {
	return r.ClassOfCause, r.MessageOfCause, r.Where
}

func (r *MethodCallExceptionResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorMethodException)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	writeStorageReferences(ctx, r.EventRefs)
	ctx.WriteString(r.ClassOfCause)
	ctx.WriteString(r.MessageOfCause)
	ctx.WriteString(r.Where)
}

// MethodCallFailedResponse reports a method whose execution failed;
// only the caller accounting updates are committed.
type MethodCallFailedResponse struct {
	ClassOfCause   string
	MessageOfCause string
	Where          string
	UpdateSet      []Update
	Gas            GasAccount
	GasPenalty     *big.Int
}

func (r *MethodCallFailedResponse) methodCallResponse() {}

func (r *MethodCallFailedResponse) Updates() []Update { return r.UpdateSet }

func (r *MethodCallFailedResponse) Cause() (string, string, string) {
	return r.ClassOfCause, r.MessageOfCause, r.Where
}

func (r *MethodCallFailedResponse) Into(ctx *marshal.Context) {
	ctx.WriteByte(responseSelectorMethodFailed)
	WriteUpdates(ctx, r.UpdateSet)
	r.Gas.into(ctx)
	ctx.WriteBigInt(r.GasPenalty)
	ctx.WriteString(r.ClassOfCause)
	ctx.WriteString(r.MessageOfCause)
	ctx.WriteString(r.Where)
}

// ResponseFrom reads back a response written by Into.
func ResponseFrom(ctx *marshal.UnmarshalContext) (TransactionResponse, error) {
	selector := ctx.ReadByte()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch selector {
	case responseSelectorInitialJarStore:
		r := &InitialJarStoreResponse{InstrumentedJar: ctx.ReadBytes()}
		var err error
		if r.Dependencies, err = readTransactionReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case responseSelectorGameteCreation:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		return &GameteCreationResponse{UpdateSet: updates, Gamete: StorageReferenceFrom(ctx)}, ctx.Err()

	case responseSelectorInitialization:
		return &InitializationResponse{}, nil

	case responseSelectorJarStoreSuccessful:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &JarStoreSuccessfulResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		r.InstrumentedJar = ctx.ReadBytes()
		if r.Dependencies, err = readTransactionReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case responseSelectorJarStoreFailed:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &JarStoreFailedResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		r.GasPenalty = ctx.ReadBigInt()
		r.ClassOfCause = ctx.ReadString()
		r.MessageOfCause = ctx.ReadString()
		return r, ctx.Err()

	case responseSelectorConstructorOK:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &ConstructorCallSuccessfulResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		r.NewObject = StorageReferenceFrom(ctx)
		if r.EventRefs, err = readStorageReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case responseSelectorConstructorException:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &ConstructorCallExceptionResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		if r.EventRefs, err = readStorageReferences(ctx); err != nil {
			return nil, err
		}
		r.ClassOfCause = ctx.ReadString()
		r.MessageOfCause = ctx.ReadString()
		r.Where = ctx.ReadString()
		return r, ctx.Err()

	case responseSelectorConstructorFailed:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &ConstructorCallFailedResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		r.GasPenalty = ctx.ReadBigInt()
		r.ClassOfCause = ctx.ReadString()
		r.MessageOfCause = ctx.ReadString()
		r.Where = ctx.ReadString()
		return r, ctx.Err()

	case responseSelectorMethodOK:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &MethodCallSuccessfulResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		if r.Result, err = ValueFrom(ctx); err != nil {
			return nil, err
		}
		if r.EventRefs, err = readStorageReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case responseSelectorVoidMethodOK:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &VoidMethodCallSuccessfulResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		if r.EventRefs, err = readStorageReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case responseSelectorMethodException:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &MethodCallExceptionResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		if r.EventRefs, err = readStorageReferences(ctx); err != nil {
			return nil, err
		}
		r.ClassOfCause = ctx.ReadString()
		r.MessageOfCause = ctx.ReadString()
		r.Where = ctx.ReadString()
		return r, ctx.Err()

	case responseSelectorMethodFailed:
		updates, err := ReadUpdates(ctx)
		if err != nil {
			return nil, err
		}
		r := &MethodCallFailedResponse{UpdateSet: updates, Gas: gasAccountFrom(ctx)}
		r.GasPenalty = ctx.ReadBigInt()
		r.ClassOfCause = ctx.ReadString()
		r.MessageOfCause = ctx.ReadString()
		r.Where = ctx.ReadString()
		return r, ctx.Err()
	}

	return nil, errors.Wrapf(ErrDecoding, "unknown response selector %d", selector)
}

func writeStorageReferences(ctx *marshal.Context, refs []StorageReference) {
	ctx.WriteCompactInt(int32(len(refs)))
	for _, ref := range refs {
		ref.IntoWithoutSelector(ctx)
	}
}

func readStorageReferences(ctx *marshal.UnmarshalContext) ([]StorageReference, error) {
	n := ctx.ReadCompactInt()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := make([]StorageReference, 0, n)
	for i := int32(0); i < n; i++ {
		refs = append(refs, StorageReferenceFrom(ctx))
	}
	return refs, ctx.Err()
}
