package beans

import (
	"math/big"

	"github.com/omahs/hotmoka/crypto"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// TransactionRequest is a request for executing a transaction in a
// node.
type TransactionRequest interface {
	// Into writes the complete request, signature included for
	// signed requests.
	Into(ctx *marshal.Context)
}

// SignedTransactionRequest is a non-initial request, signed by the
// externally owned account that pays for it.
type SignedTransactionRequest interface {
	TransactionRequest

	// IntoWithoutSignature writes the signing pre-image: the full
	// request except the signature, which is appended last by Into.
	IntoWithoutSignature(ctx *marshal.Context)

	// Base yields the common fields of non-initial requests.
	Base() *NonInitialRequest
}

// Selectors of requests.
const (
	requestSelectorInitialJarStore    = 1
	requestSelectorGameteCreation     = 2
	requestSelectorJarStore           = 3
	requestSelectorConstructorCall    = 4
	requestSelectorInstanceMethodCall = 5
	requestSelectorStaticMethodCall   = 6
	requestSelectorTransferInt        = 7
	requestSelectorTransferLong       = 8
	requestSelectorTransferBigInt     = 9
	requestSelectorInitialization     = 10
)

// TransferGasLimit is the fixed gas limit of compact transfer
// requests; it is elided from their marshalling.
var TransferGasLimit = big.NewInt(10_000)

// RequestReference derives the transaction reference of a request:
// the hash of its marshalled bytes.
func RequestReference(request TransactionRequest) (TransactionReference, error) {
	b, err := marshal.ToBytes(request.Into)
	if err != nil {
		return TransactionReference{}, err
	}
	return TransactionReference(crypto.Sha256(b)), nil
}

// NonInitialRequest carries the fields common to every request that
// must be paid for by an externally owned account.
type NonInitialRequest struct {
	Caller    StorageReference
	Nonce     *big.Int
	ChainID   string
	GasLimit  *big.Int
	GasPrice  *big.Int
	Classpath TransactionReference
	Signature []byte
}

func (r *NonInitialRequest) Base() *NonInitialRequest { return r }

// intoWithoutSignature writes the common fields in their canonical
// order.
func (r *NonInitialRequest) intoWithoutSignature(ctx *marshal.Context) {
	r.Caller.IntoWithoutSelector(ctx)
	ctx.WriteBigInt(r.GasLimit)
	ctx.WriteBigInt(r.GasPrice)
	r.Classpath.Into(ctx)
	ctx.WriteBigInt(r.Nonce)
	ctx.WriteString(r.ChainID)
}

func nonInitialRequestFrom(ctx *marshal.UnmarshalContext) NonInitialRequest {
	var r NonInitialRequest
	r.Caller = StorageReferenceFrom(ctx)
	r.GasLimit = ctx.ReadBigInt()
	r.GasPrice = ctx.ReadBigInt()
	r.Classpath = TransactionReferenceFrom(ctx)
	r.Nonce = ctx.ReadBigInt()
	r.ChainID = ctx.ReadString()
	return r
}

// InitialJarStoreRequest installs the base jar of a new node. It is
// unsigned and accepted only before initialization.
type InitialJarStoreRequest struct {
	Jar          []byte
	Dependencies []TransactionReference
}

func (r *InitialJarStoreRequest) Into(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorInitialJarStore)
	ctx.WriteBytes(r.Jar)
	writeTransactionReferences(ctx, r.Dependencies)
}

// GameteCreationRequest creates the distinguished initial account with
// the configured supplies. Unsigned, accepted only before
// initialization.
type GameteCreationRequest struct {
	Classpath        TransactionReference
	InitialAmount    *big.Int
	RedInitialAmount *big.Int
	PublicKey        string
}

func (r *GameteCreationRequest) Into(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorGameteCreation)
	r.Classpath.Into(ctx)
	ctx.WriteBigInt(r.InitialAmount)
	ctx.WriteBigInt(r.RedInitialAmount)
	ctx.WriteString(r.PublicKey)
}

// InitializationRequest marks the node as initialized: after it
// commits, no further initial request is accepted.
type InitializationRequest struct {
	Classpath TransactionReference
	Manifest  StorageReference
}

func (r *InitializationRequest) Into(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorInitialization)
	r.Classpath.Into(ctx)
	r.Manifest.IntoWithoutSelector(ctx)
}

// JarStoreRequest installs a jar in an initialized node.
type JarStoreRequest struct {
	NonInitialRequest
	Jar          []byte
	Dependencies []TransactionReference
}

func (r *JarStoreRequest) IntoWithoutSignature(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorJarStore)
	r.intoWithoutSignature(ctx)
	ctx.WriteBytes(r.Jar)
	writeTransactionReferences(ctx, r.Dependencies)
}

func (r *JarStoreRequest) Into(ctx *marshal.Context) {
	r.IntoWithoutSignature(ctx)
	ctx.WriteBytes(r.Signature)
}

// ConstructorCallRequest invokes a constructor, creating a new storage
// object.
type ConstructorCallRequest struct {
	NonInitialRequest
	Constructor MethodSignature
	Actuals     []StorageValue
}

func (r *ConstructorCallRequest) IntoWithoutSignature(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorConstructorCall)
	r.intoWithoutSignature(ctx)
	r.Constructor.Into(ctx)
	writeValues(ctx, r.Actuals)
}

func (r *ConstructorCallRequest) Into(ctx *marshal.Context) {
	r.IntoWithoutSignature(ctx)
	ctx.WriteBytes(r.Signature)
}

// InstanceMethodCallRequest invokes a method on a storage object.
type InstanceMethodCallRequest struct {
	NonInitialRequest
	Method   MethodSignature
	Receiver StorageReference
	Actuals  []StorageValue
}

func (r *InstanceMethodCallRequest) IntoWithoutSignature(ctx *marshal.Context) {
	// the compact transfer layout applies when this request is a
	// plain coin transfer: receive(int|long|BigInteger) with the
	// fixed gas limit
	if selector, ok := r.transferSelector(); ok {
		ctx.WriteByte(selector)
		r.Caller.IntoWithoutSelector(ctx)
		ctx.WriteBigInt(r.GasPrice)
		r.Classpath.Into(ctx)
		ctx.WriteBigInt(r.Nonce)
		ctx.WriteString(r.ChainID)
		r.Receiver.IntoWithoutSelector(ctx)
		switch v := r.Actuals[0].(type) {
		case IntValue:
			ctx.WriteInt(int32(v))
		case LongValue:
			ctx.WriteLong(int64(v))
		case BigIntegerValue:
			ctx.WriteBigInt(v.Value)
		}
		return
	}

	ctx.WriteByte(requestSelectorInstanceMethodCall)
	r.intoWithoutSignature(ctx)
	r.Method.Into(ctx)
	r.Receiver.IntoWithoutSelector(ctx)
	writeValues(ctx, r.Actuals)
}

// transferSelector recognizes the compact transfer shape.
func (r *InstanceMethodCallRequest) transferSelector() (byte, bool) {
	if len(r.Actuals) != 1 || r.GasLimit == nil || r.GasLimit.Cmp(TransferGasLimit) != 0 {
		return 0, false
	}
	switch {
	case r.Method.Equal(ReceiveInt):
		return requestSelectorTransferInt, true
	case r.Method.Equal(ReceiveLong):
		return requestSelectorTransferLong, true
	case r.Method.Equal(ReceiveBigInteger):
		return requestSelectorTransferBigInt, true
	}
	return 0, false
}

func (r *InstanceMethodCallRequest) Into(ctx *marshal.Context) {
	r.IntoWithoutSignature(ctx)
	ctx.WriteBytes(r.Signature)
}

// NewTransferRequest builds the compact form of a coin transfer: an
// instance call to the receive method of the receiver, with the fixed
// transfer gas limit. The amount must be an IntValue, LongValue or
// BigIntegerValue.
func NewTransferRequest(caller StorageReference, nonce *big.Int, chainID string, gasPrice *big.Int, classpath TransactionReference, receiver StorageReference, amount StorageValue) (*InstanceMethodCallRequest, error) {
	var method MethodSignature
	switch amount.(type) {
	case IntValue:
		method = ReceiveInt
	case LongValue:
		method = ReceiveLong
	case BigIntegerValue:
		method = ReceiveBigInteger
	default:
		return nil, errors.New("a transfer amount must be an int, a long or a big integer")
	}
	return &InstanceMethodCallRequest{
		NonInitialRequest: NonInitialRequest{
			Caller:    caller,
			Nonce:     nonce,
			ChainID:   chainID,
			GasLimit:  TransferGasLimit,
			GasPrice:  gasPrice,
			Classpath: classpath,
		},
		Method:   method,
		Receiver: receiver,
		Actuals:  []StorageValue{amount},
	}, nil
}

// StaticMethodCallRequest invokes a static method of a class.
type StaticMethodCallRequest struct {
	NonInitialRequest
	Method  MethodSignature
	Actuals []StorageValue
}

func (r *StaticMethodCallRequest) IntoWithoutSignature(ctx *marshal.Context) {
	ctx.WriteByte(requestSelectorStaticMethodCall)
	r.intoWithoutSignature(ctx)
	r.Method.Into(ctx)
	writeValues(ctx, r.Actuals)
}

func (r *StaticMethodCallRequest) Into(ctx *marshal.Context) {
	r.IntoWithoutSignature(ctx)
	ctx.WriteBytes(r.Signature)
}

// RequestFrom reads back a request written by Into.
func RequestFrom(ctx *marshal.UnmarshalContext) (TransactionRequest, error) {
	selector := ctx.ReadByte()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	switch selector {
	case requestSelectorInitialJarStore:
		r := &InitialJarStoreRequest{Jar: ctx.ReadBytes()}
		var err error
		if r.Dependencies, err = readTransactionReferences(ctx); err != nil {
			return nil, err
		}
		return r, ctx.Err()

	case requestSelectorGameteCreation:
		r := &GameteCreationRequest{}
		r.Classpath = TransactionReferenceFrom(ctx)
		r.InitialAmount = ctx.ReadBigInt()
		r.RedInitialAmount = ctx.ReadBigInt()
		r.PublicKey = ctx.ReadString()
		return r, ctx.Err()

	case requestSelectorInitialization:
		r := &InitializationRequest{}
		r.Classpath = TransactionReferenceFrom(ctx)
		r.Manifest = StorageReferenceFrom(ctx)
		return r, ctx.Err()

	case requestSelectorJarStore:
		r := &JarStoreRequest{NonInitialRequest: nonInitialRequestFrom(ctx)}
		r.Jar = ctx.ReadBytes()
		var err error
		if r.Dependencies, err = readTransactionReferences(ctx); err != nil {
			return nil, err
		}
		r.Signature = ctx.ReadBytes()
		return r, ctx.Err()

	case requestSelectorConstructorCall:
		r := &ConstructorCallRequest{NonInitialRequest: nonInitialRequestFrom(ctx)}
		var err error
		if r.Constructor, err = MethodSignatureFrom(ctx); err != nil {
			return nil, err
		}
		if r.Actuals, err = readValues(ctx); err != nil {
			return nil, err
		}
		r.Signature = ctx.ReadBytes()
		return r, ctx.Err()

	case requestSelectorInstanceMethodCall:
		r := &InstanceMethodCallRequest{NonInitialRequest: nonInitialRequestFrom(ctx)}
		var err error
		if r.Method, err = MethodSignatureFrom(ctx); err != nil {
			return nil, err
		}
		r.Receiver = StorageReferenceFrom(ctx)
		if r.Actuals, err = readValues(ctx); err != nil {
			return nil, err
		}
		r.Signature = ctx.ReadBytes()
		return r, ctx.Err()

	case requestSelectorStaticMethodCall:
		r := &StaticMethodCallRequest{NonInitialRequest: nonInitialRequestFrom(ctx)}
		var err error
		if r.Method, err = MethodSignatureFrom(ctx); err != nil {
			return nil, err
		}
		if r.Actuals, err = readValues(ctx); err != nil {
			return nil, err
		}
		r.Signature = ctx.ReadBytes()
		return r, ctx.Err()

	case requestSelectorTransferInt, requestSelectorTransferLong, requestSelectorTransferBigInt:
		r := &InstanceMethodCallRequest{}
		r.Caller = StorageReferenceFrom(ctx)
		r.GasPrice = ctx.ReadBigInt()
		r.Classpath = TransactionReferenceFrom(ctx)
		r.Nonce = ctx.ReadBigInt()
		r.ChainID = ctx.ReadString()
		r.GasLimit = TransferGasLimit
		r.Receiver = StorageReferenceFrom(ctx)
		switch selector {
		case requestSelectorTransferInt:
			r.Method = ReceiveInt
			r.Actuals = []StorageValue{IntValue(ctx.ReadInt())}
		case requestSelectorTransferLong:
			r.Method = ReceiveLong
			r.Actuals = []StorageValue{LongValue(ctx.ReadLong())}
		default:
			r.Method = ReceiveBigInteger
			r.Actuals = []StorageValue{BigIntegerValue{Value: ctx.ReadBigInt()}}
		}
		r.Signature = ctx.ReadBytes()
		return r, ctx.Err()
	}

	return nil, errors.Wrapf(ErrDecoding, "unknown request selector %d", selector)
}

// SignRequest signs the request pre-image with the given algorithm and
// stores the signature in the request.
func SignRequest(alg crypto.SignatureAlgorithm, priv []byte, request SignedTransactionRequest) error {
	preImage, err := marshal.ToBytes(request.IntoWithoutSignature)
	if err != nil {
		return err
	}
	sig, err := alg.Sign(priv, preImage)
	if err != nil {
		return err
	}
	request.Base().Signature = sig
	return nil
}

// VerifyRequestSignature checks the signature of a signed request
// against the given public key.
func VerifyRequestSignature(alg crypto.SignatureAlgorithm, pub []byte, request SignedTransactionRequest) (bool, error) {
	preImage, err := marshal.ToBytes(request.IntoWithoutSignature)
	if err != nil {
		return false, err
	}
	return alg.Verify(pub, preImage, request.Base().Signature)
}

func writeTransactionReferences(ctx *marshal.Context, refs []TransactionReference) {
	ctx.WriteCompactInt(int32(len(refs)))
	for _, ref := range refs {
		ref.Into(ctx)
	}
}

func readTransactionReferences(ctx *marshal.UnmarshalContext) ([]TransactionReference, error) {
	n := ctx.ReadCompactInt()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	refs := make([]TransactionReference, 0, n)
	for i := int32(0); i < n; i++ {
		refs = append(refs, TransactionReferenceFrom(ctx))
	}
	return refs, ctx.Err()
}

func writeValues(ctx *marshal.Context, values []StorageValue) {
	ctx.WriteCompactInt(int32(len(values)))
	for _, v := range values {
		v.Into(ctx)
	}
}

func readValues(ctx *marshal.UnmarshalContext) ([]StorageValue, error) {
	n := ctx.ReadCompactInt()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	values := make([]StorageValue, 0, n)
	for i := int32(0); i < n; i++ {
		v, err := ValueFrom(ctx)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}
