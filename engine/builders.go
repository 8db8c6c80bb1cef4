package engine

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/instrumentation"
	"github.com/omahs/hotmoka/marshal"
	"github.com/omahs/hotmoka/store"
	"github.com/omahs/hotmoka/verification"
)

// isInitialized reports whether the initialization marker has been
// committed: initial requests are forbidden afterwards.
func (e *Engine) isInitialized() bool {
	_, err := e.Store.GetInfoUncommitted(store.InfoNext)
	return err == nil
}

func (e *Engine) buildInitialJarStore(ref beans.TransactionReference, request *beans.InitialJarStoreRequest) (beans.TransactionResponse, error) {
	if e.isInitialized() {
		return nil, Rejected("cannot run an initial transaction on an initialized node")
	}

	env, err := e.environmentOf(request.Dependencies)
	if err != nil {
		return nil, Rejected("%s", err)
	}
	verified, err := verification.Verify(request.Jar, env, verification.Options{
		AllowSelfCharged: e.Consensus.AllowSelfCharged,
		AllowNative:      true,
	})
	if err != nil {
		return nil, Rejected("%s", err)
	}
	if issue, bad := verified.FirstError(); bad {
		return nil, Rejected("%s", issue)
	}
	module, err := instrumentation.Instrument(verified, env, e.Gas)
	if err != nil {
		return nil, Rejected("%s", err)
	}
	instrumented, err := module.Bytes()
	if err != nil {
		return nil, Rejected("%s", err)
	}
	return &beans.InitialJarStoreResponse{InstrumentedJar: instrumented, Dependencies: request.Dependencies}, nil
}

func (e *Engine) buildGameteCreation(ref beans.TransactionReference, request *beans.GameteCreationRequest) (beans.TransactionResponse, error) {
	if e.isInitialized() {
		return nil, Rejected("cannot run an initial transaction on an initialized node")
	}
	if request.InitialAmount.Sign() < 0 || request.RedInitialAmount.Sign() < 0 {
		return nil, Rejected("the initial supplies cannot be negative")
	}
	loader, err := e.Loader(request.Classpath)
	if err != nil {
		return nil, Rejected("%s", err)
	}

	ctx := newContext(e, loader, ref, big.NewInt(0), 0)
	gamete, err := ctx.allocate(ClassGamete)
	if err != nil {
		return nil, Rejected("%s", err)
	}
	gamete.Set(beans.PublicKeyField, request.PublicKey)
	setBalance(gamete, new(big.Int).Set(request.InitialAmount))
	gamete.Set(beans.RedBalanceField, new(big.Int).Set(request.RedInitialAmount))

	updates, err := ctx.extractUpdates([]*Object{gamete})
	if err != nil {
		return nil, Rejected("%s", err)
	}
	return &beans.GameteCreationResponse{UpdateSet: updates, Gamete: gamete.Ref}, nil
}

func (e *Engine) buildInitialization(ref beans.TransactionReference, request *beans.InitializationRequest) (beans.TransactionResponse, error) {
	if e.isInitialized() {
		return nil, Rejected("the node is already initialized")
	}
	if _, err := e.Loader(request.Classpath); err != nil {
		return nil, Rejected("%s", err)
	}
	return &beans.InitializationResponse{}, nil
}

// environmentOf loads the classes of the given jar transactions.
func (e *Engine) environmentOf(deps []beans.TransactionReference) (*verification.Env, error) {
	env := verification.NewEnv()
	for _, dep := range deps {
		loader, err := e.Loader(dep)
		if err != nil {
			return nil, err
		}
		// merge the whole closure of the dependency
		env.Merge(loader.Env)
	}
	return env, nil
}

// run is the shared state machine of the non-initial builders:
// admission, pessimistic gas reservation, metered body, refund or
// penalty.
type run struct {
	e       *Engine
	ref     beans.TransactionReference
	base    *beans.NonInitialRequest
	loader  *ClassLoader
	ctx     *Context
	caller  *Object
	payer   *Object
	gas     *big.Int // gas limit
	price   *big.Int
	deposit *big.Int // gas * price, withdrawn from the payer
	isView  bool

	// balances at admission time, to revert coin movements of a
	// failed body
	initialPayerBalance  *big.Int
	initialCallerBalance *big.Int
}

// newRun validates admissibility; the full gas cost is then reserved
// from the payer by reserveGas. Every returned error is a rejection:
// nothing has been written.
func (e *Engine) newRun(ref beans.TransactionReference, request beans.SignedTransactionRequest, signatureRequired, isView bool) (*run, error) {
	base := request.Base()

	if base.ChainID != e.Consensus.ChainID {
		return nil, Rejected("incorrect chain identifier %q", base.ChainID)
	}

	loader, err := e.Loader(base.Classpath)
	if err != nil {
		return nil, Rejected("%s", err)
	}

	ctx := newContext(e, loader, ref, base.GasLimit, 0)
	caller, err := ctx.deserialize(base.Caller)
	if err != nil {
		return nil, Rejected("the caller %s cannot be deserialized", base.Caller)
	}
	if !loader.IsEOA(caller.Class) {
		return nil, Rejected("the caller must be an externally owned account")
	}

	if !isView {
		if nonceOf(caller).Cmp(base.Nonce) != 0 {
			return nil, Rejected("incorrect nonce %s, expected %s", base.Nonce, nonceOf(caller))
		}
	}

	if signatureRequired {
		key, _ := caller.Get(beans.PublicKeyField)
		publicKey, _ := key.(string)
		ok, err := e.CheckSig(request, publicKey)
		if err != nil {
			return nil, Rejected("signature verification failed: %s", err)
		}
		if !ok {
			return nil, Rejected("invalid request signature")
		}
	}

	if base.GasLimit.Cmp(e.minimumGas()) < 0 {
		return nil, Rejected("gas limit %s is below the minimum %s", base.GasLimit, e.minimumGas())
	}
	if isView && base.GasLimit.Cmp(e.Consensus.MaxGasPerViewTransaction) > 0 {
		return nil, Rejected("too much gas for view")
	}

	price := base.GasPrice
	if e.Consensus.IgnoreGasPrice || isView {
		price = big.NewInt(0)
	} else if price.Sign() < 0 {
		return nil, Rejected("the gas price cannot be negative")
	}

	r := &run{
		e:      e,
		ref:    ref,
		base:   base,
		loader: loader,
		ctx:    ctx,
		caller: caller,
		payer:  caller,
		gas:    base.GasLimit,
		price:  price,
		isView: isView,
	}
	return r, nil
}

// reserveGas withdraws the full gas cost from the payer and advances
// the nonce of the caller. From this point on the transaction is
// accepted: it will produce a response, successful or failed.
func (r *run) reserveGas() error {
	r.deposit = new(big.Int).Mul(r.gas, r.price)
	balance := balanceOf(r.payer)
	if balance.Cmp(r.deposit) < 0 {
		return Rejected("the payer has not enough funds to pay for %s units of gas", r.gas)
	}
	r.initialPayerBalance = new(big.Int).Set(balance)
	r.initialCallerBalance = new(big.Int).Set(balanceOf(r.caller))
	setBalance(r.payer, new(big.Int).Sub(balance, r.deposit))
	if !r.isView {
		setNonce(r.caller, new(big.Int).Add(nonceOf(r.caller), big.NewInt(1)))
	}

	if err := r.ctx.ChargeCPU(big.NewInt(r.e.Gas.CPUBaseTransactionCost)); err != nil {
		return Rejected("the gas limit cannot cover the fixed base cost")
	}
	return nil
}

// chargeStorageOfRequest consumes storage gas proportional to the
// size of the request.
func (r *run) chargeStorageOfRequest(request beans.TransactionRequest) error {
	b, err := marshal.ToBytes(request.Into)
	if err != nil {
		return err
	}
	return r.ctx.ChargeStorage(r.e.Gas.StorageCostOf(len(b)))
}

// refund returns the unused gas to the payer, after charging the
// storage of the marshalled response.
func (r *run) refund(response beans.TransactionResponse) {
	if b, err := marshal.ToBytes(response.Into); err == nil {
		// out of gas at this late point falls through to the
		// penalty below
		_ = r.ctx.ChargeStorage(r.e.Gas.StorageCostOf(len(b)))
	}
	back := new(big.Int).Mul(r.ctx.Remaining(), r.price)
	setBalance(r.payer, new(big.Int).Add(balanceOf(r.payer), back))
}

// penalty yields the gas kept back on failure: all the gas that was
// not consumed, charged to deter spam.
func (r *run) penalty() *big.Int {
	return r.ctx.Remaining()
}

// resetOnFailure reverts every coin movement of the failed body: the
// payer keeps its initial balance minus the whole gas deposit, the
// caller its initial balance. The advanced nonce stays.
func (r *run) resetOnFailure() {
	if r.initialPayerBalance != nil {
		setBalance(r.payer, new(big.Int).Sub(r.initialPayerBalance, r.deposit))
	}
	if r.payer != r.caller && r.initialCallerBalance != nil {
		setBalance(r.caller, new(big.Int).Set(r.initialCallerBalance))
	}
}

// accountingUpdates yields the only updates committed by a failed
// transaction: the balance and nonce of the payer and caller.
func (r *run) accountingUpdates() []beans.Update {
	updates := []beans.Update{
		beans.NewBalanceUpdate(r.payer.Ref, balanceOf(r.payer)),
	}
	if !r.isView {
		updates = append(updates, beans.NewNonceUpdate(r.caller.Ref, nonceOf(r.caller)))
	}
	if r.payer != r.caller {
		updates = append(updates, beans.NewBalanceUpdate(r.caller.Ref, balanceOf(r.caller)))
	}
	beans.SortUpdates(updates)
	return updates
}

// successUpdates extracts the updates of a successful body from the
// objects reachable from the roots.
func (r *run) successUpdates(roots []*Object) ([]beans.Update, error) {
	all := roots
	all = append(all, r.caller, r.payer)
	all = append(all, r.ctx.events...)
	return r.ctx.extractUpdates(all)
}

// causeOf classifies a failure.
func causeOf(err error) (class, message, where string) {
	if ce, ok := errors.Root(err).(*ContractException); ok {
		return ce.Class, ce.Message, ce.Where
	}
	if errors.Root(err) == ErrOutOfGas {
		return "io.takamaka.code.lang.OutOfGasError", err.Error(), ""
	}
	return "java.lang.IllegalStateException", err.Error(), ""
}

// isCheckedFor reports whether a failure must surface as a declared
// code execution exception of the invoked method.
func isCheckedFor(err error, method *verification.Method) bool {
	ce, ok := errors.Root(err).(*ContractException)
	if !ok {
		return false
	}
	return method.Is(verification.FlagThrowsExceptions) && !verification.IsUncheckedException(ce.Class)
}

func (e *Engine) buildJarStore(ref beans.TransactionReference, request *beans.JarStoreRequest) (beans.TransactionResponse, error) {
	r, err := e.newRun(ref, request, true, false)
	if err != nil {
		return nil, err
	}

	// dependencies must refer to already committed jar installations
	env, err := e.environmentOf(request.Dependencies)
	if err != nil {
		return nil, Rejected("%s", err)
	}

	if err := r.reserveGas(); err != nil {
		return nil, err
	}

	fail := func(err error) beans.TransactionResponse {
		r.resetOnFailure()
		class, message, _ := causeOf(err)
		return &beans.JarStoreFailedResponse{
			ClassOfCause:   class,
			MessageOfCause: message,
			UpdateSet:      r.accountingUpdates(),
			Gas:            r.ctx.GasAccount(),
			GasPenalty:     r.penalty(),
		}
	}

	if err := r.chargeStorageOfRequest(request); err != nil {
		return fail(err), nil
	}
	if err := r.ctx.ChargeCPU(e.Gas.CPUCostForInstallingJar(len(request.Jar))); err != nil {
		return fail(err), nil
	}
	if err := r.ctx.ChargeRAM(e.Gas.RAMCostForInstallingJar(len(request.Jar))); err != nil {
		return fail(err), nil
	}

	verified, err := verification.Verify(request.Jar, env, verification.Options{
		AllowSelfCharged: e.Consensus.AllowSelfCharged,
	})
	if err != nil {
		return fail(err), nil
	}
	if issue, bad := verified.FirstError(); bad {
		return fail(&ContractException{Class: issue.Code, Message: issue.String()}), nil
	}
	module, err := instrumentation.Instrument(verified, env, e.Gas)
	if err != nil {
		return fail(err), nil
	}
	instrumented, err := module.Bytes()
	if err != nil {
		return fail(err), nil
	}

	response := &beans.JarStoreSuccessfulResponse{
		InstrumentedJar: instrumented,
		Dependencies:    request.Dependencies,
		UpdateSet:       r.accountingUpdates(),
		Gas:             r.ctx.GasAccount(),
	}
	r.refund(response)
	response.UpdateSet = r.accountingUpdates()
	response.Gas = r.ctx.GasAccount()
	return response, nil
}

func (e *Engine) buildConstructorCall(ref beans.TransactionReference, request *beans.ConstructorCallRequest) (beans.TransactionResponse, error) {
	r, err := e.newRun(ref, request, true, false)
	if err != nil {
		return nil, err
	}
	if err := r.reserveGas(); err != nil {
		return nil, err
	}

	fail := func(err error) beans.TransactionResponse {
		r.resetOnFailure()
		class, message, where := causeOf(err)
		return &beans.ConstructorCallFailedResponse{
			ClassOfCause:   class,
			MessageOfCause: message,
			Where:          where,
			UpdateSet:      r.accountingUpdates(),
			Gas:            r.ctx.GasAccount(),
			GasPenalty:     r.penalty(),
		}
	}

	if err := r.chargeStorageOfRequest(request); err != nil {
		return fail(err), nil
	}

	ctorClass, ctor, ok := r.loader.Env.ResolveMethod(string(request.Constructor.Class), beans.ConstructorName, request.Constructor.Formals)
	if !ok {
		return fail(throwAt(ExcNoSuchMethod, "", "%s", request.Constructor)), nil
	}

	args, err := r.deserializeActuals(request.Actuals)
	if err != nil {
		return fail(err), nil
	}

	obj, err := r.ctx.allocate(string(request.Constructor.Class))
	if err != nil {
		return fail(err), nil
	}
	_, err = r.ctx.invoke(ctorClass, ctor, obj, args, r.caller, false)
	if err != nil {
		if isCheckedFor(err, ctor) {
			class, message, where := causeOf(err)
			response := &beans.ConstructorCallExceptionResponse{
				ClassOfCause:   class,
				MessageOfCause: message,
				Where:          where,
				EventRefs:      r.ctx.eventRefs(),
				Gas:            r.ctx.GasAccount(),
			}
			roots := objectsIn(args)
			updates, uerr := r.successUpdates(roots)
			if uerr != nil {
				return fail(uerr), nil
			}
			response.UpdateSet = updates
			r.refund(response)
			if response.UpdateSet, uerr = r.successUpdates(roots); uerr != nil {
				return fail(uerr), nil
			}
			response.Gas = r.ctx.GasAccount()
			return response, nil
		}
		return fail(err), nil
	}

	response := &beans.ConstructorCallSuccessfulResponse{
		NewObject: obj.Ref,
		EventRefs: r.ctx.eventRefs(),
		Gas:       r.ctx.GasAccount(),
	}
	roots := append([]*Object{obj}, objectsIn(args)...)
	updates, err := r.successUpdates(roots)
	if err != nil {
		return fail(err), nil
	}
	response.UpdateSet = updates
	r.refund(response)
	if response.UpdateSet, err = r.successUpdates(roots); err != nil {
		return fail(err), nil
	}
	response.Gas = r.ctx.GasAccount()
	return response, nil
}

// deserializeActuals rehydrates the actual arguments of a call.
func (r *run) deserializeActuals(actuals []beans.StorageValue) ([]Value, error) {
	args := make([]Value, len(actuals))
	for i, a := range actuals {
		v, err := r.ctx.runtimeValueOf(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}
