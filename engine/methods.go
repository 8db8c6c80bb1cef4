package engine

import (
	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/verification"
)

// ExcSideEffectsInView classifies a view method that produced
// observable updates.
const ExcSideEffectsInView = "io.takamaka.code.lang.SideEffectsInViewMethodException"

// BuildView executes a method call request without committing it: the
// outcome of the run_* operations of a node. The gas limit is bounded
// by the consensus cap for view transactions.
func (e *Engine) BuildView(ref beans.TransactionReference, request beans.TransactionRequest) (beans.TransactionResponse, error) {
	switch r := request.(type) {
	case *beans.InstanceMethodCallRequest:
		return e.buildInstanceMethodCall(ref, r, true)
	case *beans.StaticMethodCallRequest:
		return e.buildStaticMethodCall(ref, r, true)
	}
	return nil, Rejected("only method calls can be run as views")
}

func (e *Engine) buildInstanceMethodCall(ref beans.TransactionReference, request *beans.InstanceMethodCallRequest, isView bool) (beans.TransactionResponse, error) {
	signatureRequired := !isView && !e.isCallToFaucet(request)
	r, err := e.newRun(ref, request, signatureRequired, isView)
	if err != nil {
		return nil, err
	}

	receiver, err := r.ctx.deserialize(request.Receiver)
	if err != nil {
		return nil, Rejected("the receiver %s cannot be deserialized", request.Receiver)
	}
	// calls to view methods may receive non-exported values
	if signatureRequired && !r.loader.IsExported(receiver.Class) {
		return nil, Rejected("the receiver of the request is not exported")
	}

	class, method, ok := r.loader.Env.ResolveMethod(receiver.Class, request.Method.Name, request.Method.Formals)
	if !ok {
		return nil, Rejected("unknown method %s", request.Method)
	}
	if method.Is(verification.FlagStatic) {
		return nil, Rejected("cannot call a static method")
	}
	if isView && !method.Is(verification.FlagView) {
		return nil, Rejected("cannot run a method not annotated as view")
	}

	if err := rejectNegativeAmount(method, request.Actuals); err != nil {
		return nil, err
	}

	// self-charged methods make the receiver pay
	if method.Is(verification.FlagSelfCharged) && e.Consensus.AllowSelfCharged {
		r.payer = receiver
	}

	if err := r.reserveGas(); err != nil {
		return nil, err
	}
	return r.finishMethodCall(request, class, method, receiver), nil
}

func (e *Engine) buildStaticMethodCall(ref beans.TransactionReference, request *beans.StaticMethodCallRequest, isView bool) (beans.TransactionResponse, error) {
	r, err := e.newRun(ref, request, !isView, isView)
	if err != nil {
		return nil, err
	}

	class, method, ok := r.loader.Env.ResolveMethod(string(request.Method.Class), request.Method.Name, request.Method.Formals)
	if !ok {
		return nil, Rejected("unknown method %s", request.Method)
	}
	if !method.Is(verification.FlagStatic) {
		return nil, Rejected("cannot call an instance method statically")
	}
	if isView && !method.Is(verification.FlagView) {
		return nil, Rejected("cannot run a method not annotated as view")
	}

	if err := r.reserveGas(); err != nil {
		return nil, err
	}
	return r.finishStaticCall(request, class, method), nil
}

// rejectNegativeAmount refuses transfers, mints and burns of negative
// amounts before any state change.
func rejectNegativeAmount(method *verification.Method, actuals []beans.StorageValue) error {
	monetary := method.Is(verification.FlagPayable) || method.Is(verification.FlagRedPayable) ||
		method.Name == "mint" || method.Name == "burn" || method.Name == "faucet"
	if !monetary {
		return nil
	}
	for _, a := range actuals {
		switch v := a.(type) {
		case beans.IntValue:
			if v < 0 {
				return Rejected("the amount cannot be negative")
			}
		case beans.LongValue:
			if v < 0 {
				return Rejected("the amount cannot be negative")
			}
		case beans.BigIntegerValue:
			if v.Value.Sign() < 0 {
				return Rejected("the amount cannot be negative")
			}
		}
	}
	return nil
}

// isCallToFaucet recognizes the unsigned faucet calls admitted when
// the consensus allows them.
func (e *Engine) isCallToFaucet(request *beans.InstanceMethodCallRequest) bool {
	return e.Consensus.AllowUnsignedFaucet &&
		request.Method.Name == "faucet" &&
		request.Method.Class == beans.ClassTypeGamete &&
		request.Caller == request.Receiver
}

// finishMethodCall runs the metered body of an instance call and maps
// its outcome to a response.
func (r *run) finishMethodCall(request *beans.InstanceMethodCallRequest, class *verification.Class, method *verification.Method, receiver *Object) beans.TransactionResponse {
	fail := func(err error) beans.TransactionResponse {
		r.resetOnFailure()
		cls, message, where := causeOf(err)
		return &beans.MethodCallFailedResponse{
			ClassOfCause:   cls,
			MessageOfCause: message,
			Where:          where,
			UpdateSet:      r.accountingUpdates(),
			Gas:            r.ctx.GasAccount(),
			GasPenalty:     r.penalty(),
		}
	}

	if err := r.chargeStorageOfRequest(request); err != nil {
		return fail(err)
	}
	args, err := r.deserializeActuals(request.Actuals)
	if err != nil {
		return fail(err)
	}

	result, err := r.ctx.invoke(class, method, receiver, args, r.caller, receiver == r.caller)
	return r.mapCallOutcome(method, append([]*Object{receiver}, objectsIn(args)...), result, err, fail)
}

// finishStaticCall runs the metered body of a static call and maps its
// outcome to a response.
func (r *run) finishStaticCall(request *beans.StaticMethodCallRequest, class *verification.Class, method *verification.Method) beans.TransactionResponse {
	fail := func(err error) beans.TransactionResponse {
		r.resetOnFailure()
		cls, message, where := causeOf(err)
		return &beans.MethodCallFailedResponse{
			ClassOfCause:   cls,
			MessageOfCause: message,
			Where:          where,
			UpdateSet:      r.accountingUpdates(),
			Gas:            r.ctx.GasAccount(),
			GasPenalty:     r.penalty(),
		}
	}

	if err := r.chargeStorageOfRequest(request); err != nil {
		return fail(err)
	}
	args, err := r.deserializeActuals(request.Actuals)
	if err != nil {
		return fail(err)
	}

	result, err := r.ctx.invoke(class, method, nil, args, r.caller, false)
	return r.mapCallOutcome(method, objectsIn(args), result, err, fail)
}

// objectsIn yields the storage objects among the deserialized
// actuals: the update extraction must walk what is reachable from
// them too.
func objectsIn(args []Value) []*Object {
	var out []*Object
	for _, a := range args {
		if o, ok := a.(*Object); ok && o != nil {
			out = append(out, o)
		}
	}
	return out
}

// mapCallOutcome turns the result of a method body into the proper
// response shape: exception, failed, void successful or successful.
func (r *run) mapCallOutcome(method *verification.Method, roots []*Object, result Value, err error, fail func(error) beans.TransactionResponse) beans.TransactionResponse {
	isView := method.Is(verification.FlagView)

	if err != nil {
		if isCheckedFor(err, method) {
			if verr := r.viewMustBeSatisfied(isView, roots); verr != nil {
				return fail(verr)
			}
			cls, message, where := causeOf(err)
			response := &beans.MethodCallExceptionResponse{
				ClassOfCause:   cls,
				MessageOfCause: message,
				Where:          where,
				EventRefs:      r.ctx.eventRefs(),
				Gas:            r.ctx.GasAccount(),
			}
			updates, uerr := r.successUpdates(roots)
			if uerr != nil {
				return fail(uerr)
			}
			response.UpdateSet = updates
			r.refund(response)
			if response.UpdateSet, uerr = r.successUpdates(roots); uerr != nil {
				return fail(uerr)
			}
			response.Gas = r.ctx.GasAccount()
			return response
		}
		return fail(err)
	}

	if verr := r.viewMustBeSatisfied(isView, roots); verr != nil {
		return fail(verr)
	}

	if method.Returns == nil {
		response := &beans.VoidMethodCallSuccessfulResponse{
			EventRefs: r.ctx.eventRefs(),
			Gas:       r.ctx.GasAccount(),
		}
		updates, uerr := r.successUpdates(roots)
		if uerr != nil {
			return fail(uerr)
		}
		response.UpdateSet = updates
		r.refund(response)
		if response.UpdateSet, uerr = r.successUpdates(roots); uerr != nil {
			return fail(uerr)
		}
		response.Gas = r.ctx.GasAccount()
		return response
	}

	serialized, uerr := toStorage(result, method.Returns)
	if uerr != nil {
		return fail(uerr)
	}
	response := &beans.MethodCallSuccessfulResponse{
		Result:    serialized,
		EventRefs: r.ctx.eventRefs(),
		Gas:       r.ctx.GasAccount(),
	}
	allRoots := roots
	if obj, ok := result.(*Object); ok {
		allRoots = append(allRoots, obj)
	}
	updates, uerr := r.successUpdates(allRoots)
	if uerr != nil {
		return fail(uerr)
	}
	response.UpdateSet = updates
	r.refund(response)
	if response.UpdateSet, uerr = r.successUpdates(allRoots); uerr != nil {
		return fail(uerr)
	}
	response.Gas = r.ctx.GasAccount()
	return response
}

// viewMustBeSatisfied validates the isolation of a view method: its
// extracted updates may only touch the nonce and balance of the
// caller.
func (r *run) viewMustBeSatisfied(isView bool, roots []*Object) error {
	if !isView {
		return nil
	}
	updates, err := r.successUpdates(roots)
	if err != nil {
		return err
	}
	for _, u := range updates {
		field, ok := u.(beans.UpdateOfField)
		if !ok {
			return &ContractException{Class: ExcSideEffectsInView, Message: "a view method created an object"}
		}
		if field.Ref != r.caller.Ref || (!field.Field.Equal(beans.BalanceField) && !field.Field.Equal(beans.NonceField)) {
			return &ContractException{Class: ExcSideEffectsInView, Message: "a view method modified " + field.Field.String()}
		}
	}
	return nil
}
