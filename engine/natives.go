package engine

import (
	"fmt"
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/marshal"
	"github.com/omahs/hotmoka/store"
	"github.com/omahs/hotmoka/verification"
)

// invokeNative runs a base-library method implemented by the runtime.
// The explicit context passing replaces the thread-local "current
// response creator" of classic engines.
func (ctx *Context) invokeNative(class *verification.Class, method *verification.Method, receiver *Object, args []Value, caller *Object) (Value, error) {
	switch class.Name + "." + method.Name {
	case ClassContract + ".balance":
		return new(big.Int).Set(balanceOf(receiver)), nil

	case ClassContract + ".caller":
		if receiver.caller == nil {
			return nil, throwAt(ExcIllegalState, "", "caller is only available inside from-contract code")
		}
		return receiver.caller, nil

	case ClassTakamaka + ".require":
		cond, _ := args[0].(bool)
		if !cond {
			msg, _ := args[1].(string)
			return nil, &ContractException{Class: ExcRequirementViolation, Message: msg}
		}
		return nil, nil

	case ClassTakamaka + ".event":
		ev, ok := args[0].(*Object)
		if !ok || ev == nil {
			return nil, throwAt(ExcIllegalArgument, "", "an event cannot be null")
		}
		ctx.event(ev)
		return nil, nil

	case ClassTakamaka + ".now":
		return ctx.now, nil

	case ClassEOA + ".nonce":
		return new(big.Int).Set(nonceOf(receiver)), nil

	case ClassEOA + ".publicKey":
		if v, ok := receiver.Get(beans.PublicKeyField); ok {
			return v, nil
		}
		return "", nil

	case ClassEvent + "." + beans.ConstructorName:
		if caller == nil || !ctx.loader.IsContract(caller.Class) {
			return nil, throwAt(ExcIllegalState, "", "events can only be created from contract code")
		}
		receiver.Set(eventCreatorField, caller)
		receiver.caller = caller
		return nil, nil

	case ClassGamete + ".mint":
		return nil, ctx.mintBurn(receiver, args, false)

	case ClassGamete + ".burn":
		return nil, ctx.mintBurn(receiver, args, true)

	case ClassGamete + ".faucet":
		return nil, ctx.faucet(receiver, args)
	}
	return nil, throwAt(ExcNoSuchMethod, "", "native %s.%s", class.Name, method.Name)
}

// mintBurn creates or destroys coins on an account. Only the gamete
// may do it, and only when the consensus allows.
func (ctx *Context) mintBurn(gamete *Object, args []Value, burn bool) error {
	if !ctx.engine.Consensus.AllowMintBurnFromGamete {
		return throwAt(ExcIllegalState, "", "the consensus does not allow mint and burn")
	}
	if err := ctx.mustBeTheGamete(gamete); err != nil {
		return err
	}
	account, ok := args[0].(*Object)
	if !ok || account == nil {
		return throwAt(ExcIllegalArgument, "", "the account cannot be null")
	}
	amount, ok := args[1].(*big.Int)
	if !ok {
		return throwAt(ExcIllegalArgument, "", "the amount must be a big integer")
	}
	if amount.Sign() < 0 {
		if burn {
			return throwAt(ExcIllegalArgument, "", "the amount of coins to burn cannot be negative")
		}
		return throwAt(ExcIllegalArgument, "", "the amount of coins to mint cannot be negative")
	}

	balance := balanceOf(account)
	if burn {
		final := new(big.Int).Sub(balance, amount)
		if final.Sign() < 0 {
			return throwAt(ExcIllegalArgument, "", "the final balance after burning cannot be negative")
		}
		setBalance(account, final)
		return nil
	}
	setBalance(account, new(big.Int).Add(balance, amount))
	return nil
}

// faucet transfers coins from the gamete without consuming its
// signature; admission of the unsigned request is ruled by the
// consensus.
func (ctx *Context) faucet(gamete *Object, args []Value) error {
	if err := ctx.mustBeTheGamete(gamete); err != nil {
		return err
	}
	dest, ok := args[0].(*Object)
	if !ok || dest == nil {
		return throwAt(ExcIllegalArgument, "", "the destination cannot be null")
	}
	amount, ok := args[1].(*big.Int)
	if !ok || amount.Sign() < 0 {
		return throwAt(ExcIllegalArgument, "", "the amount must be a non-negative big integer")
	}
	balance := balanceOf(gamete)
	if balance.Cmp(amount) < 0 {
		return throwAt(ExcInsufficientFunds, "", "the faucet has only %s coins", balance)
	}
	setBalance(gamete, new(big.Int).Sub(balance, amount))
	setBalance(dest, new(big.Int).Add(balanceOf(dest), amount))
	return nil
}

// mustBeTheGamete checks that the receiver is the distinguished
// account created at genesis.
func (ctx *Context) mustBeTheGamete(o *Object) error {
	raw, err := ctx.engine.Store.GetInfoUncommitted(store.InfoGamete)
	if err != nil {
		return throwAt(ExcIllegalState, "", "the node has no gamete")
	}
	ref := beans.StorageReferenceFrom(marshal.FromBytes(raw))
	if o == nil || o.Ref != ref {
		return throwAt(ExcIllegalState, "", "only the gamete can do this")
	}
	return nil
}

// whiteListedStatic implements the static helpers of the white-listing
// wizard that resolve outside every installed jar.
func whiteListedStatic(sig beans.MethodSignature, args []Value) (Value, error) {
	switch string(sig.Class) + "." + sig.Name {
	case "java.lang.Math.max":
		a, b, ok := intPair(args)
		if !ok {
			return nil, throwAt(ExcIllegalArgument, "", "max expects two integers")
		}
		if a > b {
			return a, nil
		}
		return b, nil

	case "java.lang.Math.min":
		a, b, ok := intPair(args)
		if !ok {
			return nil, throwAt(ExcIllegalArgument, "", "min expects two integers")
		}
		if a < b {
			return a, nil
		}
		return b, nil

	case "java.lang.Math.abs":
		a, ok := args[0].(int64)
		if !ok {
			return nil, throwAt(ExcIllegalArgument, "", "abs expects an integer")
		}
		if a < 0 {
			return -a, nil
		}
		return a, nil

	case "java.lang.String.valueOf":
		return fmt.Sprint(args[0]), nil

	case "java.math.BigInteger.valueOf":
		a, ok := args[0].(int64)
		if !ok {
			return nil, throwAt(ExcIllegalArgument, "", "valueOf expects an integer")
		}
		return big.NewInt(a), nil
	}
	return nil, throwAt(ExcNonWhiteListedCall, "", "%s", sig)
}

func intPair(args []Value) (int64, int64, bool) {
	if len(args) != 2 {
		return 0, 0, false
	}
	a, aok := args[0].(int64)
	b, bok := args[1].(int64)
	return a, b, aok && bok
}
