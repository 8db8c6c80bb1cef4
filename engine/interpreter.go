package engine

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/verification"
)

// ContractException is an exception raised by contract code. Whether
// it surfaces as a code-execution exception or as a transaction
// failure depends on the throws-exceptions annotation of the invoked
// code.
type ContractException struct {
	Class   string
	Message string
	Where   string
}

func (e *ContractException) Error() string {
	return e.Class + ": " + e.Message
}

// Runtime exception class names.
const (
	ExcArithmetic           = "java.lang.ArithmeticException"
	ExcNullPointer          = "java.lang.NullPointerException"
	ExcIllegalArgument      = "java.lang.IllegalArgumentException"
	ExcIllegalState         = "java.lang.IllegalStateException"
	ExcRequirementViolation = "io.takamaka.code.lang.RequirementViolationException"
	ExcInsufficientFunds    = "io.takamaka.code.lang.InsufficientFundsError"
	ExcNoSuchMethod         = "java.lang.NoSuchMethodException"
	ExcNonWhiteListedCall   = "io.takamaka.code.lang.NonWhiteListedCallException"
)

func throwAt(class, where, format string, args ...interface{}) error {
	return &ContractException{Class: class, Message: fmt.Sprintf(format, args...), Where: where}
}

// frame is one activation of the interpreter.
type frame struct {
	class  *verification.Class
	method *verification.Method
	locals []Value
	stack  []Value

	// caller is the contract on behalf of which a from-contract
	// method runs; onThis marks a method invoked by its own
	// receiver.
	caller *Object
	onThis bool
}

func (f *frame) push(v Value) {
	f.stack = append(f.stack, v)
}

func (f *frame) pop() (Value, error) {
	if len(f.stack) == 0 {
		return nil, errors.New("stack underflow")
	}
	v := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]
	return v, nil
}

func (f *frame) where(pc int) string {
	return fmt.Sprintf("%s.%s:%d", f.class.Name, f.method.Name, pc)
}

// invoke runs a method or constructor on the given receiver. The
// caller argument carries the implicit contract caller supplied to
// from-contract code; onThis marks calls of an object on itself.
func (ctx *Context) invoke(class *verification.Class, method *verification.Method, receiver *Object, args []Value, caller *Object, onThis bool) (Value, error) {
	if method.Is(verification.FlagNative) {
		return ctx.invokeNative(class, method, receiver, args, caller)
	}

	f := &frame{class: class, method: method, caller: caller, onThis: onThis}
	slots := method.Locals
	min := len(args)
	if !method.Is(verification.FlagStatic) {
		min++
	}
	if slots < min {
		slots = min
	}
	f.locals = make([]Value, slots)
	i := 0
	if !method.Is(verification.FlagStatic) {
		f.locals[0] = receiver
		i = 1
	}
	for _, a := range args {
		f.locals[i] = a
		i++
	}
	return ctx.run(f)
}

// run is the step loop over the instrumented code of a frame.
func (ctx *Context) run(f *frame) (Value, error) {
	code := f.method.Code
	pc := 0
	for pc < len(code) {
		inst, err := verification.ParseOp(code, pc)
		if err != nil {
			return nil, err
		}
		nextPC := pc + inst.Len

		switch inst.Op {
		case verification.OpNop:

		case verification.OpCharge:
			if err := ctx.ChargeCPU(big.NewInt(int64(inst.Operand))); err != nil {
				return nil, err
			}

		case verification.OpChargeRAM:
			if err := ctx.ChargeRAM(big.NewInt(int64(inst.Operand))); err != nil {
				return nil, err
			}

		case verification.OpPushNull:
			f.push(nil)
		case verification.OpPushTrue:
			f.push(true)
		case verification.OpPushFalse:
			f.push(false)
		case verification.OpPushInt:
			f.push(int64(int32(inst.Operand)))
		case verification.OpPushLong:
			f.push(int64(inst.Operand))

		case verification.OpPushConst:
			k := f.class.Pool[inst.Operand]
			if k.IsBigInt() {
				f.push(new(big.Int).Set(k.BigInt))
			} else {
				f.push(k.String)
			}

		case verification.OpLoad:
			f.push(f.locals[inst.Operand])
		case verification.OpStore:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			f.locals[inst.Operand] = v

		case verification.OpPop:
			if _, err := f.pop(); err != nil {
				return nil, err
			}
		case verification.OpDup:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			f.push(v)
			f.push(v)
		case verification.OpSwap:
			a, err := f.pop()
			if err != nil {
				return nil, err
			}
			b, err := f.pop()
			if err != nil {
				return nil, err
			}
			f.push(a)
			f.push(b)

		case verification.OpGetField:
			obj, err := f.popObject(f.where(pc))
			if err != nil {
				return nil, err
			}
			sig := f.class.Pool[inst.Operand].Field
			v, ok := obj.Get(sig)
			if !ok {
				v = zeroOf(sig.Type)
			}
			f.push(v)

		case verification.OpGetLazy:
			obj, err := f.popObject(f.where(pc))
			if err != nil {
				return nil, err
			}
			sig := f.class.Pool[inst.Operand].Field
			v, err := ctx.lazyFieldOf(obj, sig)
			if err != nil {
				return nil, err
			}
			f.push(v)

		case verification.OpPutField:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			obj, err := f.popObject(f.where(pc))
			if err != nil {
				return nil, err
			}
			obj.Set(f.class.Pool[inst.Operand].Field, v)

		case verification.OpGetStatic:
			sig := f.class.Pool[inst.Operand].Field
			owner, ok := ctx.loader.Env.Lookup(sig.Class)
			if !ok {
				return nil, throwAt(ExcIllegalState, f.where(pc), "unknown class %s", sig.Class)
			}
			table, err := ctx.staticsOf(owner)
			if err != nil {
				return nil, err
			}
			v, ok := table[sig]
			if !ok {
				v = zeroOf(sig.Type)
			}
			f.push(v)

		case verification.OpPutStatic:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			sig := f.class.Pool[inst.Operand].Field
			owner, ok := ctx.loader.Env.Lookup(sig.Class)
			if !ok {
				return nil, throwAt(ExcIllegalState, f.where(pc), "unknown class %s", sig.Class)
			}
			table, err := ctx.staticsOf(owner)
			if err != nil {
				return nil, err
			}
			table[sig] = v

		case verification.OpNew:
			sig := f.class.Pool[inst.Operand].Method
			args, err := f.popArgs(len(sig.Formals))
			if err != nil {
				return nil, err
			}
			obj, err := ctx.allocate(string(sig.Class))
			if err != nil {
				return nil, err
			}
			if err := ctx.construct(f, obj, sig, args); err != nil {
				return nil, err
			}
			f.push(obj)

		case verification.OpInvoke:
			sig := f.class.Pool[inst.Operand].Method
			args, err := f.popArgs(len(sig.Formals))
			if err != nil {
				return nil, err
			}
			recv, err := f.popObject(f.where(pc))
			if err != nil {
				return nil, err
			}
			v, err := ctx.dispatch(f, recv, sig, args)
			if err != nil {
				return nil, err
			}
			if sig.Returns != nil {
				f.push(v)
			}

		case verification.OpInvokeStatic:
			sig := f.class.Pool[inst.Operand].Method
			args, err := f.popArgs(len(sig.Formals))
			if err != nil {
				return nil, err
			}
			v, err := ctx.dispatchStatic(f, sig, args)
			if err != nil {
				return nil, err
			}
			if sig.Returns != nil {
				f.push(v)
			}

		case verification.OpAdd, verification.OpSub, verification.OpMul, verification.OpDiv, verification.OpMod:
			b, err := f.pop()
			if err != nil {
				return nil, err
			}
			a, err := f.pop()
			if err != nil {
				return nil, err
			}
			v, err := arith(inst.Op, a, b, f.where(pc))
			if err != nil {
				return nil, err
			}
			f.push(v)

		case verification.OpNeg:
			a, err := f.pop()
			if err != nil {
				return nil, err
			}
			switch av := a.(type) {
			case int64:
				f.push(-av)
			case float64:
				f.push(-av)
			case *big.Int:
				f.push(new(big.Int).Neg(av))
			default:
				return nil, throwAt(ExcIllegalState, f.where(pc), "cannot negate a %T", a)
			}

		case verification.OpEq, verification.OpNe, verification.OpLt, verification.OpLe, verification.OpGt, verification.OpGe:
			b, err := f.pop()
			if err != nil {
				return nil, err
			}
			a, err := f.pop()
			if err != nil {
				return nil, err
			}
			v, err := compare(inst.Op, a, b, f.where(pc))
			if err != nil {
				return nil, err
			}
			f.push(v)

		case verification.OpJump:
			pc = int(inst.Operand)
			continue

		case verification.OpJumpIf:
			v, err := f.pop()
			if err != nil {
				return nil, err
			}
			cond, ok := v.(bool)
			if !ok {
				return nil, throwAt(ExcIllegalState, f.where(pc), "condition is not a boolean")
			}
			if cond {
				pc = int(inst.Operand)
				continue
			}

		case verification.OpReturn:
			return nil, nil

		case verification.OpReturnValue:
			return f.pop()

		case verification.OpThrow:
			class := f.class.Pool[inst.Operand].String
			msg, err := f.pop()
			if err != nil {
				return nil, err
			}
			text, _ := msg.(string)
			return nil, &ContractException{Class: class, Message: text, Where: f.where(pc)}

		case verification.OpFromContract:
			if err := ctx.fromContract(f, f.locals[0]); err != nil {
				return nil, err
			}

		case verification.OpPayableFromContract:
			if err := ctx.payableFromContract(f, f.locals[0], f.locals[1]); err != nil {
				return nil, err
			}

		default:
			return nil, throwAt(ExcIllegalState, f.where(pc), "unexpected bytecode %s", inst.Op)
		}

		pc = nextPC
	}
	return nil, nil
}

func (f *frame) popObject(where string) (*Object, error) {
	v, err := f.pop()
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, throwAt(ExcNullPointer, where, "null receiver")
	}
	obj, ok := v.(*Object)
	if !ok {
		return nil, throwAt(ExcIllegalState, where, "receiver is not a storage object")
	}
	return obj, nil
}

// popArgs pops n arguments, restoring their call order.
func (f *frame) popArgs(n int) ([]Value, error) {
	args := make([]Value, n)
	for i := n - 1; i >= 0; i-- {
		v, err := f.pop()
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

// construct runs a constructor on a freshly allocated object.
func (ctx *Context) construct(f *frame, obj *Object, sig beans.MethodSignature, args []Value) error {
	class, ctor, ok := ctx.loader.Env.ResolveMethod(string(sig.Class), beans.ConstructorName, sig.Formals)
	if !ok {
		return throwAt(ExcNoSuchMethod, "", "%s", sig)
	}
	caller, onThis := callerFor(f, obj)
	_, err := ctx.invoke(class, ctor, obj, args, caller, onThis)
	return err
}

// dispatch resolves an instance call from the runtime class of the
// receiver and runs it.
func (ctx *Context) dispatch(f *frame, recv *Object, sig beans.MethodSignature, args []Value) (Value, error) {
	start := recv.Class
	if sig.IsConstructor() {
		// explicit constructor calls bind statically (super calls)
		start = string(sig.Class)
	}
	class, method, ok := ctx.loader.Env.ResolveMethod(start, sig.Name, sig.Formals)
	if !ok {
		return nil, throwAt(ExcNoSuchMethod, "", "%s on %s", sig, recv.Class)
	}
	caller, onThis := callerFor(f, recv)
	return ctx.invoke(class, method, recv, args, caller, onThis)
}

// dispatchStatic resolves and runs a static call; unresolved targets
// are white-listed runtime helpers.
func (ctx *Context) dispatchStatic(f *frame, sig beans.MethodSignature, args []Value) (Value, error) {
	class, method, ok := ctx.loader.Env.ResolveMethod(string(sig.Class), sig.Name, sig.Formals)
	if ok {
		caller, _ := callerFor(f, nil)
		return ctx.invoke(class, method, nil, args, caller, false)
	}
	if verification.IsWhiteListedMethod(sig, true) {
		return whiteListedStatic(sig, args)
	}
	return nil, throwAt(ExcNonWhiteListedCall, "", "%s", sig)
}

// callerFor yields the implicit caller supplied to a callee invoked
// from the frame f: the receiver of f, or the caller of f inside
// static or chained from-contract code.
func callerFor(f *frame, callee *Object) (*Object, bool) {
	var caller *Object
	if f != nil {
		if !f.method.Is(verification.FlagStatic) {
			caller, _ = f.locals[0].(*Object)
		}
		if caller == nil {
			caller = f.caller
		}
	}
	return caller, callee != nil && caller == callee
}

// fromContract stores the caller on the callee, after checking that
// it is contract code.
func (ctx *Context) fromContract(f *frame, callee Value) error {
	obj, ok := callee.(*Object)
	if !ok || obj == nil {
		return throwAt(ExcIllegalState, "", "from-contract code without a receiver")
	}
	if f.caller == nil || !ctx.loader.IsContract(f.caller.Class) {
		return throwAt(ExcIllegalState, "", "from-contract code can only be called from a contract")
	}
	obj.caller = f.caller
	return nil
}

// payableFromContract additionally transfers the amount from the payer
// to the callee, before the body runs.
func (ctx *Context) payableFromContract(f *frame, callee Value, amount Value) error {
	if err := ctx.fromContract(f, callee); err != nil {
		return err
	}
	obj := callee.(*Object)

	payer := f.caller
	if f.onThis {
		payer = obj
	}

	var howMuch *big.Int
	switch a := amount.(type) {
	case int64:
		howMuch = big.NewInt(a)
	case *big.Int:
		howMuch = a
	default:
		return throwAt(ExcIllegalArgument, "", "payable amount is not a number")
	}
	if howMuch.Sign() < 0 {
		return throwAt(ExcIllegalArgument, "", "payable amount cannot be negative")
	}

	payerBalance := balanceOf(payer)
	if payerBalance.Cmp(howMuch) < 0 {
		return throwAt(ExcInsufficientFunds, "", "balance %s is less than %s", payerBalance, howMuch)
	}
	setBalance(payer, new(big.Int).Sub(payerBalance, howMuch))
	setBalance(obj, new(big.Int).Add(balanceOf(obj), howMuch))
	return nil
}

// arith implements the numeric bytecodes over int64, float64, big
// integers and, for ADD, strings.
func arith(op verification.Op, a, b Value, where string) (Value, error) {
	if as, ok := a.(string); ok && op == verification.OpAdd {
		bs, ok := b.(string)
		if !ok {
			bs = fmt.Sprint(b)
		}
		return as + bs, nil
	}

	if ab, bb, ok := bigPair(a, b); ok {
		out := new(big.Int)
		switch op {
		case verification.OpAdd:
			return out.Add(ab, bb), nil
		case verification.OpSub:
			return out.Sub(ab, bb), nil
		case verification.OpMul:
			return out.Mul(ab, bb), nil
		case verification.OpDiv:
			if bb.Sign() == 0 {
				return nil, throwAt(ExcArithmetic, where, "division by zero")
			}
			return out.Quo(ab, bb), nil
		case verification.OpMod:
			if bb.Sign() == 0 {
				return nil, throwAt(ExcArithmetic, where, "division by zero")
			}
			return out.Rem(ab, bb), nil
		}
	}

	if af, bf, ok := floatPair(a, b); ok {
		switch op {
		case verification.OpAdd:
			return af + bf, nil
		case verification.OpSub:
			return af - bf, nil
		case verification.OpMul:
			return af * bf, nil
		case verification.OpDiv:
			return af / bf, nil
		case verification.OpMod:
			return nil, throwAt(ExcArithmetic, where, "modulo of floating point values")
		}
	}

	ai, aok := a.(int64)
	bi, bok := b.(int64)
	if !aok || !bok {
		return nil, throwAt(ExcIllegalState, where, "arithmetic on %T and %T", a, b)
	}
	switch op {
	case verification.OpAdd:
		return ai + bi, nil
	case verification.OpSub:
		return ai - bi, nil
	case verification.OpMul:
		return ai * bi, nil
	case verification.OpDiv:
		if bi == 0 {
			return nil, throwAt(ExcArithmetic, where, "division by zero")
		}
		return ai / bi, nil
	default:
		if bi == 0 {
			return nil, throwAt(ExcArithmetic, where, "division by zero")
		}
		return ai % bi, nil
	}
}

func bigPair(a, b Value) (*big.Int, *big.Int, bool) {
	ab, aok := a.(*big.Int)
	bb, bok := b.(*big.Int)
	if !aok && !bok {
		return nil, nil, false
	}
	if !aok {
		ai, ok := a.(int64)
		if !ok {
			return nil, nil, false
		}
		ab = big.NewInt(ai)
	}
	if !bok {
		bi, ok := b.(int64)
		if !ok {
			return nil, nil, false
		}
		bb = big.NewInt(bi)
	}
	return ab, bb, true
}

func floatPair(a, b Value) (float64, float64, bool) {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if !aok && !bok {
		return 0, 0, false
	}
	if !aok {
		ai, ok := a.(int64)
		if !ok {
			return 0, 0, false
		}
		af = float64(ai)
	}
	if !bok {
		bi, ok := b.(int64)
		if !ok {
			return 0, 0, false
		}
		bf = float64(bi)
	}
	return af, bf, true
}

// compare implements the comparison bytecodes.
func compare(op verification.Op, a, b Value, where string) (bool, error) {
	if op == verification.OpEq || op == verification.OpNe {
		eq := valuesEqual(a, b)
		if op == verification.OpNe {
			return !eq, nil
		}
		return eq, nil
	}

	var c int
	switch {
	case isNumeric(a) && isNumeric(b):
		if ab, bb, ok := bigPair(a, b); ok {
			c = ab.Cmp(bb)
		} else if af, bf, ok := floatPair(a, b); ok {
			switch {
			case af < bf:
				c = -1
			case af > bf:
				c = 1
			}
		} else {
			ai := a.(int64)
			bi := b.(int64)
			switch {
			case ai < bi:
				c = -1
			case ai > bi:
				c = 1
			}
		}
	default:
		as, aok := a.(string)
		bs, bok := b.(string)
		if !aok || !bok {
			return false, throwAt(ExcIllegalState, where, "cannot order %T and %T", a, b)
		}
		c = strings.Compare(as, bs)
	}

	switch op {
	case verification.OpLt:
		return c < 0, nil
	case verification.OpLe:
		return c <= 0, nil
	case verification.OpGt:
		return c > 0, nil
	default:
		return c >= 0, nil
	}
}

func isNumeric(v Value) bool {
	switch v.(type) {
	case int64, float64, *big.Int:
		return true
	}
	return false
}
