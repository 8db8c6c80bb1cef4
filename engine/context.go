package engine

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/verification"
)

// Context is the per-transaction execution context: it exclusively
// owns the gas counters, the deserialization cache, the emitted events
// and the scratch static fields. It is created fresh for each
// execution and destroyed at its end.
type Context struct {
	engine  *Engine
	loader  *ClassLoader
	current beans.TransactionReference

	gasLimit   *big.Int
	remaining  *big.Int
	gasCPU     *big.Int
	gasRAM     *big.Int
	gasStorage *big.Int

	now int64

	nextProgressive uint64
	cache           map[beans.StorageReference]*Object
	events          []*Object

	// per-transaction static fields, keyed by class
	statics    map[string]map[beans.FieldSignature]Value
	clinitDone map[string]bool
}

func newContext(e *Engine, loader *ClassLoader, current beans.TransactionReference, gasLimit *big.Int, now int64) *Context {
	return &Context{
		engine:     e,
		loader:     loader,
		current:    current,
		gasLimit:   new(big.Int).Set(gasLimit),
		remaining:  new(big.Int).Set(gasLimit),
		gasCPU:     new(big.Int),
		gasRAM:     new(big.Int),
		gasStorage: new(big.Int),
		now:        now,
		cache:      make(map[beans.StorageReference]*Object),
		statics:    make(map[string]map[beans.FieldSignature]Value),
		clinitDone: make(map[string]bool),
	}
}

// charge moves gas from the remaining budget to a counter.
func (ctx *Context) charge(counter *big.Int, amount *big.Int) error {
	if amount.Sign() < 0 {
		return errors.New("negative gas charge")
	}
	if ctx.remaining.Cmp(amount) < 0 {
		counter.Add(counter, ctx.remaining)
		ctx.remaining.SetInt64(0)
		return ErrOutOfGas
	}
	ctx.remaining.Sub(ctx.remaining, amount)
	counter.Add(counter, amount)
	return nil
}

// ChargeCPU consumes CPU gas.
func (ctx *Context) ChargeCPU(amount *big.Int) error { return ctx.charge(ctx.gasCPU, amount) }

// ChargeRAM consumes RAM gas.
func (ctx *Context) ChargeRAM(amount *big.Int) error { return ctx.charge(ctx.gasRAM, amount) }

// ChargeStorage consumes storage gas.
func (ctx *Context) ChargeStorage(amount *big.Int) error { return ctx.charge(ctx.gasStorage, amount) }

// Remaining yields the gas still available.
func (ctx *Context) Remaining() *big.Int { return new(big.Int).Set(ctx.remaining) }

// GasAccount yields the consumed gas split by kind.
func (ctx *Context) GasAccount() beans.GasAccount {
	return beans.GasAccount{
		ForCPU:     new(big.Int).Set(ctx.gasCPU),
		ForRAM:     new(big.Int).Set(ctx.gasRAM),
		ForStorage: new(big.Int).Set(ctx.gasStorage),
	}
}

// allocate creates a fresh storage object of the given runtime class,
// assigning the next progressive of the current transaction. Fields
// start at their canonical defaults; the balances and the nonce of
// accounts start at zero.
func (ctx *Context) allocate(class string) (*Object, error) {
	c, ok := ctx.loader.Env.Lookup(class)
	if !ok {
		return nil, errors.Wrapf(ErrDeserialization, "unknown class %s", class)
	}
	o := newObject(beans.StorageReference{Transaction: ctx.current, Progressive: ctx.nextProgressive}, c.Name, false)
	ctx.nextProgressive++
	ctx.cache[o.Ref] = o

	for _, sig := range ctx.loader.Env.PersistentFields(class) {
		o.Set(sig, zeroOf(sig.Type))
	}
	if ctx.loader.IsContract(class) {
		o.Set(beans.BalanceField, new(big.Int))
	}
	if ctx.loader.IsEOA(class) {
		o.Set(beans.NonceField, new(big.Int))
	}
	if ctx.loader.IsGamete(class) {
		o.Set(beans.RedBalanceField, new(big.Int))
	}
	return o, nil
}

// event records an emitted event.
func (ctx *Context) event(o *Object) {
	ctx.events = append(ctx.events, o)
}

// eventRefs yields the storage references of the emitted events, in
// emission order.
func (ctx *Context) eventRefs() []beans.StorageReference {
	refs := make([]beans.StorageReference, len(ctx.events))
	for i, e := range ctx.events {
		refs[i] = e.Ref
	}
	return refs
}

// balanceOf reads the balance of a contract, zero when unset.
func balanceOf(o *Object) *big.Int {
	if v, ok := o.Get(beans.BalanceField); ok {
		if b, ok := v.(*big.Int); ok {
			return b
		}
	}
	return new(big.Int)
}

func setBalance(o *Object, v *big.Int) {
	o.Set(beans.BalanceField, v)
}

// nonceOf reads the nonce of an account, zero when unset.
func nonceOf(o *Object) *big.Int {
	if v, ok := o.Get(beans.NonceField); ok {
		if b, ok := v.(*big.Int); ok {
			return b
		}
	}
	return new(big.Int)
}

func setNonce(o *Object, v *big.Int) {
	o.Set(beans.NonceField, v)
}

// staticsOf yields the static field table of a class, running its
// initializer on first access.
func (ctx *Context) staticsOf(class *verification.Class) (map[beans.FieldSignature]Value, error) {
	table, ok := ctx.statics[class.Name]
	if !ok {
		table = make(map[beans.FieldSignature]Value)
		ctx.statics[class.Name] = table
	}
	if !ctx.clinitDone[class.Name] {
		ctx.clinitDone[class.Name] = true
		if clinit, ok := class.LookupMethod(verification.ClassInitializerName, nil); ok {
			if _, err := ctx.invoke(class, clinit, nil, nil, nil, false); err != nil {
				return nil, err
			}
		}
	}
	return table, nil
}
