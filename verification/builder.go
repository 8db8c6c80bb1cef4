package verification

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/omahs/hotmoka/beans"
)

// ModuleBuilder assembles modules programmatically. It is used to
// build the base library and the contracts of the tests.
type ModuleBuilder struct {
	module *Module
}

// NewModuleBuilder yields an empty builder.
func NewModuleBuilder() *ModuleBuilder {
	return &ModuleBuilder{module: &Module{}}
}

// Build yields the assembled module.
func (b *ModuleBuilder) Build() *Module { return b.module }

// BuildBytes yields the marshalled jar of the assembled module.
func (b *ModuleBuilder) BuildBytes() []byte {
	jar, err := b.module.Bytes()
	if err != nil {
		// assembling in memory cannot fail
		panic(err)
	}
	return jar
}

// Class opens a new class of the module.
func (b *ModuleBuilder) Class(name, superclass string) *ClassBuilder {
	c := &Class{Name: name, Superclass: superclass}
	b.module.Classes = append(b.module.Classes, c)
	return &ClassBuilder{class: c, pool: make(map[string]int)}
}

// ClassBuilder assembles one class.
type ClassBuilder struct {
	class *Class
	pool  map[string]int
}

// Exported marks the class as callable from outside the node.
func (cb *ClassBuilder) Exported() *ClassBuilder {
	cb.class.Exported = true
	return cb
}

// Enum marks the class as an enumeration.
func (cb *ClassBuilder) Enum() *ClassBuilder {
	cb.class.Enum = true
	return cb
}

// Field adds an instance field.
func (cb *ClassBuilder) Field(name string, typ beans.StorageType) *ClassBuilder {
	cb.class.Fields = append(cb.class.Fields, Field{Name: name, Type: typ})
	return cb
}

// TransientField adds a field excluded from persistence.
func (cb *ClassBuilder) TransientField(name string, typ beans.StorageType) *ClassBuilder {
	cb.class.Fields = append(cb.class.Fields, Field{Name: name, Type: typ, Transient: true})
	return cb
}

// NativeMethod adds a method implemented by the runtime.
func (cb *ClassBuilder) NativeMethod(name string, flags uint16, returns beans.StorageType, formals ...beans.StorageType) *ClassBuilder {
	cb.class.Methods = append(cb.class.Methods, &Method{
		Name:    name,
		Formals: formals,
		Returns: returns,
		Flags:   flags | FlagNative,
	})
	return cb
}

// Method opens the code of a method.
func (cb *ClassBuilder) Method(name string, flags uint16, returns beans.StorageType, formals ...beans.StorageType) *CodeBuilder {
	m := &Method{Name: name, Formals: formals, Returns: returns, Flags: flags}
	cb.class.Methods = append(cb.class.Methods, m)
	slots := len(formals)
	if !m.Is(FlagStatic) {
		slots++
	}
	return &CodeBuilder{class: cb, method: m, maxSlot: slots - 1, labels: make(map[string]int)}
}

// Constructor opens the code of a constructor.
func (cb *ClassBuilder) Constructor(flags uint16, formals ...beans.StorageType) *CodeBuilder {
	return cb.Method(beans.ConstructorName, flags, nil, formals...)
}

// constant interns a pool entry and yields its index.
func (cb *ClassBuilder) constant(k Constant) int {
	key := constKey(k)
	if i, ok := cb.pool[key]; ok {
		return i
	}
	cb.class.Pool = append(cb.class.Pool, k)
	i := len(cb.class.Pool) - 1
	cb.pool[key] = i
	return i
}

func constKey(k Constant) string {
	switch k.Kind {
	case constKindString:
		return "s:" + k.String
	case constKindClass:
		return "c:" + k.String
	case constKindBigInt:
		return "b:" + k.BigInt.String()
	case constKindField:
		return "f:" + k.Field.String()
	case constKindMethod:
		return fmt.Sprintf("m:%v:%s", k.Static, k.Method)
	}
	return ""
}

// CodeBuilder assembles the bytecode of one method.
type CodeBuilder struct {
	class   *ClassBuilder
	method  *Method
	code    []byte
	maxSlot int

	labels map[string]int
	fixups []fixup
}

type fixup struct {
	at    int
	label string
}

func (b *CodeBuilder) op(op Op) *CodeBuilder {
	b.code = append(b.code, byte(op))
	return b
}

func (b *CodeBuilder) op16(op Op, v uint16) *CodeBuilder {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], v)
	b.code = append(b.code, byte(op), buf[0], buf[1])
	return b
}

// Nop, stack and constant operations.

func (b *CodeBuilder) Nop() *CodeBuilder       { return b.op(OpNop) }
func (b *CodeBuilder) PushNull() *CodeBuilder  { return b.op(OpPushNull) }
func (b *CodeBuilder) PushTrue() *CodeBuilder  { return b.op(OpPushTrue) }
func (b *CodeBuilder) PushFalse() *CodeBuilder { return b.op(OpPushFalse) }
func (b *CodeBuilder) Pop() *CodeBuilder       { return b.op(OpPop) }
func (b *CodeBuilder) Dup() *CodeBuilder       { return b.op(OpDup) }
func (b *CodeBuilder) Swap() *CodeBuilder      { return b.op(OpSwap) }

func (b *CodeBuilder) PushInt(v int32) *CodeBuilder {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	b.code = append(b.code, byte(OpPushInt), buf[0], buf[1], buf[2], buf[3])
	return b
}

func (b *CodeBuilder) PushLong(v int64) *CodeBuilder {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	b.code = append(b.code, byte(OpPushLong))
	b.code = append(b.code, buf[:]...)
	return b
}

func (b *CodeBuilder) PushString(s string) *CodeBuilder {
	return b.op16(OpPushConst, uint16(b.class.constant(StringConst(s))))
}

func (b *CodeBuilder) PushBigInt(v *big.Int) *CodeBuilder {
	return b.op16(OpPushConst, uint16(b.class.constant(BigIntConst(v))))
}

// Locals.

func (b *CodeBuilder) Load(slot int) *CodeBuilder {
	b.track(slot)
	b.code = append(b.code, byte(OpLoad), byte(slot))
	return b
}

func (b *CodeBuilder) Store(slot int) *CodeBuilder {
	b.track(slot)
	b.code = append(b.code, byte(OpStore), byte(slot))
	return b
}

func (b *CodeBuilder) track(slot int) {
	if slot > b.maxSlot {
		b.maxSlot = slot
	}
}

// Fields.

func (b *CodeBuilder) GetField(sig beans.FieldSignature) *CodeBuilder {
	return b.op16(OpGetField, uint16(b.class.constant(FieldConst(sig))))
}

func (b *CodeBuilder) PutField(sig beans.FieldSignature) *CodeBuilder {
	return b.op16(OpPutField, uint16(b.class.constant(FieldConst(sig))))
}

func (b *CodeBuilder) GetStatic(sig beans.FieldSignature) *CodeBuilder {
	return b.op16(OpGetStatic, uint16(b.class.constant(FieldConst(sig))))
}

func (b *CodeBuilder) PutStatic(sig beans.FieldSignature) *CodeBuilder {
	return b.op16(OpPutStatic, uint16(b.class.constant(FieldConst(sig))))
}

// Calls.

func (b *CodeBuilder) New(sig beans.MethodSignature) *CodeBuilder {
	return b.op16(OpNew, uint16(b.class.constant(MethodConst(sig))))
}

func (b *CodeBuilder) Invoke(sig beans.MethodSignature) *CodeBuilder {
	return b.op16(OpInvoke, uint16(b.class.constant(MethodConst(sig))))
}

func (b *CodeBuilder) InvokeStatic(sig beans.MethodSignature) *CodeBuilder {
	return b.op16(OpInvokeStatic, uint16(b.class.constant(StaticMethodConst(sig))))
}

// Arithmetic and comparison.

func (b *CodeBuilder) Add() *CodeBuilder { return b.op(OpAdd) }
func (b *CodeBuilder) Sub() *CodeBuilder { return b.op(OpSub) }
func (b *CodeBuilder) Mul() *CodeBuilder { return b.op(OpMul) }
func (b *CodeBuilder) Div() *CodeBuilder { return b.op(OpDiv) }
func (b *CodeBuilder) Mod() *CodeBuilder { return b.op(OpMod) }
func (b *CodeBuilder) Neg() *CodeBuilder { return b.op(OpNeg) }
func (b *CodeBuilder) Eq() *CodeBuilder  { return b.op(OpEq) }
func (b *CodeBuilder) Ne() *CodeBuilder  { return b.op(OpNe) }
func (b *CodeBuilder) Lt() *CodeBuilder  { return b.op(OpLt) }
func (b *CodeBuilder) Le() *CodeBuilder  { return b.op(OpLe) }
func (b *CodeBuilder) Gt() *CodeBuilder  { return b.op(OpGt) }
func (b *CodeBuilder) Ge() *CodeBuilder  { return b.op(OpGe) }

// Control flow. Labels are resolved by Done.

func (b *CodeBuilder) Label(name string) *CodeBuilder {
	b.labels[name] = len(b.code)
	return b
}

func (b *CodeBuilder) Jump(label string) *CodeBuilder {
	b.fixups = append(b.fixups, fixup{at: len(b.code) + 1, label: label})
	return b.op16(OpJump, 0)
}

func (b *CodeBuilder) JumpIf(label string) *CodeBuilder {
	b.fixups = append(b.fixups, fixup{at: len(b.code) + 1, label: label})
	return b.op16(OpJumpIf, 0)
}

func (b *CodeBuilder) Return() *CodeBuilder      { return b.op(OpReturn) }
func (b *CodeBuilder) ReturnValue() *CodeBuilder { return b.op(OpReturnValue) }

func (b *CodeBuilder) Throw(class string) *CodeBuilder {
	return b.op16(OpThrow, uint16(b.class.constant(ClassConst(class))))
}

// Raw appends a raw opcode, for tests that assemble illegal code.
func (b *CodeBuilder) Raw(bytes ...byte) *CodeBuilder {
	b.code = append(b.code, bytes...)
	return b
}

// Done patches the labels and closes the method, yielding the class
// builder for chaining.
func (b *CodeBuilder) Done() *ClassBuilder {
	for _, f := range b.fixups {
		target, ok := b.labels[f.label]
		if !ok {
			panic(fmt.Sprintf("undefined label %q in %s", f.label, b.method.Name))
		}
		binary.BigEndian.PutUint16(b.code[f.at:], uint16(target))
	}
	b.method.Code = b.code
	b.method.Locals = b.maxSlot + 1
	return b.class
}
