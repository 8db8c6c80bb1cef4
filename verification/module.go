// Package verification defines the bytecode module format of uploaded
// jars and checks that a module conforms to the contract-execution
// subset, before instrumentation.
package verification

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// Module is the unit of code installation: the parsed form of a jar.
type Module struct {
	Classes []*Class
}

// Class is a class definition inside a module.
type Class struct {
	Name       string
	Superclass string // empty for hierarchy roots
	Exported   bool
	Enum       bool
	Fields     []Field
	Methods    []*Method
	Pool       []Constant
}

// Field is an instance field of a class. Transient fields are not
// persisted and produce no updates.
type Field struct {
	Name      string
	Type      beans.StorageType
	Final     bool
	Transient bool
}

// Method flags.
const (
	FlagStatic uint16 = 1 << iota
	FlagPublic
	FlagNative
	FlagSynthetic
	FlagFromContract
	FlagPayable
	FlagRedPayable
	FlagView
	FlagThrowsExceptions
	FlagSelfCharged
)

// Method is a method or constructor of a class. Constructors use the
// name <init>, class initializers the name <clinit>.
type Method struct {
	Name    string
	Formals []beans.StorageType
	Returns beans.StorageType // nil for void and constructors
	Flags   uint16
	Locals  int // local slots, receiver and formals included
	Code    []byte
}

// ClassInitializerName is the conventional name of class initializers.
const ClassInitializerName = "<clinit>"

func (m *Method) Is(flag uint16) bool { return m.Flags&flag != 0 }

func (m *Method) IsConstructor() bool { return m.Name == beans.ConstructorName }

// Signature yields the bean signature of the method inside the given
// class.
func (m *Method) Signature(class string) beans.MethodSignature {
	return beans.MethodSignature{
		Class:   beans.ClassType(class),
		Name:    m.Name,
		Formals: m.Formals,
		Returns: m.Returns,
	}
}

// Constant pool entry kinds.
const (
	constKindString = 0
	constKindBigInt = 1
	constKindField  = 2
	constKindMethod = 3
	constKindClass  = 4
)

// Constant is a constant pool entry.
type Constant struct {
	Kind byte

	String string   // constKindString, constKindClass
	BigInt *big.Int // constKindBigInt

	// constKindField
	Field beans.FieldSignature

	// constKindMethod
	Method beans.MethodSignature

	// Static marks a reference to a static method.
	Static bool
}

// Constructors of pool entries.
func StringConst(s string) Constant   { return Constant{Kind: constKindString, String: s} }
func BigIntConst(v *big.Int) Constant { return Constant{Kind: constKindBigInt, BigInt: v} }
func ClassConst(name string) Constant { return Constant{Kind: constKindClass, String: name} }
func FieldConst(f beans.FieldSignature) Constant {
	return Constant{Kind: constKindField, Field: f}
}
func MethodConst(m beans.MethodSignature) Constant {
	return Constant{Kind: constKindMethod, Method: m}
}
func StaticMethodConst(m beans.MethodSignature) Constant {
	return Constant{Kind: constKindMethod, Method: m, Static: true}
}

// Pool entry predicates, used by the instrumenter and the engine.
func (k Constant) IsString() bool { return k.Kind == constKindString }
func (k Constant) IsBigInt() bool { return k.Kind == constKindBigInt }
func (k Constant) IsField() bool  { return k.Kind == constKindField }
func (k Constant) IsMethod() bool { return k.Kind == constKindMethod }
func (k Constant) IsClass() bool  { return k.Kind == constKindClass }

// ErrBadModule is the root cause of module parsing failures.
var ErrBadModule = errors.New("malformed module")

// moduleMagic begins every marshalled module.
var moduleMagic = []byte{'t', 'k', 'm', 1}

// Bytes yields the canonical marshalling of the module: the jar bytes
// installed by a jar-store transaction.
func (m *Module) Bytes() ([]byte, error) {
	return marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.Write(moduleMagic)
		ctx.WriteCompactInt(int32(len(m.Classes)))
		for _, c := range m.Classes {
			c.into(ctx)
		}
	})
}

func (c *Class) into(ctx *marshal.Context) {
	ctx.WriteString(c.Name)
	ctx.WriteString(c.Superclass)
	ctx.WriteBool(c.Exported)
	ctx.WriteBool(c.Enum)
	ctx.WriteCompactInt(int32(len(c.Fields)))
	for _, f := range c.Fields {
		ctx.WriteString(f.Name)
		f.Type.Into(ctx)
		ctx.WriteBool(f.Final)
		ctx.WriteBool(f.Transient)
	}
	ctx.WriteCompactInt(int32(len(c.Methods)))
	for _, m := range c.Methods {
		m.into(ctx)
	}
	ctx.WriteCompactInt(int32(len(c.Pool)))
	for _, k := range c.Pool {
		k.into(ctx)
	}
}

func (m *Method) into(ctx *marshal.Context) {
	ctx.WriteString(m.Name)
	ctx.WriteCompactInt(int32(len(m.Formals)))
	for _, f := range m.Formals {
		f.Into(ctx)
	}
	ctx.WriteBool(m.Returns != nil)
	if m.Returns != nil {
		m.Returns.Into(ctx)
	}
	ctx.WriteShort(int16(m.Flags))
	ctx.WriteCompactInt(int32(m.Locals))
	ctx.WriteBytes(m.Code)
}

func (k Constant) into(ctx *marshal.Context) {
	ctx.WriteByte(k.Kind)
	switch k.Kind {
	case constKindString, constKindClass:
		ctx.WriteString(k.String)
	case constKindBigInt:
		ctx.WriteBigInt(k.BigInt)
	case constKindField:
		k.Field.Into(ctx)
	case constKindMethod:
		k.Method.Into(ctx)
		ctx.WriteBool(k.Static)
	}
}

// ModuleFrom parses a marshalled module.
func ModuleFrom(jar []byte) (*Module, error) {
	ctx := marshal.FromBytes(jar)
	var magic [4]byte
	ctx.ReadFull(magic[:])
	if ctx.Err() != nil || string(magic[:]) != string(moduleMagic) {
		return nil, errors.Wrap(ErrBadModule, "bad magic")
	}
	n := ctx.ReadCompactInt()
	if n < 0 {
		return nil, ErrBadModule
	}
	m := &Module{}
	for i := int32(0); i < n; i++ {
		c, err := classFrom(ctx)
		if err != nil {
			return nil, err
		}
		m.Classes = append(m.Classes, c)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrBadModule, err.Error())
	}
	return m, nil
}

func classFrom(ctx *marshal.UnmarshalContext) (*Class, error) {
	c := &Class{
		Name:       ctx.ReadString(),
		Superclass: ctx.ReadString(),
		Exported:   ctx.ReadBool(),
		Enum:       ctx.ReadBool(),
	}
	nf := ctx.ReadCompactInt()
	for i := int32(0); i < nf; i++ {
		f := Field{Name: ctx.ReadString()}
		typ, err := beans.StorageTypeFrom(ctx)
		if err != nil {
			return nil, errors.Wrap(ErrBadModule, err.Error())
		}
		f.Type = typ
		f.Final = ctx.ReadBool()
		f.Transient = ctx.ReadBool()
		c.Fields = append(c.Fields, f)
	}
	nm := ctx.ReadCompactInt()
	for i := int32(0); i < nm; i++ {
		m, err := methodFrom(ctx)
		if err != nil {
			return nil, err
		}
		c.Methods = append(c.Methods, m)
	}
	np := ctx.ReadCompactInt()
	for i := int32(0); i < np; i++ {
		k, err := constantFrom(ctx)
		if err != nil {
			return nil, err
		}
		c.Pool = append(c.Pool, k)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(ErrBadModule, err.Error())
	}
	return c, nil
}

func methodFrom(ctx *marshal.UnmarshalContext) (*Method, error) {
	m := &Method{Name: ctx.ReadString()}
	nf := ctx.ReadCompactInt()
	for i := int32(0); i < nf; i++ {
		f, err := beans.StorageTypeFrom(ctx)
		if err != nil {
			return nil, errors.Wrap(ErrBadModule, err.Error())
		}
		m.Formals = append(m.Formals, f)
	}
	if ctx.ReadBool() {
		r, err := beans.StorageTypeFrom(ctx)
		if err != nil {
			return nil, errors.Wrap(ErrBadModule, err.Error())
		}
		m.Returns = r
	}
	m.Flags = uint16(ctx.ReadShort())
	m.Locals = int(ctx.ReadCompactInt())
	m.Code = ctx.ReadBytes()
	return m, ctx.Err()
}

func constantFrom(ctx *marshal.UnmarshalContext) (Constant, error) {
	k := Constant{Kind: ctx.ReadByte()}
	switch k.Kind {
	case constKindString, constKindClass:
		k.String = ctx.ReadString()
	case constKindBigInt:
		k.BigInt = ctx.ReadBigInt()
	case constKindField:
		f, err := beans.FieldSignatureFrom(ctx)
		if err != nil {
			return k, errors.Wrap(ErrBadModule, err.Error())
		}
		k.Field = f
	case constKindMethod:
		m, err := beans.MethodSignatureFrom(ctx)
		if err != nil {
			return k, errors.Wrap(ErrBadModule, err.Error())
		}
		k.Method = m
		k.Static = ctx.ReadBool()
	default:
		return k, errors.Wrapf(ErrBadModule, "unknown constant kind %d", k.Kind)
	}
	return k, ctx.Err()
}

// LookupMethod finds a method of the class with the given name and
// formal types.
func (c *Class) LookupMethod(name string, formals []beans.StorageType) (*Method, bool) {
	for _, m := range c.Methods {
		if m.Name != name || len(m.Formals) != len(formals) {
			continue
		}
		match := true
		for i := range formals {
			if m.Formals[i].Name() != formals[i].Name() {
				match = false
				break
			}
		}
		if match {
			return m, true
		}
	}
	return nil, false
}
