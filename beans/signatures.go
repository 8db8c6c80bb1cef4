package beans

import (
	"strings"

	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// FieldSignature identifies a field of a storage class: the class that
// defines it, its name and its declared type.
type FieldSignature struct {
	Class string
	Name  string
	Type  StorageType
}

// Distinguished fields with compact update encodings.
var (
	BalanceField    = FieldSignature{Class: string(ClassTypeContract), Name: "balance", Type: ClassTypeBigInteger}
	RedBalanceField = FieldSignature{Class: string(ClassTypeGamete), Name: "balanceRed", Type: ClassTypeBigInteger}
	NonceField      = FieldSignature{Class: string(ClassTypeEOA), Name: "nonce", Type: ClassTypeBigInteger}
	PublicKeyField  = FieldSignature{Class: string(ClassTypeEOA), Name: "publicKey", Type: ClassTypeString}
)

func (f FieldSignature) String() string {
	return f.Class + "." + f.Name + ":" + f.Type.Name()
}

// Equal reports whether two signatures are identical.
func (f FieldSignature) Equal(o FieldSignature) bool {
	return f.Class == o.Class && f.Name == o.Name && f.Type.Name() == o.Type.Name()
}

// Cmp orders field signatures by defining class, then name, then type.
// This is the canonical order of fields inside updates and inside the
// deserialization constructor; the two must match exactly.
func (f FieldSignature) Cmp(o FieldSignature) int {
	if c := strings.Compare(f.Class, o.Class); c != 0 {
		return c
	}
	if c := strings.Compare(f.Name, o.Name); c != 0 {
		return c
	}
	return strings.Compare(f.Type.Name(), o.Type.Name())
}

// Into writes the signature.
func (f FieldSignature) Into(ctx *marshal.Context) {
	ctx.WriteString(f.Class)
	ctx.WriteString(f.Name)
	f.Type.Into(ctx)
}

// FieldSignatureFrom reads back a signature written by Into.
func FieldSignatureFrom(ctx *marshal.UnmarshalContext) (FieldSignature, error) {
	class := ctx.ReadString()
	name := ctx.ReadString()
	typ, err := StorageTypeFrom(ctx)
	if err != nil {
		return FieldSignature{}, err
	}
	return FieldSignature{Class: class, Name: name, Type: typ}, nil
}

// Selectors of code signatures.
const (
	codeSelectorConstructor = 0
	codeSelectorVoidMethod  = 1
	codeSelectorMethod      = 2
)

// MethodSignature identifies a method or constructor of a class:
// the defining class, the name, the formal parameter types and, for a
// non-void method, the return type. Constructors have the name <init>
// and no return type.
type MethodSignature struct {
	Class   ClassType
	Name    string
	Formals []StorageType

	// Returns is nil for constructors and void methods.
	Returns StorageType
}

// ConstructorName is the conventional name of constructors.
const ConstructorName = "<init>"

// NewConstructorSignature builds the signature of a constructor.
func NewConstructorSignature(class ClassType, formals ...StorageType) MethodSignature {
	return MethodSignature{Class: class, Name: ConstructorName, Formals: formals}
}

// NewVoidMethodSignature builds the signature of a method without
// return value.
func NewVoidMethodSignature(class ClassType, name string, formals ...StorageType) MethodSignature {
	return MethodSignature{Class: class, Name: name, Formals: formals}
}

// NewMethodSignature builds the signature of a method with a return
// value.
func NewMethodSignature(returns StorageType, class ClassType, name string, formals ...StorageType) MethodSignature {
	return MethodSignature{Class: class, Name: name, Formals: formals, Returns: returns}
}

// IsConstructor reports whether the signature denotes a constructor.
func (m MethodSignature) IsConstructor() bool { return m.Name == ConstructorName }

func (m MethodSignature) String() string {
	var b strings.Builder
	b.WriteString(string(m.Class))
	b.WriteByte('.')
	b.WriteString(m.Name)
	b.WriteByte('(')
	for i, f := range m.Formals {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(f.Name())
	}
	b.WriteByte(')')
	if m.Returns != nil {
		b.WriteByte(':')
		b.WriteString(m.Returns.Name())
	}
	return b.String()
}

// Equal reports whether two signatures are identical.
func (m MethodSignature) Equal(o MethodSignature) bool {
	if m.Class != o.Class || m.Name != o.Name || len(m.Formals) != len(o.Formals) {
		return false
	}
	for i := range m.Formals {
		if m.Formals[i].Name() != o.Formals[i].Name() {
			return false
		}
	}
	if (m.Returns == nil) != (o.Returns == nil) {
		return false
	}
	return m.Returns == nil || m.Returns.Name() == o.Returns.Name()
}

// Into writes the signature.
func (m MethodSignature) Into(ctx *marshal.Context) {
	switch {
	case m.IsConstructor():
		ctx.WriteByte(codeSelectorConstructor)
	case m.Returns == nil:
		ctx.WriteByte(codeSelectorVoidMethod)
	default:
		ctx.WriteByte(codeSelectorMethod)
	}
	m.Class.Into(ctx)
	if !m.IsConstructor() {
		ctx.WriteString(m.Name)
	}
	ctx.WriteCompactInt(int32(len(m.Formals)))
	for _, f := range m.Formals {
		f.Into(ctx)
	}
	if m.Returns != nil {
		m.Returns.Into(ctx)
	}
}

// MethodSignatureFrom reads back a signature written by Into.
func MethodSignatureFrom(ctx *marshal.UnmarshalContext) (MethodSignature, error) {
	selector := ctx.ReadByte()
	if selector > codeSelectorMethod {
		return MethodSignature{}, errors.Wrapf(ErrDecoding, "unknown code signature selector %d", selector)
	}
	typ, err := StorageTypeFrom(ctx)
	if err != nil {
		return MethodSignature{}, err
	}
	class, ok := typ.(ClassType)
	if !ok {
		return MethodSignature{}, errors.Wrap(ErrDecoding, "code signature on a primitive type")
	}
	m := MethodSignature{Class: class, Name: ConstructorName}
	if selector != codeSelectorConstructor {
		m.Name = ctx.ReadString()
	}
	n := ctx.ReadCompactInt()
	for i := int32(0); i < n; i++ {
		f, err := StorageTypeFrom(ctx)
		if err != nil {
			return MethodSignature{}, err
		}
		m.Formals = append(m.Formals, f)
	}
	if selector == codeSelectorMethod {
		if m.Returns, err = StorageTypeFrom(ctx); err != nil {
			return MethodSignature{}, err
		}
	}
	return m, ctx.Err()
}

// ReceiveInt, ReceiveLong and ReceiveBigInteger are the signatures
// implicitly denoted by the compact transfer requests.
var (
	ReceiveInt        = NewVoidMethodSignature(ClassTypePayableContract, "receive", BasicInt)
	ReceiveLong       = NewVoidMethodSignature(ClassTypePayableContract, "receive", BasicLong)
	ReceiveBigInteger = NewVoidMethodSignature(ClassTypePayableContract, "receive", ClassTypeBigInteger)
)
