package beans

import (
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// StorageType is the declared type of a field, formal parameter or
// return value: either a basic (primitive) type or a named class.
type StorageType interface {
	// Name yields the fully-qualified textual form of the type.
	Name() string

	// IsEager reports whether values of this declared type are kept
	// eagerly in updates: primitives, strings and big integers are
	// eager, reference types are lazy. Enumerations are decided at
	// run time from the class, not from the declared type.
	IsEager() bool

	// Into writes the type with its selector.
	Into(ctx *marshal.Context)
}

// BasicType is one of the eight primitive types.
type BasicType byte

const (
	BasicBoolean BasicType = iota
	BasicByte
	BasicChar
	BasicShort
	BasicInt
	BasicLong
	BasicFloat
	BasicDouble
)

// Selectors of storage types.
const (
	typeSelectorClass      = 8
	typeSelectorString     = 9
	typeSelectorBigInteger = 10
)

var basicTypeNames = [...]string{"boolean", "byte", "char", "short", "int", "long", "float", "double"}

func (bt BasicType) Name() string { return basicTypeNames[bt] }

func (bt BasicType) IsEager() bool { return true }

func (bt BasicType) Into(ctx *marshal.Context) {
	ctx.WriteByte(byte(bt))
}

// ClassType is a reference type, identified by its fully-qualified
// class name.
type ClassType string

// Frequently used class types.
const (
	ClassTypeString     ClassType = "java.lang.String"
	ClassTypeBigInteger ClassType = "java.math.BigInteger"

	ClassTypeStorage         ClassType = "io.takamaka.code.lang.Storage"
	ClassTypeContract        ClassType = "io.takamaka.code.lang.Contract"
	ClassTypePayableContract ClassType = "io.takamaka.code.lang.PayableContract"
	ClassTypeEOA             ClassType = "io.takamaka.code.lang.ExternallyOwnedAccount"
	ClassTypeGamete          ClassType = "io.takamaka.code.lang.Gamete"
	ClassTypeEvent           ClassType = "io.takamaka.code.lang.Event"
	ClassTypeManifest        ClassType = "io.takamaka.code.system.Manifest"
)

func (ct ClassType) Name() string { return string(ct) }

func (ct ClassType) IsEager() bool {
	return ct == ClassTypeString || ct == ClassTypeBigInteger
}

func (ct ClassType) Into(ctx *marshal.Context) {
	switch ct {
	case ClassTypeString:
		ctx.WriteByte(typeSelectorString)
	case ClassTypeBigInteger:
		ctx.WriteByte(typeSelectorBigInteger)
	default:
		ctx.WriteByte(typeSelectorClass)
		ctx.WriteString(string(ct))
	}
}

// StorageTypeFrom reads back a type written by Into.
func StorageTypeFrom(ctx *marshal.UnmarshalContext) (StorageType, error) {
	selector := ctx.ReadByte()
	switch {
	case selector <= byte(BasicDouble):
		return BasicType(selector), nil
	case selector == typeSelectorClass:
		return ClassType(ctx.ReadString()), nil
	case selector == typeSelectorString:
		return ClassTypeString, nil
	case selector == typeSelectorBigInteger:
		return ClassTypeBigInteger, nil
	}
	return nil, errors.Wrapf(ErrDecoding, "unknown storage type selector %d", selector)
}

// StorageTypeNamed parses the textual form of a type.
func StorageTypeNamed(name string) StorageType {
	for i, n := range basicTypeNames {
		if n == name {
			return BasicType(i)
		}
	}
	return ClassType(name)
}

// ErrDecoding is the root cause of every malformed-encoding failure.
var ErrDecoding = errors.New("malformed encoding")
