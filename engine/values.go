package engine

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
)

// Value is a runtime value of the interpreter: nil, bool, int64 (all
// integral primitives), float64 (both floating point widths), *big.Int,
// string, Enum or *Object. The declared storage type disambiguates the
// width at the serialization boundary.
type Value interface{}

// Enum is a runtime enumeration constant.
type Enum struct {
	Class string
	Name  string
}

// ErrDeserialization marks a value that cannot cross the storage
// boundary.
var ErrDeserialization = errors.New("deserialization error")

// zeroOf yields the default runtime value of a declared type.
func zeroOf(t beans.StorageType) Value {
	if bt, ok := t.(beans.BasicType); ok {
		switch bt {
		case beans.BasicBoolean:
			return false
		case beans.BasicFloat, beans.BasicDouble:
			return float64(0)
		default:
			return int64(0)
		}
	}
	return nil
}

// toRuntime converts a storage value into its runtime form. Storage
// references are left to the caller, which must deserialize them.
func toRuntime(v beans.StorageValue) (Value, error) {
	switch v := v.(type) {
	case beans.BoolValue:
		return bool(v), nil
	case beans.ByteValue:
		return int64(v), nil
	case beans.CharValue:
		return int64(v), nil
	case beans.ShortValue:
		return int64(v), nil
	case beans.IntValue:
		return int64(v), nil
	case beans.LongValue:
		return int64(v), nil
	case beans.FloatValue:
		return float64(v), nil
	case beans.DoubleValue:
		return float64(v), nil
	case beans.BigIntegerValue:
		return new(big.Int).Set(v.Value), nil
	case beans.StringValue:
		return string(v), nil
	case beans.NullValue:
		return nil, nil
	case beans.EnumValue:
		return Enum{Class: v.Class, Name: v.Name}, nil
	}
	return nil, errors.Wrapf(ErrDeserialization, "cannot convert %T", v)
}

// toStorage converts a runtime value into the storage value of the
// given declared type.
func toStorage(v Value, t beans.StorageType) (beans.StorageValue, error) {
	if v == nil {
		return beans.NullValue{}, nil
	}
	switch v := v.(type) {
	case bool:
		return beans.BoolValue(v), nil
	case int64:
		if bt, ok := t.(beans.BasicType); ok {
			switch bt {
			case beans.BasicByte:
				return beans.ByteValue(int8(v)), nil
			case beans.BasicChar:
				return beans.CharValue(rune(v)), nil
			case beans.BasicShort:
				return beans.ShortValue(int16(v)), nil
			case beans.BasicLong:
				return beans.LongValue(v), nil
			}
		}
		return beans.IntValue(int32(v)), nil
	case float64:
		if bt, ok := t.(beans.BasicType); ok && bt == beans.BasicFloat {
			return beans.FloatValue(float32(v)), nil
		}
		return beans.DoubleValue(v), nil
	case *big.Int:
		return beans.NewBigIntegerValue(v), nil
	case string:
		return beans.StringValue(v), nil
	case Enum:
		return beans.EnumValue{Class: v.Class, Name: v.Name}, nil
	case *Object:
		return v.Ref, nil
	}
	return nil, errors.Wrapf(ErrDeserialization, "cannot store a %T", v)
}

// valuesEqual compares two runtime values for the purpose of update
// extraction: the shadow old value against the current one.
func valuesEqual(a, b Value) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case *big.Int:
		bv, ok := b.(*big.Int)
		return ok && av.Cmp(bv) == 0
	case *Object:
		bv, ok := b.(*Object)
		return ok && av == bv
	default:
		return a == b
	}
}
