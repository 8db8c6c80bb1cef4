package beans

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/omahs/hotmoka/marshal"
)

// StorageValue is a value that can be stored in a node, passed as
// argument to a call or returned from a call.
type StorageValue interface {
	// Into writes the value with its selector.
	Into(ctx *marshal.Context)

	// Cmp yields a total order over values, used to sort containers
	// deterministically.
	Cmp(other StorageValue) int

	fmt.Stringer
}

// Selectors of storage values. Selectors above valueSelectorInt encode
// small non-negative ints in a single byte.
const (
	valueSelectorTrue       = 0
	valueSelectorFalse      = 1
	valueSelectorByte       = 2
	valueSelectorChar       = 3
	valueSelectorDouble     = 4
	valueSelectorFloat      = 5
	valueSelectorBigInteger = 6
	valueSelectorLong       = 7
	valueSelectorNull       = 8
	valueSelectorShort      = 9
	valueSelectorString     = 10
	valueSelectorReference  = 11
	valueSelectorEnum       = 12
	valueSelectorInt        = 13

	// maxInlineInt is the largest int that fits the single-byte
	// optimized encoding.
	maxInlineInt = 255 - valueSelectorInt - 1
)

// ordinal assigns each value shape a rank for cross-shape comparison.
func ordinal(v StorageValue) int {
	switch v.(type) {
	case BoolValue:
		return 0
	case ByteValue:
		return 1
	case CharValue:
		return 2
	case ShortValue:
		return 3
	case IntValue:
		return 4
	case LongValue:
		return 5
	case FloatValue:
		return 6
	case DoubleValue:
		return 7
	case BigIntegerValue:
		return 8
	case StringValue:
		return 9
	case EnumValue:
		return 10
	case NullValue:
		return 11
	case StorageReference:
		return 12
	}
	panic(fmt.Sprintf("unknown storage value %T", v))
}

// BoolValue is a boolean value.
type BoolValue bool

func (v BoolValue) String() string { return fmt.Sprintf("%t", bool(v)) }

func (v BoolValue) Into(ctx *marshal.Context) {
	if v {
		ctx.WriteByte(valueSelectorTrue)
	} else {
		ctx.WriteByte(valueSelectorFalse)
	}
}

func (v BoolValue) Cmp(other StorageValue) int {
	if o, ok := other.(BoolValue); ok {
		switch {
		case v == o:
			return 0
		case bool(o):
			return -1
		}
		return 1
	}
	return ordinal(v) - ordinal(other)
}

// ByteValue is a byte value.
type ByteValue int8

func (v ByteValue) String() string { return fmt.Sprintf("%d", int8(v)) }

func (v ByteValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorByte)
	ctx.WriteByte(byte(v))
}

func (v ByteValue) Cmp(other StorageValue) int {
	if o, ok := other.(ByteValue); ok {
		return int(v) - int(o)
	}
	return ordinal(v) - ordinal(other)
}

// CharValue is a character value.
type CharValue rune

func (v CharValue) String() string { return string(rune(v)) }

func (v CharValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorChar)
	ctx.WriteChar(rune(v))
}

func (v CharValue) Cmp(other StorageValue) int {
	if o, ok := other.(CharValue); ok {
		return int(v) - int(o)
	}
	return ordinal(v) - ordinal(other)
}

// ShortValue is a 16-bit integer value.
type ShortValue int16

func (v ShortValue) String() string { return fmt.Sprintf("%d", int16(v)) }

func (v ShortValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorShort)
	ctx.WriteShort(int16(v))
}

func (v ShortValue) Cmp(other StorageValue) int {
	if o, ok := other.(ShortValue); ok {
		return int(v) - int(o)
	}
	return ordinal(v) - ordinal(other)
}

// IntValue is a 32-bit integer value. Small non-negative values encode
// in a single byte.
type IntValue int32

func (v IntValue) String() string { return fmt.Sprintf("%d", int32(v)) }

func (v IntValue) Into(ctx *marshal.Context) {
	if v >= 0 && v <= maxInlineInt {
		ctx.WriteByte(byte(int32(v) + valueSelectorInt + 1))
		return
	}
	ctx.WriteByte(valueSelectorInt)
	ctx.WriteInt(int32(v))
}

func (v IntValue) Cmp(other StorageValue) int {
	if o, ok := other.(IntValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		}
		return 0
	}
	return ordinal(v) - ordinal(other)
}

// LongValue is a 64-bit integer value.
type LongValue int64

func (v LongValue) String() string { return fmt.Sprintf("%d", int64(v)) }

func (v LongValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorLong)
	ctx.WriteLong(int64(v))
}

func (v LongValue) Cmp(other StorageValue) int {
	if o, ok := other.(LongValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		}
		return 0
	}
	return ordinal(v) - ordinal(other)
}

// FloatValue is a 32-bit floating point value.
type FloatValue float32

func (v FloatValue) String() string { return fmt.Sprintf("%g", float32(v)) }

func (v FloatValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorFloat)
	ctx.WriteFloat(float32(v))
}

func (v FloatValue) Cmp(other StorageValue) int {
	if o, ok := other.(FloatValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		}
		return 0
	}
	return ordinal(v) - ordinal(other)
}

// DoubleValue is a 64-bit floating point value.
type DoubleValue float64

func (v DoubleValue) String() string { return fmt.Sprintf("%g", float64(v)) }

func (v DoubleValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorDouble)
	ctx.WriteDouble(float64(v))
}

func (v DoubleValue) Cmp(other StorageValue) int {
	if o, ok := other.(DoubleValue); ok {
		switch {
		case v < o:
			return -1
		case v > o:
			return 1
		}
		return 0
	}
	return ordinal(v) - ordinal(other)
}

// BigIntegerValue is an arbitrary-precision integer value.
type BigIntegerValue struct {
	Value *big.Int
}

func NewBigIntegerValue(v *big.Int) BigIntegerValue {
	return BigIntegerValue{Value: new(big.Int).Set(v)}
}

func (v BigIntegerValue) String() string { return v.Value.String() }

func (v BigIntegerValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorBigInteger)
	ctx.WriteBigInt(v.Value)
}

func (v BigIntegerValue) Cmp(other StorageValue) int {
	if o, ok := other.(BigIntegerValue); ok {
		return v.Value.Cmp(o.Value)
	}
	return ordinal(v) - ordinal(other)
}

// StringValue is a string value.
type StringValue string

func (v StringValue) String() string { return string(v) }

func (v StringValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorString)
	ctx.WriteString(string(v))
}

func (v StringValue) Cmp(other StorageValue) int {
	if o, ok := other.(StringValue); ok {
		return strings.Compare(string(v), string(o))
	}
	return ordinal(v) - ordinal(other)
}

// NullValue is the null reference.
type NullValue struct{}

func (v NullValue) String() string { return "null" }

func (v NullValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorNull)
}

func (v NullValue) Cmp(other StorageValue) int {
	if _, ok := other.(NullValue); ok {
		return 0
	}
	return ordinal(v) - ordinal(other)
}

// EnumValue is a constant of an enumeration class.
type EnumValue struct {
	Class string
	Name  string
}

func (v EnumValue) String() string { return v.Class + "." + v.Name }

func (v EnumValue) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorEnum)
	ctx.WriteString(v.Class)
	ctx.WriteString(v.Name)
}

func (v EnumValue) Cmp(other StorageValue) int {
	if o, ok := other.(EnumValue); ok {
		if c := strings.Compare(v.Class, o.Class); c != 0 {
			return c
		}
		return strings.Compare(v.Name, o.Name)
	}
	return ordinal(v) - ordinal(other)
}

// Into writes the reference as a storage value, with its selector.
func (sr StorageReference) Into(ctx *marshal.Context) {
	ctx.WriteByte(valueSelectorReference)
	sr.IntoWithoutSelector(ctx)
}

// Cmp makes StorageReference a StorageValue. Two references order by
// (transaction, progressive).
func (sr StorageReference) Cmp(other StorageValue) int {
	if o, ok := other.(StorageReference); ok {
		if c := sr.Transaction.Cmp(o.Transaction); c != 0 {
			return c
		}
		switch {
		case sr.Progressive < o.Progressive:
			return -1
		case sr.Progressive > o.Progressive:
			return 1
		}
		return 0
	}
	return ordinal(sr) - ordinal(other)
}

// ValueFrom reads back a storage value written by Into.
func ValueFrom(ctx *marshal.UnmarshalContext) (StorageValue, error) {
	selector := ctx.ReadByte()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch selector {
	case valueSelectorTrue:
		return BoolValue(true), nil
	case valueSelectorFalse:
		return BoolValue(false), nil
	case valueSelectorByte:
		return ByteValue(ctx.ReadByte()), nil
	case valueSelectorChar:
		return CharValue(ctx.ReadChar()), nil
	case valueSelectorDouble:
		return DoubleValue(ctx.ReadDouble()), nil
	case valueSelectorFloat:
		return FloatValue(ctx.ReadFloat()), nil
	case valueSelectorBigInteger:
		return BigIntegerValue{Value: ctx.ReadBigInt()}, nil
	case valueSelectorLong:
		return LongValue(ctx.ReadLong()), nil
	case valueSelectorNull:
		return NullValue{}, nil
	case valueSelectorShort:
		return ShortValue(ctx.ReadShort()), nil
	case valueSelectorString:
		return StringValue(ctx.ReadString()), nil
	case valueSelectorReference:
		return StorageReferenceFrom(ctx), nil
	case valueSelectorEnum:
		class := ctx.ReadString()
		name := ctx.ReadString()
		return EnumValue{Class: class, Name: name}, nil
	case valueSelectorInt:
		return IntValue(ctx.ReadInt()), nil
	default:
		// single-byte optimization for small non-negative ints
		return IntValue(int32(selector) - valueSelectorInt - 1), nil
	}
}
