package beans

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// Update is an atomic change to the state of a storage object: either
// the value of one of its fields, or the class tag recording the
// runtime class of a newly created object.
type Update interface {
	// Object yields the storage object the update refers to.
	Object() StorageReference

	// IsEager reports whether the update carries an eagerly loaded
	// value. Class tags are eager.
	IsEager() bool

	// Into writes the update with its selector.
	Into(ctx *marshal.Context)

	// Cmp yields the canonical total order of updates: by object,
	// class tags first, then by field signature (defining class,
	// name, type), then by value.
	Cmp(other Update) int

	fmt.Stringer
}

// Selectors of updates.
const (
	updateSelectorClassTag    = 0
	updateSelectorBalance     = 1
	updateSelectorBigInteger  = 2
	updateSelectorBoolFalse   = 3
	updateSelectorBoolTrue    = 4
	updateSelectorByte        = 5
	updateSelectorChar        = 6
	updateSelectorDouble      = 7
	updateSelectorEnumEager   = 8
	updateSelectorEnumLazy    = 9
	updateSelectorFloat       = 10
	updateSelectorInt         = 11
	updateSelectorLong        = 12
	updateSelectorShort       = 13
	updateSelectorStorage     = 14
	updateSelectorString      = 15
	updateSelectorRedBalance  = 16
	updateSelectorNonce       = 17
	updateSelectorToNullEager = 18
	updateSelectorToNullLazy  = 19
)

// ClassTag records the runtime class of a storage object and the
// transaction that installed the jar defining that class.
type ClassTag struct {
	Ref   StorageReference
	Class string
	Jar   TransactionReference
}

func (u ClassTag) Object() StorageReference { return u.Ref }

func (u ClassTag) IsEager() bool { return true }

func (u ClassTag) String() string {
	return fmt.Sprintf("<%s.class=%s>", u.Ref, u.Class)
}

func (u ClassTag) Into(ctx *marshal.Context) {
	ctx.WriteByte(updateSelectorClassTag)
	u.Ref.IntoWithoutSelector(ctx)
	ctx.WriteString(u.Class)
	u.Jar.Into(ctx)
}

func (u ClassTag) Cmp(other Update) int {
	if c := u.Ref.Cmp(other.Object()); c != 0 {
		return c
	}
	o, ok := other.(ClassTag)
	if !ok {
		return -1 // class tags precede field updates of the same object
	}
	if c := strings.Compare(u.Class, o.Class); c != 0 {
		return c
	}
	return u.Jar.Cmp(o.Jar)
}

// UpdateOfField is an update of one field of one storage object.
type UpdateOfField struct {
	Ref   StorageReference
	Field FieldSignature

	// Value is the new value of the field. A nil Value encodes an
	// explicit update to null; Eager then distinguishes the eager
	// from the lazy null.
	Value StorageValue

	// Eager is meaningful only when Value is nil.
	Eager bool
}

func (u UpdateOfField) Object() StorageReference { return u.Ref }

func (u UpdateOfField) String() string {
	return fmt.Sprintf("<%s|%s|%v>", u.Ref, u.Field, u.Value)
}

func (u UpdateOfField) IsEager() bool {
	switch u.Value.(type) {
	case nil:
		return u.Eager
	case StorageReference:
		return false
	case EnumValue:
		// the declared type decides: enumerations declared with
		// their own class are eager, those behind a lazy declared
		// type are not
		return u.Field.Type.IsEager() || u.Field.Type.Name() == u.Value.(EnumValue).Class
	default:
		return true
	}
}

func (u UpdateOfField) Into(ctx *marshal.Context) {
	selector, ok := u.selector()
	if !ok {
		ctx.WriteByte(updateSelectorToNullLazy) // unreachable for well-formed updates
		return
	}

	ctx.WriteByte(selector)
	u.Ref.IntoWithoutSelector(ctx)

	// the compact shapes elide the well-known field signature
	switch selector {
	case updateSelectorBalance, updateSelectorRedBalance, updateSelectorNonce:
		ctx.WriteBigInt(u.Value.(BigIntegerValue).Value)
		return
	}

	u.Field.Into(ctx)

	switch v := u.Value.(type) {
	case nil:
		// nothing follows an update to null
	case BoolValue:
		// the selector already carries the value
	case ByteValue:
		ctx.WriteByte(byte(v))
	case CharValue:
		ctx.WriteChar(rune(v))
	case ShortValue:
		ctx.WriteShort(int16(v))
	case IntValue:
		ctx.WriteInt(int32(v))
	case LongValue:
		ctx.WriteLong(int64(v))
	case FloatValue:
		ctx.WriteFloat(float32(v))
	case DoubleValue:
		ctx.WriteDouble(float64(v))
	case BigIntegerValue:
		ctx.WriteBigInt(v.Value)
	case StringValue:
		ctx.WriteString(string(v))
	case EnumValue:
		ctx.WriteString(v.Class)
		ctx.WriteString(v.Name)
	case StorageReference:
		v.IntoWithoutSelector(ctx)
	}
}

// selector yields the wire selector of the update.
func (u UpdateOfField) selector() (byte, bool) {
	switch v := u.Value.(type) {
	case nil:
		if u.Eager {
			return updateSelectorToNullEager, true
		}
		return updateSelectorToNullLazy, true
	case BoolValue:
		if v {
			return updateSelectorBoolTrue, true
		}
		return updateSelectorBoolFalse, true
	case ByteValue:
		return updateSelectorByte, true
	case CharValue:
		return updateSelectorChar, true
	case ShortValue:
		return updateSelectorShort, true
	case IntValue:
		return updateSelectorInt, true
	case LongValue:
		return updateSelectorLong, true
	case FloatValue:
		return updateSelectorFloat, true
	case DoubleValue:
		return updateSelectorDouble, true
	case BigIntegerValue:
		switch {
		case u.Field.Equal(BalanceField):
			return updateSelectorBalance, true
		case u.Field.Equal(RedBalanceField):
			return updateSelectorRedBalance, true
		case u.Field.Equal(NonceField):
			return updateSelectorNonce, true
		}
		return updateSelectorBigInteger, true
	case StringValue:
		return updateSelectorString, true
	case EnumValue:
		if u.IsEager() {
			return updateSelectorEnumEager, true
		}
		return updateSelectorEnumLazy, true
	case StorageReference:
		return updateSelectorStorage, true
	}
	return 0, false
}

func (u UpdateOfField) Cmp(other Update) int {
	if c := u.Ref.Cmp(other.Object()); c != 0 {
		return c
	}
	o, ok := other.(UpdateOfField)
	if !ok {
		return 1 // field updates follow the class tag of the same object
	}
	if c := u.Field.Cmp(o.Field); c != 0 {
		return c
	}
	switch {
	case u.Value == nil && o.Value == nil:
		return 0
	case u.Value == nil:
		return -1
	case o.Value == nil:
		return 1
	}
	return u.Value.Cmp(o.Value)
}

// NewBalanceUpdate builds the compact update of a contract balance.
func NewBalanceUpdate(object StorageReference, balance *big.Int) UpdateOfField {
	return UpdateOfField{Ref: object, Field: BalanceField, Value: NewBigIntegerValue(balance)}
}

// NewRedBalanceUpdate builds the compact update of the red balance of
// the gamete.
func NewRedBalanceUpdate(object StorageReference, balance *big.Int) UpdateOfField {
	return UpdateOfField{Ref: object, Field: RedBalanceField, Value: NewBigIntegerValue(balance)}
}

// NewNonceUpdate builds the compact update of an account nonce.
func NewNonceUpdate(object StorageReference, nonce *big.Int) UpdateOfField {
	return UpdateOfField{Ref: object, Field: NonceField, Value: NewBigIntegerValue(nonce)}
}

// UpdateFrom reads back an update written by Into.
func UpdateFrom(ctx *marshal.UnmarshalContext) (Update, error) {
	selector := ctx.ReadByte()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if selector == updateSelectorClassTag {
		ref := StorageReferenceFrom(ctx)
		class := ctx.ReadString()
		jar := TransactionReferenceFrom(ctx)
		return ClassTag{Ref: ref, Class: class, Jar: jar}, ctx.Err()
	}

	ref := StorageReferenceFrom(ctx)

	switch selector {
	case updateSelectorBalance:
		return UpdateOfField{Ref: ref, Field: BalanceField, Value: BigIntegerValue{Value: ctx.ReadBigInt()}}, ctx.Err()
	case updateSelectorRedBalance:
		return UpdateOfField{Ref: ref, Field: RedBalanceField, Value: BigIntegerValue{Value: ctx.ReadBigInt()}}, ctx.Err()
	case updateSelectorNonce:
		return UpdateOfField{Ref: ref, Field: NonceField, Value: BigIntegerValue{Value: ctx.ReadBigInt()}}, ctx.Err()
	}

	field, err := FieldSignatureFrom(ctx)
	if err != nil {
		return nil, err
	}
	u := UpdateOfField{Ref: ref, Field: field}

	switch selector {
	case updateSelectorBigInteger:
		u.Value = BigIntegerValue{Value: ctx.ReadBigInt()}
	case updateSelectorBoolFalse:
		u.Value = BoolValue(false)
	case updateSelectorBoolTrue:
		u.Value = BoolValue(true)
	case updateSelectorByte:
		u.Value = ByteValue(ctx.ReadByte())
	case updateSelectorChar:
		u.Value = CharValue(ctx.ReadChar())
	case updateSelectorDouble:
		u.Value = DoubleValue(ctx.ReadDouble())
	case updateSelectorEnumEager, updateSelectorEnumLazy:
		u.Value = EnumValue{Class: ctx.ReadString(), Name: ctx.ReadString()}
	case updateSelectorFloat:
		u.Value = FloatValue(ctx.ReadFloat())
	case updateSelectorInt:
		u.Value = IntValue(ctx.ReadInt())
	case updateSelectorLong:
		u.Value = LongValue(ctx.ReadLong())
	case updateSelectorShort:
		u.Value = ShortValue(ctx.ReadShort())
	case updateSelectorStorage:
		u.Value = StorageReferenceFrom(ctx)
	case updateSelectorString:
		u.Value = StringValue(ctx.ReadString())
	case updateSelectorToNullEager:
		u.Eager = true
	case updateSelectorToNullLazy:
		u.Eager = false
	default:
		return nil, errors.Wrapf(ErrDecoding, "unknown update selector %d", selector)
	}
	return u, ctx.Err()
}

// SortUpdates orders updates canonically, in place.
func SortUpdates(updates []Update) {
	sort.Slice(updates, func(i, j int) bool { return updates[i].Cmp(updates[j]) < 0 })
}

// WriteUpdates writes a compact count followed by each update, in
// canonical order.
func WriteUpdates(ctx *marshal.Context, updates []Update) {
	ctx.WriteCompactInt(int32(len(updates)))
	for _, u := range updates {
		u.Into(ctx)
	}
}

// ReadUpdates reads back a sequence written by WriteUpdates.
func ReadUpdates(ctx *marshal.UnmarshalContext) ([]Update, error) {
	n := ctx.ReadCompactInt()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	updates := make([]Update, 0, n)
	for i := int32(0); i < n; i++ {
		u, err := UpdateFrom(ctx)
		if err != nil {
			return nil, err
		}
		updates = append(updates, u)
	}
	return updates, nil
}
