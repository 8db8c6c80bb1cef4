package engine

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/instrumentation"
	"github.com/omahs/hotmoka/verification"
)

func TestTakamakaCodeVerifiesAndInstruments(t *testing.T) {
	env := verification.NewEnv()
	v := verification.VerifyModule(TakamakaCode(), env, verification.Options{AllowNative: true})
	require.False(t, v.HasErrors(), "issues: %v", v.Issues)

	module, err := instrumentation.Instrument(v, env, instrumentation.Default())
	require.NoError(t, err)

	// the receive family gains the payable prologue
	for _, c := range module.Classes {
		if c.Name != ClassPayable {
			continue
		}
		for _, m := range c.Methods {
			require.Equal(t, verification.OpPayableFromContract, verification.Op(m.Code[0]), "%s", m.Name)
		}
	}

	// instrumented bytes are stable
	b1, err := module.Bytes()
	require.NoError(t, err)
	env2 := verification.NewEnv()
	v2 := verification.VerifyModule(TakamakaCode(), env2, verification.Options{AllowNative: true})
	module2, err := instrumentation.Instrument(v2, env2, instrumentation.Default())
	require.NoError(t, err)
	b2, err := module2.Bytes()
	require.NoError(t, err)
	require.Equal(t, b1, b2)
}

func TestBaseLibraryHierarchy(t *testing.T) {
	env := verification.NewEnv()
	env.Add(TakamakaCode())

	require.True(t, env.IsSubclass(ClassGamete, ClassEOA))
	require.True(t, env.IsSubclass(ClassEOA, ClassPayable))
	require.True(t, env.IsSubclass(ClassPayable, ClassContract))
	require.True(t, env.IsSubclass(ClassContract, ClassStorage))
	require.True(t, env.IsSubclass(ClassEvent, ClassStorage))
	require.False(t, env.IsSubclass(ClassEvent, ClassContract))

	// canonical order of the persistent fields of the gamete:
	// superclasses first
	fields := env.PersistentFields(ClassGamete)
	require.Equal(t, []string{"balance", "nonce", "publicKey", "balanceRed"}, fieldNames(fields))
}

func fieldNames(sigs []beans.FieldSignature) []string {
	names := make([]string, len(sigs))
	for i, s := range sigs {
		names[i] = s.Name
	}
	return names
}

func TestRuntimeValueConversions(t *testing.T) {
	cases := []struct {
		value beans.StorageValue
		typ   beans.StorageType
	}{
		{beans.BoolValue(true), beans.BasicBoolean},
		{beans.ByteValue(-5), beans.BasicByte},
		{beans.CharValue('x'), beans.BasicChar},
		{beans.ShortValue(-300), beans.BasicShort},
		{beans.IntValue(123456), beans.BasicInt},
		{beans.LongValue(1 << 50), beans.BasicLong},
		{beans.FloatValue(0.5), beans.BasicFloat},
		{beans.DoubleValue(-2.25), beans.BasicDouble},
		{beans.NewBigIntegerValue(big.NewInt(999)), beans.ClassTypeBigInteger},
		{beans.StringValue("hi"), beans.ClassTypeString},
		{beans.EnumValue{Class: "com.acme.Color", Name: "RED"}, beans.ClassType("com.acme.Color")},
	}
	for _, c := range cases {
		rv, err := toRuntime(c.value)
		require.NoError(t, err)
		back, err := toStorage(rv, c.typ)
		require.NoError(t, err)
		require.Zero(t, c.value.Cmp(back), "%v round-tripped to %v", c.value, back)
	}
}

func TestArith(t *testing.T) {
	v, err := arith(verification.OpAdd, int64(2), int64(3), "")
	require.NoError(t, err)
	require.Equal(t, int64(5), v)

	// mixed operands promote to big integers
	v, err = arith(verification.OpSub, big.NewInt(10), int64(3), "")
	require.NoError(t, err)
	require.Zero(t, big.NewInt(7).Cmp(v.(*big.Int)))

	// string concatenation rides ADD
	v, err = arith(verification.OpAdd, "a", "b", "")
	require.NoError(t, err)
	require.Equal(t, "ab", v)

	_, err = arith(verification.OpDiv, int64(1), int64(0), "com.acme.A.m:3")
	require.Error(t, err)
	ce, ok := err.(*ContractException)
	require.True(t, ok)
	require.Equal(t, ExcArithmetic, ce.Class)

	_, err = arith(verification.OpDiv, big.NewInt(1), big.NewInt(0), "")
	require.Error(t, err)
}

func TestCompare(t *testing.T) {
	lt, err := compare(verification.OpLt, int64(1), int64(2), "")
	require.NoError(t, err)
	require.True(t, lt)

	eq, err := compare(verification.OpEq, big.NewInt(5), big.NewInt(5), "")
	require.NoError(t, err)
	require.True(t, eq)

	ne, err := compare(verification.OpNe, nil, "x", "")
	require.NoError(t, err)
	require.True(t, ne)

	ge, err := compare(verification.OpGe, "b", "a", "")
	require.NoError(t, err)
	require.True(t, ge)
}

func TestValuesEqual(t *testing.T) {
	require.True(t, valuesEqual(nil, nil))
	require.False(t, valuesEqual(nil, int64(0)))
	require.True(t, valuesEqual(big.NewInt(7), big.NewInt(7)))
	require.False(t, valuesEqual(big.NewInt(7), big.NewInt(8)))
	a := newObject(beans.StorageReference{}, ClassStorage, false)
	b := newObject(beans.StorageReference{}, ClassStorage, false)
	require.True(t, valuesEqual(a, a))
	require.False(t, valuesEqual(a, b))
}

func TestZeroOf(t *testing.T) {
	require.Equal(t, false, zeroOf(beans.BasicBoolean))
	require.Equal(t, int64(0), zeroOf(beans.BasicInt))
	require.Equal(t, float64(0), zeroOf(beans.BasicDouble))
	require.Nil(t, zeroOf(beans.ClassTypeString))
	require.Nil(t, zeroOf(beans.ClassTypeContract))
}
