package verification

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omahs/hotmoka/beans"
)

// baseClasses assembles a minimal storage hierarchy for the tests of
// this package.
func baseClasses() *Module {
	b := NewModuleBuilder()
	b.Class(string(beans.ClassTypeStorage), "").Exported()
	b.Class(string(beans.ClassTypeContract), string(beans.ClassTypeStorage)).
		Exported().
		Field("balance", beans.ClassTypeBigInteger).
		NativeMethod("balance", FlagPublic|FlagView, beans.ClassTypeBigInteger)
	return b.Build()
}

func envWithBase() *Env {
	env := NewEnv()
	env.Add(baseClasses())
	return env
}

func verifyOne(t *testing.T, build func(*ModuleBuilder), opts Options) *VerifiedJar {
	t.Helper()
	b := NewModuleBuilder()
	build(b)
	jar, err := b.Build().Bytes()
	require.NoError(t, err)
	v, err := Verify(jar, envWithBase(), opts)
	require.NoError(t, err)
	return v
}

func errorCodes(v *VerifiedJar) []string {
	var codes []string
	for _, i := range v.Issues {
		if i.Error {
			codes = append(codes, i.Code)
		}
	}
	return codes
}

func TestModuleRoundTrip(t *testing.T) {
	b := NewModuleBuilder()
	b.Class("com.acme.A", string(beans.ClassTypeStorage)).
		Exported().
		Field("count", beans.BasicInt).
		TransientField("scratch", beans.ClassTypeString).
		Method("bump", FlagPublic, beans.BasicInt, beans.BasicInt).
		Load(1).
		PushInt(1).
		Add().
		ReturnValue().
		Done()

	jar, err := b.Build().Bytes()
	require.NoError(t, err)

	back, err := ModuleFrom(jar)
	require.NoError(t, err)
	require.Len(t, back.Classes, 1)
	c := back.Classes[0]
	require.Equal(t, "com.acme.A", c.Name)
	require.Len(t, c.Fields, 2)
	require.True(t, c.Fields[1].Transient)
	m, ok := c.LookupMethod("bump", []beans.StorageType{beans.BasicInt})
	require.True(t, ok)
	require.Equal(t, 2, m.Locals)

	again, err := back.Bytes()
	require.NoError(t, err)
	require.Equal(t, jar, again)
}

func TestModuleFromRejectsGarbage(t *testing.T) {
	_, err := ModuleFrom([]byte("not a module"))
	require.Error(t, err)
}

func TestParseOpAndLabels(t *testing.T) {
	b := NewModuleBuilder()
	cb := b.Class("com.acme.Loop", string(beans.ClassTypeStorage))
	cb.Method("spin", FlagPublic|FlagStatic, beans.BasicInt, beans.BasicInt).
		Label("top").
		Load(0).
		PushInt(0).
		Gt().
		JumpIf("body").
		Load(0).
		ReturnValue().
		Label("body").
		Load(0).
		PushInt(1).
		Sub().
		Store(0).
		Jump("top").
		Done()

	m, ok := b.Build().Classes[0].LookupMethod("spin", []beans.StorageType{beans.BasicInt})
	require.True(t, ok)

	insts, err := Instructions(m.Code)
	require.NoError(t, err)
	require.Equal(t, OpLoad, insts[0].Op)

	// the back jump lands on the first instruction
	last := insts[len(insts)-1]
	require.Equal(t, OpJump, last.Op)
	require.Zero(t, last.Operand)
}

func TestVerifyCleanModule(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Counter", string(beans.ClassTypeStorage)).
			Exported().
			Field("count", beans.BasicInt).
			Method("get", FlagPublic|FlagView, beans.BasicInt).
			Load(0).
			GetField(beans.FieldSignature{Class: "com.acme.Counter", Name: "count", Type: beans.BasicInt}).
			ReturnValue().
			Done()
	}, Options{})
	require.False(t, v.HasErrors(), "issues: %v", v.Issues)
}

func TestForbiddenOpcodes(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Bad", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic, nil).
			Raw(byte(OpJsr), 0, 0).
			Raw(byte(OpMonitorEnter)).
			Return().
			Done()
	}, Options{})
	codes := errorCodes(v)
	require.Contains(t, codes, CodeJsr)
	require.Contains(t, codes, CodeForbiddenOpcode)
}

func TestInstrumentationOpcodesRejected(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Cheat", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic, nil).
			Raw(byte(OpCharge), 0, 0, 0, 0).
			Return().
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodeInstrumentationOpcode)
}

func TestPutstaticOnlyInClassInitializers(t *testing.T) {
	sig := beans.FieldSignature{Class: "com.acme.S", Name: "shared", Type: beans.BasicInt}
	v := verifyOne(t, func(b *ModuleBuilder) {
		cb := b.Class("com.acme.S", string(beans.ClassTypeStorage)).
			Field("shared", beans.BasicInt)
		cb.Method(ClassInitializerName, FlagStatic, nil).
			PushInt(1).
			PutStatic(sig).
			Return().
			Done()
		cb.Method("poke", FlagPublic, nil).
			PushInt(2).
			PutStatic(sig).
			Return().
			Done()
	}, Options{})
	codes := errorCodes(v)
	require.Contains(t, codes, CodePutstatic)
	// exactly one: the class initializer is allowed
	count := 0
	for _, c := range codes {
		if c == CodePutstatic {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestStoreToLocal0Forbidden(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Shifty", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic, nil).
			PushNull().
			Store(0).
			Return().
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodeModificationOfLocal0)

	// static code may use slot 0 freely
	v = verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Fine", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic|FlagStatic, nil).
			PushNull().
			Store(0).
			Return().
			Done()
	}, Options{})
	require.False(t, v.HasErrors())
}

func TestNonWhiteListedField(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Spy", string(beans.ClassTypeStorage)).
			Method("peek", FlagPublic, beans.ClassTypeString).
			Load(0).
			GetField(beans.FieldSignature{Class: "java.lang.System", Name: "out", Type: beans.ClassTypeString}).
			ReturnValue().
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodeNonWhiteListedField)
}

func TestNonWhiteListedCall(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Caller", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic, nil).
			InvokeStatic(beans.NewVoidMethodSignature("java.lang.System", "exit", beans.BasicInt)).
			Return().
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodeNonWhiteListedCall)
}

func TestWhiteListedCallAccepted(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Calc", string(beans.ClassTypeStorage)).
			Method("m", FlagPublic|FlagStatic, beans.BasicInt).
			PushInt(1).
			PushInt(2).
			InvokeStatic(beans.NewMethodSignature(beans.BasicInt, "java.lang.Math", "max", beans.BasicInt, beans.BasicInt)).
			ReturnValue().
			Done()
	}, Options{})
	require.False(t, v.HasErrors(), "issues: %v", v.Issues)
}

func TestPayableImpliesFromContract(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Wallet", string(beans.ClassTypeContract)).
			Method("deposit", FlagPublic|FlagPayable, nil, beans.BasicInt).
			Return().
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodePayableNotFromContract)
}

func TestFromContractDiscipline(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		cb := b.Class("com.acme.Gate", string(beans.ClassTypeContract)).Exported()
		cb.Method("guarded", FlagPublic|FlagFromContract, nil).
			Return().
			Done()
		cb.Method("sneak", FlagPublic, nil).
			Load(0).
			Invoke(beans.NewVoidMethodSignature("com.acme.Gate", "guarded")).
			Return().
			Done()
		cb.Method("legit", FlagPublic|FlagFromContract, nil).
			Load(0).
			Invoke(beans.NewVoidMethodSignature("com.acme.Gate", "guarded")).
			Return().
			Done()
	}, Options{})
	codes := errorCodes(v)
	require.Contains(t, codes, CodeCallToFromContract)
	count := 0
	for _, c := range codes {
		if c == CodeCallToFromContract {
			count++
		}
	}
	require.Equal(t, 1, count, "only the non-from-contract caller is illegal")
}

func TestThrowsExceptionsDiscipline(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Thrower", string(beans.ClassTypeStorage)).
			Method("boom", FlagPublic, nil).
			PushString("checked").
			Throw("com.acme.MyException").
			Done()
	}, Options{})
	require.Contains(t, errorCodes(v), CodeThrowsExceptions)

	// annotated code may throw checked exceptions
	v = verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Declared", string(beans.ClassTypeStorage)).
			Method("boom", FlagPublic|FlagThrowsExceptions, nil).
			PushString("checked").
			Throw("com.acme.MyException").
			Done()
	}, Options{})
	require.False(t, v.HasErrors())

	// unchecked exceptions need no annotation
	v = verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Panicky", string(beans.ClassTypeStorage)).
			Method("boom", FlagPublic, nil).
			PushString("unchecked").
			Throw("java.lang.IllegalArgumentException").
			Done()
	}, Options{})
	require.False(t, v.HasErrors())
}

func TestStorageFieldTypes(t *testing.T) {
	v := verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Holder", string(beans.ClassTypeStorage)).
			Field("stream", beans.ClassType("java.io.InputStream"))
	}, Options{})
	require.Contains(t, errorCodes(v), CodeStorageFieldType)
}

func TestSelfChargedRules(t *testing.T) {
	build := func(b *ModuleBuilder) {
		b.Class("com.acme.Selfish", string(beans.ClassTypeContract)).
			Exported().
			Method("m", FlagPublic|FlagSelfCharged, nil).
			Return().
			Done()
	}
	v := verifyOne(t, build, Options{})
	require.Contains(t, errorCodes(v), CodeSelfCharged)

	v = verifyOne(t, build, Options{AllowSelfCharged: true})
	require.False(t, v.HasErrors())

	// static methods cannot be self-charged even when allowed
	v = verifyOne(t, func(b *ModuleBuilder) {
		b.Class("com.acme.Static", string(beans.ClassTypeContract)).
			Method("m", FlagPublic|FlagStatic|FlagSelfCharged, nil).
			Return().
			Done()
	}, Options{AllowSelfCharged: true})
	require.Contains(t, errorCodes(v), CodeSelfCharged)
}

func TestNativeOnlyDuringInitialization(t *testing.T) {
	build := func(b *ModuleBuilder) {
		b.Class("com.acme.Sneaky", string(beans.ClassTypeStorage)).
			NativeMethod("m", FlagPublic, nil)
	}
	v := verifyOne(t, build, Options{})
	require.True(t, v.HasErrors())

	v = verifyOne(t, build, Options{AllowNative: true})
	require.False(t, v.HasErrors())
}

func TestPersistentFieldsOrder(t *testing.T) {
	env := envWithBase()
	b := NewModuleBuilder()
	b.Class("com.acme.Sub", string(beans.ClassTypeContract)).
		Field("zeta", beans.BasicInt).
		Field("alpha", beans.BasicInt)
	env.Add(b.Build())

	fields := env.PersistentFields("com.acme.Sub")
	require.Len(t, fields, 3)
	// superclasses first, then by name
	require.Equal(t, string(beans.ClassTypeContract), fields[0].Class)
	require.Equal(t, "balance", fields[0].Name)
	require.Equal(t, "alpha", fields[1].Name)
	require.Equal(t, "zeta", fields[2].Name)
}

func TestEnvLaziness(t *testing.T) {
	env := envWithBase()
	b := NewModuleBuilder()
	b.Class("com.acme.Color", string(beans.ClassTypeStorage)).Enum()
	env.Add(b.Build())

	require.False(t, env.IsLazy(beans.BasicInt))
	require.False(t, env.IsLazy(beans.ClassTypeString))
	require.False(t, env.IsLazy(beans.ClassTypeBigInteger))
	require.False(t, env.IsLazy(beans.ClassType("com.acme.Color")))
	require.True(t, env.IsLazy(beans.ClassTypeContract))
}

func TestPoolInterning(t *testing.T) {
	b := NewModuleBuilder()
	cb := b.Class("com.acme.A", string(beans.ClassTypeStorage))
	cb.Method("m", FlagPublic|FlagStatic, nil).
		PushBigInt(big.NewInt(42)).
		Pop().
		PushBigInt(big.NewInt(42)).
		Pop().
		Return().
		Done()
	require.Len(t, b.Build().Classes[0].Pool, 1, "equal constants are interned")
}
