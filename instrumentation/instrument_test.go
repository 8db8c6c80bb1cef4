package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/verification"
)

func baseEnv() *verification.Env {
	b := verification.NewModuleBuilder()
	b.Class(string(beans.ClassTypeStorage), "").Exported()
	b.Class(string(beans.ClassTypeContract), string(beans.ClassTypeStorage)).
		Exported().
		Field("balance", beans.ClassTypeBigInteger)
	env := verification.NewEnv()
	env.Add(b.Build())
	return env
}

func instrumentModule(t *testing.T, build func(*verification.ModuleBuilder)) *verification.Module {
	t.Helper()
	b := verification.NewModuleBuilder()
	build(b)
	env := baseEnv()
	v := verification.VerifyModule(b.Build(), env, verification.Options{})
	require.False(t, v.HasErrors(), "issues: %v", v.Issues)
	module, err := Instrument(v, env, Default())
	require.NoError(t, err)
	return module
}

func codeOf(t *testing.T, m *verification.Module, class, method string, formals ...beans.StorageType) []byte {
	t.Helper()
	for _, c := range m.Classes {
		if c.Name != class {
			continue
		}
		if found, ok := c.LookupMethod(method, formals); ok {
			return found.Code
		}
	}
	t.Fatalf("method %s.%s not found", class, method)
	return nil
}

func TestChargeHeadsEveryBlock(t *testing.T) {
	m := instrumentModule(t, func(b *verification.ModuleBuilder) {
		b.Class("com.acme.Straight", string(beans.ClassTypeStorage)).
			Method("m", verification.FlagPublic|verification.FlagStatic, beans.BasicInt).
			PushInt(1).
			PushInt(2).
			Add().
			ReturnValue().
			Done()
	})
	code := codeOf(t, m, "com.acme.Straight", "m")
	insts, err := verification.Instructions(code)
	require.NoError(t, err)

	// a single basic block: one CHARGE, at the very front
	require.Equal(t, verification.OpCharge, insts[0].Op)
	for _, inst := range insts[1:] {
		require.NotEqual(t, verification.OpCharge, inst.Op)
	}
	// four instructions, one unit each
	require.Equal(t, uint64(4), insts[0].Operand)
}

func TestJumpRelocation(t *testing.T) {
	m := instrumentModule(t, func(b *verification.ModuleBuilder) {
		b.Class("com.acme.Branchy", string(beans.ClassTypeStorage)).
			Method("m", verification.FlagPublic|verification.FlagStatic, beans.BasicInt, beans.BasicBoolean).
			Load(0).
			JumpIf("yes").
			PushInt(0).
			ReturnValue().
			Label("yes").
			PushInt(1).
			ReturnValue().
			Done()
	})
	code := codeOf(t, m, "com.acme.Branchy", "m", beans.BasicBoolean)
	insts, err := verification.Instructions(code)
	require.NoError(t, err)

	// find the JUMPIF and check its target lands on a CHARGE
	var target int = -1
	byPC := map[int]verification.Instruction{}
	for _, inst := range insts {
		byPC[inst.PC] = inst
		if inst.Op == verification.OpJumpIf {
			target = int(inst.Operand)
		}
	}
	require.GreaterOrEqual(t, target, 0)
	landed, ok := byPC[target]
	require.True(t, ok, "jump target must be an instruction boundary")
	require.Equal(t, verification.OpCharge, landed.Op, "jumps land on the charge of the target block")
}

func TestLazyFieldRewrite(t *testing.T) {
	m := instrumentModule(t, func(b *verification.ModuleBuilder) {
		b.Class("com.acme.Linked", string(beans.ClassTypeStorage)).
			Field("next", beans.ClassType("com.acme.Linked")).
			Field("count", beans.BasicInt).
			Method("read", verification.FlagPublic, nil).
			Load(0).
			GetField(beans.FieldSignature{Class: "com.acme.Linked", Name: "next", Type: beans.ClassType("com.acme.Linked")}).
			Pop().
			Load(0).
			GetField(beans.FieldSignature{Class: "com.acme.Linked", Name: "count", Type: beans.BasicInt}).
			Pop().
			Return().
			Done()
	})
	code := codeOf(t, m, "com.acme.Linked", "read")
	insts, err := verification.Instructions(code)
	require.NoError(t, err)

	lazies, eagers := 0, 0
	for _, inst := range insts {
		switch inst.Op {
		case verification.OpGetLazy:
			lazies++
		case verification.OpGetField:
			eagers++
		}
	}
	require.Equal(t, 1, lazies, "reference fields dispatch to the lazy loader")
	require.Equal(t, 1, eagers, "primitive fields stay eager")
}

func TestFromContractPrologue(t *testing.T) {
	m := instrumentModule(t, func(b *verification.ModuleBuilder) {
		cb := b.Class("com.acme.Wallet", string(beans.ClassTypeContract)).Exported()
		cb.Method("plain", verification.FlagPublic, nil).
			Return().
			Done()
		cb.Method("guarded", verification.FlagPublic|verification.FlagFromContract, nil).
			Return().
			Done()
		cb.Method("deposit", verification.FlagPublic|verification.FlagPayable|verification.FlagFromContract, nil, beans.BasicInt).
			Return().
			Done()
	})

	require.NotEqual(t, verification.OpFromContract, verification.Op(codeOf(t, m, "com.acme.Wallet", "plain")[0]))
	require.Equal(t, verification.OpFromContract, verification.Op(codeOf(t, m, "com.acme.Wallet", "guarded")[0]))
	require.Equal(t, verification.OpPayableFromContract, verification.Op(codeOf(t, m, "com.acme.Wallet", "deposit", beans.BasicInt)[0]))
}

func TestAllocationCharge(t *testing.T) {
	m := instrumentModule(t, func(b *verification.ModuleBuilder) {
		cb := b.Class("com.acme.Node", string(beans.ClassTypeStorage)).Exported()
		cb.Field("value", beans.BasicInt)
		cb.Constructor(verification.FlagPublic).
			Return().
			Done()
		cb.Method("make", verification.FlagPublic|verification.FlagStatic, beans.ClassType("com.acme.Node")).
			New(beans.NewConstructorSignature("com.acme.Node")).
			ReturnValue().
			Done()
	})
	code := codeOf(t, m, "com.acme.Node", "make")
	insts, err := verification.Instructions(code)
	require.NoError(t, err)

	for i, inst := range insts {
		if inst.Op == verification.OpNew {
			require.Greater(t, i, 0)
			prev := insts[i-1]
			require.Equal(t, verification.OpChargeRAM, prev.Op)
			gcm := Default()
			require.Equal(t, uint64(gcm.RAMObjectAllocationCost+gcm.RAMFieldCost), prev.Operand)
			return
		}
	}
	t.Fatal("no NEW instruction found")
}

func TestInstrumentationIsDeterministic(t *testing.T) {
	build := func() []byte {
		b := verification.NewModuleBuilder()
		b.Class("com.acme.Det", string(beans.ClassTypeStorage)).
			Method("m", verification.FlagPublic|verification.FlagStatic, beans.BasicInt, beans.BasicInt).
			Load(0).
			PushInt(10).
			Mul().
			ReturnValue().
			Done()
		env := baseEnv()
		v := verification.VerifyModule(b.Build(), env, verification.Options{})
		module, err := Instrument(v, env, Default())
		if err != nil {
			t.Fatal(err)
		}
		out, err := module.Bytes()
		if err != nil {
			t.Fatal(err)
		}
		return out
	}
	require.Equal(t, build(), build())
}

func TestCostHelpers(t *testing.T) {
	gcm := Default()
	require.Equal(t, int64(100), gcm.CPUCostForInstallingJar(100).Int64())
	require.Equal(t, int64(100), gcm.RAMCostForInstallingJar(100).Int64())
	require.Equal(t, int64(42), gcm.StorageCostOf(42).Int64())
}
