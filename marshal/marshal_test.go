package marshal

import (
	"bytes"
	"math/big"
	"testing"
)

func TestCompactInt(t *testing.T) {
	cases := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0}},
		{1, []byte{1}},
		{254, []byte{254}},
		{255, []byte{0xff, 0, 0, 0, 0xff}},
		{-1, []byte{0xff, 0xff, 0xff, 0xff, 0xff}},
		{1 << 20, []byte{0xff, 0, 0x10, 0, 0}},
	}
	for _, c := range cases {
		got, err := ToBytes(func(ctx *Context) { ctx.WriteCompactInt(c.v) })
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, c.want) {
			t.Errorf("WriteCompactInt(%d) = %x want %x", c.v, got, c.want)
		}
		if back := FromBytes(got).ReadCompactInt(); back != c.v {
			t.Errorf("round trip of %d = %d", c.v, back)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range []string{"", "a", "hello world", "io.takamaka.code.lang.Contract", "κόσμε"} {
		got, err := ToBytes(func(ctx *Context) { ctx.WriteString(s) })
		if err != nil {
			t.Fatal(err)
		}
		ctx := FromBytes(got)
		if back := ctx.ReadString(); back != s || ctx.Err() != nil {
			t.Errorf("round trip of %q = %q, err %v", s, back, ctx.Err())
		}
	}
}

func TestBigIntRoundTrip(t *testing.T) {
	vals := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(-1),
		big.NewInt(1 << 40),
		new(big.Int).Lsh(big.NewInt(1), 200),
		new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(7), 100)),
	}
	for _, v := range vals {
		got, err := ToBytes(func(ctx *Context) { ctx.WriteBigInt(v) })
		if err != nil {
			t.Fatal(err)
		}
		ctx := FromBytes(got)
		if back := ctx.ReadBigInt(); back.Cmp(v) != 0 || ctx.Err() != nil {
			t.Errorf("round trip of %s = %s, err %v", v, back, ctx.Err())
		}
	}
}

func TestPrimitives(t *testing.T) {
	got, err := ToBytes(func(ctx *Context) {
		ctx.WriteBool(true)
		ctx.WriteShort(-2)
		ctx.WriteChar('x')
		ctx.WriteInt(-100)
		ctx.WriteLong(1 << 40)
		ctx.WriteFloat(1.5)
		ctx.WriteDouble(-2.5)
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := FromBytes(got)
	if !ctx.ReadBool() {
		t.Error("bool")
	}
	if v := ctx.ReadShort(); v != -2 {
		t.Errorf("short = %d", v)
	}
	if v := ctx.ReadChar(); v != 'x' {
		t.Errorf("char = %c", v)
	}
	if v := ctx.ReadInt(); v != -100 {
		t.Errorf("int = %d", v)
	}
	if v := ctx.ReadLong(); v != 1<<40 {
		t.Errorf("long = %d", v)
	}
	if v := ctx.ReadFloat(); v != 1.5 {
		t.Errorf("float = %v", v)
	}
	if v := ctx.ReadDouble(); v != -2.5 {
		t.Errorf("double = %v", v)
	}
	if ctx.Err() != nil {
		t.Fatal(ctx.Err())
	}
}

func TestCanonicalBytes(t *testing.T) {
	a, _ := ToBytes(func(ctx *Context) { ctx.WriteBigInt(big.NewInt(1000)) })
	b, _ := ToBytes(func(ctx *Context) { ctx.WriteBigInt(new(big.Int).SetInt64(1000)) })
	if !bytes.Equal(a, b) {
		t.Error("equal big integers must encode identically")
	}
}

func TestStickyReadError(t *testing.T) {
	ctx := FromBytes([]byte{1})
	ctx.ReadInt()
	if ctx.Err() == nil {
		t.Fatal("short read must set the context error")
	}
	// subsequent reads stay no-ops
	ctx.ReadLong()
	if ctx.Len() > 1 {
		t.Error("reads after an error must not consume")
	}
}
