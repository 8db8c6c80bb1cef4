// Package marshal provides the tools for encoding data primitives
// of the request/response wire format.
//
// The format is big-endian with single-byte type selectors. Since
// transaction references are derived from hashing request bytes, the
// encoding of every bean is canonical: two logically equal beans
// produce byte-equal output.
package marshal

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"math/big"

	"github.com/omahs/hotmoka/errors"
)

// ErrRange is returned when a value does not fit its encoding.
var ErrRange = errors.New("value out of range")

// ErrStringTooLong is returned when decoding a string whose declared
// length exceeds maxStringLen.
var ErrStringTooLong = errors.New("string too long")

const maxStringLen = 1 << 24

// Context accumulates the byte representation of a bean.
// Errors are sticky: after the first failure every
// subsequent write is a no-op and Err reports the failure.
type Context struct {
	w   io.Writer
	n   int
	err error
}

// NewContext returns a marshalling context writing to w.
func NewContext(w io.Writer) *Context {
	return &Context{w: w}
}

// ToBytes runs f on a fresh context and returns the accumulated bytes.
func ToBytes(f func(ctx *Context)) ([]byte, error) {
	var buf bytes.Buffer
	ctx := NewContext(&buf)
	f(ctx)
	if ctx.err != nil {
		return nil, ctx.err
	}
	return buf.Bytes(), nil
}

// Err reports the first error encountered by the context, if any.
func (ctx *Context) Err() error { return ctx.err }

// Len reports the number of bytes written so far.
func (ctx *Context) Len() int { return ctx.n }

func (ctx *Context) write(p []byte) {
	if ctx.err != nil {
		return
	}
	n, err := ctx.w.Write(p)
	ctx.n += n
	ctx.err = err
}

// Write appends raw bytes.
func (ctx *Context) Write(p []byte) { ctx.write(p) }

// WriteByte appends a single byte.
func (ctx *Context) WriteByte(b byte) { ctx.write([]byte{b}) }

// WriteBool appends a boolean as one byte.
func (ctx *Context) WriteBool(b bool) {
	if b {
		ctx.WriteByte(1)
	} else {
		ctx.WriteByte(0)
	}
}

// WriteShort appends a 16-bit integer, big-endian.
func (ctx *Context) WriteShort(v int16) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	ctx.write(buf[:])
}

// WriteChar appends a character as a 16-bit code unit, big-endian.
func (ctx *Context) WriteChar(v rune) {
	var buf [2]byte
	binary.BigEndian.PutUint16(buf[:], uint16(v))
	ctx.write(buf[:])
}

// WriteInt appends a 32-bit integer, big-endian.
func (ctx *Context) WriteInt(v int32) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(v))
	ctx.write(buf[:])
}

// WriteLong appends a 64-bit integer, big-endian.
func (ctx *Context) WriteLong(v int64) {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(v))
	ctx.write(buf[:])
}

// WriteFloat appends the IEEE 754 bits of a 32-bit float, big-endian.
func (ctx *Context) WriteFloat(v float32) {
	ctx.WriteInt(int32(math.Float32bits(v)))
}

// WriteDouble appends the IEEE 754 bits of a 64-bit float, big-endian.
func (ctx *Context) WriteDouble(v float64) {
	ctx.WriteLong(int64(math.Float64bits(v)))
}

// WriteCompactInt appends a compact integer: one byte for values in
// [0, 255), otherwise the escape byte 0xff followed by a 4-byte
// big-endian signed integer.
func (ctx *Context) WriteCompactInt(v int32) {
	if v >= 0 && v < 255 {
		ctx.WriteByte(byte(v))
		return
	}
	ctx.WriteByte(0xff)
	ctx.WriteInt(v)
}

// WriteString appends a string as a compact length followed by its
// UTF-8 bytes.
func (ctx *Context) WriteString(s string) {
	if len(s) > math.MaxInt32 {
		ctx.err = ErrRange
		return
	}
	ctx.WriteCompactInt(int32(len(s)))
	ctx.write([]byte(s))
}

// WriteBytes appends a byte slice as a compact length followed by the
// raw bytes.
func (ctx *Context) WriteBytes(p []byte) {
	if len(p) > math.MaxInt32 {
		ctx.err = ErrRange
		return
	}
	ctx.WriteCompactInt(int32(len(p)))
	ctx.write(p)
}

// WriteBigInt appends an arbitrary-precision integer: a sign byte
// (0 negative, 1 zero, 2 positive) followed by the compact length of
// the magnitude and the magnitude bytes, big-endian, without leading
// zeros. The representation is canonical.
func (ctx *Context) WriteBigInt(v *big.Int) {
	switch v.Sign() {
	case -1:
		ctx.WriteByte(0)
	case 0:
		ctx.WriteByte(1)
		ctx.WriteCompactInt(0)
		return
	default:
		ctx.WriteByte(2)
	}
	mag := v.Bytes()
	ctx.WriteCompactInt(int32(len(mag)))
	ctx.write(mag)
}

// UnmarshalContext reads back the byte representation of a bean.
// Errors are sticky, like in Context.
type UnmarshalContext struct {
	r   io.Reader
	n   int
	err error
}

// NewUnmarshalContext returns an unmarshalling context reading from r.
func NewUnmarshalContext(r io.Reader) *UnmarshalContext {
	return &UnmarshalContext{r: r}
}

// FromBytes returns an unmarshalling context over p.
func FromBytes(p []byte) *UnmarshalContext {
	return NewUnmarshalContext(bytes.NewReader(p))
}

// Err reports the first error encountered by the context, if any.
func (ctx *UnmarshalContext) Err() error { return ctx.err }

// Len reports the number of bytes read so far.
func (ctx *UnmarshalContext) Len() int { return ctx.n }

func (ctx *UnmarshalContext) read(p []byte) {
	if ctx.err != nil {
		return
	}
	n, err := io.ReadFull(ctx.r, p)
	ctx.n += n
	ctx.err = err
}

// ReadFull fills p with the next len(p) bytes.
func (ctx *UnmarshalContext) ReadFull(p []byte) { ctx.read(p) }

// ReadByte consumes and returns a single byte.
func (ctx *UnmarshalContext) ReadByte() byte {
	var buf [1]byte
	ctx.read(buf[:])
	return buf[0]
}

// ReadBool consumes one byte and interprets it as a boolean.
func (ctx *UnmarshalContext) ReadBool() bool {
	return ctx.ReadByte() != 0
}

// ReadShort consumes a 16-bit big-endian integer.
func (ctx *UnmarshalContext) ReadShort() int16 {
	var buf [2]byte
	ctx.read(buf[:])
	return int16(binary.BigEndian.Uint16(buf[:]))
}

// ReadChar consumes a 16-bit big-endian code unit.
func (ctx *UnmarshalContext) ReadChar() rune {
	var buf [2]byte
	ctx.read(buf[:])
	return rune(binary.BigEndian.Uint16(buf[:]))
}

// ReadInt consumes a 32-bit big-endian integer.
func (ctx *UnmarshalContext) ReadInt() int32 {
	var buf [4]byte
	ctx.read(buf[:])
	return int32(binary.BigEndian.Uint32(buf[:]))
}

// ReadLong consumes a 64-bit big-endian integer.
func (ctx *UnmarshalContext) ReadLong() int64 {
	var buf [8]byte
	ctx.read(buf[:])
	return int64(binary.BigEndian.Uint64(buf[:]))
}

// ReadFloat consumes the IEEE 754 bits of a 32-bit float.
func (ctx *UnmarshalContext) ReadFloat() float32 {
	return math.Float32frombits(uint32(ctx.ReadInt()))
}

// ReadDouble consumes the IEEE 754 bits of a 64-bit float.
func (ctx *UnmarshalContext) ReadDouble() float64 {
	return math.Float64frombits(uint64(ctx.ReadLong()))
}

// ReadCompactInt consumes a compact integer written by WriteCompactInt.
func (ctx *UnmarshalContext) ReadCompactInt() int32 {
	b := ctx.ReadByte()
	if b < 0xff {
		return int32(b)
	}
	return ctx.ReadInt()
}

// ReadString consumes a string written by WriteString.
func (ctx *UnmarshalContext) ReadString() string {
	n := ctx.ReadCompactInt()
	if n < 0 || n > maxStringLen {
		ctx.err = ErrStringTooLong
		return ""
	}
	if n == 0 || ctx.err != nil {
		return ""
	}
	buf := make([]byte, n)
	ctx.read(buf)
	return string(buf)
}

// ReadBytes consumes a byte slice written by WriteBytes.
func (ctx *UnmarshalContext) ReadBytes() []byte {
	n := ctx.ReadCompactInt()
	if n < 0 || n > maxStringLen {
		ctx.err = ErrStringTooLong
		return nil
	}
	if n == 0 || ctx.err != nil {
		return nil
	}
	buf := make([]byte, n)
	ctx.read(buf)
	return buf
}

// ReadBigInt consumes an integer written by WriteBigInt.
func (ctx *UnmarshalContext) ReadBigInt() *big.Int {
	sign := ctx.ReadByte()
	n := ctx.ReadCompactInt()
	if n < 0 || n > maxStringLen {
		ctx.err = ErrStringTooLong
		return new(big.Int)
	}
	mag := make([]byte, n)
	ctx.read(mag)
	v := new(big.Int).SetBytes(mag)
	if sign == 0 {
		v.Neg(v)
	}
	return v
}
