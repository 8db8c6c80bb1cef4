package verification

import (
	"encoding/binary"

	"github.com/omahs/hotmoka/errors"
)

// Op is a bytecode operation of the contract execution machine.
type Op byte

// The opcode set. Operands are fixed-width and big-endian, so the
// verifier and the instrumenter can walk code without a symbol table.
const (
	OpNop       Op = 0x00
	OpPushNull  Op = 0x01
	OpPushTrue  Op = 0x02
	OpPushFalse Op = 0x03
	OpPushInt   Op = 0x04 // + int32
	OpPushLong  Op = 0x05 // + int64
	OpPushConst Op = 0x06 // + pool index of a string or big integer

	OpLoad  Op = 0x10 // + local slot
	OpStore Op = 0x11 // + local slot

	OpPop  Op = 0x18
	OpDup  Op = 0x19
	OpSwap Op = 0x1a

	OpGetField  Op = 0x20 // + pool index of a field
	OpPutField  Op = 0x21 // + pool index of a field
	OpGetStatic Op = 0x22 // + pool index of a field
	OpPutStatic Op = 0x23 // + pool index of a field

	OpNew          Op = 0x28 // + pool index of a constructor
	OpInvoke       Op = 0x29 // + pool index of a method
	OpInvokeStatic Op = 0x2a // + pool index of a static method

	OpAdd Op = 0x30
	OpSub Op = 0x31
	OpMul Op = 0x32
	OpDiv Op = 0x33
	OpMod Op = 0x34
	OpNeg Op = 0x35

	OpEq Op = 0x38
	OpNe Op = 0x39
	OpLt Op = 0x3a
	OpLe Op = 0x3b
	OpGt Op = 0x3c
	OpGe Op = 0x3d

	OpJump   Op = 0x40 // + code offset
	OpJumpIf Op = 0x41 // + code offset

	OpReturn      Op = 0x48
	OpReturnValue Op = 0x49
	OpThrow       Op = 0x4a // + pool index of a class; message on stack

	// opcodes reserved to the instrumenter; the verifier rejects
	// them in uploaded code
	OpCharge              Op = 0x50 // + gas amount
	OpChargeRAM           Op = 0x51 // + gas amount
	OpGetLazy             Op = 0x52 // + pool index of a field
	OpFromContract        Op = 0x53
	OpPayableFromContract Op = 0x54

	// legacy opcodes kept for toolchain compatibility; always
	// rejected by the verifier
	OpJsr          Op = 0x60
	OpRet          Op = 0x61
	OpMonitorEnter Op = 0x62
	OpMonitorExit  Op = 0x63
)

type opInfo struct {
	name string
	// width of the operand, in bytes
	operand int
	// instrumentation-only opcode, illegal in uploaded code
	instrOnly bool
	// always illegal
	forbidden bool
}

var ops = [256]opInfo{
	OpNop:       {name: "NOP"},
	OpPushNull:  {name: "PUSHNULL"},
	OpPushTrue:  {name: "PUSHTRUE"},
	OpPushFalse: {name: "PUSHFALSE"},
	OpPushInt:   {name: "PUSHINT", operand: 4},
	OpPushLong:  {name: "PUSHLONG", operand: 8},
	OpPushConst: {name: "PUSHCONST", operand: 2},

	OpLoad:  {name: "LOAD", operand: 1},
	OpStore: {name: "STORE", operand: 1},

	OpPop:  {name: "POP"},
	OpDup:  {name: "DUP"},
	OpSwap: {name: "SWAP"},

	OpGetField:  {name: "GETFIELD", operand: 2},
	OpPutField:  {name: "PUTFIELD", operand: 2},
	OpGetStatic: {name: "GETSTATIC", operand: 2},
	OpPutStatic: {name: "PUTSTATIC", operand: 2},

	OpNew:          {name: "NEW", operand: 2},
	OpInvoke:       {name: "INVOKE", operand: 2},
	OpInvokeStatic: {name: "INVOKESTATIC", operand: 2},

	OpAdd: {name: "ADD"},
	OpSub: {name: "SUB"},
	OpMul: {name: "MUL"},
	OpDiv: {name: "DIV"},
	OpMod: {name: "MOD"},
	OpNeg: {name: "NEG"},

	OpEq: {name: "EQ"},
	OpNe: {name: "NE"},
	OpLt: {name: "LT"},
	OpLe: {name: "LE"},
	OpGt: {name: "GT"},
	OpGe: {name: "GE"},

	OpJump:   {name: "JUMP", operand: 2},
	OpJumpIf: {name: "JUMPIF", operand: 2},

	OpReturn:      {name: "RETURN"},
	OpReturnValue: {name: "RETURNVALUE"},
	OpThrow:       {name: "THROW", operand: 2},

	OpCharge:              {name: "CHARGE", operand: 4, instrOnly: true},
	OpChargeRAM:           {name: "CHARGERAM", operand: 4, instrOnly: true},
	OpGetLazy:             {name: "GETLAZY", operand: 2, instrOnly: true},
	OpFromContract:        {name: "FROMCONTRACT", instrOnly: true},
	OpPayableFromContract: {name: "PAYABLEFROMCONTRACT", instrOnly: true},

	OpJsr:          {name: "JSR", operand: 2, forbidden: true},
	OpRet:          {name: "RET", operand: 1, forbidden: true},
	OpMonitorEnter: {name: "MONITORENTER", forbidden: true},
	OpMonitorExit:  {name: "MONITOREXIT", forbidden: true},
}

func (op Op) String() string {
	if ops[op].name == "" {
		return "UNKNOWN"
	}
	return ops[op].name
}

// Instruction is a decoded bytecode operation.
type Instruction struct {
	Op  Op
	PC  int
	Len int

	// Operand is the raw big-endian operand value.
	Operand uint64
}

// ErrTruncatedCode is returned when code ends inside an instruction.
var ErrTruncatedCode = errors.New("truncated code")

// ErrUnknownOpcode is returned when code contains an undefined opcode.
var ErrUnknownOpcode = errors.New("unknown opcode")

// ParseOp decodes the instruction at pc.
func ParseOp(code []byte, pc int) (Instruction, error) {
	if pc >= len(code) {
		return Instruction{}, ErrTruncatedCode
	}
	op := Op(code[pc])
	info := ops[op]
	if info.name == "" {
		return Instruction{}, errors.Wrapf(ErrUnknownOpcode, "opcode 0x%02x at pc %d", byte(op), pc)
	}
	length := 1 + info.operand
	if pc+length > len(code) {
		return Instruction{}, errors.Wrapf(ErrTruncatedCode, "at pc %d", pc)
	}
	inst := Instruction{Op: op, PC: pc, Len: length}
	switch info.operand {
	case 1:
		inst.Operand = uint64(code[pc+1])
	case 2:
		inst.Operand = uint64(binary.BigEndian.Uint16(code[pc+1:]))
	case 4:
		inst.Operand = uint64(binary.BigEndian.Uint32(code[pc+1:]))
	case 8:
		inst.Operand = binary.BigEndian.Uint64(code[pc+1:])
	}
	return inst, nil
}

// Instructions decodes a whole code attribute.
func Instructions(code []byte) ([]Instruction, error) {
	var out []Instruction
	for pc := 0; pc < len(code); {
		inst, err := ParseOp(code, pc)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
		pc += inst.Len
	}
	return out, nil
}
