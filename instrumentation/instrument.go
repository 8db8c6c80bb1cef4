package instrumentation

import (
	"encoding/binary"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/verification"
)

// Instrument rewrites a verified module:
//
//   - a CHARGE bytecode heads every basic block, sized by the static
//     CPU cost of the block;
//   - a CHARGERAM bytecode precedes every allocation;
//   - from-contract code gains a prologue that stores the caller on
//     the callee and, for payable code, transfers the amount;
//   - reads of lazily loaded fields dispatch to GETLAZY, which loads
//     the value on demand from the history of the object.
//
// The rewrite is deterministic, so every node produces byte-identical
// instrumented jars for the same verified input.
func Instrument(v *verification.VerifiedJar, env *verification.Env, gcm *GasCostModel) (*verification.Module, error) {
	if v.HasErrors() {
		return nil, errors.New("cannot instrument a jar with verification errors")
	}
	for _, c := range v.Module.Classes {
		for _, m := range c.Methods {
			if m.Is(verification.FlagNative) {
				continue
			}
			code, err := instrumentCode(c, m, env, gcm)
			if err != nil {
				return nil, errors.Wrapf(err, "instrumenting %s.%s", c.Name, m.Name)
			}
			m.Code = code
		}
	}
	return v.Module, nil
}

// instrumentCode rewrites the code of one method.
func instrumentCode(c *verification.Class, m *verification.Method, env *verification.Env, gcm *GasCostModel) ([]byte, error) {
	insts, err := verification.Instructions(m.Code)
	if err != nil {
		return nil, err
	}

	leaders := findLeaders(insts)
	blockCost := blockCosts(insts, leaders, gcm)

	// prologue of from-contract code
	var prologue []byte
	if m.Is(verification.FlagFromContract) && !m.Is(verification.FlagStatic) {
		if m.Is(verification.FlagPayable) || m.Is(verification.FlagRedPayable) {
			prologue = []byte{byte(verification.OpPayableFromContract)}
		} else {
			prologue = []byte{byte(verification.OpFromContract)}
		}
	}

	// first pass: the new position of every old instruction
	const chargeLen = 5 // CHARGE and CHARGERAM: opcode + 4-byte amount
	newPC := make(map[int]int, len(insts))
	pos := len(prologue)
	for _, inst := range insts {
		if leaders[inst.PC] {
			newPC[inst.PC] = pos // jumps to a leader land on its CHARGE
			pos += chargeLen
		} else {
			newPC[inst.PC] = pos
		}
		if inst.Op == verification.OpNew {
			pos += chargeLen
		}
		pos += inst.Len
	}

	// second pass: emit
	out := make([]byte, 0, pos)
	out = append(out, prologue...)
	for _, inst := range insts {
		if leaders[inst.PC] {
			out = appendCharge(out, verification.OpCharge, blockCost[inst.PC])
		}

		switch inst.Op {
		case verification.OpJump, verification.OpJumpIf:
			target, ok := newPC[int(inst.Operand)]
			if !ok {
				return nil, errors.New("jump to unmapped target")
			}
			out = append(out, byte(inst.Op))
			var buf [2]byte
			binary.BigEndian.PutUint16(buf[:], uint16(target))
			out = append(out, buf[:]...)

		case verification.OpNew:
			out = appendCharge(out, verification.OpChargeRAM, allocationCost(c, inst, env, gcm))
			out = append(out, m.Code[inst.PC:inst.PC+inst.Len]...)

		case verification.OpGetField:
			if sig, ok := fieldAt(c, inst.Operand); ok && env.IsLazy(sig.Type) {
				out = append(out, byte(verification.OpGetLazy))
				out = append(out, m.Code[inst.PC+1:inst.PC+inst.Len]...)
			} else {
				out = append(out, m.Code[inst.PC:inst.PC+inst.Len]...)
			}

		default:
			out = append(out, m.Code[inst.PC:inst.PC+inst.Len]...)
		}
	}
	return out, nil
}

// findLeaders yields the program points that start a basic block: the
// entry, every jump target and every instruction following a jump,
// return or throw.
func findLeaders(insts []verification.Instruction) map[int]bool {
	leaders := map[int]bool{0: true}
	for i, inst := range insts {
		switch inst.Op {
		case verification.OpJump, verification.OpJumpIf:
			leaders[int(inst.Operand)] = true
			if i+1 < len(insts) {
				leaders[insts[i+1].PC] = true
			}
		case verification.OpReturn, verification.OpReturnValue, verification.OpThrow:
			if i+1 < len(insts) {
				leaders[insts[i+1].PC] = true
			}
		}
	}
	return leaders
}

// blockCosts sums the static CPU cost of each basic block, keyed by
// its leader.
func blockCosts(insts []verification.Instruction, leaders map[int]bool, gcm *GasCostModel) map[int]uint32 {
	costs := make(map[int]uint32, len(leaders))
	current := 0
	for _, inst := range insts {
		if leaders[inst.PC] {
			current = inst.PC
		}
		cost := gcm.CPUInstructionCost
		switch inst.Op {
		case verification.OpNew, verification.OpInvoke, verification.OpInvokeStatic:
			cost += gcm.CPUCallCost
		}
		costs[current] += uint32(cost)
	}
	return costs
}

// allocationCost yields the RAM cost of the object created by a NEW
// bytecode: the base allocation cost plus a per-field cost.
func allocationCost(c *verification.Class, inst verification.Instruction, env *verification.Env, gcm *GasCostModel) uint32 {
	fields := 0
	if int(inst.Operand) < len(c.Pool) {
		k := c.Pool[inst.Operand]
		if class, ok := env.Lookup(string(k.Method.Class)); ok {
			for name := class; name != nil; {
				fields += len(name.Fields)
				next, ok := env.Lookup(name.Superclass)
				if !ok {
					break
				}
				name = next
			}
		}
	}
	return uint32(gcm.RAMObjectAllocationCost + int64(fields)*gcm.RAMFieldCost)
}

// fieldAt resolves a field pool entry of the class.
func fieldAt(c *verification.Class, index uint64) (beans.FieldSignature, bool) {
	if index >= uint64(len(c.Pool)) {
		return beans.FieldSignature{}, false
	}
	k := c.Pool[index]
	if !k.IsField() {
		return beans.FieldSignature{}, false
	}
	return k.Field, true
}

func appendCharge(out []byte, op verification.Op, amount uint32) []byte {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], amount)
	out = append(out, byte(op))
	return append(out, buf[:]...)
}
