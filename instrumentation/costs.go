// Package instrumentation rewrites verified bytecode so that gas
// accounting, caller passing and lazy field loading happen
// transparently at run time.
package instrumentation

import (
	"math/big"
)

// GasCostModel is the pluggable table of gas costs: per-opcode CPU
// units, RAM units for allocations and storage units for persisted
// bytes.
type GasCostModel struct {
	// CPUBaseTransactionCost is charged at the start of every
	// non-initial transaction.
	CPUBaseTransactionCost int64

	// CPUInstructionCost is the CPU cost of one bytecode.
	CPUInstructionCost int64

	// CPUCallCost is the extra CPU cost of a call bytecode.
	CPUCallCost int64

	// CPUPerByteInstallingJar scales the CPU cost of a jar-store
	// with the size of the jar.
	CPUPerByteInstallingJar int64

	// RAMPerByteInstallingJar scales the RAM cost of a jar-store
	// with the size of the jar.
	RAMPerByteInstallingJar int64

	// RAMObjectAllocationCost is charged before every allocation.
	RAMObjectAllocationCost int64

	// RAMFieldCost is charged per field of an allocated object.
	RAMFieldCost int64

	// StorageCostPerByte scales the storage cost of a response with
	// the size of its marshalling.
	StorageCostPerByte int64
}

// Default yields the standard cost model.
func Default() *GasCostModel {
	return &GasCostModel{
		CPUBaseTransactionCost:  10,
		CPUInstructionCost:      1,
		CPUCallCost:             5,
		CPUPerByteInstallingJar: 1,
		RAMPerByteInstallingJar: 1,
		RAMObjectAllocationCost: 16,
		RAMFieldCost:            4,
		StorageCostPerByte:      1,
	}
}

// CPUCostForInstallingJar yields the CPU cost of installing a jar of
// the given size.
func (g *GasCostModel) CPUCostForInstallingJar(size int) *big.Int {
	return big.NewInt(g.CPUPerByteInstallingJar * int64(size))
}

// RAMCostForInstallingJar yields the RAM cost of installing a jar of
// the given size.
func (g *GasCostModel) RAMCostForInstallingJar(size int) *big.Int {
	return big.NewInt(g.RAMPerByteInstallingJar * int64(size))
}

// StorageCostOf yields the storage cost of persisting the given
// number of bytes.
func (g *GasCostModel) StorageCostOf(size int) *big.Int {
	return big.NewInt(g.StorageCostPerByte * int64(size))
}
