package ir

import "fmt"

// RegisterFile is a set of physical register banks.
type RegisterFile uint8

const (
	FileNone RegisterFile = 0
	// FileA is physical register file A.
	FileA RegisterFile = 1 << iota
	// FileB is physical register file B.
	FileB
	// FileAcc are the accumulators r0-r5.
	FileAcc

	FileAny = FileA | FileB | FileAcc
)

// Register is a physical register. For files A and B numbers 0-31 are the
// general purpose registers and higher numbers select I/O locations.
type Register struct {
	File RegisterFile
	Num  uint8
}

// Special I/O register numbers.
const (
	numUniform        = 32
	numReplicate      = 37
	numElementNumber  = 38
	numNop            = 39
	numSFURecip       = 52
	GeneralRegisters  = 32
	AllocatableAccums = 3 // r0-r2; r3 is scratch, r4 and r5 are special
)

var (
	RegNop           = Register{File: FileA | FileB, Num: numNop}
	RegUniform       = Register{File: FileA | FileB, Num: numUniform}
	RegElementNumber = Register{File: FileA, Num: numElementNumber}
	// RegReplicateAll writes lane 0 of the value into every lane of r5.
	RegReplicateAll = Register{File: FileB, Num: numReplicate}
	// RegSFURecip starts a reciprocal on the special function unit, the
	// result arrives in r4.
	RegSFURecip = Register{File: FileA | FileB, Num: numSFURecip}

	RegAcc0    = Acc(0)
	RegAcc1    = Acc(1)
	RegAcc2    = Acc(2)
	RegScratch = Acc(3)
	RegAcc4    = Acc(4)
	RegAcc5    = Acc(5)
)

// Acc returns accumulator rN.
func Acc(n int) Register {
	return Register{File: FileAcc, Num: uint8(n)} //nolint:gosec // n is 0..5
}

// RegA returns general purpose register n of file A.
func RegA(n int) Register { return Register{File: FileA, Num: uint8(n)} } //nolint:gosec // n < 32

// RegB returns general purpose register n of file B.
func RegB(n int) Register { return Register{File: FileB, Num: uint8(n)} } //nolint:gosec // n < 32

func (r Register) IsAccumulator() bool { return r.File == FileAcc }

// IsGeneralPurpose reports whether r is a plain storage register of file A
// or B.
func (r Register) IsGeneralPurpose() bool {
	return (r.File == FileA || r.File == FileB) && r.Num < GeneralRegisters
}

// IsSpecial reports whether reading or writing r has side effects or
// returns something other than a stored value.
func (r Register) IsSpecial() bool {
	return !r.IsAccumulator() && !r.IsGeneralPurpose()
}

func (r Register) IsNop() bool { return r == RegNop }

func (r Register) String() string {
	switch r {
	case RegNop:
		return "nop"
	case RegUniform:
		return "unif"
	case RegElementNumber:
		return "elem_num"
	case RegReplicateAll:
		return "rep_all"
	case RegSFURecip:
		return "sfu_recip"
	}
	switch r.File {
	case FileAcc:
		return fmt.Sprintf("r%d", r.Num)
	case FileA:
		return fmt.Sprintf("ra%d", r.Num)
	case FileB:
		return fmt.Sprintf("rb%d", r.Num)
	}
	return fmt.Sprintf("reg(%d:%d)", r.File, r.Num)
}
