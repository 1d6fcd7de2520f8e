package diag

import (
	"fmt"
)

type Code uint16

const (
	UnknownCode Code = 0

	// Input and arity errors
	ParseInfo          Code = 1000
	ParseArity         Code = 1001
	ParseBadInput      Code = 1002
	ParseUnknownType   Code = 1003
	ParseUnknownValue  Code = 1004
	ParseUnknownMethod Code = 1005

	// Normalization
	NormInfo                   Code = 2000
	NormUnimplementedContainer Code = 2001
	NormUnresolvedLifetime     Code = 2002
	NormUnsupported            Code = 2003
	NormInvalidIR              Code = 2004

	// Lowering of types and intrinsics
	LowerInfo             Code = 3000
	LowerUnsupportedType  Code = 3001
	LowerUnknownIntrinsic Code = 3002
	LowerUnsupportedShape Code = 3003

	// Optimizer
	OptInfo        Code = 4000
	OptNoFixed     Code = 4001
	OptUnknownPass Code = 4002

	// Code generation
	CodegenInfo               Code = 5000
	CodegenRegistersExhausted Code = 5001
	CodegenUnsupported        Code = 5002
	CodegenUnresolvedLabel    Code = 5003

	// Observability
	ObsInfo    Code = 6000
	ObsTimings Code = 6001

	// General
	GeneralInfo  Code = 9000
	GeneralError Code = 9001
	IOLoadError  Code = 9002
	CacheError   Code = 9003
)

var (
	codeDescription = map[Code]string{
		UnknownCode:                "Unknown error",
		ParseInfo:                  "Input information",
		ParseArity:                 "Invalid numbers of method arguments",
		ParseBadInput:              "Malformed module description",
		ParseUnknownType:           "Unknown type",
		ParseUnknownValue:          "Unknown value",
		ParseUnknownMethod:         "Unknown method",
		NormInfo:                   "Normalization information",
		NormUnimplementedContainer: "Container access on a non-vector aggregate",
		NormUnresolvedLifetime:     "Lifetime pointer does not resolve to a stack allocation",
		NormUnsupported:            "Construct not supported by normalization",
		NormInvalidIR:              "Invalid intermediate representation",
		LowerInfo:                  "Lowering information",
		LowerUnsupportedType:       "Type conversion not supported",
		LowerUnknownIntrinsic:      "Unknown intrinsic operation",
		LowerUnsupportedShape:      "Operand shape not supported",
		OptInfo:                    "Optimizer information",
		OptNoFixed:                 "Optimizer did not reach a fixed point",
		OptUnknownPass:             "Unknown optimization pass",
		CodegenInfo:                "Code generation information",
		CodegenRegistersExhausted:  "Not enough registers",
		CodegenUnsupported:         "Instruction not supported by the code generator",
		CodegenUnresolvedLabel:     "Branch to an unknown label",
		ObsInfo:                    "Observability information",
		ObsTimings:                 "Pipeline timings",
		GeneralInfo:                "Information",
		GeneralError:               "Compilation failed",
		IOLoadError:                "I/O load file error",
		CacheError:                 "Kernel cache error",
	}
)

func (c Code) ID() string {
	if c == UnknownCode {
		return "VC0000"
	}
	return fmt.Sprintf("VC%04d", int(c))
}

// Stage maps the code range to the stage that reports it.
func (c Code) Stage() Stage {
	switch ic := int(c); {
	case ic >= 1000 && ic < 2000:
		return StageParser
	case ic >= 2000 && ic < 3000:
		return StageNormalization
	case ic >= 3000 && ic < 4000:
		return StageLowering
	case ic >= 4000 && ic < 5000:
		return StageOptimizer
	case ic >= 5000 && ic < 6000:
		return StageCodegen
	}
	return StageGeneral
}

func (c Code) Title() string {
	desc, ok := codeDescription[c]
	if !ok {
		return codeDescription[Code(0)]
	}
	return desc
}

func (c Code) String() string {
	return fmt.Sprintf("[%s]: %s", c.ID(), c.Title())
}
