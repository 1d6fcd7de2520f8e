package diag

import (
	"errors"
	"fmt"
)

// Stage is the part of the compiler that rejected a construct.
type Stage uint8

const (
	StageGeneral Stage = iota
	StageParser
	StageNormalization
	StageLowering
	StageOptimizer
	StageCodegen
)

func (s Stage) String() string {
	switch s {
	case StageParser:
		return "parser"
	case StageNormalization:
		return "normalization"
	case StageLowering:
		return "lowering"
	case StageOptimizer:
		return "optimizer"
	case StageCodegen:
		return "codegen"
	}
	return "general"
}

// defaultCode is used when an error is raised by stage only.
func (s Stage) defaultCode() Code {
	switch s {
	case StageParser:
		return ParseBadInput
	case StageNormalization:
		return NormUnsupported
	case StageLowering:
		return LowerUnsupportedType
	case StageOptimizer:
		return OptNoFixed
	case StageCodegen:
		return CodegenUnsupported
	}
	return GeneralError
}

// CompilationError aborts the compilation of the current method. Construct is
// the textual form of the offending instruction, type or value.
type CompilationError struct {
	Stage     Stage
	Code      Code
	Message   string
	Construct string
}

func (e *CompilationError) Error() string {
	if e.Construct == "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Stage, e.Message, e.Construct)
}

// Errorf builds a CompilationError with the default code of stage.
func Errorf(stage Stage, construct, format string, args ...any) error {
	return &CompilationError{
		Stage:     stage,
		Code:      stage.defaultCode(),
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
	}
}

// CodeErrorf builds a CompilationError for a specific code; the stage follows
// from the code.
func CodeErrorf(code Code, construct, format string, args ...any) error {
	return &CompilationError{
		Stage:     code.Stage(),
		Code:      code,
		Message:   fmt.Sprintf(format, args...),
		Construct: construct,
	}
}

// StageOf returns the stage of the first CompilationError in err's chain.
func StageOf(err error) (Stage, bool) {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return ce.Stage, true
	}
	return StageGeneral, false
}

// CodeOf returns the code of the first CompilationError in err's chain, or
// GeneralError.
func CodeOf(err error) Code {
	var ce *CompilationError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return GeneralError
}
