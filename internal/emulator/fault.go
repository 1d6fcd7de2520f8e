package emulator

import "fmt"

// FaultCode identifies why execution stopped.
type FaultCode int

// Stable fault codes - do not change values.
const (
	FaultHazard      FaultCode = 1001 // EM1001: operand read before it is ready
	FaultOutOfBounds FaultCode = 1002 // EM1002: memory access out of bounds
	FaultStepLimit   FaultCode = 1003 // EM1003: step limit exceeded
	FaultNoUniform   FaultCode = 1004 // EM1004: uniform stream exhausted
	FaultBadPC       FaultCode = 1005 // EM1005: program counter out of range
	FaultUnsupported FaultCode = 1006 // EM1006: unsupported register or instruction
)

// String returns the code as "EM1001".
func (c FaultCode) String() string {
	return fmt.Sprintf("EM%d", c)
}

// Fault stops the execution of a program.
type Fault struct {
	Code    FaultCode
	Message string
	PC      int
	Step    int
}

func (f *Fault) Error() string {
	return fmt.Sprintf("fault %s at %d (step %d): %s", f.Code, f.PC, f.Step, f.Message)
}

func (e *Emulator) fault(code FaultCode, format string, args ...any) *Fault {
	return &Fault{Code: code, Message: fmt.Sprintf(format, args...), PC: e.st.PC, Step: e.st.Steps}
}
