package diag

import "errors"

type Diagnostic struct {
	Severity  Severity
	Code      Code
	Method    string
	Message   string
	Construct string
}

func New(sev Severity, code Code, method, msg string) Diagnostic {
	return Diagnostic{
		Severity: sev,
		Code:     code,
		Method:   method,
		Message:  msg,
	}
}

func NewError(code Code, method, msg string) Diagnostic {
	return New(SevError, code, method, msg)
}

func NewWarning(code Code, method, msg string) Diagnostic {
	return New(SevWarning, code, method, msg)
}

// FromError turns a failed compilation of method into a diagnostic.
func FromError(method string, err error) Diagnostic {
	d := NewError(CodeOf(err), method, err.Error())
	var ce *CompilationError
	if errors.As(err, &ce) {
		d.Message = ce.Message
		d.Construct = ce.Construct
	}
	return d
}

func (d Diagnostic) WithConstruct(c string) Diagnostic {
	d.Construct = c
	return d
}
