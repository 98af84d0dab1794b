package padessign

import "errors"

// WorkflowError reports a violated workflow contract, e.g. pre-sign output
// fed to finalize after reordering, or a digest that does not match the
// prepared document.
type WorkflowError struct {
	CodeString string
	Reason     string
}

func (e *WorkflowError) Error() string { return "padessign: " + e.Reason }

// Code returns the stable error code for API surfaces.
func (e *WorkflowError) Code() string { return e.CodeString }

// Coder is implemented by every structured error of this module.
type Coder interface {
	error
	Code() string
}

// ErrorCode extracts the stable code of an error, walking wrapped errors and
// defaulting to internal.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		if coder, ok := e.(Coder); ok {
			return coder.Code()
		}
	}
	return "internal"
}
