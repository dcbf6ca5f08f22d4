package errcode

import "errors"

// Code is a stable error identifier shared by the registry, the probe
// engine and drivers. It is a string newtype, comparable, allocation-free,
// and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes (short, stable).
const (
	OK    Code = "ok"
	Error Code = "error" // generic fallback

	// Probe outcomes.
	NotMatch         Code = "not_match"
	MalformedTree    Code = "malformed_tree"
	IrqParserMissing Code = "irq_parser_missing"
	NoDevice         Code = "no_device"

	// Registry and slot access.
	UsedByOthers   Code = "used_by_others"
	UsedByUnknown  Code = "used_by_unknown"
	TypeNotMatch   Code = "type_not_match"
	DeviceReleased Code = "device_released"
	NotFound       Code = "not_found"
	AlreadyExists  Code = "already_exists"

	// Driver pass-through.
	Unsupported   Code = "unsupported"
	InvalidParams Code = "invalid_params"
	Timeout       Code = "timeout"
)

// E wraps a Code with the failing operation, a message and a cause.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error
}

func (e *E) Error() string {
	s := string(e.C)
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Is lets errors.Is(err, errcode.X) match an *E carrying X.
func (e *E) Is(target error) bool {
	c, ok := target.(Code)
	return ok && c == e.C
}

// Wrap builds an *E. A nil cause is allowed.
func Wrap(c Code, op string, err error) *E {
	return &E{C: c, Op: op, Err: err}
}

// New builds an *E with a message and no cause.
func New(c Code, op, msg string) *E {
	return &E{C: c, Op: op, Msg: msg}
}

// Of extracts a Code from an error, defaulting to Error.
// Wrapped chains are searched, so fmt.Errorf("...: %w", code) classifies.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	type coder interface{ Code() Code }
	var x coder
	if errors.As(err, &x) {
		return x.Code()
	}
	var c Code
	if errors.As(err, &c) {
		return c
	}
	return Error
}

// IsSoft reports whether err is resolved inside the probe engine rather
// than returned to the caller of a pass.
func IsSoft(err error) bool {
	switch Of(err) {
	case NotMatch, UsedByOthers, UsedByUnknown:
		return true
	}
	return false
}
