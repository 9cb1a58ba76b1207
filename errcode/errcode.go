package errcode

// Code is a stable, bus-facing error identifier.
// It is a string newtype, comparable, allocation-free, and implements error.
type Code string

func (c Code) Error() string { return string(c) }

// Canonical codes. These mirror the failure kinds enumerated in §4.E/§7 of
// the main-board CNC design: a caller distinguishes them to decide whether
// to retry, surface a validation message, or report the board absent.
const (
	OK Code = "ok"

	// OsResource: no queue slot / pool exhaustion / mutex-timeout on a shared
	// buffer, after the bounded backoff-and-retry budget is spent.
	OsResource Code = "os_resource"

	// ParamRange: destination/peripheral/address/value outside the accepted
	// set, rejected at router entry before anything is sent on the wire.
	ParamRange Code = "param_range"

	// ParamState: the request is well-formed but refused given current state
	// (e.g. a protected register write without MFG_WRITE_EN set).
	ParamState Code = "param_state"

	// DeviceAbsent: target slot is Disabled.
	DeviceAbsent Code = "device_absent"

	// Timeout: no reply arrived within the caller's budget.
	Timeout Code = "timeout"

	// DeviceReported: the board replied with a non-zero result code.
	DeviceReported Code = "device_reported"

	// Mismatch: a RESP_CNC arrived whose xInfo/cmd_uid did not match the
	// caller's reservation; the payload is still delivered, flagged.
	Mismatch Code = "mismatch"

	Error Code = "error" // generic fallback
)

// E keeps context and a cause alongside a stable Code.
type E struct {
	C   Code
	Op  string
	Msg string
	Err error

	// Allowed is populated for ParamRange so a caller (e.g. an HTTP layer)
	// can render the set of values that would have been accepted.
	Allowed []any
	// Result carries the board's reported result code for DeviceReported.
	Result int
}

func (e *E) Error() string {
	if e.Msg != "" {
		return string(e.C) + ": " + e.Msg
	}
	return string(e.C)
}
func (e *E) Unwrap() error { return e.Err }
func (e *E) Code() Code    { return e.C }

// Of extracts a Code from an error, defaulting to Error.
func Of(err error) Code {
	if err == nil {
		return OK
	}
	if c, ok := err.(Code); ok {
		return c
	}
	type coder interface{ Code() Code }
	if x, ok := err.(coder); ok {
		return x.Code()
	}
	return Error
}

// ParamRangeErr builds a ParamRange error carrying the allowed-values list.
func ParamRangeErr(op, msg string, allowed ...any) error {
	return &E{C: ParamRange, Op: op, Msg: msg, Allowed: allowed}
}

// DeviceReportedErr wraps a non-zero board result code.
func DeviceReportedErr(op string, result int) error {
	return &E{C: DeviceReported, Op: op, Result: result}
}
