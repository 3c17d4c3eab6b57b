// Package snaperr defines the error taxonomy used across snapwatch so
// callers can distinguish failure classes with errors.As instead of
// string-matching messages.
package snaperr

import "fmt"

// Kind identifies one of the error classes spec.md's error handling
// design names.
type Kind string

const (
	KindConnect        Kind = "connect"
	KindProtocol       Kind = "protocol"
	KindStageTimeout   Kind = "stage_timeout"
	KindCaptureTimeout Kind = "capture_timeout"
	KindBrowserCrashed Kind = "browser_crashed"
	KindCompare        Kind = "compare"
	KindConfig         Kind = "config"
)

// Error is a taxonomy-tagged wrapped error.
type Error struct {
	Kind Kind
	Op   string // what was being attempted, e.g. "navigate", "eval"
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func ConnectError(op string, err error) *Error        { return newErr(KindConnect, op, err) }
func ProtocolError(op string, err error) *Error       { return newErr(KindProtocol, op, err) }
func StageTimeoutError(stage string, err error) *Error {
	return newErr(KindStageTimeout, stage, err)
}
func CaptureTimeoutError(job string, err error) *Error {
	return newErr(KindCaptureTimeout, job, err)
}
func BrowserCrashedError(op string, err error) *Error { return newErr(KindBrowserCrashed, op, err) }
func CompareError(op string, err error) *Error        { return newErr(KindCompare, op, err) }
func ConfigError(op string, err error) *Error         { return newErr(KindConfig, op, err) }

// Is reports whether the first *Error found in err's chain has the given
// Kind; taxonomy errors wrapped further inside that one are not checked.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if se, ok := err.(*Error); ok {
			e = se
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
