package intent

import "fmt"

// Stable error codes surfaced to SDK callers. The hosted UI and the
// credential server use the same vocabulary on the wire.
const (
	CodeUserRejected   = "USER_REJECTED"
	CodeUserCancelled  = "USER_CANCELLED"
	CodePopupBlocked   = "POPUP_BLOCKED"
	CodeNetworkError   = "NETWORK_ERROR"
	CodeInvalidRequest = "INVALID_REQUEST"
	CodeInvalidOptions = "INVALID_OPTIONS"
	CodeInvalidChain   = "INVALID_CHAIN"
	CodeInvalidToken   = "INVALID_TOKEN"
	CodePrepareFailed  = "PREPARE_FAILED"
	CodeExecuteFailed  = "EXECUTE_FAILED"
	CodeStatusFailed   = "STATUS_FAILED"
	CodeUserNotFound   = "USER_NOT_FOUND"
	CodeHashTimeout    = "HASH_TIMEOUT"
	CodeSigningFailed  = "SIGNING_FAILED"
	CodeExpired        = "EXPIRED"
	CodeUnknown        = "UNKNOWN"
)

// Error is a coded failure carried through results and over the dialog
// channel. It satisfies the error interface so call sites can wrap it.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// E builds a coded error.
func E(code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the stable code from an error, defaulting to UNKNOWN.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	if ce, ok := err.(*Error); ok {
		return ce.Code
	}
	return CodeUnknown
}
