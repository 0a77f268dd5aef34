package wire

import "fmt"

// JSON-RPC 2.0 error codes. The -32000 range is reserved for
// implementation-defined server errors; the hub uses three.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeNotInitialized = -32000
	CodeNotFound       = -32001
	CodeLimitExceeded  = -32002
)

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError builds an error with a formatted message.
func NewError(code int, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithData attaches structured detail to the error and returns it.
func (e *Error) WithData(data any) *Error {
	e.Data = data
	return e
}

// ErrParse builds the canonical -32700 error.
func ErrParse(detail string) *Error {
	e := &Error{Code: CodeParseError, Message: "Parse error"}
	if detail != "" {
		e.Data = detail
	}
	return e
}

// ErrInvalidRequest builds a -32600 error.
func ErrInvalidRequest(detail string) *Error {
	e := &Error{Code: CodeInvalidRequest, Message: "Invalid Request"}
	if detail != "" {
		e.Data = detail
	}
	return e
}

// ErrMethodNotFound builds a -32601 error naming the method.
func ErrMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found", Data: method}
}

// ErrInvalidParams builds a -32602 error.
func ErrInvalidParams(detail string) *Error {
	e := &Error{Code: CodeInvalidParams, Message: "Invalid params"}
	if detail != "" {
		e.Data = detail
	}
	return e
}

// ErrInternal builds a -32603 error.
func ErrInternal(detail string) *Error {
	e := &Error{Code: CodeInternalError, Message: "Internal error"}
	if detail != "" {
		e.Data = detail
	}
	return e
}

// ErrNotInitialized builds the -32000 error returned to any request sent
// before the initialize handshake.
func ErrNotInitialized() *Error {
	return &Error{Code: CodeNotInitialized, Message: "Session not initialized"}
}

// ErrSubscriptionNotFound builds the -32001 error for an unknown or
// foreign subscription id.
func ErrSubscriptionNotFound(id string) *Error {
	return &Error{Code: CodeNotFound, Message: "Subscription not found", Data: id}
}

// ErrLimitExceeded builds the -32002 error for the per-client subscription
// cap.
func ErrLimitExceeded(limit int) *Error {
	return &Error{
		Code:    CodeLimitExceeded,
		Message: "Subscription limit exceeded",
		Data:    fmt.Sprintf("limit of %d subscriptions per client reached", limit),
	}
}
