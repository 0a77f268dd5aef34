package wire

import (
	"bytes"
	"encoding/json"
)

// Decode parses one inbound frame into a message. It distinguishes malformed
// JSON (-32700) from well-formed JSON that is not a valid single request
// (-32600). Batch arrays are well-formed JSON but unsupported here, so they
// map to -32600.
func Decode(data []byte) (*Message, *Error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) == 0 {
		return nil, ErrParse("empty frame")
	}
	if trimmed[0] == '[' {
		if !json.Valid(data) {
			return nil, ErrParse("malformed JSON")
		}
		return nil, ErrInvalidRequest("batch requests are not supported")
	}

	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		if _, ok := err.(*json.UnmarshalTypeError); ok {
			return nil, ErrInvalidRequest(err.Error())
		}
		return nil, ErrParse(err.Error())
	}

	if msg.JSONRPC != Version {
		return nil, ErrInvalidRequest("jsonrpc must be \"2.0\"")
	}
	if msg.Method == "" {
		return nil, ErrInvalidRequest("method is required")
	}
	if !validID(msg.ID) {
		return nil, ErrInvalidRequest("id must be a string, number, or null")
	}
	return &msg, nil
}

// validID accepts absent, null, string, and integer ids. Objects, arrays,
// booleans, and fractional numbers are rejected per JSON-RPC 2.0.
func validID(id json.RawMessage) bool {
	trimmed := bytes.TrimSpace(id)
	if len(trimmed) == 0 {
		return true
	}
	switch trimmed[0] {
	case '{', '[':
		return false
	case 't', 'f':
		return false
	case '"', 'n':
		return json.Valid(trimmed)
	}
	if bytes.ContainsAny(trimmed, ".eE") {
		return false
	}
	return json.Valid(trimmed)
}

// UnmarshalParams decodes request params into a typed payload. Absent or
// null params leave the payload at its zero value, matching methods whose
// params are optional. Unknown fields are tolerated for forward
// compatibility; type mismatches are invalid params.
func UnmarshalParams(params json.RawMessage, v any) *Error {
	if len(params) == 0 || bytes.Equal(bytes.TrimSpace(params), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return ErrInvalidParams(err.Error())
	}
	return nil
}
