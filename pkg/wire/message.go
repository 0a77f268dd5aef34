// Package wire implements JSON-RPC 2.0 framing for the hub protocol: message
// envelopes, the error vocabulary, and the inbound decode path. It knows
// nothing about methods or sessions; the rpc package interprets what wire
// decodes.
package wire

import (
	"encoding/json"
)

// Version is the JSON-RPC protocol version carried by every message.
const Version = "2.0"

// NullID is the id used when the request id could not be recovered, per the
// JSON-RPC 2.0 parse error rules.
var NullID = json.RawMessage("null")

// Message is a JSON-RPC 2.0 envelope. The same shape carries requests
// (method + id), notifications (method, no id), and responses (result or
// error + id). IDs stay raw so number and string ids round-trip verbatim.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// IsRequest reports whether the message is a call expecting a response.
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether the message is a call with no response.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether the message answers an earlier request.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (len(m.Result) > 0 || m.Error != nil)
}

// Encode marshals the message for the transport.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// NewResponse builds a success response echoing the request id.
func NewResponse(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response echoing the request id. A nil id
// becomes the JSON null id.
func NewErrorResponse(id json.RawMessage, rpcErr *Error) *Message {
	if len(id) == 0 {
		id = NullID
	}
	return &Message{JSONRPC: Version, ID: id, Error: rpcErr}
}

// NewNotification builds a server-to-client notification.
func NewNotification(method string, params any) (*Message, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: Version, Method: method, Params: raw}, nil
}
