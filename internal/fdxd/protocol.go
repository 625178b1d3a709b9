package fdxd

import "encoding/json"

// Wire protocol: JSON-RPC 2.0, one object per line over TCP.

const ProtocolVersion = "2.0"

const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32000
	CodeStoreBusy        = -32010
	CodeStoreUnavailable = -32011
)

type Request struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Method  string           `json:"method"`
	Params  json.RawMessage  `json:"params,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r Request) IsNotification() bool { return r.ID == nil }

type Response struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      *json.RawMessage `json:"id,omitempty"`
	Result  any              `json:"result,omitempty"`
	Error   *ErrorObject     `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func newResult(id *json.RawMessage, result any) Response {
	return Response{JSONRPC: ProtocolVersion, ID: id, Result: result}
}

func newError(id *json.RawMessage, code int, message string) Response {
	return Response{JSONRPC: ProtocolVersion, ID: id, Error: &ErrorObject{Code: code, Message: message}}
}
