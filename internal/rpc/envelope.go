package rpc

import (
	"encoding/json"
	"strings"
)

// Endpoint paths on the remote server.
const (
	AuthPath    = "/web/session/authenticate"
	CallPath    = "/web/dataset/call_kw"
	DestroyPath = "/web/session/destroy"
)

const protocolVersion = "2.0"

// Request is the JSON-RPC request envelope.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
	ID      string `json:"id"`
}

// Response is the JSON-RPC response envelope. Exactly one of Result and
// Error is meaningful.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Fault          `json:"error,omitempty"`
}

// Fault is the error member of a response envelope.
type Fault struct {
	Code    int       `json:"code"`
	Message string    `json:"message"`
	Data    FaultData `json:"data"`
}

// FaultData carries the server-side exception details.
type FaultData struct {
	Name          string `json:"name,omitempty"`
	Debug         string `json:"debug,omitempty"`
	Message       string `json:"message,omitempty"`
	Arguments     []any  `json:"arguments,omitempty"`
	ExceptionType string `json:"exception_type,omitempty"`
}

// Fault codes and exception names used by the server.
const (
	CodeSessionExpired = 100
	CodeServerError    = 200

	ExceptionSessionExpired = "odoo.http.SessionExpiredException"
	ExceptionMissing        = "odoo.exceptions.MissingError"
	ExceptionAccessDenied   = "odoo.exceptions.AccessDenied"
)

// Expired reports whether the fault signals an expired or invalid session.
func (f Fault) Expired() bool {
	if f.Code == CodeSessionExpired || f.Data.Name == ExceptionSessionExpired {
		return true
	}
	for _, s := range []string{f.Message, f.Data.Message, f.Data.Debug} {
		lower := strings.ToLower(s)
		if strings.Contains(lower, "session expired") || strings.Contains(lower, "session invalid") {
			return true
		}
	}
	return false
}

// Missing reports whether the fault signals a record that does not exist.
func (f Fault) Missing() bool {
	return f.Data.Name == ExceptionMissing
}

type authParams struct {
	DB       string `json:"db"`
	Login    string `json:"login"`
	Password string `json:"password"`
}

type authResult struct {
	UID           json.RawMessage `json:"uid"`
	Username      string          `json:"username"`
	DB            string          `json:"db"`
	ServerVersion string          `json:"server_version"`
	SessionID     string          `json:"session_id"`
}

// Call is one model-method dispatch through call_kw.
type Call struct {
	Model  string         `json:"model"`
	Method string         `json:"method"`
	Args   []any          `json:"args"`
	Kwargs map[string]any `json:"kwargs"`
}
