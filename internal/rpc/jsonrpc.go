// Package rpc is the wire between generals: a JSON-RPC 2.0 codec, the
// chi handler every peer serves on POST /rpc, and the HTTP client the
// launcher and the peers use to reach each other.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/quorum-sim/generals/internal/domain"
)

// ─── JSON-RPC 2.0 ──────────────────────────────────────────────────────────
// Spec: https://www.jsonrpc.org/specification

// JSONRPCVersion is the only valid JSON-RPC version string.
const JSONRPCVersion = "2.0"

// Request is a JSON-RPC 2.0 request object.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"` // string | int | null
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response object.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// ─── Standard JSON-RPC 2.0 Error Codes ─────────────────────────────────────

const (
	CodeParseError     = -32700 // Invalid JSON
	CodeInvalidRequest = -32600 // Not a valid Request object
	CodeMethodNotFound = -32601 // Method does not exist
	CodeInvalidParams  = -32602 // Invalid method parameters
	CodeInternalError  = -32603 // Internal error
)

// Quorum error codes. Each maps to one sentinel in the domain package so
// errors.Is keeps working on the far side of the wire.
const (
	CodeWrongRole       = -32001
	CodeUnknownPeer     = -32002
	CodeInvalidState    = -32003
	CodeInvalidOrder    = -32004
	CodeInvalidCount    = -32005
	CodeQuorumTooSmall  = -32006
	CodeNoSuccessor     = -32007
	CodePeerUnreachable = -32010
)

var codeKinds = []struct {
	code int
	kind error
}{
	{CodeWrongRole, domain.ErrWrongRole},
	{CodeUnknownPeer, domain.ErrUnknownPeer},
	{CodeInvalidState, domain.ErrInvalidFaultState},
	{CodeInvalidOrder, domain.ErrInvalidOrder},
	{CodeInvalidCount, domain.ErrInvalidCount},
	{CodeQuorumTooSmall, domain.ErrQuorumTooSmall},
	{CodeNoSuccessor, domain.ErrNoSuccessor},
	{CodePeerUnreachable, domain.ErrPeerUnreachable},
}

// NewParseError creates a parse error response.
func NewParseError(id any) Response {
	return errResponse(id, CodeParseError, "Parse error")
}

// NewInvalidRequest creates an invalid request error response.
func NewInvalidRequest(id any) Response {
	return errResponse(id, CodeInvalidRequest, "Invalid Request")
}

// NewMethodNotFound creates a method-not-found error response.
func NewMethodNotFound(id any, method string) Response {
	return errResponse(id, CodeMethodNotFound, fmt.Sprintf("Method not found: %s", method))
}

// NewInvalidParams creates an invalid params error response.
func NewInvalidParams(id any, detail string) Response {
	return errResponse(id, CodeInvalidParams, fmt.Sprintf("Invalid params: %s", detail))
}

// NewInternalError creates an internal error response.
func NewInternalError(id any, detail string) Response {
	return errResponse(id, CodeInternalError, fmt.Sprintf("Internal error: %s", detail))
}

// NewErrorResponse encodes err, picking the code of the domain sentinel
// it wraps. The message is err's text so a Rejection arrives verbatim.
func NewErrorResponse(id any, err error) Response {
	return errResponse(id, CodeOf(err), err.Error())
}

// CodeOf returns the error code for err.
func CodeOf(err error) int {
	for _, ck := range codeKinds {
		if errors.Is(err, ck.kind) {
			return ck.code
		}
	}
	return CodeInternalError
}

// NewResult creates a successful response with the given result.
func NewResult(id any, result any) (Response, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return Response{}, fmt.Errorf("marshal result: %w", err)
	}
	return Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Result:  data,
	}, nil
}

// ParseRequest decodes a raw JSON message into a Request.
// Returns an error response if the message is malformed.
func ParseRequest(raw []byte) (Request, *Response) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		resp := NewParseError(nil)
		return Request{}, &resp
	}
	if req.JSONRPC != JSONRPCVersion || req.Method == "" {
		resp := NewInvalidRequest(req.ID)
		return Request{}, &resp
	}
	return req, nil
}

// AsError turns an error object received from a peer back into a Go
// error. Rule codes become a *domain.Rejection carrying the original
// message and sentinel. An unreachable peer further down the call chain
// stays a failure, not a rejection. Anything else stays an *RPCError.
func (e *RPCError) AsError() error {
	if e.Code == CodePeerUnreachable {
		return &RemoteUnreachableError{Message: e.Message}
	}
	for _, ck := range codeKinds {
		if e.Code == ck.code {
			return &domain.Rejection{Message: e.Message, Kind: ck.kind}
		}
	}
	return e
}

// RemoteUnreachableError is reported by a general that could not reach
// one of its own peers while serving a call.
type RemoteUnreachableError struct {
	Message string
}

func (e *RemoteUnreachableError) Error() string { return e.Message }

func (e *RemoteUnreachableError) Unwrap() error { return domain.ErrPeerUnreachable }

func errResponse(id any, code int, message string) Response {
	return Response{
		JSONRPC: JSONRPCVersion,
		ID:      id,
		Error:   &RPCError{Code: code, Message: message},
	}
}
