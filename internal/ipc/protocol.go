// Package ipc is the transport between cmd/docindex (the CLI) and
// cmd/docindexd (the worker). It carries orchestrator.Command/Response
// values over a Unix domain socket, one JSON envelope per connection,
// generalizing the teacher's JSON-RPC method-dispatch protocol to the
// Orchestrator's tagged-union command surface.
package ipc

import (
	"fmt"

	"github.com/foldermind/docindex/internal/orchestrator"
)

// Envelope error codes. Negative range mirrors JSON-RPC reserved codes so a
// future transport swap (e.g. to real JSON-RPC) doesn't have to renumber.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeInternalError  = -32603
	ErrCodeDispatchFailed = -32001
)

// Envelope wraps a single Command sent from client to worker.
type Envelope struct {
	ID      string             `json:"id"`
	Command orchestrator.Command `json:"command"`
}

// Reply wraps the worker's Response (or an Error) for a given Envelope.ID.
type Reply struct {
	ID       string               `json:"id"`
	Response *orchestrator.Response `json:"response,omitempty"`
	Error    *Error               `json:"error,omitempty"`
}

// Error is a small error shape; Code is one of the ErrCode* values above.
// docindexd reports an error returned by Orchestrator.Dispatch with
// ErrCodeDispatchFailed and the error's text as Message.
type Error struct {
	Code    int    `json:"code,omitempty"`
	Message string `json:"message"`
}

// NewReply builds a successful Reply.
func NewReply(id string, resp orchestrator.Response) Reply {
	return Reply{ID: id, Response: &resp}
}

// NewErrorReply builds a failed Reply.
func NewErrorReply(id string, code int, message string) Reply {
	return Reply{ID: id, Error: &Error{Code: code, Message: message}}
}

func (e *Error) toError() error {
	if e == nil {
		return nil
	}
	return fmt.Errorf("ipc: %s (code %d)", e.Message, e.Code)
}
