package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/foldermind/docindex/internal/orchestrator"
)

// Client connects to a running cmd/docindexd worker over its Unix socket.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient creates a client targeting socketPath, with a per-call timeout.
func NewClient(socketPath string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{socketPath: socketPath, timeout: timeout}
}

// IsRunning reports whether the worker is accepting connections.
func (c *Client) IsRunning() bool {
	conn, err := c.connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

func (c *Client) connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("connect to docindexd at %s: %w", c.socketPath, err)
	}
	return conn, nil
}

func (c *Client) nextID() string {
	return fmt.Sprintf("req-%d", c.requestID.Add(1))
}

// Call sends cmd and blocks for the worker's Response.
func (c *Client) Call(ctx context.Context, cmd orchestrator.Command) (orchestrator.Response, error) {
	conn, err := c.connect()
	if err != nil {
		return orchestrator.Response{}, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return orchestrator.Response{}, fmt.Errorf("set deadline: %w", err)
	}

	env := Envelope{ID: c.nextID(), Command: cmd}
	if err := json.NewEncoder(conn).Encode(env); err != nil {
		return orchestrator.Response{}, fmt.Errorf("send command: %w", err)
	}

	var reply Reply
	if err := json.NewDecoder(conn).Decode(&reply); err != nil {
		return orchestrator.Response{}, fmt.Errorf("receive reply: %w", err)
	}

	if reply.Error != nil {
		return orchestrator.Response{}, reply.Error.toError()
	}
	if reply.Response == nil {
		return orchestrator.Response{}, fmt.Errorf("ipc: empty reply for %s", cmd.Type)
	}
	return *reply.Response, nil
}
