package ipc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldermind/docindex/internal/orchestrator"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestClientReturnsErrorWhenNotRunning(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "missing.sock")
	client := NewClient(sock, time.Second)

	assert.False(t, client.IsRunning())

	_, err := client.Call(context.Background(), orchestrator.Command{Type: orchestrator.CmdProgress})
	assert.Error(t, err)
}

func TestServerRoundTripsCommandAndResponse(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "docindexd.sock")
	server := NewServer(sock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- server.ListenAndServe(ctx, func(ctx context.Context, env Envelope) Reply {
			assert.Equal(t, orchestrator.CmdProgress, env.Command.Type)
			return NewReply(env.ID, orchestrator.Response{Progress: &orchestrator.ProgressSnapshot{Queued: 3}})
		})
	}()

	require.Eventually(t, func() bool {
		return NewClient(sock, time.Second).IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	client := NewClient(sock, time.Second)
	resp, err := client.Call(context.Background(), orchestrator.Command{Type: orchestrator.CmdProgress})
	require.NoError(t, err)
	require.NotNil(t, resp.Progress)
	assert.Equal(t, 3, resp.Progress.Queued)

	cancel()
	<-serveDone
}

func TestServerRepliesParseErrorOnGarbageInput(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "docindexd.sock")
	server := NewServer(sock, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = server.ListenAndServe(ctx, func(ctx context.Context, env Envelope) Reply {
			return NewReply(env.ID, orchestrator.Response{})
		})
	}()

	require.Eventually(t, func() bool {
		return NewClient(sock, time.Second).IsRunning()
	}, 2*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("unix", sock)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("not json at all\n"))
	require.NoError(t, err)

	var reply Reply
	require.NoError(t, json.NewDecoder(conn).Decode(&reply))
	require.NotNil(t, reply.Error)
	assert.Equal(t, ErrCodeParseError, reply.Error.Code)
}

func TestPIDFileWriteReadRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docindexd.pid")
	pf := NewPIDFile(path)

	_, err := pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)

	require.NoError(t, pf.Write())
	assert.True(t, pf.IsRunning())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	require.NoError(t, pf.Remove())
	_, err = pf.Read()
	assert.ErrorIs(t, err, ErrPIDFileNotFound)
}
