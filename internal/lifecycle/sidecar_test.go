package lifecycle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeCommand(name string, args ...string) *exec.Cmd {
	return exec.Command("sleep", "30")
}

func TestStartWaitsForHealthThenReturns(t *testing.T) {
	srv := httptest.NewServer(okHandler())
	defer srv.Close()

	s := NewSupervisor(Spec{Command: "sleep", Args: []string{"30"}, HealthURL: srv.URL})
	s.execCommand = fakeCommand

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	defer s.Stop()
}

func TestStartFailsOnStartupTimeoutWhenNeverHealthy(t *testing.T) {
	srv := httptest.NewServer(notReadyHandler())
	defer srv.Close()

	s := NewSupervisor(Spec{Command: "sleep", Args: []string{"30"}, HealthURL: srv.URL})
	s.execCommand = fakeCommand

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := s.Start(ctx)
	assert.Error(t, err)
}

func TestStopSignalsCleanExit(t *testing.T) {
	srv := httptest.NewServer(okHandler())
	defer srv.Close()

	s := NewSupervisor(Spec{Command: "sleep", Args: []string{"30"}, HealthURL: srv.URL})
	s.execCommand = fakeCommand

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Start(ctx))
	assert.NoError(t, s.Stop())
}

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	}
}

func notReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}
}
