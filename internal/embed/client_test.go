package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient(Config{Host: srv.URL, Dimensions: 4})
	return srv, c
}

func TestHealthReturnsNilOnOK(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
	})
	assert.NoError(t, c.Health(context.Background()))
}

func TestHealthReturnsSidecarDownOnBadStatus(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(healthResponse{Status: "degraded"})
	})
	err := c.Health(context.Background())
	require.Error(t, err)
}

func TestInfoCachesModelAndDims(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(infoResponse{ModelID: "test-model", Dim: 8, Device: "cpu"})
	})
	require.NoError(t, c.Info(context.Background()))
	assert.Equal(t, "test-model", c.ModelID())
	assert.Equal(t, 8, c.Dimensions())
}

func TestEmbedReturnsNormalizedVectors(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{3, 4, 0, 0}}})
	})
	vectors, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.InDelta(t, 0.6, vectors[0][0], 0.01)
	assert.InDelta(t, 0.8, vectors[0][1], 0.01)
}

func TestEmbedFailsFatalOnDimensionMismatch(t *testing.T) {
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{1, 2}}})
	})
	_, err := c.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
}

func TestEmbedRetriesOn5xxThenSucceeds(t *testing.T) {
	attempts := 0
	_, c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(embedResponse{Vectors: [][]float32{{1, 0, 0, 0}}})
	})
	vectors, err := c.Embed(context.Background(), []string{"hello"})
	require.NoError(t, err)
	assert.Len(t, vectors, 1)
	assert.Equal(t, 2, attempts)
}
