// Package embed implements the Embedder Service Client: an HTTP client to
// the local, out-of-process embedding sidecar.
package embed

import (
	"time"

	"github.com/chewxy/math32"
	"github.com/viterin/vek/vek32"
)

const (
	// DefaultHost is where the sidecar is expected to listen.
	DefaultHost = "http://127.0.0.1:8943"

	// DefaultRequestTimeout bounds a single /embed call.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultMaxRetries is the transport-error retry cap (two retries beyond
	// the initial attempt, per the client contract).
	DefaultMaxRetries = 2

	// DefaultPoolSize bounds idle HTTP connections to the sidecar.
	DefaultPoolSize = 4
)

// Config configures the Client.
type Config struct {
	Host           string
	Model          string
	Dimensions     int // 0 leaves it unset until Info fills it from /info
	RequestTimeout time.Duration
	MaxRetries     int
	PoolSize       int
}

// DefaultConfig returns sensible defaults for a locally spawned sidecar.
func DefaultConfig() Config {
	return Config{
		Host:           DefaultHost,
		RequestTimeout: DefaultRequestTimeout,
		MaxRetries:     DefaultMaxRetries,
		PoolSize:       DefaultPoolSize,
	}
}

// healthResponse is the GET /health payload.
type healthResponse struct {
	Status string `json:"status"`
}

// infoResponse is the GET /info payload.
type infoResponse struct {
	ModelID string `json:"model_id"`
	Dim     int    `json:"dim"`
	Device  string `json:"device"`
}

// embedRequest is the POST /embed payload.
type embedRequest struct {
	Texts     []string `json:"texts"`
	Normalize bool     `json:"normalize"`
	Pooling   string   `json:"pooling"`
	BatchSize int      `json:"batch_size"`
}

// embedResponse is the POST /embed payload.
type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// normalizeVector L2-normalizes v in place semantics (returns a new slice);
// used as a defensive fallback if the sidecar ever returns an unnormalized
// vector despite normalize=true.
func normalizeVector(v []float32) []float32 {
	sumSquares := vek32.Dot(v, v)
	if sumSquares == 0 {
		return v
	}
	norm := math32.Sqrt(sumSquares)
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = val / norm
	}
	return out
}
