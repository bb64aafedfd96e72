package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/foldermind/docindex/internal/ierr"
)

// Client is an HTTP client to the local embedding sidecar. It implements the
// embedqueue.Embedder capability and the Vector Store's dimensionality
// check via Dimensions().
type Client struct {
	httpClient *http.Client
	transport  *http.Transport
	cfg        Config

	mu        sync.RWMutex
	modelID   string
	dims      int
	closed    bool
	onRestart func()
}

// NewClient constructs a Client against an already-spawned sidecar. It does
// not itself spawn the process; see the lifecycle package for that.
func NewClient(cfg Config) *Client {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.PoolSize,
		MaxIdleConnsPerHost: cfg.PoolSize,
		MaxConnsPerHost:     cfg.PoolSize * 2,
		IdleConnTimeout:     10 * time.Second,
	}

	return &Client{
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
		cfg:        cfg,
		modelID:    cfg.Model,
		dims:       cfg.Dimensions,
	}
}

// OnRestart registers the callback invoked when the sidecar is reported as
// respawned through NotifyRestart (see markRestarted). The Embedding Queue
// wires this to its own OnRestart recovery.
func (c *Client) OnRestart(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRestart = fn
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/health", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ierr.SidecarDown("sidecar health check failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ierr.SidecarDown(fmt.Sprintf("sidecar health check returned status %d", resp.StatusCode), nil)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return ierr.SidecarDown("sidecar health response malformed", err)
	}
	if health.Status != "ok" {
		return ierr.SidecarDown(fmt.Sprintf("sidecar reported status %q", health.Status), nil)
	}
	return nil
}

// Info calls GET /info and caches the reported model id and dimensionality.
func (c *Client) Info(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Host+"/info", nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ierr.SidecarDown("sidecar info request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return ierr.SidecarDown(fmt.Sprintf("sidecar info returned status %d: %s", resp.StatusCode, body), nil)
	}

	var info infoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return ierr.SidecarDown("sidecar info response malformed", err)
	}

	c.mu.Lock()
	c.modelID = info.ModelID
	c.dims = info.Dim
	c.mu.Unlock()
	return nil
}

// Dimensions returns the embedding dimensionality reported by the sidecar
// (or configured explicitly, if Info was never called).
func (c *Client) Dimensions() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dims
}

// ModelID returns the model identifier last reported by the sidecar.
func (c *Client) ModelID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.modelID
}

// Embed implements embedqueue.Embedder: POST /embed with normalize=true so
// the store can use cosine similarity via inner product.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("embed client is closed")
	}
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := embedRequest{
		Texts:     texts,
		Normalize: true,
		Pooling:   "mean",
		BatchSize: len(texts),
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	// Only transient transport/5xx errors are retried; a fatal error (bad
	// dimension, malformed body) is returned immediately, matching the
	// "malformed responses are fatal for the batch" contract.
	var vectors [][]float32
	delay := 200 * time.Millisecond
	for attempt := 0; ; attempt++ {
		vectors, err = c.doEmbed(ctx, body)
		if err == nil {
			break
		}
		if !ierr.IsRetryable(err) || attempt >= c.cfg.MaxRetries {
			return nil, err
		}
		slog.Debug("embed request failed, retrying", slog.Int("attempt", attempt+1), slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	for i, v := range vectors {
		vectors[i] = normalizeVector(v)
	}
	return vectors, nil
}

func (c *Client) doEmbed(ctx context.Context, body []byte) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.cfg.Host+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, ierr.EmbedderTransient("embed request transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, ierr.EmbedderTransient(fmt.Sprintf("embed request returned status %d: %s", resp.StatusCode, respBody), nil)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, ierr.EmbedderFatal(fmt.Sprintf("embed request returned status %d: %s", resp.StatusCode, respBody), nil)
	}

	var result embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, ierr.EmbedderFatal("embed response malformed", err)
	}

	dims := c.Dimensions()
	if dims > 0 {
		for _, v := range result.Vectors {
			if len(v) != dims {
				return nil, ierr.EmbedderFatal(fmt.Sprintf("embedder returned vector of dimension %d, want %d", len(v), dims), nil)
			}
		}
	}

	return result.Vectors, nil
}

// markRestarted notifies any registered OnRestart callback. Called by the
// lifecycle supervisor after it successfully respawns the sidecar process.
func (c *Client) markRestarted() {
	c.mu.RLock()
	fn := c.onRestart
	c.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// NotifyRestart is the lifecycle supervisor's hook into markRestarted.
func (c *Client) NotifyRestart() { c.markRestarted() }

// Close releases idle connections. Safe to call multiple times.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}
