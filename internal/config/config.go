// Package config implements the Config Store: layered defaults, persisted
// to a single YAML file, with environment-variable overrides applied last.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/renameio"
	"gopkg.in/yaml.v3"
)

// FileName is the on-disk name of the project config file.
const FileName = ".docindex.yaml"

// CPUThrottle bounds how aggressively the pipeline consumes CPU and I/O.
type CPUThrottle string

const (
	ThrottleLow    CPUThrottle = "low"
	ThrottleMedium CPUThrottle = "medium"
	ThrottleHigh   CPUThrottle = "high"
)

// Config is the complete, persisted configuration for one watched project.
type Config struct {
	Version     int               `yaml:"version"`
	Paths       PathsConfig       `yaml:"paths"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Embeddings  EmbeddingsConfig  `yaml:"embeddings"`
	Performance PerformanceConfig `yaml:"performance"`
	Store       StoreConfig       `yaml:"store"`
}

// PathsConfig configures which paths the Folder Watcher covers.
type PathsConfig struct {
	Roots   []string `yaml:"roots"`
	Exclude []string `yaml:"exclude"`
}

// ChunkingConfig configures the Chunker's window size.
type ChunkingConfig struct {
	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
}

// EmbeddingsConfig configures the Embedder Service Client.
type EmbeddingsConfig struct {
	SidecarHost       string `yaml:"sidecar_host"`
	Model             string `yaml:"model"`
	Dimensions        int    `yaml:"dimensions"`
	BatchSize         int    `yaml:"batch_size"`
	MaxTokensPerBatch int    `yaml:"max_tokens_per_batch"`
}

// PerformanceConfig configures pipeline concurrency and resource bounds.
type PerformanceConfig struct {
	CPUThrottle      CPUThrottle `yaml:"cpu_throttle"`
	MaxConcurrentBatches int     `yaml:"max_concurrent_batches"`
	MaxFileSizeBytes int64       `yaml:"max_file_size_bytes"`
	WatchDebounce    string      `yaml:"watch_debounce"`
}

// StoreConfig configures the Vector Store Writer's compaction behavior.
type StoreConfig struct {
	DataDir                string  `yaml:"data_dir"`
	CompactionOrphanRatio  float64 `yaml:"compaction_orphan_ratio"`
	CompactionCountTrigger int     `yaml:"compaction_count_trigger"`
}

var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/.docindex/**",
	"**/dist/**",
	"**/build/**",
}

// New returns a Config populated with the documented defaults.
func New() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Roots:   []string{},
			Exclude: defaultExcludePatterns,
		},
		Chunking: ChunkingConfig{
			ChunkSize:    1500,
			ChunkOverlap: 200,
		},
		Embeddings: EmbeddingsConfig{
			SidecarHost:       "http://127.0.0.1:8943",
			Model:             "",
			Dimensions:        0,
			BatchSize:         32,
			MaxTokensPerBatch: 8000,
		},
		Performance: PerformanceConfig{
			CPUThrottle:          ThrottleMedium,
			MaxConcurrentBatches: maxConcurrentBatchesFor(ThrottleMedium),
			MaxFileSizeBytes:     50 * 1024 * 1024,
			WatchDebounce:        "500ms",
		},
		Store: StoreConfig{
			DataDir:                defaultDataDir(),
			CompactionOrphanRatio:  0.2,
			CompactionCountTrigger: 50000,
		},
	}
}

// maxConcurrentBatchesFor resolves the cpuThrottle Open Question (SPEC_FULL §5.2):
// low/medium allow a single in-flight batch, high allows two.
func maxConcurrentBatchesFor(t CPUThrottle) int {
	switch t {
	case ThrottleHigh:
		return 2
	default:
		return 1
	}
}

// PollIntervalFor maps cpuThrottle to the watcher's polling-fallback interval.
func PollIntervalFor(t CPUThrottle) time.Duration {
	switch t {
	case ThrottleLow:
		return 2 * time.Second
	case ThrottleHigh:
		return 250 * time.Millisecond
	default:
		return time.Second
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".docindex")
	}
	return filepath.Join(home, ".docindex")
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Load builds a Config for the project at dir in order of increasing
// precedence: hardcoded defaults, then the project's .docindex.yaml, then
// DOCINDEX_* environment variables. The result is validated before return.
func Load(dir string) (*Config, error) {
	cfg := New()

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(dir string) error {
	path := filepath.Join(dir, FileName)
	if !fileExists(path) {
		return nil
	}
	return c.loadYAML(path)
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith overlays non-zero fields from other onto c. Exclude patterns are
// appended rather than replaced so project config can add to, not clobber,
// the built-in always-ignored set.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if len(other.Paths.Roots) > 0 {
		c.Paths.Roots = other.Paths.Roots
	}
	if len(other.Paths.Exclude) > 0 {
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}
	if other.Chunking.ChunkSize != 0 {
		c.Chunking.ChunkSize = other.Chunking.ChunkSize
	}
	if other.Chunking.ChunkOverlap != 0 {
		c.Chunking.ChunkOverlap = other.Chunking.ChunkOverlap
	}
	if other.Embeddings.SidecarHost != "" {
		c.Embeddings.SidecarHost = other.Embeddings.SidecarHost
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.MaxTokensPerBatch != 0 {
		c.Embeddings.MaxTokensPerBatch = other.Embeddings.MaxTokensPerBatch
	}
	if other.Performance.CPUThrottle != "" {
		c.Performance.CPUThrottle = other.Performance.CPUThrottle
		c.Performance.MaxConcurrentBatches = maxConcurrentBatchesFor(other.Performance.CPUThrottle)
	}
	if other.Performance.MaxConcurrentBatches != 0 {
		c.Performance.MaxConcurrentBatches = other.Performance.MaxConcurrentBatches
	}
	if other.Performance.MaxFileSizeBytes != 0 {
		c.Performance.MaxFileSizeBytes = other.Performance.MaxFileSizeBytes
	}
	if other.Performance.WatchDebounce != "" {
		c.Performance.WatchDebounce = other.Performance.WatchDebounce
	}
	if other.Store.DataDir != "" {
		c.Store.DataDir = other.Store.DataDir
	}
	if other.Store.CompactionOrphanRatio != 0 {
		c.Store.CompactionOrphanRatio = other.Store.CompactionOrphanRatio
	}
	if other.Store.CompactionCountTrigger != 0 {
		c.Store.CompactionCountTrigger = other.Store.CompactionCountTrigger
	}
}

// applyEnvOverrides applies DOCINDEX_* environment variables, the highest
// precedence layer.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("DOCINDEX_SIDECAR_HOST"); v != "" {
		c.Embeddings.SidecarHost = v
	}
	if v := os.Getenv("DOCINDEX_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("DOCINDEX_CPU_THROTTLE"); v != "" {
		t := CPUThrottle(strings.ToLower(v))
		c.Performance.CPUThrottle = t
		c.Performance.MaxConcurrentBatches = maxConcurrentBatchesFor(t)
	}
	if v := os.Getenv("DOCINDEX_MAX_FILE_SIZE_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Performance.MaxFileSizeBytes = n
		}
	}
	if v := os.Getenv("DOCINDEX_DATA_DIR"); v != "" {
		c.Store.DataDir = v
	}
}

// Validate rejects configurations that would violate pipeline invariants.
func (c *Config) Validate() error {
	if c.Chunking.ChunkSize <= 0 {
		return fmt.Errorf("chunking.chunk_size must be positive")
	}
	if c.Chunking.ChunkOverlap < 0 || c.Chunking.ChunkOverlap >= c.Chunking.ChunkSize {
		return fmt.Errorf("chunking.chunk_overlap must be >= 0 and < chunk_size")
	}
	if c.Performance.MaxConcurrentBatches <= 0 {
		return fmt.Errorf("performance.max_concurrent_batches must be positive")
	}
	if c.Performance.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("performance.max_file_size_bytes must be positive")
	}
	if c.Store.CompactionOrphanRatio < 0 || c.Store.CompactionOrphanRatio > 1 {
		return fmt.Errorf("store.compaction_orphan_ratio must be in [0,1]")
	}
	switch c.Performance.CPUThrottle {
	case ThrottleLow, ThrottleMedium, ThrottleHigh:
	default:
		return fmt.Errorf("performance.cpu_throttle must be one of low|medium|high, got %q", c.Performance.CPUThrottle)
	}
	return nil
}

// Save persists the config to dir/.docindex.yaml atomically: the new content
// is written to a temp file and renamed into place so a crash mid-write
// never leaves a truncated config for the next Load to choke on.
func (c *Config) Save(dir string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(dir, FileName)
	return renameio.WriteFile(path, data, 0o644)
}

// WatchDebounceDuration parses Performance.WatchDebounce, defaulting to
// 500ms on a malformed value.
func (c *Config) WatchDebounceDuration() time.Duration {
	d, err := time.ParseDuration(c.Performance.WatchDebounce)
	if err != nil {
		return 500 * time.Millisecond
	}
	return d
}
