package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestNewDefaults(t *testing.T) {
	cfg := New()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ThrottleMedium, cfg.Performance.CPUThrottle)
	assert.Equal(t, 1, cfg.Performance.MaxConcurrentBatches)
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
}

func TestLoadMergesProjectFileOverDefaults(t *testing.T) {
	dir := t.TempDir()
	raw := "embeddings:\n  model: nomic-embed-text\n  dimensions: 768\npaths:\n  roots:\n    - /tmp/docs\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, []string{"/tmp/docs"}, cfg.Paths.Roots)
	// Unset fields still carry the hardcoded defaults.
	assert.Equal(t, 1500, cfg.Chunking.ChunkSize)
}

func TestLoadAppliesEnvOverridesLast(t *testing.T) {
	dir := t.TempDir()
	raw := "embeddings:\n  model: from-file\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(raw), 0o644))

	t.Setenv("DOCINDEX_MODEL", "from-env")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Embeddings.Model)
}

func TestValidateRejectsBadChunkOverlap(t *testing.T) {
	cfg := New()
	cfg.Chunking.ChunkOverlap = cfg.Chunking.ChunkSize
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsUnknownThrottle(t *testing.T) {
	cfg := New()
	cfg.Performance.CPUThrottle = "turbo"
	assert.Error(t, cfg.Validate())
}

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	cfg := New()
	cfg.Embeddings.Model = "round-trip-model"
	require.NoError(t, cfg.Save(dir))

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	require.NoError(t, err)
	var onDisk Config
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, "round-trip-model", onDisk.Embeddings.Model)

	loaded, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "round-trip-model", loaded.Embeddings.Model)
}

func TestBackupAndRestoreConfig(t *testing.T) {
	dir := t.TempDir()
	cfg := New()
	cfg.Embeddings.Model = "v1"
	require.NoError(t, cfg.Save(dir))

	backupPath, err := BackupConfig(dir)
	require.NoError(t, err)
	require.NotEmpty(t, backupPath)

	cfg.Embeddings.Model = "v2"
	require.NoError(t, cfg.Save(dir))

	require.NoError(t, RestoreConfig(dir, backupPath))
	restored, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "v1", restored.Embeddings.Model)
}
