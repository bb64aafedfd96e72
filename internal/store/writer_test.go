package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T, vector VectorStore) (*Writer, context.Context) {
	t.Helper()
	chunks, err := OpenChunksRepo(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { chunks.Close() })

	w := NewWriter(chunks, vector, 0.2, 0)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go w.Run(ctx)
	return w, ctx
}

func sampleRow(id, path string) ChunkRow {
	return ChunkRow{
		ID:     id,
		Path:   path,
		MTime:  time.Now().UnixMilli(),
		Page:   0,
		Offset: 0,
		Text:   "hello world",
		Vector: []float32{1, 0, 0, 0},
		Type:   "txt",
		Title:  filepath.Base(path),
	}
}

func TestUpsertChunksThenSearchReturnsText(t *testing.T) {
	w, ctx := newTestWriter(t, NewFakeVectorStore())

	row := sampleRow(ChunkID("/a.txt", 0, 0), "/a.txt")
	require.NoError(t, w.UpsertChunks(ctx, []ChunkRow{row}))

	results, err := w.Search(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "hello world", results[0].Text)
	assert.Equal(t, "a.txt", results[0].Title)
}

func TestUpsertChunksReplacesExistingID(t *testing.T) {
	w, ctx := newTestWriter(t, NewFakeVectorStore())

	id := ChunkID("/a.txt", 0, 0)
	require.NoError(t, w.UpsertChunks(ctx, []ChunkRow{sampleRow(id, "/a.txt")}))

	updated := sampleRow(id, "/a.txt")
	updated.Text = "updated text"
	require.NoError(t, w.UpsertChunks(ctx, []ChunkRow{updated}))

	assert.Equal(t, 1, w.Count())
	results, err := w.Search(ctx, []float32{1, 0, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "updated text", results[0].Text)
}

func TestDeleteByPathRemovesRowsAndVectors(t *testing.T) {
	w, ctx := newTestWriter(t, NewFakeVectorStore())

	require.NoError(t, w.UpsertChunks(ctx, []ChunkRow{
		sampleRow(ChunkID("/a.txt", 0, 0), "/a.txt"),
		sampleRow(ChunkID("/a.txt", 0, 10), "/a.txt"),
	}))
	assert.Equal(t, 2, w.Count())

	require.NoError(t, w.DeleteByPath(ctx, "/a.txt"))
	assert.Equal(t, 0, w.Count())
}

func TestWriteRetriesOnceOnConflictThenSucceeds(t *testing.T) {
	w, ctx := newTestWriter(t, newConflictThenOKVectorStore(1))

	err := w.UpsertChunks(ctx, []ChunkRow{sampleRow(ChunkID("/a.txt", 0, 0), "/a.txt")})
	require.NoError(t, err)
	assert.Equal(t, 1, w.Count())
}

func TestWriteFailsFatalWhenConflictPersists(t *testing.T) {
	w, ctx := newTestWriter(t, newConflictThenOKVectorStore(2))

	err := w.UpsertChunks(ctx, []ChunkRow{sampleRow(ChunkID("/a.txt", 0, 0), "/a.txt")})
	require.Error(t, err)
}

func TestEnsureSchemaWipesOnVersionMismatch(t *testing.T) {
	chunks, err := OpenChunksRepo(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	defer chunks.Close()

	require.NoError(t, chunks.Upsert([]ChunkRow{sampleRow("x", "/a.txt")}))
	require.NoError(t, chunks.SetSchemaVersion(CurrentSchemaVersion - 1))

	wiped, err := EnsureSchema(chunks)
	require.NoError(t, err)
	assert.True(t, wiped)

	count, err := chunks.Count()
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestEnsureSchemaNoOpWhenVersionCurrent(t *testing.T) {
	chunks, err := OpenChunksRepo(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	defer chunks.Close()

	require.NoError(t, chunks.Upsert([]ChunkRow{sampleRow("x", "/a.txt")}))
	require.NoError(t, chunks.SetSchemaVersion(CurrentSchemaVersion))

	wiped, err := EnsureSchema(chunks)
	require.NoError(t, err)
	assert.False(t, wiped)

	count, err := chunks.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestEnsureSchemaSkipsWipeOnFreshStore(t *testing.T) {
	chunks, err := OpenChunksRepo(filepath.Join(t.TempDir(), "chunks.db"))
	require.NoError(t, err)
	defer chunks.Close()

	wiped, err := EnsureSchema(chunks)
	require.NoError(t, err)
	assert.False(t, wiped)

	version, err := chunks.SchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestCreateAnnIndexTriggersCompact(t *testing.T) {
	fake := NewFakeVectorStore()
	w, ctx := newTestWriter(t, fake)

	require.NoError(t, w.CreateAnnIndex(ctx))
	assert.Equal(t, 1, fake.CompactCalls)
}
