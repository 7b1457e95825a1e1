package recorder

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/vectorstore"
	"github.com/openviking/openviking/internal/vikingfs"
)

func newRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "io_recorder.jsonl")
	r, err := New(path, Options{BatchSize: 4, FlushInterval: 10 * time.Millisecond})
	require.NoError(t, err)
	return r, path
}

func readRecords(t *testing.T, path string) []models.IORecord {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var records []models.IORecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var record models.IORecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &record))
		records = append(records, record)
	}
	return records
}

func TestRecorderWritesJSONL(t *testing.T) {
	r, path := newRecorder(t)
	ctx := context.Background()

	backend, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	wrapped := WrapBackend(backend, r)

	require.NoError(t, wrapped.Write(ctx, "/local/acme/resources/a.txt", []byte("hello")))
	data, err := wrapped.Read(ctx, "/local/acme/resources/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	// A failing call records success=false and still propagates.
	_, err = wrapped.Read(ctx, "/local/acme/missing.txt")
	require.Error(t, err)

	require.NoError(t, r.Stop(ctx))

	records := readRecords(t, path)
	require.Len(t, records, 3)
	assert.Equal(t, "write", records[0].Operation)
	assert.Equal(t, models.IOTypeFS, records[0].IOType)
	assert.True(t, records[0].Success)

	assert.Equal(t, "read", records[1].Operation)
	response := records[1].Response.(map[string]interface{})
	assert.Equal(t, "hello", response["__bytes__"])

	assert.False(t, records[2].Success)
	assert.Contains(t, records[2].Error, "no such file")

	stats := r.GetStats()
	assert.Equal(t, int64(3), stats.Recorded)
	assert.Equal(t, int64(1), stats.Errors)
	assert.Zero(t, stats.Dropped)
}

func TestSerializeAny(t *testing.T) {
	assert.Nil(t, serializeAny(nil))
	assert.Equal(t, map[string]interface{}{"__bytes__": "abc"}, serializeAny([]byte("abc")))
	assert.Equal(t, "plain", serializeAny("plain"))

	// Structs flatten to attribute maps.
	entry := vikingfs.DirEntry{Path: "/local/x", IsDir: true}
	flattened := serializeAny(entry).(map[string]interface{})
	assert.Equal(t, "/local/x", flattened["Path"])
	assert.Equal(t, true, flattened["IsDir"])

	// Invalid UTF-8 survives lossily.
	out := serializeAny([]byte{0xff, 'o', 'k'}).(map[string]interface{})
	assert.Contains(t, out["__bytes__"], "ok")
}

func TestErrorsMatchFamilies(t *testing.T) {
	assert.True(t, errorsMatch("NotFound: no such file or directory: /x", "file does not exist"))
	assert.True(t, errorsMatch("PERMISSION DENIED", "access denied"))
	assert.True(t, errorsMatch("operation timed out", "Timeout: deadline"))
	assert.False(t, errorsMatch("no such file", "permission denied"))
	assert.False(t, errorsMatch("", "anything"))
	assert.True(t, errorsMatch("exact same", "Exact Same"))
}

func TestRecorderPlayerParity(t *testing.T) {
	r, path := newRecorder(t)
	ctx := context.Background()

	// Backend pair A: everything wrapped.
	backendA, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	fsA := WrapBackend(backendA, r)

	driverA, err := vectorstore.NewLocalDriver(vectorstore.Config{Backend: "local"})
	require.NoError(t, err)
	collA, err := driverA.CreateCollection(ctx, "context", vectorstore.ContextCollectionSchema)
	require.NoError(t, err)
	vecA := WrapCollection(collA, "context", r)

	// Drive a representative workload, including an expected failure.
	require.NoError(t, fsA.Mkdir(ctx, "/local/acme/resources"))
	require.NoError(t, fsA.Write(ctx, "/local/acme/resources/a.txt", []byte("A")))
	_, err = fsA.Read(ctx, "/local/acme/resources/a.txt")
	require.NoError(t, err)
	_, err = fsA.Read(ctx, "/local/acme/resources/missing.txt")
	require.Error(t, err)

	require.NoError(t, vecA.Upsert(ctx, []models.Context{{
		ID: "r1", URI: "viking://resources/a.txt", AccountID: "acme",
		ContextType: models.ContextTypeResource, Level: models.LevelFull,
		Dense: []float32{1, 0}, UpdatedAt: time.Now().UTC(),
	}}))
	_, err = vecA.Search(ctx, vectorstore.SearchRequest{
		Dense:  []float32{1, 0},
		Filter: filter.Eq{Field: "account_id", Value: "acme"},
		Limit:  10,
	})
	require.NoError(t, err)

	require.NoError(t, r.Stop(ctx))
	recorded := readRecords(t, path)
	total := len(recorded)
	require.Equal(t, 6, total)

	// Replay against a fresh, empty backend pair B.
	backendB, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	driverB, err := vectorstore.NewLocalDriver(vectorstore.Config{Backend: "local"})
	require.NoError(t, err)
	collB, err := driverB.CreateCollection(ctx, "context", vectorstore.ContextCollectionSchema)
	require.NoError(t, err)

	player := NewPlayer(backendB, collB)
	report, err := player.Play(ctx, path, PlayOptions{})
	require.NoError(t, err)

	assert.Equal(t, total, report.TotalRecords)
	assert.Equal(t, total, report.SuccessCount, "every replayed op succeeds or matches the original error")
	assert.Zero(t, report.FailureCount)
	assert.Equal(t, 2, report.Operations["read"].Count)
	assert.Equal(t, 1, report.Operations["search"].Count)
	assert.Greater(t, report.SpeedupRatio, 0.0)
}

func TestPlayerFilters(t *testing.T) {
	r, path := newRecorder(t)
	ctx := context.Background()

	backendA, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	fsA := WrapBackend(backendA, r)
	require.NoError(t, fsA.Write(ctx, "/local/x", []byte("x")))
	require.NoError(t, fsA.Mkdir(ctx, "/local/dir"))
	require.NoError(t, r.Stop(ctx))

	backendB, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	player := NewPlayer(backendB, nil)

	report, err := player.Play(ctx, path, PlayOptions{Operation: "mkdir"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalRecords)
	assert.Contains(t, report.Operations, "mkdir")
	assert.NotContains(t, report.Operations, "write")
}

func TestPlayerToleratesTrailingPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.jsonl")
	record := models.IORecord{
		Timestamp: time.Now().UTC(),
		IOType:    models.IOTypeFS,
		Operation: "mkdir",
		Request:   map[string]interface{}{"path": "/local/d"},
		Success:   true,
	}
	line, err := json.Marshal(record)
	require.NoError(t, err)
	content := append(line, '\n')
	content = append(content, []byte(`{"timestamp":"2026-08-01T`)...) // torn write
	require.NoError(t, os.WriteFile(path, content, 0o644))

	backend, err := vikingfs.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	report, err := NewPlayer(backend, nil).Play(context.Background(), path, PlayOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.TotalRecords)
	assert.Equal(t, 1, report.SuccessCount)
}
