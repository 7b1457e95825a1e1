package recorder

import (
	"context"
	"time"

	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/vikingfs"
)

// recordingBackend wraps a vikingfs.Backend, timing every call and
// recording it as an fs record. The wrapped call's outcome is untouched:
// on failure the record carries success=false and the error still
// propagates.
type recordingBackend struct {
	inner    vikingfs.Backend
	recorder *Recorder
}

// WrapBackend returns backend unchanged when r is nil; otherwise every
// call is recorded.
func WrapBackend(backend vikingfs.Backend, r *Recorder) vikingfs.Backend {
	if r == nil {
		return backend
	}
	return &recordingBackend{inner: backend, recorder: r}
}

func (b *recordingBackend) record(operation string, request map[string]interface{}, response interface{}, start time.Time, err error) {
	b.recorder.Record(models.IOTypeFS, operation, request, response, time.Since(start), err)
}

func (b *recordingBackend) Read(ctx context.Context, path string) ([]byte, error) {
	start := time.Now()
	data, err := b.inner.Read(ctx, path)
	b.record("read", map[string]interface{}{"path": path}, data, start, err)
	return data, err
}

func (b *recordingBackend) Write(ctx context.Context, path string, data []byte) error {
	start := time.Now()
	err := b.inner.Write(ctx, path, data)
	b.record("write", map[string]interface{}{"path": path, "data": data}, nil, start, err)
	return err
}

func (b *recordingBackend) List(ctx context.Context, path string) ([]vikingfs.DirEntry, error) {
	start := time.Now()
	entries, err := b.inner.List(ctx, path)
	b.record("ls", map[string]interface{}{"path": path}, entries, start, err)
	return entries, err
}

func (b *recordingBackend) Stat(ctx context.Context, path string) (vikingfs.DirEntry, error) {
	start := time.Now()
	entry, err := b.inner.Stat(ctx, path)
	b.record("stat", map[string]interface{}{"path": path}, entry, start, err)
	return entry, err
}

func (b *recordingBackend) Mkdir(ctx context.Context, path string) error {
	start := time.Now()
	err := b.inner.Mkdir(ctx, path)
	b.record("mkdir", map[string]interface{}{"path": path}, nil, start, err)
	return err
}

func (b *recordingBackend) Remove(ctx context.Context, path string, recursive bool) error {
	start := time.Now()
	err := b.inner.Remove(ctx, path, recursive)
	b.record("rm", map[string]interface{}{"path": path, "recursive": recursive}, nil, start, err)
	return err
}

func (b *recordingBackend) Move(ctx context.Context, oldPath, newPath string) error {
	start := time.Now()
	err := b.inner.Move(ctx, oldPath, newPath)
	b.record("mv", map[string]interface{}{"old_path": oldPath, "new_path": newPath}, nil, start, err)
	return err
}

func (b *recordingBackend) Close() error {
	return b.inner.Close()
}
