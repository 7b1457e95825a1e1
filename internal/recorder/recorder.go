// Package recorder implements the IO recorder and player: lossless
// JSONL capture of every filesystem and vector call with latency, and a
// replay engine that normalizes error semantics across backends to
// compare their performance.
//
// The recorder is an explicit process handle held by the service object,
// not a global singleton. Wrap the AGFS backend
// with WrapBackend and the vector collection with WrapCollection; both
// pass every call through unchanged and enqueue a record on the side.
package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/metrics"
)

// Options tunes the async writer.
type Options struct {
	// BatchSize is how many records one write flushes at most.
	BatchSize int
	// FlushInterval bounds how long a record may sit in the queue.
	FlushInterval time.Duration
	// QueueSize bounds the in-flight queue; a full queue drops records
	// (bounded drop on overflow, counted in stats).
	QueueSize int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 64
	}
	if o.FlushInterval <= 0 {
		o.FlushInterval = time.Second
	}
	if o.QueueSize <= 0 {
		o.QueueSize = 4096
	}
	return o
}

// Stats summarizes a recorder's lifetime counters. Errors counts records
// with success=false; the two notions are defined as equivalent
//.
type Stats struct {
	Recorded int64 `json:"recorded"`
	Dropped  int64 `json:"dropped"`
	Errors   int64 `json:"errors"`
}

// Recorder owns the record file and its dedicated writer goroutine.
type Recorder struct {
	file  *os.File
	queue chan models.IORecord
	done  chan struct{}

	mu    sync.Mutex
	stats Stats

	opts Options
}

// New opens (appending) the record file at path and starts the writer.
func New(path string, opts Options) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "creating records dir for %q", path)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "opening record file %q", path)
	}
	opts = opts.withDefaults()
	r := &Recorder{
		file:  file,
		queue: make(chan models.IORecord, opts.QueueSize),
		done:  make(chan struct{}),
		opts:  opts,
	}
	go r.writeLoop()
	return r, nil
}

// DefaultRecordPath returns records/io_recorder_<yyyymmdd>.jsonl under dir.
func DefaultRecordPath(dir string) string {
	if dir == "" {
		dir = "./records"
	}
	return filepath.Join(dir, fmt.Sprintf("io_recorder_%s.jsonl", time.Now().Format("20060102")))
}

// Record enqueues one record; a full queue drops it and bumps the drop
// counter instead of blocking the recorded call.
func (r *Recorder) Record(ioType models.IOType, operation string, request map[string]interface{}, response interface{}, latency time.Duration, callErr error) {
	record := models.IORecord{
		Timestamp: time.Now().UTC(),
		IOType:    ioType,
		Operation: operation,
		Request:   serializeAny(request),
		LatencyMS: float64(latency.Microseconds()) / 1000,
		Success:   callErr == nil,
	}
	if callErr != nil {
		record.Error = callErr.Error()
	} else {
		func() {
			defer func() {
				if p := recover(); p != nil {
					record.Success = false
					record.Error = fmt.Sprintf("response serialization failed: %v", p)
				}
			}()
			record.Response = serializeAny(response)
		}()
	}

	r.mu.Lock()
	if !record.Success {
		r.stats.Errors++
	}
	r.mu.Unlock()

	select {
	case r.queue <- record:
	default:
		r.mu.Lock()
		r.stats.Dropped++
		r.mu.Unlock()
		metrics.RecorderQueueDroppedTotal.Inc()
	}
}

func (r *Recorder) writeLoop() {
	defer close(r.done)
	ticker := time.NewTicker(r.opts.FlushInterval)
	defer ticker.Stop()

	batch := make([]models.IORecord, 0, r.opts.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		for _, record := range batch {
			line, err := json.Marshal(record)
			if err != nil {
				continue
			}
			if _, err := r.file.Write(append(line, '\n')); err != nil {
				continue
			}
			r.mu.Lock()
			r.stats.Recorded++
			r.mu.Unlock()
		}
		batch = batch[:0]
	}

	for {
		select {
		case record, ok := <-r.queue:
			if !ok {
				flush()
				return
			}
			batch = append(batch, record)
			if len(batch) >= r.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Stop drains the queue and closes the file, bounded by the context
// deadline.
func (r *Recorder) Stop(ctx context.Context) error {
	close(r.queue)
	select {
	case <-r.done:
	case <-ctx.Done():
		return ovterrors.Timeoutf("recorder drain interrupted: %v", ctx.Err())
	}
	if err := r.file.Sync(); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "syncing record file")
	}
	return r.file.Close()
}

// GetStats returns a snapshot of the lifetime counters.
func (r *Recorder) GetStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
