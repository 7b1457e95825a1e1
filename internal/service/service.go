// Package service wires the OpenViking core into one object: storage,
// vector gateway, retriever, sessions, key manager, recorder, and audit
// trail. The HTTP surface and the ovctl CLI are both thin callers of this
// package; there is exactly one code path for every operation.
package service

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/config"
	"github.com/openviking/openviking/internal/embedding"
	"github.com/openviking/openviking/internal/keymanager"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/audit"
	"github.com/openviking/openviking/internal/recorder"
	"github.com/openviking/openviking/internal/retriever"
	"github.com/openviking/openviking/internal/semantic"
	"github.com/openviking/openviking/internal/session"
	"github.com/openviking/openviking/internal/vectorstore"
	"github.com/openviking/openviking/internal/vikingfs"
)

// Service is the process-wide object holding every core component. The
// recorder is an explicit handle here, not a global singleton.
type Service struct {
	Config   *config.Config
	FS       *vikingfs.VikingFS
	Gateway  *semantic.Gateway
	Retrieve *retriever.Retriever
	Sessions *session.Manager
	Keys     *keymanager.Manager
	Audit    *audit.Trail
	Recorder *recorder.Recorder // nil when recording is disabled

	driver   vectorstore.Driver
	backend  vikingfs.Backend
	embedder embedding.Provider

	// pending tracks in-flight background ingest work for wait_processed.
	pending sync.WaitGroup
	mu      sync.Mutex
	inFlight int
}

// New builds the full component graph from cfg. Startup is fail-fast:
// a broken registry file or unreachable backend aborts here.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	backend, err := vikingfs.CreateBackend(vikingfs.ParseAGFSURL(cfg.AGFSURL, filepath.Join(cfg.DataDir, "agfs")))
	if err != nil {
		return nil, err
	}

	var rec *recorder.Recorder
	if cfg.RecorderEnabled {
		recordFile := cfg.RecorderFile
		if recordFile == "" {
			recordFile = recorder.DefaultRecordPath(filepath.Join(cfg.DataDir, "records"))
		}
		rec, err = recorder.New(recordFile, recorder.Options{
			BatchSize:     cfg.RecorderBatchSize,
			FlushInterval: cfg.RecorderFlushInterval(),
			QueueSize:     cfg.RecorderQueueSize,
		})
		if err != nil {
			return nil, err
		}
		backend = recorder.WrapBackend(backend, rec)
	}

	vectorPath := cfg.VectorPath
	if vectorPath == "" {
		vectorPath = filepath.Join(cfg.DataDir, "vectordb")
	}
	driver, err := vectorstore.CreateDriver(vectorstore.Config{
		Backend:    cfg.VectorBackend,
		Collection: cfg.VectorCollection,
		Path:       vectorPath,
		URL:        cfg.VectorURL,
		Dimension:  cfg.VectorDimension,
		AccessKey:  cfg.VectorAccessKey,
		SecretKey:  cfg.VectorSecretKey,
		Region:     cfg.VectorRegion,
		RedisAddr:  cfg.VectorRedisAddr,
		CacheTTL:   cfg.VectorCacheTTL(),
	})
	if err != nil {
		return nil, err
	}

	gateway, err := semantic.New(ctx, driver, cfg.VectorCollection)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		gateway.WrapCollection(func(c vectorstore.Collection) vectorstore.Collection {
			return recorder.WrapCollection(c, gateway.CollectionName(), rec)
		})
	}

	var embedder embedding.Provider = embedding.NewHashProvider(cfg.VectorDimension)
	embedder, err = embedding.NewCachedProvider(embedder, cfg.EmbeddingCacheSize)
	if err != nil {
		return nil, err
	}

	keys := keymanager.New(cfg.RootAPIKey, backend)
	if err := keys.Load(ctx); err != nil {
		return nil, err
	}

	fs := vikingfs.New(backend)
	svc := &Service{
		Config:   cfg,
		FS:       fs,
		Gateway:  gateway,
		Retrieve: retriever.New(gateway, embedder).WithHotness(cfg.HotnessAlpha, cfg.HotnessHalfLifeDays),
		Sessions: session.NewManager(fs, gateway, embedder, nil, cfg.MemoryDedupThreshold),
		Keys:     keys,
		Audit:    audit.NewTrail(backend),
		Recorder: rec,
		driver:   driver,
		backend:  backend,
	}
	svc.embedder = embedder
	return svc, nil
}

// Close shuts the component graph down: the recorder drains first (bounded
// by ctx), then the vector driver and storage backend close.
func (s *Service) Close(ctx context.Context) error {
	s.pending.Wait()
	var firstErr error
	if s.Recorder != nil {
		if err := s.Recorder.Stop(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := s.driver.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// ComponentStatus is one /ready probe result.
type ComponentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Ready probes FS, vector DB, and key manager.
func (s *Service) Ready(ctx context.Context) ([]ComponentStatus, bool) {
	var out []ComponentStatus
	allOK := true

	if _, err := s.backend.Stat(ctx, "/local"); err != nil && !ovterrors.Is(err, ovterrors.NotFound) {
		out = append(out, ComponentStatus{Component: "agfs", Status: "error", Error: err.Error()})
		allOK = false
	} else {
		out = append(out, ComponentStatus{Component: "agfs", Status: "ok"})
	}

	if err := s.Gateway.Healthy(ctx); err != nil {
		out = append(out, ComponentStatus{Component: "vectordb", Status: "error", Error: err.Error()})
		allOK = false
	} else {
		out = append(out, ComponentStatus{Component: "vectordb", Status: "ok"})
	}

	status := "ok"
	if !s.Keys.RootEnabled() {
		status = "admin disabled"
	}
	out = append(out, ComponentStatus{Component: "api_key_manager", Status: status})
	return out, allOK
}

// trackAsync runs fn in the background, counted for WaitProcessed.
func (s *Service) trackAsync(fn func()) {
	s.mu.Lock()
	s.inFlight++
	s.mu.Unlock()
	s.pending.Add(1)
	go func() {
		defer func() {
			s.mu.Lock()
			s.inFlight--
			s.mu.Unlock()
			s.pending.Done()
		}()
		fn()
	}()
}

// ProcessingStatus is the wait_processed result shape.
type ProcessingStatus struct {
	Pending  int  `json:"pending"`
	Complete bool `json:"complete"`
}

// WaitProcessed blocks until all background ingest work is done or the
// timeout expires; on expiry it returns the partial status rather than an
// error.
func (s *Service) WaitProcessed(ctx context.Context, timeout time.Duration) ProcessingStatus {
	done := make(chan struct{})
	go func() {
		s.pending.Wait()
		close(done)
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-done:
		return ProcessingStatus{Pending: 0, Complete: true}
	case <-ctx.Done():
	case <-timer:
	}
	s.mu.Lock()
	pending := s.inFlight
	s.mu.Unlock()
	return ProcessingStatus{Pending: pending, Complete: pending == 0}
}
