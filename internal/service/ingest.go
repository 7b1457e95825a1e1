package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/ovuri"
	"github.com/openviking/openviking/internal/pkg/validate"
	"github.com/openviking/openviking/internal/trace"
)

// chunkSize bounds one L3 chunk body. Chunks split on paragraph
// boundaries where possible.
const chunkSize = 2000

// abstractLen and overviewLen bound the derived L0/L1 companions.
const (
	abstractLen = 200
	overviewLen = 800
)

// ResourceInput is one file/paste to ingest.
type ResourceInput struct {
	// Path is the resource-relative path (e.g. "book/chapter1.md").
	Path    string
	Content []byte
}

// IngestResult reports one ingest batch: the root URI plus per-path
// failures; ingestion is partial-failure-tolerant.
type IngestResult struct {
	RootURI string        `json:"root_uri"`
	URIs    []string      `json:"uris"`
	Errors  []IngestError `json:"errors,omitempty"`
}

// IngestError is one failed sub-path of an ingest batch.
type IngestError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// AddResources ingests a batch of resources under targetURI (default
// viking://resources). Each input becomes an L0/L1/L2 context set plus L3
// chunks for large bodies; siblings fail independently.
func (s *Service) AddResources(ctx context.Context, rc identity.RequestContext, targetURI string, inputs []ResourceInput) (*IngestResult, error) {
	if targetURI == "" {
		targetURI = "viking://resources"
	}
	if !validate.VikingURI(targetURI) {
		return nil, ovterrors.InvalidArgumentf("invalid target uri %q", targetURI)
	}
	if len(inputs) == 0 {
		return nil, ovterrors.InvalidArgumentf("no resources to ingest")
	}

	result := &IngestResult{RootURI: targetURI}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, input := range inputs {
		g.Go(func() error {
			uri, err := s.ingestOne(gctx, rc, targetURI, input)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors = append(result.Errors, IngestError{
					Path:    input.Path,
					Code:    string(ovterrors.CodeOf(err)),
					Message: err.Error(),
				})
			} else {
				result.URIs = append(result.URIs, uri)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trace.FromContext(ctx).Set("semantic_nodes.total", len(result.URIs))
	trace.FromContext(ctx).Set("semantic_nodes.done", len(result.URIs))
	return result, nil
}

// ingestOne writes the L2 body plus L0/L1 companions to the FS and
// upserts the vector records for every level.
func (s *Service) ingestOne(ctx context.Context, rc identity.RequestContext, targetURI string, input ResourceInput) (string, error) {
	if input.Path == "" {
		return "", ovterrors.InvalidArgumentf("resource path is required")
	}
	if strings.Contains(input.Path, "..") {
		return "", ovterrors.InvalidArgumentf("resource path %q must not traverse", input.Path)
	}
	if len(input.Content) == 0 {
		return "", ovterrors.InvalidArgumentf("resource %q has no content", input.Path)
	}

	uri := ovuri.Join(targetURI, input.Path)
	if err := s.FS.Write(ctx, rc, uri, input.Content); err != nil {
		return "", err
	}

	body := string(input.Content)
	abstract := truncateClean(body, abstractLen)
	overview := truncateClean(body, overviewLen)
	if err := s.FS.WriteAbstract(ctx, rc, uri, []byte(abstract)); err != nil {
		return "", err
	}
	if err := s.FS.WriteOverview(ctx, rc, uri, []byte(overview)); err != nil {
		return "", err
	}

	ownerSpace := ""
	if space, ok := ovuri.ExtractSpaceFromUri(uri); ok {
		ownerSpace = space
	}

	chunks := splitChunks(body, chunkSize)
	texts := []string{abstract, overview, body}
	texts = append(texts, chunks...)
	embs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	base := models.Context{
		URI:         uri,
		ContextType: models.ContextTypeResource,
		AccountID:   rc.AccountID(),
		OwnerSpace:  ownerSpace,
		UpdatedAt:   now,
	}
	records := make([]models.Context, 0, len(texts))
	for i, level := range []models.Level{models.LevelAbstract, models.LevelOverview, models.LevelFull} {
		record := base
		record.ID = contextID(rc.AccountID(), uri, int(level))
		record.Level = level
		record.Dense = embs[i].Dense
		record.Sparse = embs[i].Sparse
		records = append(records, record)
	}
	for i := range chunks {
		record := base
		record.ID = contextID(rc.AccountID(), uri, 3+i)
		record.URI = fmt.Sprintf("%s#%d", uri, i)
		record.ParentURI = uri
		record.Level = models.LevelChunk
		record.Dense = embs[3+i].Dense
		record.Sparse = embs[3+i].Sparse
		records = append(records, record)
	}

	// The vector leg runs in the background: the HTTP response returns as
	// soon as the bytes are durable; wait_processed flushes stragglers.
	s.trackAsync(func() {
		_ = s.Gateway.Upsert(context.Background(), records)
	})
	return uri, nil
}

// contextID derives a stable record id, so re-ingesting a URI replaces
// its records instead of duplicating them (URI is unique per level within
// an account).
func contextID(accountID, uri string, level int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s\x00%s\x00%d", accountID, uri, level)))
	return "ctx_" + hex.EncodeToString(sum[:16])
}

func truncateClean(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	cut := s[:max]
	if idx := strings.LastIndexAny(cut, " \n\t"); idx > max/2 {
		cut = cut[:idx]
	}
	return cut
}

// splitChunks breaks body into ~size pieces on paragraph boundaries.
// Bodies that fit in one chunk produce none; the L2 record suffices.
func splitChunks(body string, size int) []string {
	if len(body) <= size {
		return nil
	}
	paragraphs := strings.Split(body, "\n\n")
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		if current.Len() > 0 && current.Len()+len(p) > size {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
		for current.Len() > size {
			text := current.String()
			chunks = append(chunks, text[:size])
			current.Reset()
			current.WriteString(text[size:])
		}
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}
