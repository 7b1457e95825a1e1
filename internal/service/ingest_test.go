package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/config"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
)

var acmeAdmin = identity.RequestContext{
	User: identity.UserIdentifier{AccountID: "acme", UserID: "alice"},
	Role: identity.RoleAdmin,
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := &config.Config{
		DataDir:              t.TempDir(),
		VectorBackend:        "local",
		VectorCollection:     "context",
		VectorDimension:      64,
		EmbeddingCacheSize:   64,
		MemoryDedupThreshold: 0.9,
		HotnessAlpha:         0.2,
		HotnessHalfLifeDays:  7,
	}
	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close(context.Background()) })
	return svc
}

func TestAddResourcesCreatesHierarchy(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	result, err := svc.AddResources(ctx, acmeAdmin, "", []ResourceInput{
		{Path: "book/chapter1.md", Content: []byte("Chapter one. The journey begins at dawn.")},
	})
	require.NoError(t, err)
	require.Empty(t, result.Errors)
	require.Equal(t, []string{"viking://resources/book/chapter1.md"}, result.URIs)

	svc.WaitProcessed(ctx, 5*time.Second)

	// All three levels land in the vector store under the same uri.
	records, err := svc.Gateway.GetContextByURI(ctx, "acme", "viking://resources/book/chapter1.md", 10)
	require.NoError(t, err)
	levels := map[models.Level]bool{}
	for _, r := range records {
		levels[r.Level] = true
	}
	assert.True(t, levels[models.LevelAbstract])
	assert.True(t, levels[models.LevelOverview])
	assert.True(t, levels[models.LevelFull])

	// And the L0/L1 companions are on the FS.
	abstract, err := svc.FS.Abstract(ctx, acmeAdmin, "viking://resources/book/chapter1.md")
	require.NoError(t, err)
	assert.NotEmpty(t, abstract)
}

func TestAddResourcesPartialFailure(t *testing.T) {
	svc := newTestService(t)

	result, err := svc.AddResources(context.Background(), acmeAdmin, "", []ResourceInput{
		{Path: "good.md", Content: []byte("fine content")},
		{Path: "", Content: []byte("no path")},
		{Path: "empty.md", Content: nil},
	})
	require.NoError(t, err, "sibling failures must not fail the batch")
	assert.Equal(t, []string{"viking://resources/good.md"}, result.URIs)
	require.Len(t, result.Errors, 2)
	for _, e := range result.Errors {
		assert.Equal(t, "InvalidArgument", e.Code)
	}
}

func TestAddResourcesChunksLargeBodies(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	paragraph := strings.Repeat("some searchable prose in a paragraph. ", 20)
	big := strings.Join([]string{paragraph, paragraph, paragraph, paragraph}, "\n\n")
	require.Greater(t, len(big), chunkSize)

	_, err := svc.AddResources(ctx, acmeAdmin, "", []ResourceInput{
		{Path: "big.md", Content: []byte(big)},
	})
	require.NoError(t, err)
	svc.WaitProcessed(ctx, 5*time.Second)

	records, err := svc.Gateway.GetContextByURI(ctx, "acme", "viking://resources/big.md#0", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, models.LevelChunk, records[0].Level)
	assert.Equal(t, "viking://resources/big.md", records[0].ParentURI)
}

func TestSplitChunks(t *testing.T) {
	assert.Nil(t, splitChunks("short", 100))

	chunks := splitChunks(strings.Repeat("a", 250), 100)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)

	// Paragraph boundaries are preferred over mid-text cuts.
	body := strings.Repeat("p", 80) + "\n\n" + strings.Repeat("q", 80)
	chunks = splitChunks(body, 100)
	require.Len(t, chunks, 2)
	assert.Equal(t, strings.Repeat("p", 80), chunks[0])
}

func TestWaitProcessedTimeout(t *testing.T) {
	svc := newTestService(t)

	release := make(chan struct{})
	svc.trackAsync(func() { <-release })

	status := svc.WaitProcessed(context.Background(), 50*time.Millisecond)
	assert.False(t, status.Complete)
	assert.Equal(t, 1, status.Pending)

	close(release)
	status = svc.WaitProcessed(context.Background(), time.Second)
	assert.True(t, status.Complete)
}
