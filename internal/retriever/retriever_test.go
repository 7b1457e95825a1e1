package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/embedding"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/semantic"
	"github.com/openviking/openviking/internal/trace"
	"github.com/openviking/openviking/internal/vectorstore"
)

var alice = identity.RequestContext{
	User: identity.UserIdentifier{AccountID: "acme", UserID: "alice", AgentID: "bot"},
	Role: identity.RoleUser,
}

func newRetriever(t *testing.T) (*Retriever, *semantic.Gateway, embedding.Provider) {
	t.Helper()
	driver, err := vectorstore.NewLocalDriver(vectorstore.Config{Backend: "local"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	gateway, err := semantic.New(context.Background(), driver, "")
	require.NoError(t, err)
	embedder := embedding.NewHashProvider(64)
	return New(gateway, embedder), gateway, embedder
}

// ingestHierarchy stores an L1 overview plus an L2 body for uri, embedded
// from content so the query actually matches.
func ingestHierarchy(t *testing.T, gateway *semantic.Gateway, embedder embedding.Provider, uri, content string) {
	t.Helper()
	emb, err := embedding.EmbedOne(context.Background(), embedder, content)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, gateway.Upsert(context.Background(), []models.Context{
		{ID: uri + "#L1", URI: uri, AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelOverview, Dense: emb.Dense, Sparse: emb.Sparse, UpdatedAt: now},
		{ID: uri + "#L2", URI: uri + "/body", ParentURI: uri, AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelFull, Dense: emb.Dense, Sparse: emb.Sparse, UpdatedAt: now},
	}))
}

func TestRetrieveDrillDown(t *testing.T) {
	r, gateway, embedder := newRetriever(t)
	ingestHierarchy(t, gateway, embedder, "viking://resources/book/chapter1.md", "a summary of chapter one of the book")
	ingestHierarchy(t, gateway, embedder, "viking://resources/notes/todo.md", "grocery shopping list milk eggs")

	collector := trace.NewCollector("search.search", true)
	ctx := trace.Bind(context.Background(), collector)

	results, err := r.Retrieve(ctx, alice, TypedQuery{
		Query:       "chapter summary of the book",
		ContextType: models.ContextTypeResource,
	}, Options{Limit: 5, DrillDown: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "viking://resources/book/chapter1.md", results[0].URI)

	// Roots search plus at least one children search.
	tr := collector.Finish("ok")
	assert.GreaterOrEqual(t, tr.Summary.Vector.SearchCalls, 2)
}

func TestRetrieveIncrementsActiveCount(t *testing.T) {
	r, gateway, embedder := newRetriever(t)
	ingestHierarchy(t, gateway, embedder, "viking://resources/doc.md", "database migration guide")

	_, err := r.Retrieve(context.Background(), alice, TypedQuery{
		Query:       "database migration guide",
		ContextType: models.ContextTypeResource,
	}, Options{Limit: 5, DrillDown: true})
	require.NoError(t, err)

	records, err := gateway.GetContextByURI(context.Background(), "acme", "viking://resources/doc.md/body", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].ActiveCount, "returned leaves get their access counter bumped")
}

func TestRetrieveHotnessBoost(t *testing.T) {
	r, gateway, embedder := newRetriever(t)
	ctx := context.Background()
	emb, err := embedding.EmbedOne(ctx, embedder, "shared topic text")
	require.NoError(t, err)

	now := time.Now().UTC()
	// Two identical-similarity leaves; only hotness separates them.
	require.NoError(t, gateway.Upsert(ctx, []models.Context{
		{ID: "cold", URI: "viking://resources/cold.md", AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelFull, Dense: emb.Dense, ActiveCount: 0, UpdatedAt: now.Add(-30 * 24 * time.Hour)},
		{ID: "hot", URI: "viking://resources/hot.md", AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelFull, Dense: emb.Dense, ActiveCount: 50, UpdatedAt: now},
	}))

	results, err := r.Retrieve(ctx, alice, TypedQuery{
		Query:       "shared topic text",
		ContextType: models.ContextTypeResource,
	}, Options{Limit: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "viking://resources/hot.md", results[0].URI)
}

func TestRetrieveTargetDirectoriesOverrideRoots(t *testing.T) {
	r, gateway, embedder := newRetriever(t)
	ingestHierarchy(t, gateway, embedder, "viking://resources/a/x.md", "alpha topic")
	ingestHierarchy(t, gateway, embedder, "viking://resources/b/y.md", "alpha topic")

	results, err := r.Retrieve(context.Background(), alice, TypedQuery{
		Query:             "alpha topic",
		ContextType:       models.ContextTypeResource,
		TargetDirectories: []string{"viking://resources/a"},
	}, Options{Limit: 10, DrillDown: true})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, m := range results {
		if m.Level == models.LevelOverview {
			assert.Contains(t, m.URI, "viking://resources/a/")
		}
	}
}

func TestRetrieveEmptyQueryRejected(t *testing.T) {
	r, _, _ := newRetriever(t)
	_, err := r.Retrieve(context.Background(), alice, TypedQuery{ContextType: models.ContextTypeResource}, Options{})
	require.Error(t, err)
}
