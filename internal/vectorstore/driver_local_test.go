package vectorstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
)

func newTestCollection(t *testing.T) Collection {
	t.Helper()
	driver, err := NewLocalDriver(Config{Backend: "local", Path: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	coll, err := driver.CreateCollection(context.Background(), "context", ContextCollectionSchema)
	require.NoError(t, err)
	return coll
}

func seedContexts(t *testing.T, coll Collection) {
	t.Helper()
	now := time.Now().UTC()
	err := coll.Upsert(context.Background(), []models.Context{
		{ID: "a", URI: "viking://resources/book/ch1.md", AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelOverview, Dense: []float32{1, 0, 0}, UpdatedAt: now},
		{ID: "b", URI: "viking://resources/book/ch2.md", AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelFull, Dense: []float32{0, 1, 0}, UpdatedAt: now},
		{ID: "c", URI: "viking://agent/s1/memories/paris.md", AccountID: "acme", OwnerSpace: "s1", ContextType: models.ContextTypeMemory, Level: models.LevelFull, Dense: []float32{0, 0, 1}, UpdatedAt: now},
		{ID: "d", URI: "viking://resources/other.md", AccountID: "other_co", ContextType: models.ContextTypeResource, Level: models.LevelFull, Dense: []float32{1, 0, 0}, UpdatedAt: now},
	})
	require.NoError(t, err)
}

func TestLocalSearchRanksByCosine(t *testing.T) {
	coll := newTestCollection(t)
	seedContexts(t, coll)

	matches, err := coll.Search(context.Background(), SearchRequest{
		Dense:  []float32{1, 0, 0},
		Filter: filter.Eq{Field: "account_id", Value: "acme"},
		Limit:  10,
	})
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "a", matches[0].ID)
	for _, m := range matches {
		assert.Equal(t, "acme", m.AccountID)
	}
}

func TestLocalFilterEvaluation(t *testing.T) {
	coll := newTestCollection(t)
	seedContexts(t, coll)
	ctx := context.Background()

	cases := []struct {
		name string
		expr filter.Expr
		want []string
	}{
		{"eq", filter.Eq{Field: "context_type", Value: "memory"}, []string{"c"}},
		{"in", filter.In{Field: "level", Values: []interface{}{0, 1}}, []string{"a"}},
		{"prefix", filter.Prefix{Field: "uri", Prefix: "viking://resources/book/"}, []string{"a", "b"}},
		{"contains", filter.Contains{Field: "uri", Substring: "paris"}, []string{"c"}},
		{"regex", filter.Regex{Field: "uri", Pattern: `ch\d\.md$`}, []string{"a", "b"}},
		{"and", filter.And{Conds: []filter.Expr{
			filter.Eq{Field: "account_id", Value: "acme"},
			filter.Eq{Field: "level", Value: 2},
		}}, []string{"b", "c"}},
		{"or", filter.Or{Conds: []filter.Expr{
			filter.Eq{Field: "id", Value: "a"},
			filter.Eq{Field: "id", Value: "d"},
		}}, []string{"a", "d"}},
		{"nil matches all", nil, []string{"a", "b", "c", "d"}},
		{"empty and matches all", filter.And{}, []string{"a", "b", "c", "d"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			records, err := coll.Filter(ctx, tc.expr, 0, 0)
			require.NoError(t, err)
			ids := make([]string, 0, len(records))
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			assert.ElementsMatch(t, tc.want, ids)
		})
	}
}

func TestLocalRawDSLUnsupported(t *testing.T) {
	coll := newTestCollection(t)
	_, err := coll.Filter(context.Background(), filter.RawDSL{Payload: map[string]interface{}{"op": "must"}}, 0, 0)
	require.Error(t, err)
	assert.Equal(t, ovterrors.InvalidArgument, ovterrors.CodeOf(err))
}

func TestLocalUpdateAndDelete(t *testing.T) {
	coll := newTestCollection(t)
	seedContexts(t, coll)
	ctx := context.Background()

	ok, err := coll.Update(ctx, "c", map[string]interface{}{"active_count": int64(5)})
	require.NoError(t, err)
	assert.True(t, ok)

	records, err := coll.Filter(ctx, filter.Eq{Field: "id", Value: "c"}, 1, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, int64(5), records[0].ActiveCount)

	ok, err = coll.Update(ctx, "missing", map[string]interface{}{"active_count": int64(1)})
	require.NoError(t, err)
	assert.False(t, ok)

	deleted, err := coll.DeleteByFilter(ctx, filter.Eq{Field: "account_id", Value: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	n, err := coll.Count(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestLocalSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	driver, err := NewLocalDriver(Config{Backend: "local", Path: dir})
	require.NoError(t, err)
	coll, err := driver.CreateCollection(ctx, "context", ContextCollectionSchema)
	require.NoError(t, err)
	require.NoError(t, coll.Upsert(ctx, []models.Context{
		{ID: "x", URI: "viking://resources/x.md", AccountID: "acme", ContextType: models.ContextTypeResource, Level: models.LevelFull, UpdatedAt: time.Now().UTC()},
	}))
	require.NoError(t, driver.Close())

	reopened, err := NewLocalDriver(Config{Backend: "local", Path: dir})
	require.NoError(t, err)
	defer reopened.Close()

	exists, err := reopened.HasCollection(ctx, "context")
	require.NoError(t, err)
	require.True(t, exists)

	coll2, err := reopened.GetCollection(ctx, "context")
	require.NoError(t, err)
	records, err := coll2.Filter(ctx, nil, 0, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "viking://resources/x.md", records[0].URI)
}

func TestRegistryUnknownBackend(t *testing.T) {
	_, err := CreateDriver(Config{Backend: "bogus"})
	require.Error(t, err)
	assert.Equal(t, ovterrors.InvalidArgument, ovterrors.CodeOf(err))

	driver, err := CreateDriver(Config{Backend: "", Path: t.TempDir()})
	require.NoError(t, err)
	defer driver.Close()
	assert.IsType(t, &LocalDriver{}, driver)
}
