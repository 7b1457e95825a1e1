package recorder

import (
	"context"
	"time"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/vectorstore"
)

// recordingCollection wraps a vectorstore.Collection; every call is timed
// and recorded as a vikingdb record. Filters are serialized through the
// wire DSL so the player can rebuild them.
type recordingCollection struct {
	inner      vectorstore.Collection
	recorder   *Recorder
	collection string
}

// WrapCollection returns coll unchanged when r is nil; otherwise every
// call is recorded under the given collection name.
func WrapCollection(coll vectorstore.Collection, name string, r *Recorder) vectorstore.Collection {
	if r == nil {
		return coll
	}
	return &recordingCollection{inner: coll, recorder: r, collection: name}
}

func (c *recordingCollection) record(operation string, request map[string]interface{}, response interface{}, start time.Time, err error) {
	request["collection"] = c.collection
	c.recorder.Record(models.IOTypeVikingDB, operation, request, response, time.Since(start), err)
}

func filterDSL(f filter.Expr) interface{} {
	dsl, err := vectorstore.WireDSL(f)
	if err != nil {
		return map[string]interface{}{"__uncompilable__": err.Error()}
	}
	if dsl == nil {
		return nil
	}
	return dsl
}

func (c *recordingCollection) Upsert(ctx context.Context, contexts []models.Context) error {
	start := time.Now()
	err := c.inner.Upsert(ctx, contexts)
	c.record("upsert", map[string]interface{}{"records": contexts}, nil, start, err)
	return err
}

func (c *recordingCollection) Delete(ctx context.Context, ids []string) error {
	start := time.Now()
	err := c.inner.Delete(ctx, ids)
	c.record("delete", map[string]interface{}{"ids": ids}, nil, start, err)
	return err
}

func (c *recordingCollection) DeleteByFilter(ctx context.Context, f filter.Expr) (int, error) {
	start := time.Now()
	deleted, err := c.inner.DeleteByFilter(ctx, f)
	c.record("delete_by_filter", map[string]interface{}{"filter": filterDSL(f)}, deleted, start, err)
	return deleted, err
}

func (c *recordingCollection) Search(ctx context.Context, req vectorstore.SearchRequest) ([]models.MatchedContext, error) {
	start := time.Now()
	matches, err := c.inner.Search(ctx, req)
	c.record("search", map[string]interface{}{
		"dense":  req.Dense,
		"sparse": req.Sparse,
		"filter": filterDSL(req.Filter),
		"limit":  req.Limit,
		"offset": req.Offset,
	}, matches, start, err)
	return matches, err
}

func (c *recordingCollection) Filter(ctx context.Context, f filter.Expr, limit, offset int) ([]models.Context, error) {
	start := time.Now()
	records, err := c.inner.Filter(ctx, f, limit, offset)
	c.record("filter", map[string]interface{}{
		"filter": filterDSL(f),
		"limit":  limit,
		"offset": offset,
	}, records, start, err)
	return records, err
}

func (c *recordingCollection) Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	start := time.Now()
	updated, err := c.inner.Update(ctx, id, fields)
	c.record("update", map[string]interface{}{"id": id, "fields": fields}, updated, start, err)
	return updated, err
}

func (c *recordingCollection) Count(ctx context.Context, f filter.Expr) (int, error) {
	start := time.Now()
	count, err := c.inner.Count(ctx, f)
	c.record("count", map[string]interface{}{"filter": filterDSL(f)}, count, start, err)
	return count, err
}
