// Package semantic implements the Context Semantic Gateway: a thin,
// intent-named API over the bound vector collection. It is the only place
// business code touches vector search, and the place the tenant scope
// filter is injected; raw filter expressions never leak past it.
package semantic

import (
	"context"
	"time"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/pkg/metrics"
	"github.com/openviking/openviking/internal/trace"
	"github.com/openviking/openviking/internal/vectorstore"
)

// DefaultCollection is the bound collection name when config is silent.
const DefaultCollection = "context"

// uriRecordLimit bounds how many records one uri can resolve to: L0/L1/L2
// share a uri, plus headroom for stragglers from older ingest layouts.
const uriRecordLimit = 8

// Gateway exposes tenant-scoped semantic operations over one collection.
type Gateway struct {
	driver     vectorstore.Driver
	collection vectorstore.Collection
	name       string
}

// New binds a Gateway to the named collection, creating it with the
// canonical context schema when absent.
func New(ctx context.Context, driver vectorstore.Driver, name string) (*Gateway, error) {
	if name == "" {
		name = DefaultCollection
	}
	exists, err := driver.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	var coll vectorstore.Collection
	if exists {
		coll, err = driver.GetCollection(ctx, name)
	} else {
		coll, err = driver.CreateCollection(ctx, name, vectorstore.ContextCollectionSchema)
	}
	if err != nil {
		return nil, err
	}
	return &Gateway{driver: driver, collection: coll, name: name}, nil
}

// CollectionName returns the bound collection name.
func (g *Gateway) CollectionName() string { return g.name }

// WrapCollection swaps the bound collection through wrap; the hook the
// recorder uses to interpose on every vector call. Call before serving.
func (g *Gateway) WrapCollection(wrap func(vectorstore.Collection) vectorstore.Collection) {
	g.collection = wrap(g.collection)
}

// Healthy reports whether the bound collection is reachable, used by the
// /ready probe.
func (g *Gateway) Healthy(ctx context.Context) error {
	_, err := g.driver.HasCollection(ctx, g.name)
	return err
}

// SearchOptions carries the optional knobs of a tenant-scoped search.
type SearchOptions struct {
	ContextType       models.ContextType
	TargetDirectories []string
	Extra             filter.Expr
	Limit             int
	Offset            int
}

// scopeFilter merges the optional type filter, the tenant filter derived
// from rc, the directory prefixes, and any caller extra, in that order:
// caller-provided type first, tenant filter after.
func scopeFilter(rc identity.RequestContext, opts SearchOptions) filter.Expr {
	var conds []filter.Expr
	if opts.ContextType != "" {
		conds = append(conds, filter.Eq{Field: "context_type", Value: string(opts.ContextType)})
	}
	if tenant := filter.BuildTenantFilter(rc, opts.ContextType); tenant != nil {
		conds = append(conds, tenant)
	}
	if len(opts.TargetDirectories) > 0 {
		var dirs []filter.Expr
		for _, dir := range opts.TargetDirectories {
			if dir == "" {
				continue
			}
			dirs = append(dirs, filter.Prefix{Field: "uri", Prefix: dir})
		}
		if len(dirs) > 0 {
			conds = append(conds, filter.Or{Conds: dirs})
		}
	}
	if opts.Extra != nil {
		conds = append(conds, opts.Extra)
	}
	return filter.Simplify(filter.And{Conds: conds})
}

func (g *Gateway) search(ctx context.Context, dense []float32, sparse map[uint32]float32, f filter.Expr, limit, offset int) ([]models.MatchedContext, error) {
	collector := trace.FromContext(ctx)
	collector.Count("vector.search_calls", 1)
	start := time.Now()
	matches, err := g.collection.Search(ctx, vectorstore.SearchRequest{
		Dense:  dense,
		Sparse: sparse,
		Filter: f,
		Limit:  limit,
		Offset: offset,
	})
	metrics.VectorSearchDurationSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VectorSearchTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.VectorSearchTotal.WithLabelValues("success").Inc()
	collector.Count("vector.candidates_returned", float64(len(matches)))
	return matches, nil
}

// SearchInTenant runs a hybrid search under the caller's tenant scope.
func (g *Gateway) SearchInTenant(ctx context.Context, rc identity.RequestContext, dense []float32, sparse map[uint32]float32, opts SearchOptions) ([]models.MatchedContext, error) {
	return g.search(ctx, dense, sparse, scopeFilter(rc, opts), opts.Limit, opts.Offset)
}

// SearchGlobalRootsInTenant restricts a tenant search to the L0/L1
// summary nodes that anchor hierarchical drill-down.
func (g *Gateway) SearchGlobalRootsInTenant(ctx context.Context, rc identity.RequestContext, dense []float32, sparse map[uint32]float32, opts SearchOptions) ([]models.MatchedContext, error) {
	if len(dense) == 0 && len(sparse) == 0 {
		return nil, nil
	}
	merged := filter.Merge(scopeFilter(rc, opts), filter.In{Field: "level", Values: []interface{}{0, 1}})
	return g.search(ctx, dense, sparse, merged, opts.Limit, opts.Offset)
}

// SearchChildrenInTenant searches the children of one parent URI under
// the tenant scope.
func (g *Gateway) SearchChildrenInTenant(ctx context.Context, rc identity.RequestContext, parentURI string, dense []float32, sparse map[uint32]float32, opts SearchOptions) ([]models.MatchedContext, error) {
	merged := filter.Merge(
		filter.Eq{Field: "parent_uri", Value: parentURI},
		scopeFilter(rc, opts),
	)
	return g.search(ctx, dense, sparse, merged, opts.Limit, opts.Offset)
}

// SearchSimilarMemories finds existing L2 memories near vec for the
// memory-extraction dedup pass. ownerSpace and categoryURIPrefix narrow
// the candidate set when non-empty.
func (g *Gateway) SearchSimilarMemories(ctx context.Context, accountID, ownerSpace, categoryURIPrefix string, dense []float32, limit int) ([]models.MatchedContext, error) {
	conds := []filter.Expr{
		filter.Eq{Field: "context_type", Value: string(models.ContextTypeMemory)},
		filter.Eq{Field: "level", Value: int(models.LevelFull)},
		filter.Eq{Field: "account_id", Value: accountID},
	}
	if ownerSpace != "" {
		conds = append(conds, filter.Eq{Field: "owner_space", Value: ownerSpace})
	}
	if categoryURIPrefix != "" {
		conds = append(conds, filter.Prefix{Field: "uri", Prefix: categoryURIPrefix})
	}
	return g.search(ctx, dense, nil, filter.And{Conds: conds}, limit, 0)
}

// GetContextByURI fetches the records stored for uri inside accountID.
func (g *Gateway) GetContextByURI(ctx context.Context, accountID, uri string, limit int) ([]models.Context, error) {
	if limit <= 0 {
		limit = 1
	}
	return g.collection.Filter(ctx, filter.And{Conds: []filter.Expr{
		filter.Eq{Field: "uri", Value: uri},
		filter.Eq{Field: "account_id", Value: accountID},
	}}, limit, 0)
}

// Upsert writes contexts into the bound collection; last-writer-wins per
// id, which makes batched commit() idempotent.
func (g *Gateway) Upsert(ctx context.Context, contexts []models.Context) error {
	return g.collection.Upsert(ctx, contexts)
}

// DeleteAccountData removes every record of one account; the vector leg
// of account-deletion cascade.
func (g *Gateway) DeleteAccountData(ctx context.Context, accountID string) (int, error) {
	if accountID == "" {
		return 0, ovterrors.InvalidArgumentf("delete_account_data requires an account_id")
	}
	return g.collection.DeleteByFilter(ctx, filter.Eq{Field: "account_id", Value: accountID})
}

// DeleteURIs removes the records for each uri (and its trailing-slash
// twin) inside the caller's account. USER callers additionally pin the
// owner_space predicate so they can never delete another owner's records
// by guessing URIs.
func (g *Gateway) DeleteURIs(ctx context.Context, rc identity.RequestContext, uris []string) error {
	for _, uri := range uris {
		conds := []filter.Expr{
			filter.Eq{Field: "account_id", Value: rc.AccountID()},
			filter.Or{Conds: []filter.Expr{
				filter.Eq{Field: "uri", Value: uri},
				filter.Prefix{Field: "uri", Prefix: uri + "/"},
			}},
		}
		if rc.IsUser() {
			if space := ownerSpaceForURI(rc, uri); space != "" {
				conds = append(conds, filter.Eq{Field: "owner_space", Value: space})
			}
		}
		if _, err := g.collection.DeleteByFilter(ctx, filter.And{Conds: conds}); err != nil {
			return err
		}
	}
	return nil
}

func ownerSpaceForURI(rc identity.RequestContext, uri string) string {
	switch {
	case hasPrefix(uri, "viking://user/"):
		return rc.User.UserSpaceName()
	case hasPrefix(uri, "viking://agent/"):
		return rc.User.AgentSpaceName()
	}
	return ""
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// UpdateURIMapping rewrites uri/parent_uri after a rename (mv). All
// records sharing the old uri (L0/L1/L2 siblings) are rewritten. Returns
// false when no record for the old uri exists in the account.
func (g *Gateway) UpdateURIMapping(ctx context.Context, rc identity.RequestContext, oldURI, newURI, newParentURI string) (bool, error) {
	records, err := g.GetContextByURI(ctx, rc.AccountID(), oldURI, uriRecordLimit)
	if err != nil {
		return false, err
	}
	moved := false
	for _, record := range records {
		if record.ID == "" {
			continue
		}
		ok, err := g.collection.Update(ctx, record.ID, map[string]interface{}{
			"uri":        newURI,
			"parent_uri": newParentURI,
		})
		if err != nil {
			return moved, err
		}
		moved = moved || ok
	}
	return moved, nil
}

// IncrementActiveCount bumps the monotone access counter of each uri,
// across every level sharing it, returning how many uris were updated.
// Missing uris are skipped, not errors; a leaf may have been removed
// between search and increment.
func (g *Gateway) IncrementActiveCount(ctx context.Context, rc identity.RequestContext, uris []string) (int, error) {
	updated := 0
	for _, uri := range uris {
		records, err := g.GetContextByURI(ctx, rc.AccountID(), uri, uriRecordLimit)
		if err != nil {
			return updated, err
		}
		bumped := false
		for _, record := range records {
			if record.ID == "" {
				continue
			}
			ok, err := g.collection.Update(ctx, record.ID, map[string]interface{}{
				"active_count": record.ActiveCount + 1,
			})
			if err != nil {
				return updated, err
			}
			bumped = bumped || ok
		}
		if bumped {
			updated++
		}
	}
	return updated, nil
}
