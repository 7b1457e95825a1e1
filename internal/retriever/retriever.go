// Package retriever implements the hierarchical retriever: typed
// queries flow through tenant-filtered, hierarchy-aware hybrid search
// with hotness blending; from L0/L1 summary roots down to L2/L3 leaves.
package retriever

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/openviking/openviking/internal/embedding"
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/semantic"
	"github.com/openviking/openviking/internal/trace"
)

// TypedQuery is the retriever's input shape.
type TypedQuery struct {
	Query             string
	ContextType       models.ContextType
	Intent            string
	TargetDirectories []string
}

// Options tunes one Retrieve call.
type Options struct {
	Limit          int
	ScoreThreshold float64
	DrillDown      bool
	// ChildLimit bounds the per-root children search during drill-down.
	ChildLimit int
}

// Retriever coordinates the gateway and the embedder. It holds no
// per-request state; every call threads a RequestContext.
type Retriever struct {
	gateway      *semantic.Gateway
	embedder     embedding.Provider
	hotnessAlpha float64
	halfLifeDays float64
	now          func() time.Time

	// drillParallelism bounds concurrent children searches per request.
	drillParallelism int
}

// New creates a Retriever with the default hotness blend.
func New(gateway *semantic.Gateway, embedder embedding.Provider) *Retriever {
	return &Retriever{
		gateway:          gateway,
		embedder:         embedder,
		hotnessAlpha:     DefaultHotnessAlpha,
		halfLifeDays:     DefaultHalfLifeDays,
		now:              time.Now,
		drillParallelism: 4,
	}
}

// WithHotness overrides the blend weight and half-life; alpha outside
// [0,1] is clamped at blend time.
func (r *Retriever) WithHotness(alpha, halfLifeDays float64) *Retriever {
	r.hotnessAlpha = alpha
	if halfLifeDays > 0 {
		r.halfLifeDays = halfLifeDays
	}
	return r
}

// rootURIs resolves the root set for a context type under rc. Without a
// tenant context the generic, non-tenant defaults apply.
func rootURIs(rc identity.RequestContext, contextType models.ContextType) []string {
	tenantless := rc.Role == ""
	switch contextType {
	case models.ContextTypeMemory:
		if tenantless {
			return []string{"viking://user", "viking://agent"}
		}
		return []string{
			rc.User.UserMemorySpaceURI(),
			rc.User.MemorySpaceURI(),
		}
	case models.ContextTypeSkill:
		if tenantless {
			return []string{"viking://agent"}
		}
		return []string{"viking://agent/" + rc.User.AgentSpaceName() + "/skills"}
	case models.ContextTypeResource:
		return []string{"viking://resources"}
	default:
		return nil
	}
}

// Retrieve executes the full pipeline: resolve roots, embed, search,
// optionally drill down, blend hotness, and bump active counts on the
// returned leaves.
func (r *Retriever) Retrieve(ctx context.Context, rc identity.RequestContext, q TypedQuery, opts Options) ([]models.MatchedContext, error) {
	if q.Query == "" {
		return nil, ovterrors.InvalidArgumentf("query must not be empty")
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if opts.ChildLimit <= 0 {
		opts.ChildLimit = opts.Limit
	}
	collector := trace.FromContext(ctx)

	dirs := q.TargetDirectories
	if len(dirs) == 0 {
		dirs = rootURIs(rc, q.ContextType)
	}

	emb, err := embedding.EmbedOne(ctx, r.embedder, q.Query)
	if err != nil {
		return nil, err
	}
	collector.Event("embedding", "query_embedded", map[string]interface{}{"dim": len(emb.Dense)}, "ok")

	searchOpts := semantic.SearchOptions{
		ContextType:       q.ContextType,
		TargetDirectories: dirs,
		Limit:             opts.Limit,
	}
	roots, err := r.gateway.SearchGlobalRootsInTenant(ctx, rc, emb.Dense, emb.Sparse, searchOpts)
	if err != nil {
		return nil, err
	}
	collector.Event("vector", "roots_search", map[string]interface{}{"returned": len(roots)}, "ok")

	merged := roots
	if opts.DrillDown && len(roots) > 0 {
		children, err := r.drillDown(ctx, rc, roots, emb, q.ContextType, opts.ChildLimit)
		if err != nil {
			return nil, err
		}
		merged = append(merged, children...)
	} else if len(roots) == 0 {
		// Nothing at the summary levels; fall back to a flat search so a
		// store without L0/L1 companions still answers.
		merged, err = r.gateway.SearchInTenant(ctx, rc, emb.Dense, emb.Sparse, searchOpts)
		if err != nil {
			return nil, err
		}
	}

	results := r.rerank(merged, opts)
	collector.Set("vector.returned", len(results))

	leaves := make([]string, 0, len(results))
	for _, m := range results {
		if m.IsLeaf() {
			leaves = append(leaves, m.URI)
		}
	}
	if len(leaves) > 0 {
		if _, err := r.gateway.IncrementActiveCount(ctx, rc, leaves); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// drillDown fans out one children search per L0/L1 root, bounded by
// drillParallelism, and folds the results.
func (r *Retriever) drillDown(ctx context.Context, rc identity.RequestContext, roots []models.MatchedContext, emb embedding.Embedding, contextType models.ContextType, childLimit int) ([]models.MatchedContext, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.drillParallelism)

	perRoot := make([][]models.MatchedContext, len(roots))
	for i, root := range roots {
		if !root.IsRoot() {
			continue
		}
		g.Go(func() error {
			children, err := r.gateway.SearchChildrenInTenant(gctx, rc, root.URI, emb.Dense, emb.Sparse, semantic.SearchOptions{
				ContextType: contextType,
				Limit:       childLimit,
			})
			if err != nil {
				return err
			}
			perRoot[i] = children
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []models.MatchedContext
	for _, children := range perRoot {
		out = append(out, children...)
	}
	return out, nil
}

// rerank dedups by (uri, level), blends hotness into the semantic score,
// applies the threshold, sorts, and truncates to the limit.
func (r *Retriever) rerank(matches []models.MatchedContext, opts Options) []models.MatchedContext {
	type key struct {
		uri   string
		level models.Level
	}
	seen := make(map[key]bool, len(matches))
	now := r.now().UTC()

	out := make([]models.MatchedContext, 0, len(matches))
	for _, m := range matches {
		k := key{uri: m.URI, level: m.Level}
		if seen[k] {
			continue
		}
		seen[k] = true

		hot := HotnessScore(m.ActiveCount, m.UpdatedAt, now, r.halfLifeDays)
		m.Score = blendScore(m.Score, hot, r.hotnessAlpha)
		if opts.ScoreThreshold > 0 && m.Score < opts.ScoreThreshold {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].URI < out[j].URI
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
