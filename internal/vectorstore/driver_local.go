package vectorstore

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
)

// Predicate is the local backend's native filter representation: instead
// of a wire DSL, Compile produces a Go predicate evaluated per record.
type Predicate func(models.Context) bool

// LocalDriver is the embedded vector backend: an in-process index over
// plain Go maps with optional JSON snapshot persistence under Path. It is
// the default backend when OPENVIKING_VECTOR_BACKEND is unset.
type LocalDriver struct {
	path string

	mu          sync.RWMutex
	collections map[string]*localCollection
}

// NewLocalDriver creates a LocalDriver persisting snapshots under
// cfg.Path (in-memory only when Path is empty). Existing snapshots are
// loaded eagerly so has_collection answers without IO later.
func NewLocalDriver(cfg Config) (*LocalDriver, error) {
	d := &LocalDriver{path: cfg.Path, collections: make(map[string]*localCollection)}
	if d.path != "" {
		if err := os.MkdirAll(d.path, 0o755); err != nil {
			return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "creating local vector store dir %q", d.path)
		}
		entries, err := os.ReadDir(d.path)
		if err != nil {
			return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "listing local vector store dir %q", d.path)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
				continue
			}
			name := strings.TrimSuffix(e.Name(), ".json")
			coll := newLocalCollection(d.snapshotPath(name))
			if err := coll.load(); err != nil {
				return nil, err
			}
			d.collections[name] = coll
		}
	}
	return d, nil
}

func (d *LocalDriver) snapshotPath(name string) string {
	if d.path == "" {
		return ""
	}
	return filepath.Join(d.path, name+".json")
}

// Compile implements filter.Compiler; the result is a Predicate.
func (d *LocalDriver) Compile(e filter.Expr) (interface{}, error) {
	return compilePredicate(e)
}

func (d *LocalDriver) HasCollection(_ context.Context, name string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.collections[name]
	return ok, nil
}

func (d *LocalDriver) GetCollection(_ context.Context, name string) (Collection, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	coll, ok := d.collections[name]
	if !ok {
		return nil, ovterrors.NotFoundf("collection %q does not exist", name)
	}
	return coll, nil
}

func (d *LocalDriver) CreateCollection(_ context.Context, name string, _ []FieldSchema) (Collection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if coll, ok := d.collections[name]; ok {
		return coll, nil
	}
	coll := newLocalCollection(d.snapshotPath(name))
	d.collections[name] = coll
	return coll, nil
}

func (d *LocalDriver) DropCollection(_ context.Context, name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	coll, ok := d.collections[name]
	if !ok {
		return nil
	}
	delete(d.collections, name)
	if coll.snapshot != "" {
		if err := os.Remove(coll.snapshot); err != nil && !os.IsNotExist(err) {
			return ovterrors.Wrap(ovterrors.Internal, err, "dropping collection snapshot %q", coll.snapshot)
		}
	}
	return nil
}

func (d *LocalDriver) ListCollections(_ context.Context) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.collections))
	for name := range d.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (d *LocalDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, coll := range d.collections {
		if err := coll.persist(); err != nil {
			return err
		}
	}
	return nil
}

// localCollection holds records by id under a single RWMutex; snapshots
// are written after every mutation so a crash loses at most the call in
// flight (last-writer-wins is already the storage contract).
type localCollection struct {
	snapshot string

	mu      sync.RWMutex
	records map[string]models.Context
}

func newLocalCollection(snapshot string) *localCollection {
	return &localCollection{snapshot: snapshot, records: make(map[string]models.Context)}
}

func (c *localCollection) load() error {
	if c.snapshot == "" {
		return nil
	}
	data, err := os.ReadFile(c.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return ovterrors.Wrap(ovterrors.NotInitialized, err, "loading vector snapshot %q", c.snapshot)
	}
	var records []models.Context
	if err := json.Unmarshal(data, &records); err != nil {
		return ovterrors.Wrap(ovterrors.NotInitialized, err, "parsing vector snapshot %q", c.snapshot)
	}
	for _, r := range records {
		c.records[r.ID] = r
	}
	return nil
}

// persist writes the snapshot; caller holds at least a read lock.
func (c *localCollection) persist() error {
	if c.snapshot == "" {
		return nil
	}
	records := make([]models.Context, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, r)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	data, err := json.Marshal(records)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "marshaling vector snapshot")
	}
	tmp := c.snapshot + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "writing vector snapshot %q", tmp)
	}
	if err := os.Rename(tmp, c.snapshot); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "replacing vector snapshot %q", c.snapshot)
	}
	return nil
}

func (c *localCollection) Upsert(_ context.Context, contexts []models.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range contexts {
		if record.ID == "" {
			return ovterrors.InvalidArgumentf("upsert requires a non-empty id (uri %q)", record.URI)
		}
		c.records[record.ID] = record
	}
	return c.persist()
}

func (c *localCollection) Delete(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		delete(c.records, id)
	}
	return c.persist()
}

func (c *localCollection) DeleteByFilter(_ context.Context, f filter.Expr) (int, error) {
	pred, err := compilePredicate(f)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	deleted := 0
	for id, record := range c.records {
		if pred(record) {
			delete(c.records, id)
			deleted++
		}
	}
	if err := c.persist(); err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (c *localCollection) Search(_ context.Context, req SearchRequest) ([]models.MatchedContext, error) {
	pred, err := compilePredicate(req.Filter)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	matches := make([]models.MatchedContext, 0, 16)
	for _, record := range c.records {
		if !pred(record) {
			continue
		}
		matches = append(matches, models.MatchedContext{
			Context: record,
			Score:   hybridScore(req.Dense, req.Sparse, record),
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	return page(matches, req.Limit, req.Offset), nil
}

func (c *localCollection) Filter(_ context.Context, f filter.Expr, limit, offset int) ([]models.Context, error) {
	pred, err := compilePredicate(f)
	if err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []models.Context
	for _, record := range c.records {
		if pred(record) {
			out = append(out, record)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return page(out, limit, offset), nil
}

func (c *localCollection) Update(_ context.Context, id string, fields map[string]interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	record, ok := c.records[id]
	if !ok {
		return false, nil
	}
	for field, value := range fields {
		switch field {
		case "uri":
			record.URI, _ = value.(string)
		case "parent_uri":
			record.ParentURI, _ = value.(string)
		case "owner_space":
			record.OwnerSpace, _ = value.(string)
		case "active_count":
			record.ActiveCount = toInt64(value)
		case "updated_at":
			switch t := value.(type) {
			case time.Time:
				record.UpdatedAt = t
			case string:
				if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
					record.UpdatedAt = parsed
				}
			}
		default:
			return false, ovterrors.InvalidArgumentf("field %q is not updatable", field)
		}
	}
	c.records[id] = record
	if err := c.persist(); err != nil {
		return true, err
	}
	return true, nil
}

func (c *localCollection) Count(_ context.Context, f filter.Expr) (int, error) {
	pred, err := compilePredicate(f)
	if err != nil {
		return 0, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, record := range c.records {
		if pred(record) {
			n++
		}
	}
	return n, nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

// hybridScore blends cosine similarity on the dense vector with a dot
// product on the sparse terms, each mapped into [0,1]. A query with
// neither vector scores every candidate equally (pure filter mode).
func hybridScore(dense []float32, sparse map[uint32]float32, record models.Context) float64 {
	var score float64
	var parts int
	if len(dense) > 0 && len(record.Dense) > 0 {
		score += (1 + cosine(dense, record.Dense)) / 2
		parts++
	}
	if len(sparse) > 0 && len(record.Sparse) > 0 {
		score += sparseOverlap(sparse, record.Sparse)
		parts++
	}
	if parts == 0 {
		return 0
	}
	return score / float64(parts)
}

func cosine(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// sparseOverlap is a normalized dot product over the shared term ids.
func sparseOverlap(query, doc map[uint32]float32) float64 {
	var dot, qn, dn float64
	for term, w := range query {
		qn += float64(w) * float64(w)
		if dw, ok := doc[term]; ok {
			dot += float64(w) * float64(dw)
		}
	}
	for _, w := range doc {
		dn += float64(w) * float64(w)
	}
	if qn == 0 || dn == 0 {
		return 0
	}
	return dot / (math.Sqrt(qn) * math.Sqrt(dn))
}

// compilePredicate is the local backend's filter compiler. RawDSL has no
// meaning for the in-process index and surfaces InvalidArgument.
func compilePredicate(e filter.Expr) (Predicate, error) {
	if e == nil {
		return func(models.Context) bool { return true }, nil
	}
	switch v := e.(type) {
	case filter.And:
		preds, err := compileAll(v.Conds)
		if err != nil {
			return nil, err
		}
		return func(c models.Context) bool {
			for _, p := range preds {
				if !p(c) {
					return false
				}
			}
			return true
		}, nil
	case filter.Or:
		preds, err := compileAll(v.Conds)
		if err != nil {
			return nil, err
		}
		if len(preds) == 0 {
			return func(models.Context) bool { return true }, nil
		}
		return func(c models.Context) bool {
			for _, p := range preds {
				if p(c) {
					return true
				}
			}
			return false
		}, nil
	case filter.Eq:
		return func(c models.Context) bool {
			return fieldEquals(c, v.Field, v.Value)
		}, nil
	case filter.In:
		values := append([]interface{}{}, v.Values...)
		return func(c models.Context) bool {
			for _, val := range values {
				if fieldEquals(c, v.Field, val) {
					return true
				}
			}
			return false
		}, nil
	case filter.Prefix:
		return func(c models.Context) bool {
			s, ok := stringField(c, v.Field)
			return ok && strings.HasPrefix(s, v.Prefix)
		}, nil
	case filter.Range:
		return rangePredicate(v.Field, v.Gt, v.Gte, v.Lt, v.Lte), nil
	case filter.Contains:
		return func(c models.Context) bool {
			s, ok := stringField(c, v.Field)
			return ok && strings.Contains(s, v.Substring)
		}, nil
	case filter.Regex:
		re, err := regexp.Compile(v.Pattern)
		if err != nil {
			return nil, ovterrors.InvalidArgumentf("invalid regex filter pattern: %v", err)
		}
		return func(c models.Context) bool {
			s, ok := stringField(c, v.Field)
			return ok && re.MatchString(s)
		}, nil
	case filter.TimeRange:
		return rangePredicate(v.Field, nil, v.Start, v.End, nil), nil
	case filter.RawDSL:
		return nil, unsupportedNode("local", e)
	default:
		return nil, unsupportedNode("local", e)
	}
}

func compileAll(conds []filter.Expr) ([]Predicate, error) {
	preds := make([]Predicate, 0, len(conds))
	for _, cond := range conds {
		if cond == nil {
			continue
		}
		p, err := compilePredicate(cond)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return preds, nil
}

func rangePredicate(field string, gt, gte, lt, lte interface{}) Predicate {
	return func(c models.Context) bool {
		n, ok := numericField(c, field)
		if !ok {
			return false
		}
		if gt != nil && !(n > toFloat(gt)) {
			return false
		}
		if gte != nil && !(n >= toFloat(gte)) {
			return false
		}
		if lt != nil && !(n < toFloat(lt)) {
			return false
		}
		if lte != nil && !(n <= toFloat(lte)) {
			return false
		}
		return true
	}
}

func stringField(c models.Context, field string) (string, bool) {
	switch field {
	case "id":
		return c.ID, true
	case "uri":
		return c.URI, true
	case "parent_uri":
		return c.ParentURI, true
	case "account_id":
		return c.AccountID, true
	case "owner_space":
		return c.OwnerSpace, true
	case "context_type":
		return string(c.ContextType), true
	}
	return "", false
}

func numericField(c models.Context, field string) (float64, bool) {
	switch field {
	case "level":
		return float64(c.Level), true
	case "active_count":
		return float64(c.ActiveCount), true
	case "updated_at":
		return float64(c.UpdatedAt.UnixNano()), true
	}
	return 0, false
}

func fieldEquals(c models.Context, field string, value interface{}) bool {
	if s, ok := stringField(c, field); ok {
		want, isStr := value.(string)
		return isStr && s == want
	}
	if n, ok := numericField(c, field); ok {
		return n == toFloat(value)
	}
	return false
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	case models.Level:
		return float64(n)
	case time.Time:
		return float64(n.UnixNano())
	}
	return math.NaN()
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
