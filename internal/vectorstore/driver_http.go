package vectorstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
	"github.com/openviking/openviking/internal/ovterrors"
)

const defaultCacheTTL = 30 * time.Second

// HTTPDriver speaks the remote vectordb JSON protocol: collection CRUD
// under /api/collections and per-collection search/filter/upsert calls.
// When cfg.RedisAddr is set, hot search queries go through a cache-aside
// layer keyed by a digest of the request; any mutation on the collection
// bumps a generation counter so stale entries never resurface.
type HTTPDriver struct {
	client *remoteClient
}

// NewHTTPDriver creates an HTTPDriver against cfg.URL.
func NewHTTPDriver(cfg Config) (*HTTPDriver, error) {
	if cfg.URL == "" {
		return nil, ovterrors.InvalidArgumentf("http vector backend requires a URL")
	}
	client, err := newRemoteClient("http", cfg, nil)
	if err != nil {
		return nil, err
	}
	return &HTTPDriver{client: client}, nil
}

func (d *HTTPDriver) Compile(e filter.Expr) (interface{}, error) {
	dsl, err := compileWireDSL("http", e, nil)
	if err != nil {
		return nil, err
	}
	if dsl == nil {
		return nil, nil
	}
	return dsl, nil
}

func (d *HTTPDriver) HasCollection(ctx context.Context, name string) (bool, error) {
	return d.client.hasCollection(ctx, name)
}

func (d *HTTPDriver) GetCollection(ctx context.Context, name string) (Collection, error) {
	return d.client.getCollection(ctx, name)
}

func (d *HTTPDriver) CreateCollection(ctx context.Context, name string, schema []FieldSchema) (Collection, error) {
	return d.client.createCollection(ctx, name, schema)
}

func (d *HTTPDriver) DropCollection(ctx context.Context, name string) error {
	return d.client.dropCollection(ctx, name)
}

func (d *HTTPDriver) ListCollections(ctx context.Context) ([]string, error) {
	return d.client.listCollections(ctx)
}

func (d *HTTPDriver) Close() error {
	return d.client.close()
}

// remoteClient is the transport shared by the http, vikingdb, and
// volcengine drivers; only the base path, headers, and filter-compile
// restrictions differ between them.
type remoteClient struct {
	backend string
	baseURL string
	http    *http.Client
	headers map[string]string

	compileRestrictions map[string]bool

	cache    *redis.Client
	cacheTTL time.Duration
}

func newRemoteClient(backend string, cfg Config, headers map[string]string) (*remoteClient, error) {
	c := &remoteClient{
		backend: backend,
		baseURL: strings.TrimSuffix(cfg.URL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: headers,
	}
	if cfg.RedisAddr != "" {
		c.cache = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		c.cacheTTL = cfg.CacheTTL
		if c.cacheTTL <= 0 {
			c.cacheTTL = defaultCacheTTL
		}
	}
	return c, nil
}

func (c *remoteClient) close() error {
	if c.cache != nil {
		return c.cache.Close()
	}
	return nil
}

func (c *remoteClient) do(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return ovterrors.Wrap(ovterrors.Internal, err, "marshaling %s request", path)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "building %s request", path)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ovterrors.Wrap(ovterrors.Timeout, err, "vector backend call %s canceled", path)
		}
		return ovterrors.Wrap(ovterrors.Internal, err, "vector backend call %s: connection refused or failed", path)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "reading %s response", path)
	}
	if resp.StatusCode >= 400 {
		return translateHTTPStatus(resp.StatusCode, path, string(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return ovterrors.Wrap(ovterrors.Internal, err, "decoding %s response", path)
		}
	}
	return nil
}

// translateHTTPStatus normalizes remote status codes into the taxonomy
// before they leave the driver.
func translateHTTPStatus(status int, path, body string) error {
	msg := strings.TrimSpace(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch status {
	case http.StatusNotFound:
		return ovterrors.NotFoundf("%s: %s", path, msg)
	case http.StatusConflict:
		return ovterrors.AlreadyExistsf("%s: %s", path, msg)
	case http.StatusBadRequest:
		return ovterrors.InvalidArgumentf("%s: %s", path, msg)
	case http.StatusForbidden:
		return ovterrors.PermissionDeniedf("%s: %s", path, msg)
	case http.StatusUnauthorized:
		return ovterrors.Unauthenticatedf("%s: %s", path, msg)
	case http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return ovterrors.Timeoutf("%s: %s", path, msg)
	case http.StatusServiceUnavailable:
		return ovterrors.NotInitializedf("%s: %s", path, msg)
	default:
		return ovterrors.Internalf("%s: HTTP %d: %s", path, status, msg)
	}
}

func (c *remoteClient) collectionPath(name string) string {
	return "/api/collections/" + name
}

func (c *remoteClient) hasCollection(ctx context.Context, name string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.do(ctx, http.MethodGet, c.collectionPath(name)+"/exists", nil, &out)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	return out.Exists, nil
}

func (c *remoteClient) getCollection(ctx context.Context, name string) (Collection, error) {
	ok, err := c.hasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ovterrors.NotFoundf("collection %q does not exist", name)
	}
	return &remoteCollection{client: c, name: name}, nil
}

func (c *remoteClient) createCollection(ctx context.Context, name string, schema []FieldSchema) (Collection, error) {
	fields := make([]map[string]interface{}, 0, len(schema))
	for _, f := range schema {
		fields = append(fields, map[string]interface{}{
			"name":    f.Name,
			"type":    f.Type,
			"indexed": f.Indexed,
		})
	}
	err := c.do(ctx, http.MethodPut, c.collectionPath(name), map[string]interface{}{"fields": fields}, nil)
	if err != nil && !ovterrors.Is(err, ovterrors.AlreadyExists) {
		return nil, err
	}
	return &remoteCollection{client: c, name: name}, nil
}

func (c *remoteClient) dropCollection(ctx context.Context, name string) error {
	err := c.do(ctx, http.MethodDelete, c.collectionPath(name), nil, nil)
	if ovterrors.Is(err, ovterrors.NotFound) {
		return nil
	}
	return err
}

func (c *remoteClient) listCollections(ctx context.Context) ([]string, error) {
	var out struct {
		Collections []string `json:"collections"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/collections", nil, &out); err != nil {
		return nil, err
	}
	return out.Collections, nil
}

// wireRecord is the JSON shape remote backends exchange for one context.
// Sparse term ids travel as string keys (JSON objects cannot key on
// numbers).
type wireRecord struct {
	ID          string             `json:"id"`
	AccountID   string             `json:"account_id"`
	OwnerSpace  string             `json:"owner_space"`
	URI         string             `json:"uri"`
	ParentURI   string             `json:"parent_uri,omitempty"`
	ContextType string             `json:"context_type"`
	Level       int                `json:"level"`
	ActiveCount int64              `json:"active_count"`
	UpdatedAt   time.Time          `json:"updated_at"`
	Dense       []float32          `json:"dense,omitempty"`
	Sparse      map[string]float32 `json:"sparse,omitempty"`
	Score       float64            `json:"score,omitempty"`
}

func toWire(c models.Context) wireRecord {
	w := wireRecord{
		ID:          c.ID,
		AccountID:   c.AccountID,
		OwnerSpace:  c.OwnerSpace,
		URI:         c.URI,
		ParentURI:   c.ParentURI,
		ContextType: string(c.ContextType),
		Level:       int(c.Level),
		ActiveCount: c.ActiveCount,
		UpdatedAt:   c.UpdatedAt,
		Dense:       c.Dense,
	}
	if len(c.Sparse) > 0 {
		w.Sparse = make(map[string]float32, len(c.Sparse))
		for term, weight := range c.Sparse {
			w.Sparse[strconv.FormatUint(uint64(term), 10)] = weight
		}
	}
	return w
}

func fromWire(w wireRecord) models.Context {
	c := models.Context{
		ID:          w.ID,
		AccountID:   w.AccountID,
		OwnerSpace:  w.OwnerSpace,
		URI:         w.URI,
		ParentURI:   w.ParentURI,
		ContextType: models.ContextType(w.ContextType),
		Level:       models.Level(w.Level),
		ActiveCount: w.ActiveCount,
		UpdatedAt:   w.UpdatedAt,
		Dense:       w.Dense,
	}
	if len(w.Sparse) > 0 {
		c.Sparse = make(map[uint32]float32, len(w.Sparse))
		for term, weight := range w.Sparse {
			if id, err := strconv.ParseUint(term, 10, 32); err == nil {
				c.Sparse[uint32(id)] = weight
			}
		}
	}
	return c
}

type remoteCollection struct {
	client *remoteClient
	name   string
}

func (rc *remoteCollection) path(op string) string {
	return rc.client.collectionPath(rc.name) + "/" + op
}

func (rc *remoteCollection) compileFilter(f filter.Expr) (map[string]interface{}, error) {
	return compileWireDSL(rc.client.backend, f, rc.client.compileRestrictions)
}

func (rc *remoteCollection) Upsert(ctx context.Context, contexts []models.Context) error {
	records := make([]wireRecord, 0, len(contexts))
	for _, c := range contexts {
		records = append(records, toWire(c))
	}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("upsert"), map[string]interface{}{"records": records}, nil); err != nil {
		return err
	}
	rc.bumpGeneration(ctx)
	return nil
}

func (rc *remoteCollection) Delete(ctx context.Context, ids []string) error {
	if err := rc.client.do(ctx, http.MethodPost, rc.path("delete"), map[string]interface{}{"ids": ids}, nil); err != nil {
		return err
	}
	rc.bumpGeneration(ctx)
	return nil
}

func (rc *remoteCollection) DeleteByFilter(ctx context.Context, f filter.Expr) (int, error) {
	dsl, err := rc.compileFilter(f)
	if err != nil {
		return 0, err
	}
	var out struct {
		Deleted int `json:"deleted"`
	}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("delete_by_filter"), map[string]interface{}{"filter": dsl}, &out); err != nil {
		return 0, err
	}
	rc.bumpGeneration(ctx)
	return out.Deleted, nil
}

func (rc *remoteCollection) Search(ctx context.Context, req SearchRequest) ([]models.MatchedContext, error) {
	dsl, err := rc.compileFilter(req.Filter)
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"dense":  req.Dense,
		"sparse": sparseToWire(req.Sparse),
		"filter": dsl,
		"limit":  req.Limit,
		"offset": req.Offset,
	}

	if cached, ok := rc.cachedSearch(ctx, payload); ok {
		return cached, nil
	}

	var out struct {
		Results []wireRecord `json:"results"`
	}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("search"), payload, &out); err != nil {
		return nil, err
	}
	matches := make([]models.MatchedContext, 0, len(out.Results))
	for _, w := range out.Results {
		matches = append(matches, models.MatchedContext{Context: fromWire(w), Score: w.Score})
	}
	rc.storeCache(ctx, payload, matches)
	return matches, nil
}

func (rc *remoteCollection) Filter(ctx context.Context, f filter.Expr, limit, offset int) ([]models.Context, error) {
	dsl, err := rc.compileFilter(f)
	if err != nil {
		return nil, err
	}
	var out struct {
		Results []wireRecord `json:"results"`
	}
	payload := map[string]interface{}{"filter": dsl, "limit": limit, "offset": offset}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("filter"), payload, &out); err != nil {
		return nil, err
	}
	records := make([]models.Context, 0, len(out.Results))
	for _, w := range out.Results {
		records = append(records, fromWire(w))
	}
	return records, nil
}

func (rc *remoteCollection) Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error) {
	var out struct {
		Updated bool `json:"updated"`
	}
	payload := map[string]interface{}{"id": id, "fields": fields}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("update"), payload, &out); err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return false, nil
		}
		return false, err
	}
	rc.bumpGeneration(ctx)
	return out.Updated, nil
}

func (rc *remoteCollection) Count(ctx context.Context, f filter.Expr) (int, error) {
	dsl, err := rc.compileFilter(f)
	if err != nil {
		return 0, err
	}
	var out struct {
		Count int `json:"count"`
	}
	if err := rc.client.do(ctx, http.MethodPost, rc.path("count"), map[string]interface{}{"filter": dsl}, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func sparseToWire(sparse map[uint32]float32) map[string]float32 {
	if len(sparse) == 0 {
		return nil
	}
	out := make(map[string]float32, len(sparse))
	for term, weight := range sparse {
		out[strconv.FormatUint(uint64(term), 10)] = weight
	}
	return out
}

// --- cache-aside layer ---
//
// Search results cache under ov:vq:<collection>:<generation>:<digest>.
// Mutations INCR the generation key, abandoning every entry of the old
// generation; the TTL sweeps the garbage. Cache failures are soft: a
// redis outage degrades to uncached searches, never to request errors.

func (rc *remoteCollection) generationKey() string {
	return "ov:vgen:" + rc.name
}

func (rc *remoteCollection) bumpGeneration(ctx context.Context) {
	if rc.client.cache == nil {
		return
	}
	rc.client.cache.Incr(ctx, rc.generationKey())
}

func (rc *remoteCollection) searchKey(ctx context.Context, payload map[string]interface{}) string {
	if rc.client.cache == nil {
		return ""
	}
	gen, err := rc.client.cache.Get(ctx, rc.generationKey()).Result()
	if err != nil {
		gen = "0"
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("ov:vq:%s:%s:%s", rc.name, gen, hex.EncodeToString(sum[:16]))
}

func (rc *remoteCollection) cachedSearch(ctx context.Context, payload map[string]interface{}) ([]models.MatchedContext, bool) {
	key := rc.searchKey(ctx, payload)
	if key == "" {
		return nil, false
	}
	data, err := rc.client.cache.Get(ctx, key).Bytes()
	if err != nil {
		return nil, false
	}
	var matches []models.MatchedContext
	if err := json.Unmarshal(data, &matches); err != nil {
		return nil, false
	}
	return matches, true
}

func (rc *remoteCollection) storeCache(ctx context.Context, payload map[string]interface{}, matches []models.MatchedContext) {
	key := rc.searchKey(ctx, payload)
	if key == "" {
		return
	}
	data, err := json.Marshal(matches)
	if err != nil {
		return
	}
	rc.client.cache.Set(ctx, key, data, rc.client.cacheTTL)
}
