// Package vectorstore implements the pluggable vector backend: a
// driver interface, a static startup registry keyed by backend name, and
// the collection schema every driver must expose for the `context`
// collection.
package vectorstore

import (
	"context"
	"time"

	"github.com/openviking/openviking/internal/filter"
	"github.com/openviking/openviking/internal/models"
)

// FieldSchema describes one scalar/vector field of the context collection.
type FieldSchema struct {
	Name    string
	Type    string // "string", "int", "float", "timestamp", "dense_vector", "sparse_vector"
	Indexed bool
}

// ContextCollectionSchema is the schema every driver's `context` collection
// MUST expose. account_id and owner_space are scalar-indexed and placed
// immediately after the primary id field.
var ContextCollectionSchema = []FieldSchema{
	{Name: "id", Type: "string", Indexed: true},
	{Name: "account_id", Type: "string", Indexed: true},
	{Name: "owner_space", Type: "string", Indexed: true},
	{Name: "dense", Type: "dense_vector"},
	{Name: "sparse", Type: "sparse_vector"},
	{Name: "uri", Type: "string", Indexed: true},
	{Name: "parent_uri", Type: "string", Indexed: true},
	{Name: "context_type", Type: "string", Indexed: true},
	{Name: "level", Type: "int", Indexed: true},
	{Name: "active_count", Type: "int", Indexed: true},
	{Name: "updated_at", Type: "timestamp", Indexed: true},
}

// Config selects and configures a vector backend. Backend is one of the
// names in the static registry (local, http, vikingdb, volcengine).
type Config struct {
	Backend    string
	Collection string // bound collection name, default "context"
	Path       string // local: persistence directory
	URL        string // http/vikingdb/volcengine: endpoint
	Dimension  int    // dense embedding dimension

	AccessKey string // volcengine
	SecretKey string // volcengine
	Region    string // volcengine

	// RedisAddr enables the cache-aside layer for hot search queries on
	// remote backends. Empty disables caching.
	RedisAddr string
	CacheTTL  time.Duration
}

// SearchRequest is the driver-facing query shape the Semantic Gateway
// builds after merging scope/tenant/caller filters.
type SearchRequest struct {
	Dense  []float32
	Sparse map[uint32]float32
	Filter filter.Expr
	Limit  int
	Offset int
}

// Driver is implemented once per vector backend (local/http/vikingdb/
// volcengine). Every backend also implements filter.Compiler via
// Compile, kept separate from the rest of Driver so the AST/compiler
// split stays visible at the type level.
type Driver interface {
	filter.Compiler

	HasCollection(ctx context.Context, name string) (bool, error)
	GetCollection(ctx context.Context, name string) (Collection, error)
	CreateCollection(ctx context.Context, name string, schema []FieldSchema) (Collection, error)
	DropCollection(ctx context.Context, name string) error
	ListCollections(ctx context.Context) ([]string, error)
	Close() error
}

// Collection is a single bound vector collection (e.g. "context"). Every
// result a driver returns is already translated into the canonical
// models.MatchedContext / models.Context shapes; the retriever never sees
// a backend-specific record.
type Collection interface {
	// Upsert inserts or replaces contexts by id. Last-writer-wins per id.
	Upsert(ctx context.Context, contexts []models.Context) error
	// Delete removes records by id; missing ids are ignored.
	Delete(ctx context.Context, ids []string) error
	// DeleteByFilter removes every record matching f, returning the count.
	DeleteByFilter(ctx context.Context, f filter.Expr) (int, error)
	// Search runs a hybrid dense/sparse query under req.Filter.
	Search(ctx context.Context, req SearchRequest) ([]models.MatchedContext, error)
	// Filter returns records matching f without any vector scoring.
	Filter(ctx context.Context, f filter.Expr, limit, offset int) ([]models.Context, error)
	// Update patches scalar fields of one record by id. Returns false when
	// the id does not exist.
	Update(ctx context.Context, id string, fields map[string]interface{}) (bool, error)
	// Count returns the number of records matching f (nil = all).
	Count(ctx context.Context, f filter.Expr) (int, error)
}
