// Package models holds the OpenViking data-model types shared across
// VikingFS, the Semantic Gateway, the Retriever, and the HTTP surface:
// plain structs with db/json tags plus small helper methods.
package models

import "time"

// ContextType enumerates the kinds of addressable item a Context may be.
type ContextType string

const (
	ContextTypeResource ContextType = "resource"
	ContextTypeMemory   ContextType = "memory"
	ContextTypeSkill    ContextType = "skill"
	ContextTypeSession  ContextType = "session"
)

// Level is the presentation level of a Context: 0=abstract, 1=overview,
// 2=full body, 3=chunk.
type Level int

const (
	LevelAbstract Level = 0
	LevelOverview Level = 1
	LevelFull     Level = 2
	LevelChunk    Level = 3
)

// Relation is a typed edge from one Context to another.
type Relation struct {
	Type       string `json:"type" db:"type"`
	TargetURI  string `json:"target_uri" db:"target_uri"`
}

// Context is every addressable item in the store: a resource, a memory, a
// skill, or a session transcript, at one of four presentation levels.
type Context struct {
	ID          string      `json:"id" db:"id"`
	URI         string      `json:"uri" db:"uri"`
	ParentURI   string      `json:"parent_uri,omitempty" db:"parent_uri"`
	ContextType ContextType `json:"context_type" db:"context_type"`
	Level       Level       `json:"level" db:"level"`
	AccountID   string      `json:"account_id" db:"account_id"`
	// OwnerSpace is empty for shared resources under viking://resources/…
	OwnerSpace string `json:"owner_space,omitempty" db:"owner_space"`
	// ActiveCount is a monotonically increasing access counter, incremented
	// by the retriever on every returned leaf.
	ActiveCount int64     `json:"active_count" db:"active_count"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`

	Dense  []float32 `json:"dense,omitempty" db:"-"`
	Sparse map[uint32]float32 `json:"sparse,omitempty" db:"-"`

	Relations []Relation `json:"relations,omitempty" db:"-"`
}

// IsLeaf reports whether this context is an L2/L3 node (full body or chunk),
// as opposed to an L0/L1 summary node.
func (c Context) IsLeaf() bool {
	return c.Level == LevelFull || c.Level == LevelChunk
}

// IsRoot reports whether this context is an L0/L1 summary node, i.e. a
// candidate root for hierarchical drill-down.
func (c Context) IsRoot() bool {
	return c.Level == LevelAbstract || c.Level == LevelOverview
}

// IsShared reports whether this context lives under the account-shared
// resources space (empty owner_space).
func (c Context) IsShared() bool {
	return c.OwnerSpace == ""
}

// MatchedContext is the canonical, tagged-field result shape every vector
// driver MUST populate before returning a match; the retriever never
// inspects a backend-specific result shape.
type MatchedContext struct {
	Context
	Score float64 `json:"score"`
}
