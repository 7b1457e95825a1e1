// Package identity implements the OpenViking identity and role model:
// user identifiers, account-agnostic space-name derivation, and the
// RequestContext threaded through every core operation.
//
// Space names are pure functions of (user_id[, agent_id]); they MUST NOT
// vary with account_id, so that the same human identity derives the same
// space inside any account it belongs to.
package identity

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Role is the three-way access level carried by a RequestContext.
type Role string

const (
	RoleRoot  Role = "ROOT"
	RoleAdmin Role = "ADMIN"
	RoleUser  Role = "USER"
)

// Valid reports whether r is one of the three recognized roles.
func (r Role) Valid() bool {
	switch r {
	case RoleRoot, RoleAdmin, RoleUser:
		return true
	}
	return false
}

// UserIdentifier is the (account_id, user_id, agent_id) triple that
// identifies the caller of an operation. It is kept a pure value type:
// no back-pointers to sessions, FS paths, or filters are stored on it;
// everything derived from it (space names, URIs, paths) is computed
// lazily at use-time, so sessions, users, and paths never hold references
// back into each other.
type UserIdentifier struct {
	AccountID string
	UserID    string
	AgentID   string
}

// UserSpaceName returns H(user_id), a stable URL-safe digest that is
// independent of AccountID and AgentID.
func (u UserIdentifier) UserSpaceName() string {
	return spaceDigest(u.UserID)
}

// AgentSpaceName returns H(user_id ∥ agent_id), independent of AccountID.
func (u UserIdentifier) AgentSpaceName() string {
	return spaceDigest(u.UserID + "\x00" + u.AgentID)
}

// spaceDigest renders a collision-resistant, URL-safe digest of s: the
// first 20 bytes of BLAKE2b-256, base64url unpadded, a 27-character
// stable identifier. It is not meant to be reversible, only stable and
// collision-resistant.
func spaceDigest(s string) string {
	sum := blake2b.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:20])
}

// MemorySpaceURI returns the agent's memory root, viking://agent/<space>/memories.
func (u UserIdentifier) MemorySpaceURI() string {
	return fmt.Sprintf("viking://agent/%s/memories", u.AgentSpaceName())
}

// WorkSpaceURI returns the agent's workspace root, viking://agent/<space>/workspaces.
func (u UserIdentifier) WorkSpaceURI() string {
	return fmt.Sprintf("viking://agent/%s/workspaces", u.AgentSpaceName())
}

// UserMemorySpaceURI returns viking://user/<space>/memories, the user-level
// (non agent-specific) memory root.
func (u UserIdentifier) UserMemorySpaceURI() string {
	return fmt.Sprintf("viking://user/%s/memories", u.UserSpaceName())
}

// RequestContext pairs a UserIdentifier with a Role and is threaded through
// every core operation in VikingFS, the Semantic Gateway, and the
// Retriever. Handlers build exactly one per inbound request and never let
// downstream code read identity state by any other path.
type RequestContext struct {
	User UserIdentifier
	Role Role
}

// IsRoot, IsAdmin, IsUser are convenience predicates used throughout the
// enforcement logic in VikingFS and the Semantic Gateway.
func (rc RequestContext) IsRoot() bool  { return rc.Role == RoleRoot }
func (rc RequestContext) IsAdmin() bool { return rc.Role == RoleAdmin }
func (rc RequestContext) IsUser() bool  { return rc.Role == RoleUser }

// AccountID is a shorthand for rc.User.AccountID.
func (rc RequestContext) AccountID() string { return rc.User.AccountID }
