package filter

import (
	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/models"
)

// BuildTenantFilter implements the central tenant filter composition
// rule:
//
//	ROOT  -> none (nil)
//	ADMIN -> account_id = ctx.account_id
//	USER  -> account_id = ctx.account_id AND owner_space ∈ {user_space, agent_space, ""}
//
// When contextType is "resource", USER's owner_space set includes the
// empty string to reach shared resources; for any other context type the
// empty string is omitted, so a USER can never see another owner's private
// memories/skills by asking for the "resource" type.
func BuildTenantFilter(rc identity.RequestContext, contextType models.ContextType) Expr {
	switch rc.Role {
	case identity.RoleRoot:
		return nil
	case identity.RoleAdmin:
		return Eq{Field: "account_id", Value: rc.AccountID()}
	case identity.RoleUser:
		spaces := []interface{}{rc.User.UserSpaceName(), rc.User.AgentSpaceName()}
		if contextType == models.ContextTypeResource {
			spaces = append(spaces, "")
		}
		return And{Conds: []Expr{
			Eq{Field: "account_id", Value: rc.AccountID()},
			In{Field: "owner_space", Values: spaces},
		}}
	default:
		// Unknown role: fail closed to the most restrictive meaningful
		// filter rather than leaking every tenant's data.
		return Eq{Field: "account_id", Value: "\x00unknown-role\x00"}
	}
}

// Merge combines a caller-provided filter with a tenant filter, preserving
// merge order: caller-provided filter first, then tenant filter.
// A nil on either side is dropped; And{} itself is
// simplified per the collapsing contract.
func Merge(callerFilter, tenantFilter Expr) Expr {
	var conds []Expr
	if callerFilter != nil {
		conds = append(conds, callerFilter)
	}
	if tenantFilter != nil {
		conds = append(conds, tenantFilter)
	}
	return Simplify(And{Conds: conds})
}
