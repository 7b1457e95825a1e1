package identity

import "testing"

func TestUserSpaceNameIndependentOfAccountAndAgent(t *testing.T) {
	a := UserIdentifier{AccountID: "acme", UserID: "alice", AgentID: "agent-1"}
	b := UserIdentifier{AccountID: "other_co", UserID: "alice", AgentID: "agent-2"}

	if a.UserSpaceName() != b.UserSpaceName() {
		t.Fatalf("user space name must not vary with account_id or agent_id: %q != %q", a.UserSpaceName(), b.UserSpaceName())
	}
}

func TestAgentSpaceNameIndependentOfAccount(t *testing.T) {
	a := UserIdentifier{AccountID: "acme", UserID: "alice", AgentID: "agent-1"}
	b := UserIdentifier{AccountID: "other_co", UserID: "alice", AgentID: "agent-1"}

	if a.AgentSpaceName() != b.AgentSpaceName() {
		t.Fatalf("agent space name must not vary with account_id: %q != %q", a.AgentSpaceName(), b.AgentSpaceName())
	}
}

func TestDifferentUserIDsYieldDifferentSpaceNames(t *testing.T) {
	a := UserIdentifier{UserID: "alice"}
	b := UserIdentifier{UserID: "bob"}

	if a.UserSpaceName() == b.UserSpaceName() {
		t.Fatalf("distinct user_ids collided: %q", a.UserSpaceName())
	}
}

func TestAgentSpaceNameVariesWithAgentID(t *testing.T) {
	a := UserIdentifier{UserID: "alice", AgentID: "agent-1"}
	b := UserIdentifier{UserID: "alice", AgentID: "agent-2"}

	if a.AgentSpaceName() == b.AgentSpaceName() {
		t.Fatalf("distinct agent_ids collided: %q", a.AgentSpaceName())
	}
}

func TestConvenienceURIConstructors(t *testing.T) {
	u := UserIdentifier{AccountID: "acme", UserID: "alice", AgentID: "agent-1"}
	space := u.AgentSpaceName()

	if got, want := u.MemorySpaceURI(), "viking://agent/"+space+"/memories"; got != want {
		t.Fatalf("MemorySpaceURI() = %q, want %q", got, want)
	}
	if got, want := u.WorkSpaceURI(), "viking://agent/"+space+"/workspaces"; got != want {
		t.Fatalf("WorkSpaceURI() = %q, want %q", got, want)
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleRoot, RoleAdmin, RoleUser} {
		if !r.Valid() {
			t.Errorf("role %q should be valid", r)
		}
	}
	if Role("SUPERUSER").Valid() {
		t.Error("unknown role should not be valid")
	}
}

func TestRequestContextPredicates(t *testing.T) {
	rc := RequestContext{User: UserIdentifier{AccountID: "acme"}, Role: RoleAdmin}
	if !rc.IsAdmin() || rc.IsRoot() || rc.IsUser() {
		t.Fatalf("predicates disagree with Role=%q", rc.Role)
	}
	if rc.AccountID() != "acme" {
		t.Fatalf("AccountID() = %q, want acme", rc.AccountID())
	}
}
