package validate

import "testing"

func TestAccountID(t *testing.T) {
	valid := []string{"acme", "acme-corp", "Acme_1", "a"}
	for _, id := range valid {
		if !AccountID(id) {
			t.Errorf("AccountID(%q) = false, want true", id)
		}
	}
	invalid := []string{"", "_system", "_x", "a/b", "a b", "a.b", "acme\x00", string(make([]byte, IDMaxLen+1))}
	for _, id := range invalid {
		if AccountID(id) {
			t.Errorf("AccountID(%q) = true, want false", id)
		}
	}
}

func TestUserAndAgentID(t *testing.T) {
	if !UserID("alice") || !UserID("bob_2") {
		t.Error("expected plain user ids to validate")
	}
	if UserID("") || UserID("a/b") {
		t.Error("expected empty and path-like user ids to fail")
	}
	if !AgentID("") {
		t.Error("empty agent id means user-only identity and must validate")
	}
	if AgentID("a/b") {
		t.Error("path-like agent id must fail")
	}
}

func TestSessionID(t *testing.T) {
	if !SessionID("sess_0b1c2d3e-4f56-7890-abcd-ef0123456789") {
		t.Error("minted session ids must validate")
	}
	if SessionID("") || SessionID("UPPER") || SessionID("a b") {
		t.Error("expected invalid session ids to fail")
	}
}

func TestRole(t *testing.T) {
	for _, role := range []string{"ROOT", "ADMIN", "USER"} {
		if !Role(role) {
			t.Errorf("Role(%q) = false, want true", role)
		}
	}
	for _, role := range []string{"", "root", "admin", "superuser"} {
		if Role(role) {
			t.Errorf("Role(%q) = true, want false", role)
		}
	}
}
