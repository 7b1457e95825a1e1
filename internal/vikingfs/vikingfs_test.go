package vikingfs

import (
	"context"
	"testing"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
)

func newTestFS(t *testing.T) *VikingFS {
	t.Helper()
	backend, err := NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	return New(backend)
}

func rootCtx() identity.RequestContext {
	return identity.RequestContext{Role: identity.RoleRoot}
}

func userCtx(account, user, agent string) identity.RequestContext {
	return identity.RequestContext{
		User: identity.UserIdentifier{AccountID: account, UserID: user, AgentID: agent},
		Role: identity.RoleUser,
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	admin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "acme"}, Role: identity.RoleAdmin}

	if err := fs.Write(ctx, admin, "viking://resources/foo.txt", []byte("A")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(ctx, admin, "viking://resources/foo.txt")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "A" {
		t.Errorf("Read = %q, want %q", got, "A")
	}
}

func TestCrossTenantIsolationReturnsNotFound(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	acmeAdmin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "acme"}, Role: identity.RoleAdmin}
	otherAdmin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "other_co"}, Role: identity.RoleAdmin}

	if err := fs.Write(ctx, acmeAdmin, "viking://resources/foo.txt", []byte("A")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := fs.Read(ctx, otherAdmin, "viking://resources/foo.txt")
	if ovterrors.CodeOf(err) != ovterrors.NotFound {
		t.Fatalf("cross-tenant read should be NotFound (invisible, not forbidden), got %v", err)
	}
}

func TestUserCannotReadAnotherUsersSpace(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	alice := userCtx("acme", "alice", "agent-1")
	bob := userCtx("acme", "bob", "agent-2")

	aliceMemURI := "viking://user/" + alice.User.UserSpaceName() + "/memories/note.md"
	if err := fs.Write(ctx, alice, aliceMemURI, []byte("secret")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_, err := fs.Read(ctx, bob, aliceMemURI)
	if ovterrors.CodeOf(err) != ovterrors.PermissionDenied {
		t.Fatalf("expected PermissionDenied, got %v", err)
	}
}

func TestUserCanReadOwnSpace(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	alice := userCtx("acme", "alice", "agent-1")

	uri := "viking://user/" + alice.User.UserSpaceName() + "/memories/note.md"
	if err := fs.Write(ctx, alice, uri, []byte("mine")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(ctx, alice, uri)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != "mine" {
		t.Errorf("Read = %q, want mine", got)
	}
}

func TestUserCanReadSharedResources(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	admin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "acme"}, Role: identity.RoleAdmin}
	alice := userCtx("acme", "alice", "agent-1")

	if err := fs.Write(ctx, admin, "viking://resources/shared.txt", []byte("shared")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := fs.Read(ctx, alice, "viking://resources/shared.txt")
	if err != nil {
		t.Fatalf("USER should be able to read shared resources: %v", err)
	}
	if string(got) != "shared" {
		t.Errorf("Read = %q, want shared", got)
	}
}

func TestNonRootRecursiveRmOfRootForbidden(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	admin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "acme"}, Role: identity.RoleAdmin}

	err := fs.Rm(ctx, admin, "viking://", true)
	if ovterrors.CodeOf(err) != ovterrors.PermissionDenied {
		t.Fatalf("expected PermissionDenied for non-ROOT recursive rm of root, got %v", err)
	}
}

func TestRootRecursiveRmOfRootAllowed(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	root := rootCtx()

	if err := fs.Write(ctx, root, "viking://resources/a.txt", []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := fs.Rm(ctx, root, "viking://", true); err != nil {
		t.Fatalf("ROOT recursive rm of root should succeed: %v", err)
	}
}

func TestLsReturnsURIs(t *testing.T) {
	fs := newTestFS(t)
	ctx := context.Background()
	admin := identity.RequestContext{User: identity.UserIdentifier{AccountID: "acme"}, Role: identity.RoleAdmin}

	if err := fs.Write(ctx, admin, "viking://resources/a.txt", []byte("a")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	entries, err := fs.Ls(ctx, admin, "viking://resources")
	if err != nil {
		t.Fatalf("Ls: %v", err)
	}
	if len(entries) != 1 || entries[0] != "viking://resources/a.txt" {
		t.Fatalf("Ls = %v, want [viking://resources/a.txt]", entries)
	}
}
