// Package vikingfs implements VikingFS: URI-scoped filesystem
// operations over a byte-addressed backend (AGFS; "account-gated
// filesystem"), with mandatory tenant scope enforcement on every call.
package vikingfs

import (
	"context"
	"time"
)

// DirEntry is one entry returned by a Backend's List/Stat call.
type DirEntry struct {
	Path    string
	IsDir   bool
	Size    int64
	ModTime time.Time
}

// Backend is the byte-addressed storage primitive VikingFS is built on.
// Paths passed to a Backend are always already-resolved /local/... paths
// (see internal/ovuri); a Backend never sees a viking:// URI or a
// RequestContext. Backend implementations normalize their own
// driver-specific errors into the internal/ovterrors taxonomy before
// returning.
type Backend interface {
	Read(ctx context.Context, path string) ([]byte, error)
	Write(ctx context.Context, path string, data []byte) error
	List(ctx context.Context, path string) ([]DirEntry, error)
	Stat(ctx context.Context, path string) (DirEntry, error)
	Mkdir(ctx context.Context, path string) error
	// Remove deletes path. If recursive is false and path is a non-empty
	// directory, Remove returns ovterrors.InvalidArgument.
	Remove(ctx context.Context, path string, recursive bool) error
	Move(ctx context.Context, oldPath, newPath string) error
	Close() error
}

// CreateBackend in internal/vikingfs/registry.go is the static,
// startup-populated capability table mapping a backend name to its
// constructor.
