package vikingfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/openviking/openviking/internal/ovterrors"
)

// LocalBackend is the embedded, no-external-dependency AGFS driver: every
// path maps directly onto a real directory tree rooted at Root. This is
// the fallback backend when OPENVIKING_AGFS_URL is unset.
type LocalBackend struct {
	Root string
}

// NewLocalBackend creates a LocalBackend rooted at root, creating root if
// it does not yet exist.
func NewLocalBackend(root string) (*LocalBackend, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "creating AGFS root %q", root)
	}
	return &LocalBackend{Root: root}, nil
}

// realPath joins the backend-relative path onto Root. Cleaning via
// filepath.Join(Root, cleanedAbsolutePath) always keeps the result under
// Root: Go's path/filepath normalizes ".." segments against the absolute
// path before the join, so a path can never climb above "/" and therefore
// never above Root either.
func (l *LocalBackend) realPath(p string) (string, error) {
	cleaned := filepath.Clean("/" + p)
	return filepath.Join(l.Root, cleaned), nil
}

func (l *LocalBackend) Read(_ context.Context, p string) ([]byte, error) {
	real, err := l.realPath(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(real)
	if err != nil {
		return nil, translateOSError(err, p)
	}
	return data, nil
}

func (l *LocalBackend) Write(_ context.Context, p string, data []byte) error {
	real, err := l.realPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "creating parent directories for %q", p)
	}
	if err := os.WriteFile(real, data, 0o644); err != nil {
		return translateOSError(err, p)
	}
	return nil
}

func (l *LocalBackend) List(_ context.Context, p string) ([]DirEntry, error) {
	real, err := l.realPath(p)
	if err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(real)
	if err != nil {
		return nil, translateOSError(err, p)
	}
	var out []DirEntry
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, DirEntry{
			Path:    joinBackendPath(p, de.Name()),
			IsDir:   de.IsDir(),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
	}
	return out, nil
}

func (l *LocalBackend) Stat(_ context.Context, p string) (DirEntry, error) {
	real, err := l.realPath(p)
	if err != nil {
		return DirEntry{}, err
	}
	info, err := os.Stat(real)
	if err != nil {
		return DirEntry{}, translateOSError(err, p)
	}
	return DirEntry{Path: p, IsDir: info.IsDir(), Size: info.Size(), ModTime: info.ModTime()}, nil
}

func (l *LocalBackend) Mkdir(_ context.Context, p string) error {
	real, err := l.realPath(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(real, 0o755); err != nil {
		return translateOSError(err, p)
	}
	return nil
}

func (l *LocalBackend) Remove(_ context.Context, p string, recursive bool) error {
	real, err := l.realPath(p)
	if err != nil {
		return err
	}
	if recursive {
		if err := os.RemoveAll(real); err != nil {
			return translateOSError(err, p)
		}
		return nil
	}
	if err := os.Remove(real); err != nil {
		if pe, ok := err.(*fs.PathError); ok && isDirNotEmpty(pe) {
			return ovterrors.InvalidArgumentf("directory %q is not empty", p)
		}
		return translateOSError(err, p)
	}
	return nil
}

func (l *LocalBackend) Move(_ context.Context, oldP, newP string) error {
	oldReal, err := l.realPath(oldP)
	if err != nil {
		return err
	}
	newReal, err := l.realPath(newP)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newReal), 0o755); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "creating parent directories for %q", newP)
	}
	if err := os.Rename(oldReal, newReal); err != nil {
		return translateOSError(err, oldP)
	}
	return nil
}

func (l *LocalBackend) Close() error { return nil }

func joinBackendPath(dir, name string) string {
	if dir == "/" || dir == "" {
		return "/" + name
	}
	return dir + "/" + name
}

// translateOSError normalizes os/fs errors into the ovterrors taxonomy.
// It also feeds
// the error-equivalence table used by the recorder's player
// (internal/recorder/equivalence.go) by producing messages in the same
// canonical phrasing family.
func translateOSError(err error, p string) error {
	switch {
	case os.IsNotExist(err):
		return ovterrors.Wrap(ovterrors.NotFound, err, "no such file or directory: %s", p)
	case os.IsPermission(err):
		return ovterrors.Wrap(ovterrors.PermissionDenied, err, "permission denied: %s", p)
	case os.IsExist(err):
		return ovterrors.Wrap(ovterrors.AlreadyExists, err, "already exists: %s", p)
	default:
		return ovterrors.Wrap(ovterrors.Internal, err, "stat failed: %s", p)
	}
}

func isDirNotEmpty(pe *fs.PathError) bool {
	return pe.Err != nil && (pe.Err.Error() == "directory not empty" || os.IsExist(pe.Err))
}
