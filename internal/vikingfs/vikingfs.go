package vikingfs

import (
	"context"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/openviking/openviking/internal/identity"
	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/ovuri"
)

// structuralURIs are the directory URIs every role may stat/list
// regardless of ownership; they contain no tenant content of their own,
// only the structural branching points.
var structuralURIs = map[string]bool{
	"viking://":          true,
	"viking://user":      true,
	"viking://agent":     true,
	"viking://resources": true,
}

// VikingFS is the URI-scoped filesystem facade over a Backend. Every
// exported method takes a RequestContext and enforces scope in a fixed
// order:
//
//  1. URI -> path injects account_id unless caller is ROOT.
//  2. Space extraction determines ownership.
//  3. For USER: permitted iff the URI is a structural directory, or is
//     under resources/, or the extracted space matches the caller's own
//     user/agent space name. Otherwise PermissionDenied.
//  4. ADMIN and ROOT bypass step 3 but ADMIN is still account-scoped
//     through step 1.
type VikingFS struct {
	backend Backend
}

// New wraps backend in a VikingFS facade.
func New(backend Backend) *VikingFS {
	return &VikingFS{backend: backend}
}

// accountPrefix returns the account_id to inject into the backend path:
// empty for ROOT (so ROOT operations may omit the account prefix
// entirely), rc.AccountID() otherwise.
func accountPrefix(rc identity.RequestContext) string {
	if rc.IsRoot() {
		return ""
	}
	return rc.AccountID()
}

// checkScope implements step 3/4 of the enforcement order. It must be
// called with the original viking:// URI (before path mapping) so the
// space can be extracted.
func checkScope(rc identity.RequestContext, uri string) error {
	if rc.IsRoot() || rc.IsAdmin() {
		return nil
	}
	if structuralURIs[strings.TrimSuffix(uri, "/")] {
		return nil
	}
	if ovuri.TopSegment(uri) == "resources" {
		return nil
	}
	space, ok := ovuri.ExtractSpaceFromUri(uri)
	if !ok {
		return ovterrors.PermissionDeniedf("uri %q is not visible to role USER", uri)
	}
	if space == rc.User.UserSpaceName() || space == rc.User.AgentSpaceName() {
		return nil
	}
	return ovterrors.PermissionDeniedf("uri %q is outside the caller's own space", uri)
}

// resolve maps a viking:// URI to a backend path after enforcing scope.
func resolve(rc identity.RequestContext, uri string) (string, error) {
	if err := checkScope(rc, uri); err != nil {
		return "", err
	}
	return ovuri.UriToPath(uri, accountPrefix(rc)), nil
}

// Read returns the bytes stored at uri.
func (v *VikingFS) Read(ctx context.Context, rc identity.RequestContext, uri string) ([]byte, error) {
	p, err := resolve(rc, uri)
	if err != nil {
		return nil, err
	}
	return v.backend.Read(ctx, p)
}

// Write stores data at uri, creating parent directories implicitly.
func (v *VikingFS) Write(ctx context.Context, rc identity.RequestContext, uri string, data []byte) error {
	p, err := resolve(rc, uri)
	if err != nil {
		return err
	}
	return v.backend.Write(ctx, p, data)
}

// Ls lists the immediate children of uri, translating backend paths back
// to viking:// URIs before returning.
func (v *VikingFS) Ls(ctx context.Context, rc identity.RequestContext, uri string) ([]string, error) {
	p, err := resolve(rc, uri)
	if err != nil {
		return nil, err
	}
	entries, err := v.backend.List(ctx, p)
	if err != nil {
		return nil, err
	}
	account := accountPrefix(rc)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, ovuri.PathToUri(e.Path, account))
	}
	return out, nil
}

// Stat returns metadata for uri.
func (v *VikingFS) Stat(ctx context.Context, rc identity.RequestContext, uri string) (DirEntry, error) {
	p, err := resolve(rc, uri)
	if err != nil {
		return DirEntry{}, err
	}
	return v.backend.Stat(ctx, p)
}

// Mkdir creates the directory at uri.
func (v *VikingFS) Mkdir(ctx context.Context, rc identity.RequestContext, uri string) error {
	p, err := resolve(rc, uri)
	if err != nil {
		return err
	}
	return v.backend.Mkdir(ctx, p)
}

// Rm removes uri. rm(recursive=true) on the tenant root (viking://) is
// forbidden for any non-ROOT caller, regardless of the usual scope rules,
// since it would destroy the whole account.
func (v *VikingFS) Rm(ctx context.Context, rc identity.RequestContext, uri string, recursive bool) error {
	if recursive && ovuri.IsRoot(uri) && !rc.IsRoot() {
		return ovterrors.PermissionDeniedf("recursive rm of the account root requires ROOT")
	}
	p, err := resolve(rc, uri)
	if err != nil {
		return err
	}
	return v.backend.Remove(ctx, p, recursive)
}

// Mv renames/moves srcURI to dstURI. Both endpoints are scope-checked
// independently.
func (v *VikingFS) Mv(ctx context.Context, rc identity.RequestContext, srcURI, dstURI string) error {
	src, err := resolve(rc, srcURI)
	if err != nil {
		return err
	}
	dst, err := resolve(rc, dstURI)
	if err != nil {
		return err
	}
	return v.backend.Move(ctx, src, dst)
}

// GrepMatch is one line match produced by Grep.
type GrepMatch struct {
	URI        string `json:"uri"`
	LineNumber int    `json:"line_number"`
	Line       string `json:"line"`
}

// Grep recursively searches text files under uri for pattern, returning
// match+line triples.
func (v *VikingFS) Grep(ctx context.Context, rc identity.RequestContext, uri string, pattern string) ([]GrepMatch, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, ovterrors.InvalidArgumentf("invalid grep pattern: %v", err)
	}

	uris, err := v.walk(ctx, rc, uri)
	if err != nil {
		return nil, err
	}

	var matches []GrepMatch
	for _, fileURI := range uris {
		data, err := v.Read(ctx, rc, fileURI)
		if err != nil {
			continue
		}
		for i, line := range strings.Split(string(data), "\n") {
			if re.MatchString(line) {
				matches = append(matches, GrepMatch{URI: fileURI, LineNumber: i + 1, Line: line})
			}
		}
	}
	return matches, nil
}

// Glob returns the URIs under uri whose base-relative path matches the
// glob pattern, as paths relative to uri.
func (v *VikingFS) Glob(ctx context.Context, rc identity.RequestContext, uri string, pattern string) ([]string, error) {
	uris, err := v.walk(ctx, rc, uri)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, fileURI := range uris {
		rel := strings.TrimPrefix(strings.TrimPrefix(fileURI, uri), "/")
		if ok, _ := path.Match(pattern, rel); ok {
			out = append(out, rel)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Tree returns every URI under uri, depth-first, as a flat sorted list.
func (v *VikingFS) Tree(ctx context.Context, rc identity.RequestContext, uri string) ([]string, error) {
	uris, err := v.walk(ctx, rc, uri)
	if err != nil {
		return nil, err
	}
	sort.Strings(uris)
	return uris, nil
}

// walk recursively lists every non-directory descendant of uri. A
// missing subtree walks as empty: grep/glob over a directory nobody has
// written yet is a no-match, not an error.
func (v *VikingFS) walk(ctx context.Context, rc identity.RequestContext, uri string) ([]string, error) {
	p, err := resolve(rc, uri)
	if err != nil {
		return nil, err
	}
	entries, err := v.backend.List(ctx, p)
	if err != nil {
		if ovterrors.Is(err, ovterrors.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	account := accountPrefix(rc)
	var out []string
	for _, e := range entries {
		childURI := ovuri.PathToUri(e.Path, account)
		if e.IsDir {
			children, err := v.walk(ctx, rc, childURI)
			if err != nil {
				return nil, err
			}
			out = append(out, children...)
		} else {
			out = append(out, childURI)
		}
	}
	return out, nil
}

// levelSuffix is the sibling-file naming convention used to store a
// context's abstract/overview companions alongside its L2 (full) body:
// "<path>.abstract.md" for L0, "<path>.overview.md" for L1.
func levelSuffix(uri string, suffix string) string {
	return fmt.Sprintf("%s.%s.md", uri, suffix)
}

// Abstract returns the L0 abstract companion of the L2 context at uri.
func (v *VikingFS) Abstract(ctx context.Context, rc identity.RequestContext, uri string) ([]byte, error) {
	return v.Read(ctx, rc, levelSuffix(uri, "abstract"))
}

// Overview returns the L1 overview companion of the L2 context at uri.
func (v *VikingFS) Overview(ctx context.Context, rc identity.RequestContext, uri string) ([]byte, error) {
	return v.Read(ctx, rc, levelSuffix(uri, "overview"))
}

// WriteAbstract and WriteOverview store the L0/L1 companions of uri.
func (v *VikingFS) WriteAbstract(ctx context.Context, rc identity.RequestContext, uri string, data []byte) error {
	return v.Write(ctx, rc, levelSuffix(uri, "abstract"), data)
}

func (v *VikingFS) WriteOverview(ctx context.Context, rc identity.RequestContext, uri string, data []byte) error {
	return v.Write(ctx, rc, levelSuffix(uri, "overview"), data)
}

// Close releases the underlying backend.
func (v *VikingFS) Close() error {
	return v.backend.Close()
}
