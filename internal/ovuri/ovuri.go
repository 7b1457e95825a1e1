// Package ovuri implements the viking:// URI grammar and its pure,
// total mapping onto backend filesystem paths. Every function here
// is side-effect free and never touches the storage backend; VikingFS
// (internal/vikingfs) is the only caller that combines these with IO.
package ovuri

import "strings"

const (
	scheme   = "viking://"
	localRoot = "/local"
)

var structuralSpaces = map[string]bool{
	"user":    true,
	"agent":   true,
	"session": true,
}

// UriToPath converts a viking:// URI to a backend path. If accountID is
// non-empty it is inserted as the first path segment after /local; an
// empty accountID yields a ROOT-scoped path with no account prefix.
//
//	uri_to_path("viking://resources/a.txt", "acme") == "/local/acme/resources/a.txt"
//	uri_to_path("viking://", "acme")                == "/local/acme"
//	uri_to_path("viking://resources/a.txt", "")     == "/local/resources/a.txt"
func UriToPath(uri string, accountID string) string {
	rest := strings.TrimPrefix(uri, scheme)
	rest = strings.Trim(rest, "/")

	segments := []string{localRoot}
	if accountID != "" {
		segments = append(segments, accountID)
	}
	if rest != "" {
		segments = append(segments, rest)
	}
	return strings.Join(segments, "/")
}

// PathToUri reverses UriToPath. It tolerates being handed an already-URI
// value (pass-through) so callers that aren't sure of their input's shape
// don't need to special-case it. If accountID is non-empty, that segment
// is expected immediately after /local and is stripped; otherwise the
// path is assumed to already be account-free (ROOT scope).
func PathToUri(path string, accountID string) string {
	if strings.HasPrefix(path, scheme) {
		return path
	}

	rest := strings.TrimPrefix(path, localRoot)
	rest = strings.Trim(rest, "/")

	if accountID != "" {
		if rest == accountID {
			rest = ""
		} else if cut := strings.TrimPrefix(rest, accountID+"/"); cut != rest {
			rest = cut
		}
	}

	if rest == "" {
		return scheme
	}
	return scheme + rest
}

// ExtractSpaceFromUri returns the second URI segment (the space name) when
// the first segment is one of user/agent/session, and ("", false)
// otherwise; including for the structural roots (resources, empty root).
func ExtractSpaceFromUri(uri string) (string, bool) {
	rest := strings.TrimPrefix(uri, scheme)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return "", false
	}

	segments := strings.SplitN(rest, "/", 3)
	if !structuralSpaces[segments[0]] {
		return "", false
	}
	if len(segments) < 2 || segments[1] == "" {
		return "", false
	}
	return segments[1], true
}

// IsRoot reports whether uri denotes the tenant root (viking:// or viking:///).
func IsRoot(uri string) bool {
	rest := strings.TrimPrefix(uri, scheme)
	return strings.Trim(rest, "/") == ""
}

// TopSegment returns the first path segment of uri (e.g. "resources",
// "user", "agent", "session"), or "" for the root.
func TopSegment(uri string) string {
	rest := strings.TrimPrefix(uri, scheme)
	rest = strings.Trim(rest, "/")
	if rest == "" {
		return ""
	}
	return strings.SplitN(rest, "/", 2)[0]
}

// Join appends a relative path segment onto a viking:// URI, normalizing
// any doubled slashes.
func Join(uri string, parts ...string) string {
	segs := []string{strings.TrimSuffix(uri, "/")}
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	joined := strings.Join(segs, "/")
	// Join("viking://", "foo") must not collapse the scheme's double slash.
	if strings.HasPrefix(joined, "viking:/") && !strings.HasPrefix(joined, scheme) {
		joined = scheme + strings.TrimPrefix(joined, "viking:/")
	}
	return joined
}
