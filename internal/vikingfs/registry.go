package vikingfs

import (
	"strings"

	"github.com/openviking/openviking/internal/ovterrors"
)

// BackendConfig selects and configures an AGFS backend. Backend is one of
// "local", "postgres", "sqlite"; DSN/Root are interpreted accordingly.
type BackendConfig struct {
	Backend string
	Root    string // local
	DSN     string // postgres/sqlite
}

// CreateBackend is the static, startup-populated capability table
// mapping config.Backend to a constructor. Unknown backend fails fast.
func CreateBackend(cfg BackendConfig) (Backend, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		return NewLocalBackend(cfg.Root)
	case "postgres":
		return NewSQLBackend("postgres", cfg.DSN)
	case "sqlite":
		return NewSQLBackend("sqlite", cfg.DSN)
	default:
		return nil, ovterrors.InvalidArgumentf("unknown AGFS backend %q", cfg.Backend)
	}
}

// ParseAGFSURL turns an OPENVIKING_AGFS_URL value into a BackendConfig.
// An empty URL falls back to the local embedded FS.
func ParseAGFSURL(url, localRoot string) BackendConfig {
	if url == "" {
		return BackendConfig{Backend: "local", Root: localRoot}
	}
	if scheme, rest, ok := strings.Cut(url, "://"); ok {
		switch scheme {
		case "postgres", "postgresql":
			return BackendConfig{Backend: "postgres", DSN: url}
		case "sqlite":
			return BackendConfig{Backend: "sqlite", DSN: rest}
		default:
			return BackendConfig{Backend: scheme, DSN: rest}
		}
	}
	return BackendConfig{Backend: "local", Root: url}
}
