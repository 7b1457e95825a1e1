package vikingfs

import (
	"context"
	"database/sql"
	"path"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/migrations"
)

// SQLBackend is a byte-addressed AGFS driver over a flat object table:
// one row per path, directories as NULL-data rows. It backs both the
// `postgres` and `sqlite` drivers, selected by driverName at
// construction.
type SQLBackend struct {
	db         *sqlx.DB
	driverName string
}

// NewSQLBackend opens a connection pool against dsn using driverName
// ("postgres" or "sqlite") and applies the embedded schema migrations.
func NewSQLBackend(driverName, dsn string) (*SQLBackend, error) {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "connecting to AGFS SQL backend")
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	schema, err := migrations.FS.ReadFile("001_agfs_objects.sql")
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "loading embedded AGFS migration")
	}
	schemaSQL := string(schema)
	if driverName == "postgres" {
		schemaSQL = strings.ReplaceAll(schemaSQL, "BLOB", "BYTEA")
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "creating agfs_objects table")
	}

	// Both dialects accept $N placeholders and this ON CONFLICT form
	// (modernc.org/sqlite included), so a failure here is a real error,
	// not a dialect mismatch.
	if _, err := db.Exec(
		`INSERT INTO agfs_objects (path, is_dir, data, updated_at) VALUES ($1, true, NULL, $2)
		 ON CONFLICT (path) DO NOTHING`, "/", time.Now(),
	); err != nil {
		return nil, ovterrors.Wrap(ovterrors.NotInitialized, err, "seeding AGFS root")
	}

	return &SQLBackend{db: db, driverName: driverName}, nil
}

func (s *SQLBackend) Read(ctx context.Context, p string) ([]byte, error) {
	var data []byte
	var isDir bool
	err := s.db.QueryRowContext(ctx, `SELECT is_dir, data FROM agfs_objects WHERE path = $1`, p).Scan(&isDir, &data)
	if err == sql.ErrNoRows {
		return nil, ovterrors.NotFoundf("no such file or directory: %s", p)
	}
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "reading %s", p)
	}
	if isDir {
		return nil, ovterrors.InvalidArgumentf("is a directory: %s", p)
	}
	return data, nil
}

func (s *SQLBackend) Write(ctx context.Context, p string, data []byte) error {
	if err := s.ensureParents(ctx, p); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agfs_objects (path, is_dir, data, updated_at) VALUES ($1, false, $2, $3)
		ON CONFLICT (path) DO UPDATE SET data = EXCLUDED.data, updated_at = EXCLUDED.updated_at, is_dir = false
	`, p, data, time.Now())
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "writing %s", p)
	}
	return nil
}

func (s *SQLBackend) ensureParents(ctx context.Context, p string) error {
	dir := path.Dir(p)
	for dir != "." && dir != "/" && dir != "" {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO agfs_objects (path, is_dir, data, updated_at) VALUES ($1, true, NULL, $2)
			ON CONFLICT (path) DO NOTHING
		`, dir, time.Now()); err != nil {
			return ovterrors.Wrap(ovterrors.Internal, err, "ensuring parent directory %s", dir)
		}
		dir = path.Dir(dir)
	}
	return nil
}

// likeEscaper neutralizes the LIKE metacharacters in a literal prefix.
// Space-name path segments are base64url digests whose alphabet includes
// '_', and resource paths may carry '%'/'_' outright; an unescaped prefix
// would match across path-segment boundaries and leak between spaces.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func prefixPattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}

func (s *SQLBackend) List(ctx context.Context, p string) ([]DirEntry, error) {
	prefix := strings.TrimSuffix(p, "/") + "/"
	if prefix == "//" {
		prefix = "/"
	}
	rows, err := s.db.QueryContext(ctx, `SELECT path, is_dir, updated_at FROM agfs_objects WHERE path LIKE $1 ESCAPE '\'`, prefixPattern(prefix))
	if err != nil {
		return nil, ovterrors.Wrap(ovterrors.Internal, err, "listing %s", p)
	}
	defer rows.Close()

	seen := map[string]DirEntry{}
	for rows.Next() {
		var fullPath string
		var isDir bool
		var updatedAt time.Time
		if err := rows.Scan(&fullPath, &isDir, &updatedAt); err != nil {
			return nil, ovterrors.Wrap(ovterrors.Internal, err, "scanning list row")
		}
		rel := strings.TrimPrefix(fullPath, prefix)
		if rel == "" {
			continue
		}
		child := strings.SplitN(rel, "/", 2)[0]
		childPath := prefix + child
		isChildDir := isDir || strings.Contains(rel, "/")
		seen[childPath] = DirEntry{Path: childPath, IsDir: isChildDir, ModTime: updatedAt}
	}
	out := make([]DirEntry, 0, len(seen))
	for _, e := range seen {
		out = append(out, e)
	}
	return out, nil
}

func (s *SQLBackend) Stat(ctx context.Context, p string) (DirEntry, error) {
	var isDir bool
	var data []byte
	var updatedAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT is_dir, data, updated_at FROM agfs_objects WHERE path = $1`, p).Scan(&isDir, &data, &updatedAt)
	if err == sql.ErrNoRows {
		return DirEntry{}, ovterrors.NotFoundf("no such file or directory: %s", p)
	}
	if err != nil {
		return DirEntry{}, ovterrors.Wrap(ovterrors.Internal, err, "stat failed: %s", p)
	}
	return DirEntry{Path: p, IsDir: isDir, Size: int64(len(data)), ModTime: updatedAt}, nil
}

func (s *SQLBackend) Mkdir(ctx context.Context, p string) error {
	if err := s.ensureParents(ctx, p+"/."); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agfs_objects (path, is_dir, data, updated_at) VALUES ($1, true, NULL, $2)
		ON CONFLICT (path) DO NOTHING
	`, p, time.Now())
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "mkdir %s", p)
	}
	return nil
}

func (s *SQLBackend) Remove(ctx context.Context, p string, recursive bool) error {
	if !recursive {
		children, err := s.List(ctx, p)
		if err != nil && ovterrors.CodeOf(err) != ovterrors.NotFound {
			return err
		}
		if len(children) > 0 {
			return ovterrors.InvalidArgumentf("directory %q is not empty", p)
		}
		_, err = s.db.ExecContext(ctx, `DELETE FROM agfs_objects WHERE path = $1`, p)
		if err != nil {
			return ovterrors.Wrap(ovterrors.Internal, err, "removing %s", p)
		}
		return nil
	}
	prefix := strings.TrimSuffix(p, "/") + "/"
	_, err := s.db.ExecContext(ctx, `DELETE FROM agfs_objects WHERE path = $1 OR path LIKE $2 ESCAPE '\'`, p, prefixPattern(prefix))
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "removing %s recursively", p)
	}
	return nil
}

func (s *SQLBackend) Move(ctx context.Context, oldP, newP string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "starting move transaction")
	}
	defer tx.Rollback()

	oldPrefix := strings.TrimSuffix(oldP, "/") + "/"
	rows, err := tx.QueryContext(ctx, `SELECT path FROM agfs_objects WHERE path = $1 OR path LIKE $2 ESCAPE '\'`, oldP, prefixPattern(oldPrefix))
	if err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "resolving move sources")
	}
	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return ovterrors.Wrap(ovterrors.Internal, err, "scanning move source")
		}
		paths = append(paths, p)
	}
	rows.Close()

	for _, p := range paths {
		newPath := newP + strings.TrimPrefix(p, oldP)
		if _, err := tx.ExecContext(ctx, `UPDATE agfs_objects SET path = $1 WHERE path = $2`, newPath, p); err != nil {
			return ovterrors.Wrap(ovterrors.Internal, err, "moving %s", p)
		}
	}
	if err := tx.Commit(); err != nil {
		return ovterrors.Wrap(ovterrors.Internal, err, "committing move")
	}
	return nil
}

func (s *SQLBackend) Close() error {
	return s.db.Close()
}
