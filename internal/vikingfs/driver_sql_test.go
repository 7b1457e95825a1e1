package vikingfs

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openviking/openviking/internal/ovterrors"
)

func newMockBackend(t *testing.T) (*SQLBackend, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.WithQueryMatcher(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &SQLBackend{db: sqlx.NewDb(db, "postgres"), driverName: "postgres"}, mock
}

func TestSQLReadTranslatesNoRows(t *testing.T) {
	backend, mock := newMockBackend(t)
	mock.ExpectQuery(`SELECT is_dir, data FROM agfs_objects`).
		WithArgs("/local/acme/missing.txt").
		WillReturnError(sql.ErrNoRows)

	_, err := backend.Read(context.Background(), "/local/acme/missing.txt")
	require.Error(t, err)
	assert.Equal(t, ovterrors.NotFound, ovterrors.CodeOf(err))
	assert.Contains(t, err.Error(), "no such file or directory")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLReadRejectsDirectory(t *testing.T) {
	backend, mock := newMockBackend(t)
	rows := sqlmock.NewRows([]string{"is_dir", "data"}).AddRow(true, nil)
	mock.ExpectQuery(`SELECT is_dir, data FROM agfs_objects`).
		WithArgs("/local/acme/resources").
		WillReturnRows(rows)

	_, err := backend.Read(context.Background(), "/local/acme/resources")
	require.Error(t, err)
	assert.Equal(t, ovterrors.InvalidArgument, ovterrors.CodeOf(err))
	assert.Contains(t, err.Error(), "is a directory")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLStatReturnsEntry(t *testing.T) {
	backend, mock := newMockBackend(t)
	modTime := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"is_dir", "data", "updated_at"}).
		AddRow(false, []byte("hello"), modTime)
	mock.ExpectQuery(`SELECT is_dir, data, updated_at FROM agfs_objects`).
		WithArgs("/local/acme/a.txt").
		WillReturnRows(rows)

	entry, err := backend.Stat(context.Background(), "/local/acme/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/local/acme/a.txt", entry.Path)
	assert.False(t, entry.IsDir)
	assert.Equal(t, int64(5), entry.Size)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLListEscapesLikeMetacharacters(t *testing.T) {
	backend, mock := newMockBackend(t)
	rows := sqlmock.NewRows([]string{"path", "is_dir", "updated_at"})
	mock.ExpectQuery(`SELECT path, is_dir, updated_at FROM agfs_objects WHERE path LIKE`).
		WithArgs(`/local/acme/user/ab\_cd/%`).
		WillReturnRows(rows)

	// An unescaped '_' would also match /local/acme/user/abXcd/... and
	// leak entries across space boundaries.
	_, err := backend.List(context.Background(), "/local/acme/user/ab_cd")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLRemoveNonRecursiveRefusesNonEmpty(t *testing.T) {
	backend, mock := newMockBackend(t)
	rows := sqlmock.NewRows([]string{"path", "is_dir", "updated_at"}).
		AddRow("/local/acme/dir/child.txt", false, time.Now())
	mock.ExpectQuery(`SELECT path, is_dir, updated_at FROM agfs_objects WHERE path LIKE`).
		WillReturnRows(rows)

	err := backend.Remove(context.Background(), "/local/acme/dir", false)
	require.Error(t, err)
	assert.Equal(t, ovterrors.InvalidArgument, ovterrors.CodeOf(err))
	assert.Contains(t, err.Error(), "not empty")
	require.NoError(t, mock.ExpectationsWereMet())
}
