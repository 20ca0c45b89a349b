package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLite_CreatesDatabaseFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Migrate(context.Background()))
	assert.FileExists(t, dbPath)
}

func TestSQLite_CloseAndReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate(ctx))

	run, err := s.CreateRun(ctx, catalogRun("job-impact-engine-persist"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "job-impact-engine-persist", got.ID)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Migrate(context.Background()))
}

type fakeResult struct {
	rows int64
	err  error
}

func (f fakeResult) LastInsertId() (int64, error) { return 0, nil }
func (f fakeResult) RowsAffected() (int64, error) { return f.rows, f.err }

func TestCheckRowsAffected_ZeroRows(t *testing.T) {
	err := checkRowsAffected(fakeResult{rows: 0}, "run", "missing-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "run not found: missing-id")
}

func TestCheckRowsAffected_Error(t *testing.T) {
	err := checkRowsAffected(fakeResult{err: eris.New("driver broke")}, "run", "any")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rows affected")
}

func TestCheckRowsAffected_Success(t *testing.T) {
	assert.NoError(t, checkRowsAffected(fakeResult{rows: 1}, "run", "any"))
}
