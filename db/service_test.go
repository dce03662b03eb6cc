package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewInMemoryInitializesSchema(t *testing.T) {
	svc, err := New(&Config{DBPath: MemoryPath, AutoInitialize: true}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	require.NoError(t, svc.VerifySchema())
	require.NoError(t, svc.Health(context.Background()))

	version, err := svc.GetSchemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestNewFileDatabaseReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "vialactivo.db")
	cfg := DefaultConfig()
	cfg.DBPath = path

	svc, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	_, err = svc.DB.Exec(`INSERT INTO admins (email, created_at) VALUES (?, ?)`, "root@root.com", "2024-01-01T00:00:00Z")
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	reopened, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	defer reopened.Close()

	require.NoError(t, reopened.VerifySchema())
	var n int
	require.NoError(t, reopened.DB.QueryRow(`SELECT COUNT(*) FROM admins`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestVerifySchemaReportsMissingTable(t *testing.T) {
	svc, err := New(&Config{DBPath: MemoryPath, AutoInitialize: false}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	err = svc.VerifySchema()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required table missing: reportes")
}

func TestTransactionRollsBackOnError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewFromDB(mockDB, zap.NewNop())
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO admins").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectRollback()

	err = svc.Transaction(context.Background(), func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO admins (email, created_at) VALUES (?, ?)", "a@b.c", "now"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionCommits(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer mockDB.Close()

	svc := NewFromDB(mockDB, zap.NewNop())

	mock.ExpectBegin()
	mock.ExpectCommit()

	require.NoError(t, svc.Transaction(context.Background(), func(tx *sql.Tx) error { return nil }))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifySchemaRejectsVersionMismatch(t *testing.T) {
	svc, err := New(&Config{DBPath: MemoryPath, AutoInitialize: true}, zap.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	_, err = svc.DB.Exec("PRAGMA user_version = 7")
	require.NoError(t, err)

	err = svc.VerifySchema()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schema version 7")
}

func TestDSNEnablesWALForFiles(t *testing.T) {
	assert.Equal(t, ":memory:?_busy_timeout=5000&_foreign_keys=on",
		dsn(&Config{DBPath: MemoryPath}, true))
	assert.Equal(t, "/tmp/v.db?_busy_timeout=250&_foreign_keys=on&_journal_mode=WAL",
		dsn(&Config{DBPath: "/tmp/v.db", BusyTimeoutMs: 250}, false))
}
