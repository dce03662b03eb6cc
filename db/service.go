package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schemaFS embed.FS

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	// SchemaVersion is the user_version stamped by schema.sql.
	SchemaVersion = 1
)

// RequiredTables lists the tables VerifySchema expects.
var RequiredTables = []string{
	"reportes",
	"reportes_geo",
	"admins",
}

// Service owns the SQLite connection backing the report and admin tables.
type Service struct {
	DB     *sql.DB
	DBPath string
	logger *zap.Logger
}

type Config struct {
	DBPath         string
	MaxOpenConns   int
	MaxIdleConns   int
	BusyTimeoutMs  int
	AutoInitialize bool // create the schema when the file is new
}

func DefaultConfig() *Config {
	return &Config{
		DBPath:         "./db/vialactivo.db",
		MaxOpenConns:   1, // single writer
		MaxIdleConns:   1,
		BusyTimeoutMs:  5000,
		AutoInitialize: true,
	}
}

// NewFromDB wraps an already opened connection, used by tests.
func NewFromDB(db *sql.DB, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{DB: db, DBPath: MemoryPath, logger: logger}
}

// New opens the database at config.DBPath. File databases run in WAL mode;
// a new file gets the embedded schema when AutoInitialize is set.
func New(config *Config, logger *zap.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	inMemory := config.DBPath == MemoryPath
	fresh := inMemory || !fileExists(config.DBPath)

	if !inMemory {
		if err := os.MkdirAll(filepath.Dir(config.DBPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn(config, inMemory))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// An in-memory database lives as long as its single connection.
	maxOpen, maxIdle := config.MaxOpenConns, config.MaxIdleConns
	if inMemory || maxOpen <= 0 {
		maxOpen, maxIdle = 1, 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	service := &Service{DB: db, DBPath: config.DBPath, logger: logger}

	if fresh && config.AutoInitialize {
		if err := service.InitializeSchema(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize schema: %w", err)
		}
		logger.Info("Database schema initialized", zap.String("path", config.DBPath))
	}

	logger.Info("Database service initialized",
		zap.String("path", config.DBPath),
		zap.Bool("in_memory", inMemory))
	return service, nil
}

func dsn(config *Config, inMemory bool) string {
	busy := config.BusyTimeoutMs
	if busy <= 0 {
		busy = 5000
	}
	params := fmt.Sprintf("_busy_timeout=%d&_foreign_keys=on", busy)
	if !inMemory {
		params += "&_journal_mode=WAL"
	}
	return config.DBPath + "?" + params
}

// InitializeSchema runs the embedded schema.sql. Every statement is
// idempotent, so it is safe on an existing database.
func (s *Service) InitializeSchema() error {
	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("failed to read schema file: %w", err)
	}

	if _, err := s.DB.Exec(string(schemaSQL)); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// VerifySchema checks that every required table exists and the stamped
// version matches SchemaVersion.
func (s *Service) VerifySchema() error {
	for _, table := range RequiredTables {
		var exists int
		query := `SELECT COUNT(*) FROM sqlite_master WHERE type IN ('table', 'view') AND name = ?`
		if err := s.DB.QueryRow(query, table).Scan(&exists); err != nil {
			return fmt.Errorf("failed to check table %s: %w", table, err)
		}
		if exists == 0 {
			return fmt.Errorf("required table missing: %s", table)
		}
	}

	version, err := s.GetSchemaVersion()
	if err != nil {
		return err
	}
	if version != SchemaVersion {
		return fmt.Errorf("schema version %d, want %d", version, SchemaVersion)
	}

	s.logger.Debug("Schema verified", zap.Int("version", version))
	return nil
}

func (s *Service) Close() error {
	if s.DB == nil {
		return nil
	}
	s.logger.Info("Closing database connection", zap.String("path", s.DBPath))
	return s.DB.Close()
}

// Transaction runs fn inside a transaction, rolling back on error or panic.
func (s *Service) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("Rollback failed", zap.Error(rbErr))
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Service) Health(ctx context.Context) error {
	if s.DB == nil {
		return fmt.Errorf("database connection is nil")
	}
	return s.DB.PingContext(ctx)
}

// GetSchemaVersion reads PRAGMA user_version.
func (s *Service) GetSchemaVersion() (int, error) {
	var version int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}
