// Package duckdb stores ingestion runs (records, scopes, signals, samples,
// raw lines and their cross references) in DuckDB.
package duckdb

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/duckdb/migrate"
)

// DefaultQueryTimeout bounds every store query.
const DefaultQueryTimeout = 30 * time.Second

// StoreConfig holds tunable parameters for the store.
type StoreConfig struct {
	QueryTimeout time.Duration
	Logger       *zap.Logger
}

// Store manages the DuckDB connection. It is safe for concurrent use.
type Store struct {
	db           *sql.DB
	mu           sync.RWMutex
	dbPath       string
	logger       *zap.Logger
	QueryTimeout time.Duration
}

// NewStore opens or creates a DuckDB database and applies pending
// migrations. An empty dbPath selects an in-memory database.
func NewStore(dbPath string, conf ...StoreConfig) (*Store, error) {
	s := &Store{
		dbPath:       dbPath,
		logger:       zap.NewNop(),
		QueryTimeout: DefaultQueryTimeout,
	}
	if len(conf) > 0 {
		if conf[0].QueryTimeout > 0 {
			s.QueryTimeout = conf[0].QueryTimeout
		}
		if conf[0].Logger != nil {
			s.logger = conf[0].Logger
		}
	}

	if dbPath != "" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, err
	}
	if err := s.migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.db = db
	return s, nil
}

func (s *Store) migrate(db *sql.DB) error {
	runner, err := migrate.NewRunner(db, s.logger)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.QueryTimeout)
	defer cancel()
	applied, err := runner.Run(ctx)
	if err != nil {
		return err
	}
	if len(applied) > 0 {
		s.logger.Info("store schema migrated",
			zap.String("path", s.dbPath),
			zap.Int("version", applied[len(applied)-1].Version),
			zap.Int("steps", len(applied)))
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection for direct queries.
func (s *Store) DB() *sql.DB {
	return s.db
}
