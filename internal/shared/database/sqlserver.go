package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver

	"github.com/dibbs-platform/ecr-viewer/internal/shared/config"
)

// SQLServerDB wraps a database/sql handle for the SQL Server metadata backend.
type SQLServerDB struct {
	DB *sql.DB
}

// NewSQLServer opens a connection pool against SQL Server
func NewSQLServer(ctx context.Context, cfg config.SQLServerConfig) (*SQLServerDB, error) {
	db, err := sql.Open("sqlserver", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	// Verify connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLServerDB{DB: db}, nil
}

// Close closes the connection pool
func (s *SQLServerDB) Close() error {
	if s.DB != nil {
		return s.DB.Close()
	}
	return nil
}

// Health checks the database connection
func (s *SQLServerDB) Health(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}
