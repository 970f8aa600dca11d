package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/config"
)

// SQLite stores packets locally, with datapoints JSON-encoded in a TEXT column.
type SQLite struct {
	db     *sql.DB
	logger *logrus.Logger
}

// OpenSQLite opens the database at path. The destination table must already
// have a datapoints TEXT column.
func OpenSQLite(ctx context.Context, path string, logger *logrus.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	// sqlite allows a single writer; this also keeps :memory: databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite open %s: %w", path, err)
	}
	logger.WithField("path", path).Info("Opened sqlite sink")
	return &SQLite{db: db, logger: logger}, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Write inserts values into table destination.
func (s *SQLite) Write(ctx context.Context, destination string, values []float32) error {
	payload, err := json.Marshal(values)
	if err != nil {
		return &WriteError{Backend: config.SinkSQLite, Destination: destination, Err: err}
	}
	query := fmt.Sprintf("INSERT INTO %s (datapoints) VALUES (?)", quoteIdent(destination))
	if _, err := s.db.ExecContext(ctx, query, string(payload)); err != nil {
		return &WriteError{Backend: config.SinkSQLite, Destination: destination, Err: err}
	}
	s.logger.WithFields(logrus.Fields{"table": destination, "samples": len(values)}).Debug("Inserted packet")
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}
