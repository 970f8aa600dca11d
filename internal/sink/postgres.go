package sink

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/config"
)

// pgExecer is the subset of *pgxpool.Pool used by Postgres.
type pgExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// Postgres inserts each packet as one row into a REAL[] column named datapoints.
type Postgres struct {
	pool   pgExecer
	logger *logrus.Logger
}

// OpenPostgres creates a connection pool and verifies the server is reachable.
func OpenPostgres(ctx context.Context, cfg config.PostgresConfig, logger *logrus.Logger) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("postgres config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping %s:%d: %w", cfg.Host, cfg.Port, err)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"port":   cfg.Port,
		"dbname": cfg.DBName,
	}).Info("Connected to postgres")

	return newPostgres(pool, logger), nil
}

func newPostgres(pool pgExecer, logger *logrus.Logger) *Postgres {
	return &Postgres{pool: pool, logger: logger}
}

// plainIdent matches names postgres accepts unquoted.
var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$]*$`)

// tableIdent resolves destination the way postgres resolves an unquoted name:
// plain identifiers fold to lower case. Anything else is quoted verbatim.
func tableIdent(destination string) pgx.Identifier {
	if plainIdent.MatchString(destination) {
		return pgx.Identifier{strings.ToLower(destination)}
	}
	return pgx.Identifier{destination}
}

func insertStatement(table string) string {
	return fmt.Sprintf("INSERT INTO %s (datapoints) VALUES ($1)", tableIdent(table).Sanitize())
}

// Write inserts values into table destination.
func (p *Postgres) Write(ctx context.Context, destination string, values []float32) error {
	tag, err := p.pool.Exec(ctx, insertStatement(destination), values)
	if err != nil {
		return &WriteError{Backend: config.SinkPostgres, Destination: destination, Err: err}
	}
	p.logger.WithFields(logrus.Fields{
		"table":   destination,
		"samples": len(values),
		"rows":    tag.RowsAffected(),
	}).Debug("Inserted packet")
	return nil
}

// Close releases the pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
