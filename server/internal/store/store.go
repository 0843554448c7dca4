// Package store persists clusters and nodes in SQLite or PostgreSQL.
//
// Queries are written with "?" placeholders and rebound for PostgreSQL.
// Uniqueness (node name per cluster, public IP, token, one master per
// cluster) is enforced by the schema; constraint violations are translated
// into the matching models error.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"swarmcp.io/models"
	"swarmcp.io/server/internal/metrics"
)

// Dialect identifies the SQL flavour of the underlying database.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Options configures the connection pool.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the durable record set of clusters and nodes.
type Store struct {
	db      *sql.DB
	dialect Dialect
	logger  *zap.Logger
}

// Open connects to the database identified by driver ("sqlite" or "pgx")
// and dsn, verifies the connection and returns a Store.
func Open(ctx context.Context, driver, dsn string, opts Options, logger *zap.Logger) (*Store, error) {
	var dialect Dialect
	switch driver {
	case "sqlite":
		dialect = DialectSQLite
	case "pgx", "postgres":
		driver = "pgx"
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established", zap.String("driver", driver))
	return New(db, dialect, logger), nil
}

// New wraps an already opened database.
func New(db *sql.DB, dialect Dialect, logger *zap.Logger) *Store {
	return &Store{db: db, dialect: dialect, logger: logger}
}

// DB returns the underlying connection pool.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	s.logger.Info("database schema up to date", zap.Int("statements", len(schema)))
	return nil
}

// rebind rewrites "?" placeholders into "$n" for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.rebind(query), args...)
}

func observe(operation string, start time.Time, errp *error) {
	metrics.ObserveQuery(operation, start, *errp)
}

// mapConstraint translates unique violations into models errors.
// Other errors are returned unchanged.
func mapConstraint(err error, clusterID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != "23505" {
			return err
		}
		switch pgErr.ConstraintName {
		case "nodes_one_master_per_cluster":
			return &models.MasterUniquenessError{ClusterID: clusterID}
		case "nodes_public_ip_key":
			return models.ErrPublicIPTaken
		case "nodes_cluster_name_key":
			return models.ErrDuplicateName
		case "nodes_token_key":
			return models.ErrTokenCollision
		}
		return models.ErrConflict
	}

	// SQLite reports the constrained columns: "UNIQUE constraint failed: nodes.public_ip"
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "unique constraint") {
		return err
	}
	switch {
	case strings.Contains(msg, "nodes.name"):
		return models.ErrDuplicateName
	case strings.Contains(msg, "nodes.public_ip"):
		return models.ErrPublicIPTaken
	case strings.Contains(msg, "nodes.token"):
		return models.ErrTokenCollision
	case strings.Contains(msg, "nodes.cluster_id"):
		return &models.MasterUniquenessError{ClusterID: clusterID}
	}
	return models.ErrConflict
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	v := nt.Time.UTC()
	return &v
}
