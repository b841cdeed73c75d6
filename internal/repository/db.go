package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/sof-events/db"
	"github.com/joseph-ayodele/sof-events/internal/common"
)

// Dialect selects the SQL flavour of the job store.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type Config struct {
	DSN             string
	MaxConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// DB is a database/sql handle tagged with its dialect.
type DB struct {
	SQL     *sql.DB
	Dialect Dialect
	pool    *pgxpool.Pool
}

// DialectFor picks postgres for postgres:// URLs and sqlite for everything else.
func DialectFor(dsn string) Dialect {
	d := strings.ToLower(strings.TrimSpace(dsn))
	if strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://") {
		return DialectPostgres
	}
	return DialectSQLite
}

// Open connects to the job store. Postgres goes through a pgx pool wrapped as
// *sql.DB; anything else is treated as a sqlite path or file: URI.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	dialect := DialectFor(cfg.DSN)
	logger.Info("connecting to database", "dialect", dialect)

	switch dialect {
	case DialectPostgres:
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database url", "error", err)
			return nil, err
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = int32(cfg.MaxConns)
		}
		pc.MaxConnLifetime = cfg.MaxConnLifetime
		pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		pc.ConnConfig.RuntimeParams["application_name"] = "sof-events"

		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}
		logger.Info("successfully connected to database", "dialect", dialect)
		return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: dialect, pool: pool}, nil

	default:
		sqldb, err := sql.Open("sqlite", cfg.DSN)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			return nil, err
		}
		// sqlite serialises writers; a single connection avoids SQLITE_BUSY.
		sqldb.SetMaxOpenConns(1)
		if _, err := sqldb.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = sqldb.Close()
			logger.Error("failed to configure sqlite database", "error", err)
			return nil, err
		}
		logger.Info("successfully connected to database", "dialect", dialect)
		return &DB{SQL: sqldb, Dialect: dialect}, nil
	}
}

// Migrate applies the embedded schema. Every script is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	scripts, err := db.Migrations(string(d.Dialect))
	if err != nil {
		return err
	}
	for i, s := range scripts {
		if _, err := d.SQL.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
	}
	return nil
}

// Close closes the database connections gracefully
func (d *DB) Close(logger *slog.Logger) {
	if d == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if err := d.SQL.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings using database/sql to catch DSN issues early.
func HealthCheck(ctx context.Context, d *DB, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Debug("pinging database")
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := d.SQL.PingContext(ctx); err != nil {
		logger.Error("database ping failed", "error", err)
		return err
	}
	logger.Debug("database ping successful")
	return nil
}

// rebind rewrites ? placeholders to $n for postgres.
func (d *DB) rebind(query string) string {
	if d.Dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
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

// Ping reports whether the store answers within two seconds.
func (d *DB) Ping(ctx context.Context) error {
	return HealthCheck(ctx, d, 2*time.Second, nil)
}

// Store bundles an open, migrated job store.
type Store struct {
	DB   *DB
	Jobs ExtractJobRepository
}

// InitStore opens and migrates the job store described by cfg. An empty DSN
// means no store: it returns (nil, nil) and callers run without bookkeeping.
func InitStore(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil
	}
	d, err := Open(ctx, Config{
		DSN:             cfg.DSN,
		MaxConns:        cfg.MaxConns,
		MaxConnLifetime: cfg.MaxConnLifetime,
		MaxConnIdleTime: cfg.MaxConnIdleTime,
		DialTimeout:     cfg.DialTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("%w: open job store: %v", common.ErrDatabase, err)
	}
	if err := HealthCheck(ctx, d, cfg.DialTimeout, logger); err != nil {
		d.Close(logger)
		return nil, fmt.Errorf("%w: ping job store: %v", common.ErrDatabase, err)
	}
	if err := d.Migrate(ctx); err != nil {
		d.Close(logger)
		return nil, fmt.Errorf("%w: migrate job store: %v", common.ErrDatabase, err)
	}
	return &Store{DB: d, Jobs: NewExtractJobRepository(d, logger)}, nil
}

// JobRepo returns the job repository, or nil for a nil store.
func (s *Store) JobRepo() ExtractJobRepository {
	if s == nil {
		return nil
	}
	return s.Jobs
}

// Close releases the store; a nil store is a no-op.
func (s *Store) Close(logger *slog.Logger) {
	if s == nil {
		return
	}
	s.DB.Close(logger)
}
