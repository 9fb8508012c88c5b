package bunstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"

	"github.com/uptrace/bun"

	"github.com/voteflow/voteflow/faillog"
	"github.com/voteflow/voteflow/job"
	"github.com/voteflow/voteflow/vote"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ job.Store         = (*Store)(nil)
	_ faillog.Store     = (*Store)(nil)
	_ vote.PollStore    = (*Store)(nil)
	_ vote.BalanceStore = (*Store)(nil)
	_ vote.Ledger       = (*Store)(nil)
	_ vote.Committer    = (*Store)(nil)
	_ vote.FlagStore    = (*Store)(nil)
)

// Store backs every subsystem with PostgreSQL through the Bun ORM. The
// caller owns the *bun.DB; Close on the Store never touches it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New wraps an open *bun.DB.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle for callers that need raw queries.
func (s *Store) DB() *bun.DB { return s.db }

// Migrate applies the embedded SQL migrations that have not run yet, in
// filename order. Each file is applied and recorded in one transaction,
// so a failed migration leaves no half-applied record behind.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS voteflow_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("voteflow/bun: create migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("voteflow/bun: list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		name := file[len("migrations/"):]

		var applied bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM voteflow_migrations WHERE filename = ?)`, name,
		).Scan(&applied); err != nil {
			return fmt.Errorf("voteflow/bun: check migration %s: %w", name, err)
		}
		if applied {
			continue
		}
		if err := s.applyMigration(ctx, file, name); err != nil {
			return err
		}
		s.logger.Info("applied migration", "file", name)
	}
	return nil
}

func (s *Store) applyMigration(ctx context.Context, file, name string) error {
	ddl, err := fs.ReadFile(migrationsFS, file)
	if err != nil {
		return fmt.Errorf("voteflow/bun: read migration %s: %w", name, err)
	}
	err = s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, string(ddl)); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO voteflow_migrations (filename) VALUES (?)`, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("voteflow/bun: apply migration %s: %w", name, err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op; the *bun.DB belongs to the caller.
func (s *Store) Close() error { return nil }
