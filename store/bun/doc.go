// Package bunstore is the PostgreSQL backend, built on the Bun ORM. It
// is the production store: dequeue claims rows with SKIP LOCKED, the
// active-key dedup lives in a partial unique index, and CommitVote runs
// the insert and the conditional balance decrement in one transaction.
//
// The constructor takes an open *bun.DB and never closes it; wiring the
// connector is the caller's job:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	st := bunstore.New(bun.NewDB(sqldb, pgdialect.New()))
//	if err := st.Migrate(ctx); err != nil { ... }
package bunstore
