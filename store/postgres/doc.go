// Package postgres implements store.Store on PostgreSQL via pgx/v5. It
// is the backend for multi-worker deployments sharing one database: the
// claim uses FOR UPDATE SKIP LOCKED so concurrent workers never block on
// or double-claim the same row.
//
//	st, _ := postgres.New(ctx, "postgres://localhost:5432/forq")
//	defer st.Close()
//	st.Migrate(ctx)
package postgres
