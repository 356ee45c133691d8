// Package sqlite implements store.Store on a SQLite database file. It is
// the default backend: a single file, no server, and WAL mode lets
// enqueuing processes and worker processes share it concurrently.
//
// The claim is one UPDATE with a correlated subquery, which SQLite runs
// atomically:
//
//	st, _ := sqlite.Open("forq.db")
//	defer st.Close()
//	st.Migrate(ctx)
package sqlite
