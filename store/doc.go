// Package store defines the aggregate persistence interface.
//
// Each subsystem (job, settings) defines its own store interface. The
// composite [Store] composes them; a backend need only implement Store to
// satisfy every subsystem's persistence contract.
//
// # Available Backends
//
//   - store/memory: in-memory store for development and testing
//   - store/sqlite: single-file SQLite backend (the default for the CLI)
//   - store/postgres: PostgreSQL backend using pgx/v5
//   - store/redis: Redis backend
//
// # Usage
//
//	st, err := sqlite.Open("forq.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
//
//	if err := st.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// # Claim atomicity
//
// Every backend implements ClaimNext as a single atomic conditional
// update ("claim if and only if still Pending and due"): SQLite uses one
// UPDATE...RETURNING statement, Postgres FOR UPDATE SKIP LOCKED, Redis a
// Lua script, and the memory store its mutex. Two concurrent claimers
// never both receive the same job, and claiming one job never locks out
// claims on unrelated jobs in the SQL backends.
package store
