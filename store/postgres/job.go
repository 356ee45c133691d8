package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/forqio/forq"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
)

const jobColumns = `id, command, state, attempts, max_retries, next_eligible_at,
	claimed_by, last_error, created_at, updated_at, started_at, completed_at`

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j         job.Job
		state     string
		claimedBy string
		started   *time.Time
		completed *time.Time
	)
	err := row.Scan(&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&j.NextEligibleAt, &claimedBy, &j.LastError, &j.CreatedAt,
		&j.UpdatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}

	j.State = job.State(state)
	if claimedBy != "" {
		wid, perr := id.ParseWorkerID(claimedBy)
		if perr != nil {
			return nil, fmt.Errorf("forq/postgres: job %q claimed_by: %w", j.ID, perr)
		}
		j.ClaimedBy = wid
	}
	j.StartedAt = started
	j.CompletedAt = completed
	return &j, nil
}

// isNoRows reports whether err indicates no rows were found.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isDuplicateKey reports whether err is a unique_violation (23505).
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// Insert persists a new job.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO forq_jobs (id, command, state, attempts, max_retries,
			next_eligible_at, claimed_by, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.NextEligibleAt, j.ClaimedBy.String(), j.LastError,
		j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return forq.ErrDuplicateJob
		}
		return forq.Unavailable(fmt.Errorf("forq/postgres: insert job: %w", err))
	}
	return nil
}

// ClaimNext atomically claims the next eligible pending job. FOR UPDATE
// SKIP LOCKED means concurrent claimers skip each other's candidate rows
// instead of blocking, so unrelated jobs stay claimable in parallel.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		WITH candidate AS (
			SELECT id FROM forq_jobs
			WHERE state = $1 AND next_eligible_at <= $2
			ORDER BY next_eligible_at ASC, created_at ASC, id ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE forq_jobs
		SET state = $3, claimed_by = $4, started_at = $2, updated_at = $2
		FROM candidate
		WHERE forq_jobs.id = candidate.id
		RETURNING `+jobColumns,
		string(job.StatePending), now.UTC(),
		string(job.StateRunning), workerID.String(),
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: claim next: %w", err))
	}
	return j, nil
}

// Complete applies the planned transition for out inside a transaction,
// locking the row so concurrent Completes on the same job serialize.
func (s *Store) Complete(ctx context.Context, jobID string, out job.Outcome) (*job.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: complete begin: %w", err))
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	row := tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM forq_jobs WHERE id = $1 FOR UPDATE`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: complete load: %w", err))
	}

	tr, err := job.Plan(j, out, s.backoff())
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	j.State = tr.To
	j.Attempts = tr.Attempts
	j.ClaimedBy = id.Nil
	j.UpdatedAt = now
	if tr.To == job.StatePending {
		j.NextEligibleAt = tr.NextEligibleAt
	}
	if tr.LastError != "" {
		j.LastError = tr.LastError
	}
	if tr.To.Terminal() {
		done := now
		j.CompletedAt = &done
	}

	_, err = tx.Exec(ctx, `
		UPDATE forq_jobs
		SET state = $2, attempts = $3, next_eligible_at = $4, claimed_by = '',
			last_error = $5, updated_at = $6, completed_at = $7
		WHERE id = $1`,
		jobID, string(j.State), j.Attempts, j.NextEligibleAt,
		j.LastError, now, j.CompletedAt,
	)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: complete update: %w", err))
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: complete commit: %w", err))
	}
	return j, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM forq_jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: get job: %w", err))
	}
	return j, nil
}

// List returns jobs in the given state, oldest first. An empty state
// matches all jobs.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM forq_jobs`
	args := []any{}
	if state != "" {
		query += ` WHERE state = $1`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: list jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/postgres: list scan: %w", scanErr))
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: list rows: %w", err))
	}
	return jobs, nil
}

// Requeue moves a dead-lettered job back to Pending with a fresh budget.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE forq_jobs
		SET state = $2, attempts = 0, next_eligible_at = $3, claimed_by = '',
			completed_at = NULL, updated_at = $3
		WHERE id = $1 AND state = $4`,
		jobID, string(job.StatePending), now, string(job.StateDeadLetter),
	)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/postgres: requeue: %w", err))
	}
	if tag.RowsAffected() == 0 {
		var one int
		err := s.pool.QueryRow(ctx, `SELECT 1 FROM forq_jobs WHERE id = $1`, jobID).Scan(&one)
		if isNoRows(err) {
			return forq.ErrJobNotFound
		}
		if err != nil {
			return forq.Unavailable(fmt.Errorf("forq/postgres: requeue check: %w", err))
		}
		return forq.ErrInvalidTransition
	}
	return nil
}

// Delete removes a job record.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM forq_jobs WHERE id = $1`, jobID)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/postgres: delete job: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return forq.ErrJobNotFound
	}
	return nil
}

// CountByState returns the number of jobs in each persistable state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, COUNT(*) FROM forq_jobs GROUP BY state`)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: count by state: %w", err))
	}
	defer rows.Close()

	counts := make(map[job.State]int64, 4)
	for _, st := range job.States() {
		counts[st] = 0
	}
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/postgres: count scan: %w", err))
		}
		counts[job.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: count rows: %w", err))
	}
	return counts, nil
}

// ReapStale requeues Running jobs whose claim is older than olderThan and
// returns them.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	rows, err := s.pool.Query(ctx, `
		UPDATE forq_jobs
		SET state = $1, claimed_by = '', next_eligible_at = $2,
			started_at = NULL, updated_at = $2
		WHERE state = $3 AND started_at IS NOT NULL AND started_at < $4
		RETURNING `+jobColumns,
		string(job.StatePending), now, string(job.StateRunning), cutoff,
	)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: reap stale: %w", err))
	}
	defer rows.Close()

	var reaped []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/postgres: reap scan: %w", scanErr))
		}
		reaped = append(reaped, j)
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/postgres: reap rows: %w", err))
	}
	return reaped, nil
}
