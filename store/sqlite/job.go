package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/forqio/forq"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
)

const jobColumns = `id, command, state, attempts, max_retries, next_eligible_at,
	claimed_by, last_error, created_at, updated_at, started_at, completed_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (*job.Job, error) {
	var (
		j         job.Job
		state     string
		claimedBy string
		started   sql.NullTime
		completed sql.NullTime
	)
	err := r.Scan(&j.ID, &j.Command, &state, &j.Attempts, &j.MaxRetries,
		&j.NextEligibleAt, &claimedBy, &j.LastError, &j.CreatedAt,
		&j.UpdatedAt, &started, &completed)
	if err != nil {
		return nil, err
	}

	j.State = job.State(state)
	if claimedBy != "" {
		wid, perr := id.ParseWorkerID(claimedBy)
		if perr != nil {
			return nil, fmt.Errorf("forq/sqlite: job %q claimed_by: %w", j.ID, perr)
		}
		j.ClaimedBy = wid
	}
	if started.Valid {
		t := started.Time.UTC()
		j.StartedAt = &t
	}
	if completed.Valid {
		t := completed.Time.UTC()
		j.CompletedAt = &t
	}
	return &j, nil
}

// Insert persists a new job.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, command, state, attempts, max_retries,
			next_eligible_at, claimed_by, last_error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Command, string(j.State), j.Attempts, j.MaxRetries,
		j.NextEligibleAt.UTC(), j.ClaimedBy.String(), j.LastError,
		j.CreatedAt.UTC(), j.UpdatedAt.UTC(),
	)
	if err != nil {
		if isDuplicateKey(err) {
			return forq.ErrDuplicateJob
		}
		return forq.Unavailable(fmt.Errorf("forq/sqlite: insert job: %w", err))
	}
	return nil
}

// ClaimNext atomically claims the next eligible pending job. The whole
// claim is one UPDATE statement; SQLite executes it atomically, so two
// workers can never both receive the same job.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	now = now.UTC()
	row := s.db.QueryRowContext(ctx, `
		UPDATE jobs
		SET state = ?, claimed_by = ?, started_at = ?, updated_at = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE state = ? AND next_eligible_at <= ?
			ORDER BY next_eligible_at ASC, created_at ASC, id ASC
			LIMIT 1
		)
		RETURNING `+jobColumns,
		string(job.StateRunning), workerID.String(), now, now,
		string(job.StatePending), now,
	)

	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: claim next: %w", err))
	}
	return j, nil
}

// Complete applies the planned transition for out inside a transaction
// and returns the updated snapshot.
func (s *Store) Complete(ctx context.Context, jobID string, out job.Outcome) (*job.Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: complete begin: %w", err))
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	row := tx.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: complete load: %w", err))
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

	var completedAt any
	if j.CompletedAt != nil {
		completedAt = j.CompletedAt.UTC()
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, attempts = ?, next_eligible_at = ?, claimed_by = '',
			last_error = ?, updated_at = ?, completed_at = ?
		WHERE id = ? AND state = ?`,
		string(j.State), j.Attempts, j.NextEligibleAt.UTC(), j.LastError,
		now, completedAt, jobID, string(job.StateRunning),
	)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: complete update: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The row changed under us between load and update.
		return nil, forq.ErrInvalidTransition
	}

	if err := tx.Commit(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: complete commit: %w", err))
	}
	return j, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, forq.ErrJobNotFound
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: get job: %w", err))
	}
	return j, nil
}

// List returns jobs in the given state, oldest first. An empty state
// matches all jobs.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	args := []any{}
	if state != "" {
		query += ` WHERE state = ?`
		args = append(args, string(state))
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		// SQLite requires LIMIT before OFFSET; -1 means unlimited.
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: list jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: list scan: %w", scanErr))
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: list rows: %w", err))
	}
	return jobs, nil
}

// Requeue moves a dead-lettered job back to Pending with a fresh budget.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET state = ?, attempts = 0, next_eligible_at = ?, claimed_by = '',
			completed_at = NULL, updated_at = ?
		WHERE id = ? AND state = ?`,
		string(job.StatePending), now, now, jobID, string(job.StateDeadLetter),
	)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/sqlite: requeue: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing job from one in the wrong state.
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM jobs WHERE id = ?`, jobID).Scan(&one)
		if isNoRows(err) {
			return forq.ErrJobNotFound
		}
		if err != nil {
			return forq.Unavailable(fmt.Errorf("forq/sqlite: requeue check: %w", err))
		}
		return forq.ErrInvalidTransition
	}
	return nil
}

// Delete removes a job record.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/sqlite: delete job: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return forq.ErrJobNotFound
	}
	return nil
}

// CountByState returns the number of jobs in each persistable state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM jobs GROUP BY state`)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: count by state: %w", err))
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
			return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: count scan: %w", err))
		}
		counts[job.State(state)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: count rows: %w", err))
	}
	return counts, nil
}

// ReapStale requeues Running jobs whose claim is older than olderThan and
// returns them.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	rows, err := s.db.QueryContext(ctx, `
		UPDATE jobs
		SET state = ?, claimed_by = '', next_eligible_at = ?,
			started_at = NULL, updated_at = ?
		WHERE state = ? AND started_at IS NOT NULL AND started_at < ?
		RETURNING `+jobColumns,
		string(job.StatePending), now, now,
		string(job.StateRunning), cutoff,
	)
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: reap stale: %w", err))
	}
	defer rows.Close()

	var reaped []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: reap scan: %w", scanErr))
		}
		reaped = append(reaped, j)
	}
	if err := rows.Err(); err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/sqlite: reap rows: %w", err))
	}
	return reaped, nil
}
