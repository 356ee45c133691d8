package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/forqio/forq"
	"github.com/forqio/forq/id"
	"github.com/forqio/forq/job"
)

// insertScript creates the job hash, tracking entry, and pending-set
// member in one atomic step, failing when the id already exists.
var insertScript = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 3, #ARGV))
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// claimScript atomically pops the eligible job with the lowest score and
// marks it running. Returns the job id or false when nothing is eligible.
var claimScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
local jid = ids[1]
redis.call('ZREM', KEYS[1], jid)
redis.call('HSET', ARGV[4] .. jid,
	'state', ARGV[2],
	'claimed_by', ARGV[3],
	'started_at', ARGV[5],
	'updated_at', ARGV[5])
return jid
`)

// completeScript applies a planned transition only if the job is still
// running, re-adding it to the pending set when it goes back to pending.
var completeScript = goredis.NewScript(`
if redis.call('HGET', KEYS[1], 'state') ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5, #ARGV))
if ARGV[2] == 'pending' then
	redis.call('ZADD', KEYS[2], ARGV[3], ARGV[4])
end
return 1
`)

// requeueScript moves a dead-lettered job back to pending.
var requeueScript = goredis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if state == false then
	return -1
end
if state ~= ARGV[1] then
	return 0
end
redis.call('HSET', KEYS[1],
	'state', ARGV[2],
	'attempts', '0',
	'next_eligible_at', ARGV[3],
	'claimed_by', '',
	'completed_at', '',
	'updated_at', ARGV[3])
redis.call('ZADD', KEYS[2], ARGV[4], ARGV[5])
return 1
`)

// Insert persists a new job.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	fields := jobToArgs(j)
	args := make([]any, 0, len(fields)+2)
	args = append(args, j.ID, scoreOf(j.NextEligibleAt))
	args = append(args, fields...)

	ok, err := insertScript.Run(ctx, s.client,
		[]string{jobKey(j.ID), jobIDsKey, pendingKey}, args...).Int()
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: insert job: %w", err))
	}
	if ok == 0 {
		return forq.ErrDuplicateJob
	}
	return nil
}

// ClaimNext atomically claims the eligible pending job with the earliest
// NextEligibleAt. Equal eligibility times sort lexically by id.
func (s *Store) ClaimNext(ctx context.Context, workerID id.WorkerID, now time.Time) (*job.Job, error) {
	now = now.UTC()
	res, err := claimScript.Run(ctx, s.client, []string{pendingKey},
		scoreOf(now),
		string(job.StateRunning),
		workerID.String(),
		keyPrefix+"job:",
		now.Format(time.RFC3339Nano),
	).Text()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: claim next: %w", err))
	}

	return s.getJob(ctx, res)
}

// Complete applies the planned transition for out and returns the updated
// snapshot. The transition is computed in Go from a snapshot and applied
// by a script that verifies the job is still running.
func (s *Store) Complete(ctx context.Context, jobID string, out job.Outcome) (*job.Job, error) {
	j, err := s.getJob(ctx, jobID)
	if err != nil {
		return nil, err
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

	args := make([]any, 0, 32)
	args = append(args, string(job.StateRunning), string(j.State), scoreOf(j.NextEligibleAt), jobID)
	args = append(args, jobToArgs(j)...)

	ok, err := completeScript.Run(ctx, s.client,
		[]string{jobKey(jobID), pendingKey}, args...).Int()
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: complete: %w", err))
	}
	if ok == 0 {
		// The job changed state between snapshot and apply.
		return nil, forq.ErrInvalidTransition
	}
	return j, nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID string) (*job.Job, error) {
	return s.getJob(ctx, jobID)
}

// List returns jobs in the given state, oldest first. An empty state
// matches all jobs.
func (s *Store) List(ctx context.Context, state job.State, opts job.ListOpts) ([]*job.Job, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: list smembers: %w", err))
	}

	jobs := make([]*job.Job, 0, len(ids))
	for _, jID := range ids {
		j, getErr := s.getJob(ctx, jID)
		if getErr != nil {
			if errors.Is(getErr, forq.ErrJobNotFound) {
				continue // deleted between SMEMBERS and HGETALL
			}
			return nil, getErr
		}
		if state != "" && j.State != state {
			continue
		}
		jobs = append(jobs, j)
	}

	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[k].CreatedAt)
		}
		return jobs[i].ID < jobs[k].ID
	})

	if opts.Offset > 0 {
		if opts.Offset >= len(jobs) {
			return nil, nil
		}
		jobs = jobs[opts.Offset:]
	}
	if opts.Limit > 0 && len(jobs) > opts.Limit {
		jobs = jobs[:opts.Limit]
	}
	return jobs, nil
}

// Requeue moves a dead-lettered job back to Pending with a fresh budget.
func (s *Store) Requeue(ctx context.Context, jobID string) error {
	now := time.Now().UTC()
	res, err := requeueScript.Run(ctx, s.client,
		[]string{jobKey(jobID), pendingKey},
		string(job.StateDeadLetter),
		string(job.StatePending),
		now.Format(time.RFC3339Nano),
		scoreOf(now),
		jobID,
	).Int()
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: requeue: %w", err))
	}
	switch res {
	case -1:
		return forq.ErrJobNotFound
	case 0:
		return forq.ErrInvalidTransition
	}
	return nil
}

// Delete removes a job record.
func (s *Store) Delete(ctx context.Context, jobID string) error {
	exists, err := s.client.Exists(ctx, jobKey(jobID)).Result()
	if err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: delete exists: %w", err))
	}
	if exists == 0 {
		return forq.ErrJobNotFound
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, jobKey(jobID))
	pipe.SRem(ctx, jobIDsKey, jobID)
	pipe.ZRem(ctx, pendingKey, jobID)
	if _, err := pipe.Exec(ctx); err != nil {
		return forq.Unavailable(fmt.Errorf("forq/redis: delete job: %w", err))
	}
	return nil
}

// CountByState returns the number of jobs in each persistable state.
func (s *Store) CountByState(ctx context.Context) (map[job.State]int64, error) {
	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: count smembers: %w", err))
	}

	counts := make(map[job.State]int64, 4)
	for _, st := range job.States() {
		counts[st] = 0
	}
	for _, jID := range ids {
		state, getErr := s.client.HGet(ctx, jobKey(jID), "state").Result()
		if getErr != nil {
			if errors.Is(getErr, goredis.Nil) {
				continue
			}
			return nil, forq.Unavailable(fmt.Errorf("forq/redis: count state: %w", getErr))
		}
		counts[job.State(state)]++
	}
	return counts, nil
}

// ReapStale requeues Running jobs whose claim is older than olderThan and
// returns them.
func (s *Store) ReapStale(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	now := time.Now().UTC()
	cutoff := now.Add(-olderThan)

	ids, err := s.client.SMembers(ctx, jobIDsKey).Result()
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: reap smembers: %w", err))
	}

	var reaped []*job.Job
	for _, jID := range ids {
		j, getErr := s.getJob(ctx, jID)
		if getErr != nil {
			if errors.Is(getErr, forq.ErrJobNotFound) {
				continue
			}
			return nil, getErr
		}
		if j.State != job.StateRunning || j.StartedAt == nil || j.StartedAt.After(cutoff) {
			continue
		}

		j.State = job.StatePending
		j.ClaimedBy = id.Nil
		j.NextEligibleAt = now
		j.StartedAt = nil
		j.UpdatedAt = now

		pipe := s.client.TxPipeline()
		pipe.HSet(ctx, jobKey(jID),
			"state", string(job.StatePending),
			"claimed_by", "",
			"next_eligible_at", now.Format(time.RFC3339Nano),
			"started_at", "",
			"updated_at", now.Format(time.RFC3339Nano),
		)
		pipe.ZAdd(ctx, pendingKey, goredis.Z{Score: scoreFloat(now), Member: jID})
		if _, pErr := pipe.Exec(ctx); pErr != nil {
			return nil, forq.Unavailable(fmt.Errorf("forq/redis: reap requeue: %w", pErr))
		}
		reaped = append(reaped, j)
	}
	return reaped, nil
}

// ── helpers ──

// scoreOf renders the sorted-set score (unix milliseconds) as a string
// for script arguments.
func scoreOf(t time.Time) string {
	return strconv.FormatInt(t.UTC().UnixMilli(), 10)
}

func scoreFloat(t time.Time) float64 {
	return float64(t.UTC().UnixMilli())
}

// jobToArgs flattens a job into HSET field/value pairs.
func jobToArgs(j *job.Job) []any {
	startedAt := ""
	if j.StartedAt != nil {
		startedAt = j.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	completedAt := ""
	if j.CompletedAt != nil {
		completedAt = j.CompletedAt.UTC().Format(time.RFC3339Nano)
	}
	return []any{
		"id", j.ID,
		"command", j.Command,
		"state", string(j.State),
		"attempts", strconv.Itoa(j.Attempts),
		"max_retries", strconv.Itoa(j.MaxRetries),
		"next_eligible_at", j.NextEligibleAt.UTC().Format(time.RFC3339Nano),
		"claimed_by", j.ClaimedBy.String(),
		"last_error", j.LastError,
		"created_at", j.CreatedAt.UTC().Format(time.RFC3339Nano),
		"updated_at", j.UpdatedAt.UTC().Format(time.RFC3339Nano),
		"started_at", startedAt,
		"completed_at", completedAt,
	}
}

func (s *Store) getJob(ctx context.Context, jobID string) (*job.Job, error) {
	vals, err := s.client.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, forq.Unavailable(fmt.Errorf("forq/redis: get job: %w", err))
	}
	if len(vals) == 0 {
		return nil, forq.ErrJobNotFound
	}
	return mapToJob(vals)
}

func mapToJob(m map[string]string) (*job.Job, error) {
	attempts, _ := strconv.Atoi(m["attempts"])      //nolint:errcheck // best-effort parse from trusted Redis data
	maxRetries, _ := strconv.Atoi(m["max_retries"]) //nolint:errcheck // best-effort parse from trusted Redis data

	next, _ := time.Parse(time.RFC3339Nano, m["next_eligible_at"]) //nolint:errcheck // best-effort parse from trusted Redis data
	createdAt, _ := time.Parse(time.RFC3339Nano, m["created_at"])  //nolint:errcheck // best-effort parse from trusted Redis data
	updatedAt, _ := time.Parse(time.RFC3339Nano, m["updated_at"])  //nolint:errcheck // best-effort parse from trusted Redis data

	j := &job.Job{
		ID:             m["id"],
		Command:        m["command"],
		State:          job.State(m["state"]),
		Attempts:       attempts,
		MaxRetries:     maxRetries,
		NextEligibleAt: next,
		LastError:      m["last_error"],
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}

	if wid := m["claimed_by"]; wid != "" {
		j.ClaimedBy, _ = id.ParseWorkerID(wid) //nolint:errcheck // best-effort parse from trusted Redis data
	}
	if v := m["started_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.StartedAt = &t
	}
	if v := m["completed_at"]; v != "" {
		t, _ := time.Parse(time.RFC3339Nano, v) //nolint:errcheck // best-effort parse from trusted Redis data
		j.CompletedAt = &t
	}
	return j, nil
}
