package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// defaultCandidateLimit bounds one page of the claim scan.
const defaultCandidateLimit = 100

// uniqueViolation is the PostgreSQL SQLSTATE for a duplicate key.
const uniqueViolation pq.ErrorCode = "23505"

const jobColumns = `id, owner_id, type, payload, priority, manual_priority, ice, status, depends_on,
	not_before, created_at, started_at, completed_at, retry_count, max_retries, result, error`

// InsertJob inserts a new job row.
// The dependency list is stored as a UUID array so its order survives the round trip.
func (s *Store) InsertJob(ctx context.Context, job *store.Job) error {
	payload := job.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var iceJSON any
	if job.ICE != nil {
		b, err := json.Marshal(job.ICE)
		if err != nil {
			return fmt.Errorf("failed to marshal ice: %w", err)
		}
		iceJSON = b
	}

	query := `
		INSERT INTO jobs (id, owner_id, type, payload, priority, manual_priority, ice, status,
			depends_on, not_before, created_at, retry_count, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		job.OwnerID,
		job.Type,
		payloadJSON,
		job.Priority,
		job.ManualPriority,
		iceJSON,
		job.Status,
		pq.Array(uuidStrings(job.DependsOn)),
		job.NotBefore,
		job.CreatedAt,
		job.RetryCount,
		job.MaxRetries,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return fmt.Errorf("job %s: %w", job.ID, store.ErrAlreadyExists)
	}
	if err != nil {
		return fmt.Errorf("failed to insert job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns a job by its ID.
func (s *Store) GetJob(ctx context.Context, id uuid.UUID) (*store.Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs WHERE id = $1"

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return job, nil
}

// GetJobStatuses looks up the status of many jobs in one round trip.
func (s *Store) GetJobStatuses(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]store.JobStatus, error) {
	statuses := make(map[uuid.UUID]store.JobStatus, len(ids))
	if len(ids) == 0 {
		return statuses, nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, status FROM jobs WHERE id = ANY($1)", pq.Array(uuidStrings(ids)))
	if err != nil {
		return nil, fmt.Errorf("failed to query job statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var status store.JobStatus
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("failed to scan job status: %w", err)
		}
		statuses[id] = status
	}
	return statuses, rows.Err()
}

// ListClaimCandidates returns one page of pending, due jobs in claim order.
// Dependency checks happen in the queue manager; this query only uses the claim index.
func (s *Store) ListClaimCandidates(ctx context.Context, filter store.CandidateFilter) ([]*store.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultCandidateLimit
	}

	args := []interface{}{store.JobStatusPending, filter.Now, limit, filter.Offset}
	whereClause := "WHERE status = $1 AND not_before <= $2"
	if filter.OwnerID != "" {
		whereClause += " AND owner_id = $5"
		args = append(args, filter.OwnerID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM jobs
		%s
		ORDER BY priority DESC, created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`, jobColumns, whereClause)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	defer rows.Close()

	var jobs []*store.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("candidate scan failed: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("candidate rows error: %w", err)
	}
	return jobs, nil
}

// ClaimJob transitions a job from PENDING to QUEUED.
// The status predicate in the WHERE clause makes the update a compare-and-swap:
// concurrent claimers race on the row lock and only one sees an affected row.
func (s *Store) ClaimJob(ctx context.Context, id uuid.UUID, now time.Time) (*store.Job, bool, error) {
	query := `
		UPDATE jobs
		SET status = $3, started_at = COALESCE(started_at, $4)
		WHERE id = $1 AND status = $2
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query, id, store.JobStatusPending, store.JobStatusQueued, now))
	if err == nil {
		return job, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to claim job %s: %w", id, err)
	}

	found, err := s.exists(ctx, s.db, "jobs", id)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, store.ErrNotFound
	}
	return nil, false, nil
}

// UpdateJobStatus writes a status change guarded by the expected current status.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, from store.JobStatus, update store.JobUpdate) (*store.Job, error) {
	if from.IsTerminal() {
		return nil, store.ErrInvalidTransition
	}

	resultJSON, err := marshalMap(update.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $3,
			started_at = COALESCE(started_at, $4),
			completed_at = COALESCE(completed_at, $5),
			result = $6,
			error = $7
		WHERE id = $1 AND status = $2
		RETURNING ` + jobColumns

	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		id, from, update.Status, update.StartedAt, update.CompletedAt, resultJSON, update.Error,
	))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to update job %s: %w", id, err)
	}
	return nil, s.missedUpdate(ctx, id)
}

// IncrementRetry bumps retry_count while the job is RUNNING and below max_retries.
func (s *Store) IncrementRetry(ctx context.Context, id uuid.UUID) (int, error) {
	query := `
		UPDATE jobs
		SET retry_count = retry_count + 1
		WHERE id = $1 AND status = $2 AND retry_count < max_retries
		RETURNING retry_count
	`

	var count int
	err := s.db.QueryRowContext(ctx, query, id, store.JobStatusRunning).Scan(&count)
	if err == nil {
		return count, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to increment retry for %s: %w", id, err)
	}
	return 0, s.missedUpdate(ctx, id)
}

// UpdateJobPriority rewrites the priority of a job that has not been claimed yet.
func (s *Store) UpdateJobPriority(ctx context.Context, id uuid.UUID, priority, manualPriority int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs
		SET priority = $2, manual_priority = $3
		WHERE id = $1 AND status = $4
	`, id, priority, manualPriority, store.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update priority of %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return s.missedUpdate(ctx, id)
	}
	return nil
}

// ListJobs returns jobs matching the filter, oldest first.
func (s *Store) ListJobs(ctx context.Context, filter store.JobFilter) ([]*store.Job, error) {
	var conds []string
	var args []interface{}

	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conds = append(conds, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, pq.Array(statuses))
		conds = append(conds, fmt.Sprintf("status = ANY($%d)", len(args)))
	}

	query := "SELECT " + jobColumns + " FROM jobs"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs query failed: %w", err)
	}
	defer rows.Close()

	var jobs []*store.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs scan failed: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// CountJobsByStatus counts jobs per status, optionally for one owner.
func (s *Store) CountJobsByStatus(ctx context.Context, ownerID string) (map[store.JobStatus]int64, error) {
	query := "SELECT status, COUNT(*) FROM jobs GROUP BY status"
	var args []interface{}
	if ownerID != "" {
		query = "SELECT status, COUNT(*) FROM jobs WHERE owner_id = $1 GROUP BY status"
		args = append(args, ownerID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count query failed: %w", err)
	}
	defer rows.Close()

	counts := make(map[store.JobStatus]int64)
	for rows.Next() {
		var status store.JobStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// ListOwners returns the distinct owners having jobs in the given status.
func (s *Store) ListOwners(ctx context.Context, status store.JobStatus) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT owner_id FROM jobs WHERE status = $1 ORDER BY owner_id", status)
	if err != nil {
		return nil, fmt.Errorf("list owners query failed: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, err
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

func (s *Store) missedUpdate(ctx context.Context, id uuid.UUID) error {
	found, err := s.exists(ctx, s.db, "jobs", id)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

func scanJob(row rowScanner) (*store.Job, error) {
	var job store.Job
	var payload, ice, result []byte
	var dependsOn pq.StringArray
	var startedAt, completedAt sql.NullTime
	var errMsg sql.NullString

	err := row.Scan(
		&job.ID, &job.OwnerID, &job.Type, &payload, &job.Priority, &job.ManualPriority, &ice,
		&job.Status, &dependsOn, &job.NotBefore, &job.CreatedAt, &startedAt, &completedAt,
		&job.RetryCount, &job.MaxRetries, &result, &errMsg,
	)
	if err != nil {
		return nil, err
	}

	if job.Payload, err = unmarshalMap(payload); err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if job.Result, err = unmarshalMap(result); err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}
	if len(ice) > 0 && string(ice) != "null" {
		job.ICE = &store.ICE{}
		if err := json.Unmarshal(ice, job.ICE); err != nil {
			return nil, fmt.Errorf("invalid ice: %w", err)
		}
	}
	for _, raw := range dependsOn {
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid dependency id %q: %w", raw, err)
		}
		job.DependsOn = append(job.DependsOn, id)
	}
	job.StartedAt = nullTime(startedAt)
	job.CompletedAt = nullTime(completedAt)
	job.Error = nullString(errMsg)

	return &job, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}
