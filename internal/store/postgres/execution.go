package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"actionplane/internal/store"

	"github.com/google/uuid"
)

const executionColumns = `id, playbook_id, action_id, executor_name, status, input_parameters, output_result,
	logs, errors, started_at, completed_at, duration_ms, created_at`

// CreateExecution appends a new execution record.
func (s *Store) CreateExecution(ctx context.Context, execution *store.Execution) error {
	params := execution.InputParameters
	if params == nil {
		params = map[string]any{}
	}
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal input parameters: %w", err)
	}
	logsJSON, errorsJSON, err := marshalLines(execution.Logs, execution.Errors)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO executions (id, playbook_id, action_id, executor_name, status, input_parameters,
			logs, errors, started_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		execution.ID,
		execution.PlaybookID,
		execution.ActionID,
		execution.ExecutorName,
		execution.Status,
		paramsJSON,
		logsJSON,
		errorsJSON,
		execution.StartedAt,
		execution.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert execution %s: %w", execution.ID, err)
	}
	return nil
}

// UpdateExecution rewrites status, output and timing of an execution.
// Identity columns (playbook, action, created_at) are never touched.
func (s *Store) UpdateExecution(ctx context.Context, execution *store.Execution) error {
	resultJSON, err := marshalMap(execution.OutputResult)
	if err != nil {
		return fmt.Errorf("failed to marshal output result: %w", err)
	}
	logsJSON, errorsJSON, err := marshalLines(execution.Logs, execution.Errors)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE executions
		SET status = $2, output_result = $3, logs = $4, errors = $5,
			started_at = $6, completed_at = $7, duration_ms = $8
		WHERE id = $1
	`, execution.ID, execution.Status, resultJSON, logsJSON, errorsJSON,
		execution.StartedAt, execution.CompletedAt, execution.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// GetExecution returns an execution by its ID.
func (s *Store) GetExecution(ctx context.Context, id uuid.UUID) (*store.Execution, error) {
	query := "SELECT " + executionColumns + " FROM executions WHERE id = $1"

	execution, err := scanExecution(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution %s: %w", id, err)
	}
	return execution, nil
}

// ListExecutions returns the execution history of a playbook, oldest first.
func (s *Store) ListExecutions(ctx context.Context, playbookID uuid.UUID) ([]*store.Execution, error) {
	found, err := s.exists(ctx, s.db, "playbooks", playbookID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, store.ErrNotFound
	}

	query := "SELECT " + executionColumns + " FROM executions WHERE playbook_id = $1 ORDER BY created_at ASC, id ASC"
	rows, err := s.db.QueryContext(ctx, query, playbookID)
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}
	defer rows.Close()

	var executions []*store.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}
		executions = append(executions, e)
	}
	return executions, rows.Err()
}

func scanExecution(row rowScanner) (*store.Execution, error) {
	var e store.Execution
	var params, result, logs, errs []byte
	var startedAt, completedAt sql.NullTime
	var durationMS int64

	err := row.Scan(
		&e.ID, &e.PlaybookID, &e.ActionID, &e.ExecutorName, &e.Status, &params, &result,
		&logs, &errs, &startedAt, &completedAt, &durationMS, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if e.InputParameters, err = unmarshalMap(params); err != nil {
		return nil, fmt.Errorf("invalid input parameters: %w", err)
	}
	if e.OutputResult, err = unmarshalMap(result); err != nil {
		return nil, fmt.Errorf("invalid output result: %w", err)
	}
	if len(logs) > 0 {
		if err := json.Unmarshal(logs, &e.Logs); err != nil {
			return nil, fmt.Errorf("invalid logs: %w", err)
		}
	}
	if len(errs) > 0 {
		if err := json.Unmarshal(errs, &e.Errors); err != nil {
			return nil, fmt.Errorf("invalid errors: %w", err)
		}
	}
	e.StartedAt = nullTime(startedAt)
	e.CompletedAt = nullTime(completedAt)
	e.Duration = time.Duration(durationMS) * time.Millisecond

	return &e, nil
}

func marshalLines(logs, errs []string) ([]byte, []byte, error) {
	if logs == nil {
		logs = []string{}
	}
	if errs == nil {
		errs = []string{}
	}
	logsJSON, err := json.Marshal(logs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal logs: %w", err)
	}
	errorsJSON, err := json.Marshal(errs)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal errors: %w", err)
	}
	return logsJSON, errorsJSON, nil
}
