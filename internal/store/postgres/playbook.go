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
	"github.com/lib/pq"
)

// CreatePlaybook inserts the playbook row and its ordered actions in one transaction.
func (s *Store) CreatePlaybook(ctx context.Context, playbook *store.Playbook) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO playbooks (id, owner_id, title, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, playbook.ID, playbook.OwnerID, playbook.Title, playbook.Status, playbook.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert playbook %s: %w", playbook.ID, err)
	}

	for i, action := range playbook.Actions {
		params := action.Parameters
		if params == nil {
			params = map[string]any{}
		}
		paramsJSON, err := json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal parameters of %s: %w", action.ActionID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO playbook_actions (playbook_id, action_id, position, type, parameters, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, playbook.ID, action.ActionID, i, action.Type, paramsJSON, action.Status)
		if err != nil {
			return fmt.Errorf("failed to insert action %s: %w", action.ActionID, err)
		}
	}

	return tx.Commit()
}

// GetPlaybook loads a playbook and its actions ordered by position.
func (s *Store) GetPlaybook(ctx context.Context, id uuid.UUID) (*store.Playbook, error) {
	var pb store.Playbook
	var startedAt, completedAt sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT id, owner_id, title, status, created_at, started_at, completed_at
		FROM playbooks WHERE id = $1
	`, id).Scan(&pb.ID, &pb.OwnerID, &pb.Title, &pb.Status, &pb.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get playbook %s: %w", id, err)
	}
	pb.StartedAt = nullTime(startedAt)
	pb.CompletedAt = nullTime(completedAt)

	rows, err := s.db.QueryContext(ctx, `
		SELECT action_id, position, type, parameters, status, result, error, execution_id
		FROM playbook_actions
		WHERE playbook_id = $1
		ORDER BY position ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query actions of %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var a store.PlaybookAction
		var params, result []byte
		var errMsg sql.NullString
		var execID uuid.NullUUID

		if err := rows.Scan(&a.ActionID, &a.Position, &a.Type, &params, &a.Status, &result, &errMsg, &execID); err != nil {
			return nil, fmt.Errorf("failed to scan action: %w", err)
		}
		if a.Parameters, err = unmarshalMap(params); err != nil {
			return nil, fmt.Errorf("invalid parameters of %s: %w", a.ActionID, err)
		}
		if a.Result, err = unmarshalMap(result); err != nil {
			return nil, fmt.Errorf("invalid result of %s: %w", a.ActionID, err)
		}
		a.Error = nullString(errMsg)
		if execID.Valid {
			v := execID.UUID
			a.ExecutionID = &v
		}
		pb.Actions = append(pb.Actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &pb, nil
}

// TransitionPlaybook changes the playbook status if it currently is one of from.
func (s *Store) TransitionPlaybook(ctx context.Context, id uuid.UUID, from []store.PlaybookStatus, to store.PlaybookStatus, at time.Time) error {
	fromStrings := make([]string, len(from))
	for i, st := range from {
		fromStrings[i] = string(st)
	}

	query := `UPDATE playbooks SET status = $2 WHERE id = $1 AND status = ANY($3)`
	args := []interface{}{id, to, pq.Array(fromStrings)}
	switch {
	case to == store.PlaybookStatusActive:
		query = `UPDATE playbooks SET status = $2, started_at = $4, completed_at = NULL WHERE id = $1 AND status = ANY($3)`
		args = append(args, at)
	case to.IsFinished():
		query = `UPDATE playbooks SET status = $2, completed_at = $4 WHERE id = $1 AND status = ANY($3)`
		args = append(args, at)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to transition playbook %s: %w", id, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}

	found, err := s.exists(ctx, s.db, "playbooks", id)
	if err != nil {
		return err
	}
	if !found {
		return store.ErrNotFound
	}
	return store.ErrInvalidTransition
}

// UpdatePlaybookAction stores the latest outcome of one action.
func (s *Store) UpdatePlaybookAction(ctx context.Context, playbookID uuid.UUID, action store.PlaybookAction) error {
	resultJSON, err := marshalMap(action.Result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE playbook_actions
		SET status = $3, result = $4, error = $5, execution_id = $6
		WHERE playbook_id = $1 AND action_id = $2
	`, playbookID, action.ActionID, action.Status, resultJSON, action.Error, action.ExecutionID)
	if err != nil {
		return fmt.Errorf("failed to update action %s: %w", action.ActionID, err)
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
