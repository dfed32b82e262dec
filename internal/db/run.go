package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/creatory/creatory/internal/creatory"
)

const runColumns = `id, workspace_id, template_id, conversation_id, status, input_json, output_json, created_by, started_at, ended_at, created_at`

// SaveRun writes a run and replaces its steps in one transaction. Steps keep
// their slice order through the seq column.
func (d *DB) SaveRun(ctx context.Context, r *creatory.WorkflowRun, steps []creatory.RunStep) error {
	return d.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO workflow_runs (`+runColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 ON CONFLICT (id) DO UPDATE SET
			   status = EXCLUDED.status,
			   output_json = EXCLUDED.output_json,
			   started_at = EXCLUDED.started_at,
			   ended_at = EXCLUDED.ended_at`,
			r.ID, r.WorkspaceID, r.TemplateID, r.ConversationID, string(r.Status),
			encodeJSON(r.Input), encodeJSON(r.Output), r.CreatedBy,
			r.StartedAt, r.EndedAt, r.CreatedAt,
		)
		if err != nil {
			return wrap("upsert run", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM workflow_run_steps WHERE run_id = $1`, r.ID); err != nil {
			return wrap("delete run steps", err)
		}
		for i, s := range steps {
			var errJSON any
			if s.Error != nil {
				errJSON = encodeJSON(s.Error)
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO workflow_run_steps (id, run_id, seq, node_key, status, attempt, input_json, output_json, error_json, started_at, ended_at, created_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
				s.ID, r.ID, i, s.NodeKey, string(s.Status), s.Attempt,
				encodeJSON(s.Input), encodeJSON(s.Output), errJSON,
				s.StartedAt, s.EndedAt, s.CreatedAt,
			)
			if err != nil {
				return wrap("insert run step", err)
			}
		}
		return nil
	})
}

// GetRun retrieves a run by ID.
func (d *DB) GetRun(ctx context.Context, id string) (*creatory.WorkflowRun, error) {
	r, err := scanRun(d.Pool.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs WHERE id = $1`, id))
	if err != nil {
		return nil, wrap("get run", err)
	}
	return r, nil
}

// ListTemplateRuns returns the runs of a template, newest first.
func (d *DB) ListTemplateRuns(ctx context.Context, templateID string, page creatory.Page) ([]*creatory.WorkflowRun, error) {
	page = clampPage(page)
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT `+runColumns+` FROM workflow_runs
		 WHERE template_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		templateID, page.Limit, page.Offset,
	)
	if err != nil {
		return nil, wrap("list runs", err)
	}
	defer rows.Close()

	var out []*creatory.WorkflowRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListRunSteps returns a run's steps in execution order.
func (d *DB) ListRunSteps(ctx context.Context, runID string) ([]creatory.RunStep, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, node_key, status, attempt, input_json, output_json, error_json, started_at, ended_at, created_at
		 FROM workflow_run_steps WHERE run_id = $1 ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, wrap("list run steps", err)
	}
	defer rows.Close()

	steps := []creatory.RunStep{}
	for rows.Next() {
		var (
			s                      creatory.RunStep
			status                 string
			input, output, errJSON []byte
			started, ended         sql.NullTime
		)
		if err := rows.Scan(&s.ID, &s.NodeKey, &status, &s.Attempt, &input, &output, &errJSON, &started, &ended, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan run step: %w", err)
		}
		s.RunID = runID
		s.Status = creatory.RunStatus(status)
		s.Input = decodeJSON(input)
		s.Output = decodeJSON(output)
		if errJSON != nil {
			s.Error = decodeJSON(errJSON)
		}
		if started.Valid {
			s.StartedAt = &started.Time
		}
		if ended.Valid {
			s.EndedAt = &ended.Time
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func scanRun(s scanner) (*creatory.WorkflowRun, error) {
	var (
		r              creatory.WorkflowRun
		conversation   sql.NullString
		status         string
		input, output  []byte
		started, ended sql.NullTime
	)
	err := s.Scan(&r.ID, &r.WorkspaceID, &r.TemplateID, &conversation, &status,
		&input, &output, &r.CreatedBy, &started, &ended, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if conversation.Valid {
		r.ConversationID = &conversation.String
	}
	r.Status = creatory.RunStatus(status)
	r.Input = decodeJSON(input)
	r.Output = decodeJSON(output)
	if started.Valid {
		r.StartedAt = &started.Time
	}
	if ended.Valid {
		r.EndedAt = &ended.Time
	}
	return &r, nil
}
