package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
)

const runColumns = `id, session_id, name, description, dataset_id, dataset_name, task_type, deployments, category_id, metrics, settings, status, processed, total, results, error, created_at, started_at, completed_at`

func (c *Client) InsertRun(ctx context.Context, run *models.EvaluationRun) error {
	deploymentsJSON, _ := json.Marshal(run.Deployments)
	metricsJSON, _ := json.Marshal(run.Metrics)
	settingsJSON, _ := json.Marshal(run.Settings)
	resultsJSON, _ := json.Marshal(run.Results)

	_, err := c.db.ExecContext(ctx, `
		INSERT INTO evaluation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.SessionID,
		run.Name,
		run.Description,
		run.DatasetID,
		run.DatasetName,
		run.TaskType,
		string(deploymentsJSON),
		run.CategoryID,
		string(metricsJSON),
		string(settingsJSON),
		run.Status,
		run.Processed,
		run.Total,
		string(resultsJSON),
		run.Error,
		run.CreatedAt.Unix(),
		unixOrNil(run.StartedAt),
		unixOrNil(run.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// UpdateRun stores progress, status and results of a run.
func (c *Client) UpdateRun(ctx context.Context, run *models.EvaluationRun) error {
	resultsJSON, _ := json.Marshal(run.Results)

	res, err := c.db.ExecContext(ctx, `
		UPDATE evaluation_runs
		SET status = ?, processed = ?, total = ?, results = ?, error = ?, started_at = ?, completed_at = ?
		WHERE id = ?
	`,
		run.Status,
		run.Processed,
		run.Total,
		string(resultsJSON),
		run.Error,
		unixOrNil(run.StartedAt),
		unixOrNil(run.CompletedAt),
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) GetRun(ctx context.Context, id string) (*models.EvaluationRun, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM evaluation_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

// ListRuns returns the most recent runs first.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]models.EvaluationRun, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT `+runColumns+` FROM evaluation_runs
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []models.EvaluationRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

func (c *Client) RunSummary(ctx context.Context) (*models.RunSummary, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM evaluation_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize runs: %w", err)
	}
	defer rows.Close()

	summary := &models.RunSummary{}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		summary.Total += count
		switch status {
		case models.RunQueued:
			summary.Queued = count
		case models.RunRunning:
			summary.Running = count
		case models.RunCompleted:
			summary.Completed = count
		case models.RunFailed:
			summary.Failed = count
		}
	}
	return summary, rows.Err()
}

// FailInterruptedRuns marks runs left queued or running by a previous
// process as failed. Returns the number of runs touched.
func (c *Client) FailInterruptedRuns(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `
		UPDATE evaluation_runs SET status = ?, error = ?, completed_at = ?
		WHERE status IN (?, ?)
	`, models.RunFailed, "interrupted by restart", time.Now().Unix(), models.RunQueued, models.RunRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted runs: %w", err)
	}
	return res.RowsAffected()
}

func scanRun(s scanner) (*models.EvaluationRun, error) {
	var (
		run                                         models.EvaluationRun
		sessionID, description, datasetName         sql.NullString
		taskType, categoryID, resultsJSON, errorMsg sql.NullString
		deploymentsJSON, metricsJSON, settingsJSON  string
		createdAt                                   int64
		startedAt, completedAt                      sql.NullInt64
	)

	err := s.Scan(
		&run.ID,
		&sessionID,
		&run.Name,
		&description,
		&run.DatasetID,
		&datasetName,
		&taskType,
		&deploymentsJSON,
		&categoryID,
		&metricsJSON,
		&settingsJSON,
		&run.Status,
		&run.Processed,
		&run.Total,
		&resultsJSON,
		&errorMsg,
		&createdAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.SessionID = sessionID.String
	run.Description = description.String
	run.DatasetName = datasetName.String
	run.TaskType = taskType.String
	run.CategoryID = categoryID.String
	run.Error = errorMsg.String
	run.CreatedAt = time.Unix(createdAt, 0).UTC()
	run.StartedAt = timeOrNil(startedAt)
	run.CompletedAt = timeOrNil(completedAt)

	json.Unmarshal([]byte(deploymentsJSON), &run.Deployments)
	json.Unmarshal([]byte(metricsJSON), &run.Metrics)
	json.Unmarshal([]byte(settingsJSON), &run.Settings)
	if resultsJSON.Valid {
		json.Unmarshal([]byte(resultsJSON.String), &run.Results)
	}

	return &run, nil
}

func unixOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func timeOrNil(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0).UTC()
	return &t
}
