package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/dataset"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

const datasetColumns = `id, uid, name, description, size, status, columns, row_count, task_type, tags, format, validation_errors, uploaded_at`

// InsertDataset stores the dataset record together with its rows.
func (c *Client) InsertDataset(ctx context.Context, ds *dataset.EvaluationDataset, rows []dataset.Row) error {
	columnsJSON, _ := json.Marshal(ds.Columns)
	tagsJSON, _ := json.Marshal(ds.Tags)
	errorsJSON, _ := json.Marshal(ds.ValidationErrors)

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO datasets (`+datasetColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		ds.ID,
		ds.UID,
		ds.Name,
		ds.Description,
		ds.Size,
		string(ds.Status),
		string(columnsJSON),
		ds.Rows,
		ds.TaskType,
		string(tagsJSON),
		ds.Format,
		string(errorsJSON),
		ds.UploadedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert dataset: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO dataset_rows (dataset_id, row_index, data) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare row insert: %w", err)
	}
	defer stmt.Close()

	for i, row := range rows {
		data, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		if _, err := stmt.ExecContext(ctx, ds.ID, i, string(data)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit dataset: %w", err)
	}

	logger.Info("Dataset stored",
		zap.String("dataset_id", ds.ID),
		zap.String("name", ds.Name),
		zap.Int("rows", len(rows)),
		zap.String("status", string(ds.Status)),
	)
	return nil
}

// UpdateDataset rewrites the editable fields of a dataset record.
func (c *Client) UpdateDataset(ctx context.Context, ds *dataset.EvaluationDataset) error {
	tagsJSON, _ := json.Marshal(ds.Tags)
	errorsJSON, _ := json.Marshal(ds.ValidationErrors)

	res, err := c.db.ExecContext(ctx, `
		UPDATE datasets SET name = ?, description = ?, task_type = ?, tags = ?, status = ?, validation_errors = ?
		WHERE id = ?
	`, ds.Name, ds.Description, ds.TaskType, string(tagsJSON), string(ds.Status), string(errorsJSON), ds.ID)
	if err != nil {
		return fmt.Errorf("failed to update dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (c *Client) GetDataset(ctx context.Context, id string) (*dataset.EvaluationDataset, error) {
	row := c.db.QueryRowContext(ctx, `SELECT `+datasetColumns+` FROM datasets WHERE id = ?`, id)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset: %w", err)
	}
	return ds, nil
}

// ListDatasets returns datasets newest first.
func (c *Client) ListDatasets(ctx context.Context) ([]dataset.EvaluationDataset, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT `+datasetColumns+` FROM datasets ORDER BY uploaded_at DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list datasets: %w", err)
	}
	defer rows.Close()

	datasets := []dataset.EvaluationDataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		datasets = append(datasets, *ds)
	}
	return datasets, rows.Err()
}

func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM datasets WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dataset: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	logger.Info("Dataset deleted", zap.String("dataset_id", id))
	return nil
}

// GetDatasetRows returns rows in upload order; limit <= 0 returns all.
func (c *Client) GetDatasetRows(ctx context.Context, id string, limit int) ([]dataset.Row, error) {
	query := `SELECT data FROM dataset_rows WHERE dataset_id = ? ORDER BY row_index`
	args := []any{id}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get dataset rows: %w", err)
	}
	defer rows.Close()

	var out []dataset.Row
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		var r dataset.Row
		if err := json.Unmarshal([]byte(data), &r); err != nil {
			return nil, fmt.Errorf("failed to decode row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(s scanner) (*dataset.EvaluationDataset, error) {
	var (
		ds                            dataset.EvaluationDataset
		status                        string
		description, taskType, format sql.NullString
		columnsJSON                   string
		tagsJSON, errorsJSON          sql.NullString
		uploadedAt                    int64
	)

	err := s.Scan(
		&ds.ID,
		&ds.UID,
		&ds.Name,
		&description,
		&ds.Size,
		&status,
		&columnsJSON,
		&ds.Rows,
		&taskType,
		&tagsJSON,
		&format,
		&errorsJSON,
		&uploadedAt,
	)
	if err != nil {
		return nil, err
	}

	ds.Status = dataset.Status(status)
	ds.Description = description.String
	ds.TaskType = taskType.String
	ds.Format = format.String
	ds.UploadedAt = time.Unix(uploadedAt, 0).UTC()
	json.Unmarshal([]byte(columnsJSON), &ds.Columns)
	if tagsJSON.Valid {
		json.Unmarshal([]byte(tagsJSON.String), &ds.Tags)
	}
	if errorsJSON.Valid {
		json.Unmarshal([]byte(errorsJSON.String), &ds.ValidationErrors)
	}

	return &ds, nil
}
