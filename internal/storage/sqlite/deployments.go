package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/storage/models"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

// DefaultDeployments is the catalog seeded into an empty database.
var DefaultDeployments = []models.Deployment{
	{ID: "gpt-4o", Name: "GPT-4o", Model: "gpt-4o", Provider: "openai", Description: "OpenAI flagship multimodal model", Status: "active"},
	{ID: "gpt-4o-mini", Name: "GPT-4o mini", Model: "gpt-4o-mini", Provider: "openai", Description: "Small, low latency OpenAI model", Status: "active"},
	{ID: "gpt-35-turbo", Name: "GPT-3.5 Turbo", Model: "gpt-3.5-turbo", Provider: "openai", Description: "Legacy chat model", Status: "active"},
	{ID: "llama-3-8b", Name: "Llama 3 8B Instruct", Model: "llama3:8b", Provider: "ollama", Description: "Self-hosted Llama 3 through an OpenAI compatible endpoint", Status: "active"},
}

// SeedDeployments inserts deployments that are not present yet.
func (c *Client) SeedDeployments(ctx context.Context, deployments []models.Deployment) error {
	now := time.Now().Unix()
	for _, d := range deployments {
		_, err := c.db.ExecContext(ctx, `
			INSERT OR IGNORE INTO deployments (id, name, model, provider, description, status, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, d.ID, d.Name, d.Model, d.Provider, d.Description, d.Status, now)
		if err != nil {
			return fmt.Errorf("failed to seed deployment %s: %w", d.ID, err)
		}
	}

	logger.Debug("Deployments seeded", zap.Int("count", len(deployments)))
	return nil
}

func (c *Client) ListDeployments(ctx context.Context) ([]models.Deployment, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, name, model, provider, description, status, created_at
		FROM deployments ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}
	defer rows.Close()

	deployments := []models.Deployment{}
	for rows.Next() {
		d, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		deployments = append(deployments, *d)
	}
	return deployments, rows.Err()
}

func (c *Client) GetDeployment(ctx context.Context, id string) (*models.Deployment, error) {
	row := c.db.QueryRowContext(ctx, `
		SELECT id, name, model, provider, description, status, created_at
		FROM deployments WHERE id = ?
	`, id)
	d, err := scanDeployment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return d, nil
}

func scanDeployment(s scanner) (*models.Deployment, error) {
	var (
		d           models.Deployment
		description sql.NullString
		createdAt   int64
	)
	if err := s.Scan(&d.ID, &d.Name, &d.Model, &d.Provider, &description, &d.Status, &createdAt); err != nil {
		return nil, err
	}
	d.Description = description.String
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &d, nil
}
