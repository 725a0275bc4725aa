package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nainovate/Evaluation-UI-sub000/internal/metadata"
	"github.com/nainovate/Evaluation-UI-sub000/pkg/logger"
)

func (c *Client) PutBlob(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO kv_store (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at
	`

	_, err := c.db.ExecContext(ctx, query, key, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}

	logger.Debug("Blob stored", zap.String("key", key), zap.Int("bytes", len(value)))
	return nil
}

func (c *Client) GetBlob(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM kv_store WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return []byte(value), nil
}

// MetadataBackend keeps the wizard record as one JSON blob under a fixed key.
// It is the local fallback behind the remote store.
type MetadataBackend struct {
	client *Client
	key    string
}

func NewMetadataBackend(client *Client, key string) *MetadataBackend {
	return &MetadataBackend{client: client, key: key}
}

func (b *MetadataBackend) Load(ctx context.Context) (*metadata.EvaluationMetadata, error) {
	data, err := b.client.GetBlob(ctx, b.key)
	if errors.Is(err, ErrNotFound) {
		return nil, metadata.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var md metadata.EvaluationMetadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("failed to decode local metadata: %w", err)
	}
	return &md, nil
}

func (b *MetadataBackend) Save(ctx context.Context, md *metadata.EvaluationMetadata) error {
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	return b.client.PutBlob(ctx, b.key, data)
}
