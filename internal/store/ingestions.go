package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Ingestion is the local record of an uploaded contract.
type Ingestion struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	MIMEType     string    `json:"mimeType"`
	FileSize     int64     `json:"fileSize"`
	ContractType string    `json:"contractType,omitempty"`
	Status       string    `json:"status"`
	Error        string    `json:"error,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// SaveIngestion inserts or replaces an ingestion.
func (s *Store) SaveIngestion(ctx context.Context, ing *Ingestion) error {
	now := time.Now()
	if ing.CreatedAt.IsZero() {
		ing.CreatedAt = now
	}
	ing.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingestions (id, original_name, mime_type, file_size, contract_type, status, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			original_name = excluded.original_name,
			mime_type = excluded.mime_type,
			file_size = excluded.file_size,
			contract_type = excluded.contract_type,
			status = excluded.status,
			error = excluded.error,
			updated_at = excluded.updated_at
	`,
		ing.ID,
		ing.OriginalName,
		ing.MIMEType,
		ing.FileSize,
		nullString(ing.ContractType),
		ing.Status,
		nullString(ing.Error),
		formatTime(ing.CreatedAt),
		formatTime(ing.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save ingestion %s: %w", ing.ID, err)
	}
	s.logger.Debug(ctx, "saved ingestion", zap.String("status", ing.Status))
	return nil
}

// UpdateIngestionStatus sets the status and error message of an ingestion.
func (s *Store) UpdateIngestionStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingestions SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, nullString(errMsg), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update ingestion %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("ingestion %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetIngestion returns the ingestion with id.
func (s *Store) GetIngestion(ctx context.Context, id string) (*Ingestion, error) {
	var (
		ing                  Ingestion
		contractType, errMsg sql.NullString
		created, updated     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, original_name, mime_type, file_size, contract_type, status, error, created_at, updated_at
		FROM ingestions WHERE id = ?
	`, id).Scan(&ing.ID, &ing.OriginalName, &ing.MIMEType, &ing.FileSize, &contractType, &ing.Status, &errMsg, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("ingestion %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get ingestion %s: %w", id, err)
	}
	ing.ContractType = contractType.String
	ing.Error = errMsg.String
	ing.CreatedAt = parseTime(created)
	ing.UpdatedAt = parseTime(updated)
	return &ing, nil
}
