package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fyrsmithlabs/contractd/internal/clauses"
	"go.uber.org/zap"
)

// SaveClauses replaces the stored clauses of set.IngestionID.
func (s *Store) SaveClauses(ctx context.Context, set *clauses.Set) error {
	if set == nil || set.IngestionID == "" {
		return fmt.Errorf("clause set requires an ingestion id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clauses WHERE ingestion_id = ?`, set.IngestionID); err != nil {
		return fmt.Errorf("failed to clear clauses: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO clauses (ingestion_id, position, clause_id, category, heading, text, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare clause insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range set.Clauses {
		if _, err := stmt.ExecContext(ctx, set.IngestionID, i, c.ID, c.Category, nullString(c.Heading), c.Text, set.Source); err != nil {
			return fmt.Errorf("failed to insert clause %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit clauses: %w", err)
	}
	s.logger.Debug(ctx, "saved clauses",
		zap.Int("count", len(set.Clauses)),
		zap.String("source", set.Source))
	return nil
}

// GetClauses returns the stored clauses for an ingestion with Source set
// to clauses.SourceStore. An ingestion with no clauses yields ErrNotFound.
func (s *Store) GetClauses(ctx context.Context, ingestionID string) (*clauses.Set, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT clause_id, category, heading, text
		FROM clauses WHERE ingestion_id = ?
		ORDER BY position
	`, ingestionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query clauses: %w", err)
	}
	defer rows.Close()

	set := &clauses.Set{IngestionID: ingestionID, Source: clauses.SourceStore}
	for rows.Next() {
		var (
			c       clauses.Clause
			heading sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Category, &heading, &c.Text); err != nil {
			return nil, fmt.Errorf("failed to scan clause: %w", err)
		}
		c.Heading = heading.String
		set.Clauses = append(set.Clauses, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read clauses: %w", err)
	}
	if len(set.Clauses) == 0 {
		return nil, fmt.Errorf("clauses for %s: %w", ingestionID, ErrNotFound)
	}
	return set, nil
}
