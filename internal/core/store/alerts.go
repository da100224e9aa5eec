package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// AlertRecord is a delivered or attempted operator alert.
type AlertRecord struct {
	ID        int64     `json:"id"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordAlert appends an alert to the history table.
func (s *Store) RecordAlert(ctx context.Context, subject, body string, at time.Time) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	subject = strings.TrimSpace(subject)
	if subject == "" {
		return errors.New("alert subject is required")
	}
	if at.IsZero() {
		at = time.Now()
	}

	if _, err := s.DB.ExecContext(ctx, `
		INSERT INTO alerts (subject, body, created_at)
		VALUES (?, ?, ?)
	`, subject, body, at.UTC().UnixMilli()); err != nil {
		return fmt.Errorf("store alert: %w", err)
	}
	return nil
}

// ListAlerts returns the newest alerts first. limit <= 0 returns all.
func (s *Store) ListAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	query := `
		SELECT id, subject, body, created_at
		FROM alerts
		ORDER BY created_at DESC, id DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	records := []AlertRecord{}
	for rows.Next() {
		var (
			record    AlertRecord
			createdAt int64
		)
		if err := rows.Scan(&record.ID, &record.Subject, &record.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan alerts: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	return records, nil
}

// PruneAlerts deletes alerts older than cutoff.
func (s *Store) PruneAlerts(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, cutoff.UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return affected, nil
}
