package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/liliang-cn/lexrag/internal/domain"
)

// SendLogRepository handles send log persistence
type SendLogRepository struct {
	db *DB
}

// NewSendLogRepository creates a new send log repository
func NewSendLogRepository(db *DB) *SendLogRepository {
	return &SendLogRepository{db: db}
}

// RecordSend stores the outcome of one send
func (r *SendLogRepository) RecordSend(ctx context.Context, rec *domain.SendRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO send_log (id, session_id, message_id, strategy, phase, error_kind,
			tokens, source_count, skipped, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, nullString(rec.SessionID), nullString(rec.MessageID), nullString(string(rec.Strategy)),
		string(rec.Phase), nullString(string(rec.ErrorKind)),
		rec.Tokens, rec.SourceCount, rec.Skipped, rec.StartedAt.UTC(), rec.FinishedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert send record: %w", err)
	}
	return nil
}

// Get retrieves a send record by ID
func (r *SendLogRepository) Get(ctx context.Context, id string) (*domain.SendRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, session_id, message_id, strategy, phase, error_kind,
			tokens, source_count, skipped, started_at, finished_at
		FROM send_log WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("send record %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListRecent returns up to limit records, newest first
func (r *SendLogRepository) ListRecent(ctx context.Context, limit int) ([]*domain.SendRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, session_id, message_id, strategy, phase, error_kind,
			tokens, source_count, skipped, started_at, finished_at
		FROM send_log
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.SendRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CountByPhase returns the number of sends per final phase
func (r *SendLogRepository) CountByPhase(ctx context.Context) (map[domain.Phase]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT phase, COUNT(*) FROM send_log GROUP BY phase`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.Phase]int)
	for rows.Next() {
		var (
			phase string
			n     int
		)
		if err := rows.Scan(&phase, &n); err != nil {
			return nil, err
		}
		counts[domain.Phase(phase)] = n
	}

	return counts, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*domain.SendRecord, error) {
	rec := &domain.SendRecord{}
	var sessionID, messageID, strategy, errorKind sql.NullString
	var phase string

	if err := s.Scan(&rec.ID, &sessionID, &messageID, &strategy, &phase, &errorKind,
		&rec.Tokens, &rec.SourceCount, &rec.Skipped, &rec.StartedAt, &rec.FinishedAt); err != nil {
		return nil, err
	}

	rec.SessionID = sessionID.String
	rec.MessageID = messageID.String
	rec.Strategy = domain.Strategy(strategy.String)
	rec.Phase = domain.Phase(phase)
	rec.ErrorKind = domain.ErrorKind(errorKind.String)
	return rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
