package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
)

func (s *Store) InsertEvent(ctx context.Context, event model.ActivityEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO activity_logs (id, user_id, kind, ip, user_agent, device, browser, os,
			location, success, failure_reason, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, event.ID, event.UserID, event.Kind, event.IP, event.UserAgent, event.Device,
		event.Browser, event.OS, event.Location, event.Success, event.FailureReason,
		event.Metadata, event.CreatedAt)
	return err
}

const eventColumns = `id, user_id, kind, ip, user_agent, device, browser, os,
	location, success, failure_reason, metadata, created_at`

func scanEvent(row rowScanner) (model.ActivityEvent, error) {
	var event model.ActivityEvent
	err := row.Scan(&event.ID, &event.UserID, &event.Kind, &event.IP, &event.UserAgent,
		&event.Device, &event.Browser, &event.OS, &event.Location, &event.Success,
		&event.FailureReason, &event.Metadata, &event.CreatedAt)
	return event, err
}

func (s *Store) HistoryFor(ctx context.Context, userID uuid.UUID, query model.HistoryQuery) ([]model.ActivityEvent, error) {
	limit := query.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	sql := `SELECT ` + eventColumns + ` FROM activity_logs WHERE user_id = $1`
	args := []any{userID}
	if query.Kind != "" {
		args = append(args, query.Kind)
		sql += ` AND kind = $2`
	}
	if query.Since != nil {
		args = append(args, *query.Since)
		sql += ` AND created_at >= $` + itoa(len(args))
	}
	if query.Until != nil {
		args = append(args, *query.Until)
		sql += ` AND created_at <= $` + itoa(len(args))
	}
	args = append(args, limit)
	sql += ` ORDER BY created_at DESC LIMIT $` + itoa(len(args))
	args = append(args, query.Offset)
	sql += ` OFFSET $` + itoa(len(args))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]model.ActivityEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (s *Store) CountFailures(ctx context.Context, ip string, userID *uuid.UUID, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM activity_logs
		WHERE kind = $1 AND created_at >= $2
			AND ($3 = '' OR ip = $3)
			AND ($4::uuid IS NULL OR user_id = $4)
	`, model.EventFailedLogin, since, ip, userID).Scan(&count)
	return count, err
}

func (s *Store) DistinctLoginIPs(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT ip FROM activity_logs
		WHERE user_id = $1 AND kind = $2 AND success = true AND created_at >= $3 AND ip <> ''
	`, userID, model.EventLogin, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanStrings(rows)
}

func (s *Store) LastLoginFromOtherIP(ctx context.Context, userID uuid.UUID, currentIP string) (model.ActivityEvent, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+eventColumns+` FROM activity_logs
		WHERE user_id = $1 AND kind = $2 AND success = true AND ip <> $3 AND ip <> ''
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, model.EventLogin, currentIP)
	event, err := scanEvent(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.ActivityEvent{}, model.ErrNotFound
		}
		return model.ActivityEvent{}, err
	}
	return event, nil
}

func (s *Store) FindOpenAlert(ctx context.Context, userID uuid.UUID, kind string, since time.Time) (model.Alert, error) {
	var alert model.Alert
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, kind, description, severity, activity_data, resolved, resolved_by, created_at, updated_at
		FROM security_alerts
		WHERE user_id = $1 AND kind = $2 AND resolved = false AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT 1
	`, userID, kind, since)
	err := row.Scan(&alert.ID, &alert.UserID, &alert.Kind, &alert.Description, &alert.Severity,
		&alert.ActivityData, &alert.Resolved, &alert.ResolvedBy, &alert.CreatedAt, &alert.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Alert{}, model.ErrNotFound
		}
		return model.Alert{}, err
	}
	return alert, nil
}

func (s *Store) InsertAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO security_alerts (id, user_id, kind, description, severity, activity_data,
			resolved, resolved_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, alert.ID, alert.UserID, alert.Kind, alert.Description, alert.Severity, alert.ActivityData,
		alert.Resolved, alert.ResolvedBy, alert.CreatedAt, alert.UpdatedAt)
	return err
}

func (s *Store) UpdateAlert(ctx context.Context, alert model.Alert) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE security_alerts
		SET description = $2, severity = $3, activity_data = $4, updated_at = $5
		WHERE id = $1
	`, alert.ID, alert.Description, alert.Severity, alert.ActivityData, alert.UpdatedAt)
	return err
}

func (s *Store) ListUnresolved(ctx context.Context, userID uuid.UUID) ([]model.Alert, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, kind, description, severity, activity_data, resolved, resolved_by, created_at, updated_at
		FROM security_alerts
		WHERE user_id = $1 AND resolved = false
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]model.Alert, 0)
	for rows.Next() {
		var alert model.Alert
		if err := rows.Scan(&alert.ID, &alert.UserID, &alert.Kind, &alert.Description, &alert.Severity,
			&alert.ActivityData, &alert.Resolved, &alert.ResolvedBy, &alert.CreatedAt, &alert.UpdatedAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *Store) ResolveAlert(ctx context.Context, alertID, resolvedBy uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE security_alerts
		SET resolved = true, resolved_by = $2, updated_at = now()
		WHERE id = $1 AND resolved = false
	`, alertID, resolvedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
