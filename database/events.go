package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/blnkfinance/regpay/model"
)

// AppendEvent appends an entry to the event tracker. Entries are never updated.
func (d Datasource) AppendEvent(ctx context.Context, event *model.EventTracking) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	err := d.Conn.QueryRowContext(ctx, `
		INSERT INTO regpay.event_tracking (key_id, event_type, status_code, message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, event.KeyID, event.Type, event.StatusCode, nullString(event.Message), event.CreatedAt).Scan(&event.ID)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to append event", err)
	}
	return nil
}

// GetEvents lists the entries recorded against keyID, oldest first.
func (d Datasource) GetEvents(ctx context.Context, keyID string) ([]model.EventTracking, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, key_id, event_type, status_code, message, created_at
		FROM regpay.event_tracking
		WHERE key_id = $1
		ORDER BY id
	`, keyID)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve events", err)
	}
	defer rows.Close()

	events := []model.EventTracking{}
	for rows.Next() {
		event := model.EventTracking{}
		var statusCode sql.NullInt64
		var message sql.NullString
		if err := rows.Scan(&event.ID, &event.KeyID, &event.Type, &statusCode, &message, &event.CreatedAt); err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan event", err)
		}
		event.StatusCode = int(statusCode.Int64)
		event.Message = message.String
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over events", err)
	}
	return events, nil
}

// EventExists reports whether an entry of eventType was recorded for keyID.
func (d Datasource) EventExists(ctx context.Context, keyID, eventType string) (bool, error) {
	var exists bool
	err := d.Conn.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM regpay.event_tracking WHERE key_id = $1 AND event_type = $2
		)
	`, keyID, eventType).Scan(&exists)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to check event", err)
	}
	return exists, nil
}
