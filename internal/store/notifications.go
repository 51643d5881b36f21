package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Notification is a record of a notification sent about a transfer.
type Notification struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	TransferID int64     `json:"transfer_id"`
	Recipients []string  `json:"recipients"`
	SentBy     string    `json:"sent_by"`
	SentAt     time.Time `json:"sent_at"`
}

// RecordNotification stores a sent notification.
func RecordNotification(ctx context.Context, db *sql.DB, n Notification) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO notifications (id, kind, transfer_id, recipients, sent_by, sent_at) VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Kind, n.TransferID, strings.Join(n.Recipients, ","), n.SentBy, n.SentAt,
	)
	if err != nil {
		return fmt.Errorf("recording notification: %w", err)
	}
	return nil
}

// ListNotifications returns the notifications sent for a transfer, newest first.
func ListNotifications(ctx context.Context, db *sql.DB, transferID int64) ([]Notification, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, kind, transfer_id, recipients, sent_by, sent_at FROM notifications
		 WHERE transfer_id = ? ORDER BY sent_at DESC, rowid DESC`, transferID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var recipients string
		if err := rows.Scan(&n.ID, &n.Kind, &n.TransferID, &recipients, &n.SentBy, &n.SentAt); err != nil {
			return nil, fmt.Errorf("scanning notification: %w", err)
		}
		if recipients != "" {
			n.Recipients = strings.Split(recipients, ",")
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
