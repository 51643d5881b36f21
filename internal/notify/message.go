// Package notify sends transfer notifications to approvers and new owners.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/erazemk/assetflow/internal/model"
)

// Publisher delivers messages to whatever sends the emails.
type Publisher interface {
	Publish(ctx context.Context, msg model.Notification) error
	Close() error
}

// LogPublisher writes messages to a logger. It is used when no broker is
// configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher returns a LogPublisher writing to logger.
func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish logs msg.
func (p *LogPublisher) Publish(ctx context.Context, msg model.Notification) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "notification", "routing_key", msg.RoutingKey(), "body", string(body))
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
