package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

var (
	ErrUnknownKind  = model.ErrUnknownNotifyKind
	ErrNoRecipients = errors.New("nobody is waiting on this transfer")
)

// RateLimitError is returned when a resend is refused by the limiter.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many resends, retry in %s", e.RetryAfter.Round(time.Second))
}

// Service works out who a transfer is waiting on and notifies them.
type Service struct {
	db      *sql.DB
	pub     Publisher
	limiter Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// NewService returns a Service. A nil limiter disables rate limiting.
func NewService(db *sql.DB, pub Publisher, limiter Limiter, logger *slog.Logger) *Service {
	if limiter == nil {
		limiter = NewMemoryLimiter(0, 0)
	}
	return &Service{db: db, pub: pub, limiter: limiter, logger: logger, now: time.Now}
}

// Resend notifies whoever the transfer is waiting on: managers while it
// awaits approval, new owners of unaccepted items once approved.
func (s *Service) Resend(ctx context.Context, transferID int64, kind, sentBy string) (*model.Notification, error) {
	if !model.ValidNotifyKind(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	t, err := store.GetTransfer(ctx, s.db, transferID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, store.ErrNotFound
	}

	recipients, err := s.recipients(ctx, t, kind)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	ok, retryAfter, err := s.limiter.Allow(ctx, fmt.Sprintf("%d:%s", transferID, kind))
	if err != nil {
		// A broken limiter must not stop notifications.
		s.logger.Warn("rate limiter unavailable", "error", err)
	} else if !ok {
		return nil, &RateLimitError{RetryAfter: retryAfter}
	}

	msg := s.message(t, kind, recipients, sentBy)
	if err := s.send(ctx, msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Remind sends one acceptance reminder per transfer for items that are
// still waiting on their new owners. It bypasses the resend limiter.
func (s *Service) Remind(ctx context.Context, items []model.TransferItem) (int, error) {
	byTransfer := make(map[int64][]string)
	var order []int64
	for _, it := range items {
		owner := it.NewOwnerID()
		if owner == "" || it.Accepted() {
			continue
		}
		if _, ok := byTransfer[it.TransferID]; !ok {
			order = append(order, it.TransferID)
		}
		byTransfer[it.TransferID] = appendUnique(byTransfer[it.TransferID], owner)
	}

	sent := 0
	for _, id := range order {
		t, err := store.GetTransfer(ctx, s.db, id)
		if err != nil {
			return sent, err
		}
		if t == nil {
			continue
		}
		msg := s.message(t, model.NotifyAcceptance, byTransfer[id], "system")
		msg.Reminder = true
		if err := s.send(ctx, msg); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Service) message(t *model.Transfer, kind string, recipients []string, sentBy string) model.Notification {
	sort.Strings(recipients)
	return model.Notification{
		ID:         uuid.NewString(),
		Kind:       kind,
		TransferID: t.ID,
		RequestNo:  t.RequestNo,
		Recipients: recipients,
		SentBy:     sentBy,
		CreatedAt:  s.now(),
	}
}

func (s *Service) send(ctx context.Context, msg model.Notification) error {
	if err := s.pub.Publish(ctx, msg); err != nil {
		return fmt.Errorf("publishing notification: %w", err)
	}
	err := store.RecordNotification(ctx, s.db, store.Notification{
		ID:         msg.ID,
		Kind:       msg.Kind,
		TransferID: msg.TransferID,
		Recipients: msg.Recipients,
		SentBy:     msg.SentBy,
		SentAt:     msg.CreatedAt,
	})
	if err != nil {
		return err
	}
	s.logger.Info("notification sent", "kind", msg.Kind, "transfer", msg.TransferID,
		"recipients", len(msg.Recipients), "reminder", msg.Reminder)
	return nil
}

func (s *Service) recipients(ctx context.Context, t *model.Transfer, kind string) ([]string, error) {
	var out []string
	switch kind {
	case model.NotifyApproval:
		if t.ApprovalStatus != model.ApprovalPending {
			return nil, nil
		}
		managers, err := store.ListUsers(ctx, s.db, model.RoleManager)
		if err != nil {
			return nil, err
		}
		for _, u := range managers {
			if u.Username != t.TransferBy {
				out = appendUnique(out, u.Username)
			}
		}
	case model.NotifyAcceptance:
		if t.ApprovalStatus != model.ApprovalApproved {
			return nil, nil
		}
		for _, it := range t.Items {
			if owner := it.NewOwnerID(); owner != "" && !it.Accepted() {
				out = appendUnique(out, owner)
			}
		}
	}
	return out, nil
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
