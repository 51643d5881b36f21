package web

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erazemk/assetflow/internal/attachment"
	"github.com/erazemk/assetflow/internal/auth"
	"github.com/erazemk/assetflow/internal/client"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/notify"
	"github.com/erazemk/assetflow/internal/store"
)

// backend serves the list and form controllers straight from the store,
// acting as the signed in user.
type backend struct {
	db       *sql.DB
	notifier *notify.Service
	claims   *auth.Claims
	maxBytes int64
	now      func() time.Time
}

func (b *backend) ListInitiated(ctx context.Context, username string) ([]model.Transfer, error) {
	return store.ListTransfers(ctx, b.db, store.TransferFilter{Initiator: username})
}

func (b *backend) ListIncoming(ctx context.Context, username string) ([]model.Transfer, error) {
	return store.ListTransfers(ctx, b.db, store.TransferFilter{NewOwner: username})
}

func (b *backend) Resend(ctx context.Context, transferID int64, kind string) (*model.Notification, error) {
	return b.notifier.Resend(ctx, transferID, kind, b.claims.Username)
}

func (b *backend) GetItem(ctx context.Context, transferID, itemID int64) (*model.TransferItem, error) {
	t, err := store.GetTransfer(ctx, b.db, transferID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, store.ErrNotFound
	}
	for i := range t.Items {
		it := &t.Items[i]
		if it.ID != itemID {
			continue
		}
		if !b.canView(t, it) {
			return nil, store.ErrNotFound
		}
		return it, nil
	}
	return nil, store.ErrNotFound
}

func (b *backend) Checklist(ctx context.Context, typeID int64) ([]model.ChecklistItem, error) {
	return store.ListChecklist(ctx, b.db, typeID)
}

func (b *backend) SubmitAcceptance(ctx context.Context, itemID int64, sub client.Submission) (*model.TransferItem, error) {
	ids, err := model.DecodeChecklistIDs(sub.ChecklistItems)
	if err != nil {
		return nil, err
	}

	var att *store.Attachment
	if sub.Attachment != nil && len(sub.Attachment.Data) > 0 {
		res, err := attachment.Process(bytes.NewReader(sub.Attachment.Data), sub.Attachment.Name, b.maxBytes)
		if err != nil {
			return nil, fmt.Errorf("attachment: %w", err)
		}
		att = &store.Attachment{Name: res.Name, MIME: res.MIME, Data: res.Data}
	}

	return store.AcceptItem(ctx, b.db, store.Acceptance{
		ItemID:       itemID,
		AcceptedBy:   b.claims.Username,
		Date:         sub.AcceptanceDate,
		ChecklistIDs: ids,
		Remarks:      sub.Remarks,
		Attachment:   att,
	}, b.now())
}

// visible reports whether item's transfer may be seen by the user.
func (b *backend) visible(ctx context.Context, item *model.TransferItem) bool {
	t, err := store.GetTransfer(ctx, b.db, item.TransferID)
	if err != nil || t == nil {
		return false
	}
	return b.canView(t, item)
}

func (b *backend) canView(t *model.Transfer, item *model.TransferItem) bool {
	return model.RoleAtLeast(b.claims.Role, model.RoleManager) || t.Involves(b.claims.Username, item)
}
