package reminder

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/erazemk/assetflow/internal/db"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/store"
)

type fakeReminder struct {
	calls [][]model.TransferItem
}

func (f *fakeReminder) Remind(_ context.Context, items []model.TransferItem) (int, error) {
	f.calls = append(f.calls, items)
	return 1, nil
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestRemindPendingAcceptance(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)

	typ, _ := store.CreateAssetType(ctx, database, "Phone")
	asset, err := store.CreateAsset(ctx, database, "PH-1", typ.ID, "", "", "000101")
	if err != nil {
		t.Fatalf("CreateAsset: %v", err)
	}
	approvedAt := time.Date(2026, 5, 1, 9, 0, 0, 0, time.Local)
	tr, err := store.CreateTransfer(ctx, database, "000101", "", []store.NewTransferItem{{AssetID: asset.ID, NewOwner: "000202"}}, approvedAt)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if _, err := store.DecideTransfer(ctx, database, tr.ID, model.ApprovalApproved, "000303", "", approvedAt); err != nil {
		t.Fatalf("DecideTransfer: %v", err)
	}

	fake := &fakeReminder{}
	jobs := NewJobs(database, fake, 48*time.Hour, discard)

	jobs.now = func() time.Time { return approvedAt.Add(24 * time.Hour) }
	jobs.RemindPendingAcceptance()
	if len(fake.calls) != 0 {
		t.Fatalf("expected no reminder within the grace period, got %d", len(fake.calls))
	}

	jobs.now = func() time.Time { return approvedAt.Add(72 * time.Hour) }
	jobs.RemindPendingAcceptance()
	if len(fake.calls) != 1 || len(fake.calls[0]) != 1 || fake.calls[0][0].NewOwnerID() != "000202" {
		t.Errorf("expected one reminder for 000202, got %+v", fake.calls)
	}
}

func TestPurgeExpiredTokens(t *testing.T) {
	ctx := context.Background()
	database := db.NewTestDB(t)
	now := time.Now()

	if err := store.RevokeToken(ctx, database, "old", now.Add(-time.Hour)); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if err := store.RevokeToken(ctx, database, "live", now.Add(time.Hour)); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	NewJobs(database, &fakeReminder{}, time.Hour, discard).PurgeExpiredTokens()

	if revoked, _ := store.IsTokenRevoked(ctx, database, "old"); revoked {
		t.Error("expected expired token to be purged")
	}
	if revoked, _ := store.IsTokenRevoked(ctx, database, "live"); !revoked {
		t.Error("expected live token to stay revoked")
	}
}

func TestSchedulerRejectsBadSchedule(t *testing.T) {
	s := NewScheduler(NewJobs(nil, &fakeReminder{}, time.Hour, discard), "not a schedule", discard)
	if err := s.Start(); err == nil {
		s.Stop()
		t.Error("expected invalid schedule to fail")
	}
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(NewJobs(nil, &fakeReminder{}, time.Hour, discard), "", discard)
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	<-s.Stop().Done()
}
