package store

import (
	"testing"
	"time"
)

func TestRecordAndListNotifications(t *testing.T) {
	f := newFixture(t)
	tr := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})

	first := Notification{ID: "n-1", Kind: "approval", TransferID: tr.ID, Recipients: []string{"000303"}, SentBy: "000101", SentAt: testNow}
	second := Notification{ID: "n-2", Kind: "acceptance", TransferID: tr.ID, Recipients: []string{"000202", "000303"}, SentBy: "000101", SentAt: testNow.Add(time.Minute)}
	for _, n := range []Notification{first, second} {
		if err := RecordNotification(f.ctx, f.db, n); err != nil {
			t.Fatalf("RecordNotification: %v", err)
		}
	}

	got, err := ListNotifications(f.ctx, f.db, tr.ID)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if got[0].ID != "n-2" || len(got[0].Recipients) != 2 {
		t.Errorf("expected newest first with 2 recipients, got %+v", got[0])
	}

	none, err := ListNotifications(f.ctx, f.db, tr.ID+1)
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected no notifications, got %d", len(none))
	}
}
