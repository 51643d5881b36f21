package store

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/erazemk/assetflow/internal/model"
)

func (f *fixture) checklist(t *testing.T) (required1, optional, required2 *model.ChecklistItem) {
	t.Helper()
	var err error
	if required1, err = CreateChecklistItem(f.ctx, f.db, f.laptop.ID, "Charger", true); err != nil {
		t.Fatalf("CreateChecklistItem: %v", err)
	}
	if optional, err = CreateChecklistItem(f.ctx, f.db, f.laptop.ID, "Bag", false); err != nil {
		t.Fatalf("CreateChecklistItem: %v", err)
	}
	if required2, err = CreateChecklistItem(f.ctx, f.db, f.laptop.ID, "Power-on test", true); err != nil {
		t.Fatalf("CreateChecklistItem: %v", err)
	}
	return required1, optional, required2
}

func TestAcceptItem(t *testing.T) {
	f := newFixture(t)
	charger, bag, test := f.checklist(t)

	tr := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})
	f.approve(t, tr.ID)
	itemID := tr.Items[0].ID

	item, err := AcceptItem(f.ctx, f.db, Acceptance{
		ItemID:       itemID,
		AcceptedBy:   "000202",
		Date:         "2026-03-10 08:00:00",
		ChecklistIDs: []int64{test.ID, charger.ID, bag.ID},
		Remarks:      "all good",
		Attachment:   &Attachment{Name: "receipt.pdf", MIME: "application/pdf", Data: []byte("%PDF-1.4")},
	}, testNow)
	if err != nil {
		t.Fatalf("AcceptItem: %v", err)
	}

	if !item.Accepted() || item.AcceptanceDate != "2026-03-10 08:00:00" {
		t.Errorf("unexpected acceptance date %q", item.AcceptanceDate)
	}
	want := model.JoinChecklistIDs([]int64{charger.ID, bag.ID, test.ID})
	if item.AcceptanceChecklistItems != want {
		t.Errorf("expected checklist %q, got %q", want, item.AcceptanceChecklistItems)
	}
	if got := model.ParseChecklistIDs(item.AcceptanceChecklistItems); len(got) != 3 {
		t.Errorf("expected 3 checked ids, got %v", got)
	}
	if item.AcceptanceAttachments != AttachmentPath(itemID) {
		t.Errorf("expected attachment path, got %q", item.AcceptanceAttachments)
	}

	asset, err := GetAsset(f.ctx, f.db, f.notebook.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Owner == nil || asset.Owner.RamcoID != "000202" {
		t.Errorf("expected asset to move to 000202, got %+v", asset.Owner)
	}

	att, err := GetAcceptanceAttachment(f.ctx, f.db, itemID)
	if err != nil {
		t.Fatalf("GetAcceptanceAttachment: %v", err)
	}
	if att == nil || att.Name != "receipt.pdf" || !bytes.Equal(att.Data, []byte("%PDF-1.4")) {
		t.Errorf("unexpected attachment %+v", att)
	}

	_, err = AcceptItem(f.ctx, f.db, Acceptance{ItemID: itemID, AcceptedBy: "000202", ChecklistIDs: []int64{charger.ID, test.ID}}, testNow)
	if !errors.Is(err, ErrAlreadyAccepted) {
		t.Errorf("expected ErrAlreadyAccepted, got %v", err)
	}
}

func TestAcceptItemRules(t *testing.T) {
	f := newFixture(t)
	charger, bag, test := f.checklist(t)

	pending := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})
	approved := f.transfer(t, NewTransferItem{AssetID: f.monitor.ID, NewOwner: "000202"})
	f.approve(t, approved.ID)

	tests := []struct {
		name string
		acc  Acceptance
		want error
	}{
		{"missing item", Acceptance{ItemID: 999, AcceptedBy: "000202"}, ErrNotFound},
		{"not approved", Acceptance{ItemID: pending.Items[0].ID, AcceptedBy: "000202"}, ErrNotActionable},
		{"wrong user", Acceptance{ItemID: approved.Items[0].ID, AcceptedBy: "000303",
			ChecklistIDs: []int64{charger.ID, test.ID}}, ErrNotNewOwner},
		{"required missing", Acceptance{ItemID: approved.Items[0].ID, AcceptedBy: "000202",
			ChecklistIDs: []int64{charger.ID, bag.ID}}, ErrChecklistMissing},
		{"unknown id", Acceptance{ItemID: approved.Items[0].ID, AcceptedBy: "000202",
			ChecklistIDs: []int64{charger.ID, test.ID, 999}}, ErrChecklistUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := AcceptItem(f.ctx, f.db, tt.acc, testNow)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	asset, err := GetAsset(f.ctx, f.db, f.monitor.ID)
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.Owner.RamcoID != "000101" {
		t.Errorf("rejected acceptances must not move the asset, owner is %q", asset.Owner.RamcoID)
	}
}

func TestAcceptItemReportsMissingIDs(t *testing.T) {
	f := newFixture(t)
	charger, _, test := f.checklist(t)

	tr := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})
	f.approve(t, tr.ID)

	_, err := AcceptItem(f.ctx, f.db, Acceptance{ItemID: tr.Items[0].ID, AcceptedBy: "000202"}, testNow)
	if !errors.Is(err, ErrChecklistMissing) {
		t.Fatalf("expected ErrChecklistMissing, got %v", err)
	}
	if want := model.JoinChecklistIDs([]int64{charger.ID, test.ID}); !strings.HasSuffix(err.Error(), want) {
		t.Errorf("expected error to list %q, got %q", want, err.Error())
	}
}

func TestAcceptItemDefaultsInvalidDate(t *testing.T) {
	f := newFixture(t)

	tr := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})
	f.approve(t, tr.ID)

	item, err := AcceptItem(f.ctx, f.db, Acceptance{ItemID: tr.Items[0].ID, AcceptedBy: "000202", Date: "yesterday"}, testNow)
	if err != nil {
		t.Fatalf("AcceptItem: %v", err)
	}
	if item.AcceptanceDate != model.FormatDateTime(testNow) {
		t.Errorf("expected acceptance date to default to now, got %q", item.AcceptanceDate)
	}
	if item.AcceptanceAttachments != "" {
		t.Errorf("expected no attachment, got %q", item.AcceptanceAttachments)
	}

	att, err := GetAcceptanceAttachment(f.ctx, f.db, tr.Items[0].ID)
	if err != nil {
		t.Fatalf("GetAcceptanceAttachment: %v", err)
	}
	if att != nil {
		t.Error("expected nil attachment")
	}
}

func TestDeletedChecklistItemNoLongerRequired(t *testing.T) {
	f := newFixture(t)
	charger, _, test := f.checklist(t)

	if err := DeleteChecklistItem(f.ctx, f.db, test.ID); err != nil {
		t.Fatalf("DeleteChecklistItem: %v", err)
	}
	if err := DeleteChecklistItem(f.ctx, f.db, test.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound deleting twice, got %v", err)
	}

	items, err := ListChecklist(f.ctx, f.db, f.laptop.ID)
	if err != nil {
		t.Fatalf("ListChecklist: %v", err)
	}
	if len(items) != 2 || items[0].Item != "Charger" || items[1].Position != 2 {
		t.Errorf("unexpected checklist %+v", items)
	}

	tr := f.transfer(t, NewTransferItem{AssetID: f.notebook.ID, NewOwner: "000202"})
	f.approve(t, tr.ID)
	if _, err := AcceptItem(f.ctx, f.db, Acceptance{ItemID: tr.Items[0].ID, AcceptedBy: "000202", ChecklistIDs: []int64{charger.ID}}, testNow); err != nil {
		t.Errorf("AcceptItem: %v", err)
	}
}
