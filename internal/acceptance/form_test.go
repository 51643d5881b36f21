package acceptance

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/erazemk/assetflow/internal/client"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/session"
)

var testNow = time.Date(2026, 3, 9, 10, 30, 0, 0, time.Local)

type fakeBackend struct {
	mu             sync.Mutex
	items          map[int64]*model.TransferItem
	checklists     map[int64][]model.ChecklistItem
	getErr         error
	checklistErr   error
	submitErr      error
	checklistCalls int
	submissions    []client.Submission

	// When started is set, SubmitAcceptance signals it and blocks until
	// its context is done.
	started chan struct{}
}

func (b *fakeBackend) GetItem(ctx context.Context, transferID, itemID int64) (*model.TransferItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	item, ok := b.items[itemID]
	if !ok || item.TransferID != transferID {
		return nil, &client.APIError{Status: 404, Message: "transfer item not found"}
	}
	cp := *item
	return &cp, nil
}

func (b *fakeBackend) Checklist(ctx context.Context, typeID int64) ([]model.ChecklistItem, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.checklistCalls++
	if b.checklistErr != nil {
		return nil, b.checklistErr
	}
	return b.checklists[typeID], nil
}

func (b *fakeBackend) SubmitAcceptance(ctx context.Context, itemID int64, sub client.Submission) (*model.TransferItem, error) {
	if b.started != nil {
		close(b.started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submissions = append(b.submissions, sub)
	if b.submitErr != nil {
		return nil, b.submitErr
	}
	return &model.TransferItem{
		ID:                       itemID,
		AcceptanceDate:           sub.AcceptanceDate,
		AcceptanceBy:             sub.AcceptanceBy,
		AcceptanceChecklistItems: sub.ChecklistItems,
		AcceptanceRemarks:        sub.Remarks,
	}, nil
}

func laptopChecklist() []model.ChecklistItem {
	return []model.ChecklistItem{
		{ID: 1, TypeID: 7, Item: "Charger", IsRequired: true},
		{ID: 3, TypeID: 7, Item: "Bag"},
		{ID: 5, TypeID: 7, Item: "Mouse"},
		{ID: 7, TypeID: 7, Item: "Dock"},
	}
}

func newBackend() *fakeBackend {
	return &fakeBackend{
		items:      map[int64]*model.TransferItem{},
		checklists: map[int64][]model.ChecklistItem{7: laptopChecklist()},
	}
}

func approvedItem(id int64) *model.TransferItem {
	return &model.TransferItem{
		ID:           id,
		TransferID:   10,
		Asset:        model.AssetRef{ID: 100 + id, RegisterNumber: "AST-0001", Type: model.AssetType{ID: 7, Name: "Laptop"}},
		NewOwner:     &model.Employee{RamcoID: "000202"},
		ApprovedDate: "2024-01-01",
	}
}

func newForm(t *testing.T, b *fakeBackend, opts ...Option) *Form {
	t.Helper()
	sess := &session.Session{Username: "000202", Token: "tok"}
	f := New(b, sess, append([]Option{WithClock(func() time.Time { return testNow })}, opts...)...)
	t.Cleanup(f.Close)
	return f
}

func TestRequiredIncompleteBlocksSubmit(t *testing.T) {
	b := newBackend()
	b.checklists[7] = []model.ChecklistItem{{ID: 1, TypeID: 7, Item: "Charger", IsRequired: true}}
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.State() != StatePendingAcceptance {
		t.Fatalf("expected pending_acceptance, got %s", f.State())
	}
	if err := f.SetChecked(1, false); err != nil {
		t.Fatalf("SetChecked: %v", err)
	}

	c := f.Controls()
	if c.Submit {
		t.Error("Submit should be disabled with a required item unchecked")
	}
	if !c.Checklist || !c.Attachment {
		t.Error("checklist and attachment should be enabled")
	}

	_, err := f.Submit(context.Background())
	if !errors.Is(err, ErrRequiredIncomplete) {
		t.Fatalf("expected ErrRequiredIncomplete, got %v", err)
	}
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Missing) != 1 || verr.Missing[0].ID != 1 {
		t.Errorf("expected item 1 missing, got %v", err)
	}
	if len(b.submissions) != 0 {
		t.Errorf("expected no network call, got %d submissions", len(b.submissions))
	}
}

func TestSubmitPatchesItemAndLocksForm(t *testing.T) {
	b := newBackend()
	b.checklists[7] = []model.ChecklistItem{{ID: 1, TypeID: 7, Item: "Charger", IsRequired: true}}
	var doneWith *model.TransferItem
	f := newForm(t, b, WithDoneFunc(func(item *model.TransferItem) { doneWith = item }))

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := f.SetChecked(1, true); err != nil {
		t.Fatalf("SetChecked: %v", err)
	}
	if !f.Controls().Submit {
		t.Fatal("Submit should be enabled once required items are done")
	}

	item, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if item.AcceptanceDate != "2026-03-09 10:30:00" || item.AcceptanceBy != "000202" {
		t.Errorf("unexpected patched item %+v", item)
	}
	if f.State() != StateAccepted {
		t.Errorf("expected accepted, got %s", f.State())
	}
	if c := f.Controls(); c != (Controls{Back: true}) {
		t.Errorf("expected every control disabled, got %+v", c)
	}
	if err := f.SetChecked(1, false); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly after acceptance, got %v", err)
	}
	if err := f.SetAttachment(&client.File{Name: "x.pdf"}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly for attachment, got %v", err)
	}

	if !f.Confirmation() {
		t.Fatal("expected confirmation after submit")
	}
	f.Dismiss()
	if f.Confirmation() || doneWith == nil || doneWith.AcceptanceDate == "" {
		t.Errorf("expected done callback with accepted item, got %+v", doneWith)
	}
}

func TestAwaitingApprovalIsReadOnly(t *testing.T) {
	b := newBackend()
	f := newForm(t, b)

	item := approvedItem(1)
	item.ApprovedDate = ""
	if err := f.Load(context.Background(), Source{Item: item}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.State() != StateAwaitingApproval {
		t.Fatalf("expected awaiting_approval, got %s", f.State())
	}
	if len(f.Entries()) == 0 {
		t.Fatal("expected the checklist to be loaded")
	}
	if c := f.Controls(); c != (Controls{Back: true}) {
		t.Errorf("expected only Back enabled, got %+v", c)
	}
	if err := f.SetChecked(1, true); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly from Submit, got %v", err)
	}
}

func TestStates(t *testing.T) {
	tests := []struct {
		name string
		item *model.TransferItem
		want State
	}{
		{"nil", nil, StateUnresolved},
		{"no approval", &model.TransferItem{}, StateAwaitingApproval},
		{"approved by only", &model.TransferItem{ApprovedBy: "000303"}, StatePendingAcceptance},
		{"approved date only", &model.TransferItem{ApprovedDate: "2024-01-01"}, StatePendingAcceptance},
		{"accepted", &model.TransferItem{ApprovedDate: "2024-01-01", AcceptanceDate: "2024-01-02 09:00:00"}, StateAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateOf(tt.item); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestChecklistRoundTrip(t *testing.T) {
	b := newBackend()
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	for _, id := range []int64{5, 1, 3} {
		if err := f.SetChecked(id, true); err != nil {
			t.Fatalf("SetChecked(%d): %v", id, err)
		}
	}
	accepted, err := f.Submit(context.Background())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := b.submissions[0].ChecklistItems; got != "1,3,5" {
		t.Fatalf("expected checklist-items 1,3,5, got %q", got)
	}

	// Reload from what the server recorded.
	reloaded := newForm(t, b)
	accepted.Asset = approvedItem(1).Asset
	accepted.ApprovedDate = "2024-01-01"
	if err := reloaded.Load(context.Background(), Source{Item: accepted}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := reloaded.CheckedIDs(); !slices.Equal(got, []int64{1, 3, 5}) {
		t.Errorf("expected {1,3,5} done, got %v", got)
	}
	for _, e := range reloaded.Entries() {
		if want := e.ID != 7; e.Done != want {
			t.Errorf("entry %d: expected done=%v", e.ID, want)
		}
	}
}

func TestUnresolvedSource(t *testing.T) {
	f := newForm(t, newBackend())

	if err := f.Load(context.Background(), Source{}); !errors.Is(err, ErrUnresolved) {
		t.Fatalf("expected ErrUnresolved, got %v", err)
	}
	if f.State() != StateUnresolved {
		t.Errorf("expected unresolved, got %s", f.State())
	}
	if c := f.Controls(); c != (Controls{Back: true}) {
		t.Errorf("expected only Back, got %+v", c)
	}
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}

func TestLoadByIDs(t *testing.T) {
	b := newBackend()
	b.items[1] = approvedItem(1)
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{TransferID: 10, ItemID: 1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if f.Item() == nil || f.Item().ID != 1 {
		t.Fatalf("expected item 1, got %+v", f.Item())
	}

	// Unknown item is a blocking error.
	err := f.Load(context.Background(), Source{TransferID: 10, ItemID: 99})
	if !client.IsStatus(err, 404) {
		t.Fatalf("expected 404, got %v", err)
	}
	if f.Err() == nil || f.State() != StateUnresolved {
		t.Errorf("expected blocking error and unresolved state, got %v / %s", f.Err(), f.State())
	}
}

func TestChecklistFailureIsNotFatal(t *testing.T) {
	b := newBackend()
	b.checklistErr = errors.New("connection refused")
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load should not fail on checklist error: %v", err)
	}
	if f.Notice() != NoticeNoChecklist {
		t.Errorf("expected no-checklist notice, got %q", f.Notice())
	}
	if len(f.Entries()) != 0 {
		t.Error("expected an empty checklist")
	}
	if !f.Controls().Submit {
		t.Error("nothing is required without a checklist")
	}

	// A failed fetch is retried on the next load.
	b.checklistErr = nil
	if err := f.Load(context.Background(), Source{Item: approvedItem(2)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Entries()) != 4 || f.Notice() != "" {
		t.Errorf("expected the checklist after retry, got %d entries, notice %q", len(f.Entries()), f.Notice())
	}
}

func TestChecklistFetchedOnTypeChange(t *testing.T) {
	b := newBackend()
	b.checklists[8] = []model.ChecklistItem{{ID: 20, TypeID: 8, Item: "Cable"}}
	f := newForm(t, b)
	ctx := context.Background()

	if err := f.Load(ctx, Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := f.Load(ctx, Source{Item: approvedItem(2)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.checklistCalls != 1 {
		t.Errorf("expected checklist fetched once for the same type, got %d", b.checklistCalls)
	}

	monitor := approvedItem(3)
	monitor.Asset.Type = model.AssetType{ID: 8, Name: "Monitor"}
	if err := f.Load(ctx, Source{Item: monitor}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if b.checklistCalls != 2 {
		t.Errorf("expected a second fetch for a new type, got %d", b.checklistCalls)
	}
	if e := f.Entries(); len(e) != 1 || e[0].ID != 20 {
		t.Errorf("unexpected entries %+v", e)
	}
}

func TestSubmitFailureKeepsFormEditable(t *testing.T) {
	b := newBackend()
	b.submitErr = &client.APIError{Status: 500, Message: "boom"}
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.SetChecked(1, true)
	f.SetAttachment(&client.File{Name: "form.pdf", Data: []byte("%PDF-1.4")})

	if _, err := f.Submit(context.Background()); err == nil {
		t.Fatal("expected submit error")
	}
	if f.State() != StatePendingAcceptance || f.Item().AcceptanceDate != "" {
		t.Errorf("item must not be patched on failure: %+v", f.Item())
	}
	if f.Notice() == "" {
		t.Error("expected a failure notice")
	}
	if !f.Controls().Submit || f.Attachment() == nil {
		t.Error("form should stay editable for a retry")
	}
	if b.submissions[0].Attachment == nil {
		t.Error("expected the attachment to be submitted")
	}

	b.submitErr = nil
	if _, err := f.Submit(context.Background()); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if f.State() != StateAccepted {
		t.Errorf("expected accepted after retry, got %s", f.State())
	}
}

func TestDirtyCallback(t *testing.T) {
	var events []bool
	f := newForm(t, newBackend(), WithDirtyFunc(func(dirty bool) { events = append(events, dirty) }))

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.SetChecked(3, true)
	f.SetItemRemarks(5, "scratched")
	f.SetChecked(3, false)
	f.SetItemRemarks(5, "")

	if want := []bool{true, false}; !slices.Equal(events, want) {
		t.Errorf("expected %v, got %v", want, events)
	}
	if err := f.SetChecked(42, true); !errors.Is(err, ErrUnknownItem) {
		t.Errorf("expected ErrUnknownItem, got %v", err)
	}
}

func TestCloseCancelsSubmit(t *testing.T) {
	b := newBackend()
	b.started = make(chan struct{})
	f := newForm(t, b)

	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	f.SetChecked(1, true)

	errc := make(chan error, 1)
	go func() {
		_, err := f.Submit(context.Background())
		errc <- err
	}()

	<-b.started
	if _, err := f.Submit(context.Background()); !errors.Is(err, ErrInFlight) {
		t.Errorf("expected ErrInFlight for a second submit, got %v", err)
	}
	f.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("submit was not cancelled by Close")
	}
	if f.Dirty() || len(f.CheckedIDs()) != 0 {
		t.Error("close should discard check state")
	}
	if err := f.Load(context.Background(), Source{Item: approvedItem(1)}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after close, got %v", err)
	}
}
