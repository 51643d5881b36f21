// Package acceptance drives the acceptance form of one transfer item: it
// resolves the item and its checklist, tracks check state, gates submission
// on required checklist items and submits the acceptance.
package acceptance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/erazemk/assetflow/internal/client"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/session"
)

var (
	ErrUnresolved         = errors.New("no transfer item to show")
	ErrRequiredIncomplete = errors.New("required checklist items incomplete")
	ErrReadOnly           = errors.New("form is read-only")
	ErrUnknownItem        = errors.New("not on this checklist")
	ErrInFlight           = errors.New("submission already in progress")
	ErrClosed             = errors.New("form is closed")
)

// NoticeNoChecklist is shown when the asset type has no checklist or it
// could not be loaded.
const NoticeNoChecklist = "No checklist for this asset type."

// ValidationError lists the required checklist items left unchecked.
type ValidationError struct {
	Missing []model.ChecklistItem
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, it := range e.Missing {
		names[i] = it.Item
	}
	return fmt.Sprintf("%s: %s", ErrRequiredIncomplete, strings.Join(names, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrRequiredIncomplete }

// Backend is what the form needs from the API.
type Backend interface {
	GetItem(ctx context.Context, transferID, itemID int64) (*model.TransferItem, error)
	Checklist(ctx context.Context, typeID int64) ([]model.ChecklistItem, error)
	SubmitAcceptance(ctx context.Context, itemID int64, sub client.Submission) (*model.TransferItem, error)
}

// State is derived from the item's approval and acceptance fields.
type State string

const (
	StateUnresolved        State = "unresolved"
	StateAwaitingApproval  State = "awaiting_approval"
	StatePendingAcceptance State = "pending_acceptance"
	StateAccepted          State = "accepted"
)

// StateOf returns the state of item.
func StateOf(item *model.TransferItem) State {
	switch {
	case item == nil:
		return StateUnresolved
	case item.Accepted():
		return StateAccepted
	case !item.Approved():
		return StateAwaitingApproval
	default:
		return StatePendingAcceptance
	}
}

// Source is what a form is opened on: a resolved item, or the ids to fetch.
type Source struct {
	Item       *model.TransferItem
	TransferID int64
	ItemID     int64
}

// Check is the state of one checklist entry.
type Check struct {
	Done    bool
	Remarks string
}

// Entry is a checklist item with its check state.
type Entry struct {
	model.ChecklistItem
	Check
}

// Controls tells a view which inputs are enabled.
type Controls struct {
	Checklist  bool
	Attachment bool
	Remarks    bool
	Submit     bool
	Back       bool
}

// Option configures a Form.
type Option func(*Form)

// WithClock sets the clock used for acceptance dates.
func WithClock(now func() time.Time) Option {
	return func(f *Form) { f.now = now }
}

// WithDirtyFunc registers fn to be called whenever the form turns dirty or
// clean. A form is dirty while any entry is checked or has remarks. fn runs
// with the form locked and must not call back into it.
func WithDirtyFunc(fn func(dirty bool)) Option {
	return func(f *Form) { f.onDirty = fn }
}

// WithDoneFunc registers fn to be called when the confirmation shown after
// a successful submission is dismissed.
func WithDoneFunc(fn func(item *model.TransferItem)) Option {
	return func(f *Form) { f.onDone = fn }
}

// Form is the acceptance form controller. It is safe for concurrent use.
type Form struct {
	backend Backend
	sess    *session.Session
	now     func() time.Time
	onDirty func(bool)
	onDone  func(*model.TransferItem)

	// Every request is bound to ctx and cancelled by Close.
	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	item         *model.TransferItem
	typeID       int64
	checklist    []model.ChecklistItem
	checks       map[int64]Check
	remarks      string
	attachment   *client.File
	err          error
	notice       string
	confirmation bool
	dirty        bool
	submitting   bool
	closed       bool
}

// New creates a form acting as the user of sess.
func New(backend Backend, sess *session.Session, opts ...Option) *Form {
	ctx, cancel := context.WithCancel(context.Background())
	f := &Form{
		backend: backend,
		sess:    sess,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		checks:  make(map[int64]Check),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// bind derives a request context that is also cancelled when the form closes.
func (f *Form) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(f.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Load opens the form on src. A supplied item is used as is; otherwise it
// is fetched by id. The checklist is fetched when the asset type differs
// from the one already loaded. A failed item fetch is a blocking error
// available from Err; a failed checklist fetch only sets a notice.
func (f *Form) Load(ctx context.Context, src Source) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return ErrClosed
	}
	f.resetLocked()
	f.mu.Unlock()

	ctx, done := f.bind(ctx)
	defer done()

	item := src.Item
	if item != nil {
		cp := *item
		item = &cp
	} else if src.TransferID > 0 && src.ItemID > 0 {
		fetched, err := f.backend.GetItem(ctx, src.TransferID, src.ItemID)
		if err != nil {
			err = fmt.Errorf("loading transfer item: %w", err)
			f.mu.Lock()
			f.err = err
			f.mu.Unlock()
			return err
		}
		item = fetched
	}
	if item == nil {
		f.mu.Lock()
		f.err = ErrUnresolved
		f.mu.Unlock()
		return ErrUnresolved
	}

	f.mu.Lock()
	sameType := f.typeID != 0 && f.typeID == item.Asset.Type.ID
	checklist := f.checklist
	f.mu.Unlock()

	var notice string
	var fetchErr error
	if !sameType {
		checklist, fetchErr = f.backend.Checklist(ctx, item.Asset.Type.ID)
		if fetchErr != nil {
			checklist = nil
		}
	}
	if len(checklist) == 0 {
		notice = NoticeNoChecklist
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.item = item
	f.typeID = item.Asset.Type.ID
	if fetchErr != nil {
		// Fetch again next time.
		f.typeID = 0
	}
	f.checklist = checklist
	f.notice = notice
	f.seedLocked()
	return nil
}

// resetLocked discards everything tied to the previously loaded item. The
// checklist cache is kept.
func (f *Form) resetLocked() {
	f.item = nil
	f.checks = make(map[int64]Check)
	f.remarks = ""
	f.attachment = nil
	f.err = nil
	f.notice = ""
	f.confirmation = false
	f.setDirtyLocked(false)
}

// seedLocked marks previously accepted checklist ids as done.
func (f *Form) seedLocked() {
	f.checks = make(map[int64]Check)
	for _, id := range model.ParseChecklistIDs(f.item.AcceptanceChecklistItems) {
		f.checks[id] = Check{Done: true}
	}
	f.remarks = f.item.AcceptanceRemarks
}

// State returns the current state of the form.
func (f *Form) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return StateOf(f.item)
}

// Item returns a copy of the loaded item, or nil.
func (f *Form) Item() *model.TransferItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.item == nil {
		return nil
	}
	cp := *f.item
	return &cp
}

// Err returns the blocking error of the last Load, if any.
func (f *Form) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Notice returns the transient notice to show, if any.
func (f *Form) Notice() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notice
}

// ClearNotice hides the current notice.
func (f *Form) ClearNotice() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notice = ""
}

// Entries returns the checklist in order with its check state.
func (f *Form) Entries() []Entry {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries := make([]Entry, len(f.checklist))
	for i, it := range f.checklist {
		entries[i] = Entry{ChecklistItem: it, Check: f.checks[it.ID]}
	}
	return entries
}

// CheckedIDs returns the ids of the done entries, sorted ascending.
func (f *Form) CheckedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.checkedLocked()
}

func (f *Form) checkedLocked() []int64 {
	var ids []int64
	for id, c := range f.checks {
		if c.Done {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// Remarks returns the acceptance remarks.
func (f *Form) Remarks() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remarks
}

// Controls returns which inputs are enabled in the current state.
func (f *Form) Controls() Controls {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := Controls{Back: true}
	if f.closed || StateOf(f.item) != StatePendingAcceptance {
		return c
	}
	c.Checklist = true
	c.Attachment = true
	c.Remarks = true
	c.Submit = !f.submitting && len(f.missingLocked()) == 0
	return c
}

// MissingRequired returns the required checklist items not yet done.
func (f *Form) MissingRequired() []model.ChecklistItem {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.missingLocked()
}

func (f *Form) missingLocked() []model.ChecklistItem {
	var missing []model.ChecklistItem
	for _, it := range f.checklist {
		if it.IsRequired && !f.checks[it.ID].Done {
			missing = append(missing, it)
		}
	}
	return missing
}

// editableLocked returns ErrReadOnly unless the form accepts input.
func (f *Form) editableLocked() error {
	if f.closed {
		return ErrClosed
	}
	if StateOf(f.item) != StatePendingAcceptance || f.submitting {
		return ErrReadOnly
	}
	return nil
}

func (f *Form) entryLocked(id int64) error {
	for _, it := range f.checklist {
		if it.ID == id {
			return nil
		}
	}
	return fmt.Errorf("checklist item %d: %w", id, ErrUnknownItem)
}

// SetChecked marks a checklist entry done or not done.
func (f *Form) SetChecked(id int64, done bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if err := f.entryLocked(id); err != nil {
		return err
	}
	c := f.checks[id]
	c.Done = done
	f.checks[id] = c
	f.updateDirtyLocked()
	return nil
}

// SetItemRemarks sets the remarks of one checklist entry.
func (f *Form) SetItemRemarks(id int64, remarks string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	if err := f.entryLocked(id); err != nil {
		return err
	}
	c := f.checks[id]
	c.Remarks = remarks
	f.checks[id] = c
	f.updateDirtyLocked()
	return nil
}

// SetRemarks sets the acceptance remarks.
func (f *Form) SetRemarks(remarks string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.remarks = remarks
	return nil
}

// SetAttachment selects a file to upload with the acceptance. nil clears it.
func (f *Form) SetAttachment(file *client.File) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.editableLocked(); err != nil {
		return err
	}
	f.attachment = file
	return nil
}

// Attachment returns the selected file, or nil.
func (f *Form) Attachment() *client.File {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attachment
}

// Dirty reports whether any entry is checked or has remarks.
func (f *Form) Dirty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dirty
}

func (f *Form) updateDirtyLocked() {
	dirty := false
	for _, c := range f.checks {
		if c.Done || strings.TrimSpace(c.Remarks) != "" {
			dirty = true
			break
		}
	}
	f.setDirtyLocked(dirty)
}

func (f *Form) setDirtyLocked(dirty bool) {
	if f.dirty == dirty {
		return
	}
	f.dirty = dirty
	if f.onDirty != nil {
		f.onDirty(dirty)
	}
}

// Submit accepts the item. Missing required entries are reported as a
// *ValidationError before anything is sent. On failure the form stays
// editable and a notice is set; on success the local item is patched and
// a confirmation is pending until Dismiss.
func (f *Form) Submit(ctx context.Context) (*model.TransferItem, error) {
	f.mu.Lock()
	if f.submitting {
		f.mu.Unlock()
		return nil, ErrInFlight
	}
	if err := f.editableLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	if missing := f.missingLocked(); len(missing) > 0 {
		f.mu.Unlock()
		return nil, &ValidationError{Missing: missing}
	}

	itemID := f.item.ID
	sub := client.Submission{
		ChecklistItems: model.JoinChecklistIDs(f.checkedLocked()),
		AcceptanceBy:   f.sess.Username,
		AcceptanceDate: f.now().Local().Format(model.DateTimeLayout),
		Remarks:        f.remarks,
		Attachment:     f.attachment,
	}
	f.submitting = true
	f.notice = ""
	f.mu.Unlock()

	ctx, done := f.bind(ctx)
	defer done()
	accepted, err := f.backend.SubmitAcceptance(ctx, itemID, sub)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitting = false
	if f.closed {
		return nil, ErrClosed
	}
	if err != nil {
		f.notice = "Acceptance failed: " + err.Error()
		return nil, err
	}
	if f.item == nil || f.item.ID != itemID {
		// Another item was loaded meanwhile.
		return accepted, nil
	}

	f.item.AcceptanceDate = sub.AcceptanceDate
	f.item.AcceptanceBy = sub.AcceptanceBy
	f.item.AcceptanceChecklistItems = sub.ChecklistItems
	f.item.AcceptanceRemarks = sub.Remarks
	if accepted != nil {
		if model.ValidDate(accepted.AcceptanceDate) {
			f.item.AcceptanceDate = accepted.AcceptanceDate
		}
		f.item.AcceptanceAttachments = accepted.AcceptanceAttachments
	}
	f.attachment = nil
	f.seedLocked()
	f.setDirtyLocked(false)
	f.confirmation = true

	cp := *f.item
	return &cp, nil
}

// Confirmation reports whether a successful submission awaits dismissal.
func (f *Form) Confirmation() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.confirmation
}

// Dismiss hides the confirmation and calls the done callback.
func (f *Form) Dismiss() {
	f.mu.Lock()
	if !f.confirmation {
		f.mu.Unlock()
		return
	}
	f.confirmation = false
	var item *model.TransferItem
	if f.item != nil {
		cp := *f.item
		item = &cp
	}
	onDone := f.onDone
	f.mu.Unlock()

	if onDone != nil {
		onDone(item)
	}
}

// Close cancels in-flight requests and discards the check state. The form
// cannot be used afterwards.
func (f *Form) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	f.cancel()
	f.checks = make(map[int64]Check)
	f.attachment = nil
	f.confirmation = false
	f.setDirtyLocked(false)
}
