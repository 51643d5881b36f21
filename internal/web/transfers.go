package web

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/erazemk/assetflow/internal/acceptance"
	"github.com/erazemk/assetflow/internal/attachment"
	"github.com/erazemk/assetflow/internal/client"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/notify"
	"github.com/erazemk/assetflow/internal/session"
	"github.com/erazemk/assetflow/internal/store"
	"github.com/erazemk/assetflow/internal/transfers"
)

// Tabs of the transfers page.
const (
	tabIncoming  = "incoming"
	tabInitiated = "initiated"
)

// paramAccepted marks the redirect after a successful acceptance.
const paramAccepted = "accepted"

type rowView struct {
	transfers.Row
	Status transfers.Status
	URL    string
	Open   bool
}

type transferView struct {
	model.Transfer
	URL string
}

type formView struct {
	Link     transfers.Link
	Item     *model.TransferItem
	State    acceptance.State
	Entries  []acceptance.Entry
	Controls acceptance.Controls
	Remarks  string
	Missing  []model.ChecklistItem
	Notice   string
	Error    string
	Accepted bool
	CloseURL string
	PrevURL  string
	NextURL  string
}

type transfersPage struct {
	PageData
	Tab       string
	Initiated []transferView
	Incoming  []rowView
	Counts    transfers.Counts
	Notice    string
	Form      *formView
}

func (s *Server) session(r *http.Request) *session.Session {
	return &session.Session{Username: GetWebClaims(r.Context()).Username, Token: GetWebToken(r.Context())}
}

func (s *Server) backend(r *http.Request) *backend {
	return &backend{
		db:       s.DB,
		notifier: s.Notifier,
		claims:   GetWebClaims(r.Context()),
		maxBytes: s.MaxBytes,
		now:      s.Now,
	}
}

// controller returns a list controller for the signed in user with both
// tabs loaded. Load failures only leave a notice on the controller.
func (s *Server) controller(r *http.Request, b *backend) *transfers.Controller {
	ctrl := transfers.New(b, s.session(r))
	if err := ctrl.LoadInitiated(r.Context()); err != nil {
		slog.Warn("failed to load initiated transfers", "user", b.claims.Username, "error", err)
	}
	if err := ctrl.LoadIncoming(r.Context()); err != nil {
		slog.Warn("failed to load incoming transfers", "user", b.claims.Username, "error", err)
	}
	return ctrl
}

func tabOf(q url.Values) string {
	if q.Get("tab") == tabInitiated {
		return tabInitiated
	}
	return tabIncoming
}

// listQuery is q without the deep link, on the incoming tab.
func listQuery(q url.Values) url.Values {
	out := transfers.ClearLink(q)
	out.Del(paramAccepted)
	out.Set("tab", tabIncoming)
	return out
}

func (s *Server) transfersPage(r *http.Request, ctrl *transfers.Controller, q url.Values) *transfersPage {
	link, open := transfers.ParseLink(q)
	page := &transfersPage{
		PageData: PageData{Title: "Transfers", User: GetWebClaims(r.Context())},
		Tab:      tabOf(q),
		Counts:   ctrl.Counts(),
		Notice:   ctrl.Notice(),
	}
	if kind := q.Get("sent"); model.ValidNotifyKind(kind) {
		page.Success = sentMessage(kind)
	}

	base := listQuery(q)
	for _, row := range ctrl.Incoming() {
		page.Incoming = append(page.Incoming, rowView{
			Row:    row,
			Status: transfers.Classify(row),
			URL:    transfers.ActivateRow(row, base).String(),
			Open:   open && row.ID == link.ItemID && row.TransferID == link.TransferID,
		})
	}
	for _, t := range ctrl.Initiated() {
		page.Initiated = append(page.Initiated, transferView{Transfer: t, URL: transfers.ActivateTransfer(t).String()})
	}
	return page
}

func formViewOf(ctrl *transfers.Controller, form *acceptance.Form, link transfers.Link, q url.Values) *formView {
	v := &formView{
		Link:     link,
		Item:     form.Item(),
		State:    form.State(),
		Entries:  form.Entries(),
		Controls: form.Controls(),
		Remarks:  form.Remarks(),
		Missing:  form.MissingRequired(),
		Notice:   form.Notice(),
		Accepted: q.Get(paramAccepted) == "1",
	}
	if form.Err() != nil {
		v.Error = "This transfer item could not be loaded."
	}

	base := listQuery(q)
	v.CloseURL = transfers.Route{Path: transfers.AcceptancePath, Query: base}.String()
	if prev, ok := ctrl.Prev(link.ItemID); ok {
		v.PrevURL = transfers.ActivateRow(prev, base).String()
	}
	if next, ok := ctrl.Next(link.ItemID); ok {
		v.NextURL = transfers.ActivateRow(next, base).String()
	}
	return v
}

// TransfersPage handles GET /assets/transfers. The receive_transfer and
// receive_item parameters open the acceptance form of that item.
func (s *Server) TransfersPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	b := s.backend(r)
	ctrl := s.controller(r, b)
	page := s.transfersPage(r, ctrl, q)

	status := http.StatusOK
	if link, ok := transfers.ParseLink(q); ok {
		form := acceptance.New(b, s.session(r), acceptance.WithClock(s.Now))
		defer form.Close()
		if err := form.Load(r.Context(), ctrl.Source(link)); err != nil {
			slog.Warn("failed to open acceptance form", "user", b.claims.Username,
				"transfer", link.TransferID, "item", link.ItemID, "error", err)
			status = http.StatusNotFound
		}
		page.Form = formViewOf(ctrl, form, link, q)
	}

	s.Templates.RenderStatus(w, status, "transfers.html", page)
}

// AcceptSubmit handles POST /assets/transfers/accept, the acceptance form.
func (s *Server) AcceptSubmit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.MaxBytes+1<<20)
	if err := r.ParseMultipartForm(s.MaxBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		http.Error(w, "attachment too large or invalid form", http.StatusRequestEntityTooLarge)
		return
	}

	link, ok := transfers.ParseLink(r.PostForm)
	if !ok {
		http.Error(w, "missing transfer item", http.StatusBadRequest)
		return
	}
	q := link.Apply(url.Values{"tab": {tabIncoming}})

	b := s.backend(r)
	ctrl := s.controller(r, b)
	form := acceptance.New(b, s.session(r), acceptance.WithClock(s.Now))
	defer form.Close()

	err := form.Load(r.Context(), ctrl.Source(link))
	if err == nil {
		err = fillForm(r, form)
	}
	var item *model.TransferItem
	if err == nil {
		item, err = form.Submit(r.Context())
	}
	if err == nil {
		slog.Info("transfer item accepted", "user", b.claims.Username, "transfer", link.TransferID,
			"item", item.ID, "asset", item.Asset.RegisterNumber)
		q.Set(paramAccepted, "1")
		http.Redirect(w, r, transfers.Route{Path: transfers.AcceptancePath, Query: q}.String(), http.StatusSeeOther)
		return
	}

	status, msg := acceptFailure(err)
	if status == http.StatusInternalServerError {
		slog.Error("failed to accept transfer item", "user", b.claims.Username, "item", link.ItemID, "error", err)
	} else {
		slog.Warn("acceptance refused", "user", b.claims.Username, "item", link.ItemID, "error", err)
	}

	page := s.transfersPage(r, ctrl, q)
	page.Form = formViewOf(ctrl, form, link, q)
	page.Form.Error = msg
	s.Templates.RenderStatus(w, status, "transfers.html", page)
}

// fillForm copies the posted checklist, remarks and attachment into form.
func fillForm(r *http.Request, form *acceptance.Form) error {
	for _, v := range r.PostForm["check"] {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", model.ErrChecklistIDs, v)
		}
		if err := form.SetChecked(id, true); err != nil {
			return err
		}
	}
	for _, e := range form.Entries() {
		if rm := strings.TrimSpace(r.PostFormValue("remarks_" + strconv.FormatInt(e.ID, 10))); rm != "" {
			if err := form.SetItemRemarks(e.ID, rm); err != nil {
				return err
			}
		}
	}
	if err := form.SetRemarks(strings.TrimSpace(r.PostFormValue("acceptance_remarks"))); err != nil {
		return err
	}

	file, header, err := r.FormFile("acceptance_attachments")
	switch {
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil
	case err != nil:
		return fmt.Errorf("reading attachment: %w", err)
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("reading attachment: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	return form.SetAttachment(&client.File{Name: header.Filename, Data: data})
}

func acceptFailure(err error) (int, string) {
	var verr *acceptance.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "Tick every required item first: " + missingNames(verr.Missing) + "."
	case errors.Is(err, store.ErrNotFound), errors.Is(err, acceptance.ErrUnresolved):
		return http.StatusNotFound, "This transfer item could not be loaded."
	case errors.Is(err, acceptance.ErrReadOnly), errors.Is(err, store.ErrNotActionable),
		errors.Is(err, store.ErrAlreadyAccepted):
		return http.StatusConflict, "This item cannot be accepted now."
	case errors.Is(err, store.ErrNotNewOwner):
		return http.StatusForbidden, "Only the new owner can accept this item."
	case errors.Is(err, acceptance.ErrUnknownItem), errors.Is(err, model.ErrChecklistIDs),
		errors.Is(err, store.ErrChecklistUnknown), errors.Is(err, store.ErrChecklistMissing):
		return http.StatusUnprocessableEntity, "The checklist does not match this asset type."
	case errors.Is(err, attachment.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "The attachment is too large."
	case errors.Is(err, attachment.ErrUnsupported):
		return http.StatusUnsupportedMediaType, "Attach a JPEG, PNG or PDF file."
	default:
		return http.StatusInternalServerError, "Acceptance failed. Try again."
	}
}

func missingNames(items []model.ChecklistItem) string {
	names := make([]string, len(items))
	for i, it := range items {
		names[i] = it.Item
	}
	return strings.Join(names, ", ")
}

func sentMessage(kind string) string {
	if kind == model.NotifyApproval {
		return "Approval notification sent."
	}
	return "Acceptance notification sent."
}

type transferDetailPage struct {
	PageData
	Transfer      *model.Transfer
	Rows          []rowView
	Notifications []store.Notification
	CanDecide     bool
	CanResend     bool
	Back          string
}

func (s *Server) loadTransfer(r *http.Request) (*model.Transfer, int) {
	ctx := r.Context()
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return nil, http.StatusNotFound
	}
	t, err := store.GetTransfer(ctx, s.DB, id)
	if err != nil {
		slog.Error("failed to get transfer", "error", err)
		return nil, http.StatusInternalServerError
	}
	claims := GetWebClaims(ctx)
	if t == nil || !(model.RoleAtLeast(claims.Role, model.RoleManager) || t.Involves(claims.Username, nil)) {
		return nil, http.StatusNotFound
	}
	return t, http.StatusOK
}

func (s *Server) renderDetail(w http.ResponseWriter, r *http.Request, t *model.Transfer, status int, page PageData) {
	claims := GetWebClaims(r.Context())
	notes, err := store.ListNotifications(r.Context(), s.DB, t.ID)
	if err != nil {
		slog.Error("failed to list notifications", "transfer", t.ID, "error", err)
	}

	base := url.Values{"tab": {tabIncoming}}
	var rows []rowView
	for _, row := range transfers.Flatten([]model.Transfer{*t}, "") {
		v := rowView{Row: row, Status: transfers.Classify(row)}
		if row.NewOwnerID() == claims.Username {
			v.URL = transfers.ActivateRow(row, base).String()
		}
		rows = append(rows, v)
	}

	page.Title = "Transfer " + t.RequestNo
	page.User = claims
	if kind := r.URL.Query().Get("sent"); page.Success == "" && model.ValidNotifyKind(kind) {
		page.Success = sentMessage(kind)
	}
	s.Templates.RenderStatus(w, status, "transfer_detail.html", &transferDetailPage{
		PageData:      page,
		Transfer:      t,
		Rows:          rows,
		Notifications: notes,
		CanDecide: t.ApprovalStatus == model.ApprovalPending &&
			model.RoleAtLeast(claims.Role, model.RoleManager) &&
			(t.TransferBy != claims.Username || claims.Role == model.RoleAdmin),
		CanResend: t.ApprovalStatus != model.ApprovalRejected,
		Back:      transfers.Route{Path: transfers.AcceptancePath, Query: url.Values{"tab": {tabInitiated}}}.String(),
	})
}

// TransferDetailPage handles GET /assets/transfers/{id}/edit.
func (s *Server) TransferDetailPage(w http.ResponseWriter, r *http.Request) {
	t, status := s.loadTransfer(r)
	if t == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	s.renderDetail(w, r, t, http.StatusOK, PageData{})
}

// DecideSubmit handles POST /assets/transfers/{id}/approval.
func (s *Server) DecideSubmit(w http.ResponseWriter, r *http.Request) {
	claims := GetWebClaims(r.Context())
	if !model.RoleAtLeast(claims.Role, model.RoleManager) {
		http.Error(w, "insufficient permissions", http.StatusForbidden)
		return
	}
	t, status := s.loadTransfer(r)
	if t == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}

	decision := r.FormValue("status")
	if decision != model.ApprovalApproved && decision != model.ApprovalRejected {
		s.renderDetail(w, r, t, http.StatusBadRequest, PageData{Error: "Choose approve or reject."})
		return
	}
	if t.TransferBy == claims.Username && claims.Role != model.RoleAdmin {
		s.renderDetail(w, r, t, http.StatusForbidden, PageData{Error: "You cannot decide your own transfer."})
		return
	}

	decided, err := store.DecideTransfer(r.Context(), s.DB, t.ID, decision, claims.Username,
		strings.TrimSpace(r.FormValue("remarks")), s.Now())
	if err != nil {
		if errors.Is(err, store.ErrAlreadyDecided) {
			s.renderDetail(w, r, t, http.StatusConflict, PageData{Error: "This transfer has already been decided."})
			return
		}
		slog.Error("failed to decide transfer", "error", err)
		s.renderDetail(w, r, t, http.StatusInternalServerError, PageData{Error: "Saving the decision failed."})
		return
	}

	slog.Info("transfer decided", "user", claims.Username, "transfer", decided.RequestNo, "status", decision)
	http.Redirect(w, r, transfers.ActivateTransfer(*decided).String(), http.StatusSeeOther)
}

// ResendSubmit handles POST /assets/transfers/{id}/resend/{kind}.
func (s *Server) ResendSubmit(w http.ResponseWriter, r *http.Request) {
	t, status := s.loadTransfer(r)
	if t == nil {
		http.Error(w, http.StatusText(status), status)
		return
	}
	kind := chi.URLParam(r, "kind")

	b := s.backend(r)
	ctrl := transfers.New(b, s.session(r))
	if _, err := ctrl.Resend(r.Context(), t.ID, kind); err != nil {
		var limited *notify.RateLimitError
		switch {
		case errors.As(err, &limited):
			w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(limited)))
			s.renderDetail(w, r, t, http.StatusTooManyRequests, PageData{Error: "Already sent recently. " + limited.Error() + "."})
		case errors.Is(err, notify.ErrNoRecipients):
			s.renderDetail(w, r, t, http.StatusConflict, PageData{Error: "Nobody is waiting on this transfer."})
		case errors.Is(err, notify.ErrUnknownKind):
			s.renderDetail(w, r, t, http.StatusBadRequest, PageData{Error: "Unknown notification."})
		default:
			slog.Error("failed to resend notification", "transfer", t.ID, "kind", kind, "error", err)
			s.renderDetail(w, r, t, http.StatusInternalServerError, PageData{Error: ctrl.Notice()})
		}
		return
	}

	slog.Info("notification resent", "user", b.claims.Username, "transfer", t.RequestNo, "kind", kind)
	route := transfers.ActivateTransfer(*t)
	route.Query = url.Values{"sent": {kind}}
	http.Redirect(w, r, route.String(), http.StatusSeeOther)
}

func retrySeconds(e *notify.RateLimitError) int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return secs
}

// AttachmentGet handles GET /assets/transfers/items/{id}/attachment.
func (s *Server) AttachmentGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	item, err := store.GetTransferItemByID(r.Context(), s.DB, id)
	if err != nil {
		slog.Error("failed to get transfer item", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if item == nil || !s.backend(r).visible(r.Context(), item) {
		http.NotFound(w, r)
		return
	}

	att, err := store.GetAcceptanceAttachment(r.Context(), s.DB, id)
	if err != nil {
		slog.Error("failed to get attachment", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if att == nil {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", att.MIME)
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", att.Name))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if _, err := w.Write(att.Data); err != nil {
		slog.Error("failed to write attachment response", "error", err)
	}
}
