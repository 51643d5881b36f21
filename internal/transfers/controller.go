// Package transfers drives the two transfer tabs: transfers the user
// initiated and items awaiting the user's acceptance.
package transfers

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"

	"github.com/erazemk/assetflow/internal/acceptance"
	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/session"
)

// ErrInFlight is returned when the same resend is already running.
var ErrInFlight = errors.New("resend already in progress")

// Backend is what the controller needs from the API.
type Backend interface {
	ListInitiated(ctx context.Context, username string) ([]model.Transfer, error)
	ListIncoming(ctx context.Context, username string) ([]model.Transfer, error)
	Resend(ctx context.Context, transferID int64, kind string) (*model.Notification, error)
}

// Query parameters that keep an acceptance form open across reloads.
const (
	ParamTransfer = "receive_transfer"
	ParamItem     = "receive_item"
)

// Route paths a row activation leads to.
const (
	AcceptancePath   = "/assets/transfers"
	EditPathTemplate = "/assets/transfers/%s/edit"
)

// Route is where the view should navigate.
type Route struct {
	Path  string
	Query url.Values
}

func (r Route) String() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// Link identifies the open acceptance form.
type Link struct {
	TransferID int64
	ItemID     int64
}

// ParseLink reads the deep link from q.
func ParseLink(q url.Values) (Link, bool) {
	transferID, err1 := strconv.ParseInt(q.Get(ParamTransfer), 10, 64)
	itemID, err2 := strconv.ParseInt(q.Get(ParamItem), 10, 64)
	if err1 != nil || err2 != nil || transferID <= 0 || itemID <= 0 {
		return Link{}, false
	}
	return Link{TransferID: transferID, ItemID: itemID}, true
}

// Apply returns a copy of q carrying the link.
func (l Link) Apply(q url.Values) url.Values {
	out := cloneValues(q)
	out.Set(ParamTransfer, strconv.FormatInt(l.TransferID, 10))
	out.Set(ParamItem, strconv.FormatInt(l.ItemID, 10))
	return out
}

// ClearLink returns a copy of q without the deep link, used when the form
// closes.
func ClearLink(q url.Values) url.Values {
	out := cloneValues(q)
	out.Del(ParamTransfer)
	out.Del(ParamItem)
	return out
}

func cloneValues(q url.Values) url.Values {
	out := make(url.Values, len(q))
	for k, v := range q {
		out[k] = append([]string(nil), v...)
	}
	return out
}

type resendKey struct {
	transferID int64
	kind       string
}

// Controller holds both tabs for the user of a session. It is safe for
// concurrent use.
type Controller struct {
	backend Backend
	sess    *session.Session

	mu        sync.Mutex
	initiated []model.Transfer
	incoming  []Row
	notice    string
	inFlight  map[resendKey]bool
}

// New creates a controller for the user of sess.
func New(backend Backend, sess *session.Session) *Controller {
	return &Controller{
		backend:  backend,
		sess:     sess,
		inFlight: make(map[resendKey]bool),
	}
}

// LoadInitiated fetches the transfers the user initiated. On failure the
// tab is emptied, a notice is set and the error returned.
func (c *Controller) LoadInitiated(ctx context.Context) error {
	transfers, err := c.backend.ListInitiated(ctx, c.sess.Username)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.initiated = nil
		c.notice = "Could not load your transfers: " + err.Error()
		return err
	}
	c.initiated = transfers
	return nil
}

// LoadIncoming fetches items awaiting the user and flattens them into rows.
// Failures behave as in LoadInitiated.
func (c *Controller) LoadIncoming(ctx context.Context) error {
	transfers, err := c.backend.ListIncoming(ctx, c.sess.Username)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.incoming = nil
		c.notice = "Could not load incoming transfers: " + err.Error()
		return err
	}
	c.incoming = Flatten(transfers, c.sess.Username)
	return nil
}

// Initiated returns the initiated tab.
func (c *Controller) Initiated() []model.Transfer {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Transfer(nil), c.initiated...)
}

// Incoming returns the incoming rows by ascending item id.
func (c *Controller) Incoming() []Row {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Row(nil), c.incoming...)
}

// Counts returns the badge numbers of the incoming tab.
func (c *Controller) Counts() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Count(c.incoming)
}

// Notice returns the last non-blocking notice.
func (c *Controller) Notice() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notice
}

// ClearNotice hides the notice.
func (c *Controller) ClearNotice() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notice = ""
}

// ActivateRow returns the acceptance form route of an incoming row, keeping
// the other parameters of q.
func ActivateRow(r Row, q url.Values) Route {
	link := Link{TransferID: r.TransferID, ItemID: r.ID}
	return Route{Path: AcceptancePath, Query: link.Apply(q)}
}

// ActivateTransfer returns the edit page route of an initiated transfer,
// keyed by id or, without one, by request number.
func ActivateTransfer(t model.Transfer) Route {
	key := t.RequestNo
	if t.ID > 0 {
		key = strconv.FormatInt(t.ID, 10)
	}
	return Route{Path: fmt.Sprintf(EditPathTemplate, url.PathEscape(key))}
}

// Source returns what to open the acceptance form on for link: the loaded
// row when there is one, otherwise the ids to fetch.
func (c *Controller) Source(link Link) acceptance.Source {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.incoming {
		r := &c.incoming[i]
		if r.ID == link.ItemID && r.TransferID == link.TransferID {
			item := r.Item()
			return acceptance.Source{Item: &item}
		}
	}
	return acceptance.Source{TransferID: link.TransferID, ItemID: link.ItemID}
}

// Prev returns the incoming row before itemID.
func (c *Controller) Prev(itemID int64) (Row, bool) {
	return c.step(itemID, -1)
}

// Next returns the incoming row after itemID.
func (c *Controller) Next(itemID int64) (Row, bool) {
	return c.step(itemID, 1)
}

func (c *Controller) step(itemID int64, dir int) (Row, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, r := range c.incoming {
		if r.ID != itemID {
			continue
		}
		j := i + dir
		if j < 0 || j >= len(c.incoming) {
			return Row{}, false
		}
		return c.incoming[j], true
	}
	return Row{}, false
}

// Resend asks the server to resend a notification of a transfer. Only one
// resend per transfer and kind runs at a time; a failure sets a notice and
// leaves the tabs untouched.
func (c *Controller) Resend(ctx context.Context, transferID int64, kind string) (*model.Notification, error) {
	key := resendKey{transferID, kind}

	c.mu.Lock()
	if c.inFlight[key] {
		c.mu.Unlock()
		return nil, ErrInFlight
	}
	c.inFlight[key] = true
	c.mu.Unlock()

	msg, err := c.backend.Resend(ctx, transferID, kind)

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, key)
	if err != nil {
		c.notice = fmt.Sprintf("Could not resend %s notification: %v", kind, err)
		return nil, err
	}
	return msg, nil
}

// Resending reports whether a resend of kind is running for transferID.
func (c *Controller) Resending(transferID int64, kind string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[resendKey{transferID, kind}]
}
