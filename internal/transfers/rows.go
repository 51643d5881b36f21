package transfers

import (
	"sort"
	"strings"

	"github.com/erazemk/assetflow/internal/model"
)

// Status is the display state of an incoming row.
type Status string

const (
	StatusPendingApproval   Status = "pending_approval"
	StatusPendingAcceptance Status = "pending_acceptance"
	StatusAccepted          Status = "accepted"
	StatusRejected          Status = "rejected"
)

// Row is one incoming transfer item decorated with its parent transfer.
type Row struct {
	model.TransferItem
	RequestNo      string `json:"request_no"`
	TransferBy     string `json:"transfer_by"`
	TransferDate   string `json:"transfer_date"`
	ApprovalStatus string `json:"approval_status"`
	// ApprovalDate is the item's approved_date, or the transfer's
	// approval_date when the item has none.
	ApprovalDate string `json:"approval_date"`
}

// Flatten returns one row per item of transfers whose new owner is
// username, sorted by ascending item id. An empty username keeps all items.
func Flatten(transfers []model.Transfer, username string) []Row {
	var rows []Row
	for _, t := range transfers {
		for _, it := range t.Items {
			if username != "" && it.NewOwnerID() != username {
				continue
			}
			approval := it.ApprovedDate
			if !model.ValidDate(approval) {
				approval = t.ApprovalDate
			}
			rows = append(rows, Row{
				TransferItem:   it,
				RequestNo:      t.RequestNo,
				TransferBy:     t.TransferBy,
				TransferDate:   t.TransferDate,
				ApprovalStatus: t.ApprovalStatus,
				ApprovalDate:   approval,
			})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	return rows
}

// Item returns the row's transfer item with its approval fields as the list
// classifies it: pending approval and rejected rows carry no approval, the
// others carry the effective approval date. A form opened on it shows the
// state the row is counted under.
func (r Row) Item() model.TransferItem {
	it := r.TransferItem
	switch Classify(r) {
	case StatusPendingApproval, StatusRejected:
		it.ApprovedBy = ""
		it.ApprovedDate = ""
	default:
		it.ApprovedDate = r.ApprovalDate
	}
	return it
}

// Classify returns the display state of a row. Accepted wins over rejected,
// both over the pending states.
func Classify(r Row) Status {
	switch {
	case model.ValidDate(r.AcceptanceDate):
		return StatusAccepted
	case strings.Contains(strings.ToLower(r.ApprovalStatus), "reject"):
		return StatusRejected
	case !model.ValidDate(r.ApprovalDate):
		return StatusPendingApproval
	default:
		return StatusPendingAcceptance
	}
}

// Counts are the badge numbers of the incoming tab.
type Counts struct {
	PendingApproval   int `json:"pending_approval"`
	PendingAcceptance int `json:"pending_acceptance"`
	Accepted          int `json:"accepted"`
	Rejected          int `json:"rejected"`
}

// Count classifies rows.
func Count(rows []Row) Counts {
	var c Counts
	for _, r := range rows {
		switch Classify(r) {
		case StatusPendingApproval:
			c.PendingApproval++
		case StatusPendingAcceptance:
			c.PendingAcceptance++
		case StatusAccepted:
			c.Accepted++
		case StatusRejected:
			c.Rejected++
		}
	}
	return c
}
