package model

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Approval statuses of a transfer.
const (
	ApprovalPending  = "pending"
	ApprovalApproved = "approved"
	ApprovalRejected = "rejected"
)

// Transfer is a request to move one or more assets to new owners.
type Transfer struct {
	ID              int64          `json:"id"`
	RequestNo       string         `json:"request_no"`
	TransferBy      string         `json:"transfer_by"`
	TransferDate    string         `json:"transfer_date"`
	ApprovalStatus  string         `json:"approval_status"`
	ApprovalDate    string         `json:"approval_date,omitempty"`
	ApprovedBy      string         `json:"approved_by,omitempty"`
	ApprovalRemarks string         `json:"approval_remarks,omitempty"`
	Items           []TransferItem `json:"items"`
}

// TransferItem is one asset's movement within a transfer.
type TransferItem struct {
	ID           int64     `json:"id"`
	TransferID   int64     `json:"transfer_id"`
	Asset        AssetRef  `json:"asset"`
	CurrentOwner *Employee `json:"current_owner,omitempty"`
	NewOwner     *Employee `json:"new_owner,omitempty"`

	CostCenter    string `json:"cost_center,omitempty"`
	Department    string `json:"department,omitempty"`
	Location      string `json:"location,omitempty"`
	Reason        string `json:"reason,omitempty"`
	EffectiveDate string `json:"effective_date,omitempty"`

	ApprovedBy   string `json:"approved_by,omitempty"`
	ApprovedDate string `json:"approved_date,omitempty"`

	AcceptanceDate           string `json:"acceptance_date,omitempty"`
	AcceptanceBy             string `json:"acceptance_by,omitempty"`
	AcceptanceChecklistItems string `json:"acceptance_checklist_items,omitempty"`
	AcceptanceAttachments    string `json:"acceptance_attachments,omitempty"`
	AcceptanceRemarks        string `json:"acceptance_remarks,omitempty"`
}

// Approved reports whether any approval field has been recorded.
func (i *TransferItem) Approved() bool {
	return strings.TrimSpace(i.ApprovedBy) != "" || strings.TrimSpace(i.ApprovedDate) != ""
}

// Accepted reports whether the item has been accepted by its new owner.
func (i *TransferItem) Accepted() bool {
	return strings.TrimSpace(i.AcceptanceDate) != ""
}

// NewOwnerID returns the ramco id of the new owner, or "".
func (i *TransferItem) NewOwnerID() string {
	if i.NewOwner == nil {
		return ""
	}
	return i.NewOwner.RamcoID
}

// Involves reports whether username initiated t or is the current or new
// owner of item. A nil item means any item of t.
func (t *Transfer) Involves(username string, item *TransferItem) bool {
	if username == "" {
		return false
	}
	if t.TransferBy == username {
		return true
	}
	items := t.Items
	if item != nil {
		items = []TransferItem{*item}
	}
	for _, it := range items {
		if it.NewOwnerID() == username {
			return true
		}
		if it.CurrentOwner != nil && it.CurrentOwner.RamcoID == username {
			return true
		}
	}
	return false
}

// ChecklistItem is one entry of an asset type's acceptance checklist.
type ChecklistItem struct {
	ID         int64  `json:"id"`
	TypeID     int64  `json:"type_id"`
	Item       string `json:"item"`
	IsRequired bool   `json:"is_required"`
	Position   int    `json:"position"`
}

// ParseChecklistIDs parses a comma-joined id list such as "1,3,5".
// Blank and non-numeric entries are skipped.
func ParseChecklistIDs(s string) []int64 {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ErrChecklistIDs is returned by DecodeChecklistIDs for a malformed list.
var ErrChecklistIDs = errors.New("malformed checklist id list")

// DecodeChecklistIDs parses a comma-joined id list sent by a client. Unlike
// ParseChecklistIDs it fails on any entry that is not a positive id. An
// empty string is an empty list.
func DecodeChecklistIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%w: %q", ErrChecklistIDs, part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// JoinChecklistIDs returns ids sorted ascending and comma-joined.
func JoinChecklistIDs(ids []int64) string {
	sorted := append([]int64(nil), ids...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	parts := make([]string, 0, len(sorted))
	for i, id := range sorted {
		if i > 0 && sorted[i-1] == id {
			continue
		}
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ",")
}
