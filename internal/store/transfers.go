package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/assetflow/internal/model"
)

// NewTransferItem describes one asset to move in CreateTransfer.
type NewTransferItem struct {
	AssetID       int64  `json:"asset_id"`
	NewOwner      string `json:"new_owner"`
	CostCenter    string `json:"cost_center"`
	Department    string `json:"department"`
	Location      string `json:"location"`
	Reason        string `json:"reason"`
	EffectiveDate string `json:"effective_date"`
}

// TransferFilter selects transfers in ListTransfers. Empty fields match all.
type TransferFilter struct {
	// Initiator matches transfers submitted by this user.
	Initiator string
	// NewOwner matches transfers with at least one item for this user and
	// trims the nested items to that user's.
	NewOwner string
}

// CreateTransfer submits a transfer of one or more assets. When holder is
// non-empty every asset must currently be held by holder.
func CreateTransfer(ctx context.Context, db *sql.DB, transferBy, holder string, items []NewTransferItem, now time.Time) (*model.Transfer, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("transfer needs at least one item")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO transfers (request_no, transfer_by, transfer_date) VALUES (?, ?, ?)`,
		uuid.NewString(), transferBy, model.FormatDateTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("recording transfer: %w", err)
	}
	transferID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting transfer id: %w", err)
	}

	requestNo := fmt.Sprintf("TR%s%05d", now.Format("200601"), transferID)
	if _, err := tx.ExecContext(ctx, `UPDATE transfers SET request_no = ? WHERE id = ?`, requestNo, transferID); err != nil {
		return nil, fmt.Errorf("numbering transfer: %w", err)
	}

	seen := make(map[int64]bool)
	for _, it := range items {
		if it.AssetID <= 0 || strings.TrimSpace(it.NewOwner) == "" {
			return nil, fmt.Errorf("asset_id and new_owner are required for every item")
		}
		if seen[it.AssetID] {
			return nil, fmt.Errorf("asset %d listed twice", it.AssetID)
		}
		seen[it.AssetID] = true

		var owner string
		err := tx.QueryRowContext(ctx, `SELECT owner FROM assets WHERE id = ?`, it.AssetID).Scan(&owner)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("asset %d: %w", it.AssetID, ErrNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("checking asset owner: %w", err)
		}
		if holder != "" && owner != holder {
			return nil, fmt.Errorf("asset %d: %w", it.AssetID, ErrAssetNotOwned)
		}
		if owner == it.NewOwner {
			return nil, fmt.Errorf("asset %d: cannot transfer to same owner", it.AssetID)
		}

		var open int
		err = tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM transfer_items ti JOIN transfers t ON t.id = ti.transfer_id
			 WHERE ti.asset_id = ? AND ti.acceptance_date IS NULL AND t.approval_status != 'rejected'`,
			it.AssetID,
		).Scan(&open)
		if err != nil {
			return nil, fmt.Errorf("checking open transfers: %w", err)
		}
		if open > 0 {
			return nil, fmt.Errorf("asset %d: %w", it.AssetID, ErrAssetInTransfer)
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO transfer_items (transfer_id, asset_id, current_owner, new_owner, cost_center,
			                             department, location, reason, effective_date)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			transferID, it.AssetID, owner, it.NewOwner, it.CostCenter, it.Department, it.Location, it.Reason, it.EffectiveDate,
		)
		if err != nil {
			return nil, fmt.Errorf("recording transfer item: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transfer: %w", err)
	}

	return GetTransfer(ctx, db, transferID)
}

const transferQuery = `SELECT id, request_no, transfer_by, transfer_date, approval_status,
	approval_date, approved_by, approval_remarks FROM transfers`

func scanTransfer(row rowScanner, t *model.Transfer) error {
	var approvalDate, approvedBy, remarks sql.NullString
	if err := row.Scan(&t.ID, &t.RequestNo, &t.TransferBy, &t.TransferDate, &t.ApprovalStatus,
		&approvalDate, &approvedBy, &remarks); err != nil {
		return err
	}
	t.ApprovalDate = approvalDate.String
	t.ApprovedBy = approvedBy.String
	t.ApprovalRemarks = remarks.String
	return nil
}

// GetTransfer returns a transfer with all of its items.
func GetTransfer(ctx context.Context, db *sql.DB, id int64) (*model.Transfer, error) {
	t := &model.Transfer{}
	err := scanTransfer(db.QueryRowContext(ctx, transferQuery+` WHERE id = ?`, id), t)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting transfer: %w", err)
	}

	items, err := listItems(ctx, db, ` WHERE ti.transfer_id = ?`, id)
	if err != nil {
		return nil, err
	}
	t.Items = items
	return t, nil
}

// ListTransfers returns transfers with nested items, newest first.
func ListTransfers(ctx context.Context, db *sql.DB, f TransferFilter) ([]model.Transfer, error) {
	query := transferQuery + ` WHERE 1=1`
	var args []any

	if f.Initiator != "" {
		query += ` AND transfer_by = ?`
		args = append(args, f.Initiator)
	}
	if f.NewOwner != "" {
		query += ` AND id IN (SELECT transfer_id FROM transfer_items WHERE new_owner = ?)`
		args = append(args, f.NewOwner)
	}
	query += ` ORDER BY id DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfers: %w", err)
	}

	var transfers []model.Transfer
	for rows.Next() {
		var t model.Transfer
		if err := scanTransfer(rows, &t); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning transfer: %w", err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing transfers: %w", err)
	}
	rows.Close()

	for i := range transfers {
		where, itemArgs := ` WHERE ti.transfer_id = ?`, []any{transfers[i].ID}
		if f.NewOwner != "" {
			where += ` AND ti.new_owner = ?`
			itemArgs = append(itemArgs, f.NewOwner)
		}
		items, err := listItems(ctx, db, where, itemArgs...)
		if err != nil {
			return nil, err
		}
		transfers[i].Items = items
	}
	return transfers, nil
}

// GetTransferItem returns one item of a transfer.
func GetTransferItem(ctx context.Context, db *sql.DB, transferID, itemID int64) (*model.TransferItem, error) {
	items, err := listItems(ctx, db, ` WHERE ti.transfer_id = ? AND ti.id = ?`, transferID, itemID)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// GetTransferItemByID returns an item by its own id.
func GetTransferItemByID(ctx context.Context, db *sql.DB, itemID int64) (*model.TransferItem, error) {
	items, err := listItems(ctx, db, ` WHERE ti.id = ?`, itemID)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	return &items[0], nil
}

// ListAwaitingAcceptance returns approved, unaccepted items of approved
// transfers whose approval is older than approvedBefore.
func ListAwaitingAcceptance(ctx context.Context, db *sql.DB, approvedBefore time.Time) ([]model.TransferItem, error) {
	return listItems(ctx, db,
		` JOIN transfers t ON t.id = ti.transfer_id
		  WHERE t.approval_status = 'approved' AND ti.acceptance_date IS NULL
		    AND ti.approved_date IS NOT NULL AND ti.approved_date < ?
		  ORDER BY ti.id`,
		model.FormatDateTime(approvedBefore),
	)
}

// DecideTransfer approves or rejects a pending transfer. Approval stamps
// every item with the approver and date; rejection leaves items unapproved.
func DecideTransfer(ctx context.Context, db *sql.DB, id int64, status, decidedBy, remarks string, now time.Time) (*model.Transfer, error) {
	if status != model.ApprovalApproved && status != model.ApprovalRejected {
		return nil, fmt.Errorf("invalid approval status %q", status)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT approval_status FROM transfers WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("checking transfer status: %w", err)
	}
	if current != model.ApprovalPending {
		return nil, ErrAlreadyDecided
	}

	date := model.FormatDateTime(now)
	_, err = tx.ExecContext(ctx,
		`UPDATE transfers SET approval_status = ?, approval_date = ?, approved_by = ?, approval_remarks = ?
		 WHERE id = ?`,
		status, date, decidedBy, remarks, id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating transfer approval: %w", err)
	}

	if status == model.ApprovalApproved {
		_, err = tx.ExecContext(ctx,
			`UPDATE transfer_items SET approved_by = ?, approved_date = ? WHERE transfer_id = ?`,
			decidedBy, date, id,
		)
		if err != nil {
			return nil, fmt.Errorf("approving transfer items: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approval: %w", err)
	}
	return GetTransfer(ctx, db, id)
}

const itemQuery = `SELECT ti.id, ti.transfer_id, ti.asset_id, a.register_number, a.type_id, typ.name,
	ti.current_owner, ti.new_owner, ti.cost_center, ti.department, ti.location, ti.reason, ti.effective_date,
	ti.approved_by, ti.approved_date, ti.acceptance_date, ti.acceptance_by,
	ti.acceptance_checklist_items, ti.acceptance_remarks, ti.attachment_id
	FROM transfer_items ti
	JOIN assets a ON a.id = ti.asset_id
	JOIN asset_types typ ON typ.id = a.type_id`

// AttachmentPath is where an item's acceptance attachment is served.
func AttachmentPath(itemID int64) string {
	return fmt.Sprintf("/api/assets/transfers/%d/acceptance/attachment", itemID)
}

func listItems(ctx context.Context, db *sql.DB, where string, args ...any) ([]model.TransferItem, error) {
	rows, err := db.QueryContext(ctx, itemQuery+where, args...)
	if err != nil {
		return nil, fmt.Errorf("listing transfer items: %w", err)
	}

	type ownerPair struct{ current, next string }
	var items []model.TransferItem
	var owners []ownerPair
	for rows.Next() {
		var it model.TransferItem
		var p ownerPair
		var approvedBy, approvedDate, accDate, accBy, accItems, accRemarks, attachment sql.NullString
		if err := rows.Scan(&it.ID, &it.TransferID, &it.Asset.ID, &it.Asset.RegisterNumber, &it.Asset.Type.ID, &it.Asset.Type.Name,
			&p.current, &p.next, &it.CostCenter, &it.Department, &it.Location, &it.Reason, &it.EffectiveDate,
			&approvedBy, &approvedDate, &accDate, &accBy, &accItems, &accRemarks, &attachment); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning transfer item: %w", err)
		}
		it.ApprovedBy = approvedBy.String
		it.ApprovedDate = approvedDate.String
		it.AcceptanceDate = accDate.String
		it.AcceptanceBy = accBy.String
		it.AcceptanceChecklistItems = accItems.String
		it.AcceptanceRemarks = accRemarks.String
		if attachment.Valid {
			it.AcceptanceAttachments = AttachmentPath(it.ID)
		}
		items = append(items, it)
		owners = append(owners, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing transfer items: %w", err)
	}
	rows.Close()
	if len(items) == 0 {
		return items, nil
	}

	employees, err := EmployeesByUsername(ctx, db)
	if err != nil {
		return nil, err
	}
	for i := range items {
		items[i].CurrentOwner = employee(employees, owners[i].current)
		items[i].NewOwner = employee(employees, owners[i].next)
	}
	return items, nil
}
