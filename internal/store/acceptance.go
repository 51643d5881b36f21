package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/erazemk/assetflow/internal/model"
)

// Attachment is a file recorded with an acceptance.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// Acceptance is a new owner's confirmation of a transfer item.
type Acceptance struct {
	ItemID       int64
	AcceptedBy   string
	Date         string
	ChecklistIDs []int64
	Remarks      string
	Attachment   *Attachment
}

// AcceptItem records an acceptance and hands the asset to its new owner.
// The item must be approved and not yet accepted, the caller must be the
// new owner and every required checklist item of the asset type must be
// among the checked ids.
func AcceptItem(ctx context.Context, db *sql.DB, acc Acceptance, now time.Time) (*model.TransferItem, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var (
		assetID, typeID          int64
		newOwner                 string
		approvedBy, approvedDate sql.NullString
		acceptanceDate           sql.NullString
	)
	err = tx.QueryRowContext(ctx,
		`SELECT ti.asset_id, a.type_id, ti.new_owner, ti.approved_by, ti.approved_date, ti.acceptance_date
		 FROM transfer_items ti JOIN assets a ON a.id = ti.asset_id WHERE ti.id = ?`, acc.ItemID,
	).Scan(&assetID, &typeID, &newOwner, &approvedBy, &approvedDate, &acceptanceDate)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading transfer item: %w", err)
	}

	if acceptanceDate.String != "" {
		return nil, ErrAlreadyAccepted
	}
	if approvedBy.String == "" && approvedDate.String == "" {
		return nil, ErrNotActionable
	}
	if acc.AcceptedBy != newOwner {
		return nil, ErrNotNewOwner
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT id, is_required FROM transfer_checklists WHERE type_id = ? AND deleted_at IS NULL`, typeID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading checklist: %w", err)
	}
	required := make(map[int64]bool)
	for rows.Next() {
		var id int64
		var req bool
		if err := rows.Scan(&id, &req); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning checklist: %w", err)
		}
		required[id] = req
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("loading checklist: %w", err)
	}
	rows.Close()

	checked := make(map[int64]bool, len(acc.ChecklistIDs))
	for _, id := range acc.ChecklistIDs {
		if _, ok := required[id]; !ok {
			return nil, fmt.Errorf("%w: %d", ErrChecklistUnknown, id)
		}
		checked[id] = true
	}
	var missing []int64
	for id, req := range required {
		if req && !checked[id] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrChecklistMissing, model.JoinChecklistIDs(missing))
	}

	date := acc.Date
	if !model.ValidDate(date) {
		date = model.FormatDateTime(now)
	}

	var attID, attName, attMIME any
	var attData []byte
	if acc.Attachment != nil {
		attID, attName, attMIME, attData = uuid.NewString(), acc.Attachment.Name, acc.Attachment.MIME, acc.Attachment.Data
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE transfer_items SET acceptance_date = ?, acceptance_by = ?, acceptance_checklist_items = ?,
		        acceptance_remarks = ?, attachment_id = ?, attachment_name = ?, attachment_mime = ?, attachment = ?
		 WHERE id = ?`,
		date, acc.AcceptedBy, model.JoinChecklistIDs(acc.ChecklistIDs), acc.Remarks,
		attID, attName, attMIME, attData, acc.ItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("recording acceptance: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE assets SET owner = ? WHERE id = ?`, newOwner, assetID); err != nil {
		return nil, fmt.Errorf("moving asset to new owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing acceptance: %w", err)
	}
	return GetTransferItemByID(ctx, db, acc.ItemID)
}

// GetAcceptanceAttachment returns the attachment stored with an item's
// acceptance, or nil if there is none.
func GetAcceptanceAttachment(ctx context.Context, db *sql.DB, itemID int64) (*Attachment, error) {
	var name, mime sql.NullString
	var data []byte
	err := db.QueryRowContext(ctx,
		`SELECT attachment_name, attachment_mime, attachment FROM transfer_items
		 WHERE id = ? AND attachment_id IS NOT NULL`, itemID,
	).Scan(&name, &mime, &data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting acceptance attachment: %w", err)
	}
	return &Attachment{Name: name.String, MIME: mime.String, Data: data}, nil
}
