package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/erazemk/assetflow/internal/model"
)

// ListChecklist returns the active checklist of an asset type in display order.
func ListChecklist(ctx context.Context, db *sql.DB, typeID int64) ([]model.ChecklistItem, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, type_id, item, is_required, position FROM transfer_checklists
		 WHERE type_id = ? AND deleted_at IS NULL ORDER BY position, id`, typeID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing checklist: %w", err)
	}
	defer rows.Close()

	var items []model.ChecklistItem
	for rows.Next() {
		var c model.ChecklistItem
		if err := rows.Scan(&c.ID, &c.TypeID, &c.Item, &c.IsRequired, &c.Position); err != nil {
			return nil, fmt.Errorf("scanning checklist item: %w", err)
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

// CreateChecklistItem appends an item to an asset type's checklist.
func CreateChecklistItem(ctx context.Context, db *sql.DB, typeID int64, item string, required bool) (*model.ChecklistItem, error) {
	var position int
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), 0) + 1 FROM transfer_checklists WHERE type_id = ?`, typeID,
	).Scan(&position)
	if err != nil {
		return nil, fmt.Errorf("finding checklist position: %w", err)
	}

	result, err := db.ExecContext(ctx,
		`INSERT INTO transfer_checklists (type_id, item, is_required, position) VALUES (?, ?, ?, ?)`,
		typeID, item, required, position,
	)
	if err != nil {
		return nil, fmt.Errorf("creating checklist item: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting checklist item id: %w", err)
	}
	return &model.ChecklistItem{ID: id, TypeID: typeID, Item: item, IsRequired: required, Position: position}, nil
}

// DeleteChecklistItem retires a checklist item. Past acceptances keep
// referring to its id.
func DeleteChecklistItem(ctx context.Context, db *sql.DB, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE transfer_checklists SET deleted_at = CURRENT_TIMESTAMP WHERE id = ? AND deleted_at IS NULL`, id,
	)
	if err != nil {
		return fmt.Errorf("deleting checklist item: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
