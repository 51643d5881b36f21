package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/stock"
)

// CreatePurchase prices and records a purchase and registers its serials
// as units in stock.
func CreatePurchase(ctx context.Context, db *sql.DB, p model.Purchase, now time.Time) (*model.Purchase, error) {
	if strings.TrimSpace(p.Supplier) == "" || len(p.Lines) == 0 {
		return nil, fmt.Errorf("supplier and at least one line required")
	}
	if err := stock.PricePurchase(&p); err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO purchases (supplier, purchased_by, total, created_at) VALUES (?, ?, ?, ?)`,
		p.Supplier, p.PurchasedBy, p.Total.String(), model.FormatDateTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("recording purchase: %w", err)
	}
	purchaseID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting purchase id: %w", err)
	}

	for _, line := range p.Lines {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO purchase_lines (purchase_id, item_name, quantity, unit_price, total) VALUES (?, ?, ?, ?, ?)`,
			purchaseID, line.ItemName, line.Quantity, line.UnitPrice.String(), line.Total.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("recording purchase line: %w", err)
		}
		for _, serial := range line.Serials {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO stock_units (purchase_id, item_name, serial) VALUES (?, ?, ?)`,
				purchaseID, line.ItemName, serial,
			)
			if err != nil {
				return nil, fmt.Errorf("registering serial %s: %w", serial, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing purchase: %w", err)
	}
	return GetPurchase(ctx, db, purchaseID)
}

// GetPurchase returns a purchase with its lines and serials.
func GetPurchase(ctx context.Context, db *sql.DB, id int64) (*model.Purchase, error) {
	p := &model.Purchase{}
	var total string
	err := db.QueryRowContext(ctx,
		`SELECT id, supplier, purchased_by, total, created_at FROM purchases WHERE id = ?`, id,
	).Scan(&p.ID, &p.Supplier, &p.PurchasedBy, &total, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting purchase: %w", err)
	}
	if p.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("parsing purchase total: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT id, item_name, quantity, unit_price, total FROM purchase_lines WHERE purchase_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing purchase lines: %w", err)
	}
	for rows.Next() {
		var line model.PurchaseLine
		var price, lineTotal string
		if err := rows.Scan(&line.ID, &line.ItemName, &line.Quantity, &price, &lineTotal); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning purchase line: %w", err)
		}
		line.UnitPrice, _ = decimal.NewFromString(price)
		line.Total, _ = decimal.NewFromString(lineTotal)
		p.Lines = append(p.Lines, line)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("listing purchase lines: %w", err)
	}
	rows.Close()

	units, err := listUnits(ctx, db, `WHERE purchase_id = ?`, id)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		for i := range p.Lines {
			if p.Lines[i].ItemName == u.ItemName && len(p.Lines[i].Serials) < p.Lines[i].Quantity {
				p.Lines[i].Serials = append(p.Lines[i].Serials, u.Serial)
				break
			}
		}
	}
	return p, nil
}

// ListStockUnits returns units of an item, optionally only those with status.
func ListStockUnits(ctx context.Context, db *sql.DB, itemName, status string) ([]model.StockUnit, error) {
	where, args := `WHERE item_name = ?`, []any{itemName}
	if status != "" {
		where += ` AND status = ?`
		args = append(args, status)
	}
	return listUnits(ctx, db, where, args...)
}

func listUnits(ctx context.Context, db *sql.DB, where string, args ...any) ([]model.StockUnit, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, item_name, serial, status, purchase_id FROM stock_units `+where+` ORDER BY id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock units: %w", err)
	}
	defer rows.Close()

	var units []model.StockUnit
	for rows.Next() {
		var u model.StockUnit
		if err := rows.Scan(&u.ID, &u.ItemName, &u.Serial, &u.Status, &u.PurchaseID); err != nil {
			return nil, fmt.Errorf("scanning stock unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// NewStockRequestLine is one line of CreateStockRequest.
type NewStockRequestLine struct {
	ItemName     string `json:"item_name"`
	RequestedQty int    `json:"requested_qty"`
}

// CreateStockRequest records a request for items from stock.
func CreateStockRequest(ctx context.Context, db *sql.DB, requestedBy string, lines []NewStockRequestLine, now time.Time) (*model.StockRequest, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("at least one line required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO stock_requests (requested_by, created_at) VALUES (?, ?)`,
		requestedBy, model.FormatDateTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("recording stock request: %w", err)
	}
	requestID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting stock request id: %w", err)
	}

	for i, line := range lines {
		if strings.TrimSpace(line.ItemName) == "" || line.RequestedQty <= 0 {
			return nil, fmt.Errorf("line %d: %w", i+1, stock.ErrInvalidQuantity)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stock_request_lines (request_id, item_name, requested_qty) VALUES (?, ?, ?)`,
			requestID, line.ItemName, line.RequestedQty,
		)
		if err != nil {
			return nil, fmt.Errorf("recording stock request line: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing stock request: %w", err)
	}
	return GetStockRequest(ctx, db, requestID)
}

// GetStockRequest returns a stock request with allocations and balances.
func GetStockRequest(ctx context.Context, db *sql.DB, id int64) (*model.StockRequest, error) {
	r := &model.StockRequest{}
	err := db.QueryRowContext(ctx,
		`SELECT id, requested_by, created_at FROM stock_requests WHERE id = ?`, id,
	).Scan(&r.ID, &r.RequestedBy, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting stock request: %w", err)
	}

	rows, err := db.QueryContext(ctx,
		`SELECT l.id, l.request_id, l.item_name, l.requested_qty, l.approved_qty, u.serial
		 FROM stock_request_lines l
		 LEFT JOIN stock_allocations sa ON sa.line_id = l.id
		 LEFT JOIN stock_units u ON u.id = sa.unit_id
		 WHERE l.request_id = ? ORDER BY l.id, u.id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("listing stock request lines: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var line model.StockRequestLine
		var approved sql.NullInt64
		var serial sql.NullString
		if err := rows.Scan(&line.ID, &line.RequestID, &line.ItemName, &line.RequestedQty, &approved, &serial); err != nil {
			return nil, fmt.Errorf("scanning stock request line: %w", err)
		}
		if n := len(r.Lines); n == 0 || r.Lines[n-1].ID != line.ID {
			if approved.Valid {
				qty := int(approved.Int64)
				line.ApprovedQty = &qty
			}
			line.Serials = []string{}
			r.Lines = append(r.Lines, line)
		}
		last := &r.Lines[len(r.Lines)-1]
		if serial.Valid {
			last.Serials = append(last.Serials, serial.String)
		}
		last.Balance = stock.Balance(last)
	}
	return r, rows.Err()
}

func loadLine(ctx context.Context, tx *sql.Tx, requestID, lineID int64) (*model.StockRequestLine, error) {
	line := &model.StockRequestLine{Serials: []string{}}
	var approved sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT id, request_id, item_name, requested_qty, approved_qty FROM stock_request_lines
		 WHERE id = ? AND request_id = ?`, lineID, requestID,
	).Scan(&line.ID, &line.RequestID, &line.ItemName, &line.RequestedQty, &approved)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading stock request line: %w", err)
	}
	if approved.Valid {
		qty := int(approved.Int64)
		line.ApprovedQty = &qty
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT u.serial FROM stock_allocations sa JOIN stock_units u ON u.id = sa.unit_id
		 WHERE sa.line_id = ? ORDER BY u.id`, lineID,
	)
	if err != nil {
		return nil, fmt.Errorf("loading allocations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("scanning allocation: %w", err)
		}
		line.Serials = append(line.Serials, s)
	}
	return line, rows.Err()
}

// AllocateSerial assigns an in-stock unit to a request line.
func AllocateSerial(ctx context.Context, db *sql.DB, requestID, lineID int64, serial string) (*model.StockRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	line, err := loadLine(ctx, tx, requestID, lineID)
	if err != nil {
		return nil, err
	}

	var unit *model.StockUnit
	u := model.StockUnit{}
	err = tx.QueryRowContext(ctx,
		`SELECT id, item_name, serial, status, purchase_id FROM stock_units WHERE serial = ?`, serial,
	).Scan(&u.ID, &u.ItemName, &u.Serial, &u.Status, &u.PurchaseID)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, fmt.Errorf("loading stock unit: %w", err)
	default:
		unit = &u
	}

	if err := stock.Allocate(line, unit); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO stock_allocations (line_id, unit_id) VALUES (?, ?)`, lineID, unit.ID); err != nil {
		return nil, fmt.Errorf("recording allocation: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stock_units SET status = ? WHERE id = ?`, unit.Status, unit.ID); err != nil {
		return nil, fmt.Errorf("updating stock unit: %w", err)
	}
	if line.ApprovedQty == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE stock_request_lines SET approved_qty = NULL WHERE id = ?`, lineID); err != nil {
			return nil, fmt.Errorf("clearing approved quantity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing allocation: %w", err)
	}
	return GetStockRequest(ctx, db, requestID)
}

// SetApprovedQty records the approved quantity of a request line.
func SetApprovedQty(ctx context.Context, db *sql.DB, requestID, lineID int64, qty int) (*model.StockRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	line, err := loadLine(ctx, tx, requestID, lineID)
	if err != nil {
		return nil, err
	}
	if err := stock.CheckApproved(line, qty); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE stock_request_lines SET approved_qty = ? WHERE id = ?`, qty, lineID); err != nil {
		return nil, fmt.Errorf("updating approved quantity: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing approved quantity: %w", err)
	}
	return GetStockRequest(ctx, db, requestID)
}
