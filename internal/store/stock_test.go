package store

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/erazemk/assetflow/internal/model"
	"github.com/erazemk/assetflow/internal/stock"
)

func (f *fixture) purchase(t *testing.T) *model.Purchase {
	t.Helper()
	p, err := CreatePurchase(f.ctx, f.db, model.Purchase{
		Supplier:    "Acme",
		PurchasedBy: "000303",
		Lines: []model.PurchaseLine{
			{ItemName: "Mouse", Quantity: 3, UnitPrice: decimal.RequireFromString("19.99"), Serials: []string{"M-1", "M-2", "M-3"}},
			{ItemName: "Cable", Quantity: 10, UnitPrice: decimal.RequireFromString("4.10")},
		},
	}, testNow)
	if err != nil {
		t.Fatalf("CreatePurchase: %v", err)
	}
	return p
}

func TestCreatePurchase(t *testing.T) {
	f := newFixture(t)
	p := f.purchase(t)

	if !p.Total.Equal(decimal.RequireFromString("100.97")) {
		t.Errorf("expected total 100.97, got %s", p.Total)
	}
	if len(p.Lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(p.Lines))
	}
	if len(p.Lines[0].Serials) != 3 || p.Lines[0].Serials[0] != "M-1" {
		t.Errorf("unexpected serials %v", p.Lines[0].Serials)
	}
	if !p.Lines[1].Total.Equal(decimal.RequireFromString("41")) {
		t.Errorf("expected cable total 41, got %s", p.Lines[1].Total)
	}

	units, err := ListStockUnits(f.ctx, f.db, "Mouse", model.UnitInStock)
	if err != nil {
		t.Fatalf("ListStockUnits: %v", err)
	}
	if len(units) != 3 {
		t.Errorf("expected 3 mice in stock, got %d", len(units))
	}
}

func TestCreatePurchaseRejectsDuplicateSerial(t *testing.T) {
	f := newFixture(t)
	f.purchase(t)

	_, err := CreatePurchase(f.ctx, f.db, model.Purchase{
		Supplier: "Acme",
		Lines: []model.PurchaseLine{
			{ItemName: "Mouse", Quantity: 1, UnitPrice: decimal.RequireFromString("19.99"), Serials: []string{"M-1"}},
		},
	}, testNow)
	if err == nil {
		t.Fatal("expected error for serial already in stock")
	}
}

func TestStockRequestAllocation(t *testing.T) {
	f := newFixture(t)
	f.purchase(t)

	req, err := CreateStockRequest(f.ctx, f.db, "000202", []NewStockRequestLine{{ItemName: "Mouse", RequestedQty: 2}}, testNow)
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	line := req.Lines[0]
	if line.Balance != 2 || line.ApprovedQty != nil {
		t.Errorf("unexpected new line %+v", line)
	}

	req, err = AllocateSerial(f.ctx, f.db, req.ID, line.ID, "M-2")
	if err != nil {
		t.Fatalf("AllocateSerial: %v", err)
	}
	if got := req.Lines[0]; got.Balance != 1 || len(got.Serials) != 1 || got.Serials[0] != "M-2" {
		t.Errorf("unexpected line after allocation %+v", got)
	}

	if _, err := AllocateSerial(f.ctx, f.db, req.ID, line.ID, "M-2"); !errors.Is(err, stock.ErrSerialAllocated) {
		t.Errorf("expected ErrSerialAllocated, got %v", err)
	}
	if _, err := AllocateSerial(f.ctx, f.db, req.ID, line.ID, "X-9"); !errors.Is(err, stock.ErrSerialNotInStock) {
		t.Errorf("expected ErrSerialNotInStock, got %v", err)
	}
	if _, err := AllocateSerial(f.ctx, f.db, req.ID, line.ID+1, "M-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if _, err := AllocateSerial(f.ctx, f.db, req.ID, line.ID, "M-3"); err != nil {
		t.Fatalf("AllocateSerial: %v", err)
	}
	if _, err := AllocateSerial(f.ctx, f.db, req.ID, line.ID, "M-1"); !errors.Is(err, stock.ErrAllocationFull) {
		t.Errorf("expected ErrAllocationFull, got %v", err)
	}

	units, err := ListStockUnits(f.ctx, f.db, "Mouse", model.UnitInStock)
	if err != nil {
		t.Fatalf("ListStockUnits: %v", err)
	}
	if len(units) != 1 || units[0].Serial != "M-1" {
		t.Errorf("expected only M-1 left in stock, got %+v", units)
	}
}

func TestSetApprovedQty(t *testing.T) {
	f := newFixture(t)
	f.purchase(t)

	req, err := CreateStockRequest(f.ctx, f.db, "000202", []NewStockRequestLine{{ItemName: "Mouse", RequestedQty: 3}}, testNow)
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	lineID := req.Lines[0].ID

	if _, err := SetApprovedQty(f.ctx, f.db, req.ID, lineID, 4); !errors.Is(err, stock.ErrApprovedTooHigh) {
		t.Errorf("expected ErrApprovedTooHigh, got %v", err)
	}

	if _, err := AllocateSerial(f.ctx, f.db, req.ID, lineID, "M-1"); err != nil {
		t.Fatalf("AllocateSerial: %v", err)
	}
	if _, err := SetApprovedQty(f.ctx, f.db, req.ID, lineID, 2); !errors.Is(err, stock.ErrApprovedOverSerial) {
		t.Errorf("expected ErrApprovedOverSerial, got %v", err)
	}

	req, err = SetApprovedQty(f.ctx, f.db, req.ID, lineID, 1)
	if err != nil {
		t.Fatalf("SetApprovedQty: %v", err)
	}
	if q := req.Lines[0].ApprovedQty; q == nil || *q != 1 {
		t.Errorf("expected approved qty 1, got %v", q)
	}
}

func TestAllocateSerialClearsUncoveredApproval(t *testing.T) {
	f := newFixture(t)
	f.purchase(t)

	req, err := CreateStockRequest(f.ctx, f.db, "000202", []NewStockRequestLine{{ItemName: "Mouse", RequestedQty: 3}}, testNow)
	if err != nil {
		t.Fatalf("CreateStockRequest: %v", err)
	}
	lineID := req.Lines[0].ID

	if _, err := SetApprovedQty(f.ctx, f.db, req.ID, lineID, 3); err != nil {
		t.Fatalf("SetApprovedQty: %v", err)
	}
	req, err = AllocateSerial(f.ctx, f.db, req.ID, lineID, "M-1")
	if err != nil {
		t.Fatalf("AllocateSerial: %v", err)
	}
	line := req.Lines[0]
	if len(line.Serials) != 1 {
		t.Fatalf("expected 1 serial, got %v", line.Serials)
	}
	if line.ApprovedQty != nil && *line.ApprovedQty > len(line.Serials) {
		t.Fatalf("approved qty %d exceeds %d allocated serials", *line.ApprovedQty, len(line.Serials))
	}
	if line.ApprovedQty != nil {
		t.Errorf("expected approval to be cleared, got %d", *line.ApprovedQty)
	}

	req, err = SetApprovedQty(f.ctx, f.db, req.ID, lineID, 1)
	if err != nil {
		t.Fatalf("SetApprovedQty after allocation: %v", err)
	}
	req, err = AllocateSerial(f.ctx, f.db, req.ID, lineID, "M-2")
	if err != nil {
		t.Fatalf("AllocateSerial: %v", err)
	}
	if q := req.Lines[0].ApprovedQty; q == nil || *q != 1 {
		t.Errorf("expected covered approval 1 to survive, got %v", q)
	}
}

func TestCreateStockRequestRejectsBadLines(t *testing.T) {
	f := newFixture(t)

	if _, err := CreateStockRequest(f.ctx, f.db, "000202", nil, testNow); err == nil {
		t.Error("expected error for empty request")
	}
	_, err := CreateStockRequest(f.ctx, f.db, "000202", []NewStockRequestLine{{ItemName: "Mouse"}}, testNow)
	if !errors.Is(err, stock.ErrInvalidQuantity) {
		t.Errorf("expected ErrInvalidQuantity, got %v", err)
	}
}
