// Package stock reconciles requested quantities against serial-tagged
// units in stock and prices purchases.
package stock

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/erazemk/assetflow/internal/model"
)

var (
	ErrAllocationFull     = errors.New("requested quantity already allocated")
	ErrSerialNotInStock   = errors.New("serial is not in stock")
	ErrSerialAllocated    = errors.New("serial already allocated to this line")
	ErrItemMismatch       = errors.New("serial belongs to a different item")
	ErrApprovedTooHigh    = errors.New("approved quantity exceeds requested quantity")
	ErrApprovedOverSerial = errors.New("approved quantity exceeds allocated serials")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
	ErrInvalidLine        = errors.New("invalid purchase line")
)

// Balance returns how many units of the line are still unallocated.
func Balance(line *model.StockRequestLine) int {
	b := line.RequestedQty - len(line.Serials)
	if b < 0 {
		return 0
	}
	return b
}

// CheckAllocation validates adding unit to line.
func CheckAllocation(line *model.StockRequestLine, unit *model.StockUnit) error {
	if unit == nil || unit.Status != model.UnitInStock {
		for _, s := range line.Serials {
			if unit != nil && s == unit.Serial {
				return ErrSerialAllocated
			}
		}
		return ErrSerialNotInStock
	}
	if !strings.EqualFold(unit.ItemName, line.ItemName) {
		return ErrItemMismatch
	}
	if len(line.Serials) >= line.RequestedQty {
		return ErrAllocationFull
	}
	return nil
}

// Allocate appends unit's serial to line after CheckAllocation passes. An
// approved quantity above the new serial count is cleared and has to be
// approved again.
func Allocate(line *model.StockRequestLine, unit *model.StockUnit) error {
	if err := CheckAllocation(line, unit); err != nil {
		return err
	}
	line.Serials = append(line.Serials, unit.Serial)
	unit.Status = model.UnitAllocated
	line.Balance = Balance(line)
	if line.ApprovedQty != nil && *line.ApprovedQty > len(line.Serials) {
		line.ApprovedQty = nil
	}
	return nil
}

// CheckApproved validates an approved quantity for line. Lines with
// allocated serials cannot be approved above the allocated count.
func CheckApproved(line *model.StockRequestLine, qty int) error {
	if qty < 0 {
		return ErrInvalidQuantity
	}
	if qty > line.RequestedQty {
		return ErrApprovedTooHigh
	}
	if n := len(line.Serials); n > 0 && qty > n {
		return fmt.Errorf("%w: %d allocated, %d approved", ErrApprovedOverSerial, n, qty)
	}
	return nil
}

// LineTotal returns quantity * unit price.
func LineTotal(line model.PurchaseLine) decimal.Decimal {
	return line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
}

// PricePurchase fills in line totals and the purchase total. Serial-tagged
// lines must list exactly one serial per unit.
func PricePurchase(p *model.Purchase) error {
	total := decimal.Zero
	seen := map[string]bool{}
	for i := range p.Lines {
		line := &p.Lines[i]
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i+1, ErrInvalidQuantity)
		}
		if line.UnitPrice.IsNegative() {
			return fmt.Errorf("line %d: %w: unit price must not be negative", i+1, ErrInvalidLine)
		}
		if len(line.Serials) > 0 && len(line.Serials) != line.Quantity {
			return fmt.Errorf("line %d: %w: %d serials for quantity %d", i+1, ErrInvalidLine, len(line.Serials), line.Quantity)
		}
		for _, s := range line.Serials {
			if s == "" || seen[s] {
				return fmt.Errorf("line %d: %w: blank or duplicate serial %q", i+1, ErrInvalidLine, s)
			}
			seen[s] = true
		}
		line.Total = LineTotal(*line)
		total = total.Add(line.Total)
	}
	p.Total = total
	return nil
}
