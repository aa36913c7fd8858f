package billing

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/store"
)

var two = decimal.NewFromInt(2)

// Engine turns a cart into a bill. All arithmetic runs on decimals; money
// is rounded to two places at the summary boundary only.
type Engine struct {
	taxes *TaxTable
}

func NewEngine(taxes *TaxTable) *Engine {
	return &Engine{taxes: taxes}
}

// Summarize groups cart lines by (item, unit price), totals each group,
// applies the group's tax slab and splits the tax evenly into CGST and
// SGST. The displayed GST percentage is the highest rate on the bill.
// An empty line set yields a zero-valued summary, not an error.
func (e *Engine) Summarize(ctx context.Context, lines []domain.CartLine) (domain.BillSummary, error) {
	if len(lines) == 0 {
		return domain.BillSummary{Lines: []domain.BillLine{}}, nil
	}

	type groupKey struct {
		item  string
		price string
	}
	grouped := make(map[groupKey]*domain.CartLine)
	order := make([]groupKey, 0, len(lines))
	for _, line := range lines {
		if line.Quantity <= 0 {
			return domain.BillSummary{}, fmt.Errorf("%w: non-positive quantity for %q", store.ErrInvalidInput, line.ItemName)
		}
		key := groupKey{item: line.ItemName, price: line.UnitPrice.String()}
		if existing, ok := grouped[key]; ok {
			existing.Quantity += line.Quantity
			continue
		}
		clone := line
		grouped[key] = &clone
		order = append(order, key)
	}

	summary := domain.BillSummary{Lines: make([]domain.BillLine, 0, len(order))}
	subtotal := decimal.Zero
	tax := decimal.Zero
	maxRate := decimal.Zero

	for _, key := range order {
		line := grouped[key]
		rate, err := e.taxes.RateFor(ctx, line.TaxCategory)
		if err != nil {
			return domain.BillSummary{}, err
		}

		lineTotal := line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))
		lineTax := lineTotal.Mul(rate)
		subtotal = subtotal.Add(lineTotal)
		tax = tax.Add(lineTax)
		if rate.GreaterThan(maxRate) {
			maxRate = rate
		}

		summary.Lines = append(summary.Lines, domain.BillLine{
			ItemName:  line.ItemName,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: lineTotal.Round(2),
			Tax:       lineTax.Round(2),
		})
	}

	summary.Subtotal = subtotal.Round(2)
	summary.Tax = tax.Round(2)
	summary.CGST = tax.Div(two).Round(2)
	summary.SGST = summary.CGST
	summary.Total = subtotal.Add(tax).Round(2)
	summary.GSTPercent = Percent(maxRate)
	return summary, nil
}
