package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/store"
)

// DefaultTaxCategory is applied when a line carries no category or an
// unknown one.
const DefaultTaxCategory = "Standard"

// TaxTable resolves GST multipliers per tax category.
type TaxTable struct {
	repo store.Repository
}

func NewTaxTable(repo store.Repository) *TaxTable {
	return &TaxTable{repo: repo}
}

// RateFor resolves a category's rate. Unknown categories fall back to the
// default slab; a missing default slab means zero tax.
func (t *TaxTable) RateFor(ctx context.Context, category string) (decimal.Decimal, error) {
	slabs, err := t.repo.ListTaxSlabs(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	category = strings.TrimSpace(category)
	if category == "" {
		category = DefaultTaxCategory
	}

	var fallback decimal.Decimal
	for _, slab := range slabs {
		if slab.Category == category {
			return slab.Rate, nil
		}
		if slab.Category == DefaultTaxCategory {
			fallback = slab.Rate
		}
	}
	return fallback, nil
}

func (t *TaxTable) List(ctx context.Context) ([]domain.TaxSlab, error) {
	return t.repo.ListTaxSlabs(ctx)
}

func (t *TaxTable) SetRate(ctx context.Context, category string, rate decimal.Decimal) error {
	if rate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", store.ErrInvalidInput)
	}
	return t.repo.UpsertTaxSlab(ctx, domain.TaxSlab{Category: category, Rate: rate})
}

// Percent renders a multiplier as a display percentage, 0.05 -> 5.
func Percent(rate decimal.Decimal) decimal.Decimal {
	return rate.Mul(decimal.NewFromInt(100))
}
