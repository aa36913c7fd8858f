package report

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/domain"
)

// Evaluate runs the compiled query over an in-memory sales slice.
// categoryItems restricts rows to the given item names; a nil set means no
// category filter. Output cells match what the SQL rendering produces.
func (q *Query) Evaluate(records []domain.SalesRecord, categoryItems map[string]bool) *domain.ReportResult {
	matched := make([]domain.SalesRecord, 0, len(records))
	for _, rec := range records {
		if rec.ValueDate < q.StartDate || rec.ValueDate > q.EndDate {
			continue
		}
		if categoryItems != nil && !categoryItems[rec.ItemName] {
			continue
		}
		matched = append(matched, rec)
	}

	var rows []reportRow
	if len(q.GroupBy) > 0 || hasAggregate(q.Columns) {
		rows = q.aggregateRows(matched)
	} else {
		rows = make([]reportRow, 0, len(matched))
		for _, rec := range matched {
			rows = append(rows, reportRow{rec: rec})
		}
	}

	q.sortRows(rows)

	out := &domain.ReportResult{Columns: q.Labels(), Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		cells := make([]string, 0, len(q.Columns))
		for _, col := range q.Columns {
			cells = append(cells, row.cell(col))
		}
		out.Rows = append(out.Rows, cells)
	}
	return out
}

func hasAggregate(cols []Column) bool {
	for _, col := range cols {
		if col.Aggregate {
			return true
		}
	}
	return false
}

type reportRow struct {
	rec       domain.SalesRecord
	sumQty    int
	sumAmount decimal.Decimal
}

func (r reportRow) cell(col Column) string {
	if col.Aggregate {
		if col.Field == FieldQuantity {
			return strconv.Itoa(r.sumQty)
		}
		return r.sumAmount.StringFixed(2)
	}
	switch col.Field {
	case FieldValueDate:
		return r.rec.ValueDate
	case FieldItemName:
		return r.rec.ItemName
	case FieldQuantity:
		return strconv.Itoa(r.rec.Quantity)
	default:
		return r.rec.Amount.StringFixed(2)
	}
}

func (q *Query) aggregateRows(matched []domain.SalesRecord) []reportRow {
	grouped := map[string]*reportRow{}
	order := make([]string, 0, len(matched))
	for _, rec := range matched {
		parts := make([]string, 0, len(q.GroupBy))
		for _, field := range q.GroupBy {
			switch field {
			case FieldValueDate:
				parts = append(parts, rec.ValueDate)
			case FieldItemName:
				parts = append(parts, rec.ItemName)
			case FieldQuantity:
				parts = append(parts, strconv.Itoa(rec.Quantity))
			case FieldSalesAmt:
				parts = append(parts, rec.Amount.StringFixed(2))
			}
		}
		key := strings.Join(parts, "\x1f")
		row, ok := grouped[key]
		if !ok {
			row = &reportRow{rec: rec}
			grouped[key] = row
			order = append(order, key)
		}
		row.sumQty += rec.Quantity
		row.sumAmount = row.sumAmount.Add(rec.Amount)
	}

	rows := make([]reportRow, 0, len(grouped))
	for _, key := range order {
		rows = append(rows, *grouped[key])
	}
	return rows
}

func (q *Query) sortRows(rows []reportRow) {
	if len(q.OrderBy) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, field := range q.OrderBy {
			c := compareField(rows[i].rec, rows[j].rec, field)
			if c == 0 {
				continue
			}
			if q.Descending {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}

func compareField(a, b domain.SalesRecord, field Field) int {
	switch field {
	case FieldValueDate:
		return strings.Compare(a.ValueDate, b.ValueDate)
	case FieldItemName:
		return strings.Compare(a.ItemName, b.ItemName)
	case FieldQuantity:
		return a.Quantity - b.Quantity
	default:
		return a.Amount.Cmp(b.Amount)
	}
}
