package report

import (
	"fmt"
	"strings"
)

var sqlColumn = map[Field]string{
	FieldValueDate: "value_date::text",
	FieldItemName:  "item_name",
	FieldQuantity:  "quantity",
	FieldSalesAmt:  "sales_amt",
}

var sqlGroupColumn = map[Field]string{
	FieldValueDate: "value_date",
	FieldItemName:  "item_name",
	FieldQuantity:  "quantity",
	FieldSalesAmt:  "sales_amt",
}

// SQL renders the query as a parameterized statement over sales_dtl_tbl.
// Column identifiers come from the fixed field whitelist, never from user
// input; only dates and the category name travel as parameters.
func (q *Query) SQL() (string, []any) {
	var sb strings.Builder
	sb.WriteString("SELECT ")

	selects := make([]string, 0, len(q.Columns))
	for _, col := range q.Columns {
		if col.Aggregate {
			selects = append(selects, fmt.Sprintf("SUM(%s)", sqlGroupColumn[col.Field]))
		} else {
			selects = append(selects, sqlColumn[col.Field])
		}
	}
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM sales_dtl_tbl WHERE value_date BETWEEN $1 AND $2")

	args := []any{q.StartDate, q.EndDate}
	if q.Category != "" {
		args = append(args, q.Category)
		sb.WriteString(fmt.Sprintf(" AND item_name IN (SELECT item_name FROM menu_tbl WHERE category = $%d AND NOT deleted)", len(args)))
	}

	if len(q.GroupBy) > 0 {
		keys := make([]string, 0, len(q.GroupBy))
		for _, field := range q.GroupBy {
			keys = append(keys, sqlGroupColumn[field])
		}
		sb.WriteString(" GROUP BY ")
		sb.WriteString(strings.Join(keys, ", "))
	}

	if len(q.OrderBy) > 0 {
		keys := make([]string, 0, len(q.OrderBy))
		for _, field := range q.OrderBy {
			keys = append(keys, sqlGroupColumn[field])
		}
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(keys, ", "))
		if q.Descending {
			sb.WriteString(" DESC")
		}
	}

	return sb.String(), args
}
