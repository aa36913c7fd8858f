package report

import (
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/domain"
)

func amount(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func testSales() []domain.SalesRecord {
	return []domain.SalesRecord{
		{ValueDate: "2026-08-29", ItemName: "Masala Tea", Quantity: 4, Amount: amount("48.00")},
		{ValueDate: "2026-08-30", ItemName: "Masala Tea", Quantity: 6, Amount: amount("72.00")},
		{ValueDate: "2026-08-30", ItemName: "Filter Coffee", Quantity: 2, Amount: amount("30.00")},
		{ValueDate: "2026-09-02", ItemName: "Masala Tea", Quantity: 9, Amount: amount("108.00")},
	}
}

func TestCompileRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{"no fields", Request{StartDate: "2026-08-01", EndDate: "2026-08-31"}},
		{"unknown field", Request{Fields: []string{"Customer_Name"}, StartDate: "2026-08-01", EndDate: "2026-08-31"}},
		{"aggregate on text field", Request{Fields: []string{"Item_Name"}, Aggregates: []string{"Item_Name"}, StartDate: "2026-08-01", EndDate: "2026-08-31"}},
		{"order by unselected field", Request{Fields: []string{"Item_Name"}, OrderBy: []string{"Quantity"}, StartDate: "2026-08-01", EndDate: "2026-08-31"}},
		{"missing dates", Request{Fields: []string{"Item_Name"}}},
		{"inverted dates", Request{Fields: []string{"Item_Name"}, StartDate: "2026-08-31", EndDate: "2026-08-01"}},
	}

	for _, tc := range cases {
		if _, err := Compile(tc.req); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("%s: expected ErrInvalidRequest, got %v", tc.name, err)
		}
	}
}

func TestCompileAggregateLabelsAndGroupBy(t *testing.T) {
	q, err := Compile(Request{
		Fields:     []string{"Item_Name"},
		Aggregates: []string{"Quantity", "Sales_Amt"},
		StartDate:  "2026-08-01",
		EndDate:    "2026-08-31",
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	labels := q.Labels()
	want := []string{"Item_Name", "Tot.Quantity", "Tot.Sales_Amt"}
	for i, label := range want {
		if labels[i] != label {
			t.Fatalf("expected label %q at %d, got %q", label, i, labels[i])
		}
	}
	if len(q.GroupBy) != 1 || q.GroupBy[0] != FieldItemName {
		t.Fatalf("expected GROUP BY Item_Name, got %v", q.GroupBy)
	}
}

func TestSQLRendering(t *testing.T) {
	q, err := Compile(Request{
		Fields:     []string{"Item_Name"},
		Aggregates: []string{"Quantity"},
		Category:   "tea",
		StartDate:  "2026-08-01",
		EndDate:    "2026-08-31",
		OrderBy:    []string{"Item_Name"},
		Descending: true,
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	sqlText, args := q.SQL()
	for _, fragment := range []string{
		"SELECT item_name, SUM(quantity)",
		"value_date BETWEEN $1 AND $2",
		"item_name IN (SELECT item_name FROM menu_tbl WHERE category = $3 AND NOT deleted)",
		"GROUP BY item_name",
		"ORDER BY item_name DESC",
	} {
		if !strings.Contains(sqlText, fragment) {
			t.Fatalf("expected SQL to contain %q, got:\n%s", fragment, sqlText)
		}
	}
	if len(args) != 3 || args[0] != "2026-08-01" || args[1] != "2026-08-31" || args[2] != "tea" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestEvaluateAggregatesWithinDateRange(t *testing.T) {
	q, err := Compile(Request{
		Fields:     []string{"Item_Name"},
		Aggregates: []string{"Quantity", "Sales_Amt"},
		StartDate:  "2026-08-29",
		EndDate:    "2026-08-31",
		OrderBy:    []string{"Item_Name"},
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	result := q.Evaluate(testSales(), nil)
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 grouped rows, got %d", len(result.Rows))
	}
	// Ordered by item name ascending; 2026-09-02 falls outside the range.
	if result.Rows[0][0] != "Filter Coffee" || result.Rows[0][1] != "2" || result.Rows[0][2] != "30.00" {
		t.Fatalf("unexpected first row %v", result.Rows[0])
	}
	if result.Rows[1][0] != "Masala Tea" || result.Rows[1][1] != "10" || result.Rows[1][2] != "120.00" {
		t.Fatalf("unexpected second row %v", result.Rows[1])
	}
}

func TestEvaluateCategoryFilterAndPlainRows(t *testing.T) {
	q, err := Compile(Request{
		Fields:     []string{"Value_Date", "Item_Name", "Quantity"},
		Category:   "tea",
		StartDate:  "2026-08-01",
		EndDate:    "2026-09-30",
		OrderBy:    []string{"Value_Date"},
		Descending: true,
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}

	teaItems := map[string]bool{"Masala Tea": true}
	result := q.Evaluate(testSales(), teaItems)
	if len(result.Rows) != 3 {
		t.Fatalf("expected 3 tea rows, got %d", len(result.Rows))
	}
	if result.Rows[0][0] != "2026-09-02" {
		t.Fatalf("expected newest date first, got %v", result.Rows[0])
	}
	for _, row := range result.Rows {
		if row[1] != "Masala Tea" {
			t.Fatalf("category filter leaked row %v", row)
		}
	}
}

func TestFieldNamesMatchedLoosely(t *testing.T) {
	q, err := Compile(Request{
		Fields:    []string{"value_date", "ITEMNAME"},
		StartDate: "2026-08-01",
		EndDate:   "2026-08-31",
	})
	if err != nil {
		t.Fatalf("compile failed: %v", err)
	}
	if q.Columns[0].Field != FieldValueDate || q.Columns[1].Field != FieldItemName {
		t.Fatalf("loose matching failed: %v", q.Columns)
	}
}
