package report

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"chaikadai/backend/internal/domain"
)

// ErrInvalidRequest marks report requests that fail compilation. Callers
// detect it with errors.Is and treat it as user error rather than a store
// failure.
var ErrInvalidRequest = errors.New("invalid report request")

type Field string

const (
	FieldValueDate Field = "Value_Date"
	FieldItemName  Field = "Item_Name"
	FieldQuantity  Field = "Quantity"
	FieldSalesAmt  Field = "Sales_Amt"
)

// Request is the raw, user-supplied report shape. Field names are matched
// case-insensitively with underscores ignored.
type Request struct {
	Fields     []string `json:"fields"`
	Aggregates []string `json:"aggregates"`
	Category   string   `json:"category"`
	StartDate  string   `json:"start_date"`
	EndDate    string   `json:"end_date"`
	OrderBy    []string `json:"order_by"`
	Descending bool     `json:"descending"`
}

type Column struct {
	Field     Field
	Aggregate bool
}

// Label is the column heading: the field name for plain columns,
// "Tot.<field>" for aggregated ones.
func (c Column) Label() string {
	if c.Aggregate {
		return "Tot." + string(c.Field)
	}
	return string(c.Field)
}

// Query is the compiled, validated form of a report request. It renders to
// parameterized SQL for the Postgres store and evaluates directly over a
// sales slice for the in-memory store.
type Query struct {
	Columns    []Column
	GroupBy    []Field
	Category   string
	StartDate  string
	EndDate    string
	OrderBy    []Field
	Descending bool
}

func (q *Query) Labels() []string {
	labels := make([]string, 0, len(q.Columns))
	for _, col := range q.Columns {
		labels = append(labels, col.Label())
	}
	return labels
}

var fieldByKey = map[string]Field{
	"valuedate": FieldValueDate,
	"itemname":  FieldItemName,
	"quantity":  FieldQuantity,
	"salesamt":  FieldSalesAmt,
}

func parseField(raw string) (Field, error) {
	key := strings.ToLower(raw)
	key = strings.NewReplacer("_", "", ".", "", " ", "").Replace(key)
	field, ok := fieldByKey[key]
	if !ok {
		return "", fmt.Errorf("%w: unknown field %q", ErrInvalidRequest, raw)
	}
	return field, nil
}

func aggregatable(f Field) bool {
	return f == FieldQuantity || f == FieldSalesAmt
}

// Compile validates a request and produces the structured query. Rules:
// aggregates only on Quantity and Sales_Amt; when any aggregate is present
// every selected plain field becomes a GROUP BY key; ordering is allowed
// only on selected plain fields; the date range is mandatory and inclusive.
func Compile(req Request) (*Query, error) {
	if len(req.Fields) == 0 && len(req.Aggregates) == 0 {
		return nil, fmt.Errorf("%w: no fields selected", ErrInvalidRequest)
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start date %q", ErrInvalidRequest, req.StartDate)
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end date %q", ErrInvalidRequest, req.EndDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end date before start date", ErrInvalidRequest)
	}

	q := &Query{
		Category:   strings.ToLower(strings.TrimSpace(req.Category)),
		StartDate:  start.Format(domain.DateLayout),
		EndDate:    end.Format(domain.DateLayout),
		Descending: req.Descending,
	}

	seen := map[Field]bool{}
	plain := map[Field]bool{}
	for _, raw := range req.Fields {
		field, err := parseField(raw)
		if err != nil {
			return nil, err
		}
		if seen[field] {
			return nil, fmt.Errorf("%w: duplicate field %q", ErrInvalidRequest, raw)
		}
		seen[field] = true
		plain[field] = true
		q.Columns = append(q.Columns, Column{Field: field})
	}

	for _, raw := range req.Aggregates {
		field, err := parseField(raw)
		if err != nil {
			return nil, err
		}
		if !aggregatable(field) {
			return nil, fmt.Errorf("%w: cannot aggregate %q", ErrInvalidRequest, raw)
		}
		if plain[field] {
			return nil, fmt.Errorf("%w: field %q selected both plain and aggregated", ErrInvalidRequest, raw)
		}
		q.Columns = append(q.Columns, Column{Field: field, Aggregate: true})
	}

	if len(req.Aggregates) > 0 {
		for _, col := range q.Columns {
			if !col.Aggregate {
				q.GroupBy = append(q.GroupBy, col.Field)
			}
		}
	}

	for _, raw := range req.OrderBy {
		field, err := parseField(raw)
		if err != nil {
			return nil, err
		}
		if !plain[field] {
			return nil, fmt.Errorf("%w: order by %q requires it as a plain selected field", ErrInvalidRequest, raw)
		}
		q.OrderBy = append(q.OrderBy, field)
	}

	return q, nil
}

func parseDate(raw string) (time.Time, error) {
	return time.Parse(domain.DateLayout, strings.TrimSpace(raw))
}
