package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the canonical day format used for ledger snapshots,
// sales records and audit entries.
const DateLayout = "2006-01-02"

func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}

type StockEntry struct {
	ItemName     string `json:"item_name"`
	Available    int    `json:"available"`
	Special      bool   `json:"special"`
	SnapshotDate string `json:"snapshot_date"`
}

type MenuItem struct {
	ItemName    string          `json:"item_name"`
	Category    string          `json:"category"`
	Subtype     string          `json:"subtype,omitempty"`
	Price       decimal.Decimal `json:"price"`
	TaxCategory string          `json:"tax_category"`
	Special     bool            `json:"special"`
	Deleted     bool            `json:"-"`
}

// TaxSlab maps a tax category to its GST multiplier, e.g. 0.05 for 5%.
type TaxSlab struct {
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
}

// BulkPrice is a row of the bulk-order price list. Bulk uploads are priced
// from this list, never from the walk-in menu.
type BulkPrice struct {
	ItemName    string          `json:"item_name"`
	Price       decimal.Decimal `json:"price"`
	TaxCategory string          `json:"tax_category"`
}

type CartLine struct {
	ItemName    string          `json:"item_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TaxCategory string          `json:"tax_category"`
}

type Cart struct {
	ID        string     `json:"id"`
	Lines     []CartLine `json:"lines"`
	CreatedAt time.Time  `json:"created_at"`
}

type BillLine struct {
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	LineTotal decimal.Decimal `json:"line_total"`
	Tax       decimal.Decimal `json:"tax"`
}

type BillSummary struct {
	Lines      []BillLine      `json:"lines"`
	Subtotal   decimal.Decimal `json:"subtotal"`
	Tax        decimal.Decimal `json:"tax"`
	CGST       decimal.Decimal `json:"cgst"`
	SGST       decimal.Decimal `json:"sgst"`
	Total      decimal.Decimal `json:"total"`
	GSTPercent decimal.Decimal `json:"gst_percent"`
}

// Bulk batch lifecycle. A batch that collides with an already committed
// (date, file name) pair never leaves BatchRejectedDuplicate.
const (
	BatchReceived          = "RECEIVED"
	BatchValidated         = "VALIDATED"
	BatchAllocated         = "ALLOCATED"
	BatchCommitted         = "COMMITTED"
	BatchRejectedDuplicate = "REJECTED_DUPLICATE"
)

// Per-line outcomes within a bulk batch.
const (
	LineInvalidItem     = "INVALID_ITEM"
	LineInvalidQuantity = "INVALID_QUANTITY"
	LineShortage        = "SHORTAGE"
	LinePartial         = "PARTIAL"
	LineFulfilled       = "FULFILLED"
)

type BulkLineResult struct {
	ItemName  string          `json:"item_name"`
	Requested int             `json:"requested"`
	Granted   int             `json:"granted"`
	State     string          `json:"state"`
	Message   string          `json:"message"`
	Amount    decimal.Decimal `json:"amount"`
	Tax       decimal.Decimal `json:"tax"`
}

type BulkBatch struct {
	FileName string           `json:"file_name"`
	Date     string           `json:"date"`
	Status   string           `json:"status"`
	Lines    []BulkLineResult `json:"lines"`
	Total    decimal.Decimal  `json:"total"`
}

type AuditEntry struct {
	Date     string    `json:"date"`
	FileName string    `json:"file_name"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

type SalesRecord struct {
	ValueDate string          `json:"value_date"`
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	Amount    decimal.Decimal `json:"amount"`
}

type SalesSummaryRow struct {
	ItemName      string `json:"item_name"`
	TotalQuantity int    `json:"total_quantity"`
}

// ReportResult carries a compiled report's output. Every cell is rendered
// as text so SQL-backed and in-memory execution produce identical rows.
type ReportResult struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type CartItemRequest struct {
	CartID   string `json:"cart_id"`
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type CartItemResponse struct {
	Cart    Cart   `json:"cart"`
	Granted int    `json:"granted"`
	Message string `json:"message,omitempty"`
}

type BulkImportRequest struct {
	FileName string         `json:"file_name"`
	Rows     []BulkRowInput `json:"rows"`
}

type BulkRowInput struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type TaxSlabUpdateRequest struct {
	Category string          `json:"category"`
	Rate     decimal.Decimal `json:"rate"`
}

type ReplenishRequest struct {
	Target int `json:"target"`
}

type OperatorCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}
