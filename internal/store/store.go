package store

import (
	"context"
	"errors"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/report"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateBatch    = errors.New("duplicate batch")
	ErrInvalidInput      = errors.New("invalid input")
)

type Repository interface {
	// Stock ledger. AllocateStock is atomic per item: it grants up to qty
	// units, never drives the row negative, and reports what remains.
	LoadDailySnapshot(ctx context.Context, date string) (int, error)
	ListStock(ctx context.Context) ([]domain.StockEntry, error)
	GetStock(ctx context.Context, item string) (*domain.StockEntry, error)
	AllocateStock(ctx context.Context, item string, qty int) (granted int, remaining int, err error)
	ReleaseStock(ctx context.Context, item string, qty int) error
	ReplenishStock(ctx context.Context, target int) (int, error)
	MarkShortageAlert(ctx context.Context, item string, date string) (bool, error)

	// Menu and pricing.
	ListMenu(ctx context.Context, category string) ([]domain.MenuItem, error)
	GetMenuItem(ctx context.Context, item string) (*domain.MenuItem, error)
	ListTaxSlabs(ctx context.Context) ([]domain.TaxSlab, error)
	UpsertTaxSlab(ctx context.Context, slab domain.TaxSlab) error
	GetBulkPrice(ctx context.Context, item string) (*domain.BulkPrice, error)

	// Sales and bulk batches.
	CreateSalesRecords(ctx context.Context, records []domain.SalesRecord) error
	HasCommittedBatch(ctx context.Context, date string, fileName string) (bool, error)
	CreateBatchHeader(ctx context.Context, batch domain.BulkBatch) error
	RecordAudit(ctx context.Context, entry domain.AuditEntry) (bool, error)
	ListAudit(ctx context.Context, date string, limit int) ([]domain.AuditEntry, error)

	// Reporting.
	RunReport(ctx context.Context, q *report.Query) (*domain.ReportResult, error)
	SalesSummary(ctx context.Context, category string, startDate string, endDate string) ([]domain.SalesSummaryRow, error)

	// Accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
