package bulk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/billing"
	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/stock"
	"chaikadai/backend/internal/store"
)

// Quantity bounds for a single bulk line. Anything outside is rejected at
// validation, before any stock is touched.
const (
	minLineQty = 1
	maxLineQty = 100
)

// Pipeline drives a bulk upload through its lifecycle: duplicate check,
// per-line validation, stock allocation and sales commit. Line failures
// never abort the batch; each line carries its own outcome.
type Pipeline struct {
	repo   store.Repository
	ledger *stock.Ledger
	taxes  *billing.TaxTable
	loc    *time.Location
	now    func() time.Time
}

type Option func(*Pipeline)

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLocation sets the business timezone used to derive batch dates, so
// the audit and dedup dates agree with the stock ledger around midnight.
func WithLocation(loc *time.Location) Option {
	return func(p *Pipeline) {
		if loc != nil {
			p.loc = loc
		}
	}
}

func New(repo store.Repository, ledger *stock.Ledger, taxes *billing.TaxTable, opts ...Option) *Pipeline {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}

	p := &Pipeline{
		repo:   repo,
		ledger: ledger,
		taxes:  taxes,
		loc:    loc,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Pipeline) Process(ctx context.Context, fileName string, rows []domain.BulkRowInput) (*domain.BulkBatch, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return nil, fmt.Errorf("%w: file name required", store.ErrInvalidInput)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty upload", store.ErrInvalidInput)
	}

	date := domain.DateOf(p.now().In(p.loc))
	batch := &domain.BulkBatch{
		FileName: fileName,
		Date:     date,
		Status:   domain.BatchReceived,
	}

	committed, err := p.repo.HasCommittedBatch(ctx, date, fileName)
	if err != nil {
		return nil, err
	}
	if committed {
		batch.Status = domain.BatchRejectedDuplicate
		p.audit(ctx, date, fileName, fmt.Sprintf("Duplicate upload rejected - %s", fileName))
		return batch, nil
	}

	// Open the header before any processing so an interrupted batch still
	// leaves a trace and can be re-run.
	if err := p.repo.CreateBatchHeader(ctx, *batch); err != nil {
		if errors.Is(err, store.ErrDuplicateBatch) {
			batch.Status = domain.BatchRejectedDuplicate
			p.audit(ctx, date, fileName, fmt.Sprintf("Duplicate upload rejected - %s", fileName))
			return batch, nil
		}
		return nil, err
	}

	batch.Lines = p.validate(rows)
	batch.Status = domain.BatchValidated

	p.allocate(ctx, batch)
	batch.Status = domain.BatchAllocated

	if err := p.commit(ctx, batch); err != nil {
		return nil, err
	}
	batch.Status = domain.BatchCommitted
	return batch, nil
}

func (p *Pipeline) validate(rows []domain.BulkRowInput) []domain.BulkLineResult {
	results := make([]domain.BulkLineResult, 0, len(rows))
	for _, row := range rows {
		item := strings.TrimSpace(row.ItemName)
		result := domain.BulkLineResult{ItemName: item, Requested: row.Quantity}

		switch {
		case item == "":
			result.State = domain.LineInvalidItem
			result.Message = fmt.Sprintf("Invalid item- %s", row.ItemName)
		case row.Quantity < minLineQty || row.Quantity > maxLineQty:
			result.State = domain.LineInvalidQuantity
			result.Message = fmt.Sprintf("Invalid quantity - %s", item)
		default:
			result.Message = fmt.Sprintf("Fetching item - %s", item)
		}
		results = append(results, result)
	}
	return results
}

func (p *Pipeline) allocate(ctx context.Context, batch *domain.BulkBatch) {
	for i := range batch.Lines {
		line := &batch.Lines[i]
		if line.State != "" {
			continue
		}

		bp, err := p.repo.GetBulkPrice(ctx, line.ItemName)
		if err != nil {
			line.State = domain.LineInvalidItem
			line.Message = fmt.Sprintf("Invalid item- %s", line.ItemName)
			continue
		}

		granted, err := p.ledger.Allocate(ctx, line.ItemName, line.Requested)
		if err != nil {
			line.State = domain.LineShortage
			line.Message = fmt.Sprintf("%s %d - Rejected due to stock shortage", line.ItemName, line.Requested)
			log.Printf("[bulk] WARN: allocation for %s failed: %v", line.ItemName, err)
			continue
		}
		line.Granted = granted

		switch {
		case granted == 0:
			line.State = domain.LineShortage
			line.Message = fmt.Sprintf("%s %d - Rejected due to stock shortage", line.ItemName, line.Requested)
			continue
		case granted < line.Requested:
			line.State = domain.LinePartial
			line.Message = fmt.Sprintf("%s - granted %d of %d", line.ItemName, granted, line.Requested)
		default:
			line.State = domain.LineFulfilled
		}

		if bp.Price.IsPositive() {
			rate, err := p.taxes.RateFor(ctx, bp.TaxCategory)
			if err != nil {
				rate = decimal.Zero
			}
			line.Amount = bp.Price.Mul(decimal.NewFromInt(int64(granted))).Round(2)
			line.Tax = line.Amount.Mul(rate).Round(2)
		}
	}
}

func (p *Pipeline) commit(ctx context.Context, batch *domain.BulkBatch) error {
	records := make([]domain.SalesRecord, 0, len(batch.Lines))
	total := decimal.Zero
	fulfilled := 0
	for _, line := range batch.Lines {
		p.audit(ctx, batch.Date, batch.FileName, line.Message)
		if line.Granted == 0 {
			continue
		}
		fulfilled++
		total = total.Add(line.Amount).Add(line.Tax)
		records = append(records, domain.SalesRecord{
			ValueDate: batch.Date,
			ItemName:  line.ItemName,
			Quantity:  line.Granted,
			Amount:    line.Amount,
		})
	}

	if len(records) > 0 {
		if err := p.repo.CreateSalesRecords(ctx, records); err != nil {
			return err
		}
	}

	batch.Total = total
	header := *batch
	header.Status = domain.BatchCommitted
	if err := p.repo.CreateBatchHeader(ctx, header); err != nil {
		return err
	}

	p.audit(ctx, batch.Date, batch.FileName, fmt.Sprintf("%s processed: %d of %d lines fulfilled, total %s", batch.FileName, fulfilled, len(batch.Lines), total.StringFixed(2)))
	return nil
}

func (p *Pipeline) audit(ctx context.Context, date, fileName, message string) {
	if strings.TrimSpace(message) == "" {
		return
	}
	if _, err := p.repo.RecordAudit(ctx, domain.AuditEntry{Date: date, FileName: fileName, Message: message}); err != nil {
		log.Printf("[bulk] WARN: audit entry dropped (%s): %v", message, err)
	}
}
