package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/report"
	"chaikadai/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) LoadDailySnapshot(ctx context.Context, date string) (int, error) {
	if date == "" {
		return 0, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var existing int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM stock_tbl WHERE snapshot_date = $1
	`, date).Scan(&existing)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return existing, tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM stock_tbl`); err != nil {
		return 0, err
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO stock_tbl (item_name, available, special, snapshot_date)
		SELECT item_name, total_stock, special, $1
		FROM stock_maintenance_tbl
		WHERE NOT deleted
	`, date)
	if err != nil {
		return 0, err
	}
	copied, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(copied), tx.Commit()
}

func (s *Store) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_name, available, special, snapshot_date::text
		FROM stock_tbl
		ORDER BY item_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockEntry, 0, 64)
	for rows.Next() {
		var entry domain.StockEntry
		if err := rows.Scan(&entry.ItemName, &entry.Available, &entry.Special, &entry.SnapshotDate); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) GetStock(ctx context.Context, item string) (*domain.StockEntry, error) {
	var entry domain.StockEntry
	err := s.db.QueryRowContext(ctx, `
		SELECT item_name, available, special, snapshot_date::text
		FROM stock_tbl
		WHERE item_name = $1
	`, item).Scan(&entry.ItemName, &entry.Available, &entry.Special, &entry.SnapshotDate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &entry, nil
}

// AllocateStock locks the item row, grants what is available up to qty and
// writes back the remainder in one transaction.
func (s *Store) AllocateStock(ctx context.Context, item string, qty int) (int, int, error) {
	if qty <= 0 {
		return 0, 0, store.ErrInvalidInput
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var available int
	err = tx.QueryRowContext(ctx, `
		SELECT available FROM stock_tbl WHERE item_name = $1 FOR UPDATE
	`, item).Scan(&available)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, 0, store.ErrNotFound
		}
		return 0, 0, err
	}

	granted := qty
	if available < qty {
		granted = available
	}
	remaining := available - granted

	if granted > 0 {
		_, err = tx.ExecContext(ctx, `
			UPDATE stock_tbl SET available = $2 WHERE item_name = $1
		`, item, remaining)
		if err != nil {
			return 0, 0, err
		}
	}
	return granted, remaining, tx.Commit()
}

func (s *Store) ReleaseStock(ctx context.Context, item string, qty int) error {
	if qty <= 0 {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_tbl SET available = available + $2 WHERE item_name = $1
	`, item, qty)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ReplenishStock(ctx context.Context, target int) (int, error) {
	if target <= 0 {
		return 0, store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE stock_tbl SET available = $1 WHERE available < $1
	`, target)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) MarkShortageAlert(ctx context.Context, item string, date string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_alerts (item_name, alert_date)
		VALUES ($1, $2)
		ON CONFLICT (item_name, alert_date) DO NOTHING
	`, item, date)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListMenu(ctx context.Context, category string) ([]domain.MenuItem, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.item_name, m.category, m.subtype, m.price, m.tax_category, m.special
		FROM menu_tbl m
		JOIN stock_tbl st ON st.item_name = m.item_name
		WHERE NOT m.deleted
		  AND st.available > 0
		  AND ($1 = '' OR m.category = $1)
		ORDER BY m.category, m.item_name
	`, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.MenuItem, 0, 32)
	for rows.Next() {
		var item domain.MenuItem
		if err := rows.Scan(&item.ItemName, &item.Category, &item.Subtype, &item.Price, &item.TaxCategory, &item.Special); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *Store) GetMenuItem(ctx context.Context, item string) (*domain.MenuItem, error) {
	var found domain.MenuItem
	err := s.db.QueryRowContext(ctx, `
		SELECT item_name, category, subtype, price, tax_category, special
		FROM menu_tbl
		WHERE item_name = $1 AND NOT deleted
	`, item).Scan(&found.ItemName, &found.Category, &found.Subtype, &found.Price, &found.TaxCategory, &found.Special)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &found, nil
}

func (s *Store) ListTaxSlabs(ctx context.Context) ([]domain.TaxSlab, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category, rate FROM tax_tbl ORDER BY category
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	slabs := make([]domain.TaxSlab, 0, 8)
	for rows.Next() {
		var slab domain.TaxSlab
		if err := rows.Scan(&slab.Category, &slab.Rate); err != nil {
			return nil, err
		}
		slabs = append(slabs, slab)
	}
	return slabs, rows.Err()
}

func (s *Store) UpsertTaxSlab(ctx context.Context, slab domain.TaxSlab) error {
	if slab.Category == "" || slab.Rate.IsNegative() {
		return store.ErrInvalidInput
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tax_tbl (category, rate)
		VALUES ($1, $2)
		ON CONFLICT (category) DO UPDATE SET rate = EXCLUDED.rate
	`, slab.Category, slab.Rate)
	return err
}

func (s *Store) GetBulkPrice(ctx context.Context, item string) (*domain.BulkPrice, error) {
	var bp domain.BulkPrice
	err := s.db.QueryRowContext(ctx, `
		SELECT item_name, price, tax_category FROM bulk_order_tbl WHERE item_name = $1
	`, item).Scan(&bp.ItemName, &bp.Price, &bp.TaxCategory)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &bp, nil
}

func (s *Store) CreateSalesRecords(ctx context.Context, records []domain.SalesRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		if rec.ItemName == "" || rec.ValueDate == "" || rec.Quantity <= 0 {
			return store.ErrInvalidInput
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sales_dtl_tbl (value_date, item_name, quantity, sales_amt)
			VALUES ($1, $2, $3, $4)
		`, rec.ValueDate, rec.ItemName, rec.Quantity, rec.Amount)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) HasCommittedBatch(ctx context.Context, date string, fileName string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM bulk_header_tbl
			WHERE file_date = $1 AND file_name = $2 AND status = $3
		)
	`, date, fileName, domain.BatchCommitted).Scan(&exists)
	return exists, err
}

func (s *Store) CreateBatchHeader(ctx context.Context, batch domain.BulkBatch) error {
	if batch.FileName == "" || batch.Date == "" {
		return store.ErrInvalidInput
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO bulk_header_tbl (file_date, file_name, status, total)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_date, file_name) DO UPDATE
			SET status = EXCLUDED.status, total = EXCLUDED.total
			WHERE bulk_header_tbl.status <> $5
	`, batch.Date, batch.FileName, batch.Status, batch.Total, domain.BatchCommitted)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrDuplicateBatch
	}
	return nil
}

func (s *Store) RecordAudit(ctx context.Context, entry domain.AuditEntry) (bool, error) {
	if entry.Date == "" || entry.Message == "" {
		return false, store.ErrInvalidInput
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log_tbl (log_date, file_name, message, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (log_date, file_name, message) DO NOTHING
	`, entry.Date, entry.FileName, entry.Message, entry.At)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *Store) ListAudit(ctx context.Context, date string, limit int) ([]domain.AuditEntry, error) {
	if limit < 1 {
		limit = 100
	}

	query := `
		SELECT log_date::text, file_name, message, created_at
		FROM audit_log_tbl
		ORDER BY created_at DESC
		LIMIT $1
	`
	args := []any{limit}
	if date != "" {
		query = `
			SELECT log_date::text, file_name, message, created_at
			FROM audit_log_tbl
			WHERE log_date = $1
			ORDER BY created_at DESC
			LIMIT $2
		`
		args = []any{date, limit}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.AuditEntry, 0, limit)
	for rows.Next() {
		var entry domain.AuditEntry
		if err := rows.Scan(&entry.Date, &entry.FileName, &entry.Message, &entry.At); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *Store) RunReport(ctx context.Context, q *report.Query) (*domain.ReportResult, error) {
	sqlText, args := q.SQL()
	rows, err := s.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &domain.ReportResult{Columns: q.Labels()}
	for rows.Next() {
		cells := make([]string, len(q.Columns))
		dests := make([]any, len(q.Columns))
		for i := range cells {
			dests[i] = &cells[i]
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		for i, col := range q.Columns {
			if col.Field == report.FieldSalesAmt {
				if amount, err := decimal.NewFromString(cells[i]); err == nil {
					cells[i] = amount.StringFixed(2)
				}
			}
		}
		result.Rows = append(result.Rows, cells)
	}
	return result, rows.Err()
}

func (s *Store) SalesSummary(ctx context.Context, category string, startDate string, endDate string) ([]domain.SalesSummaryRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sd.item_name, SUM(sd.quantity)
		FROM sales_dtl_tbl sd
		JOIN menu_tbl m ON m.item_name = sd.item_name
		WHERE NOT m.deleted
		  AND ($1 = '' OR m.category = $1)
		  AND sd.value_date BETWEEN $2 AND $3
		GROUP BY sd.item_name
		ORDER BY SUM(sd.quantity) DESC, sd.item_name
	`, category, startDate, endDate)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.SalesSummaryRow, 0, 32)
	for rows.Next() {
		var row domain.SalesSummaryRow
		if err := rows.Scan(&row.ItemName, &row.TotalQuantity); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if user.Username == "" || user.Password == "" {
		return store.ErrInvalidInput
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_account_tbl (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, user.Username, user.Password, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrInvalidInput
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM user_account_tbl
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_account_tbl SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}
