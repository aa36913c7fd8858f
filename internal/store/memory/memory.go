package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/report"
	"chaikadai/backend/internal/store"
)

type maintenanceRow struct {
	itemName string
	quantity int
	special  bool
	deleted  bool
}

type Store struct {
	mu             sync.RWMutex
	maintenance    []maintenanceRow
	stock          map[string]*domain.StockEntry
	snapshotDate   string
	menu           map[string]domain.MenuItem
	taxSlabs       map[string]domain.TaxSlab
	bulkPrices     map[string]domain.BulkPrice
	sales          []domain.SalesRecord
	batches        map[string]domain.BulkBatch
	audits         []domain.AuditEntry
	auditSeen      map[string]bool
	shortageAlerts map[string]bool
	users          map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory accounts for dev/demo mode.
// Credentials come from SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD.
// If unset, hardcoded dev defaults are used with a warning. The in-memory
// store is never used when DATABASE_URL is set.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	operatorPwd := envOr("SEED_OPERATOR_PASSWORD", "operator123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_OPERATOR_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_OPERATOR_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"operator", operatorPwd, "operator"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func price(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

func New() *Store {
	return &Store{
		stock:          make(map[string]*domain.StockEntry),
		menu:           make(map[string]domain.MenuItem),
		taxSlabs:       make(map[string]domain.TaxSlab),
		bulkPrices:     make(map[string]domain.BulkPrice),
		sales:          make([]domain.SalesRecord, 0, 256),
		batches:        make(map[string]domain.BulkBatch),
		audits:         make([]domain.AuditEntry, 0, 128),
		auditSeen:      make(map[string]bool),
		shortageAlerts: make(map[string]bool),
		users:          make(map[string]domain.UserAccount),
	}
}

func NewSeeded() *Store {
	menu := []domain.MenuItem{
		{ItemName: "Filter Coffee", Category: "coffee", Price: price("15.00"), TaxCategory: "Standard"},
		{ItemName: "Strong Coffee", Category: "coffee", Price: price("18.00"), TaxCategory: "Standard"},
		{ItemName: "Masala Tea", Category: "tea", Price: price("12.00"), TaxCategory: "Standard"},
		{ItemName: "Ginger Tea", Category: "tea", Price: price("12.00"), TaxCategory: "Standard"},
		{ItemName: "Lemon Tea", Category: "tea", Price: price("10.00"), TaxCategory: "Standard"},
		{ItemName: "Veg Chat", Category: "chat", Subtype: "VEG", Price: price("40.00"), TaxCategory: "Standard"},
		{ItemName: "Paneer Chat", Category: "chat", Subtype: "VEG", Price: price("55.00"), TaxCategory: "Standard"},
		{ItemName: "Egg Chat", Category: "chat", Subtype: "NV", Price: price("45.00"), TaxCategory: "Standard"},
		{ItemName: "Chicken Chat", Category: "chat", Subtype: "NV", Price: price("60.00"), TaxCategory: "Standard"},
		{ItemName: "Badam Halwa", Category: "special", Price: price("80.00"), TaxCategory: "Luxury", Special: true},
		{ItemName: "Dry Fruit Mixture", Category: "special", Price: price("90.00"), TaxCategory: "Luxury", Special: true},
		{ItemName: "Rose Milk", Category: "coffee", Price: price("25.00"), TaxCategory: "Standard", Deleted: true},
	}

	s := New()
	for _, item := range menu {
		s.menu[item.ItemName] = item
		if item.Deleted {
			continue
		}
		s.maintenance = append(s.maintenance, maintenanceRow{
			itemName: item.ItemName,
			quantity: 50,
			special:  item.Special,
		})
	}
	s.maintenance = append(s.maintenance, maintenanceRow{itemName: "Rose Milk", quantity: 0, deleted: true})

	s.taxSlabs["Standard"] = domain.TaxSlab{Category: "Standard", Rate: price("0.05")}
	s.taxSlabs["Luxury"] = domain.TaxSlab{Category: "Luxury", Rate: price("0.12")}

	for _, bp := range []domain.BulkPrice{
		{ItemName: "Filter Coffee", Price: price("13.00"), TaxCategory: "Standard"},
		{ItemName: "Masala Tea", Price: price("10.00"), TaxCategory: "Standard"},
		{ItemName: "Veg Chat", Price: price("35.00"), TaxCategory: "Standard"},
		{ItemName: "Chicken Chat", Price: price("52.00"), TaxCategory: "Standard"},
		{ItemName: "Badam Halwa", Price: price("70.00"), TaxCategory: "Luxury"},
	} {
		s.bulkPrices[bp.ItemName] = bp
	}

	s.users = seedUsers()

	// Seed the working ledger so the server is usable before the first
	// explicit snapshot trigger.
	if _, err := s.LoadDailySnapshot(context.Background(), domain.DateOf(time.Now())); err != nil {
		log.Printf("[memory-store] WARN: initial snapshot failed: %v", err)
	}
	return s
}

func (s *Store) LoadDailySnapshot(_ context.Context, date string) (int, error) {
	if strings.TrimSpace(date) == "" {
		return 0, fmt.Errorf("%w: snapshot date required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snapshotDate == date && len(s.stock) > 0 {
		return len(s.stock), nil
	}

	s.stock = make(map[string]*domain.StockEntry, len(s.maintenance))
	copied := 0
	for _, row := range s.maintenance {
		if row.deleted {
			continue
		}
		s.stock[row.itemName] = &domain.StockEntry{
			ItemName:     row.itemName,
			Available:    row.quantity,
			Special:      row.special,
			SnapshotDate: date,
		}
		copied++
	}
	s.snapshotDate = date
	return copied, nil
}

func (s *Store) ListStock(_ context.Context) ([]domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.StockEntry, 0, len(s.stock))
	for _, entry := range s.stock {
		entries = append(entries, *entry)
	}
	slices.SortFunc(entries, func(a, b domain.StockEntry) int {
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return entries, nil
}

func (s *Store) GetStock(_ context.Context, item string) (*domain.StockEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.stock[item]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := *entry
	return &clone, nil
}

func (s *Store) AllocateStock(_ context.Context, item string, qty int) (int, int, error) {
	if qty <= 0 {
		return 0, 0, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.stock[item]
	if !ok {
		return 0, 0, store.ErrNotFound
	}

	granted := qty
	if entry.Available < qty {
		granted = entry.Available
	}
	entry.Available -= granted
	return granted, entry.Available, nil
}

func (s *Store) ReleaseStock(_ context.Context, item string, qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.stock[item]
	if !ok {
		return store.ErrNotFound
	}
	entry.Available += qty
	return nil
}

func (s *Store) ReplenishStock(_ context.Context, target int) (int, error) {
	if target <= 0 {
		return 0, fmt.Errorf("%w: target must be positive", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	topped := 0
	for _, entry := range s.stock {
		if entry.Available < target {
			entry.Available = target
			topped++
		}
	}
	return topped, nil
}

func (s *Store) MarkShortageAlert(_ context.Context, item string, date string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := item + "|" + date
	if s.shortageAlerts[key] {
		return false, nil
	}
	s.shortageAlerts[key] = true
	return true, nil
}

func (s *Store) ListMenu(_ context.Context, category string) ([]domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]domain.MenuItem, 0, len(s.menu))
	for _, item := range s.menu {
		if item.Deleted {
			continue
		}
		if category != "" && item.Category != category {
			continue
		}
		if entry, ok := s.stock[item.ItemName]; !ok || entry.Available == 0 {
			continue
		}
		items = append(items, item)
	}

	slices.SortFunc(items, func(a, b domain.MenuItem) int {
		if a.Category == b.Category {
			return strings.Compare(a.ItemName, b.ItemName)
		}
		return strings.Compare(a.Category, b.Category)
	})
	return items, nil
}

func (s *Store) GetMenuItem(_ context.Context, item string) (*domain.MenuItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	found, ok := s.menu[item]
	if !ok || found.Deleted {
		return nil, store.ErrNotFound
	}
	clone := found
	return &clone, nil
}

func (s *Store) ListTaxSlabs(_ context.Context) ([]domain.TaxSlab, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	slabs := make([]domain.TaxSlab, 0, len(s.taxSlabs))
	for _, slab := range s.taxSlabs {
		slabs = append(slabs, slab)
	}
	slices.SortFunc(slabs, func(a, b domain.TaxSlab) int {
		return strings.Compare(a.Category, b.Category)
	})
	return slabs, nil
}

func (s *Store) UpsertTaxSlab(_ context.Context, slab domain.TaxSlab) error {
	slab.Category = strings.TrimSpace(slab.Category)
	if slab.Category == "" {
		return fmt.Errorf("%w: tax category required", store.ErrInvalidInput)
	}
	if slab.Rate.IsNegative() {
		return fmt.Errorf("%w: tax rate must not be negative", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.taxSlabs[slab.Category] = slab
	return nil
}

func (s *Store) GetBulkPrice(_ context.Context, item string) (*domain.BulkPrice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bp, ok := s.bulkPrices[item]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := bp
	return &clone, nil
}

func (s *Store) CreateSalesRecords(_ context.Context, records []domain.SalesRecord) error {
	for _, rec := range records {
		if rec.ItemName == "" || rec.ValueDate == "" || rec.Quantity <= 0 {
			return fmt.Errorf("%w: malformed sales record for %q", store.ErrInvalidInput, rec.ItemName)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sales = append(s.sales, records...)
	return nil
}

func (s *Store) HasCommittedBatch(_ context.Context, date string, fileName string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	batch, ok := s.batches[date+"|"+fileName]
	return ok && batch.Status == domain.BatchCommitted, nil
}

func (s *Store) CreateBatchHeader(_ context.Context, batch domain.BulkBatch) error {
	if batch.FileName == "" || batch.Date == "" {
		return fmt.Errorf("%w: batch header requires date and file name", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := batch.Date + "|" + batch.FileName
	if existing, ok := s.batches[key]; ok && existing.Status == domain.BatchCommitted {
		return store.ErrDuplicateBatch
	}
	s.batches[key] = batch
	return nil
}

func (s *Store) RecordAudit(_ context.Context, entry domain.AuditEntry) (bool, error) {
	if entry.Date == "" || entry.Message == "" {
		return false, fmt.Errorf("%w: audit entry requires date and message", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := entry.Date + "|" + entry.FileName + "|" + entry.Message
	if s.auditSeen[key] {
		return false, nil
	}
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	s.auditSeen[key] = true
	s.audits = append(s.audits, entry)
	return true, nil
}

func (s *Store) ListAudit(_ context.Context, date string, limit int) ([]domain.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]domain.AuditEntry, 0, len(s.audits))
	for _, entry := range s.audits {
		if date != "" && entry.Date != date {
			continue
		}
		entries = append(entries, entry)
	}
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Store) RunReport(_ context.Context, q *report.Query) (*domain.ReportResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var categoryItems map[string]bool
	if q.Category != "" {
		categoryItems = make(map[string]bool)
		for _, item := range s.menu {
			if !item.Deleted && item.Category == q.Category {
				categoryItems[item.ItemName] = true
			}
		}
	}
	return q.Evaluate(s.sales, categoryItems), nil
}

func (s *Store) SalesSummary(_ context.Context, category string, startDate string, endDate string) ([]domain.SalesSummaryRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inCategory := make(map[string]bool)
	for _, item := range s.menu {
		if !item.Deleted && (category == "" || item.Category == category) {
			inCategory[item.ItemName] = true
		}
	}

	totals := make(map[string]int)
	for _, rec := range s.sales {
		if rec.ValueDate < startDate || rec.ValueDate > endDate {
			continue
		}
		if !inCategory[rec.ItemName] {
			continue
		}
		totals[rec.ItemName] += rec.Quantity
	}

	rows := make([]domain.SalesSummaryRow, 0, len(totals))
	for item, total := range totals {
		rows = append(rows, domain.SalesSummaryRow{ItemName: item, TotalQuantity: total})
	}
	slices.SortFunc(rows, func(a, b domain.SalesSummaryRow) int {
		if a.TotalQuantity != b.TotalQuantity {
			return b.TotalQuantity - a.TotalQuantity
		}
		return strings.Compare(a.ItemName, b.ItemName)
	})
	return rows, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || user.Password == "" {
		return fmt.Errorf("%w: username and password required", store.ErrInvalidInput)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[username]; exists {
		return fmt.Errorf("%w: username already exists", store.ErrInvalidInput)
	}
	user.Username = username
	s.users[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[strings.ToLower(strings.TrimSpace(username))]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.users[user.Username] = user
	return nil
}
