package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"chaikadai/backend/internal/billing"
	"chaikadai/backend/internal/bulk"
	"chaikadai/backend/internal/cache"
	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/report"
	"chaikadai/backend/internal/stock"
	"chaikadai/backend/internal/store"
	"chaikadai/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// menuCategories is the fixed set of menu categories; cache invalidation
// touches all of them because any stock mutation can change in-stock
// filtering across the board.
var menuCategories = []string{"coffee", "tea", "chat", "special"}

type Service struct {
	repo            store.Repository
	ledger          *stock.Ledger
	engine          *billing.Engine
	taxes           *billing.TaxTable
	pipeline        *bulk.Pipeline
	menuCache       cache.MenuCache
	menuTTL         time.Duration
	replenishTarget int
	now             func() time.Time

	mu    sync.Mutex
	carts map[string]*domain.Cart
}

type Option func(*Service)

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func New(repo store.Repository, ledger *stock.Ledger, engine *billing.Engine, taxes *billing.TaxTable, pipeline *bulk.Pipeline, menuCache cache.MenuCache, menuTTL time.Duration, replenishTarget int, opts ...Option) *Service {
	if menuCache == nil {
		menuCache = cache.NoopMenuCache{}
	}
	if menuTTL <= 0 {
		menuTTL = 30 * time.Second
	}
	if replenishTarget <= 0 {
		replenishTarget = 50
	}

	s := &Service{
		repo:            repo,
		ledger:          ledger,
		engine:          engine,
		taxes:           taxes,
		pipeline:        pipeline,
		menuCache:       menuCache,
		menuTTL:         menuTTL,
		replenishTarget: replenishTarget,
		now:             time.Now,
		carts:           make(map[string]*domain.Cart),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

// Menu lists the in-stock items of a category. Results are served from the
// cache when fresh; the special category is empty outside its serving
// window regardless of stock.
func (s *Service) Menu(ctx context.Context, category string, subtype string) ([]domain.MenuItem, error) {
	category = strings.ToLower(strings.TrimSpace(category))
	subtype = strings.ToUpper(strings.TrimSpace(subtype))

	if category == "special" && !s.ledger.InSpecialWindow(s.now()) {
		return []domain.MenuItem{}, nil
	}

	items, hit, err := s.menuCache.Get(ctx, category)
	if err != nil {
		log.Printf("[service] WARN: menu cache read failed for %q: %v", category, err)
	}
	if !hit {
		items, err = s.repo.ListMenu(ctx, category)
		if err != nil {
			return nil, err
		}
		if err := s.menuCache.Set(ctx, category, items, s.menuTTL); err != nil {
			log.Printf("[service] WARN: menu cache write failed for %q: %v", category, err)
		}
	}

	if subtype == "" || subtype == "BOTH" {
		return items, nil
	}
	filtered := make([]domain.MenuItem, 0, len(items))
	for _, item := range items {
		if item.Subtype == "" || item.Subtype == subtype {
			filtered = append(filtered, item)
		}
	}
	return filtered, nil
}

func (s *Service) invalidateMenuCache(ctx context.Context) {
	if err := s.menuCache.Invalidate(ctx, menuCategories...); err != nil {
		log.Printf("[service] WARN: menu cache invalidation failed: %v", err)
	}
}

// AddToCart allocates stock for the requested quantity and adds only what
// was granted. A zero grant (shortage or special item outside its window)
// surfaces as ErrInsufficientStock.
func (s *Service) AddToCart(ctx context.Context, req domain.CartItemRequest) (domain.CartItemResponse, error) {
	item := strings.TrimSpace(req.ItemName)
	if item == "" {
		return domain.CartItemResponse{}, fmt.Errorf("%w: item name required", store.ErrInvalidInput)
	}
	if req.Quantity <= 0 {
		return domain.CartItemResponse{}, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	menuItem, err := s.repo.GetMenuItem(ctx, item)
	if err != nil {
		return domain.CartItemResponse{}, err
	}

	granted, err := s.ledger.Allocate(ctx, item, req.Quantity)
	if err != nil {
		return domain.CartItemResponse{}, err
	}
	if granted == 0 {
		return domain.CartItemResponse{}, fmt.Errorf("%w: %s is not available right now", store.ErrInsufficientStock, item)
	}
	s.invalidateMenuCache(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	cartID := strings.TrimSpace(req.CartID)
	if cartID == "" {
		cartID = xid.New("cart")
	}
	cart, ok := s.carts[cartID]
	if !ok {
		cart = &domain.Cart{ID: cartID, CreatedAt: s.now().UTC()}
		s.carts[cartID] = cart
	}

	merged := false
	for i := range cart.Lines {
		if cart.Lines[i].ItemName == item && cart.Lines[i].UnitPrice.Equal(menuItem.Price) {
			cart.Lines[i].Quantity += granted
			merged = true
			break
		}
	}
	if !merged {
		cart.Lines = append(cart.Lines, domain.CartLine{
			ItemName:    item,
			Quantity:    granted,
			UnitPrice:   menuItem.Price,
			TaxCategory: menuItem.TaxCategory,
		})
	}

	resp := domain.CartItemResponse{Cart: cloneCart(cart), Granted: granted}
	if granted < req.Quantity {
		resp.Message = fmt.Sprintf("only %d of %d %s added", granted, req.Quantity, item)
	}
	return resp, nil
}

// RemoveCartLine drops an item from the cart and releases its stock.
func (s *Service) RemoveCartLine(ctx context.Context, cartID string, item string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return domain.Cart{}, store.ErrNotFound
	}

	idx := -1
	for i, line := range cart.Lines {
		if line.ItemName == item {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Cart{}, store.ErrNotFound
	}

	released := cart.Lines[idx].Quantity
	cart.Lines = append(cart.Lines[:idx], cart.Lines[idx+1:]...)
	if err := s.ledger.Release(ctx, item, released); err != nil {
		log.Printf("[service] WARN: stock release for %s failed: %v", item, err)
	}
	s.invalidateMenuCache(ctx)
	return cloneCart(cart), nil
}

// CancelCart releases every allocated unit and forgets the cart.
func (s *Service) CancelCart(ctx context.Context, cartID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return store.ErrNotFound
	}
	for _, line := range cart.Lines {
		if err := s.ledger.Release(ctx, line.ItemName, line.Quantity); err != nil {
			log.Printf("[service] WARN: stock release for %s failed: %v", line.ItemName, err)
		}
	}
	delete(s.carts, cartID)
	s.invalidateMenuCache(ctx)
	return nil
}

func (s *Service) Cart(cartID string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart, ok := s.carts[cartID]
	if !ok {
		return domain.Cart{}, store.ErrNotFound
	}
	return cloneCart(cart), nil
}

// Bill previews the cart's bill without committing anything.
func (s *Service) Bill(ctx context.Context, cartID string) (domain.BillSummary, error) {
	cart, err := s.Cart(cartID)
	if err != nil {
		return domain.BillSummary{}, err
	}
	return s.engine.Summarize(ctx, cart.Lines)
}

// Checkout finalizes the cart: the bill is computed, one sales record per
// bill line is committed and the cart is cleared. Stock stays consumed.
func (s *Service) Checkout(ctx context.Context, cartID string) (domain.BillSummary, error) {
	s.mu.Lock()
	cart, ok := s.carts[cartID]
	if !ok {
		s.mu.Unlock()
		return domain.BillSummary{}, store.ErrNotFound
	}
	lines := cloneCart(cart).Lines
	s.mu.Unlock()

	summary, err := s.engine.Summarize(ctx, lines)
	if err != nil {
		return domain.BillSummary{}, err
	}

	valueDate := domain.DateOf(s.now())
	records := make([]domain.SalesRecord, 0, len(summary.Lines))
	for _, line := range summary.Lines {
		records = append(records, domain.SalesRecord{
			ValueDate: valueDate,
			ItemName:  line.ItemName,
			Quantity:  line.Quantity,
			Amount:    line.LineTotal,
		})
	}
	if len(records) > 0 {
		if err := s.repo.CreateSalesRecords(ctx, records); err != nil {
			return domain.BillSummary{}, err
		}
	}

	s.mu.Lock()
	delete(s.carts, cartID)
	s.mu.Unlock()
	return summary, nil
}

func (s *Service) BulkImport(ctx context.Context, req domain.BulkImportRequest) (*domain.BulkBatch, error) {
	batch, err := s.pipeline.Process(ctx, req.FileName, req.Rows)
	if err != nil {
		return nil, err
	}
	s.invalidateMenuCache(ctx)
	return batch, nil
}

func (s *Service) RunReport(ctx context.Context, req report.Request) (*domain.ReportResult, error) {
	q, err := report.Compile(req)
	if err != nil {
		return nil, err
	}
	return s.repo.RunReport(ctx, q)
}

// SalesSummary totals quantities per item for a category over a daily,
// weekly or monthly window ending at refDate (today when empty).
func (s *Service) SalesSummary(ctx context.Context, category string, period string, refDate string) ([]domain.SalesSummaryRow, error) {
	ref := s.now()
	if strings.TrimSpace(refDate) != "" {
		parsed, err := time.Parse(domain.DateLayout, refDate)
		if err != nil {
			return nil, fmt.Errorf("%w: bad date %q", store.ErrInvalidInput, refDate)
		}
		ref = parsed
	}

	end := domain.DateOf(ref)
	var start string
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "", "daily":
		start = end
	case "weekly":
		start = domain.DateOf(ref.AddDate(0, 0, -6))
	case "monthly":
		start = domain.DateOf(ref.AddDate(0, -1, 1))
	default:
		return nil, fmt.Errorf("%w: unknown period %q", store.ErrInvalidInput, period)
	}

	return s.repo.SalesSummary(ctx, strings.ToLower(strings.TrimSpace(category)), start, end)
}

func (s *Service) ListTaxSlabs(ctx context.Context) ([]domain.TaxSlab, error) {
	return s.taxes.List(ctx)
}

func (s *Service) UpdateTaxSlab(ctx context.Context, req domain.TaxSlabUpdateRequest) error {
	if err := s.requireAdmin(ctx); err != nil {
		return err
	}
	if err := s.taxes.SetRate(ctx, req.Category, req.Rate); err != nil {
		return err
	}
	s.logAdminAction(ctx, fmt.Sprintf("tax slab %s set to %s", req.Category, req.Rate.String()))
	return nil
}

func (s *Service) ListStock(ctx context.Context) ([]domain.StockEntry, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListStock(ctx)
}

// LoadDailySnapshot primes today's working ledger from the maintenance
// quantities. Safe to call repeatedly; only the first call per day copies.
func (s *Service) LoadDailySnapshot(ctx context.Context) (int, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return 0, err
	}
	copied, err := s.ledger.LoadDailySnapshot(ctx)
	if err != nil {
		return 0, err
	}
	if copied > 0 {
		s.invalidateMenuCache(ctx)
		s.logAdminAction(ctx, fmt.Sprintf("daily stock snapshot loaded, %d items", copied))
	}
	return copied, nil
}

func (s *Service) Replenish(ctx context.Context, target int) (int, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return 0, err
	}
	if target <= 0 {
		target = s.replenishTarget
	}
	topped, err := s.ledger.Replenish(ctx, target)
	if err != nil {
		return 0, err
	}
	if topped > 0 {
		s.invalidateMenuCache(ctx)
		s.logAdminAction(ctx, fmt.Sprintf("replenished %d items to %d", topped, target))
	}
	return topped, nil
}

func (s *Service) ListAudit(ctx context.Context, date string, limit int) ([]domain.AuditEntry, error) {
	if err := s.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListAudit(ctx, date, limit)
}

func (s *Service) logAdminAction(ctx context.Context, message string) {
	actor, _ := ActorFromContext(ctx)
	entry := domain.AuditEntry{
		Date:    domain.DateOf(s.now()),
		Message: fmt.Sprintf("%s (by %s)", message, actor.Username),
	}
	if _, err := s.repo.RecordAudit(ctx, entry); err != nil {
		log.Printf("[service] WARN: audit entry dropped: %v", err)
	}
}

func cloneCart(cart *domain.Cart) domain.Cart {
	clone := *cart
	clone.Lines = make([]domain.CartLine, len(cart.Lines))
	copy(clone.Lines, cart.Lines)
	return clone
}
