package stock

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"chaikadai/backend/internal/domain"
	"chaikadai/backend/internal/notify"
	"chaikadai/backend/internal/store"
)

// Ledger layers business rules over the raw stock rows: the special-item
// serving window, shortage alerting and the daily snapshot cycle.
type Ledger struct {
	repo     store.Repository
	notifier notify.Notifier
	loc      *time.Location
	winStart int
	winEnd   int
	now      func() time.Time
}

type Option func(*Ledger)

// WithWindow overrides the special-item serving window, expressed as
// inclusive local hours.
func WithWindow(start, end int) Option {
	return func(l *Ledger) {
		l.winStart = start
		l.winEnd = end
	}
}

func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) {
		if loc != nil {
			l.loc = loc
		}
	}
}

// WithNow injects the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

func New(repo store.Repository, notifier notify.Notifier, opts ...Option) *Ledger {
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC
	}
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}

	l := &Ledger{
		repo:     repo,
		notifier: notifier,
		loc:      loc,
		winStart: 17,
		winEnd:   19,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// InSpecialWindow reports whether special items may be served at the given
// instant.
func (l *Ledger) InSpecialWindow(at time.Time) bool {
	hour := at.In(l.loc).Hour()
	return hour >= l.winStart && hour <= l.winEnd
}

// Allocate grants up to qty units of an item. Special items outside the
// serving window are not granted and do not raise shortage alerts. Any
// allocation that leaves the item at zero available stock, including a
// full grant that drains the last units, raises at most one alert per
// item per day. An item with no ledger row for today is served as zero
// stock, not as an error.
func (l *Ledger) Allocate(ctx context.Context, item string, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	entry, err := l.repo.GetStock(ctx, item)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			l.raiseShortage(ctx, item, 0)
			return 0, nil
		}
		return 0, err
	}
	if entry.Special && !l.InSpecialWindow(l.now()) {
		return 0, nil
	}

	granted, remaining, err := l.repo.AllocateStock(ctx, item, qty)
	if err != nil {
		return 0, err
	}
	if remaining == 0 {
		l.raiseShortage(ctx, item, remaining)
	}
	return granted, nil
}

func (l *Ledger) Release(ctx context.Context, item string, qty int) error {
	return l.repo.ReleaseStock(ctx, item, qty)
}

// LoadDailySnapshot copies maintenance quantities into today's working
// ledger. Re-running for the same day copies nothing and reports the
// existing row count.
func (l *Ledger) LoadDailySnapshot(ctx context.Context) (int, error) {
	return l.repo.LoadDailySnapshot(ctx, domain.DateOf(l.now().In(l.loc)))
}

// Replenish tops every low item up to target.
func (l *Ledger) Replenish(ctx context.Context, target int) (int, error) {
	return l.repo.ReplenishStock(ctx, target)
}

func (l *Ledger) raiseShortage(ctx context.Context, item string, remaining int) {
	date := domain.DateOf(l.now().In(l.loc))
	first, err := l.repo.MarkShortageAlert(ctx, item, date)
	if err != nil {
		log.Printf("[stock] WARN: failed to record shortage alert for %s: %v", item, err)
		return
	}
	if !first {
		return
	}
	if err := l.notifier.ShortageAlert(ctx, item, remaining); err != nil {
		log.Printf("[stock] WARN: shortage notification for %s failed: %v", item, err)
	}
}
