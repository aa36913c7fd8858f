package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"
)

func TestAllocateStockClampsAndAlertsOnce(t *testing.T) {
	databaseURL := os.Getenv("CHAIKADAI_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set CHAIKADAI_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	item := fmt.Sprintf("it-test-item-%d", stamp)
	day := "2030-01-02"

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_alerts WHERE item_name = $1`, item)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_tbl WHERE item_name = $1`, item)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_tbl (item_name, available, special, snapshot_date)
		VALUES ($1, 5, false, $2)
	`, item, day); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	// Over-request: the grant is clamped to what is available.
	granted, remaining, err := s.AllocateStock(ctx, item, 8)
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if granted != 5 || remaining != 0 {
		t.Fatalf("expected grant 5 remaining 0, got %d/%d", granted, remaining)
	}

	// A second allocation finds nothing left.
	granted, remaining, err = s.AllocateStock(ctx, item, 1)
	if err != nil {
		t.Fatalf("allocate drained: %v", err)
	}
	if granted != 0 || remaining != 0 {
		t.Fatalf("expected zero grant on drained stock, got %d/%d", granted, remaining)
	}

	// First alert for the (item, day) pair inserts, the second is a no-op.
	first, err := s.MarkShortageAlert(ctx, item, day)
	if err != nil {
		t.Fatalf("mark alert: %v", err)
	}
	if !first {
		t.Fatalf("expected first alert to be recorded")
	}
	second, err := s.MarkShortageAlert(ctx, item, day)
	if err != nil {
		t.Fatalf("mark alert again: %v", err)
	}
	if second {
		t.Fatalf("expected repeat alert to be suppressed")
	}

	// Release puts the grant back.
	if err := s.ReleaseStock(ctx, item, 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	entry, err := s.GetStock(ctx, item)
	if err != nil {
		t.Fatalf("get stock: %v", err)
	}
	if entry.Available != 5 {
		t.Fatalf("expected stock restored to 5, got %d", entry.Available)
	}
}
