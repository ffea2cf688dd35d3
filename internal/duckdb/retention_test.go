package duckdb

import (
	"testing"
	"time"
)

func TestRetentionCleanerDisabled(t *testing.T) {
	store := newTestStore(t)
	if rc := NewRetentionCleaner(store, RetentionConfig{}); rc != nil {
		t.Fatal("expected nil cleaner for zero MaxAge")
	}
}

func TestRetentionCleanerStartupSweep(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	seedRun(t, store, "old", now.Add(-72*time.Hour))
	seedRun(t, store, "new", now)

	rc := NewRetentionCleaner(store, RetentionConfig{MaxAge: 24 * time.Hour})
	if rc == nil {
		t.Fatal("expected non-nil retention cleaner")
	}
	defer rc.Stop()

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "new" {
		t.Errorf("runs after sweep = %+v", runs)
	}
}

func TestRetentionCleaner_StopIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	cleaner := NewRetentionCleaner(store, RetentionConfig{MaxAge: 24 * time.Hour, Interval: time.Millisecond})
	if cleaner == nil {
		t.Fatal("expected non-nil retention cleaner")
	}

	cleaner.Stop()
	cleaner.Stop()
}
