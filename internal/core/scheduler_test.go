package core

import (
	"context"
	"sync"
	"testing"
	"time"
)

type fakeHistory struct {
	mu      sync.Mutex
	cutoffs []time.Time
}

func (f *fakeHistory) RecordImport(ctx context.Context, rec ImportRecord) error { return nil }

func (f *fakeHistory) ListImports(ctx context.Context, limit int) ([]ImportRecord, error) {
	return nil, nil
}

func (f *fakeHistory) PurgeImports(ctx context.Context, before time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, before)
	return 3, nil
}

func (f *fakeHistory) runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.cutoffs)
}

func TestPurgeConfigDefaults(t *testing.T) {
	cfg := PurgeConfig{}.withDefaults()
	if cfg.RetentionDays != 30 || cfg.CheckInterval != 24*time.Hour {
		t.Errorf("defaults = %+v", cfg)
	}
	cfg = PurgeConfig{RetentionDays: 7, CheckInterval: time.Minute}.withDefaults()
	if cfg.RetentionDays != 7 || cfg.CheckInterval != time.Minute {
		t.Errorf("explicit values overwritten: %+v", cfg)
	}
}

func TestRunPurgeJob(t *testing.T) {
	hist := &fakeHistory{}
	s := &Service{history: hist}

	before := time.Now()
	if n := s.runPurgeJob(context.Background(), PurgeConfig{RetentionDays: 10}); n != 3 {
		t.Errorf("purged = %d, want 3", n)
	}
	cutoff := hist.cutoffs[0]
	want := before.AddDate(0, 0, -10)
	if cutoff.Before(want.Add(-time.Second)) || cutoff.After(want.Add(time.Second)) {
		t.Errorf("cutoff = %v, want about %v", cutoff, want)
	}
}

func TestStartHistoryScheduler(t *testing.T) {
	hist := &fakeHistory{}
	s := &Service{history: hist}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.StartHistoryScheduler(ctx, PurgeConfig{CheckInterval: 10 * time.Millisecond})
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for hist.runs() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
	if hist.runs() < 2 {
		t.Errorf("purge ran %d times, want at least 2", hist.runs())
	}
}

func TestStartHistoryScheduler_NoHistory(t *testing.T) {
	s := &Service{}
	s.StartHistoryScheduler(context.Background(), PurgeConfig{})
}
