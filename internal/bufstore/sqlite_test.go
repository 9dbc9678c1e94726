package bufstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var testSteps = []string{"look at {summary}", "Answer with exactly one line: Final: 1 (disease) or Final: 0 (no disease)."}

func TestGetOrCreateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sig := Signature([]string{"tsh:HIGH", "ft4:LOW"})

	e1, created, err := s.GetOrCreate(ctx, sig, testSteps, 1)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	if !created {
		t.Error("expected first call to insert")
	}
	if e1.ID == "" {
		t.Error("expected non-empty id")
	}

	e2, created, err := s.GetOrCreate(ctx, sig, []string{"different steps"}, 0)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}
	if created {
		t.Error("expected second call to retrieve, not insert")
	}
	if e2.ID != e1.ID {
		t.Errorf("expected same entry, got %s vs %s", e2.ID, e1.ID)
	}
	if len(e2.Steps) != len(testSteps) {
		t.Errorf("stored steps were replaced: %v", e2.Steps)
	}
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordUseCountsAndOutcomes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sig := Signature([]string{"tsh:HIGH"})
	s.GetOrCreate(ctx, sig, testSteps, 1)

	yes, no := true, false
	if err := s.RecordUse(ctx, sig, &yes); err != nil {
		t.Fatalf("record use: %v", err)
	}
	s.RecordUse(ctx, sig, &no)
	s.RecordUse(ctx, sig, nil)

	e, err := s.Get(ctx, sig)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if e.Usage != 3 {
		t.Errorf("expected usage 3, got %d", e.Usage)
	}
	if e.Scored != 2 || e.Correct != 1 {
		t.Errorf("expected scored=2 correct=1, got scored=%d correct=%d", e.Scored, e.Correct)
	}
	if e.SuccessRate() != 0.5 {
		t.Errorf("expected success rate 0.5, got %f", e.SuccessRate())
	}

	if err := s.RecordUse(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown signature, got %v", err)
	}
}

func TestRecordUseConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sig := Signature([]string{"ft4:LOW"})
	s.GetOrCreate(ctx, sig, testSteps, 1)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			yes := true
			if err := s.RecordUse(ctx, sig, &yes); err != nil {
				t.Errorf("record use: %v", err)
			}
		}()
	}
	wg.Wait()

	e, _ := s.Get(ctx, sig)
	if e.Usage != n || e.Correct != n {
		t.Errorf("lost updates: usage=%d correct=%d, want %d", e.Usage, e.Correct, n)
	}
}

func TestNearestBySimilarity(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.GetOrCreate(ctx, Signature([]string{"tsh:high", "ft4:low"}), testSteps, 1)
	s.GetOrCreate(ctx, Signature([]string{"tsh:low", "ft4:high"}), testSteps, 1)

	// Tokens arrive in analyte flag case; matching must not care.
	e, sim, err := s.Nearest(ctx, []string{"tsh:HIGH", "ft4:LOW", "t3:LOW"}, 0.5)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if e.Signature != "ft4:low|tsh:high" {
		t.Errorf("wrong entry retrieved: %s", e.Signature)
	}
	if sim != 2.0/3.0 {
		t.Errorf("expected similarity 2/3, got %f", sim)
	}

	if _, _, err := s.Nearest(ctx, []string{"t3u:HIGH"}, 0.5); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound below threshold, got %v", err)
	}
}

func TestNearestTieBreaksOnSuccessRate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	s.GetOrCreate(ctx, Signature([]string{"tsh:high", "t3:low"}), testSteps, 1)
	s.GetOrCreate(ctx, Signature([]string{"tsh:high", "t3:high"}), testSteps, 1)

	yes := true
	s.RecordUse(ctx, "t3:high|tsh:high", &yes)

	// Both candidates share one of two query tokens; the scored one wins.
	e, _, err := s.Nearest(ctx, []string{"tsh:high", "ft4:low"}, 0.3)
	if err != nil {
		t.Fatalf("nearest: %v", err)
	}
	if e.Signature != "t3:high|tsh:high" {
		t.Errorf("tie should break on success rate, got %s", e.Signature)
	}
}

func TestSeedIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n, err := Seed(ctx, s)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 5 {
		t.Errorf("expected 5 seeded templates, got %d", n)
	}

	n, err = Seed(ctx, s)
	if err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 on reseed, got %d", n)
	}

	entries, _ := s.All(ctx)
	if len(entries) != 5 {
		t.Errorf("expected 5 entries, got %d", len(entries))
	}
}

func TestPersistenceAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	sig := Signature([]string{"fti:low"})
	s.GetOrCreate(ctx, sig, testSteps, 1)
	s.RecordUse(ctx, sig, nil)
	s.Close()

	s2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer s2.Close()

	e, err := s2.Get(ctx, sig)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if e.Usage != 1 || len(e.Steps) != len(testSteps) {
		t.Errorf("entry did not survive reopen: usage=%d steps=%v", e.Usage, e.Steps)
	}
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	sig := Signature([]string{"t4:high"})
	s.GetOrCreate(ctx, sig, testSteps, 1)

	if err := s.Remove(ctx, sig); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(ctx, sig); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after remove, got %v", err)
	}
	if err := s.Remove(ctx, sig); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on double remove, got %v", err)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	defer s.Close()

	sig := Signature([]string{"tpoab:high"})
	s.GetOrCreate(ctx, sig, testSteps, 1)
	yes := true
	s.RecordUse(ctx, sig, &yes)

	st, err := s.Stats(ctx, path)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Entries != 1 || st.TotalUses != 1 || st.ScoredUses != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}
