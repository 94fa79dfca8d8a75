package memory

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	seed := []struct{ situation, lesson string }{
		{"high inflation rising interest rates tech stocks selloff", "reduce exposure to growth names"},
		{"strong earnings beat with raised guidance and record revenue", "buy on confirmed earnings momentum"},
		{"oil supply shock energy prices spike", "rotate into energy producers"},
	}
	for _, s2 := range seed {
		if err := s.Add(ctx, s2.situation, s2.lesson, 0); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	matches, err := s.QuerySimilar(ctx, "company posts earnings beat and raised guidance", 2)
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if !strings.Contains(matches[0].Recommendation, "earnings momentum") {
		t.Fatalf("expected earnings lesson first, got %+v", matches[0])
	}
	if matches[0].Score < matches[1].Score {
		t.Fatalf("matches not ordered by score: %+v", matches)
	}
}

func TestInMemoryStoreRanksBySimilarity(t *testing.T) {
	exerciseStore(t, NewInMemoryBank().Partition("bull_memory"))
}

func TestSQLiteStoreRanksBySimilarity(t *testing.T) {
	bank, err := OpenSQLiteBank(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteBank: %v", err)
	}
	defer bank.Close()
	exerciseStore(t, bank.Partition("trader_memory"))
}

func TestPartitionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	bank := NewInMemoryBank()
	_ = bank.Partition("bull_memory").Add(ctx, "rally", "stay long", 1)

	got, err := bank.Partition("bear_memory").QuerySimilar(ctx, "rally", 2)
	if err != nil {
		t.Fatalf("QuerySimilar: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("bear partition should be empty, got %+v", got)
	}
	if bank.Partition("bull_memory") != bank.Partition("bull_memory") {
		t.Fatalf("partition handles should be reused")
	}
}

func TestEmptyStoreAndRecommendations(t *testing.T) {
	s := NewInMemoryBank().Partition("x")
	got, err := s.QuerySimilar(context.Background(), "anything", 2)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no matches, got %v %v", got, err)
	}
	if Recommendations(nil) != "No past memories found." {
		t.Fatalf("unexpected empty recommendation text")
	}
	joined := Recommendations([]Match{{Recommendation: " a "}, {Recommendation: "b"}})
	if joined != "a\n\nb" {
		t.Fatalf("unexpected join %q", joined)
	}
}

func TestConcurrentAdds(t *testing.T) {
	s := NewInMemoryBank().Partition("risk_manager_memory")
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Add(context.Background(), "volatile market", "size down", -0.1)
		}()
	}
	wg.Wait()
	got, _ := s.QuerySimilar(context.Background(), "volatile market", 50)
	if len(got) != 20 {
		t.Fatalf("expected 20 records, got %d", len(got))
	}
}
