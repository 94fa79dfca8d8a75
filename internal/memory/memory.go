package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// Match is one recalled lesson and how closely its situation resembles the
// query.
type Match struct {
	Situation      string    `json:"situation"`
	Recommendation string    `json:"recommendation"`
	Outcome        float64   `json:"outcome"`
	Score          float64   `json:"score"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store is one role's memory: situations paired with the lesson learned.
type Store interface {
	Add(ctx context.Context, situation, recommendation string, outcome float64) error
	QuerySimilar(ctx context.Context, situation string, n int) ([]Match, error)
}

// Bank hands out per-role stores.
type Bank interface {
	Partition(name string) Store
}

type record struct {
	situation      string
	recommendation string
	outcome        float64
	vec            termVector
	createdAt      time.Time
}

// InMemoryBank keeps every partition in process memory.
type InMemoryBank struct {
	mu         sync.Mutex
	partitions map[string]*inMemoryStore
}

func NewInMemoryBank() *InMemoryBank {
	return &InMemoryBank{partitions: make(map[string]*inMemoryStore)}
}

func (b *InMemoryBank) Partition(name string) Store {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.partitions[name]
	if !ok {
		s = &inMemoryStore{}
		b.partitions[name] = s
	}
	return s
}

type inMemoryStore struct {
	mu      sync.RWMutex
	records []record
}

func (s *inMemoryStore) Add(ctx context.Context, situation, recommendation string, outcome float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record{
		situation:      situation,
		recommendation: recommendation,
		outcome:        outcome,
		vec:            vectorize(situation),
		createdAt:      time.Now(),
	})
	return nil
}

func (s *inMemoryStore) QuerySimilar(ctx context.Context, situation string, n int) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rank(vectorize(situation), s.records, n), nil
}

// rank orders records by similarity, newest first on ties.
func rank(query termVector, records []record, n int) []Match {
	if n <= 0 || len(records) == 0 {
		return nil
	}
	matches := make([]Match, 0, len(records))
	for _, r := range records {
		matches = append(matches, Match{
			Situation:      r.situation,
			Recommendation: r.recommendation,
			Outcome:        r.outcome,
			Score:          cosine(query, r.vec),
			CreatedAt:      r.createdAt,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	if len(matches) > n {
		matches = matches[:n]
	}
	return matches
}

// Recommendations joins the lessons of matches for prompt injection.
func Recommendations(matches []Match) string {
	if len(matches) == 0 {
		return "No past memories found."
	}
	parts := make([]string, 0, len(matches))
	for _, m := range matches {
		parts = append(parts, strings.TrimSpace(m.Recommendation))
	}
	return strings.Join(parts, "\n\n")
}
