package memory

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/dyike/tradeflow/pkg/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS memories (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	partition TEXT NOT NULL,
	situation TEXT NOT NULL,
	recommendation TEXT NOT NULL,
	outcome REAL NOT NULL DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);`

const partitionIndex = `CREATE INDEX IF NOT EXISTS idx_memories_partition ON memories(partition);`

// SQLiteBank persists every partition in one table so lessons survive
// across runs.
type SQLiteBank struct {
	db *sql.DB
	// writes are serialized; readers share
	mu sync.RWMutex
}

func OpenSQLiteBank(path string) (*SQLiteBank, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, schema, partitionIndex); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteBank{db: db}, nil
}

func (b *SQLiteBank) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBank) Partition(name string) Store {
	return &sqliteStore{bank: b, partition: name}
}

type sqliteStore struct {
	bank      *SQLiteBank
	partition string
}

func (s *sqliteStore) Add(ctx context.Context, situation, recommendation string, outcome float64) error {
	s.bank.mu.Lock()
	defer s.bank.mu.Unlock()
	_, err := s.bank.db.ExecContext(ctx,
		`INSERT INTO memories (partition, situation, recommendation, outcome, created_at) VALUES (?, ?, ?, ?, ?)`,
		s.partition, situation, recommendation, outcome, time.Now())
	if err != nil {
		return fmt.Errorf("add memory to %s: %w", s.partition, err)
	}
	return nil
}

func (s *sqliteStore) QuerySimilar(ctx context.Context, situation string, n int) ([]Match, error) {
	if n <= 0 {
		return nil, nil
	}
	s.bank.mu.RLock()
	defer s.bank.mu.RUnlock()

	rows, err := s.bank.db.QueryContext(ctx,
		`SELECT situation, recommendation, outcome, created_at FROM memories WHERE partition = ? ORDER BY id`,
		s.partition)
	if err != nil {
		return nil, fmt.Errorf("query memories of %s: %w", s.partition, err)
	}
	defer rows.Close()

	var records []record
	for rows.Next() {
		var r record
		if err := rows.Scan(&r.situation, &r.recommendation, &r.outcome, &r.createdAt); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		r.vec = vectorize(r.situation)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(vectorize(situation), records, n), nil
}
