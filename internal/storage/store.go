package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/tradeflow/models"
	"github.com/dyike/tradeflow/pkg/sqlite"
)

var ErrRunNotFound = errors.New("run not found")

const runsTable = `
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    ticker TEXT NOT NULL,
    trade_date TEXT NOT NULL,
    status TEXT NOT NULL,
    action TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    final_state TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);`

const chunksTable = `
CREATE TABLE IF NOT EXISTS chunks (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    seq INTEGER NOT NULL,
    phase TEXT NOT NULL,
    node TEXT NOT NULL,
    delta TEXT NOT NULL,
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (run_id, seq)
);`

// RunRecord is one persisted run.
type RunRecord struct {
	ID        string           `json:"id"`
	Ticker    string           `json:"ticker"`
	TradeDate string           `json:"trade_date"`
	Status    models.RunStatus `json:"status"`
	Action    models.Action    `json:"action,omitempty"`
	Error     string           `json:"error,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// ChunkRecord is one persisted stream chunk.
type ChunkRecord struct {
	RunID string       `json:"run_id"`
	Seq   int          `json:"seq"`
	Phase string       `json:"phase"`
	Node  string       `json:"node"`
	Delta models.Delta `json:"delta"`
}

// Store keeps the run log: one row per run and one per chunk.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(db, runsTable, chunksTable); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) CreateRun(ctx context.Context, run RunRecord) error {
	if strings.TrimSpace(run.ID) == "" {
		return fmt.Errorf("run id is required")
	}
	if run.Status == "" {
		run.Status = models.StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, ticker, trade_date, status)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
    status=excluded.status,
    updated_at=CURRENT_TIMESTAMP
`, run.ID, run.Ticker, run.TradeDate, string(run.Status))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) AppendChunk(ctx context.Context, c ChunkRecord) error {
	if c.Seq <= 0 {
		return fmt.Errorf("chunk seq must be positive")
	}
	delta, err := json.Marshal(c.Delta)
	if err != nil {
		return fmt.Errorf("marshal delta: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chunks (run_id, seq, phase, node, delta)
VALUES (?, ?, ?, ?, ?)
`, c.RunID, c.Seq, c.Phase, c.Node, string(delta))
	if err != nil {
		return fmt.Errorf("insert chunk: %w", err)
	}
	return nil
}

// FinishRun records the terminal status and the final state.
func (s *Store) FinishRun(ctx context.Context, runID string, status models.RunStatus, action models.Action, runErr error, state *models.WorkflowState) error {
	var stateJSON []byte
	if state != nil {
		var err error
		if stateJSON, err = json.Marshal(state); err != nil {
			return fmt.Errorf("marshal state: %w", err)
		}
	}
	errText := ""
	if runErr != nil {
		errText = runErr.Error()
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE runs
SET status = ?, action = ?, error = ?, final_state = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ?
`, string(status), string(action), errText, string(stateJSON), runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, ticker, trade_date, status, action, error, created_at, updated_at
FROM runs
ORDER BY rowid DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs rows: %w", err)
	}
	return runs, nil
}

func (s *Store) GetRun(ctx context.Context, runID string) (RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, ticker, trade_date, status, action, error, created_at, updated_at
FROM runs
WHERE id = ?
`, runID)
	rec, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return RunRecord{}, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	return rec, err
}

// FinalState decodes the state stored by FinishRun.
func (s *Store) FinalState(ctx context.Context, runID string) (*models.WorkflowState, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT final_state FROM runs WHERE id = ?`, runID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get final state: %w", err)
	}
	if raw == "" {
		return nil, fmt.Errorf("run %s has no final state", runID)
	}
	var state models.WorkflowState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode final state: %w", err)
	}
	return &state, nil
}

// Chunks returns a run's chunks in seq order.
func (s *Store) Chunks(ctx context.Context, runID string) ([]ChunkRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT run_id, seq, phase, node, delta
FROM chunks
WHERE run_id = ?
ORDER BY seq ASC
`, runID)
	if err != nil {
		return nil, fmt.Errorf("list chunks: %w", err)
	}
	defer rows.Close()

	var chunks []ChunkRecord
	for rows.Next() {
		var (
			c     ChunkRecord
			delta string
		)
		if err := rows.Scan(&c.RunID, &c.Seq, &c.Phase, &c.Node, &delta); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal([]byte(delta), &c.Delta); err != nil {
			return nil, fmt.Errorf("decode chunk %d: %w", c.Seq, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list chunks rows: %w", err)
	}
	return chunks, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (RunRecord, error) {
	var (
		rec            RunRecord
		status, action string
	)
	if err := row.Scan(&rec.ID, &rec.Ticker, &rec.TradeDate, &status, &action, &rec.Error, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return rec, err
		}
		return rec, fmt.Errorf("scan run: %w", err)
	}
	rec.Status = models.RunStatus(status)
	rec.Action = models.Action(action)
	return rec, nil
}
