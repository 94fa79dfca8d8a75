package workflow

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/models"
)

// Chunk is one committed node write. Replaying the deltas of a completed
// run in Seq order onto a fresh state reproduces the final state.
type Chunk struct {
	RunID string       `json:"run_id"`
	Seq   int          `json:"seq"`
	Phase Phase        `json:"phase"`
	Node  string       `json:"node"`
	Delta models.Delta `json:"delta"`
	At    time.Time    `json:"at"`
}

// Run is the handle of a started run.
type Run struct {
	ID     string
	Ticker string
	Date   time.Time

	chunks chan Chunk
	stop   atomic.Bool
	done   chan struct{}
	result Result
}

// Chunks delivers every chunk in commit order and is closed when the run
// ends. The channel is unbuffered: a slow reader slows the run down.
func (r *Run) Chunks() <-chan Chunk {
	return r.chunks
}

// Cancel sets the stop flag. The run stops at the next phase, turn or judge
// boundary; in-flight model calls complete first.
func (r *Run) Cancel() {
	r.stop.Store(true)
}

// Done is closed once the result is available.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait discards unread chunks and returns the result.
func (r *Run) Wait() Result {
	for range r.chunks {
	}
	<-r.done
	return r.result
}

// Start launches a run. The caller must drain Chunks or call Wait.
func (p *Pipeline) Start(ctx context.Context, ticker string, date time.Time) *Run {
	run := &Run{
		ID:     uuid.NewString(),
		Ticker: ticker,
		Date:   date,
		chunks: make(chan Chunk),
		done:   make(chan struct{}),
	}
	log := p.log.WithFields(logrus.Fields{"run": run.ID, "ticker": ticker, "date": date.Format("2006-01-02")})

	rs := &runState{
		runID:  run.ID,
		cfg:    p.cfg,
		roster: p.roster,
		state:  models.NewWorkflowState(ticker, date, p.cfg.MaxDebateRounds, p.cfg.MaxRiskDiscussRounds),
		out:    run.chunks,
		stop:   &run.stop,
		log:    log,
	}

	go func() {
		defer close(run.done)
		status, err := rs.execute(ctx)
		close(run.chunks)

		run.result = Result{
			RunID:  run.ID,
			State:  rs.state,
			Action: actionOf(rs.state),
			Status: status,
			Err:    err,
		}
		entry := log.WithField("status", status)
		if err != nil {
			entry.WithError(err).Error("run failed")
		} else {
			entry.WithField("action", run.result.Action).Info("run finished")
		}
	}()
	return run
}

// Propagate runs to completion, handing each chunk to onChunk when it is
// not nil.
func (p *Pipeline) Propagate(ctx context.Context, ticker string, date time.Time, onChunk func(Chunk)) Result {
	run := p.Start(ctx, ticker, date)
	for c := range run.Chunks() {
		if onChunk != nil {
			onChunk(c)
		}
	}
	return run.Wait()
}
