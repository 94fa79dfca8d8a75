package storage

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/workflow"
)

type recordKind int

const (
	recordChunk recordKind = iota + 1
	recordFinish
)

type recordEvent struct {
	kind   recordKind
	chunk  workflow.Chunk
	result workflow.Result
}

// Recorder persists a run's chunks off the run goroutine. Events are
// written in the order they were recorded.
type Recorder struct {
	store *Store
	runID string
	log   logrus.FieldLogger

	events chan recordEvent
	once   sync.Once
	wg     sync.WaitGroup

	mu   sync.Mutex
	errs []error
}

func NewRecorder(ctx context.Context, store *Store, run *workflow.Run, log logrus.FieldLogger) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("store is required")
	}
	if err := store.CreateRun(ctx, RunRecord{
		ID:        run.ID,
		Ticker:    run.Ticker,
		TradeDate: run.Date.Format("2006-01-02"),
	}); err != nil {
		return nil, err
	}

	r := &Recorder{
		store:  store,
		runID:  run.ID,
		log:    logging.OrDiscard(log).WithField("run", run.ID),
		events: make(chan recordEvent, 512),
	}
	r.wg.Add(1)
	go r.loop()
	return r, nil
}

func (r *Recorder) loop() {
	defer r.wg.Done()
	ctx := context.Background()
	for ev := range r.events {
		var err error
		switch ev.kind {
		case recordChunk:
			c := ev.chunk
			err = r.store.AppendChunk(ctx, ChunkRecord{
				RunID: r.runID,
				Seq:   c.Seq,
				Phase: string(c.Phase),
				Node:  c.Node,
				Delta: c.Delta,
			})
		case recordFinish:
			res := ev.result
			err = r.store.FinishRun(ctx, r.runID, res.Status, res.Action, res.Err, res.State)
		}
		if err != nil {
			r.log.WithError(err).Warn("record run event")
			r.mu.Lock()
			r.errs = append(r.errs, err)
			r.mu.Unlock()
		}
	}
}

// Record queues a chunk. It blocks only when the queue is full.
func (r *Recorder) Record(c workflow.Chunk) {
	r.events <- recordEvent{kind: recordChunk, chunk: c}
}

// Finish queues the result, waits for every write and returns the write
// errors, if any.
func (r *Recorder) Finish(res workflow.Result) error {
	r.once.Do(func() {
		r.events <- recordEvent{kind: recordFinish, result: res}
		close(r.events)
		r.wg.Wait()
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	return errors.Join(r.errs...)
}
