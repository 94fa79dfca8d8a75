package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/storage"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

// Session is a started run bound to the run store and the results
// directory.
type Session struct {
	Run *workflow.Run

	rec        *storage.Recorder
	resultsDir string
	reports    []string
}

// Start launches a run on the current engine. rc overrides the configured
// run settings when it is not nil.
func (r *Runtime) Start(ctx context.Context, ticker string, date time.Time, rc *config.RunConfig) (*Session, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return nil, fmt.Errorf("%w: ticker is required", config.ErrInvalid)
	}
	engine := r.Engine()
	pipeline := engine.Pipeline
	if rc != nil {
		pipeline = pipeline.WithConfig(*rc)
	}

	run := pipeline.Start(ctx, ticker, date)
	rec, err := storage.NewRecorder(ctx, r.store, run, r.log)
	if err != nil {
		run.Cancel()
		run.Wait()
		return nil, err
	}
	return &Session{Run: run, rec: rec, resultsDir: engine.Config.ResultsDir}, nil
}

// Stream drains the run, recording every chunk before handing it to
// onChunk. The returned error covers persistence only; the run outcome is
// in the result.
func (s *Session) Stream(onChunk func(workflow.Chunk)) (workflow.Result, error) {
	for c := range s.Run.Chunks() {
		s.rec.Record(c)
		if onChunk != nil {
			onChunk(c)
		}
	}
	res := s.Run.Wait()

	errs := []error{s.rec.Finish(res)}
	if res.State != nil && res.Status != models.StatusFailed && s.resultsDir != "" {
		paths, err := storage.WriteReports(s.resultsDir, res.State)
		s.reports = paths
		errs = append(errs, err)
	}
	return res, errors.Join(errs...)
}

// Reports lists the markdown files written by Stream.
func (s *Session) Reports() []string {
	return s.reports
}
