package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/processing"
	"github.com/dyike/tradeflow/models"
)

// AnalystFactory builds the analyst for a key together with the tools it
// may call.
type AnalystFactory func(ctx context.Context, key string, online bool) (agents.Role, ToolExecutor, error)

// Roster is every role the sequencer drives.
type Roster struct {
	Analysts        AnalystFactory
	Bull, Bear      agents.Role
	ResearchManager agents.Role
	Trader          agents.Role
	Risky, Safe     agents.Role
	Neutral         agents.Role
	RiskJudge       agents.Role
}

// RosterFromTeam adapts an agents.Team.
func RosterFromTeam(t *agents.Team) Roster {
	return Roster{
		Analysts: func(ctx context.Context, key string, online bool) (agents.Role, ToolExecutor, error) {
			a, ts, err := t.Analyst(ctx, key, online)
			if err != nil {
				return nil, nil, err
			}
			return a, ts, nil
		},
		Bull:            t.Bull,
		Bear:            t.Bear,
		ResearchManager: t.ResearchManager,
		Trader:          t.Trader,
		Risky:           t.Risky,
		Safe:            t.Safe,
		Neutral:         t.Neutral,
		RiskJudge:       t.RiskJudge,
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID  string                `json:"run_id"`
	State  *models.WorkflowState `json:"state"`
	Action models.Action         `json:"action"`
	Status models.RunStatus      `json:"status"`
	Err    error                 `json:"-"`
}

// Pipeline sequences Analysts, ResearchDebate, Trader, RiskDebate and
// PortfolioJudge. A Pipeline is safe for concurrent runs; runs share only
// what the roster shares.
type Pipeline struct {
	roster Roster
	cfg    config.RunConfig
	log    logrus.FieldLogger
}

func NewPipeline(roster Roster, cfg config.RunConfig, log logrus.FieldLogger) *Pipeline {
	return &Pipeline{roster: roster, cfg: cfg, log: logging.OrDiscard(log)}
}

// Config returns the run configuration the pipeline was built with.
func (p *Pipeline) Config() config.RunConfig {
	return p.cfg
}

// WithConfig returns a pipeline over the same roster with other run
// settings.
func (p *Pipeline) WithConfig(cfg config.RunConfig) *Pipeline {
	return &Pipeline{roster: p.roster, cfg: cfg, log: p.log}
}

// runState is the sequencer goroutine's view of one run. Only that
// goroutine touches state.
type runState struct {
	runID  string
	cfg    config.RunConfig
	roster Roster
	state  *models.WorkflowState
	out    chan<- Chunk
	stop   *atomic.Bool
	seq    int
	log    logrus.FieldLogger
}

func (r *runState) stopped() bool {
	return r.stop.Load()
}

// commit checks permissions, applies d and publishes it. The send blocks
// until the consumer takes the chunk.
func (r *runState) commit(ctx context.Context, phase Phase, node string, d models.Delta) error {
	if outside := AllowedFields(node).Outside(d); len(outside) > 0 {
		return fmt.Errorf("%w: %s wrote %v", ErrForbiddenWrite, node, outside)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := r.state.Apply(d); err != nil {
		return fmt.Errorf("%s: %w", node, err)
	}
	r.seq++
	chunk := Chunk{RunID: r.runID, Seq: r.seq, Phase: phase, Node: node, Delta: d, At: time.Now()}
	select {
	case r.out <- chunk:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.log.WithFields(logrus.Fields{"phase": phase, "node": node, "seq": r.seq}).Debug("chunk committed")
	return nil
}

// execute walks the phases. It returns the terminal status and, for
// Failed, the error.
func (r *runState) execute(ctx context.Context) (models.RunStatus, error) {
	if err := r.cfg.Validate(); err != nil {
		return models.StatusFailed, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	research := newResearchDebate(
		Debater{Speaker: consts.SpeakerBull, Role: r.roster.Bull},
		Debater{Speaker: consts.SpeakerBear, Role: r.roster.Bear},
		r.roster.ResearchManager,
	)
	risk := newRiskDebate(
		Debater{Speaker: consts.SpeakerRisky, Role: r.roster.Risky},
		Debater{Speaker: consts.SpeakerSafe, Role: r.roster.Safe},
		Debater{Speaker: consts.SpeakerNeutral, Role: r.roster.Neutral},
		r.roster.RiskJudge,
	)

	phases := []struct {
		phase Phase
		run   func(context.Context) error
	}{
		{PhaseAnalysts, r.runAnalysts},
		{PhaseResearchDebate, func(ctx context.Context) error { return research.Run(ctx, r) }},
		{PhaseTrader, r.runTrader},
		{PhaseRiskDebate, func(ctx context.Context) error { return risk.Run(ctx, r) }},
	}
	for _, ph := range phases {
		if r.stopped() {
			return models.StatusStopped, nil
		}
		r.log.WithField("phase", ph.phase).Info("phase started")
		if err := ph.run(ctx); err != nil {
			if errors.Is(err, errStopped) {
				return models.StatusStopped, nil
			}
			return models.StatusFailed, fmt.Errorf("%s: %w", ph.phase, err)
		}
	}
	return models.StatusDone, nil
}

type analystResult struct {
	node  string
	delta models.Delta
}

// runAnalysts runs the selected analysts concurrently on snapshots. Results
// are committed here, in completion order.
func (r *runState) runAnalysts(ctx context.Context) error {
	actx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(actx)
	results := make(chan analystResult)

	for _, key := range r.cfg.SelectedAnalysts {
		report, ok := agents.ReportFor(key)
		if !ok {
			return fmt.Errorf("%w: unknown analyst %q", ErrInvalidConfig, key)
		}
		snap := r.state.Snapshot()
		g.Go(func() error {
			role, tools, err := r.roster.Analysts(gctx, key, r.cfg.OnlineTools)
			if err != nil {
				return err
			}
			loop := &ToolLoop{Role: role, Tools: tools, MaxIterations: r.cfg.MaxToolIterations, Log: r.log}
			text, turns, err := loop.Run(gctx, snap)
			if err != nil {
				return err
			}
			res := analystResult{
				node: role.Name(),
				delta: models.Delta{
					Reports:    map[models.ReportKey]string{report: text},
					Transcript: turns,
				},
			}
			select {
			case results <- res:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	}

	var waitErr error
	go func() {
		waitErr = g.Wait()
		close(results)
	}()

	var commitErr error
	for res := range results {
		if commitErr != nil {
			continue
		}
		if err := r.commit(ctx, PhaseAnalysts, res.node, res.delta); err != nil {
			commitErr = err
			cancel()
		}
	}
	if commitErr != nil {
		return commitErr
	}
	return waitErr
}

func (r *runState) runTrader(ctx context.Context) error {
	resp, err := r.roster.Trader.Produce(ctx, r.state.Snapshot(), nil)
	if err != nil {
		return err
	}
	d := models.Delta{
		TraderPlan: models.Text(strings.TrimSpace(resp.Content)),
		Transcript: []models.ChatTurn{models.NewChatTurn(r.roster.Trader.Name(), resp)},
	}
	return r.commit(ctx, PhaseTrader, r.roster.Trader.Name(), d)
}

func actionOf(s *models.WorkflowState) models.Action {
	if s.FinalDecision == nil {
		return models.ActionUnknown
	}
	return processing.ExtractAction(*s.FinalDecision)
}
