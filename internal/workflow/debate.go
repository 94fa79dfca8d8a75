package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/models"
)

// Debater is one seat of a debate: the speaker key recorded in the debate
// state and the role that argues it.
type Debater struct {
	Speaker string
	Role    agents.Role
}

// debateKind selects which WorkflowState fields a debate writes.
type debateKind int

const (
	researchDebate debateKind = iota
	riskDebate
)

// DebateMachine runs a fixed cast for MaxRounds full cycles, then the judge
// exactly once. Turn order and round counting live in models.DebateState;
// the machine only drives it.
type DebateMachine struct {
	kind       debateKind
	phase      Phase
	judgePhase Phase
	cast       []Debater
	judge      agents.Role
}

func newResearchDebate(bull, bear Debater, judge agents.Role) *DebateMachine {
	return &DebateMachine{
		kind:       researchDebate,
		phase:      PhaseResearchDebate,
		judgePhase: PhaseResearchDebate,
		cast:       []Debater{bull, bear},
		judge:      judge,
	}
}

// The risk judge is labelled PortfolioJudge in the stream.
func newRiskDebate(risky, safe, neutral Debater, judge agents.Role) *DebateMachine {
	return &DebateMachine{
		kind:       riskDebate,
		phase:      PhaseRiskDebate,
		judgePhase: PhasePortfolioJudge,
		cast:       []Debater{risky, safe, neutral},
		judge:      judge,
	}
}

func (m *DebateMachine) debate(s *models.WorkflowState) *models.DebateState {
	if m.kind == riskDebate {
		return s.RiskDebate
	}
	return s.InvestmentDebate
}

func (m *DebateMachine) seat(speaker string) (agents.Role, error) {
	for _, d := range m.cast {
		if d.Speaker == speaker {
			return d.Role, nil
		}
	}
	return nil, fmt.Errorf("no debater for speaker %q", speaker)
}

// delta wraps a debate update in the fields this debate owns. A judge
// decision is also copied into the plan it produces.
func (m *DebateMachine) delta(u *models.DebateUpdate) models.Delta {
	var d models.Delta
	switch m.kind {
	case researchDebate:
		d.InvestmentDebate = u
		if u.JudgeDecision != nil {
			d.InvestmentPlan = models.Text(*u.JudgeDecision)
		}
	case riskDebate:
		d.RiskDebate = u
		if u.JudgeDecision != nil {
			d.FinalDecision = models.Text(*u.JudgeDecision)
		}
	}
	return d
}

// Run drives Turn(i)... Judge, Done. The stop flag is checked before every
// turn and before the judge.
func (m *DebateMachine) Run(ctx context.Context, r *runState) error {
	ds := m.debate(r.state)
	if ds.MaxRounds < 0 {
		return fmt.Errorf("%w: negative round limit %d", ErrInvalidConfig, ds.MaxRounds)
	}
	if len(ds.Participants) != len(m.cast) {
		return fmt.Errorf("%w: debate has %d participants, cast has %d", ErrInvalidConfig, len(ds.Participants), len(m.cast))
	}

	for {
		if r.stopped() {
			return errStopped
		}
		speaker := ds.NextSpeaker()
		if speaker == "" {
			break
		}
		role, err := m.seat(speaker)
		if err != nil {
			return err
		}

		resp, err := role.Produce(ctx, r.state.Snapshot(), nil)
		if err != nil {
			return err
		}
		argument := strings.TrimSpace(resp.Content)
		if argument == "" {
			argument = "(no argument provided)"
		}
		d := m.delta(&models.DebateUpdate{Speaker: speaker, Entry: role.Label() + ": " + argument})
		d.Transcript = []models.ChatTurn{models.NewChatTurn(role.Name(), resp)}
		if err := r.commit(ctx, m.phase, role.Name(), d); err != nil {
			return err
		}
	}

	if r.stopped() {
		return errStopped
	}
	resp, err := m.judge.Produce(ctx, r.state.Snapshot(), nil)
	if err != nil {
		return err
	}
	d := m.delta(&models.DebateUpdate{JudgeDecision: models.Text(strings.TrimSpace(resp.Content))})
	d.Transcript = []models.ChatTurn{models.NewChatTurn(m.judge.Name(), resp)}
	return r.commit(ctx, m.judgePhase, m.judge.Name(), d)
}
