package agents

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/llm"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/internal/tools"
)

// Team is the full cast of one pipeline. Analysts are built per run since
// the tool mode is a run setting.
type Team struct {
	Bull, Bear      Role
	ResearchManager Role
	Trader          Role
	Risky, Safe     Role
	Neutral         Role
	RiskJudge       Role

	models   llm.Models
	registry *tools.Registry
	log      logrus.FieldLogger
}

// NewTeam wires the quick model into analysts, debaters and the trader and
// the deep model into the two judges.
func NewTeam(m llm.Models, registry *tools.Registry, bank memory.Bank, log logrus.FieldLogger) (*Team, error) {
	t := &Team{models: m, registry: registry, log: log}
	var err error
	build := func(dst *Role, f func() (Role, error)) {
		if err != nil {
			return
		}
		*dst, err = f()
	}
	build(&t.Bull, func() (Role, error) { return NewBullResearcher(m.Quick, bank.Partition(consts.MemoryBull), log) })
	build(&t.Bear, func() (Role, error) { return NewBearResearcher(m.Quick, bank.Partition(consts.MemoryBear), log) })
	build(&t.ResearchManager, func() (Role, error) {
		return NewResearchManager(m.Deep, bank.Partition(consts.MemoryInvestJudge), log)
	})
	build(&t.Trader, func() (Role, error) { return NewTrader(m.Quick, bank.Partition(consts.MemoryTrader), log) })
	build(&t.Risky, func() (Role, error) { return NewRiskyAnalyst(m.Quick, log) })
	build(&t.Safe, func() (Role, error) { return NewSafeAnalyst(m.Quick, log) })
	build(&t.Neutral, func() (Role, error) { return NewNeutralAnalyst(m.Quick, log) })
	build(&t.RiskJudge, func() (Role, error) {
		return NewRiskJudge(m.Deep, bank.Partition(consts.MemoryRiskManager), log)
	})
	if err != nil {
		return nil, fmt.Errorf("build team: %w", err)
	}
	return t, nil
}

// Analyst builds the analyst for key with the toolset of the given mode.
func (t *Team) Analyst(ctx context.Context, key string, online bool) (*Analyst, *tools.Toolset, error) {
	ts, err := t.registry.For(ctx, key, online)
	if err != nil {
		return nil, nil, err
	}
	a, err := NewAnalyst(ctx, key, t.models.Quick, ts.Infos(), t.log)
	if err != nil {
		return nil, nil, err
	}
	return a, ts, nil
}
