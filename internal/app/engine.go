package app

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/config"
	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/dataflows"
	"github.com/dyike/tradeflow/internal/llm"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/internal/reflection"
	"github.com/dyike/tradeflow/internal/tools"
	"github.com/dyike/tradeflow/internal/workflow"
)

// Engine is everything built from one config snapshot. A reload builds a
// new Engine; runs already started keep the one they began with.
type Engine struct {
	Config    config.Config
	BuiltAt   time.Time
	Version   uint64
	Pipeline  *workflow.Pipeline
	Reflector *reflection.Engine
}

// Deps are the long-lived resources an engine borrows from the runtime.
type Deps struct {
	Bank memory.Bank
	Log  logrus.FieldLogger
}

type EngineBuilder func(ctx context.Context, cfg config.Config, deps Deps) (*Engine, error)

var engineSeq atomic.Uint64

// NewEngine stamps an engine with the next version.
func NewEngine(cfg config.Config, pipeline *workflow.Pipeline, reflector *reflection.Engine) *Engine {
	return &Engine{
		Config:    cfg,
		BuiltAt:   time.Now(),
		Version:   engineSeq.Add(1),
		Pipeline:  pipeline,
		Reflector: reflector,
	}
}

// BuildEngine wires models, data sources, tools and the team into a
// pipeline.
func BuildEngine(ctx context.Context, cfg config.Config, deps Deps) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Bank == nil {
		return nil, fmt.Errorf("build engine: memory bank is required")
	}

	m, err := llm.NewModels(ctx, &cfg, deps.Log)
	if err != nil {
		return nil, err
	}
	registry := tools.NewRegistry(
		tools.ProvidersFrom(dataflows.NewSources(&cfg, false, deps.Log)),
		tools.ProvidersFrom(dataflows.NewSources(&cfg, true, deps.Log)),
	)
	team, err := agents.NewTeam(*m, registry, deps.Bank, deps.Log)
	if err != nil {
		return nil, err
	}
	reflector, err := reflection.NewEngine(m.Quick, deps.Bank, deps.Log)
	if err != nil {
		return nil, err
	}

	pipeline := workflow.NewPipeline(workflow.RosterFromTeam(team), cfg.RunConfig(), deps.Log)
	return NewEngine(cfg, pipeline, reflector), nil
}
