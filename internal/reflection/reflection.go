package reflection

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/llm"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/models"
)

// subject is one role that learns from a run.
type subject struct {
	role         string
	partition    string
	contribution func(s *models.WorkflowState) string
}

var subjects = []subject{
	{consts.BullResearcher, consts.MemoryBull, func(s *models.WorkflowState) string {
		return s.InvestmentDebate.History(consts.SpeakerBull)
	}},
	{consts.BearResearcher, consts.MemoryBear, func(s *models.WorkflowState) string {
		return s.InvestmentDebate.History(consts.SpeakerBear)
	}},
	{consts.Trader, consts.MemoryTrader, func(s *models.WorkflowState) string {
		return models.Deref(s.TraderPlan)
	}},
	{consts.ResearchManager, consts.MemoryInvestJudge, func(s *models.WorkflowState) string {
		return models.Deref(s.InvestmentDebate.JudgeDecision)
	}},
	{consts.RiskJudge, consts.MemoryRiskManager, func(s *models.WorkflowState) string {
		return models.Deref(s.RiskDebate.JudgeDecision)
	}},
}

// Lesson is one memory written by Reflect.
type Lesson struct {
	Role      string  `json:"role"`
	Partition string  `json:"partition"`
	Situation string  `json:"situation"`
	Text      string  `json:"lesson"`
	Returns   float64 `json:"returns"`
}

// Engine writes a lesson per role once the realized return of a run is
// known. Without a model the raw contribution is stored as the lesson.
type Engine struct {
	model model.BaseChatModel
	tpl   prompt.ChatTemplate
	bank  memory.Bank
	log   logrus.FieldLogger
}

func NewEngine(m model.BaseChatModel, bank memory.Bank, log logrus.FieldLogger) (*Engine, error) {
	if bank == nil {
		return nil, errors.New("reflection: memory bank is required")
	}
	text, err := agents.LoadPrompt("reflection/reflection")
	if err != nil {
		return nil, err
	}
	return &Engine{
		model: m,
		tpl:   prompt.FromMessages(schema.FString, schema.UserMessage(text)),
		bank:  bank,
		log:   logging.OrDiscard(log).WithField("component", "reflection"),
	}, nil
}

// Reflect stores one lesson for every role that contributed to state. A
// failing role does not stop the others; all failures are joined.
func (e *Engine) Reflect(ctx context.Context, state *models.WorkflowState, returns float64) ([]Lesson, error) {
	situation := state.Situation()
	var (
		lessons []Lesson
		errs    []error
	)
	for _, sub := range subjects {
		contribution := strings.TrimSpace(sub.contribution(state))
		if contribution == "" {
			continue
		}
		lesson, err := e.lesson(ctx, sub.role, situation, contribution, returns)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sub.role, err))
			continue
		}
		if err := e.bank.Partition(sub.partition).Add(ctx, situation, lesson, returns); err != nil {
			errs = append(errs, fmt.Errorf("%s: store lesson: %w", sub.role, err))
			continue
		}
		lessons = append(lessons, Lesson{
			Role:      sub.role,
			Partition: sub.partition,
			Situation: situation,
			Text:      lesson,
			Returns:   returns,
		})
	}
	e.log.WithFields(logrus.Fields{
		"ticker":  state.Ticker,
		"date":    state.Date(),
		"lessons": len(lessons),
	}).Info("reflection finished")
	return lessons, errors.Join(errs...)
}

func (e *Engine) lesson(ctx context.Context, role, situation, contribution string, returns float64) (string, error) {
	if e.model == nil {
		return contribution, nil
	}
	label := consts.DisplayNames[role]
	if label == "" {
		label = role
	}
	msgs, err := e.tpl.Format(ctx, map[string]any{
		"situation":    situation,
		"role":         label,
		"contribution": contribution,
		"returns":      strconv.FormatFloat(returns, 'f', -1, 64),
	})
	if err != nil {
		return "", fmt.Errorf("format prompt: %w", err)
	}
	resp, err := e.model.Generate(llm.WithRole(ctx, "reflect_"+role, e.log), msgs)
	if err != nil {
		return "", err
	}
	if resp == nil || strings.TrimSpace(resp.Content) == "" {
		return contribution, nil
	}
	return strings.TrimSpace(resp.Content), nil
}

// ReflectAsync runs Reflect in the background. Failures are logged only.
// The returned channel is closed when it finishes.
func (e *Engine) ReflectAsync(ctx context.Context, state *models.WorkflowState, returns float64) <-chan struct{} {
	done := make(chan struct{})
	snap := state.Snapshot()
	go func() {
		defer close(done)
		if _, err := e.Reflect(ctx, snap, returns); err != nil {
			e.log.WithError(err).WithField("ticker", snap.Ticker).Warn("reflection failed")
		}
	}()
	return done
}
