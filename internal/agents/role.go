package agents

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/internal/llm"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/models"
)

// pastMemories is how many lessons are injected into a prompt.
const pastMemories = 2

// Role is one agent of the pipeline. Produce makes a single model call over
// a read-only state snapshot; transcript carries the tool loop messages of
// analysts and is nil for every other role.
type Role interface {
	Name() string
	Label() string
	Produce(ctx context.Context, state *models.WorkflowState, transcript []*schema.Message) (*schema.Message, error)
}

// varsFunc builds the template variables from the state.
type varsFunc func(s *models.WorkflowState) map[string]any

// chatRole is the shared implementation: a prompt template, a chat model
// and an optional memory partition.
type chatRole struct {
	name   string
	label  string
	model  model.ToolCallingChatModel
	tpl    prompt.ChatTemplate
	vars   varsFunc
	memory memory.Store
	log    logrus.FieldLogger
}

func (r *chatRole) Name() string  { return r.name }
func (r *chatRole) Label() string { return r.label }

func (r *chatRole) Produce(ctx context.Context, state *models.WorkflowState, transcript []*schema.Message) (*schema.Message, error) {
	vars := r.vars(state)
	if r.memory != nil {
		matches, err := r.memory.QuerySimilar(ctx, state.Situation(), pastMemories)
		if err != nil {
			// A missing lesson degrades the prompt, it does not fail the role.
			r.log.WithError(err).Warn("memory lookup failed")
		}
		vars["past_memory_str"] = memory.Recommendations(matches)
	}
	vars["transcript"] = transcript

	msgs, err := r.tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s: format prompt: %w", r.name, err)
	}

	resp, err := r.model.Generate(llm.WithRole(ctx, r.name, r.log), msgs)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", r.name, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("%s: empty model response", r.name)
	}
	return resp, nil
}

func newChatRole(name, label string, m model.ToolCallingChatModel, tpl prompt.ChatTemplate, vars varsFunc, store memory.Store, log logrus.FieldLogger) *chatRole {
	return &chatRole{
		name:   name,
		label:  label,
		model:  m,
		tpl:    tpl,
		vars:   vars,
		memory: store,
		log:    logging.OrDiscard(log).WithField("node", name),
	}
}

// userTemplate is a single user message built from a prompt file.
func userTemplate(path string) (prompt.ChatTemplate, error) {
	text, err := LoadPrompt(path)
	if err != nil {
		return nil, err
	}
	return prompt.FromMessages(schema.FString,
		schema.UserMessage(text),
		schema.MessagesPlaceholder("transcript", true),
	), nil
}

func reportVars(s *models.WorkflowState) map[string]any {
	return map[string]any{
		"ticker":                 s.Ticker,
		"trade_date":             s.Date(),
		"market_research_report": reportOrNone(s, models.ReportMarket),
		"sentiment_report":       reportOrNone(s, models.ReportSentiment),
		"news_report":            reportOrNone(s, models.ReportNews),
		"fundamentals_report":    reportOrNone(s, models.ReportFundamentals),
		"past_memory_str":        memory.Recommendations(nil),
	}
}

func reportOrNone(s *models.WorkflowState, key models.ReportKey) string {
	if r, ok := s.Report(key); ok && r != "" {
		return r
	}
	return "(not available)"
}
