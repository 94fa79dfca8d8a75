package display

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

func TestChunkLine(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	turn := models.NewChatTurn(consts.MarketAnalyst, schema.ToolMessage("rows", "c1"))
	turn.ToolCall = &models.ToolCall{ID: "c1", Name: "get_market_data", Arguments: `{"ticker":"NVDA"}`, Error: "timeout"}
	p.Chunk(workflow.Chunk{
		Seq:   1,
		Phase: workflow.PhaseAnalysts,
		Node:  consts.MarketAnalyst,
		At:    time.Now(),
		Delta: models.Delta{
			Reports:    map[models.ReportKey]string{models.ReportMarket: "trend up"},
			Transcript: []models.ChatTurn{turn},
		},
	})

	out := buf.String()
	for _, want := range []string{"get_market_data", "failed: timeout", "#1", consts.Agent_MarketAnalyst + ":", "market report ready (8 chars)"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestResultSections(t *testing.T) {
	s := models.NewWorkflowState("NVDA", time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC), 1, 0)
	_ = s.Apply(models.Delta{Reports: map[models.ReportKey]string{models.ReportNews: "Export rules tightened"}})
	_ = s.Apply(models.Delta{InvestmentDebate: &models.DebateUpdate{Speaker: consts.SpeakerBull, Entry: "Bull Analyst: demand is strong"}})
	_ = s.Apply(models.Delta{TraderPlan: models.Text("Entry price: $1,050.25. Stop loss: $990.")})
	_ = s.Apply(models.Delta{FinalDecision: models.Text("Recommendation: SELL")})

	var buf bytes.Buffer
	NewPrinter(&buf).Result(workflow.Result{State: s, Action: models.ActionSell, Status: models.StatusDone})
	out := buf.String()
	for _, want := range []string{"NVDA", "2024-05-10", "SELL", "Export rules tightened", "Bull Analyst: demand is strong", "Rounds: 0 of 1", "Entry: 1050.25", "Stop loss: 990"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q", want)
		}
	}
}

func TestWrap(t *testing.T) {
	lines := wrap("one two three four five six", "  ", 12)
	for _, l := range lines {
		if len(l) > 12 {
			t.Fatalf("line too long: %q", l)
		}
		if !strings.HasPrefix(l, "  ") {
			t.Fatalf("missing indent: %q", l)
		}
	}
	if strings.Join(lines, " ") != "  one two   three four   five six" {
		t.Fatalf("unexpected wrap %q", lines)
	}
}

func TestProgress(t *testing.T) {
	p := NewProgress([]string{consts.AnalystMarket})
	if done, total := p.Completed(); done != 0 || total != 12-3 {
		t.Fatalf("unexpected totals %d/%d", done, total)
	}

	chunks := []workflow.Chunk{
		{Node: consts.MarketAnalyst, Phase: workflow.PhaseAnalysts, Delta: models.Delta{Reports: map[models.ReportKey]string{models.ReportMarket: "r"}}},
		{Node: consts.BullResearcher, Phase: workflow.PhaseResearchDebate},
	}
	for _, c := range chunks {
		p.Observe(c)
	}
	if p.Status(consts.BullResearcher) != StatusActive {
		t.Fatalf("bull should be in progress")
	}
	p.Observe(workflow.Chunk{Node: consts.ResearchManager, Phase: workflow.PhaseResearchDebate})
	if p.Status(consts.BullResearcher) != StatusCompleted || p.Status(consts.BearResearcher) != StatusCompleted {
		t.Fatalf("debaters complete with their judge")
	}
	if done, _ := p.Completed(); done != 4 {
		t.Fatalf("expected 4 completed, got %d", done)
	}

	panel := p.Render()
	if strings.Contains(panel, consts.Agent_NewsAnalyst) {
		t.Fatalf("unselected analyst listed:\n%s", panel)
	}
	if !strings.Contains(panel, "4/9 completed") || !strings.Contains(panel, "1 reports") {
		t.Fatalf("unexpected panel:\n%s", panel)
	}
}
