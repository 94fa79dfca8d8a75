package display

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/workflow"
)

// AgentStatus is the progress of one node as seen from the stream.
type AgentStatus string

const (
	StatusPending   AgentStatus = "pending"
	StatusActive    AgentStatus = "in_progress"
	StatusCompleted AgentStatus = "completed"
)

type team struct {
	name  string
	nodes []string
}

var teams = []team{
	{"Analyst Team", []string{consts.MarketAnalyst, consts.SocialMediaAnalyst, consts.NewsAnalyst, consts.FundamentalsAnalyst}},
	{"Research Team", []string{consts.BullResearcher, consts.BearResearcher, consts.ResearchManager}},
	{"Trading Team", []string{consts.Trader}},
	{"Risk Management", []string{consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst, consts.RiskJudge}},
}

// Progress folds chunks into per-node status and counters. Debaters stay
// in progress until their judge has spoken.
type Progress struct {
	mu        sync.Mutex
	selected  map[string]bool
	status    map[string]AgentStatus
	toolCalls int
	reports   int
	phase     workflow.Phase
}

// NewProgress tracks the given analyst keys plus every downstream node.
func NewProgress(analysts []string) *Progress {
	p := &Progress{
		selected: make(map[string]bool),
		status:   make(map[string]AgentStatus),
	}
	for _, key := range analysts {
		p.selected[consts.AnalystNodes[key]] = true
	}
	for _, t := range teams[1:] {
		for _, n := range t.nodes {
			p.selected[n] = true
		}
	}
	for n := range p.selected {
		p.status[n] = StatusPending
	}
	return p
}

func (p *Progress) Observe(c workflow.Chunk) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.phase = c.Phase
	p.reports += len(c.Delta.Reports)
	for _, t := range c.Delta.Transcript {
		if t.ToolCall != nil {
			p.toolCalls++
		}
	}

	switch c.Node {
	case consts.ResearchManager:
		p.status[consts.BullResearcher] = StatusCompleted
		p.status[consts.BearResearcher] = StatusCompleted
		p.status[c.Node] = StatusCompleted
	case consts.RiskJudge:
		p.status[consts.RiskyAnalyst] = StatusCompleted
		p.status[consts.SafeAnalyst] = StatusCompleted
		p.status[consts.NeutralAnalyst] = StatusCompleted
		p.status[c.Node] = StatusCompleted
	case consts.BullResearcher, consts.BearResearcher, consts.RiskyAnalyst, consts.SafeAnalyst, consts.NeutralAnalyst:
		p.status[c.Node] = StatusActive
	default:
		p.status[c.Node] = StatusCompleted
	}
}

func (p *Progress) Status(node string) AgentStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[node]
}

// Completed counts finished nodes out of the tracked ones.
func (p *Progress) Completed() (done, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for n := range p.selected {
		if p.status[n] == StatusCompleted {
			done++
		}
	}
	return done, len(p.selected)
}

// Render builds the progress panel text.
func (p *Progress) Render() string {
	done, total := p.Completed()
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "Agent Progress (phase: %s)\n\n", p.phase)
	for _, t := range teams {
		b.WriteString(t.name + ":\n")
		for _, n := range t.nodes {
			if !p.selected[n] {
				continue
			}
			b.WriteString(formatStatus(consts.DisplayNames[n], p.status[n]))
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "%d/%d completed | %d tool calls | %d reports", done, total, p.toolCalls, p.reports)
	return b.String()
}

func formatStatus(name string, s AgentStatus) string {
	style := pendingStyle
	switch s {
	case StatusActive:
		style = decisionStyle
	case StatusCompleted:
		style = completedStyle
	}
	return fmt.Sprintf("  %s %s\n", style.Render(name), style.Render(string(s)))
}
