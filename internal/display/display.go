package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/processing"
	"github.com/dyike/tradeflow/internal/workflow"
	"github.com/dyike/tradeflow/models"
)

const width = 80

var (
	titleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#7C3AED")).
		Background(lipgloss.Color("#1F2937")).
		Padding(0, 1).
		MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#3B82F6")).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#3B82F6")).
		Padding(0, 2).
		Width(width)

	panelStyle = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#10B981")).
		Padding(0, 2).
		Width(width)

	sectionStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#F59E0B"))

	pendingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	completedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	toolCallStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8B5CF6"))
	reportStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
	debateStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6"))
	decisionStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true)
	timestampStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))

	recommendStyles = map[models.Action]lipgloss.Style{
		models.ActionBuy:  lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		models.ActionSell: lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true),
		models.ActionHold: lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")).Bold(true),
	}
)

// Printer renders chunks and results for a terminal.
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// Chunk prints one line per committed node write.
func (p *Printer) Chunk(c workflow.Chunk) {
	agent := consts.DisplayNames[c.Node]
	if agent == "" {
		agent = c.Node
	}
	for _, t := range c.Delta.Transcript {
		if t.ToolCall == nil {
			continue
		}
		line := fmt.Sprintf("    tool %s(%s)", t.ToolCall.Name, truncate(t.ToolCall.Arguments, 40))
		if t.ToolCall.Failed() {
			line += " failed: " + truncate(t.ToolCall.Error, 40)
		}
		fmt.Fprintln(p.w, toolCallStyle.Render(line))
	}

	style, summary := summarize(c.Delta)
	fmt.Fprintf(p.w, "%s #%d %s %s\n",
		timestampStyle.Render(c.At.Format("15:04:05")),
		c.Seq,
		style.Render(agent+":"),
		truncate(summary, 60),
	)
}

// summarize picks the field a chunk is about.
func summarize(d models.Delta) (lipgloss.Style, string) {
	for _, k := range models.ReportKeys {
		if r, ok := d.Reports[k]; ok {
			return reportStyle, fmt.Sprintf("%s report ready (%d chars)", k, len(r))
		}
	}
	for _, u := range []*models.DebateUpdate{d.InvestmentDebate, d.RiskDebate} {
		if u == nil {
			continue
		}
		if u.JudgeDecision != nil {
			return decisionStyle, oneLine(*u.JudgeDecision)
		}
		return debateStyle, oneLine(u.Entry)
	}
	if d.TraderPlan != nil {
		return decisionStyle, oneLine(*d.TraderPlan)
	}
	return infoStyle, "update"
}

// Result prints the full report of a finished run.
func (p *Printer) Result(res workflow.Result) {
	s := res.State
	if s == nil {
		p.Error(fmt.Errorf("run %s has no state", res.RunID))
		return
	}
	header := fmt.Sprintf("Analysis: %s | Date: %s | Status: %s", s.Ticker, s.Date(), res.Status)
	fmt.Fprintln(p.w, headerStyle.Render(header))

	p.section("EXECUTIVE SUMMARY")
	fmt.Fprintf(p.w, "Final recommendation: %s\n", recommendation(res.Action))
	sum := processing.ProcessSignal(s)
	for _, lvl := range []struct {
		name  string
		value float64
	}{{"Entry", sum.EntryPrice}, {"Stop loss", sum.StopLoss}, {"Target", sum.TakeProfit}} {
		if lvl.value != 0 {
			fmt.Fprintf(p.w, "%s: %g\n", lvl.name, lvl.value)
		}
	}
	if sum.PositionSize != 0 {
		fmt.Fprintf(p.w, "Position size: %g%% of portfolio\n", sum.PositionSize*100)
	}
	if res.Err != nil {
		fmt.Fprintln(p.w, errorStyle.Render("Error: "+res.Err.Error()))
	}
	fmt.Fprintln(p.w)

	p.section("ANALYST REPORTS")
	titles := map[models.ReportKey]string{
		models.ReportMarket:       "Market Research",
		models.ReportSentiment:    "Social Sentiment",
		models.ReportNews:         "News Analysis",
		models.ReportFundamentals: "Fundamentals",
	}
	for _, k := range models.ReportKeys {
		r, _ := s.Report(k)
		p.block(titles[k], r)
	}

	p.section("RESEARCH DEBATE")
	p.debate(s.InvestmentDebate)
	p.block(consts.Agent_ResearchManager+" decision", models.Deref(s.InvestmentPlan))

	p.section("TRADING PLAN")
	p.block(consts.Agent_Trader, models.Deref(s.TraderPlan))

	p.section("RISK ASSESSMENT")
	p.debate(s.RiskDebate)
	p.block(consts.Agent_PortfolioManager+" decision", models.Deref(s.FinalDecision))

	footer := fmt.Sprintf("Generated at %s. For informational purposes only, not financial advice.",
		time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintln(p.w, timestampStyle.Render(footer))
}

func (p *Printer) section(title string) {
	fmt.Fprintln(p.w, sectionStyle.Render(title))
	fmt.Fprintln(p.w, strings.Repeat("═", width))
}

func (p *Printer) block(title, text string) {
	fmt.Fprintf(p.w, "%s:\n", title)
	if strings.TrimSpace(text) == "" {
		fmt.Fprintln(p.w, pendingStyle.Render("   (not available)"))
	} else {
		for _, line := range wrap(text, "   ", width-5) {
			fmt.Fprintln(p.w, line)
		}
	}
	fmt.Fprintln(p.w)
}

func (p *Printer) debate(d *models.DebateState) {
	if d == nil || len(d.Combined) == 0 {
		fmt.Fprintln(p.w, pendingStyle.Render("   (no arguments recorded)"))
		fmt.Fprintln(p.w)
		return
	}
	for _, e := range d.Combined {
		for _, line := range wrap(e.Text, "   ", width-5) {
			fmt.Fprintln(p.w, line)
		}
	}
	fmt.Fprintf(p.w, "Rounds: %d of %d\n\n", d.RoundCount, d.MaxRounds)
}

func (p *Printer) Error(err error) {
	fmt.Fprintln(p.w, errorStyle.Render("Error: "+err.Error()))
}

func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.w, infoStyle.Render(msg))
}

func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.w, completedStyle.Render(msg))
}

// Title prints a highlighted single line.
func (p *Printer) Title(msg string) {
	fmt.Fprintln(p.w, titleStyle.Render(msg))
}

// Panel prints text inside a bordered box.
func (p *Printer) Panel(text string) {
	fmt.Fprintln(p.w, panelStyle.Render(text))
}

func recommendation(a models.Action) string {
	style, ok := recommendStyles[a]
	if !ok {
		return pendingStyle.Render(string(a))
	}
	return style.Render(string(a))
}

// wrap breaks text into indented lines of at most limit runes where words
// allow it.
func wrap(text, indent string, limit int) []string {
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			continue
		}
		line := indent + words[0]
		for _, w := range words[1:] {
			if len([]rune(line))+1+len([]rune(w)) > limit {
				lines = append(lines, line)
				line = indent + w
				continue
			}
			line += " " + w
		}
		lines = append(lines, line)
	}
	return lines
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
