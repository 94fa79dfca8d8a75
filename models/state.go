package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dyike/tradeflow/consts"
)

// ReportKey identifies one analyst report slot.
type ReportKey string

const (
	ReportMarket       ReportKey = "market"
	ReportSentiment    ReportKey = "sentiment"
	ReportNews         ReportKey = "news"
	ReportFundamentals ReportKey = "fundamentals"
)

// ReportKeys lists the report slots in display order.
var ReportKeys = []ReportKey{ReportMarket, ReportSentiment, ReportNews, ReportFundamentals}

var (
	ErrDebateClosed      = errors.New("debate already judged")
	ErrJudgePremature    = errors.New("judge decision before round limit")
	ErrUnexpectedSpeaker = errors.New("speaker out of turn")
)

// DebateEntry is one labelled contribution in the shared history.
type DebateEntry struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// DebateState is the history of one debate, shared by the research
// (bull, bear) and risk (risky, safe, neutral) instances.
type DebateState struct {
	Participants  []string            `json:"participants"`
	Histories     map[string][]string `json:"histories"`
	Combined      []DebateEntry       `json:"combined_history"`
	RoundCount    int                 `json:"round_count"`
	MaxRounds     int                 `json:"max_rounds"`
	JudgeDecision *string             `json:"judge_decision,omitempty"`
}

func NewDebateState(maxRounds int, participants ...string) *DebateState {
	histories := make(map[string][]string, len(participants))
	for _, p := range participants {
		histories[p] = nil
	}
	return &DebateState{
		Participants: append([]string(nil), participants...),
		Histories:    histories,
		MaxRounds:    maxRounds,
	}
}

// NextSpeaker returns the participant whose turn it is, or "" once every
// round has been spoken.
func (d *DebateState) NextSpeaker() string {
	if d.RoundCount >= d.MaxRounds || len(d.Participants) == 0 {
		return ""
	}
	return d.Participants[len(d.Combined)%len(d.Participants)]
}

// History joins one participant's entries.
func (d *DebateState) History(participant string) string {
	return strings.Join(d.Histories[participant], "\n")
}

// CombinedHistory joins every entry in speaking order.
func (d *DebateState) CombinedHistory() string {
	parts := make([]string, 0, len(d.Combined))
	for _, e := range d.Combined {
		parts = append(parts, e.Text)
	}
	return strings.Join(parts, "\n")
}

// LatestFrom returns the most recent entry of a participant.
func (d *DebateState) LatestFrom(participant string) string {
	h := d.Histories[participant]
	if len(h) == 0 {
		return ""
	}
	return h[len(h)-1]
}

// Judged reports whether the terminal step has run.
func (d *DebateState) Judged() bool {
	return d.JudgeDecision != nil
}

// Apply merges one debate update and enforces the turn invariants.
func (d *DebateState) Apply(u *DebateUpdate) error {
	if d.JudgeDecision != nil {
		return ErrDebateClosed
	}
	if u.JudgeDecision != nil {
		if d.RoundCount != d.MaxRounds {
			return fmt.Errorf("%w: round %d of %d", ErrJudgePremature, d.RoundCount, d.MaxRounds)
		}
		decision := *u.JudgeDecision
		d.JudgeDecision = &decision
		return nil
	}

	next := d.NextSpeaker()
	if next == "" || next != u.Speaker {
		return fmt.Errorf("%w: want %q, got %q", ErrUnexpectedSpeaker, next, u.Speaker)
	}
	d.Histories[u.Speaker] = append(d.Histories[u.Speaker], u.Entry)
	d.Combined = append(d.Combined, DebateEntry{Speaker: u.Speaker, Text: u.Entry})
	if len(d.Combined)%len(d.Participants) == 0 {
		d.RoundCount++
	}
	return nil
}

func (d *DebateState) clone() *DebateState {
	if d == nil {
		return nil
	}
	c := &DebateState{
		Participants: append([]string(nil), d.Participants...),
		Histories:    make(map[string][]string, len(d.Histories)),
		Combined:     append([]DebateEntry(nil), d.Combined...),
		RoundCount:   d.RoundCount,
		MaxRounds:    d.MaxRounds,
	}
	for k, v := range d.Histories {
		c.Histories[k] = append([]string(nil), v...)
	}
	if d.JudgeDecision != nil {
		v := *d.JudgeDecision
		c.JudgeDecision = &v
	}
	return c
}

// WorkflowState is the record threaded through one run. It is owned by a
// single sequencer goroutine and only changes through Apply.
type WorkflowState struct {
	Ticker           string               `json:"ticker"`
	TradeDate        time.Time            `json:"trade_date"`
	Reports          map[ReportKey]string `json:"reports"`
	InvestmentDebate *DebateState         `json:"investment_debate_state"`
	InvestmentPlan   *string              `json:"investment_plan,omitempty"`
	TraderPlan       *string              `json:"trader_investment_plan,omitempty"`
	RiskDebate       *DebateState         `json:"risk_debate_state"`
	FinalDecision    *string              `json:"final_trade_decision,omitempty"`
	Transcript       []ChatTurn           `json:"transcript"`
}

// NewWorkflowState builds the initial state. Round limits are fixed here so
// the debate invariants can be checked on every write.
func NewWorkflowState(ticker string, tradeDate time.Time, maxDebateRounds, maxRiskRounds int) *WorkflowState {
	return &WorkflowState{
		Ticker:           ticker,
		TradeDate:        tradeDate,
		Reports:          make(map[ReportKey]string),
		InvestmentDebate: NewDebateState(maxDebateRounds, consts.SpeakerBull, consts.SpeakerBear),
		RiskDebate:       NewDebateState(maxRiskRounds, consts.SpeakerRisky, consts.SpeakerSafe, consts.SpeakerNeutral),
	}
}

// Report returns a report and whether it is present.
func (s *WorkflowState) Report(key ReportKey) (string, bool) {
	r, ok := s.Reports[key]
	return r, ok
}

// Date formats the trade date the way prompts and file paths use it.
func (s *WorkflowState) Date() string {
	return s.TradeDate.Format("2006-01-02")
}

// Apply merges a delta. Field permissions are checked by the caller; Apply
// only guards the debate invariants.
func (s *WorkflowState) Apply(d Delta) error {
	for k, v := range d.Reports {
		s.Reports[k] = v
	}
	if d.InvestmentDebate != nil {
		if err := s.InvestmentDebate.Apply(d.InvestmentDebate); err != nil {
			return fmt.Errorf("investment debate: %w", err)
		}
	}
	if d.InvestmentPlan != nil {
		s.InvestmentPlan = Text(*d.InvestmentPlan)
	}
	if d.TraderPlan != nil {
		s.TraderPlan = Text(*d.TraderPlan)
	}
	if d.RiskDebate != nil {
		if err := s.RiskDebate.Apply(d.RiskDebate); err != nil {
			return fmt.Errorf("risk debate: %w", err)
		}
	}
	if d.FinalDecision != nil {
		s.FinalDecision = Text(*d.FinalDecision)
	}
	s.Transcript = append(s.Transcript, d.Transcript...)
	return nil
}

// Snapshot returns a deep copy safe to hand to concurrent readers.
func (s *WorkflowState) Snapshot() *WorkflowState {
	c := &WorkflowState{
		Ticker:           s.Ticker,
		TradeDate:        s.TradeDate,
		Reports:          make(map[ReportKey]string, len(s.Reports)),
		InvestmentDebate: s.InvestmentDebate.clone(),
		RiskDebate:       s.RiskDebate.clone(),
		Transcript:       append([]ChatTurn(nil), s.Transcript...),
	}
	for k, v := range s.Reports {
		c.Reports[k] = v
	}
	if s.InvestmentPlan != nil {
		c.InvestmentPlan = Text(*s.InvestmentPlan)
	}
	if s.TraderPlan != nil {
		c.TraderPlan = Text(*s.TraderPlan)
	}
	if s.FinalDecision != nil {
		c.FinalDecision = Text(*s.FinalDecision)
	}
	return c
}

// Situation concatenates the analyst reports; it is the memory lookup key.
func (s *WorkflowState) Situation() string {
	parts := make([]string, 0, len(ReportKeys))
	for _, k := range ReportKeys {
		if r, ok := s.Reports[k]; ok && r != "" {
			parts = append(parts, r)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Deref returns the text behind an optional field, "" when absent.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

// Text wraps a string as an optional field value.
func Text(s string) *string { return &s }
