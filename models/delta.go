package models

import (
	"sort"
	"strings"
)

// Field names a writable part of WorkflowState.
type Field string

const (
	FieldMarketReport       Field = "market_report"
	FieldSentimentReport    Field = "sentiment_report"
	FieldNewsReport         Field = "news_report"
	FieldFundamentalsReport Field = "fundamentals_report"
	FieldInvestmentDebate   Field = "investment_debate_state"
	FieldInvestmentPlan     Field = "investment_plan"
	FieldTraderPlan         Field = "trader_investment_plan"
	FieldRiskDebate         Field = "risk_debate_state"
	FieldFinalDecision      Field = "final_trade_decision"
	FieldTranscript         Field = "transcript"
)

var reportFields = map[ReportKey]Field{
	ReportMarket:       FieldMarketReport,
	ReportSentiment:    FieldSentimentReport,
	ReportNews:         FieldNewsReport,
	ReportFundamentals: FieldFundamentalsReport,
}

// ReportField maps a report slot to its field name.
func ReportField(key ReportKey) Field {
	return reportFields[key]
}

// FieldSet is the set of fields a node may write.
type FieldSet map[Field]struct{}

func NewFieldSet(fields ...Field) FieldSet {
	fs := make(FieldSet, len(fields))
	for _, f := range fields {
		fs[f] = struct{}{}
	}
	return fs
}

func (fs FieldSet) Has(f Field) bool {
	_, ok := fs[f]
	return ok
}

// Outside returns the fields of d that are not in fs.
func (fs FieldSet) Outside(d Delta) []Field {
	var out []Field
	for _, f := range d.Fields() {
		if !fs.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

func (fs FieldSet) String() string {
	names := make([]string, 0, len(fs))
	for f := range fs {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

// DebateUpdate is a single debate write: either one speaker entry or the
// judge decision.
type DebateUpdate struct {
	Speaker       string  `json:"speaker,omitempty"`
	Entry         string  `json:"entry,omitempty"`
	JudgeDecision *string `json:"judge_decision,omitempty"`
}

// Delta holds exactly the fields one node wrote. It is both the unit of
// state mutation and the payload of a stream chunk.
type Delta struct {
	Reports          map[ReportKey]string `json:"reports,omitempty"`
	InvestmentDebate *DebateUpdate        `json:"investment_debate_state,omitempty"`
	InvestmentPlan   *string              `json:"investment_plan,omitempty"`
	TraderPlan       *string              `json:"trader_investment_plan,omitempty"`
	RiskDebate       *DebateUpdate        `json:"risk_debate_state,omitempty"`
	FinalDecision    *string              `json:"final_trade_decision,omitempty"`
	Transcript       []ChatTurn           `json:"transcript,omitempty"`
}

// Fields lists the fields this delta writes, in a stable order.
func (d Delta) Fields() []Field {
	var fields []Field
	for _, k := range ReportKeys {
		if _, ok := d.Reports[k]; ok {
			fields = append(fields, reportFields[k])
		}
	}
	if d.InvestmentDebate != nil {
		fields = append(fields, FieldInvestmentDebate)
	}
	if d.InvestmentPlan != nil {
		fields = append(fields, FieldInvestmentPlan)
	}
	if d.TraderPlan != nil {
		fields = append(fields, FieldTraderPlan)
	}
	if d.RiskDebate != nil {
		fields = append(fields, FieldRiskDebate)
	}
	if d.FinalDecision != nil {
		fields = append(fields, FieldFinalDecision)
	}
	if len(d.Transcript) > 0 {
		fields = append(fields, FieldTranscript)
	}
	return fields
}

// Empty reports whether the delta writes nothing.
func (d Delta) Empty() bool {
	return len(d.Fields()) == 0
}
