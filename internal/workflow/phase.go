package workflow

import (
	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/models"
)

// Phase is a stage of the sequencer. Phases only move forward.
type Phase string

const (
	PhaseAnalysts       Phase = "analysts"
	PhaseResearchDebate Phase = "research_debate"
	PhaseTrader         Phase = "trader"
	PhaseRiskDebate     Phase = "risk_debate"
	PhasePortfolioJudge Phase = "portfolio_judge"
	PhaseDone           Phase = "done"
)

// nodeFields is the write permission of every node.
var nodeFields = map[string]models.FieldSet{
	consts.MarketAnalyst:       models.NewFieldSet(models.FieldMarketReport, models.FieldTranscript),
	consts.SocialMediaAnalyst:  models.NewFieldSet(models.FieldSentimentReport, models.FieldTranscript),
	consts.NewsAnalyst:         models.NewFieldSet(models.FieldNewsReport, models.FieldTranscript),
	consts.FundamentalsAnalyst: models.NewFieldSet(models.FieldFundamentalsReport, models.FieldTranscript),
	consts.BullResearcher:      models.NewFieldSet(models.FieldInvestmentDebate, models.FieldTranscript),
	consts.BearResearcher:      models.NewFieldSet(models.FieldInvestmentDebate, models.FieldTranscript),
	consts.ResearchManager:     models.NewFieldSet(models.FieldInvestmentDebate, models.FieldInvestmentPlan, models.FieldTranscript),
	consts.Trader:              models.NewFieldSet(models.FieldTraderPlan, models.FieldTranscript),
	consts.RiskyAnalyst:        models.NewFieldSet(models.FieldRiskDebate, models.FieldTranscript),
	consts.SafeAnalyst:         models.NewFieldSet(models.FieldRiskDebate, models.FieldTranscript),
	consts.NeutralAnalyst:      models.NewFieldSet(models.FieldRiskDebate, models.FieldTranscript),
	consts.RiskJudge:           models.NewFieldSet(models.FieldRiskDebate, models.FieldFinalDecision, models.FieldTranscript),
}

// AllowedFields returns the fields node may write; unknown nodes may write
// nothing.
func AllowedFields(node string) models.FieldSet {
	if fs, ok := nodeFields[node]; ok {
		return fs
	}
	return models.NewFieldSet()
}
