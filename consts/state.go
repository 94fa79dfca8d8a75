package consts

const (
	// Analyst Team
	Agent_MarketAnalyst       = "Market Analyst"
	Agent_SocialAnalyst       = "Social Analyst"
	Agent_NewsAnalyst         = "News Analyst"
	Agent_FundamentalsAnalyst = "Fundamentals Analyst"
	// Research Team
	Agent_BullResearcher  = "Bull Researcher"
	Agent_BearResearcher  = "Bear Researcher"
	Agent_ResearchManager = "Research Manager"
	// Trading Team
	Agent_Trader = "Trader"
	// Risk Management Team
	Agent_RiskyAnalyst   = "Risky Analyst"
	Agent_NeutralAnalyst = "Neutral Analyst"
	Agent_SafeAnalyst    = "Safe Analyst"
	// Portfolio Management Team
	Agent_PortfolioManager = "Portfolio Manager"
)

// DisplayNames maps node names to the labels dashboards show.
var DisplayNames = map[string]string{
	MarketAnalyst:       Agent_MarketAnalyst,
	SocialMediaAnalyst:  Agent_SocialAnalyst,
	NewsAnalyst:         Agent_NewsAnalyst,
	FundamentalsAnalyst: Agent_FundamentalsAnalyst,
	BullResearcher:      Agent_BullResearcher,
	BearResearcher:      Agent_BearResearcher,
	ResearchManager:     Agent_ResearchManager,
	Trader:              Agent_Trader,
	RiskyAnalyst:        Agent_RiskyAnalyst,
	SafeAnalyst:         Agent_SafeAnalyst,
	NeutralAnalyst:      Agent_NeutralAnalyst,
	RiskJudge:           Agent_PortfolioManager,
}

const (
	State_Pending   = "pending"
	State_Running   = "running"
	State_Completed = "completed"
	State_Error     = "error"
)
