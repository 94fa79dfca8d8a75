package consts

const (
	// 分析师节点
	MarketAnalyst       = "market_analyst"
	SocialMediaAnalyst  = "social_media_analyst"
	NewsAnalyst         = "news_analyst"
	FundamentalsAnalyst = "fundamentals_analyst"

	// 研究员节点
	BullResearcher  = "bull_researcher"
	BearResearcher  = "bear_researcher"
	ResearchManager = "research_manager"

	// 交易员节点
	Trader = "trader"

	// 风险分析节点
	RiskyAnalyst   = "risky_analyst"
	SafeAnalyst    = "safe_analyst"
	NeutralAnalyst = "neutral_analyst"
	RiskJudge      = "risk_judge"
)

// Analyst selection keys as accepted in configuration.
const (
	AnalystMarket       = "market"
	AnalystSocial       = "social"
	AnalystNews         = "news"
	AnalystFundamentals = "fundamentals"
)

// AllAnalysts lists the analyst keys in their canonical order.
var AllAnalysts = []string{AnalystMarket, AnalystSocial, AnalystNews, AnalystFundamentals}

// AnalystNodes maps an analyst key to its node name.
var AnalystNodes = map[string]string{
	AnalystMarket:       MarketAnalyst,
	AnalystSocial:       SocialMediaAnalyst,
	AnalystNews:         NewsAnalyst,
	AnalystFundamentals: FundamentalsAnalyst,
}

// Debate participant keys.
const (
	SpeakerBull    = "bull"
	SpeakerBear    = "bear"
	SpeakerRisky   = "risky"
	SpeakerSafe    = "safe"
	SpeakerNeutral = "neutral"
)

// Memory partitions, one per reflecting role.
const (
	MemoryBull        = "bull_memory"
	MemoryBear        = "bear_memory"
	MemoryTrader      = "trader_memory"
	MemoryInvestJudge = "invest_judge_memory"
	MemoryRiskManager = "risk_manager_memory"
)
