package agents

import (
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/models"
)

// NewResearchManager judges the bull/bear debate and writes the
// investment plan.
func NewResearchManager(m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	tpl, err := userTemplate("managers/research_manager")
	if err != nil {
		return nil, err
	}
	vars := func(s *models.WorkflowState) map[string]any {
		v := reportVars(s)
		v["history"] = s.InvestmentDebate.CombinedHistory()
		return v
	}
	return newChatRole(consts.ResearchManager, consts.Agent_ResearchManager, m, tpl, vars, store, log), nil
}

// NewRiskJudge is the portfolio manager: it judges the risk debate and
// writes the final trade decision.
func NewRiskJudge(m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	tpl, err := userTemplate("managers/risk_manager")
	if err != nil {
		return nil, err
	}
	vars := func(s *models.WorkflowState) map[string]any {
		v := reportVars(s)
		v["trader_plan"] = models.Deref(s.TraderPlan)
		v["history"] = s.RiskDebate.CombinedHistory()
		return v
	}
	return newChatRole(consts.RiskJudge, consts.Agent_PortfolioManager, m, tpl, vars, store, log), nil
}
