package agents

import (
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/models"
)

// NewTrader turns the investment plan into a concrete proposal.
func NewTrader(m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	tpl, err := userTemplate("trader/trader")
	if err != nil {
		return nil, err
	}
	vars := func(s *models.WorkflowState) map[string]any {
		v := reportVars(s)
		v["investment_plan"] = models.Deref(s.InvestmentPlan)
		return v
	}
	return newChatRole(consts.Trader, consts.Agent_Trader, m, tpl, vars, store, log), nil
}
