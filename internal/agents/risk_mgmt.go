package agents

import (
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/models"
)

func NewRiskyAnalyst(m model.ToolCallingChatModel, log logrus.FieldLogger) (Role, error) {
	return newRiskDebater(consts.RiskyAnalyst, consts.Agent_RiskyAnalyst, "risk_mgmt/risky_analyst", m, log)
}

func NewSafeAnalyst(m model.ToolCallingChatModel, log logrus.FieldLogger) (Role, error) {
	return newRiskDebater(consts.SafeAnalyst, consts.Agent_SafeAnalyst, "risk_mgmt/safe_analyst", m, log)
}

func NewNeutralAnalyst(m model.ToolCallingChatModel, log logrus.FieldLogger) (Role, error) {
	return newRiskDebater(consts.NeutralAnalyst, consts.Agent_NeutralAnalyst, "risk_mgmt/neutral_analyst", m, log)
}

// Risk debaters see the trader plan and the latest argument of every
// debater, their own included.
func newRiskDebater(name, label, promptPath string, m model.ToolCallingChatModel, log logrus.FieldLogger) (Role, error) {
	tpl, err := userTemplate(promptPath)
	if err != nil {
		return nil, err
	}
	vars := func(s *models.WorkflowState) map[string]any {
		v := reportVars(s)
		d := s.RiskDebate
		v["trader_plan"] = models.Deref(s.TraderPlan)
		v["history"] = d.CombinedHistory()
		v["current_risky_response"] = d.LatestFrom(consts.SpeakerRisky)
		v["current_safe_response"] = d.LatestFrom(consts.SpeakerSafe)
		v["current_neutral_response"] = d.LatestFrom(consts.SpeakerNeutral)
		return v
	}
	return newChatRole(name, label, m, tpl, vars, nil, log), nil
}
