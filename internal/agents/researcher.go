package agents

import (
	"github.com/cloudwego/eino/components/model"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/internal/memory"
	"github.com/dyike/tradeflow/models"
)

// NewBullResearcher argues for investing, answering the bear.
func NewBullResearcher(m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	return newResearcher(consts.BullResearcher, "Bull Analyst", "researchers/bull_researcher", consts.SpeakerBear, m, store, log)
}

// NewBearResearcher argues against investing, answering the bull.
func NewBearResearcher(m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	return newResearcher(consts.BearResearcher, "Bear Analyst", "researchers/bear_researcher", consts.SpeakerBull, m, store, log)
}

func newResearcher(name, label, promptPath, opponent string, m model.ToolCallingChatModel, store memory.Store, log logrus.FieldLogger) (Role, error) {
	tpl, err := userTemplate(promptPath)
	if err != nil {
		return nil, err
	}
	vars := func(s *models.WorkflowState) map[string]any {
		v := reportVars(s)
		v["history"] = s.InvestmentDebate.CombinedHistory()
		v["current_response"] = s.InvestmentDebate.LatestFrom(opponent)
		return v
	}
	return newChatRole(name, label, m, tpl, vars, store, log), nil
}
