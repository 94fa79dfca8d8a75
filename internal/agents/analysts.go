package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/consts"
	"github.com/dyike/tradeflow/models"
)

const analystSystemTpl = `You are a helpful AI assistant, collaborating with other assistants.
Use the provided tools to progress towards answering the question.
If you are unable to fully answer, that's OK; another assistant with different tools
will help where you left off. Execute what you can to make progress.
If you or any other assistant has the FINAL TRANSACTION PROPOSAL: **BUY/HOLD/SELL** or deliverable,
prefix your response with FINAL TRANSACTION PROPOSAL: **BUY/HOLD/SELL** so the team knows to stop.

You have access to the following tools: {tool_names}.

{system_message}

For your reference, the current date is {trade_date}. The company we want to look at is {ticker}`

// Analyst is a tool-calling role that writes one report.
type Analyst struct {
	*chatRole
	Key    string
	Report models.ReportKey
}

var analystReports = map[string]models.ReportKey{
	consts.AnalystMarket:       models.ReportMarket,
	consts.AnalystSocial:       models.ReportSentiment,
	consts.AnalystNews:         models.ReportNews,
	consts.AnalystFundamentals: models.ReportFundamentals,
}

// ReportFor returns the report slot an analyst key writes.
func ReportFor(key string) (models.ReportKey, bool) {
	r, ok := analystReports[key]
	return r, ok
}

// NewAnalyst binds tools on m and returns the analyst for key.
func NewAnalyst(ctx context.Context, key string, m model.ToolCallingChatModel, tools []*schema.ToolInfo, log logrus.FieldLogger) (*Analyst, error) {
	report, ok := analystReports[key]
	if !ok {
		return nil, fmt.Errorf("unknown analyst %q", key)
	}
	node := consts.AnalystNodes[key]

	systemMessage, err := LoadPrompt("analysts/" + key)
	if err != nil {
		return nil, err
	}
	if len(tools) > 0 {
		m, err = m.WithTools(tools)
		if err != nil {
			return nil, fmt.Errorf("%s: bind tools: %w", node, err)
		}
	}

	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	toolNames := strings.Join(names, ", ")

	tpl := prompt.FromMessages(schema.FString,
		schema.SystemMessage(analystSystemTpl),
		schema.UserMessage("Write the {report_name} report for {ticker} as of {trade_date}."),
		schema.MessagesPlaceholder("transcript", true),
	)
	vars := func(s *models.WorkflowState) map[string]any {
		return map[string]any{
			"tool_names":     toolNames,
			"system_message": systemMessage,
			"report_name":    string(report),
			"ticker":         s.Ticker,
			"trade_date":     s.Date(),
		}
	}

	return &Analyst{
		chatRole: newChatRole(node, consts.DisplayNames[node], m, tpl, vars, nil, log),
		Key:      key,
		Report:   report,
	}, nil
}
