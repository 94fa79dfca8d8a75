package workflow

import (
	"context"

	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/internal/agents"
	"github.com/dyike/tradeflow/internal/logging"
	"github.com/dyike/tradeflow/models"
)

// ToolExecutor runs one named tool. *tools.Toolset implements it.
type ToolExecutor interface {
	Execute(ctx context.Context, name, args string) (string, error)
}

type loopState int

const (
	stateReasoning loopState = iota
	stateAwaitingTool
	stateToolExecuted
	stateFinalizing
)

// ToolLoop alternates between a model call and tool execution until the
// role answers without tool calls.
type ToolLoop struct {
	Role          agents.Role
	Tools         ToolExecutor
	MaxIterations int
	Log           logrus.FieldLogger
}

// Run returns the final report and every turn of the loop. state is a
// snapshot and is never written.
func (l *ToolLoop) Run(ctx context.Context, state *models.WorkflowState) (string, []models.ChatTurn, error) {
	log := logging.OrDiscard(l.Log).WithField("node", l.Role.Name())

	var (
		transcript []*schema.Message
		turns      []models.ChatTurn
		resp       *schema.Message
		steps      int
		st         = stateReasoning
	)
	for {
		switch st {
		case stateReasoning:
			if steps >= l.MaxIterations {
				return "", turns, &ToolLoopExhaustedError{Role: l.Role.Name(), Iterations: steps}
			}
			steps++
			var err error
			resp, err = l.Role.Produce(ctx, state, transcript)
			if err != nil {
				return "", turns, err
			}
			turns = append(turns, models.NewChatTurn(l.Role.Name(), resp))
			if len(resp.ToolCalls) == 0 {
				st = stateFinalizing
			} else {
				st = stateAwaitingTool
			}

		case stateAwaitingTool:
			transcript = append(transcript, resp)
			for _, call := range resp.ToolCalls {
				tc := &models.ToolCall{ID: call.ID, Name: call.Function.Name, Arguments: call.Function.Arguments}
				result, err := l.Tools.Execute(ctx, call.Function.Name, call.Function.Arguments)
				if err != nil {
					log.WithError(err).WithField("tool", tc.Name).Warn("tool call failed")
					tc.Error = err.Error()
					result = "Error: " + err.Error()
				} else {
					tc.Result = result
				}
				msg := schema.ToolMessage(result, call.ID)
				transcript = append(transcript, msg)

				turn := models.NewChatTurn(l.Role.Name(), msg)
				turn.ToolCall = tc
				turns = append(turns, turn)
			}
			st = stateToolExecuted

		case stateToolExecuted:
			log.WithField("step", steps).Debug("tools executed")
			st = stateReasoning

		case stateFinalizing:
			return resp.Content, turns, nil
		}
	}
}
