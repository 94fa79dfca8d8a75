package models

import (
	"time"

	"github.com/cloudwego/eino/schema"
)

// ToolCall records one tool invocation made inside an analyst loop.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
	Result    string `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the tool returned an error.
func (t *ToolCall) Failed() bool {
	return t.Error != ""
}

// ChatTurn is one message of the run transcript together with the agent
// that produced it.
type ChatTurn struct {
	Agent     string          `json:"agent"`
	Message   *schema.Message `json:"message"`
	ToolCall  *ToolCall       `json:"tool_call,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

func NewChatTurn(agent string, msg *schema.Message) ChatTurn {
	return ChatTurn{Agent: agent, Message: msg, Timestamp: time.Now()}
}

// TurnsBy returns the transcript turns produced by one agent.
func TurnsBy(transcript []ChatTurn, agent string) []ChatTurn {
	var out []ChatTurn
	for _, t := range transcript {
		if t.Agent == agent {
			out = append(out, t)
		}
	}
	return out
}

// ToolResp and ChatResp are the wire shapes stream consumers receive.
type ToolResp struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
	Args string `json:"args,omitempty"`
}

type ChatResp struct {
	RunID        string     `json:"run_id,omitempty"`
	Seq          int        `json:"seq"`
	Agent        string     `json:"agent,omitempty"`
	Phase        string     `json:"phase,omitempty"`
	Role         string     `json:"role,omitempty"`
	Content      string     `json:"content,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	ToolCallID   string     `json:"tool_call_id,omitempty"`
	ToolCalls    []ToolResp `json:"tool_calls,omitempty"`
	Fields       []Field    `json:"fields,omitempty"`
}

// ChatRespFromTurn flattens a transcript turn for consumers.
func ChatRespFromTurn(t ChatTurn) *ChatResp {
	if t.Message == nil {
		return &ChatResp{Agent: t.Agent}
	}
	resp := &ChatResp{
		Agent:      t.Agent,
		Role:       string(t.Message.Role),
		Content:    t.Message.Content,
		ToolCallID: t.Message.ToolCallID,
	}
	if t.Message.ResponseMeta != nil {
		resp.FinishReason = t.Message.ResponseMeta.FinishReason
	}
	for _, tc := range t.Message.ToolCalls {
		resp.ToolCalls = append(resp.ToolCalls, ToolResp{
			ID:   tc.ID,
			Name: tc.Function.Name,
			Args: tc.Function.Arguments,
		})
	}
	return resp
}
