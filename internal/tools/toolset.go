package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/components/tool"
	t_utils "github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"
)

var ErrUnknownTool = errors.New("unknown tool")

// Toolset is the fixed list of tools one analyst may call.
type Toolset struct {
	infos []*schema.ToolInfo
	tools map[string]tool.InvokableTool
}

func NewToolset(ctx context.Context, tools ...tool.InvokableTool) (*Toolset, error) {
	ts := &Toolset{tools: make(map[string]tool.InvokableTool, len(tools))}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := ts.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %s", info.Name)
		}
		ts.infos = append(ts.infos, info)
		ts.tools[info.Name] = t
	}
	return ts, nil
}

// Infos is what gets bound on the chat model.
func (ts *Toolset) Infos() []*schema.ToolInfo {
	if ts == nil {
		return nil
	}
	return ts.infos
}

func (ts *Toolset) Len() int {
	if ts == nil {
		return 0
	}
	return len(ts.infos)
}

// Execute runs one named tool with JSON arguments.
func (ts *Toolset) Execute(ctx context.Context, name, args string) (string, error) {
	if ts == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	t, ok := ts.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == "" {
		args = "{}"
	}
	return t.InvokableRun(ctx, args)
}

// textOutput hands string results to the model without JSON quoting.
var textOutput = t_utils.WithMarshalOutput(func(ctx context.Context, output any) (string, error) {
	if s, ok := output.(string); ok {
		return s, nil
	}
	return fmt.Sprint(output), nil
})

func newTextTool[T any](info *schema.ToolInfo, fn func(ctx context.Context, in T) (string, error)) tool.InvokableTool {
	return t_utils.NewTool[T, string](info, fn, textOutput)
}

func param(desc string, typ schema.DataType, required bool) *schema.ParameterInfo {
	return &schema.ParameterInfo{Type: typ, Desc: desc, Required: required}
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return t, nil
}

// window returns [curr-lookBack, curr]; lookBack defaults to def.
func window(curr string, lookBack, def int) (time.Time, time.Time, error) {
	end, err := parseDate(curr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if lookBack <= 0 {
		lookBack = def
	}
	return end.AddDate(0, 0, -lookBack), end, nil
}
