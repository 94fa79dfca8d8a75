package llm

import (
	"context"
	"errors"
	"io"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	ecmodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"
)

// LogCallback reports chat model activity to a structured logger.
type LogCallback struct {
	Log logrus.FieldLogger
}

var _ callbacks.Handler = (*LogCallback)(nil)

// WithRole attaches the logging callback to ctx so component calls made
// with it are reported under the given role name.
func WithRole(ctx context.Context, role string, log logrus.FieldLogger) context.Context {
	if log == nil {
		return ctx
	}
	info := &callbacks.RunInfo{Name: role, Type: "ChatModel", Component: components.ComponentOfChatModel}
	return callbacks.InitCallbacks(ctx, info, &LogCallback{Log: log})
}

func (cb *LogCallback) entry(info *callbacks.RunInfo) *logrus.Entry {
	e := cb.Log.WithField("component", "llm")
	if info != nil {
		e = e.WithFields(logrus.Fields{"role": info.Name, "type": info.Type})
	}
	return e
}

func (cb *LogCallback) OnStart(ctx context.Context, info *callbacks.RunInfo, input callbacks.CallbackInput) context.Context {
	if in := ecmodel.ConvCallbackInput(input); in != nil {
		cb.entry(info).WithFields(logrus.Fields{"messages": len(in.Messages), "tools": len(in.Tools)}).Debug("model call started")
	}
	return ctx
}

func (cb *LogCallback) OnEnd(ctx context.Context, info *callbacks.RunInfo, output callbacks.CallbackOutput) context.Context {
	out := ecmodel.ConvCallbackOutput(output)
	if out == nil || out.Message == nil {
		return ctx
	}
	fields := logrus.Fields{"tool_calls": len(out.Message.ToolCalls), "chars": len(out.Message.Content)}
	if out.TokenUsage != nil {
		fields["prompt_tokens"] = out.TokenUsage.PromptTokens
		fields["completion_tokens"] = out.TokenUsage.CompletionTokens
	}
	cb.entry(info).WithFields(fields).Debug("model call finished")
	return ctx
}

func (cb *LogCallback) OnError(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
	cb.entry(info).WithError(err).Warn("model call error")
	return ctx
}

func (cb *LogCallback) OnStartWithStreamInput(ctx context.Context, info *callbacks.RunInfo,
	input *schema.StreamReader[callbacks.CallbackInput]) context.Context {
	input.Close()
	return ctx
}

func (cb *LogCallback) OnEndWithStreamOutput(ctx context.Context, info *callbacks.RunInfo,
	output *schema.StreamReader[callbacks.CallbackOutput]) context.Context {
	go func() {
		defer output.Close()
		chars := 0
		for {
			frame, err := output.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				cb.entry(info).WithError(err).Warn("model stream error")
				return
			}
			if out := ecmodel.ConvCallbackOutput(frame); out != nil && out.Message != nil {
				chars += len(out.Message.Content)
			}
		}
		cb.entry(info).WithField("chars", chars).Debug("model stream finished")
	}()
	return ctx
}
