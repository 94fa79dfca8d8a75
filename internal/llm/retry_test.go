package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

type flakyModel struct {
	failures int
	calls    int
	err      error
	tools    []*schema.ToolInfo
}

func (f *flakyModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return schema.AssistantMessage("ok", nil), nil
}

func (f *flakyModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (f *flakyModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	f.tools = tools
	return f, nil
}

func TestRetryRecoversTransientFailures(t *testing.T) {
	inner := &flakyModel{failures: 2, err: errors.New("502 bad gateway")}
	m := WithRetry(inner, RetryPolicy{MaxRetries: 3, BaseDelay: time.Millisecond}, nil)

	msg, err := m.Generate(context.Background(), []*schema.Message{schema.UserMessage("hi")})
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if msg.Content != "ok" || inner.calls != 3 {
		t.Fatalf("unexpected result %q after %d calls", msg.Content, inner.calls)
	}
}

func TestRetryGivesUp(t *testing.T) {
	inner := &flakyModel{failures: 10, err: errors.New("rate limited")}
	m := WithRetry(inner, RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond}, nil)

	if _, err := m.Generate(context.Background(), nil); err == nil {
		t.Fatalf("expected error after exhausting retries")
	}
	if inner.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", inner.calls)
	}
}

func TestRetrySkipsContextErrors(t *testing.T) {
	inner := &flakyModel{failures: 10, err: context.Canceled}
	m := WithRetry(inner, RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond}, nil)

	_, err := m.Generate(context.Background(), nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("context errors must not be retried, got %d calls", inner.calls)
	}
}

func TestRetryKeepsWrappingAfterWithTools(t *testing.T) {
	inner := &flakyModel{failures: 1, err: errors.New("timeout")}
	m := WithRetry(inner, RetryPolicy{MaxRetries: 1, BaseDelay: time.Millisecond}, nil)

	bound, err := m.WithTools([]*schema.ToolInfo{{Name: "get_news"}})
	if err != nil {
		t.Fatalf("WithTools: %v", err)
	}
	if len(inner.tools) != 1 {
		t.Fatalf("tools not forwarded")
	}
	if _, err := bound.Generate(context.Background(), nil); err != nil {
		t.Fatalf("bound model should retry: %v", err)
	}
}
