package llm

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/dyike/tradeflow/internal/logging"
)

// RetryPolicy bounds how often a failed model call is repeated.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (p RetryPolicy) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.BaseDelay > 0 {
		eb.InitialInterval = p.BaseDelay
	}
	eb.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0)))
	return backoff.WithContext(b, ctx)
}

type retryingModel struct {
	inner  model.ToolCallingChatModel
	policy RetryPolicy
	log    logrus.FieldLogger
}

// WithRetry wraps m so transient failures are retried with exponential
// backoff. Context errors are never retried.
func WithRetry(m model.ToolCallingChatModel, policy RetryPolicy, log logrus.FieldLogger) model.ToolCallingChatModel {
	if m == nil {
		return nil
	}
	return &retryingModel{inner: m, policy: policy, log: logging.OrDiscard(log)}
}

func (r *retryingModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	var out *schema.Message
	err := r.do(ctx, func() error {
		msg, err := r.inner.Generate(ctx, input, opts...)
		if err != nil {
			return err
		}
		out = msg
		return nil
	})
	return out, err
}

func (r *retryingModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	var out *schema.StreamReader[*schema.Message]
	err := r.do(ctx, func() error {
		sr, err := r.inner.Stream(ctx, input, opts...)
		if err != nil {
			return err
		}
		out = sr
		return nil
	})
	return out, err
}

func (r *retryingModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	bound, err := r.inner.WithTools(tools)
	if err != nil {
		return nil, err
	}
	return &retryingModel{inner: bound, policy: r.policy, log: r.log}, nil
}

func (r *retryingModel) do(ctx context.Context, call func() error) error {
	op := func() error {
		err := call()
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		r.log.WithError(err).WithField("wait", wait).Warn("model call failed, retrying")
	}
	return backoff.RetryNotify(op, r.policy.backoff(ctx), notify)
}
