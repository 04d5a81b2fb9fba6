package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// NewThrottled makes every call wait for a token from limiter, so analysis
// jobs and chat sessions share one inference budget.
func NewThrottled(base Client, limiter *rate.Limiter) Client {
	return &throttledClient{base: base, limiter: limiter}
}

type throttledClient struct {
	base    Client
	limiter *rate.Limiter
}

func (t *throttledClient) Complete(ctx context.Context, msgs []Message, opts Options) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.base.Complete(ctx, msgs, opts)
}

func (t *throttledClient) Stream(ctx context.Context, msgs []Message, opts Options) (Stream, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.base.Stream(ctx, msgs, opts)
}

func (t *throttledClient) Provider() string { return describe(t.base).provider }

func (t *throttledClient) Model() string { return describe(t.base).model }
