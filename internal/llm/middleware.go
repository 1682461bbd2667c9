package llm

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"forgeline/internal/llmclient"
	"forgeline/internal/retryx"
)

// Middleware decorates a provider client. Applied right-to-left by Chain,
// so the first middleware is the outermost layer.
type Middleware func(llmclient.LLMClient) llmclient.LLMClient

func Chain(base llmclient.LLMClient, mws ...Middleware) llmclient.LLMClient {
	c := base
	for i := len(mws) - 1; i >= 0; i-- {
		c = mws[i](c)
	}
	return c
}

// Retry retries GenerateJSON through the shared retryx helper. Abnormal
// stops and permanent errors are not retried here; the caller decides how
// to soften and reissue those.
func Retry(maxAttempts int, baseDelay time.Duration) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &retrying{next: next, policy: retryx.Policy{
			MaxAttempts: maxAttempts,
			BaseDelay:   baseDelay,
			Retryable: func(err error) bool {
				return !llmclient.IsAbnormalStop(err)
			},
		}}
	}
}

type retrying struct {
	next   llmclient.LLMClient
	policy retryx.Policy
}

func (r *retrying) Name() string { return r.next.Name() }
func (r *retrying) Close() error { return r.next.Close() }

func (r *retrying) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	var out json.RawMessage
	err := retryx.Do(ctx, r.policy, func(ctx context.Context) error {
		var err error
		out, err = r.next.GenerateJSON(ctx, prompt, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Logged logs each call's latency and outcome.
func Logged() Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &logged{next: next}
	}
}

type logged struct {
	next llmclient.LLMClient
}

func (l *logged) Name() string { return l.next.Name() }
func (l *logged) Close() error { return l.next.Close() }

func (l *logged) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	start := time.Now()
	out, err := l.next.GenerateJSON(ctx, prompt, input)
	if err != nil {
		log.Printf("llm %s: call failed after %s: %v", l.next.Name(), time.Since(start).Round(time.Millisecond), err)
		return nil, err
	}
	log.Printf("llm %s: %d bytes in %s", l.next.Name(), len(out), time.Since(start).Round(time.Millisecond))
	return out, nil
}

// Deadline caps every call at d so a stuck provider cannot hang a run.
func Deadline(d time.Duration) Middleware {
	return func(next llmclient.LLMClient) llmclient.LLMClient {
		return &deadlined{next: next, d: d}
	}
}

type deadlined struct {
	next llmclient.LLMClient
	d    time.Duration
}

func (d *deadlined) Name() string { return d.next.Name() }
func (d *deadlined) Close() error { return d.next.Close() }

func (d *deadlined) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	if d.d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.d)
		defer cancel()
	}
	return d.next.GenerateJSON(ctx, prompt, input)
}
