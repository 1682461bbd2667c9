package llm

import (
	"context"
	"sync"
)

// FakeClient returns scripted responses for offline use and tests.
// Responses are consumed in order; when the script runs out, Script's
// Default (or an empty ActionsResponse) is returned. Every request is
// recorded for assertions.
type FakeClient struct {
	mu       sync.Mutex
	script   []fakeStep
	def      Response
	requests []Request
}

type fakeStep struct {
	resp Response
	err  error
}

func NewFakeClient() *FakeClient {
	return &FakeClient{}
}

// Respond appends a scripted successful response.
func (f *FakeClient) Respond(resp Response) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{resp: resp})
	return f
}

// Fail appends a scripted error.
func (f *FakeClient) Fail(err error) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.script = append(f.script, fakeStep{err: err})
	return f
}

// RespondWith sets the response used once the script is exhausted.
func (f *FakeClient) RespondWith(resp Response) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.def = resp
	return f
}

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) Generate(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if len(f.script) > 0 {
		step := f.script[0]
		f.script = f.script[1:]
		if step.err != nil {
			return nil, step.err
		}
		return step.resp, nil
	}
	if f.def != nil {
		return f.def, nil
	}
	return ActionsResponse{}, nil
}

// Calls returns how many Generate calls were made.
func (f *FakeClient) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Requests returns a copy of the recorded requests.
func (f *FakeClient) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}
