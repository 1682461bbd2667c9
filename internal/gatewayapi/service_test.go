package gatewayapi

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"forgeline/internal/artifact"
	"forgeline/internal/blueprint"
	"forgeline/internal/contextindex"
	"forgeline/internal/llm"
	"forgeline/internal/sandbox"
	"forgeline/internal/store"
)

type flatEmbedder struct{}

func (flatEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func greenRunSandbox() *sandbox.Fake {
	sb := sandbox.NewFake()
	sb.Script["npx tsc"] = sandbox.RunResult{Stdout: ""}
	sb.Script["npm run build"] = sandbox.RunResult{Stdout: "built in 1s"}
	sb.OnCommand = func(f *sandbox.Fake, cmd string) {
		if strings.HasPrefix(cmd, "npm run build") {
			f.WriteRaw("dist/index.html", []byte("<html></html>"))
		}
	}
	return sb
}

func newTestService(client llm.Client) *Service {
	st := store.New()
	return &Service{
		Client:     client,
		Store:      st,
		Index:      &contextindex.Index{Store: st, Embedder: flatEmbedder{}},
		Artifacts:  artifact.NewMemory(),
		Hub:        NewHub(),
		NewSandbox: func() (sandbox.Sandbox, error) { return greenRunSandbox(), nil },
		Workers:    2,
	}
}

func testBlueprint() *blueprint.Blueprint {
	return &blueprint.Blueprint{
		Name: "demo",
		Components: []blueprint.Component{
			{Path: "src/App.tsx", Purpose: "root composition"},
			{Path: "src/pages/Home.tsx", Purpose: "home page", DependsOn: []string{"src/App.tsx"}},
		},
	}
}

// waitTerminal drains a run's events until a terminal one arrives.
func waitTerminal(t *testing.T, hub *Hub, runID string) []Event {
	t.Helper()
	ch, ok := hub.Channel(runID)
	require.True(t, ok)
	deadline := time.After(10 * time.Second)
	var events []Event
	for {
		select {
		case evt := <-ch:
			events = append(events, evt)
			if evt.Type == "completed" || evt.Type == "failed" {
				return events
			}
		case <-deadline:
			t.Fatalf("no terminal event for run %s; got %v", runID, events)
		}
	}
}

func TestStartRunEndToEnd(t *testing.T) {
	client := llm.NewFakeClient().RespondWith(llm.FilesResponse{Files: []llm.File{
		{Path: "src/App.tsx", Content: "export default function App() { return null }"},
		{Path: "src/pages/Home.tsx", Content: "export default function Home() { return null }"},
	}})
	svc := newTestService(client)

	runID, err := svc.StartRun(context.Background(), "p1", testBlueprint())
	require.NoError(t, err)

	events := waitTerminal(t, svc.Hub, runID)
	last := events[len(events)-1]
	require.Equal(t, "completed", last.Type)
	require.NotZero(t, last.BuildID)

	var phases, taskEvents int
	for _, e := range events {
		switch e.Type {
		case "phase":
			phases++
		case "task":
			taskEvents++
		}
	}
	require.GreaterOrEqual(t, phases, 3) // generating, repairing, building
	require.GreaterOrEqual(t, taskEvents, 4)

	files, buildID, err := svc.Store.LatestFiles(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, last.BuildID, buildID)
	require.Contains(t, files, "src/App.tsx")
	require.Contains(t, files, "src/pages/Home.tsx")
}

func TestStartRunCyclicBlueprintRejected(t *testing.T) {
	svc := newTestService(llm.NewFakeClient())
	bp := &blueprint.Blueprint{
		Name: "demo",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a", DependsOn: []string{"b.tsx"}},
			{Path: "b.tsx", Purpose: "b", DependsOn: []string{"a.tsx"}},
		},
	}
	_, err := svc.StartRun(context.Background(), "p1", bp)
	var cyc *blueprint.CyclicDependencyError
	require.ErrorAs(t, err, &cyc)
	require.Zero(t, svc.Client.(*llm.FakeClient).Calls())
}

// A supplied plan with a dangling dependency is a caller error: the run
// must fail up front with zero generation calls, never degrade to the
// single-page fallback.
func TestStartRunDanglingDependencyRejected(t *testing.T) {
	svc := newTestService(llm.NewFakeClient())
	bp := &blueprint.Blueprint{
		Name: "demo",
		Components: []blueprint.Component{
			{Path: "a.tsx", Purpose: "a", DependsOn: []string{"missing.tsx"}},
		},
	}
	_, err := svc.StartRun(context.Background(), "p1", bp)
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing.tsx")
	require.Zero(t, svc.Client.(*llm.FakeClient).Calls())

	_, _, err = svc.Store.LatestFiles(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStartRunNilBlueprintUsesFallback(t *testing.T) {
	client := llm.NewFakeClient().RespondWith(llm.FilesResponse{Files: []llm.File{
		{Path: "src/App.tsx", Content: "export default function App() { return null }"},
	}})
	svc := newTestService(client)

	runID, err := svc.StartRun(context.Background(), "p1", nil)
	require.NoError(t, err)
	events := waitTerminal(t, svc.Hub, runID)
	require.Equal(t, "completed", events[len(events)-1].Type)
}

func TestChatAppliesActionsAndPromotes(t *testing.T) {
	seed := llm.NewFakeClient().RespondWith(llm.FilesResponse{Files: []llm.File{
		{Path: "src/App.tsx", Content: "export default function App() { return null }"},
	}})
	svc := newTestService(seed)

	runID, err := svc.StartRun(context.Background(), "p1", nil)
	require.NoError(t, err)
	waitTerminal(t, svc.Hub, runID)

	chat := llm.NewFakeClient().
		Respond(llm.ActionsResponse{Actions: []llm.Action{
			{Op: llm.ActionWrite, Path: "src/pages/About.tsx", Content: "export default function About() { return null }"},
		}}).
		Respond(llm.ActionsResponse{})
	svc.Client = chat

	res, err := svc.Chat(context.Background(), "p1", "add an about page")
	require.NoError(t, err)
	require.Equal(t, 1, res.Applied)
	require.NotZero(t, res.BuildID)

	files, _, err := svc.Store.LatestFiles(context.Background(), "p1")
	require.NoError(t, err)
	require.Contains(t, files, "src/pages/About.tsx")
	require.Contains(t, files, "src/App.tsx")

	msgs, err := svc.Store.Messages(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "assistant", msgs[1].Role)
}

func TestChatTextOnlyDoesNotBuild(t *testing.T) {
	svc := newTestService(llm.NewFakeClient().Respond(llm.TextResponse{Text: "the cart uses context state"}))

	res, err := svc.Chat(context.Background(), "p1", "how does the cart work?")
	require.NoError(t, err)
	require.Zero(t, res.Applied)
	require.Zero(t, res.BuildID)
	require.Equal(t, "the cart uses context state", res.Response)
}

// Concurrent chats on one project serialize: each step's user/assistant
// pair lands intact in the conversation, with no interleaved or lost
// appends to the shared state.
func TestChatConcurrentStepsSerialize(t *testing.T) {
	svc := newTestService(llm.NewFakeClient().RespondWith(llm.TextResponse{Text: "noted"}))

	const steps = 6
	var wg sync.WaitGroup
	errCh := make(chan error, steps)
	for i := 0; i < steps; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Chat(context.Background(), "p1", "question")
			errCh <- err
		}()
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	msgs, err := svc.Store.Messages(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, msgs, 2*steps)
	for i, m := range msgs {
		require.Equal(t, i+1, m.Seq)
		if i%2 == 0 {
			require.Equal(t, "user", m.Role)
		} else {
			require.Equal(t, "assistant", m.Role)
		}
	}
	require.Len(t, svc.convoState("p1").Messages, 2*steps)
}

func TestRunWSStreamsEvents(t *testing.T) {
	svc := newTestService(llm.NewFakeClient())
	ts := httptest.NewServer(NewMux(svc))
	defer ts.Close()

	svc.Hub.Allocate("run-x", 8)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/runs?run_id=run-x"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	svc.Hub.Publish("run-x", Event{Type: "phase", RunID: "run-x", Phase: "generating"})
	svc.Hub.Publish("run-x", Event{Type: "completed", RunID: "run-x", BuildID: 7})

	var first, second Event
	require.NoError(t, conn.ReadJSON(&first))
	require.Equal(t, "phase", first.Type)
	require.NoError(t, conn.ReadJSON(&second))
	require.Equal(t, "completed", second.Type)
	require.EqualValues(t, 7, second.BuildID)
}
