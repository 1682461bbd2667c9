package buildgate

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeline/internal/artifact"
	"forgeline/internal/sandbox"
	"forgeline/internal/staged"
	"forgeline/internal/store"
)

type recordingReindexer struct {
	calls []int64
	files map[string]string
}

func (r *recordingReindexer) Reindex(_ context.Context, _ string, buildID int64, files map[string]string) error {
	r.calls = append(r.calls, buildID)
	r.files = files
	return nil
}

func greenSandbox() *sandbox.Fake {
	sb := sandbox.NewFake()
	sb.OnCommand = func(f *sandbox.Fake, cmd string) {
		if strings.HasPrefix(cmd, "npm run build") {
			f.WriteRaw("dist/index.html", []byte("<html></html>"))
			f.WriteRaw("dist/assets/app.js", []byte("console.log(1)"))
		}
	}
	sb.Script["npm run build"] = sandbox.RunResult{Stdout: "vite v5 building...\nbuilt in 1.2s"}
	return sb
}

func TestPromoteIfGreenHappyPath(t *testing.T) {
	st := store.New()
	arts := artifact.NewMemory()
	ri := &recordingReindexer{}
	g := &Gate{Store: st, Sandbox: greenSandbox(), Artifacts: arts, Reindex: ri}

	files := staged.FromMap(map[string]string{
		"src/App.tsx":  "export default function App() { return null }",
		"src/main.tsx": "import App from './App'",
	})
	prom, err := g.PromoteIfGreen(context.Background(), "p1", files)
	require.NoError(t, err)
	require.Equal(t, store.BuildSuccess, prom.Build.Status)
	require.ElementsMatch(t, []string{"dist/index.html", "dist/assets/app.js"}, prom.Artifacts)
	require.NotEmpty(t, prom.PreviewURL)

	got, buildID, err := st.LatestFiles(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, prom.Build.ID, buildID)
	require.Equal(t, files.Snapshot(), got)

	data, err := arts.Get(context.Background(), "p1", prom.Build.ID, "dist/index.html")
	require.NoError(t, err)
	require.Equal(t, "<html></html>", string(data))

	require.Equal(t, []int64{prom.Build.ID}, ri.calls)
	require.Equal(t, files.Snapshot(), ri.files)
}

func TestErrorSubstringFailsGate(t *testing.T) {
	st := store.New()
	sb := greenSandbox()
	sb.Script["npm run build"] = sandbox.RunResult{Stdout: "src/App.tsx(3,1): error TS2304: Cannot find name 'x'."}
	g := &Gate{Store: st, Sandbox: sb, Artifacts: artifact.NewMemory()}

	_, err := g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(map[string]string{"src/App.tsx": "x"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "build log reports errors")

	_, _, err = st.LatestFiles(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// A build whose log looks clean but that produced no root output must be
// rejected: textual success alone is not proof.
func TestMissingRootArtifactFailsGate(t *testing.T) {
	st := store.New()
	sb := sandbox.NewFake()
	sb.Script["npm run build"] = sandbox.RunResult{Stdout: "built in 0.9s"}
	g := &Gate{Store: st, Sandbox: sb, Artifacts: artifact.NewMemory()}

	_, err := g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(map[string]string{"src/App.tsx": "x"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "no dist/index.html")
}

func TestNonZeroExitFailsGate(t *testing.T) {
	st := store.New()
	sb := greenSandbox()
	sb.Script["npm run build"] = sandbox.RunResult{Stdout: "killed", Exit: sandbox.ExitInfo{Code: 137}}
	g := &Gate{Store: st, Sandbox: sb, Artifacts: artifact.NewMemory()}

	_, err := g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(map[string]string{"src/App.tsx": "x"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "exited 137")
}

func TestTransferFailureLeavesBuildFailed(t *testing.T) {
	st := store.New()
	arts := artifact.NewMemory()
	arts.FailPut = true
	g := &Gate{Store: st, Sandbox: greenSandbox(), Artifacts: arts}

	_, err := g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(map[string]string{"src/App.tsx": "x"}))
	require.Error(t, err)
	require.Contains(t, err.Error(), "transfer outputs")

	_, _, err = st.LatestFiles(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

// A failed run must never corrupt the previously promoted version.
func TestFailedBuildLeavesPriorStateUntouched(t *testing.T) {
	st := store.New()
	arts := artifact.NewMemory()
	g := &Gate{Store: st, Sandbox: greenSandbox(), Artifacts: arts}

	v1 := map[string]string{"src/App.tsx": "version one"}
	prom, err := g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(v1))
	require.NoError(t, err)

	broken := greenSandbox()
	broken.Script["npm run build"] = sandbox.RunResult{Stdout: "Error: out of memory"}
	g.Sandbox = broken
	_, err = g.PromoteIfGreen(context.Background(), "p1", staged.FromMap(map[string]string{"src/App.tsx": "version two"}))
	require.Error(t, err)

	got, buildID, err := st.LatestFiles(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, prom.Build.ID, buildID)
	require.Equal(t, v1, got)
}

func TestCancelledRunDoesNotPromote(t *testing.T) {
	st := store.New()
	sb := greenSandbox()
	ctx, cancel := context.WithCancel(context.Background())
	sb.OnCommand = func(f *sandbox.Fake, cmd string) {
		if strings.HasPrefix(cmd, "npm run build") {
			f.WriteRaw("dist/index.html", []byte("<html></html>"))
			cancel() // cancellation arrives while the build is in flight
		}
	}
	g := &Gate{Store: st, Sandbox: sb, Artifacts: artifact.NewMemory()}

	_, err := g.PromoteIfGreen(ctx, "p1", staged.FromMap(map[string]string{"src/App.tsx": "x"}))
	require.Error(t, err)

	_, _, err = st.LatestFiles(context.Background(), "p1")
	require.ErrorIs(t, err, store.ErrNotFound)
}
