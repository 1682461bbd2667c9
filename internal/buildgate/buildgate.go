// Package buildgate runs the production build and promotes its outputs.
//
// Rules:
//   - A pending BuildRecord exists before anything touches the sandbox, so
//     a crash mid-build leaves an inspectable row, never a missing one.
//   - A textual "error"/"Error" in the build log fails the gate, but a
//     clean log alone is not proof: the expected root output file must
//     also exist after the command returns.
//   - Every produced output is transferred to the artifact store before
//     the record flips to success; any failure leaves the previously
//     promoted file set and preview untouched.
package buildgate

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"forgeline/internal/artifact"
	"forgeline/internal/sandbox"
	"forgeline/internal/staged"
	"forgeline/internal/store"
)

const (
	defaultBuildCmd     = "npm run build"
	defaultOutputDir    = "dist"
	defaultRootArtifact = "dist/index.html"
	defaultBuildTimeout = 5 * time.Minute
)

// Reindexer re-embeds a promoted file set. The context index implements
// it; the gate only triggers it after a successful promotion.
type Reindexer interface {
	Reindex(ctx context.Context, projectID string, buildID int64, files map[string]string) error
}

// Promotion reports a successful pass through the gate.
type Promotion struct {
	Build      store.BuildRecord
	Artifacts  []string
	PreviewURL string
}

// Gate drives the build-then-promote sequence for one project.
type Gate struct {
	Store     *store.Store
	Sandbox   sandbox.Sandbox
	Artifacts artifact.Store
	// Reindex is optional; when nil promotion skips re-embedding.
	Reindex Reindexer

	// BuildCmd, OutputDir and RootArtifact default to the npm/vite
	// layout when empty.
	BuildCmd     string
	OutputDir    string
	RootArtifact string
	// Timeout bounds the build command so a stuck compiler cannot hang
	// the request.
	Timeout time.Duration
}

func (g *Gate) buildCmd() string {
	if g.BuildCmd != "" {
		return g.BuildCmd
	}
	return defaultBuildCmd
}

func (g *Gate) outputDir() string {
	if g.OutputDir != "" {
		return g.OutputDir
	}
	return defaultOutputDir
}

func (g *Gate) rootArtifact() string {
	if g.RootArtifact != "" {
		return g.RootArtifact
	}
	return defaultRootArtifact
}

func (g *Gate) timeout() time.Duration {
	if g.Timeout > 0 {
		return g.Timeout
	}
	return defaultBuildTimeout
}

// PromoteIfGreen uploads files into the sandbox, runs the production
// build and, when the gate passes, transfers every output to the artifact
// store, commits the file set as the new current version and triggers
// re-embedding. On any failure the BuildRecord is finalized failed and
// the prior promoted state is left exactly as it was. A cancelled
// context never promotes.
func (g *Gate) PromoteIfGreen(ctx context.Context, projectID string, files *staged.FileSet) (*Promotion, error) {
	rec, err := g.Store.CreateBuild(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("buildgate: create build record: %w", err)
	}
	log.Printf("[buildgate] project=%s build=%d starting", projectID, rec.ID)

	snapshot := files.Snapshot()
	if err := g.stage(ctx, snapshot); err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("stage files: %w", err))
	}

	runCtx, cancel := context.WithTimeout(ctx, g.timeout())
	res, err := g.Sandbox.RunCommand(runCtx, g.buildCmd())
	cancel()
	if err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("run %q: %w", g.buildCmd(), err))
	}
	if res.Exit.Code != 0 {
		return nil, g.fail(ctx, rec, fmt.Errorf("build exited %d:\n%s", res.Exit.Code, tail(res.Stdout)))
	}
	if hasErrorText(res.Stdout) {
		return nil, g.fail(ctx, rec, fmt.Errorf("build log reports errors:\n%s", tail(res.Stdout)))
	}
	// Textual success is not sufficient proof: require the root output.
	ok, err := g.Sandbox.FileExists(ctx, g.rootArtifact())
	if err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("check %s: %w", g.rootArtifact(), err))
	}
	if !ok {
		return nil, g.fail(ctx, rec, fmt.Errorf("build produced no %s", g.rootArtifact()))
	}

	outputs, err := g.transfer(ctx, projectID, rec.ID)
	if err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("transfer outputs: %w", err))
	}

	if err := ctx.Err(); err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("run cancelled before promotion: %w", err))
	}
	if err := g.Store.Promote(ctx, rec, snapshot); err != nil {
		return nil, g.fail(ctx, rec, fmt.Errorf("promote: %w", err))
	}
	log.Printf("[buildgate] project=%s build=%d promoted (%d artifacts)", projectID, rec.ID, len(outputs))

	if g.Reindex != nil {
		if err := g.Reindex.Reindex(ctx, projectID, rec.ID, snapshot); err != nil {
			// The promotion already committed; surface the reindex
			// failure rather than pretending the run is clean.
			return nil, fmt.Errorf("buildgate: build %d promoted but reindex failed: %w", rec.ID, err)
		}
	}

	url, err := g.Artifacts.URL(ctx, projectID, rec.ID, g.rootArtifact())
	if err != nil {
		url = ""
	}
	rec.Status = store.BuildSuccess
	return &Promotion{Build: rec, Artifacts: outputs, PreviewURL: url}, nil
}

// stage pushes the staged file set into the sandbox workspace.
func (g *Gate) stage(ctx context.Context, files map[string]string) error {
	for path, content := range files {
		if i := strings.LastIndexByte(path, '/'); i > 0 {
			if err := g.Sandbox.CreateFolder(ctx, path[:i]); err != nil {
				return fmt.Errorf("mkdir %s: %w", path[:i], err)
			}
		}
		if err := g.Sandbox.UploadFile(ctx, path, []byte(content)); err != nil {
			return fmt.Errorf("upload %s: %w", path, err)
		}
	}
	return nil
}

// transfer copies every build output into the artifact store. All puts
// must succeed before the caller may flip the record to success.
func (g *Gate) transfer(ctx context.Context, projectID string, buildID int64) ([]string, error) {
	paths, err := g.Sandbox.ListFiles(ctx, g.outputDir())
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", g.outputDir(), err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no outputs under %s", g.outputDir())
	}
	for _, p := range paths {
		data, err := g.Sandbox.DownloadFile(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("download %s: %w", p, err)
		}
		if err := g.Artifacts.Put(ctx, projectID, buildID, p, data); err != nil {
			return nil, fmt.Errorf("store %s: %w", p, err)
		}
	}
	return paths, nil
}

// fail finalizes the record as failed and returns the cause. The
// finalize runs detached from ctx so cancellation still leaves a failed
// row instead of a stuck pending one.
func (g *Gate) fail(ctx context.Context, rec store.BuildRecord, cause error) error {
	if err := g.Store.FinalizeBuild(context.WithoutCancel(ctx), rec.ID, store.BuildFailed); err != nil {
		log.Printf("[buildgate] project=%s build=%d finalize failed: %v", rec.ProjectID, rec.ID, err)
	}
	log.Printf("[buildgate] project=%s build=%d failed: %v", rec.ProjectID, rec.ID, cause)
	return fmt.Errorf("buildgate: build %d: %w", rec.ID, cause)
}

// hasErrorText applies the log heuristic: any "error"/"Error" substring
// marks the build red regardless of exit code.
func hasErrorText(out string) bool {
	return strings.Contains(out, "error") || strings.Contains(out, "Error")
}

// tail keeps failure messages readable when a build log is huge.
func tail(s string) string {
	const max = 2000
	if len(s) <= max {
		return s
	}
	return "..." + s[len(s)-max:]
}
