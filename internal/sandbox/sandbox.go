package sandbox

import (
	"context"
)

// ExitInfo describes how a sandbox command finished.
type ExitInfo struct {
	Code int
}

// RunResult carries a command's captured output and exit state.
type RunResult struct {
	Stdout string
	Exit   ExitInfo
}

// Sandbox is the execution capability the orchestrator consumes: a place
// to put files, run the project's compiler/build commands, and fetch
// produced artifacts. Implementations may be a remote executor or the
// local workspace; the orchestrator does not care.
type Sandbox interface {
	UploadFile(ctx context.Context, path string, data []byte) error
	DownloadFile(ctx context.Context, path string) ([]byte, error)
	// CreateFolder treats an already-existing folder as success.
	CreateFolder(ctx context.Context, path string) error
	RunCommand(ctx context.Context, cmd string) (RunResult, error)
	// FileExists reports whether path exists in the sandbox.
	FileExists(ctx context.Context, path string) (bool, error)
	// ListFiles returns every file under dir, recursively, as
	// slash-separated paths relative to the sandbox root.
	ListFiles(ctx context.Context, dir string) ([]string, error)
}
