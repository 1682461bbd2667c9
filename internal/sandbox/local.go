package sandbox

import (
	"context"
	"errors"
	"io/fs"
	"os/exec"
	"path"
	"time"

	"forgeline/internal/safeio"
)

// Local runs commands in a workspace directory on this machine. Paths are
// confined to the workspace root via safeio.
type Local struct {
	fs         *safeio.SafeFS
	cmdTimeout time.Duration
}

func NewLocal(root string, cmdTimeout time.Duration) (*Local, error) {
	fsys, err := safeio.NewSafeFS(root)
	if err != nil {
		return nil, err
	}
	if cmdTimeout <= 0 {
		cmdTimeout = 5 * time.Minute
	}
	return &Local{fs: fsys, cmdTimeout: cmdTimeout}, nil
}

func (l *Local) UploadFile(_ context.Context, p string, data []byte) error {
	return l.fs.WriteFile(p, data)
}

func (l *Local) DownloadFile(_ context.Context, p string) ([]byte, error) {
	return l.fs.ReadFile(p)
}

func (l *Local) CreateFolder(_ context.Context, p string) error {
	return l.fs.MkdirAll(p)
}

// RunCommand executes cmd with the workspace as working directory. The
// command always runs under a deadline; hitting it is reported as an
// error, not a hang.
func (l *Local) RunCommand(ctx context.Context, cmd string) (RunResult, error) {
	ctx, cancel := context.WithTimeout(ctx, l.cmdTimeout)
	defer cancel()
	c := exec.CommandContext(ctx, "sh", "-c", cmd)
	c.Dir = l.fs.Root()
	out, err := c.CombinedOutput()
	res := RunResult{Stdout: string(out)}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		// Non-zero exit is a result, not a transport error; the caller
		// reads the diagnostics out of stdout.
		res.Exit.Code = exitErr.ExitCode()
		return res, nil
	default:
		return res, err
	}
}

func (l *Local) FileExists(_ context.Context, p string) (bool, error) {
	_, err := l.fs.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) ListFiles(_ context.Context, dir string) ([]string, error) {
	var out []string
	var walk func(rel string) error
	walk = func(rel string) error {
		entries, err := l.fs.ReadDir(rel)
		if err != nil {
			return err
		}
		for _, e := range entries {
			child := path.Join(rel, e.Name())
			if e.IsDir() {
				if err := walk(child); err != nil {
					return err
				}
				continue
			}
			out = append(out, child)
		}
		return nil
	}
	if err := walk(dir); err != nil {
		return nil, err
	}
	return out, nil
}
