package sandbox

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
)

// Fake is an in-memory sandbox for tests and offline runs. Commands
// answer from a script keyed by command prefix; OnCommand hooks let a
// test fabricate side effects (like a build writing its output tree).
type Fake struct {
	mu    sync.Mutex
	files map[string][]byte
	// Script maps a command prefix to its canned result.
	Script map[string]RunResult
	// OnCommand, when set, runs before the script lookup and may mutate
	// the fake's file tree.
	OnCommand func(f *Fake, cmd string)
}

func NewFake() *Fake {
	return &Fake{files: make(map[string][]byte), Script: make(map[string]RunResult)}
}

func (f *Fake) UploadFile(_ context.Context, p string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Clean(p)] = append([]byte{}, data...)
	return nil
}

func (f *Fake) DownloadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.files[path.Clean(p)]
	if !ok {
		return nil, fmt.Errorf("fake sandbox: %s not found", p)
	}
	return append([]byte{}, b...), nil
}

func (f *Fake) CreateFolder(context.Context, string) error { return nil }

func (f *Fake) RunCommand(_ context.Context, cmd string) (RunResult, error) {
	if f.OnCommand != nil {
		f.OnCommand(f, cmd)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for prefix, res := range f.Script {
		if strings.HasPrefix(cmd, prefix) {
			return res, nil
		}
	}
	return RunResult{}, nil
}

func (f *Fake) FileExists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.files[path.Clean(p)]
	return ok, nil
}

func (f *Fake) ListFiles(_ context.Context, dir string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dir = path.Clean(dir)
	var out []string
	for p := range f.files {
		if p == dir || strings.HasPrefix(p, dir+"/") {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, nil
}

// WriteRaw places a file without going through UploadFile's context
// plumbing; intended for OnCommand hooks.
func (f *Fake) WriteRaw(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Clean(p)] = data
}
