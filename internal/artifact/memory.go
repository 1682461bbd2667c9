package artifact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Store for tests and local runs without minio.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
	// FailPut, when set, makes every Put fail; used to exercise the
	// build gate's abort-on-transfer-error path.
	FailPut bool
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Put(_ context.Context, projectID string, buildID int64, path string, content []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPut {
		return fmt.Errorf("artifact: injected put failure for %s", path)
	}
	m.objects[keyPrefix(projectID, buildID)+path] = append([]byte{}, content...)
	return nil
}

func (m *Memory) Get(_ context.Context, projectID string, buildID int64, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[keyPrefix(projectID, buildID)+path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte{}, b...), nil
}

func (m *Memory) List(_ context.Context, projectID string, buildID int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := keyPrefix(projectID, buildID)
	var out []string
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, strings.TrimPrefix(k, prefix))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) URL(_ context.Context, projectID string, buildID int64, path string) (string, error) {
	return "memory://" + keyPrefix(projectID, buildID) + path, nil
}
