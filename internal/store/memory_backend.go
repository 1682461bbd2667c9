package store

import (
	"sort"
	"sync"
	"time"
)

// memState is the in-memory backend. It mirrors the SQL schema closely
// enough that both backends behave identically under the store tests.
type memState struct {
	mu       sync.Mutex
	nextID   int64
	builds   map[int64]*BuildRecord
	files    map[int64]map[string]string // build id -> path -> content
	chunks   map[string][]Chunk          // project/build -> chunks
	messages map[string][]Message
}

func newMemState() *memState {
	return &memState{
		builds:   make(map[int64]*BuildRecord),
		files:    make(map[int64]map[string]string),
		chunks:   make(map[string][]Chunk),
		messages: make(map[string][]Message),
	}
}

func (m *memState) createBuild(projectID string) (BuildRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	version := 1
	for _, b := range m.builds {
		if b.ProjectID == projectID && b.Version >= version {
			version = b.Version + 1
		}
	}
	m.nextID++
	rec := BuildRecord{
		ID:        m.nextID,
		ProjectID: projectID,
		Version:   version,
		Status:    BuildPending,
		CreatedAt: time.Now(),
	}
	m.builds[rec.ID] = &rec
	return rec, nil
}

func (m *memState) finalizeBuild(buildID int64, status BuildStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.builds[buildID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != BuildPending {
		return ErrFinalized
	}
	b.Status = status
	return nil
}

func (m *memState) latestSuccess(projectID string) (BuildRecord, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *BuildRecord
	for _, b := range m.builds {
		if b.ProjectID != projectID || b.Status != BuildSuccess {
			continue
		}
		if best == nil || b.Version > best.Version {
			best = b
		}
	}
	if best == nil {
		return BuildRecord{}, false, nil
	}
	return *best, true, nil
}

func (m *memState) promote(rec BuildRecord, files map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.builds[rec.ID]
	if !ok {
		return ErrNotFound
	}
	if b.Status != BuildPending {
		return ErrFinalized
	}
	m.files[rec.ID] = copyFiles(files)
	b.Status = BuildSuccess
	return nil
}

func (m *memState) filesOf(_ string, buildID int64) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[buildID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyFiles(f), nil
}

func (m *memState) replaceChunks(projectID string, buildID int64, chunks []Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := cacheKey(projectID, buildID)
	m.chunks[key] = append([]Chunk{}, chunks...)
	return nil
}

func (m *memState) chunksOf(projectID string, buildID int64) ([]Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]Chunk{}, m.chunks[cacheKey(projectID, buildID)]...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FilePath != out[j].FilePath {
			return out[i].FilePath < out[j].FilePath
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out, nil
}

func (m *memState) appendMessage(projectID, role, content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg := Message{
		ProjectID: projectID,
		Seq:       len(m.messages[projectID]) + 1,
		Role:      role,
		Content:   content,
	}
	m.messages[projectID] = append(m.messages[projectID], msg)
	return msg, nil
}

func (m *memState) messagesOf(projectID string) ([]Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message{}, m.messages[projectID]...), nil
}
