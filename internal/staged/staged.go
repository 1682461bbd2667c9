package staged

import (
	"sort"
	"sync"
)

// FileSet is the working tree accumulated during one run: path -> content.
// Last writer wins per path. It is owned by a single run; the mutex only
// guards concurrent task completions inside that run.
type FileSet struct {
	mu    sync.RWMutex
	files map[string]string
}

func NewFileSet() *FileSet {
	return &FileSet{files: make(map[string]string)}
}

// FromMap builds a FileSet from an existing path -> content map.
func FromMap(m map[string]string) *FileSet {
	fs := NewFileSet()
	for p, c := range m {
		fs.files[p] = c
	}
	return fs
}

func (fs *FileSet) Put(path, content string) {
	fs.mu.Lock()
	fs.files[path] = content
	fs.mu.Unlock()
}

func (fs *FileSet) Get(path string) (string, bool) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	c, ok := fs.files[path]
	return c, ok
}

func (fs *FileSet) Delete(path string) {
	fs.mu.Lock()
	delete(fs.files, path)
	fs.mu.Unlock()
}

func (fs *FileSet) Rename(from, to string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	c, ok := fs.files[from]
	if !ok {
		return false
	}
	delete(fs.files, from)
	fs.files[to] = c
	return true
}

func (fs *FileSet) Len() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return len(fs.files)
}

// Paths returns all paths in sorted order.
func (fs *FileSet) Paths() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make([]string, 0, len(fs.files))
	for p := range fs.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Snapshot returns an independent copy of the current contents.
func (fs *FileSet) Snapshot() map[string]string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	out := make(map[string]string, len(fs.files))
	for p, c := range fs.files {
		out[p] = c
	}
	return out
}

// Clone returns a new FileSet with the same contents.
func (fs *FileSet) Clone() *FileSet {
	return FromMap(fs.Snapshot())
}
