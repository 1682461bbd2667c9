package store

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("store: not found")
	// ErrFinalized guards BuildRecord immutability: a finalized record
	// never changes status again.
	ErrFinalized = errors.New("store: build record already finalized")
)

// CreateBuild inserts a pending BuildRecord with the next version for the
// project. It is called before any upload so a crash mid-build leaves an
// inspectable failed/pending row, never a silently missing one.
func (s *Store) CreateBuild(ctx context.Context, projectID string) (BuildRecord, error) {
	if s.db != nil {
		return s.createBuildDB(ctx, projectID)
	}
	return s.mem.createBuild(projectID)
}

// FinalizeBuild transitions a pending record to success or failed.
func (s *Store) FinalizeBuild(ctx context.Context, buildID int64, status BuildStatus) error {
	if status != BuildSuccess && status != BuildFailed {
		return errors.New("store: finalize status must be success or failed")
	}
	if s.db != nil {
		return s.finalizeBuildDB(ctx, buildID, status)
	}
	return s.mem.finalizeBuild(buildID, status)
}

// LatestSuccess returns the newest successfully promoted build.
func (s *Store) LatestSuccess(ctx context.Context, projectID string) (BuildRecord, bool, error) {
	if s.db != nil {
		return s.latestSuccessDB(ctx, projectID)
	}
	return s.mem.latestSuccess(projectID)
}

// Promote persists files as the build's authoritative file set and marks
// the record success, atomically per project. Prior versions keep their
// rows; nothing is overwritten.
func (s *Store) Promote(ctx context.Context, rec BuildRecord, files map[string]string) error {
	if s.db != nil {
		if err := s.promoteDB(ctx, rec, files); err != nil {
			return err
		}
	} else if err := s.mem.promote(rec, files); err != nil {
		return err
	}
	s.filesCache.Add(cacheKey(rec.ProjectID, rec.ID), copyFiles(files))
	return nil
}

// Files returns the file set of one specific build version.
func (s *Store) Files(ctx context.Context, projectID string, buildID int64) (map[string]string, error) {
	if m, ok := s.filesCache.Get(cacheKey(projectID, buildID)); ok {
		return copyFiles(m), nil
	}
	var (
		m   map[string]string
		err error
	)
	if s.db != nil {
		m, err = s.filesDB(ctx, projectID, buildID)
	} else {
		m, err = s.mem.filesOf(projectID, buildID)
	}
	if err != nil {
		return nil, err
	}
	s.filesCache.Add(cacheKey(projectID, buildID), copyFiles(m))
	return m, nil
}

// LatestFiles returns the current promoted file set and its build id.
func (s *Store) LatestFiles(ctx context.Context, projectID string) (map[string]string, int64, error) {
	rec, ok, err := s.LatestSuccess(ctx, projectID)
	if err != nil {
		return nil, 0, err
	}
	if !ok {
		return nil, 0, ErrNotFound
	}
	files, err := s.Files(ctx, projectID, rec.ID)
	if err != nil {
		return nil, 0, err
	}
	return files, rec.ID, nil
}

// ReplaceChunks installs the chunk set for a build version. Chunks of a
// prior build are left alone so historical queries stay reproducible.
func (s *Store) ReplaceChunks(ctx context.Context, projectID string, buildID int64, chunks []Chunk) error {
	if s.db != nil {
		return s.replaceChunksDB(ctx, projectID, buildID, chunks)
	}
	return s.mem.replaceChunks(projectID, buildID, chunks)
}

// Chunks returns the chunk set of a build version.
func (s *Store) Chunks(ctx context.Context, projectID string, buildID int64) ([]Chunk, error) {
	if s.db != nil {
		return s.chunksDB(ctx, projectID, buildID)
	}
	return s.mem.chunksOf(projectID, buildID)
}

// AppendMessage appends to the project's conversation log and returns the
// stored message with its sequence number.
func (s *Store) AppendMessage(ctx context.Context, projectID, role, content string) (Message, error) {
	if s.db != nil {
		return s.appendMessageDB(ctx, projectID, role, content)
	}
	return s.mem.appendMessage(projectID, role, content)
}

// Messages returns the conversation log in sequence order.
func (s *Store) Messages(ctx context.Context, projectID string) ([]Message, error) {
	if s.db != nil {
		return s.messagesDB(ctx, projectID)
	}
	return s.mem.messagesOf(projectID)
}

func copyFiles(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
