package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

func (s *Store) ensureSchema(ctx context.Context) error {
	if s == nil || s.db == nil {
		return nil
	}
	s.schemaOnce.Do(func() {
		_, s.schemaErr = s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS build_records (
  id BIGSERIAL PRIMARY KEY,
  project_id TEXT NOT NULL,
  version INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
  UNIQUE (project_id, version)
);
CREATE INDEX IF NOT EXISTS idx_build_records_project ON build_records (project_id);

CREATE TABLE IF NOT EXISTS project_files (
  project_id TEXT NOT NULL,
  build_id BIGINT NOT NULL REFERENCES build_records (id),
  path TEXT NOT NULL,
  content TEXT NOT NULL,
  PRIMARY KEY (project_id, build_id, path)
);

CREATE TABLE IF NOT EXISTS chunk_embeddings (
  project_id TEXT NOT NULL,
  build_id BIGINT NOT NULL REFERENCES build_records (id),
  file_path TEXT NOT NULL,
  chunk_index INTEGER NOT NULL,
  content TEXT NOT NULL,
  vector JSONB NOT NULL,
  PRIMARY KEY (project_id, build_id, file_path, chunk_index)
);

CREATE TABLE IF NOT EXISTS conversation_messages (
  project_id TEXT NOT NULL,
  seq INTEGER NOT NULL,
  role TEXT NOT NULL,
  content TEXT NOT NULL,
  PRIMARY KEY (project_id, seq)
);
`)
	})
	return s.schemaErr
}

func (s *Store) createBuildDB(ctx context.Context, projectID string) (BuildRecord, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return BuildRecord{}, err
	}
	var rec BuildRecord
	err := s.db.QueryRowContext(ctx, `
INSERT INTO build_records (project_id, version, status)
VALUES ($1, COALESCE((SELECT MAX(version) FROM build_records WHERE project_id = $1), 0) + 1, 'pending')
RETURNING id, project_id, version, status, created_at`, projectID).
		Scan(&rec.ID, &rec.ProjectID, &rec.Version, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return BuildRecord{}, fmt.Errorf("create build: %w", err)
	}
	return rec, nil
}

func (s *Store) finalizeBuildDB(ctx context.Context, buildID int64, status BuildStatus) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE build_records SET status = $2 WHERE id = $1 AND status = 'pending'`,
		buildID, string(status))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var cur string
		err := s.db.QueryRowContext(ctx, `SELECT status FROM build_records WHERE id = $1`, buildID).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrFinalized
	}
	return nil
}

func (s *Store) latestSuccessDB(ctx context.Context, projectID string) (BuildRecord, bool, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return BuildRecord{}, false, err
	}
	var rec BuildRecord
	err := s.db.QueryRowContext(ctx, `
SELECT id, project_id, version, status, created_at FROM build_records
WHERE project_id = $1 AND status = 'success'
ORDER BY version DESC LIMIT 1`, projectID).
		Scan(&rec.ID, &rec.ProjectID, &rec.Version, &rec.Status, &rec.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return BuildRecord{}, false, nil
	}
	if err != nil {
		return BuildRecord{}, false, err
	}
	return rec, true, nil
}

// promoteDB inserts the file rows and flips the record to success in one
// transaction: the single multi-row commit point in the whole store.
func (s *Store) promoteDB(ctx context.Context, rec BuildRecord, files map[string]string) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var cur string
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM build_records WHERE id = $1 FOR UPDATE`, rec.ID).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if BuildStatus(cur) != BuildPending {
		return ErrFinalized
	}
	for path, content := range files {
		if _, err := tx.ExecContext(ctx, `
INSERT INTO project_files (project_id, build_id, path, content)
VALUES ($1, $2, $3, $4)`, rec.ProjectID, rec.ID, path, content); err != nil {
			return fmt.Errorf("insert file %s: %w", path, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE build_records SET status = 'success' WHERE id = $1`, rec.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Store) filesDB(ctx context.Context, projectID string, buildID int64) (map[string]string, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT path, content FROM project_files WHERE project_id = $1 AND build_id = $2`,
		projectID, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var path, content string
		if err := rows.Scan(&path, &content); err != nil {
			return nil, err
		}
		out[path] = content
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *Store) replaceChunksDB(ctx context.Context, projectID string, buildID int64, chunks []Chunk) error {
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM chunk_embeddings WHERE project_id = $1 AND build_id = $2`,
		projectID, buildID); err != nil {
		return err
	}
	for _, c := range chunks {
		vec, err := json.Marshal(c.Vector)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO chunk_embeddings (project_id, build_id, file_path, chunk_index, content, vector)
VALUES ($1, $2, $3, $4, $5, $6)`,
			projectID, buildID, c.FilePath, c.ChunkIndex, c.Content, vec); err != nil {
			return fmt.Errorf("insert chunk %s[%d]: %w", c.FilePath, c.ChunkIndex, err)
		}
	}
	return tx.Commit()
}

func (s *Store) chunksDB(ctx context.Context, projectID string, buildID int64) ([]Chunk, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT file_path, chunk_index, content, vector FROM chunk_embeddings
WHERE project_id = $1 AND build_id = $2
ORDER BY file_path, chunk_index`, projectID, buildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Chunk
	for rows.Next() {
		c := Chunk{ProjectID: projectID, BuildID: buildID}
		var vec []byte
		if err := rows.Scan(&c.FilePath, &c.ChunkIndex, &c.Content, &vec); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(vec, &c.Vector); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *Store) appendMessageDB(ctx context.Context, projectID, role, content string) (Message, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return Message{}, err
	}
	var msg Message
	err := s.db.QueryRowContext(ctx, `
INSERT INTO conversation_messages (project_id, seq, role, content)
VALUES ($1, COALESCE((SELECT MAX(seq) FROM conversation_messages WHERE project_id = $1), 0) + 1, $2, $3)
RETURNING project_id, seq, role, content`, projectID, role, content).
		Scan(&msg.ProjectID, &msg.Seq, &msg.Role, &msg.Content)
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

func (s *Store) messagesDB(ctx context.Context, projectID string) ([]Message, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT project_id, seq, role, content FROM conversation_messages
WHERE project_id = $1 ORDER BY seq`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ProjectID, &m.Seq, &m.Role, &m.Content); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
