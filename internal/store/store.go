package store

import (
	"database/sql"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
)

/*
Package store is the durable side of the orchestrator: project file rows
keyed by (project, build, path), build records, the conversation log, and
chunk embeddings.

Two backends share one Store type: postgres through database/sql (pgx
stdlib driver) for deployments, and an in-memory map for tests and local
runs. Promotion is the single multi-row commit point; everything else is
row-at-a-time.
*/

// BuildStatus is the lifecycle of a BuildRecord.
type BuildStatus string

const (
	BuildPending BuildStatus = "pending"
	BuildSuccess BuildStatus = "success"
	BuildFailed  BuildStatus = "failed"
)

// BuildRecord tracks one promotion attempt. Immutable once finalized;
// superseded, never deleted.
type BuildRecord struct {
	ID        int64
	ProjectID string
	Version   int
	Status    BuildStatus
	CreatedAt time.Time
}

// Chunk is one embedded slice of a file, tagged with its build version.
type Chunk struct {
	ProjectID  string
	BuildID    int64
	FilePath   string
	ChunkIndex int
	Content    string
	Vector     []float32
}

// Message is one conversation log entry.
type Message struct {
	ProjectID string
	Seq       int
	Role      string
	Content   string
}

type Store struct {
	db *sql.DB

	schemaOnce sync.Once
	schemaErr  error

	mem *memState

	// filesCache caches promoted file sets by project_id/build_id.
	filesCache *lru.Cache[string, map[string]string]
}

// New returns an in-memory store.
func New() *Store {
	cache, _ := lru.New[string, map[string]string](64)
	return &Store{mem: newMemState(), filesCache: cache}
}

// NewPostgres opens a postgres-backed store via the pgx stdlib driver.
func NewPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	cache, err := lru.New[string, map[string]string](64)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, filesCache: cache}, nil
}

// NewFromEnv prefers postgres when FORGELINE_PG_DSN is set, falling back
// to the in-memory store.
func NewFromEnv() *Store {
	dsn := strings.TrimSpace(os.Getenv("FORGELINE_PG_DSN"))
	if dsn == "" {
		return New()
	}
	s, err := NewPostgres(dsn)
	if err != nil {
		return New()
	}
	return s
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func cacheKey(projectID string, buildID int64) string {
	return projectID + "/" + strconv.FormatInt(buildID, 10)
}
