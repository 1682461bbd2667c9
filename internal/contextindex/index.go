// Package contextindex narrows a project's file set to the files relevant
// to a request. Relevance is embedding similarity over syntactic chunks,
// widened two ways so the generation client never loses critical files:
// a fixed always-relevant set (structural glue like the root composition
// file) and a literal-term fallback that catches exact-name mentions
// embedding similarity ranks low.
package contextindex

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"

	"forgeline/internal/llmclient"
	"forgeline/internal/store"
	"forgeline/internal/wordidx"
)

// defaultAlwaysRelevant are the structural glue files merged into every
// query result when present in the file set.
var defaultAlwaysRelevant = []string{
	"src/App.tsx",
	"src/main.tsx",
	"src/index.css",
	"index.html",
	"package.json",
}

// defaultLiteralCap bounds how many paths the literal-term fallback may
// add to a query result.
const defaultLiteralCap = 4

// Index embeds chunks at reindex time and answers relevance queries.
type Index struct {
	Store    *store.Store
	Embedder llmclient.Embedder

	// AlwaysRelevant overrides the default glue-file set when non-nil.
	AlwaysRelevant []string
	// LiteralCap bounds literal-fallback additions; <=0 uses the default.
	LiteralCap int
}

func (ix *Index) alwaysRelevant() []string {
	if ix.AlwaysRelevant != nil {
		return ix.AlwaysRelevant
	}
	return defaultAlwaysRelevant
}

func (ix *Index) literalCap() int {
	if ix.LiteralCap > 0 {
		return ix.LiteralCap
	}
	return defaultLiteralCap
}

// Reindex chunks and embeds every file of a newly promoted build and
// installs the chunk set scoped to that buildID. Chunks of prior builds
// are never touched, so historical queries stay reproducible.
func (ix *Index) Reindex(ctx context.Context, projectID string, buildID int64, files map[string]string) error {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var chunks []store.Chunk
	var texts []string
	for _, p := range paths {
		for i, c := range chunkFile(files[p]) {
			chunks = append(chunks, store.Chunk{
				ProjectID:  projectID,
				BuildID:    buildID,
				FilePath:   p,
				ChunkIndex: i,
				Content:    c,
			})
			texts = append(texts, c)
		}
	}
	if len(chunks) == 0 {
		return ix.Store.ReplaceChunks(ctx, projectID, buildID, nil)
	}

	vecs, err := ix.Embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("contextindex: embed %d chunks: %w", len(texts), err)
	}
	if len(vecs) != len(chunks) {
		return fmt.Errorf("contextindex: embedder returned %d vectors for %d chunks", len(vecs), len(chunks))
	}
	for i := range chunks {
		chunks[i].Vector = vecs[i]
	}
	if err := ix.Store.ReplaceChunks(ctx, projectID, buildID, chunks); err != nil {
		return fmt.Errorf("contextindex: store chunks: %w", err)
	}
	log.Printf("[contextindex] project=%s build=%d indexed %d chunks over %d files", projectID, buildID, len(chunks), len(paths))
	return nil
}

// Query returns up to k+extras file paths relevant to text, ordered by
// similarity, with always-relevant glue files and literal-term matches
// merged in. buildID <= 0 means the latest promoted build.
func (ix *Index) Query(ctx context.Context, projectID, text string, k int, buildID int64) ([]string, error) {
	if k <= 0 {
		k = 5
	}
	files, buildID, err := ix.filesAt(ctx, projectID, buildID)
	if err != nil {
		return nil, err
	}

	ranked, err := ix.rankBySimilarity(ctx, projectID, buildID, text, k)
	if err != nil {
		// Embedding relevance is best-effort; the literal fallback and
		// glue set still produce a usable answer.
		log.Printf("[contextindex] project=%s similarity query failed, using fallback only: %v", projectID, err)
		ranked = nil
	}

	out := make([]string, 0, k+len(ix.alwaysRelevant())+ix.literalCap())
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		if _, exists := files[p]; !exists {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	for _, p := range ranked {
		add(p)
	}
	for _, p := range ix.alwaysRelevant() {
		add(p)
	}
	for _, p := range wordidx.BuildSet(files).MatchPaths(text, ix.literalCap()) {
		add(p)
	}
	return out, nil
}

// filesAt resolves the file set for the requested build, defaulting to
// the latest promoted one.
func (ix *Index) filesAt(ctx context.Context, projectID string, buildID int64) (map[string]string, int64, error) {
	if buildID > 0 {
		files, err := ix.Store.Files(ctx, projectID, buildID)
		if err != nil {
			return nil, 0, fmt.Errorf("contextindex: files of build %d: %w", buildID, err)
		}
		return files, buildID, nil
	}
	files, id, err := ix.Store.LatestFiles(ctx, projectID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return map[string]string{}, 0, nil
		}
		return nil, 0, fmt.Errorf("contextindex: latest files: %w", err)
	}
	return files, id, nil
}

// rankBySimilarity embeds the query and returns the top-k chunk owners by
// cosine similarity, deduplicated to unique paths in score order.
func (ix *Index) rankBySimilarity(ctx context.Context, projectID string, buildID int64, text string, k int) ([]string, error) {
	if buildID <= 0 {
		return nil, nil
	}
	chunks, err := ix.Store.Chunks(ctx, projectID, buildID)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	vecs, err := ix.Embedder.Embed(ctx, []string{text})
	if err != nil || len(vecs) != 1 {
		if err == nil {
			err = fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
		}
		return nil, err
	}
	q := vecs[0]

	type scored struct {
		path string
		sim  float64
	}
	ranked := make([]scored, 0, len(chunks))
	for _, c := range chunks {
		ranked = append(ranked, scored{path: c.FilePath, sim: cosine(q, c.Vector)})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].sim > ranked[j].sim })

	seen := make(map[string]struct{})
	var out []string
	for _, s := range ranked {
		if _, ok := seen[s.path]; ok {
			continue
		}
		seen[s.path] = struct{}{}
		out = append(out, s.path)
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// cosine returns the cosine similarity of two vectors; mismatched or
// zero-length vectors score 0.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
