package contextindex

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"forgeline/internal/store"
)

// hashEmbedder produces deterministic vectors where texts sharing words
// point in similar directions; good enough to exercise ranking.
type hashEmbedder struct {
	calls int
	fail  bool
}

func (e *hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, context.DeadlineExceeded
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec := make([]float32, 64)
		for _, w := range strings.Fields(strings.ToLower(t)) {
			var h uint32
			for _, r := range w {
				h = h*31 + uint32(r)
			}
			vec[h%64]++
		}
		out[i] = vec
	}
	return out, nil
}

func promote(t *testing.T, st *store.Store, projectID string, files map[string]string) store.BuildRecord {
	t.Helper()
	rec, err := st.CreateBuild(context.Background(), projectID)
	require.NoError(t, err)
	require.NoError(t, st.Promote(context.Background(), rec, files))
	rec.Status = store.BuildSuccess
	return rec
}

func testFiles() map[string]string {
	return map[string]string{
		"src/App.tsx":           "import Cart from './pages/Cart'\nexport default function App() {}",
		"src/pages/Cart.tsx":    "export default function Cart() { return checkout total }",
		"src/pages/About.tsx":   "export default function About() { return team bios }",
		"src/pages/Contact.tsx": "export default function Contact() { return form }",
		"index.html":            "<div id='root'></div>",
	}
}

func TestReindexAndQueryRanksSimilarFiles(t *testing.T) {
	st := store.New()
	emb := &hashEmbedder{}
	ix := &Index{Store: st, Embedder: emb}

	files := testFiles()
	rec := promote(t, st, "p1", files)
	require.NoError(t, ix.Reindex(context.Background(), "p1", rec.ID, files))

	chunks, err := st.Chunks(context.Background(), "p1", rec.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		require.NotEmpty(t, c.Vector)
		require.LessOrEqual(t, len(c.Content), MaxChunkSize)
	}

	paths, err := ix.Query(context.Background(), "p1", "checkout total", 2, 0)
	require.NoError(t, err)
	require.Contains(t, paths, "src/pages/Cart.tsx")
	// Glue files ride along even though the query never mentions them.
	require.Contains(t, paths, "src/App.tsx")
	require.Contains(t, paths, "index.html")
}

// Exact-name mentions must surface even when embeddings fail entirely.
func TestQueryLiteralFallbackWithoutEmbeddings(t *testing.T) {
	st := store.New()
	ix := &Index{Store: st, Embedder: &hashEmbedder{fail: true}}

	files := testFiles()
	promote(t, st, "p1", files)

	paths, err := ix.Query(context.Background(), "p1", "change the Contact form", 3, 0)
	require.NoError(t, err)
	require.Contains(t, paths, "src/pages/Contact.tsx")
}

func TestQueryHistoricalBuildScoping(t *testing.T) {
	st := store.New()
	emb := &hashEmbedder{}
	ix := &Index{Store: st, Embedder: emb}

	v1 := map[string]string{"src/App.tsx": "export default function App() { old }"}
	rec1 := promote(t, st, "p1", v1)
	require.NoError(t, ix.Reindex(context.Background(), "p1", rec1.ID, v1))

	v2 := testFiles()
	rec2 := promote(t, st, "p1", v2)
	require.NoError(t, ix.Reindex(context.Background(), "p1", rec2.ID, v2))

	// Prior build's chunks are untouched and its file set answers a
	// buildID-pinned query.
	old, err := st.Chunks(context.Background(), "p1", rec1.ID)
	require.NoError(t, err)
	require.Len(t, old, 1)

	paths, err := ix.Query(context.Background(), "p1", "Cart checkout", 3, rec1.ID)
	require.NoError(t, err)
	require.NotContains(t, paths, "src/pages/Cart.tsx")
}

func TestQueryEmptyProject(t *testing.T) {
	st := store.New()
	ix := &Index{Store: st, Embedder: &hashEmbedder{}}
	paths, err := ix.Query(context.Background(), "nope", "anything", 5, 0)
	require.NoError(t, err)
	require.Empty(t, paths)
}

func TestChunkFileBoundariesAndCap(t *testing.T) {
	content := "import a from 'a'\n\nexport function one() {\n  return 1\n}\n\nexport function two() {\n  return 2\n}\n"
	chunks := chunkFile(content)
	require.GreaterOrEqual(t, len(chunks), 2)
	require.Equal(t, content, strings.Join(chunks, ""))

	big := strings.Repeat("x", MaxChunkSize*2+10)
	for _, c := range chunkFile(big) {
		require.LessOrEqual(t, len(c), MaxChunkSize)
	}
}
