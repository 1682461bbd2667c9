package wordidx

import (
	"testing"
)

func TestBuild_Simple(t *testing.T) {
	src := []byte(`_x  hello 123 world "q" foo_bar`)
	idx := Build(src)

	// present
	for _, w := range []string{"_x", "hello", "world", "foo_bar"} {
		if ps := idx.Find(w); len(ps) == 0 {
			t.Fatalf("expected to find %q", w)
		}
	}
	// absent (numbers / case)
	for _, w := range []string{"123", "Hello"} {
		if ps := idx.Find(w); len(ps) != 0 {
			t.Fatalf("did not expect to find %q", w)
		}
	}
}

func TestBuild_Lines(t *testing.T) {
	idx := Build([]byte("alpha\nbeta alpha\n\nalpha"))
	got := idx.Find("alpha")
	want := []int{1, 2, 4}
	if len(got) != len(want) {
		t.Fatalf("lines=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("lines=%v want=%v", got, want)
		}
	}
}

func TestSetIndex_FindAcrossFiles(t *testing.T) {
	s := BuildSet(map[string]string{
		"src/App.tsx":   "export function App() { return useCart() }",
		"src/cart.ts":   "export function useCart() {}\nexport const cartTotal = 0",
		"src/about.tsx": "const about = 'nothing here'",
	})
	refs := s.Find("useCart")
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %v", refs)
	}
	seen := map[string]bool{}
	for _, r := range refs {
		seen[r.Path] = true
	}
	if !(seen["src/App.tsx"] && seen["src/cart.ts"]) {
		t.Fatalf("unexpected paths: %v", seen)
	}
}

func TestMatchPaths_ShortTermsIgnored(t *testing.T) {
	s := BuildSet(map[string]string{
		"src/a.ts": "an if to",
		"src/b.ts": "checkout flow total",
	})
	if got := s.MatchPaths("if to an", 10); len(got) != 0 {
		t.Fatalf("short terms must not match, got %v", got)
	}
	got := s.MatchPaths("fix the checkout total", 10)
	if len(got) != 1 || got[0] != "src/b.ts" {
		t.Fatalf("got %v", got)
	}
}

func TestMatchPaths_RankAndCap(t *testing.T) {
	s := BuildSet(map[string]string{
		"src/cart.ts":  "cart cart checkout",
		"src/order.ts": "checkout",
		"src/misc.ts":  "cart",
	})
	got := s.MatchPaths("cart checkout", 2)
	if len(got) != 2 {
		t.Fatalf("cap not applied: %v", got)
	}
	// cart.ts matches both terms and ranks first.
	if got[0] != "src/cart.ts" {
		t.Fatalf("ranking wrong: %v", got)
	}
}

func TestTerms_DedupeAndOrder(t *testing.T) {
	got := Terms("add add the CartPage to routes, CartPage")
	want := []string{"add", "the", "CartPage", "routes"}
	if len(got) != len(want) {
		t.Fatalf("terms=%v want=%v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("terms=%v want=%v", got, want)
		}
	}
}
