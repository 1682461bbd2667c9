// Package wordidx is a word-only index over an in-memory file set. The
// context index uses it as the literal-term fallback: when embedding
// similarity misses a file that mentions a query term verbatim, the word
// index still finds it.
//
// Rules:
//   - Keep only ident-like words: start with a Unicode letter or '_',
//     continue with letter/digit/'_'.
//   - Numbers and symbols are delimiters; quotes carry no special meaning.
//   - Lines are 1-based.
//   - Matching is exact and case-sensitive per word; query terms shorter
//     than MinTermLen runes are ignored.
package wordidx

import (
	"hash/fnv"
	"sort"
	"unicode"
	"unicode/utf8"
)

// MinTermLen is the shortest query token considered a literal term.
// Shorter tokens ("a", "to", "if") match almost every source file and
// only add noise.
const MinTermLen = 3

// Word is a collected token and the line it appeared on.
type Word struct {
	Text string
	Line int
}

// Index holds the words of a single file and a hash posting map.
type Index struct {
	Words []Word
	post  map[uint64][]int // hash -> indices into Words
}

// Build scans one file's content and collects its words.
func Build(src []byte) *Index {
	idx := &Index{post: make(map[uint64][]int)}
	line := 1

	isStart := func(r rune) bool { return r == '_' || unicode.IsLetter(r) }
	isCont := func(r rune) bool { return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) }

	i := 0
	for i < len(src) {
		r, w := utf8.DecodeRune(src[i:])
		if r == '\n' {
			line++
			i += w
			continue
		}
		if r == utf8.RuneError && w == 1 {
			// Invalid bytes act as delimiters.
			i++
			continue
		}
		if isStart(r) {
			start := i
			i += w
			for i < len(src) {
				rc, wc := utf8.DecodeRune(src[i:])
				if rc == '\n' || !isCont(rc) {
					break
				}
				i += wc
			}
			idx.add(string(src[start:i]), line)
			continue
		}
		i += w
	}
	return idx
}

func (x *Index) add(word string, line int) {
	key := hashWord(word)
	n := len(x.Words)
	x.Words = append(x.Words, Word{Text: word, Line: line})
	x.post[key] = append(x.post[key], n)
}

// Find returns the lines on which word appears in this file.
func (x *Index) Find(word string) []int {
	if x == nil || x.post == nil {
		return nil
	}
	var out []int
	for _, i := range x.post[hashWord(word)] {
		if x.Words[i].Text == word {
			out = append(out, x.Words[i].Line)
		}
	}
	return out
}

// PosRef ties a word occurrence to a file and line.
type PosRef struct {
	Path string
	Line int
}

// SetIndex aggregates per-file indices for one file set snapshot. It is
// immutable after BuildSet and safe for concurrent readers.
type SetIndex struct {
	byHash map[uint64][]PosRef
	paths  []string
}

// BuildSet indexes every file in the set. Paths are walked in sorted
// order so postings come out deterministic.
func BuildSet(files map[string]string) *SetIndex {
	s := &SetIndex{byHash: make(map[uint64][]PosRef)}
	s.paths = make([]string, 0, len(files))
	for p := range files {
		s.paths = append(s.paths, p)
	}
	sort.Strings(s.paths)
	for _, p := range s.paths {
		idx := Build([]byte(files[p]))
		for _, w := range idx.Words {
			key := hashWord(w.Text)
			s.byHash[key] = append(s.byHash[key], PosRef{Path: p, Line: w.Line})
		}
	}
	return s
}

// Find returns every occurrence of an exact word across the set.
func (s *SetIndex) Find(word string) []PosRef {
	if s == nil {
		return nil
	}
	var out []PosRef
	for _, ref := range s.byHash[hashWord(word)] {
		out = append(out, ref)
	}
	return out
}

// MatchPaths tokenizes query the same way files are tokenized, drops
// terms shorter than MinTermLen, and returns paths containing any term,
// ranked by distinct-term hits then occurrence count, capped at limit.
func (s *SetIndex) MatchPaths(query string, limit int) []string {
	if s == nil || limit <= 0 {
		return nil
	}
	terms := Terms(query)
	if len(terms) == 0 {
		return nil
	}
	type score struct {
		terms map[string]struct{}
		hits  int
	}
	scores := make(map[string]*score)
	for _, t := range terms {
		for _, ref := range s.Find(t) {
			sc := scores[ref.Path]
			if sc == nil {
				sc = &score{terms: make(map[string]struct{})}
				scores[ref.Path] = sc
			}
			sc.terms[t] = struct{}{}
			sc.hits++
		}
	}
	paths := make([]string, 0, len(scores))
	for p := range scores {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := scores[paths[i]], scores[paths[j]]
		if len(a.terms) != len(b.terms) {
			return len(a.terms) > len(b.terms)
		}
		if a.hits != b.hits {
			return a.hits > b.hits
		}
		return paths[i] < paths[j]
	})
	if len(paths) > limit {
		paths = paths[:limit]
	}
	return paths
}

// Terms extracts the query's literal terms: ident-like words of at least
// MinTermLen runes, deduplicated in first-seen order.
func Terms(query string) []string {
	idx := Build([]byte(query))
	seen := make(map[string]struct{})
	var out []string
	for _, w := range idx.Words {
		if utf8.RuneCountInString(w.Text) < MinTermLen {
			continue
		}
		if _, ok := seen[w.Text]; ok {
			continue
		}
		seen[w.Text] = struct{}{}
		out = append(out, w.Text)
	}
	return out
}

func hashWord(word string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(word))
	return h.Sum64()
}
