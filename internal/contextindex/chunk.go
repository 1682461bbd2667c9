package contextindex

import (
	"strings"
)

// MaxChunkSize is the hard cap on a chunk's byte length. Boundary-based
// splitting is preferred; a single oversized block is split bluntly.
const MaxChunkSize = 1600

// chunkFile splits content along syntactic boundaries: a new top-level
// declaration or a blank line separating blocks starts a new chunk once
// the current one has material in it. The result never exceeds
// MaxChunkSize per chunk and concatenates back to the original content
// line set.
func chunkFile(content string) []string {
	lines := strings.SplitAfter(content, "\n")
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	prevBlank := false
	for _, line := range lines {
		if line == "" {
			continue
		}
		boundary := (prevBlank && isDeclStart(line)) || cur.Len() == 0
		if boundary && cur.Len() > 0 {
			flush()
		}
		if cur.Len()+len(line) > MaxChunkSize {
			flush()
			// A single line longer than the cap is split bluntly.
			for len(line) > MaxChunkSize {
				chunks = append(chunks, line[:MaxChunkSize])
				line = line[MaxChunkSize:]
			}
		}
		cur.WriteString(line)
		prevBlank = strings.TrimSpace(line) == ""
	}
	flush()
	return chunks
}

// isDeclStart reports whether a line opens a top-level declaration in the
// JS/TS family the generated projects use.
func isDeclStart(line string) bool {
	if len(line) == 0 || line[0] == ' ' || line[0] == '\t' {
		return false
	}
	trimmed := strings.TrimSpace(line)
	for _, kw := range []string{
		"export ", "import ", "function ", "const ", "let ", "var ",
		"class ", "interface ", "type ", "enum ", "async ",
	} {
		if strings.HasPrefix(trimmed, kw) {
			return true
		}
	}
	return false
}
