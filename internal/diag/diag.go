package diag

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

/*
Package diag parses compiler diagnostics and hosts the deterministic fix
rules. The diagnostic text format is semi-structured and best-effort; the
patterns here track the TypeScript compiler's two stdout grammars and must
not be assumed stable across compiler versions.
*/

// Diagnostic is one compiler-reported problem.
type Diagnostic struct {
	FilePath string
	Line     int
	Column   int
	Code     string
	Message  string
}

var (
	// src/App.tsx(3,7): error TS2322: Type 'number' is not assignable ...
	reParen = regexp.MustCompile(`^(.+?)\((\d+),(\d+)\): error (TS\d+): (.+)$`)
	// src/App.tsx:3:7 - error TS2322: Type 'number' is not assignable ...
	rePretty = regexp.MustCompile(`^(.+?):(\d+):(\d+) - error (TS\d+): (.+)$`)
)

// Parse extracts diagnostics from raw compiler stdout. Unrecognized lines
// are ignored.
func Parse(raw string) []Diagnostic {
	var out []Diagnostic
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, "\r")
		m := reParen.FindStringSubmatch(line)
		if m == nil {
			m = rePretty.FindStringSubmatch(line)
		}
		if m == nil {
			continue
		}
		ln, _ := strconv.Atoi(m[2])
		col, _ := strconv.Atoi(m[3])
		out = append(out, Diagnostic{
			FilePath: strings.TrimSpace(m[1]),
			Line:     ln,
			Column:   col,
			Code:     m[4],
			Message:  strings.TrimSpace(m[5]),
		})
	}
	return out
}

// GroupByFile buckets diagnostics by file path, paths sorted.
func GroupByFile(diags []Diagnostic) ([]string, map[string][]Diagnostic) {
	byFile := make(map[string][]Diagnostic)
	for _, d := range diags {
		byFile[d.FilePath] = append(byFile[d.FilePath], d)
	}
	paths := make([]string, 0, len(byFile))
	for p := range byFile {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, byFile
}

// Format renders diagnostics back to the paren grammar, one per line.
func Format(diags []Diagnostic) string {
	var b strings.Builder
	for _, d := range diags {
		b.WriteString(d.FilePath)
		b.WriteString("(")
		b.WriteString(strconv.Itoa(d.Line))
		b.WriteString(",")
		b.WriteString(strconv.Itoa(d.Column))
		b.WriteString("): error ")
		b.WriteString(d.Code)
		b.WriteString(": ")
		b.WriteString(d.Message)
		b.WriteString("\n")
	}
	return b.String()
}
