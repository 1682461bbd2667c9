package diag

import (
	"path"
	"strings"

	"forgeline/internal/staged"
)

// extension candidates tried when an import omits one, in resolution order.
var importExts = []string{"", ".ts", ".tsx", ".js", ".jsx"}

// sourceRoots are prefixes tried for bare-ish specifiers aliased to a root.
var sourceRoots = []string{"src", "app"}

// ResolveImport maps an import specifier in fromFile to a path present in
// files. Relative specifiers resolve against the importing file's
// directory; both with and without extension are tried, plus index files.
// Returns false for package imports and unresolvable paths.
func ResolveImport(files *staged.FileSet, fromFile, spec string) (string, bool) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", false
	}
	var bases []string
	switch {
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../"):
		bases = []string{path.Join(path.Dir(fromFile), spec)}
	case strings.HasPrefix(spec, "@/"):
		for _, root := range sourceRoots {
			bases = append(bases, path.Join(root, spec[2:]))
		}
	default:
		return "", false // bare package import
	}
	for _, base := range bases {
		for _, ext := range importExts {
			if _, ok := files.Get(base + ext); ok {
				return base + ext, true
			}
		}
		for _, ext := range importExts[1:] {
			idx := path.Join(base, "index"+ext)
			if _, ok := files.Get(idx); ok {
				return idx, true
			}
		}
	}
	return "", false
}

// ImportedFiles returns every project file fromFile imports, resolved
// through ResolveImport.
func ImportedFiles(files *staged.FileSet, fromFile string) []string {
	content, ok := files.Get(fromFile)
	if !ok {
		return nil
	}
	var out []string
	seen := make(map[string]bool)
	for _, spec := range importSpecs(content) {
		if p, ok := ResolveImport(files, fromFile, spec); ok && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

// importSpecs pulls the module specifier out of each import statement.
func importSpecs(content string) []string {
	var out []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "import ") && !strings.HasPrefix(line, "export ") {
			continue
		}
		from := strings.Index(line, " from ")
		var rest string
		if from >= 0 {
			rest = line[from+len(" from "):]
		} else if strings.HasPrefix(line, "import ") {
			rest = line[len("import "):] // side-effect import
		} else {
			continue
		}
		rest = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(rest), ";"))
		if len(rest) >= 2 && (rest[0] == '\'' || rest[0] == '"') && rest[len(rest)-1] == rest[0] {
			out = append(out, rest[1:len(rest)-1])
		}
	}
	return out
}
