package diag

import (
	"regexp"
	"strings"

	"forgeline/internal/staged"
)

// Rule is one deterministic fix for a mechanically-repairable diagnostic
// class. Rules only touch the line(s) the diagnostic implicates; they
// never rewrite whole files. New rules are additive: register them in
// DefaultRules.
type Rule interface {
	Name() string
	Applies(d Diagnostic) bool
	// Apply attempts the fix in place. It reports whether it changed
	// anything; an untouched file set means the rule did not fire.
	Apply(d Diagnostic, files *staged.FileSet) bool
}

// DefaultRules is the rule table used by the repair loop.
func DefaultRules() []Rule {
	return []Rule{
		StateLiteralRule{},
		ImportShapeRule{},
	}
}

// replaceLine swaps one 1-based line of a staged file.
func replaceLine(files *staged.FileSet, path string, lineNo int, fn func(string) (string, bool)) bool {
	content, ok := files.Get(path)
	if !ok {
		return false
	}
	lines := strings.Split(content, "\n")
	if lineNo < 1 || lineNo > len(lines) {
		return false
	}
	fixed, changed := fn(lines[lineNo-1])
	if !changed {
		return false
	}
	lines[lineNo-1] = fixed
	files.Put(path, strings.Join(lines, "\n"))
	return true
}

// StateLiteralRule fixes primitive-type mismatches on state declarations:
// a numeric literal handed to a string-typed useState gets its declared
// type or quoting adjusted, and vice versa.
type StateLiteralRule struct{}

var (
	reAssignability = regexp.MustCompile(`Type '(\w+)' is not assignable to (?:type|parameter of type) '(\w+)'`)
	reUseState      = regexp.MustCompile(`useState<(\w+)>\(\s*(.*?)\s*\)`)
	reNumeric       = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
	reQuotedNumeric = regexp.MustCompile(`^(['"])(-?\d+(\.\d+)?)['"]$`)
)

func (StateLiteralRule) Name() string { return "state-literal" }

func (StateLiteralRule) Applies(d Diagnostic) bool {
	if d.Code != "TS2322" && d.Code != "TS2345" {
		return false
	}
	return reAssignability.MatchString(d.Message)
}

func (StateLiteralRule) Apply(d Diagnostic, files *staged.FileSet) bool {
	return replaceLine(files, d.FilePath, d.Line, func(line string) (string, bool) {
		m := reUseState.FindStringSubmatchIndex(line)
		if m == nil {
			return line, false
		}
		declared := line[m[2]:m[3]]
		literal := line[m[4]:m[5]]
		switch {
		case declared == "string" && reNumeric.MatchString(literal):
			// Add quoting around the literal.
			return line[:m[4]] + `"` + literal + `"` + line[m[5]:], true
		case declared == "number" && reQuotedNumeric.MatchString(literal):
			// Strip the quoting.
			qm := reQuotedNumeric.FindStringSubmatch(literal)
			return line[:m[4]] + qm[2] + line[m[5]:], true
		case declared == "number" && !reNumeric.MatchString(literal) && strings.HasPrefix(literal, `"`):
			// Non-numeric string literal: the declared type is what is wrong.
			return line[:m[2]] + "string" + line[m[3]:], true
		case declared == "string" && literal == "true" || declared == "string" && literal == "false":
			return line[:m[2]] + "boolean" + line[m[3]:], true
		}
		return line, false
	})
}

// ImportShapeRule rewrites a named import to a default import (or back)
// when the module's declared export shape indicates the opposite
// convention of what the importing line used.
type ImportShapeRule struct{}

var (
	// TS2613: Module '"./Button"' has no default export.
	// TS2614: Module '"./Button"' has no exported member 'Button'. Did you mean to use 'import Button from "./Button"' instead?
	reModuleSpec   = regexp.MustCompile(`Module '"?([^'"]+)"?'`)
	reDefaultImp   = regexp.MustCompile(`^(\s*import\s+)(\w+)(\s+from\s+.+)$`)
	reNamedImp     = regexp.MustCompile(`^(\s*import\s+)\{\s*(\w+)\s*\}(\s+from\s+.+)$`)
	reHasDefault   = regexp.MustCompile(`(?m)^\s*export\s+default\b`)
	reExportedName = regexp.MustCompile(`(?m)^\s*export\s+(?:const|let|var|function|class|interface|type|enum)\s+(\w+)`)
)

func (ImportShapeRule) Name() string { return "import-shape" }

func (ImportShapeRule) Applies(d Diagnostic) bool {
	return d.Code == "TS2613" || d.Code == "TS2614"
}

func (ImportShapeRule) Apply(d Diagnostic, files *staged.FileSet) bool {
	return replaceLine(files, d.FilePath, d.Line, func(line string) (string, bool) {
		spec := ""
		if m := reModuleSpec.FindStringSubmatch(d.Message); m != nil {
			spec = m[1]
		}
		target, resolved := "", false
		if spec != "" {
			target, resolved = ResolveImport(files, d.FilePath, spec)
		}
		switch d.Code {
		case "TS2613": // used default import, module has none
			m := reDefaultImp.FindStringSubmatch(line)
			if m == nil {
				return line, false
			}
			if resolved {
				content, _ := files.Get(target)
				if !namedExportExists(content, m[2]) && reHasDefault.MatchString(content) {
					return line, false
				}
			}
			return m[1] + "{ " + m[2] + " }" + m[3], true
		case "TS2614": // used named import, module exports default
			m := reNamedImp.FindStringSubmatch(line)
			if m == nil {
				return line, false
			}
			if resolved {
				content, _ := files.Get(target)
				if !reHasDefault.MatchString(content) {
					return line, false
				}
			}
			return m[1] + m[2] + m[3], true
		}
		return line, false
	})
}

func namedExportExists(content, name string) bool {
	for _, m := range reExportedName.FindAllStringSubmatch(content, -1) {
		if m[1] == name {
			return true
		}
	}
	return false
}

// DeclaresSymbol reports whether content declares name as an interface,
// type, class, const, let, var, function, or enum without exporting it.
// Used by the repair loop's missing-export patch.
func DeclaresSymbol(content, name string) bool {
	re := regexp.MustCompile(`(?m)^\s*(?:interface|type|class|const|let|var|function|enum)\s+` + regexp.QuoteMeta(name) + `\b`)
	return re.MatchString(content)
}

// AddExport prepends the export keyword to the declaration of name.
// Returns the patched content and whether a change was made.
func AddExport(content, name string) (string, bool) {
	re := regexp.MustCompile(`(?m)^(\s*)((?:interface|type|class|const|let|var|function|enum)\s+` + regexp.QuoteMeta(name) + `\b)`)
	loc := re.FindStringSubmatchIndex(content)
	if loc == nil {
		return content, false
	}
	return content[:loc[4]] + "export " + content[loc[4]:], true
}
