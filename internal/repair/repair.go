package repair

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"strings"

	"forgeline/internal/diag"
	"forgeline/internal/llm"
	"forgeline/internal/staged"
)

/*
Package repair validates a staged tree by compiling it and repairs what it
can before giving up.

State machine per cycle:

	Check -> clean? done
	      -> DeterministicFix fired? recheck
	      -> AIFix per offending file, rechecking after each file
	GiveUp after MaxCycles full cycles; remaining diagnostics are the
	caller's problem (the build gate must not run).
*/

// Compiler invokes the project's compiler in diagnose-only mode and
// returns its raw stdout. Clean output parses to zero diagnostics.
type Compiler interface {
	Check(ctx context.Context, files *staged.FileSet) (string, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, files *staged.FileSet) (string, error)

func (f CompilerFunc) Check(ctx context.Context, files *staged.FileSet) (string, error) {
	return f(ctx, files)
}

// Result reports one ValidateAndRepair run.
type Result struct {
	OK        bool
	Remaining []diag.Diagnostic
	Checks    int // compiler invocations
	DetFixes  int // deterministic rule applications
	AIFixes   int // accepted AI file rewrites
}

type Runner struct {
	Compiler  Compiler
	Client    llm.Client
	Rules     []diag.Rule
	MaxCycles int
	System    string
	// MinFileLen guards against the provider returning commentary
	// instead of code.
	MinFileLen int
}

const defaultMinFileLen = 40

// ValidateAndRepair compiles files, repairs diagnostics in place, and
// reports whether the tree ended up clean. Running it on an already-clean
// tree performs exactly one Check and no fixes.
func (r *Runner) ValidateAndRepair(ctx context.Context, files *staged.FileSet) (*Result, error) {
	maxCycles := r.MaxCycles
	if maxCycles < 1 {
		maxCycles = 5
	}
	rules := r.Rules
	if rules == nil {
		rules = diag.DefaultRules()
	}
	minLen := r.MinFileLen
	if minLen <= 0 {
		minLen = defaultMinFileLen
	}

	res := &Result{}
	diags, err := r.check(ctx, files, res)
	if err != nil {
		return nil, err
	}
	if len(diags) == 0 {
		res.OK = true
		return res, nil
	}

	for cycle := 0; cycle < maxCycles; cycle++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if r.applyDeterministic(rules, diags, files, res) {
			diags, err = r.check(ctx, files, res)
			if err != nil {
				return nil, err
			}
			if len(diags) == 0 {
				res.OK = true
				return res, nil
			}
			continue
		}

		diags, err = r.aiFix(ctx, files, diags, minLen, res)
		if err != nil {
			return nil, err
		}
		if len(diags) == 0 {
			res.OK = true
			return res, nil
		}
	}

	res.Remaining = diags
	return res, nil
}

func (r *Runner) check(ctx context.Context, files *staged.FileSet, res *Result) ([]diag.Diagnostic, error) {
	out, err := r.Compiler.Check(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("compiler check: %w", err)
	}
	res.Checks++
	return diag.Parse(out), nil
}

// applyDeterministic runs every matching rule over the diagnostic set and
// reports whether anything fired.
func (r *Runner) applyDeterministic(rules []diag.Rule, diags []diag.Diagnostic, files *staged.FileSet, res *Result) bool {
	fired := false
	for _, d := range diags {
		for _, rule := range rules {
			if !rule.Applies(d) {
				continue
			}
			if rule.Apply(d, files) {
				log.Printf("repair: rule %s fixed %s(%d,%d) %s", rule.Name(), d.FilePath, d.Line, d.Column, d.Code)
				res.DetFixes++
				fired = true
				break
			}
		}
	}
	return fired
}

// aiFix escalates unresolved diagnostics to per-file AI repair. The
// compiler is re-run after every accepted file fix so later fixes see the
// updated error set.
func (r *Runner) aiFix(ctx context.Context, files *staged.FileSet, diags []diag.Diagnostic, minLen int, res *Result) ([]diag.Diagnostic, error) {
	paths, byFile := diag.GroupByFile(diags)
	for _, p := range paths {
		fileDiags := byFile[p]
		if len(fileDiags) == 0 {
			continue
		}
		fixed, err := r.aiFixFile(ctx, files, p, fileDiags, minLen)
		if err != nil {
			log.Printf("repair: ai fix for %s failed: %v", p, err)
		}
		patched := r.patchMissingExports(p, fileDiags, files)
		if !fixed && !patched {
			continue
		}
		if fixed {
			res.AIFixes++
		}
		next, err := r.check(ctx, files, res)
		if err != nil {
			return nil, err
		}
		if len(next) == 0 {
			return nil, nil
		}
		diags = next
		_, byFile = diag.GroupByFile(diags)
		// Stay on the precomputed path order; files fixed meanwhile
		// simply have no remaining diagnostics.
	}
	return diags, nil
}

// aiFixFile asks the generation client for a complete corrected file. The
// request carries the file, every project file it imports, and the
// literal diagnostic text.
func (r *Runner) aiFixFile(ctx context.Context, files *staged.FileSet, path string, fileDiags []diag.Diagnostic, minLen int) (bool, error) {
	if r.Client == nil {
		return false, nil
	}
	content, ok := files.Get(path)
	if !ok {
		return false, nil
	}
	contextFiles := []llm.File{{Path: path, Content: content}}
	for _, imp := range diag.ImportedFiles(files, path) {
		c, _ := files.Get(imp)
		contextFiles = append(contextFiles, llm.File{Path: imp, Content: c})
	}
	req := llm.Request{
		System: r.System,
		Instruction: fmt.Sprintf(
			"Fix the compile errors in %s and return the complete corrected file.\n\n[DIAGNOSTICS]\n%s",
			path, diag.Format(fileDiags)),
		ContextFiles: contextFiles,
	}
	resp, err := r.Client.Generate(ctx, req)
	if err != nil {
		return false, err
	}
	fr, ok := resp.(llm.FilesResponse)
	if !ok {
		return false, fmt.Errorf("unexpected %T response", resp)
	}
	fixed := ""
	for _, f := range fr.Files {
		if f.Path == path {
			fixed = f.Content
			break
		}
	}
	if fixed == "" && len(fr.Files) > 0 {
		fixed = fr.Files[0].Content
	}
	if !acceptableFix(fixed, minLen) {
		return false, fmt.Errorf("rejected fix for %s: no recognizable code", path)
	}
	files.Put(path, fixed)
	return true, nil
}

// acceptableFix guards against commentary: the response must look like a
// module (import/export syntax) and exceed a minimum length.
func acceptableFix(content string, minLen int) bool {
	if len(strings.TrimSpace(content)) < minLen {
		return false
	}
	return strings.Contains(content, "import ") || strings.Contains(content, "export ")
}

var reMissingMember = regexp.MustCompile(`Module '"?([^'"]+)"?' has no exported member '(\w+)'`)

// patchMissingExports handles the one case where repair touches a file
// other than the diagnostic's own: the importing side cannot be fixed
// because the source file declares the symbol but never exports it.
func (r *Runner) patchMissingExports(importing string, fileDiags []diag.Diagnostic, files *staged.FileSet) bool {
	patched := false
	for _, d := range fileDiags {
		if d.Code != "TS2305" && d.Code != "TS2614" {
			continue
		}
		m := reMissingMember.FindStringSubmatch(d.Message)
		if m == nil {
			continue
		}
		spec, symbol := m[1], m[2]
		src, ok := diag.ResolveImport(files, importing, spec)
		if !ok {
			continue
		}
		content, _ := files.Get(src)
		if !diag.DeclaresSymbol(content, symbol) {
			continue
		}
		if fixedContent, changed := diag.AddExport(content, symbol); changed {
			log.Printf("repair: exported %s from %s for %s", symbol, src, importing)
			files.Put(src, fixedContent)
			patched = true
		}
	}
	return patched
}
