package diag

import (
	"strings"
	"testing"

	"forgeline/internal/staged"
)

func TestStateLiteralRuleAddsQuoting(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/App.tsx": "import { useState } from 'react';\nconst [count, setCount] = useState<string>(42);\n",
	})
	d := Diagnostic{
		FilePath: "src/App.tsx", Line: 2, Column: 44, Code: "TS2345",
		Message: "Argument of type 'number' is not assignable to parameter of type 'string'.",
	}
	rule := StateLiteralRule{}
	if !rule.Applies(d) {
		t.Fatal("rule should apply")
	}
	if !rule.Apply(d, files) {
		t.Fatal("rule should fire")
	}
	content, _ := files.Get("src/App.tsx")
	if !strings.Contains(content, `useState<string>("42")`) {
		t.Fatalf("content = %q", content)
	}
	// Only the implicated line changed.
	if !strings.HasPrefix(content, "import { useState } from 'react';\n") {
		t.Fatalf("unrelated line touched: %q", content)
	}
}

func TestStateLiteralRuleStripsQuoting(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/Counter.tsx": `const [n, setN] = useState<number>("7");`,
	})
	d := Diagnostic{
		FilePath: "src/Counter.tsx", Line: 1, Code: "TS2345",
		Message: "Argument of type 'string' is not assignable to parameter of type 'number'.",
	}
	if !(StateLiteralRule{}).Apply(d, files) {
		t.Fatal("rule should fire")
	}
	content, _ := files.Get("src/Counter.tsx")
	if !strings.Contains(content, "useState<number>(7)") {
		t.Fatalf("content = %q", content)
	}
}

func TestStateLiteralRuleFixesDeclaredType(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/Name.tsx": `const [name, setName] = useState<number>("alice");`,
	})
	d := Diagnostic{
		FilePath: "src/Name.tsx", Line: 1, Code: "TS2345",
		Message: "Argument of type 'string' is not assignable to parameter of type 'number'.",
	}
	if !(StateLiteralRule{}).Apply(d, files) {
		t.Fatal("rule should fire")
	}
	content, _ := files.Get("src/Name.tsx")
	if !strings.Contains(content, `useState<string>("alice")`) {
		t.Fatalf("content = %q", content)
	}
}

func TestImportShapeRuleDefaultToNamed(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/App.tsx":    "import Button from './Button';\n",
		"src/Button.tsx": "export const Button = () => null;\n",
	})
	d := Diagnostic{
		FilePath: "src/App.tsx", Line: 1, Code: "TS2613",
		Message: `Module '"./Button"' has no default export.`,
	}
	rule := ImportShapeRule{}
	if !rule.Applies(d) || !rule.Apply(d, files) {
		t.Fatal("rule should apply and fire")
	}
	content, _ := files.Get("src/App.tsx")
	if !strings.Contains(content, "import { Button } from './Button';") {
		t.Fatalf("content = %q", content)
	}
}

func TestImportShapeRuleNamedToDefault(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/App.tsx":    "import { Card } from './Card';\n",
		"src/Card.tsx":   "export default function Card() { return null; }\n",
	})
	d := Diagnostic{
		FilePath: "src/App.tsx", Line: 1, Code: "TS2614",
		Message: `Module '"./Card"' has no exported member 'Card'.`,
	}
	if !(ImportShapeRule{}).Apply(d, files) {
		t.Fatal("rule should fire")
	}
	content, _ := files.Get("src/App.tsx")
	if !strings.Contains(content, "import Card from './Card';") {
		t.Fatalf("content = %q", content)
	}
}

func TestResolveImport(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/components/Button.tsx": "x",
		"src/lib/index.ts":          "y",
		"src/util.ts":               "z",
	})
	tests := []struct {
		from, spec, want string
		ok               bool
	}{
		{"src/App.tsx", "./components/Button", "src/components/Button.tsx", true},
		{"src/App.tsx", "./lib", "src/lib/index.ts", true},
		{"src/components/Button.tsx", "../util", "src/util.ts", true},
		{"src/App.tsx", "@/util", "src/util.ts", true},
		{"src/App.tsx", "react", "", false},
		{"src/App.tsx", "./missing", "", false},
	}
	for _, tt := range tests {
		got, ok := ResolveImport(files, tt.from, tt.spec)
		if ok != tt.ok || got != tt.want {
			t.Fatalf("ResolveImport(%s, %s) = %q, %v; want %q, %v", tt.from, tt.spec, got, ok, tt.want, tt.ok)
		}
	}
}

func TestImportedFiles(t *testing.T) {
	files := staged.FromMap(map[string]string{
		"src/App.tsx":    "import { B } from './B';\nimport C from './C';\nimport 'react';\n",
		"src/B.tsx":      "export const B = 1;",
		"src/C.tsx":      "export default 2;",
	})
	got := ImportedFiles(files, "src/App.tsx")
	if len(got) != 2 || got[0] != "src/B.tsx" || got[1] != "src/C.tsx" {
		t.Fatalf("imports = %v", got)
	}
}

func TestAddExport(t *testing.T) {
	src := "interface Props {\n  label: string;\n}\nconst x = 1;\n"
	out, changed := AddExport(src, "Props")
	if !changed || !strings.Contains(out, "export interface Props") {
		t.Fatalf("out = %q changed = %v", out, changed)
	}
	// Already exported declarations stay untouched.
	if _, changed := AddExport(out, "Props"); changed {
		t.Fatal("must not double-export")
	}
	if !DeclaresSymbol(src, "Props") || DeclaresSymbol(src, "Missing") {
		t.Fatal("DeclaresSymbol misbehaves")
	}
}
