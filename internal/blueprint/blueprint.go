package blueprint

import (
	"fmt"
	"sort"
	"strings"
)

/*
Package blueprint models the planned shape of one generated project.

A blueprint is produced by an external planner and is read-only here.
Validate enforces the two structural invariants before any generation
work starts: declared dependencies must exist, and the dependency
relation must be acyclic.
*/

// Section is one region of a route with required element counts.
type Section struct {
	Name     string         `json:"name"`
	Elements map[string]int `json:"elements,omitempty"`
}

// Route is one page of the planned application.
type Route struct {
	Path     string    `json:"path"`
	Title    string    `json:"title,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

// Component is one file the generator must produce.
type Component struct {
	Path      string   `json:"path"`
	Purpose   string   `json:"purpose"`
	DependsOn []string `json:"depends_on,omitempty"` // other component paths
}

// Blueprint is the full project description for one generation run.
type Blueprint struct {
	Name       string      `json:"name"`
	Brand      string      `json:"brand,omitempty"` // style/brand directives
	Routes     []Route     `json:"routes"`
	Components []Component `json:"components"`
}

// CyclicDependencyError names the cycle that makes a blueprint unrunnable.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return "blueprint: cyclic dependency: " + strings.Join(e.Cycle, " -> ")
}

// Validate checks structural invariants. It reports the first dangling
// dependency, or a *CyclicDependencyError naming the cycle.
func (b *Blueprint) Validate() error {
	if len(b.Components) == 0 {
		return fmt.Errorf("blueprint: no components")
	}
	known := make(map[string]bool, len(b.Components))
	for _, c := range b.Components {
		if strings.TrimSpace(c.Path) == "" {
			return fmt.Errorf("blueprint: component with empty path")
		}
		if known[c.Path] {
			return fmt.Errorf("blueprint: duplicate component path %s", c.Path)
		}
		known[c.Path] = true
	}
	for _, c := range b.Components {
		for _, d := range c.DependsOn {
			if !known[d] {
				return fmt.Errorf("blueprint: component %s depends on unknown %s", c.Path, d)
			}
		}
	}
	if cycle := findCycle(b.Components); cycle != nil {
		return &CyclicDependencyError{Cycle: cycle}
	}
	return nil
}

// findCycle runs a DFS over component dependencies and returns the first
// cycle found as a path ending where it began, or nil.
func findCycle(components []Component) []string {
	deps := make(map[string][]string, len(components))
	paths := make([]string, 0, len(components))
	for _, c := range components {
		deps[c.Path] = c.DependsOn
		paths = append(paths, c.Path)
	}
	sort.Strings(paths)

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(paths))
	var stack []string

	var visit func(p string) []string
	visit = func(p string) []string {
		color[p] = gray
		stack = append(stack, p)
		for _, d := range deps[p] {
			switch color[d] {
			case white:
				if cyc := visit(d); cyc != nil {
					return cyc
				}
			case gray:
				// Slice the stack from the first occurrence of d.
				for i, s := range stack {
					if s == d {
						cyc := append([]string{}, stack[i:]...)
						return append(cyc, d)
					}
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[p] = black
		return nil
	}
	for _, p := range paths {
		if color[p] == white {
			if cyc := visit(p); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

// Fallback returns the trivial single-page blueprint used when the
// external planner repeatedly fails: one root component, no dependencies.
func Fallback(name string) *Blueprint {
	if strings.TrimSpace(name) == "" {
		name = "untitled"
	}
	return &Blueprint{
		Name:   name,
		Routes: []Route{{Path: "/", Title: name}},
		Components: []Component{{
			Path:    "src/App.tsx",
			Purpose: "single page application shell for " + name,
		}},
	}
}
