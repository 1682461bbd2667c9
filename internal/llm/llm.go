package llm

import (
	"context"
)

// File is one proposed file from the provider.
type File struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// Action is one discrete file mutation proposed by the provider.
type Action struct {
	Op      string `json:"op"` // write | replace | delete | rename
	Path    string `json:"path"`
	To      string `json:"to,omitempty"`      // rename target
	Find    string `json:"find,omitempty"`    // replace: region to substitute
	Content string `json:"content,omitempty"` // write/replace payload
}

const (
	ActionWrite   = "write"
	ActionReplace = "replace"
	ActionDelete  = "delete"
	ActionRename  = "rename"
)

// Request is one structured generation call.
type Request struct {
	System       string // role/system prompt
	Instruction  string // the concrete ask for this call
	ContextFiles []File // narrowed file context
	Images       [][]byte
}

// Response is a tagged union: exactly one of the concrete types below.
type Response interface {
	isResponse()
}

// FilesResponse carries a set of complete proposed files.
type FilesResponse struct {
	Files   []File `json:"files"`
	Summary string `json:"summary,omitempty"`
}

// ActionsResponse carries a batch of discrete file actions.
type ActionsResponse struct {
	Actions []Action `json:"actions"`
}

// TextResponse carries a natural-language reply and no file changes.
type TextResponse struct {
	Text string `json:"text"`
}

func (FilesResponse) isResponse()   {}
func (ActionsResponse) isResponse() {}
func (TextResponse) isResponse()    {}

// Client is the generation capability the orchestrator consumes.
type Client interface {
	Name() string
	Generate(ctx context.Context, req Request) (Response, error)
	Close() error
}
