package convo

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"forgeline/internal/llm"
	"forgeline/internal/llmclient"
	"forgeline/internal/staged"
)

/*
Package convo drives incremental edits on an existing project.

Each iteration asks the generation client, given the running conversation
and a context-narrowed file set, for either a natural-language reply or a
batch of file actions. Actions are applied, their results are appended to
the conversation, and the client is asked again. The loop ends on a reply,
an empty action batch, or the iteration cap.
*/

// Message is one conversation entry.
type Message struct {
	Role    string `json:"role"` // user | assistant | tool
	Content string `json:"content"`
}

// State is the running conversation for one project.
type State struct {
	Messages []Message `json:"messages"`
}

func (s *State) append(role, content string) {
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
}

// StepResult reports one Step invocation.
type StepResult struct {
	Response string
	Done     bool
	Applied  int // total actions applied across iterations
	// AbnormalStop carries the provider's stop reason when the loop ended
	// on one after partial progress had already been made.
	AbnormalStop string
}

type Loop struct {
	Client        llm.Client
	MaxIterations int
	System        string
	// Narrow, when set, selects which paths are serialized as context
	// for a request. Actions still apply to the full set. Nil or an
	// empty selection sends everything.
	Narrow func(files *staged.FileSet, request string) []string
}

// Step runs the propose/apply/verify loop for one user request, mutating
// files in place. It guarantees termination via MaxIterations even
// against a provider that never stops proposing actions.
func (l *Loop) Step(ctx context.Context, state *State, files *staged.FileSet, userRequest string) (*StepResult, error) {
	maxIters := l.MaxIterations
	if maxIters < 1 {
		maxIters = 8
	}
	state.append("user", userRequest)

	res := &StepResult{}
	instruction := userRequest
	softened := false

	for iter := 0; iter < maxIters; iter++ {
		resp, err := l.call(ctx, state, files, instruction)
		if err != nil {
			if se, ok := abnormalStop(err); ok {
				if res.Applied == 0 && !softened {
					// Retry once with a shortened, softened request.
					softened = true
					instruction = softenRequest(userRequest)
					continue
				}
				if res.Applied > 0 {
					// Keep partial progress instead of discarding it.
					res.Done = true
					res.AbnormalStop = se
					res.Response = fmt.Sprintf("stopped early (%s) after applying %d change(s)", se, res.Applied)
					state.append("assistant", res.Response)
					return res, nil
				}
				return nil, err
			}
			return nil, err
		}

		switch r := resp.(type) {
		case llm.TextResponse:
			res.Done = true
			res.Response = r.Text
			state.append("assistant", r.Text)
			return res, nil
		case llm.FilesResponse:
			// Whole-file proposals are valid in this mode too; treat each
			// as a write action.
			for _, f := range r.Files {
				files.Put(f.Path, f.Content)
				res.Applied++
			}
			state.append("tool", fmt.Sprintf("wrote %d file(s)", len(r.Files)))
			if r.Summary != "" {
				res.Response = r.Summary
			}
		case llm.ActionsResponse:
			actions := dedupeActions(r.Actions)
			if len(actions) == 0 {
				res.Done = true
				if res.Response == "" {
					res.Response = "no further changes"
				}
				state.append("assistant", res.Response)
				return res, nil
			}
			var results []string
			for _, a := range actions {
				outcome := applyAction(files, a)
				results = append(results, outcome)
				if !strings.HasPrefix(outcome, "error") {
					res.Applied++
				}
			}
			state.append("tool", strings.Join(results, "\n"))
		default:
			return nil, fmt.Errorf("convo: unexpected response %T", resp)
		}
	}

	// Iteration cap reached with actions still flowing.
	res.Done = true
	if res.Response == "" {
		res.Response = fmt.Sprintf("stopped after %d iterations with %d change(s) applied", maxIters, res.Applied)
	}
	state.append("assistant", res.Response)
	return res, nil
}

func (l *Loop) call(ctx context.Context, state *State, files *staged.FileSet, instruction string) (llm.Response, error) {
	paths := files.Paths()
	if l.Narrow != nil {
		if np := l.Narrow(files, instruction); len(np) > 0 {
			paths = np
		}
	}
	var contextFiles []llm.File
	for _, p := range paths {
		c, ok := files.Get(p)
		if !ok {
			continue
		}
		contextFiles = append(contextFiles, llm.File{Path: p, Content: c})
	}
	var history strings.Builder
	for _, m := range state.Messages {
		fmt.Fprintf(&history, "[%s] %s\n", m.Role, m.Content)
	}
	return l.Client.Generate(ctx, llm.Request{
		System:       l.System,
		Instruction:  instruction + "\n\n[CONVERSATION]\n" + history.String(),
		ContextFiles: contextFiles,
	})
}

// applyAction executes one action against the staged set and describes
// the outcome for the conversation log.
func applyAction(files *staged.FileSet, a llm.Action) string {
	switch a.Op {
	case llm.ActionWrite:
		files.Put(a.Path, a.Content)
		return "wrote " + a.Path
	case llm.ActionReplace:
		content, ok := files.Get(a.Path)
		if !ok {
			return "error: replace target " + a.Path + " does not exist"
		}
		if a.Find == "" || !strings.Contains(content, a.Find) {
			return "error: region not found in " + a.Path
		}
		files.Put(a.Path, strings.Replace(content, a.Find, a.Content, 1))
		return "replaced region in " + a.Path
	case llm.ActionDelete:
		if _, ok := files.Get(a.Path); !ok {
			return "error: delete target " + a.Path + " does not exist"
		}
		files.Delete(a.Path)
		return "deleted " + a.Path
	case llm.ActionRename:
		if !files.Rename(a.Path, a.To) {
			return "error: rename source " + a.Path + " does not exist"
		}
		return "renamed " + a.Path + " to " + a.To
	default:
		return "error: unknown op " + a.Op
	}
}

// dedupeActions drops actions re-emitted verbatim within one batch.
// Providers repeat themselves; re-applying is wasted work, not an error.
func dedupeActions(actions []llm.Action) []llm.Action {
	seen := make(map[string]bool, len(actions))
	out := actions[:0]
	for _, a := range actions {
		key := strings.Join([]string{a.Op, a.Path, a.To, a.Find, a.Content}, "\x00")
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, a)
	}
	return out
}

func softenRequest(req string) string {
	const maxLen = 500
	if len(req) > maxLen {
		req = req[:maxLen]
	}
	return "Apply the smallest safe subset of this request: " + req
}

// abnormalStop extracts the provider stop reason when err is one.
func abnormalStop(err error) (string, bool) {
	var se *llmclient.StopError
	if errors.As(err, &se) {
		return se.Reason, true
	}
	return "", false
}
