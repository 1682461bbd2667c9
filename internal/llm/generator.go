package llm

import (
	"context"

	"forgeline/internal/llmclient"
)

// Generator adapts a low-level provider client to the Client interface.
// The provider is expected to answer with a JSON object in one of the
// union shapes; DecodeResponse tolerates fences and prose around it.
type Generator struct {
	next llmclient.LLMClient
}

func NewGenerator(next llmclient.LLMClient) *Generator {
	return &Generator{next: next}
}

func (g *Generator) Name() string { return g.next.Name() }
func (g *Generator) Close() error { return g.next.Close() }

func (g *Generator) Generate(ctx context.Context, req Request) (Response, error) {
	input := map[string]any{
		"instruction": req.Instruction,
	}
	if len(req.ContextFiles) > 0 {
		input["context_files"] = req.ContextFiles
	}
	if len(req.Images) > 0 {
		input["image_count"] = len(req.Images)
	}
	raw, err := g.next.GenerateJSON(ctx, req.System, input)
	if err != nil {
		return nil, err
	}
	return DecodeResponse(string(raw))
}
