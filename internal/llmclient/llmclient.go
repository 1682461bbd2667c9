package llmclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidJSON = errors.New("invalid json from LLM")

// LLMClient is the low-level provider surface. It only covers the API call
// itself; cross-cutting concerns (retry, logging, hooks) are middleware in
// the llm package.
type LLMClient interface {
	Name() string
	GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error)
	Close() error
}

// Embedder turns text into vectors for the context index.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// StopError reports the provider finishing abnormally (safety filter,
// recitation block, token-limit truncation) before producing a usable
// answer. It is a distinct kind from a transport failure: the call itself
// succeeded, the model just refused or ran out of room.
type StopError struct {
	Reason string
}

func (e *StopError) Error() string {
	return fmt.Sprintf("provider stopped abnormally: %s", e.Reason)
}

// IsAbnormalStop reports whether err (anywhere in its chain) is a StopError.
func IsAbnormalStop(err error) bool {
	var se *StopError
	return errors.As(err, &se)
}
