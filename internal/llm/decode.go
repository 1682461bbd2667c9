package llm

import (
	"bytes"
	"encoding/json"
	"fmt"

	"forgeline/internal/jsonx"
)

// DecodeResponse turns raw provider output into the Response union.
//
// Strict pass: the extracted JSON must unmarshal into exactly one envelope
// with no unknown fields. Lenient pass: pick the union arm by which key is
// present, ignoring extras the provider tacked on.
func DecodeResponse(text string) (Response, error) {
	raw, err := jsonx.Extract(text)
	if err != nil {
		return nil, err
	}
	if resp, ok := decodeStrict(raw); ok {
		return resp, nil
	}
	return decodeLenient(raw)
}

func decodeStrict(raw json.RawMessage) (Response, bool) {
	try := func(v any) bool {
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		return dec.Decode(v) == nil
	}
	var fr FilesResponse
	if try(&fr) && len(fr.Files) > 0 {
		return fr, true
	}
	var ar ActionsResponse
	if try(&ar) && len(ar.Actions) > 0 {
		return ar, true
	}
	var tr TextResponse
	if try(&tr) && tr.Text != "" {
		return tr, true
	}
	return nil, false
}

func decodeLenient(raw json.RawMessage) (Response, error) {
	var probe struct {
		Files   []File   `json:"files"`
		Actions []Action `json:"actions"`
		Text    string   `json:"text"`
		Reply   string   `json:"reply"`
		Summary string   `json:"summary"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	switch {
	case len(probe.Files) > 0:
		return FilesResponse{Files: probe.Files, Summary: probe.Summary}, nil
	case len(probe.Actions) > 0:
		return ActionsResponse{Actions: probe.Actions}, nil
	case probe.Text != "":
		return TextResponse{Text: probe.Text}, nil
	case probe.Reply != "":
		return TextResponse{Text: probe.Reply}, nil
	}
	// A well-formed object with an empty actions list is a valid
	// "nothing further to do" signal, not an error.
	if probe.Actions != nil {
		return ActionsResponse{}, nil
	}
	return nil, fmt.Errorf("decode response: no recognizable shape")
}
