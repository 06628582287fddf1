package genai

import (
	"context"
	"fmt"
	"testing"
)

type stubGenerator struct {
	text string
	err  error
}

func (s *stubGenerator) Generate(ctx context.Context, req Request) (string, error) {
	return s.text, s.err
}

func TestGenerateAllPrefersNamedBackend(t *testing.T) {
	m := NewMultiGenerator([]Backend{
		{Name: "ollama", Generator: &stubGenerator{text: "from ollama"}},
		{Name: "openai", Generator: &stubGenerator{text: "from openai"}},
	}, FirstPreferring("openai"), "fallback")

	selected, candidates, ok := m.GenerateAll(context.Background(), Request{User: "hi"})
	if !ok {
		t.Fatal("expected at least one successful backend")
	}
	if selected != "from openai" {
		t.Errorf("expected preferred backend to win, got %q", selected)
	}
	if len(candidates) != 2 {
		t.Errorf("expected both candidates, got %v", candidates)
	}
}

func TestGenerateAllDegradesOnPartialFailure(t *testing.T) {
	m := NewMultiGenerator([]Backend{
		{Name: "openai", Generator: &stubGenerator{err: fmt.Errorf("quota exceeded")}},
		{Name: "ollama", Generator: &stubGenerator{text: "from ollama"}},
	}, FirstPreferring("openai"), "fallback")

	selected, candidates, ok := m.GenerateAll(context.Background(), Request{User: "hi"})
	if !ok {
		t.Fatal("one surviving backend should keep the call successful")
	}
	if selected != "from ollama" {
		t.Errorf("expected surviving backend's text, got %q", selected)
	}
	if _, present := candidates["openai"]; present {
		t.Error("failed backend must not appear among candidates")
	}
}

func TestGenerateAllFallsBackWhenAllFail(t *testing.T) {
	m := NewMultiGenerator([]Backend{
		{Name: "openai", Generator: &stubGenerator{err: fmt.Errorf("down")}},
		{Name: "ollama", Generator: &stubGenerator{err: fmt.Errorf("down too")}},
	}, nil, "canned fallback")

	selected, candidates, ok := m.GenerateAll(context.Background(), Request{User: "hi"})
	if ok {
		t.Fatal("total failure must report ok=false")
	}
	if selected != "canned fallback" {
		t.Errorf("expected configured fallback text, got %q", selected)
	}
	if len(candidates) != 0 {
		t.Errorf("expected no candidates, got %v", candidates)
	}
}

func TestGenerateAllIgnoresEmptyBackendText(t *testing.T) {
	m := NewMultiGenerator([]Backend{
		{Name: "openai", Generator: &stubGenerator{text: ""}},
		{Name: "ollama", Generator: &stubGenerator{text: "real answer"}},
	}, FirstPreferring("openai"), "fallback")

	selected, _, ok := m.GenerateAll(context.Background(), Request{User: "hi"})
	if !ok || selected != "real answer" {
		t.Errorf("empty text should be treated as a failed backend, got %q (ok=%v)", selected, ok)
	}
}

func TestFirstPreferringFallsBackToRegistrationOrder(t *testing.T) {
	sel := FirstPreferring("missing")
	got := sel(map[string]string{"b": "second", "a": "first"}, []string{"a", "b"})
	if got != "first" {
		t.Errorf("expected registration-order fallback, got %q", got)
	}
}
