// Package genai provides the dual-backend generator used by the response
// generation step: every configured backend is invoked concurrently and the
// step waits for all of them before selecting one result.
package genai

import (
	"context"
	"log/slog"
	"sync"
)

// Backend is one named inference backend inside a MultiGenerator.
type Backend struct {
	Name      string
	Generator Generator
}

// Selector chooses which successful candidate is shown to the user. The
// candidates map is keyed by backend name; order lists backends in
// registration order. Selectors are only called with at least one candidate.
type Selector func(candidates map[string]string, order []string) string

// FirstPreferring returns a selector that picks the named backend's result
// when it succeeded, falling back to registration order otherwise.
func FirstPreferring(preferred string) Selector {
	return func(candidates map[string]string, order []string) string {
		if text, ok := candidates[preferred]; ok {
			return text
		}
		for _, name := range order {
			if text, ok := candidates[name]; ok {
				return text
			}
		}
		return ""
	}
}

// MultiGenerator fans one request out to all backends. It does not race to
// first: all calls are awaited, a failed backend degrades the result to
// whichever succeeded, and a configured fallback covers total failure.
type MultiGenerator struct {
	backends []Backend
	selector Selector
	fallback string
}

// NewMultiGenerator creates a fan-out generator. A nil selector defaults to
// registration order preference.
func NewMultiGenerator(backends []Backend, selector Selector, fallback string) *MultiGenerator {
	if selector == nil {
		selector = FirstPreferring("")
	}
	return &MultiGenerator{backends: backends, selector: selector, fallback: fallback}
}

// GenerateAll invokes every backend concurrently and returns the selected
// text plus all successful candidates. When every backend fails, the
// configured fallback text is returned with ok=false.
func (m *MultiGenerator) GenerateAll(ctx context.Context, req Request) (selected string, candidates map[string]string, ok bool) {
	type outcome struct {
		name string
		text string
		err  error
	}

	results := make([]outcome, len(m.backends))
	var wg sync.WaitGroup
	for i, b := range m.backends {
		wg.Add(1)
		go func(i int, b Backend) {
			defer wg.Done()
			text, err := b.Generator.Generate(ctx, req)
			results[i] = outcome{name: b.Name, text: text, err: err}
		}(i, b)
	}
	wg.Wait()

	candidates = make(map[string]string)
	order := make([]string, 0, len(m.backends))
	for _, r := range results {
		order = append(order, r.name)
		if r.err != nil {
			slog.Warn("MultiGenerator.GenerateAll: backend failed", "backend", r.name, "error", r.err)
			continue
		}
		if r.text == "" {
			slog.Warn("MultiGenerator.GenerateAll: backend returned empty text", "backend", r.name)
			continue
		}
		candidates[r.name] = r.text
	}

	if len(candidates) == 0 {
		slog.Error("MultiGenerator.GenerateAll: all backends failed, using fallback")
		return m.fallback, candidates, false
	}
	slog.Debug("MultiGenerator.GenerateAll: completed", "succeeded", len(candidates), "backends", len(m.backends))
	return m.selector(candidates, order), candidates, true
}
