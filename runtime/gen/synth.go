package gen

import (
	"context"
	"strings"
)

type (
	// Synthesizer is the external capability that turns a request plus
	// accumulated context into candidate source text. Implementations wrap
	// provider SDKs (OpenAI, Anthropic) under features/synth and must be safe
	// for concurrent use. The engine tolerates arbitrary latency and transient
	// failure from this call and never assumes determinism: identical requests
	// may yield different candidate text across calls, which is why results
	// are cached by fingerprint.
	//
	// Errors returned by Synthesize are wrapped by the engine into a
	// SynthesisError; implementations should return the raw provider error.
	Synthesizer interface {
		Synthesize(ctx context.Context, req Request, entries []ContextEntry) (string, error)
	}

	// SynthesizerFunc adapts a function to the Synthesizer interface, mainly
	// for tests and small in-process backends.
	SynthesizerFunc func(ctx context.Context, req Request, entries []ContextEntry) (string, error)
)

// Synthesize calls f.
func (f SynthesizerFunc) Synthesize(ctx context.Context, req Request, entries []ContextEntry) (string, error) {
	return f(ctx, req, entries)
}

// Prompt instructions shared by the provider adapters. Kept here so every
// backend presents the same surface to the model and adapter tests can assert
// on a single source of truth.
const (
	FunctionSystemPrompt = "Generate Go function code based on the function signature and doc comment. " +
		"Return only the function implementation without explanations or example calls."
	ConstantSystemPrompt = "Generate a Go constant declaration based on the constant name. " +
		"Return only the declaration without explanations. Format: const NAME = value"
)

// SystemPrompt returns the instruction matching the request kind.
func SystemPrompt(req Request) string {
	if req.Kind == KindConstant {
		return ConstantSystemPrompt
	}
	return FunctionSystemPrompt
}

// UserPrompt renders the request and its visible context entries into the
// prompt body sent to the model.
func UserPrompt(req Request, entries []ContextEntry) string {
	var b strings.Builder
	if len(entries) > 0 {
		b.WriteString("Context of previously generated symbols:\n")
		for _, e := range entries {
			b.WriteString(e.Prompt())
			b.WriteByte('\n')
		}
		b.WriteByte('\n')
	}
	if req.Kind == KindConstant {
		b.WriteString("Constant name: ")
		b.WriteString(req.Name)
		return b.String()
	}
	b.WriteString("Generate code for:\n")
	b.WriteString(req.Signature())
	if doc := strings.TrimSpace(req.Doc); doc != "" {
		b.WriteString("\nDoc: ")
		b.WriteString(doc)
	}
	return b.String()
}

// CleanFences strips a surrounding Markdown code fence from model output.
// Models routinely wrap code in ```go blocks despite instructions not to.
func CleanFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
