// Command everything demonstrates the ad-hoc facade: symbols are generated
// on first call from their name and argument types, cached by fingerprint,
// and reused from cache on later runs.
//
// It needs OPENAI_API_KEY or ANTHROPIC_API_KEY in the environment.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"goa.design/clue/log"

	"github.com/anyfn/anyfn"
	"github.com/anyfn/anyfn/features/synth/anthropic"
	"github.com/anyfn/anyfn/features/synth/middleware"
	"github.com/anyfn/anyfn/features/synth/openai"
	"github.com/anyfn/anyfn/runtime/gen"
)

func main() {
	var (
		modelF    = flag.String("model", "", "Model identifier (overrides the provider default)")
		cacheDirF = flag.String("cache-dir", ".everything", "Artifact cache directory")
		dbgF      = flag.Bool("debug", false, "Enable debug logs")
	)
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	synth, err := newSynthesizer(*modelF)
	if err != nil {
		log.Fatalf(ctx, err, "no synthesis backend")
	}
	// Keep bursts of first-time symbols under the provider request budget.
	synth, err = middleware.RateLimited(synth, 2, 4)
	if err != nil {
		log.Fatalf(ctx, err, "rate limiter")
	}

	e, err := anyfn.NewEverything(
		anyfn.WithSynthesizer(synth),
		anyfn.WithCacheDir(*cacheDirF),
	)
	if err != nil {
		log.Fatalf(ctx, err, "facade")
	}

	// First call synthesizes and caches; the second reuses the artifact.
	for _, n := range []int{4, 7} {
		v, err := e.Call(ctx, "square", n)
		if err != nil {
			log.Fatalf(ctx, err, "square(%d)", n)
		}
		log.Print(ctx, log.KV{K: "square", V: n}, log.KV{K: "result", V: v})
	}

	v, err := e.Call(ctx, "fibonacci", 10)
	if err != nil {
		log.Fatalf(ctx, err, "fibonacci(10)")
	}
	log.Print(ctx, log.KV{K: "fibonacci", V: 10}, log.KV{K: "result", V: v})

	ratio, err := e.Const(ctx, "golden_ratio")
	if err != nil {
		log.Fatalf(ctx, err, "golden_ratio")
	}
	log.Print(ctx, log.KV{K: "golden_ratio", V: ratio})

	for _, entry := range e.GetContext() {
		log.Print(ctx, log.KV{K: "context", V: entry.Prompt()})
	}
}

func newSynthesizer(model string) (gen.Synthesizer, error) {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if model == "" {
			model = "gpt-4.1-nano"
		}
		return openai.NewFromAPIKey(key, openai.Options{Model: model})
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		if model == "" {
			model = "claude-sonnet-4-5"
		}
		return anthropic.NewFromAPIKey(key, anthropic.Options{Model: model})
	}
	return nil, errors.New("set OPENAI_API_KEY or ANTHROPIC_API_KEY")
}
