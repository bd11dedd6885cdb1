// Command batch demonstrates the two-phase facade: stubs declared in a YAML
// manifest are registered up front and generated together in dependency
// order, so each symbol sees its dependencies in context.
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
	"github.com/anyfn/anyfn/features/synth/openai"
	"github.com/anyfn/anyfn/runtime/gen"
)

func main() {
	var (
		manifestF = flag.String("manifest", "stubs.yaml", "Stub manifest file")
		modelF    = flag.String("model", "", "Model identifier (overrides the provider default)")
		cacheDirF = flag.String("cache-dir", ".anything", "Artifact cache directory")
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
	l, err := anyfn.NewLazy(
		anyfn.WithSynthesizer(synth),
		anyfn.WithCacheDir(*cacheDirF),
	)
	if err != nil {
		log.Fatalf(ctx, err, "facade")
	}

	if err := l.RegisterManifest(*manifestF); err != nil {
		log.Fatalf(ctx, err, "manifest %s", *manifestF)
	}
	if err := l.GenerateAll(ctx); err != nil {
		log.Fatalf(ctx, err, "generation")
	}

	for _, entry := range l.GetContext() {
		log.Print(ctx, log.KV{K: "generated", V: entry.Prompt()})
	}

	square, err := l.Fn("square")
	if err != nil {
		log.Fatalf(ctx, err, "square")
	}
	v, err := square(ctx, 6)
	if err != nil {
		log.Fatalf(ctx, err, "square(6)")
	}
	log.Print(ctx, log.KV{K: "square", V: 6}, log.KV{K: "result", V: v})
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
