// Command llmcompiler is a thin CLI harness around the compiler core,
// wiring a model.Client, tool registry, planner, TFU, and joinner into an
// orchestrator and running a single query end to end. Grounded on
// cmd/demo/main.go's straight-line wiring idiom (construct components, one
// registration call, one Run call, print the result) generalized from the
// teacher's fixed stub planner/agent shape to the compiler's
// config-selected model backend and built-in tool set, and on
// runtime/agent/cmd's cobra-based command structure for the root/run split.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/tinyagent-go/llmcompiler/runtime/compiler/config"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/joinner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model/anthropic"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/model/openai"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/orchestrator"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/planner"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/run"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/streamch"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/summary"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/telemetry"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tfu"
	"github.com/tinyagent-go/llmcompiler/runtime/compiler/tools"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "llmcompiler",
		Short: "Run natural-language queries through the LLM Compiler core",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")
	root.AddCommand(newRunCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	var sessionID string

	cmd := &cobra.Command{
		Use:   "run [query]",
		Short: "Plan, execute, and join a single query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], sessionID)
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "session identifier to tag this run with")
	return cmd
}

func runQuery(ctx context.Context, query, sessionID string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.NewClueLogger()
	tracer := telemetry.NewClueTracer()

	plannerClient, err := buildModelClient(cfg.Planner)
	if err != nil {
		return fmt.Errorf("llmcompiler: build planner model client: %w", err)
	}
	joinnerClient, err := buildModelClient(cfg.Joinner)
	if err != nil {
		return fmt.Errorf("llmcompiler: build joinner model client: %w", err)
	}

	registry := builtinToolRegistry()

	var limiter *rate.Limiter
	if cfg.PlannerRateLimitPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.PlannerRateLimitPerSecond), 1)
	}

	p := planner.New(plannerClient, registry, planner.PromptOptions{
		CustomInstructions: cfg.CustomInstructions,
	}, nil, limiter, logger, tracer)

	t := tfu.New(registry, tfu.Options{PendingDeadline: cfg.PendingDeadline}, logger, tracer)
	j := joinner.New(joinnerClient, logger, tracer)

	cache := summary.NewCache()
	o := orchestrator.New(p, t, j, cfg.MaxReplans, summary.ResolverFor(cache), logger, tracer)

	runCtx := run.NewContext(sessionID, "", nil)
	ctx = summary.WithCache(ctx, cache)
	fmt.Fprintf(os.Stderr, "run %s starting\n", runCtx.RunID)

	sink := streamch.NewChan(64)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for tok := range sink.C() {
			if errMsg, ok := streamch.IsError(tok); ok {
				fmt.Fprintf(os.Stderr, "\nerror: %s\n", errMsg)
				continue
			}
			fmt.Fprint(os.Stdout, tok)
		}
	}()

	answer, err := o.Run(ctx, query, sink)
	<-done
	if err != nil {
		return fmt.Errorf("llmcompiler: run: %w", err)
	}

	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, "---")
	fmt.Fprintln(os.Stdout, answer)
	return nil
}

// buildModelClient selects and constructs the model.Client adapter for cfg.
func buildModelClient(cfg config.ModelConfig) (model.Client, error) {
	switch cfg.Provider {
	case config.ProviderAnthropic:
		opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		ac := sdk.NewClient(opts...)
		return anthropic.New(&ac.Messages, anthropic.Options{
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	case config.ProviderOpenAI:
		return openai.New(openai.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	default:
		return nil, fmt.Errorf("llmcompiler: unsupported provider %q for this command (bedrock requires a pre-built AWS runtime client; construct it yourself and call the compiler packages as a library)", cfg.Provider)
	}
}

// builtinToolRegistry registers a minimal, dependency-free tool set so the
// CLI is runnable without any external wiring beyond a model API key.
// Production callers are expected to build their own registry: the core
// never ships an opinionated tool set (spec ss3 "tools are caller-supplied").
func builtinToolRegistry() *tools.Registry {
	r := tools.NewRegistry()
	r.MustRegister(tools.Spec{
		Name:        "current_time",
		Description: "current_time() -> returns the current UTC time in RFC3339 format. Takes no arguments.",
		Arity:       0,
		Fn: func(_ context.Context, _ []any) (string, error) {
			return time.Now().UTC().Format(time.RFC3339), nil
		},
	})
	r.MustRegister(tools.Spec{
		Name:        "echo",
		Description: "echo(text: string) -> returns text unchanged. Useful for threading a prior observation into the final answer verbatim.",
		Arity:       1,
		Fn: func(_ context.Context, args []any) (string, error) {
			if len(args) != 1 {
				return "", fmt.Errorf("echo: expected 1 argument, got %d", len(args))
			}
			text, ok := args[0].(string)
			if !ok {
				return "", fmt.Errorf("echo: argument must be a string")
			}
			return text, nil
		},
	})
	return r
}
