// Command guardrail exercises the tool registry, the route normalizer, the schema
// validator and the full tool-aware flow from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skosovsky/guardrail"
	"github.com/skosovsky/guardrail/adapters/anthropic"
	"github.com/skosovsky/guardrail/ext/auditredis"
	"github.com/skosovsky/guardrail/internal/config"
	"github.com/skosovsky/guardrail/toolkits/calculator"
	"github.com/skosovsky/guardrail/toolkits/search"
)

// ModelFactory creates the model used by the ask command (allows mocking in tests).
type ModelFactory func(cfg *config.Config) (guardrail.ModelFunc, error)

// DefaultModelFactory creates an Anthropic Messages API model.
func DefaultModelFactory(cfg *config.Config) (guardrail.ModelFunc, error) {
	m, err := anthropic.New(anthropicConfig(cfg))
	if err != nil {
		return nil, err
	}
	return m.ModelFunc(), nil
}

// anthropicConfig maps the llm section of the config file onto the adapter.
func anthropicConfig(cfg *config.Config) anthropic.Config {
	return anthropic.Config{
		Model:       cfg.LLM.Model,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
		System:      cfg.LLM.System,
		BaseURL:     cfg.LLM.BaseURL,
	}
}

// Options carries injectable dependencies of the CLI.
type Options struct {
	ModelFactory ModelFactory
	Stdin        io.Reader
	Stdout       io.Writer
	Stderr       io.Writer
}

type app struct {
	opts       Options
	configPath string
	shape      string
}

func main() {
	if err := newRootCmd(Options{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(opts Options) *cobra.Command {
	if opts.ModelFactory == nil {
		opts.ModelFactory = DefaultModelFactory
	}
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	a := &app{opts: opts}

	root := &cobra.Command{
		Use:           "guardrail",
		Short:         "guardrail - validated, audited LLM output with deterministic tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(opts.Stdin)
	root.SetOut(opts.Stdout)
	root.SetErr(opts.Stderr)
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to YAML config file")

	validateCmd := &cobra.Command{
		Use:   "validate [file|-]",
		Short: "Validate JSON model output against a shape (route or answer)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runValidate,
	}
	validateCmd.Flags().StringVar(&a.shape, "shape", "answer", "Shape to validate against: route or answer")

	root.AddCommand(
		&cobra.Command{
			Use:   "tools",
			Short: "Print the registered tool specs as JSON",
			Args:  cobra.NoArgs,
			RunE:  a.runTools,
		},
		&cobra.Command{
			Use:   "prompts [id]",
			Short: "Print prompt metadata, or the text of one prompt",
			Args:  cobra.MaximumNArgs(1),
			RunE:  a.runPrompts,
		},
		&cobra.Command{
			Use:   "route <json>",
			Short: "Normalize a routing decision and execute the selected tool",
			Args:  cobra.ExactArgs(1),
			RunE:  a.runRoute,
		},
		&cobra.Command{
			Use:   "calc <expression>",
			Short: "Evaluate an arithmetic expression",
			Args:  cobra.MinimumNArgs(1),
			RunE:  a.runCalc,
		},
		&cobra.Command{
			Use:   "search <query>",
			Short: "Search the local knowledge base",
			Args:  cobra.MinimumNArgs(1),
			RunE:  a.runSearch,
		},
		validateCmd,
		&cobra.Command{
			Use:   "ask <question>",
			Short: "Answer a question through the tool-aware flow",
			Args:  cobra.MinimumNArgs(1),
			RunE:  a.runAsk,
		},
	)
	return root
}

func (a *app) loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, cfg.NewLogger(a.opts.Stderr), nil
}

func (a *app) newRouter(cfg *config.Config, logger *slog.Logger) (*guardrail.Router, error) {
	reg, err := guardrail.NewBuiltinRegistry(guardrail.WithDefaultTimeout(cfg.Tools.Timeout))
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	reg.Use(guardrail.WithLogging(logger))
	return guardrail.NewRouter(reg, logger), nil
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.opts.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) runTools(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := a.loadConfig()
	if err != nil {
		return err
	}
	router, err := a.newRouter(cfg, logger)
	if err != nil {
		return err
	}
	return a.printJSON(router.Registry().Specs())
}

func (a *app) runPrompts(_ *cobra.Command, args []string) error {
	prompts, err := guardrail.DefaultPromptRegistry()
	if err != nil {
		return err
	}
	if len(args) == 0 {
		return a.printJSON(prompts.Metadata())
	}
	p, err := prompts.Get(args[0])
	if err != nil {
		return fmt.Errorf("%w (known: %s)", err, strings.Join(prompts.IDs(), ", "))
	}
	_, err = io.WriteString(a.opts.Stdout, p.Text)
	return err
}

func (a *app) runRoute(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.loadConfig()
	if err != nil {
		return err
	}
	router, err := a.newRouter(cfg, logger)
	if err != nil {
		return err
	}
	route := guardrail.NormalizeRouteJSON(args[0])
	return a.printJSON(struct {
		Route  guardrail.RouteDecision `json:"route"`
		Result guardrail.ToolResult    `json:"result"`
	}{route, router.Execute(cmd.Context(), route)})
}

func (a *app) runCalc(_ *cobra.Command, args []string) error {
	v, err := calculator.Calculate(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return a.printJSON(calculator.Output{Result: v})
}

func (a *app) runSearch(_ *cobra.Command, args []string) error {
	return a.printJSON(search.Output{Results: search.Search(strings.Join(args, " "))})
}

func (a *app) runValidate(_ *cobra.Command, args []string) error {
	var r io.Reader = a.opts.Stdin
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	switch a.shape {
	case "route":
		v, err := guardrail.ValidateToolRoute(string(raw))
		if err != nil {
			return err
		}
		return a.printJSON(v)
	case "answer":
		v, err := guardrail.ValidateToolAnswer(string(raw))
		if err != nil {
			return err
		}
		return a.printJSON(v)
	default:
		return fmt.Errorf("unknown shape %q (want route or answer)", a.shape)
	}
}

func (a *app) runAsk(cmd *cobra.Command, args []string) error {
	cfg, logger, err := a.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	model, err := a.opts.ModelFactory(cfg)
	if err != nil {
		return fmt.Errorf("create model: %w", err)
	}
	router, err := a.newRouter(cfg, logger)
	if err != nil {
		return err
	}
	sink, closeSink, err := newSink(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeSink()

	flow, err := guardrail.NewFlow(model, router)
	if err != nil {
		return err
	}
	flow.Sink = sink
	flow.Logger = logger
	flow.Config = guardrail.RetryConfig{
		MaxRetries:     *cfg.Retry.MaxRetries,
		LogDir:         cfg.Audit.LogDir,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}
	flow.LogContext.Model = cfg.LLM.Model
	flow.LogContext.Temperature = cfg.LLM.Temperature

	res, err := flow.Ask(ctx, strings.Join(args, " "))
	if err != nil {
		var rex *guardrail.RetryExhaustedError
		if errors.As(err, &rex) {
			return fmt.Errorf("no valid answer after %d attempt(s): %w", rex.Attempts, err)
		}
		return err
	}
	return a.printJSON(res.Answer)
}

// newSink returns the file sink, fanned out to Redis when an address is configured.
func newSink(ctx context.Context, cfg *config.Config) (guardrail.Sink, func(), error) {
	file := guardrail.NewFileSink(cfg.Audit.LogDir)
	if cfg.Audit.RedisAddr == "" {
		return file, func() {}, nil
	}
	rs, err := auditredis.New(ctx, auditredis.Config{
		Address: cfg.Audit.RedisAddr,
		Stream:  cfg.Audit.RedisStream,
	})
	if err != nil {
		return nil, nil, err
	}
	return guardrail.MultiSink{file, rs}, func() { _ = rs.Close() }, nil
}
