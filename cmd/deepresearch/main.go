// Command deepresearch runs the research server.
//
// Usage:
//
//	deepresearch serve --config config.yaml
//	deepresearch serve --provider anthropic --port 9000
//	deepresearch version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/alecthomas/kong"
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/hupe1980/deepresearch"
	"github.com/hupe1980/deepresearch/config"
	"github.com/hupe1980/deepresearch/logging"
	"github.com/hupe1980/deepresearch/model"
	"github.com/hupe1980/deepresearch/model/anthropic"
	"github.com/hupe1980/deepresearch/model/openai"
	"github.com/hupe1980/deepresearch/search/tavily"
	"github.com/hupe1980/deepresearch/server"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve   ServeCmd   `cmd:"" help:"Start the research server."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	Config string `short:"c" help:"Path to config file." type:"path"`
}

// VersionCmd shows version information.
type VersionCmd struct{}

// Run prints the build version.
func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("deepresearch version %s\n", version)
	return nil
}

// ServeCmd starts the HTTP server.
type ServeCmd struct {
	Provider string `help:"Model provider (openai, anthropic, mock). Overrides config."`
	Port     int    `help:"Listen port. Overrides config." default:"0"`
}

// Run loads configuration, wires the workflow and serves until interrupted.
func (c *ServeCmd) Run(cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	if c.Provider != "" {
		cfg.Model.Provider = c.Provider
		// re-resolve the key since the provider changed after Load
		switch c.Provider {
		case "anthropic":
			cfg.Model.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		default:
			cfg.Model.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Port > 0 {
		cfg.Server.Port = c.Port
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(cfg.Logging.Level),
		Format: cfg.Logging.Format,
		Output: os.Stdout,
	})

	generator, err := buildGenerator(cfg)
	if err != nil {
		return err
	}

	searcher := tavily.NewClient(cfg.Search.APIKey, func(o *tavily.Options) {
		o.SearchDepth = cfg.Search.Depth
	})
	if searcher.StubMode() {
		logger.Warn("TAVILY_API_KEY not set, search runs in stub mode")
	}

	dr := deepresearch.New(func(o *deepresearch.Options) {
		o.Generator = generator
		o.Searcher = searcher
		o.MaxConcurrency = cfg.Research.MaxConcurrency
		o.MaxQueriesPerSubQuestion = cfg.Research.MaxQueriesPerSubQuestion
		o.MaxResultsPerQuery = cfg.Research.MaxResultsPerQuery
		o.Logger = logger
	})

	srv := server.New(dr.Orchestrator(), func(o *server.Options) {
		o.Addr = cfg.Server.Addr()
		o.ChunkSize = cfg.Server.ChunkSize
		o.ShutdownTimeout = cfg.Server.ShutdownTimeout
		o.Logger = logger
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return srv.Start(ctx)
}

func buildGenerator(cfg *config.Config) (model.Generator, error) {
	switch cfg.Model.Provider {
	case "openai":
		if cfg.Model.APIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
		}
		return openai.NewGenerator(func(o *openai.Options) {
			if cfg.Model.Name != "" {
				o.Model = cfg.Model.Name
			}
		}), nil
	case "anthropic":
		if cfg.Model.APIKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable is required")
		}
		return anthropic.NewGenerator(func(o *anthropic.Options) {
			o.APIKey = cfg.Model.APIKey
			if cfg.Model.Name != "" {
				o.Model = anthropicsdk.Model(cfg.Model.Name)
			}
		}), nil
	case "mock":
		return model.NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported model provider %q", cfg.Model.Provider)
	}
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("deepresearch"),
		kong.Description("Multi-stage deep research server with SSE streaming."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&cli); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
