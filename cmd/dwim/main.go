package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/robertmeta/dwim/internal/config"
	"github.com/robertmeta/dwim/internal/executor"
	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"github.com/robertmeta/dwim/internal/infrastructure/server"
	"github.com/robertmeta/dwim/internal/repl"
	"github.com/robertmeta/dwim/internal/shell"
	"github.com/robertmeta/dwim/internal/supervisor"
	"github.com/robertmeta/dwim/internal/translator"
)

var version = "dev"

var flags struct {
	configPath  string
	always      bool
	shell       string
	model       string
	dev         bool
	metricsAddr string
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "dwim",
	Short: "Do What I Mean: turn plain-language requests into shell commands",
	Long: `dwim reads what you want in plain language, asks a chat completion
service for the matching shell command, and runs it in a persistent shell
after you confirm.

Requires OPENAI_API_KEY in the environment.`,
	Version:      version,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.configPath, "config", "", "config file (.toml, .yaml); defaults to $"+config.ConfigFileEnv)
	f.BoolVar(&flags.always, "always", false, "run translated commands without asking")
	f.StringVar(&flags.shell, "shell", "", "shell to run commands in (default $SHELL or "+config.DefaultShell+")")
	f.StringVar(&flags.model, "model", "", "completion model (default "+config.DefaultModel+")")
	f.BoolVar(&flags.dev, "dev", false, "development logging to stderr at debug level")
	f.StringVar(&flags.metricsAddr, "metrics-addr", "", "serve /metrics and /healthz on this address")
}

// applyFlags lets explicitly set flags override file and environment values.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("always") {
		cfg.Loop.AlwaysRun = flags.always
	}
	if changed("shell") && flags.shell != "" {
		cfg.Shell.Path = flags.shell
	}
	if changed("model") && flags.model != "" {
		cfg.Translator.Model = flags.model
	}
	if changed("dev") {
		cfg.Logging.Development = flags.dev
	}
	if changed("metrics-addr") {
		cfg.Debug.MetricsAddr = flags.metricsAddr
	}
}

func newLogger(cfg config.LogConfig) (*logging.Logger, error) {
	logCfg := logging.DefaultConfig()
	if cfg.Development {
		logCfg = logging.DevelopmentConfig()
	}
	if cfg.Level != "" && !cfg.Development {
		logCfg.Level = cfg.Level
	}
	if cfg.Output != "" {
		logCfg.OutputPaths = []string{cfg.Output}
	}
	return logging.New(logCfg)
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, cfg)

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	logger.Info("Starting dwim",
		zap.String("version", version),
		zap.String("shell", cfg.Shell.Path),
		zap.String("model", cfg.Translator.Model),
	)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Welcome to dwim (Do What I Mean)")
	if cfg.Translator.APIKey == "" {
		fmt.Fprintln(out, "Requires: OPENAI_API_KEY in environment.")
	}

	sessions := shell.NewManager(shell.Options{
		Shell:           cfg.Shell.Path,
		WorkDir:         cfg.Shell.WorkDir,
		ShutdownTimeout: cfg.Shell.ShutdownTimeout,
		Logger:          logger,
	}, metrics)
	if err := sessions.Start(); err != nil {
		return fmt.Errorf("failed to start shell: %w", err)
	}
	defer sessions.Terminate()

	exec := executor.New(sessions, executor.Options{
		Stdout:  out,
		Stderr:  cmd.ErrOrStderr(),
		Logger:  logger,
		Metrics: metrics,
	})

	tr, err := translator.New(cfg.Translator, translator.Options{
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	sup := supervisor.New(sessions, supervisor.Options{
		Logger:  logger,
		Metrics: metrics,
	})

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	go sup.Run(ctx)

	if cfg.Debug.MetricsAddr != "" {
		debug := server.New(server.Config{
			Addr:        cfg.Debug.MetricsAddr,
			Development: cfg.Logging.Development,
		}, registry, sessions, metrics, logger)
		if err := debug.Start(); err != nil {
			logger.Warn("debug server disabled", zap.Error(err))
		} else {
			defer func() {
				shutdownCtx, stop := context.WithTimeout(context.Background(), 2*time.Second)
				defer stop()
				_ = debug.Close(shutdownCtx)
			}()
		}
	}

	prompter := repl.NewLinePrompter()
	defer prompter.Close()

	loop := repl.New(repl.Deps{
		Executor:   exec,
		Translator: tr,
		Supervisor: sup,
		Terminator: sessions,
		Prompter:   prompter,
	}, repl.Options{
		Shell:     cfg.Shell.Path,
		AlwaysRun: cfg.Loop.AlwaysRun,
		Out:       out,
		Logger:    logger,
	})
	prompter.SetWordCompleter(loop.CompleteWord)

	go handleTermination(ctx, sessions, prompter, logger)

	return loop.Run(ctx)
}

// handleTermination exits on SIGTERM or SIGHUP. The prompt blocks on the
// terminal, so the loop cannot notice these itself.
func handleTermination(ctx context.Context, sessions *shell.Manager, prompter *repl.LinePrompter, logger *logging.Logger) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		return
	case sig := <-sigChan:
		logger.Info("Shutting down", zap.Stringer("signal", sig))
		sessions.Terminate()
		_ = prompter.Close()
		_ = logger.Sync()
		os.Exit(128 + int(sig.(syscall.Signal)))
	}
}
