// Package cmd provides the CLI commands for cocowatch.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cocodex/cocowatch/internal/config"
	"github.com/cocodex/cocowatch/internal/controller"
	cocoerrors "github.com/cocodex/cocowatch/internal/errors"
	"github.com/cocodex/cocowatch/internal/indexer"
	"github.com/cocodex/cocowatch/internal/logging"
	"github.com/cocodex/cocowatch/pkg/version"
)

// Exit codes.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// rootFlags holds flag values before they are merged into the config.
// Only flags the user actually set override file and env values.
type rootFlags struct {
	withMCPServer   bool
	mcpServerOnly   bool
	address         string
	debounceSeconds float64
	noRecursive     bool
	initialIndex    bool
	ignorePatterns  []string
	debug           bool
}

// NewRootCmd creates the root command for the cocowatch CLI.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:   "cocowatch [watch_path [flow]]",
		Short: "Watch-and-index coordinator with an MCP search endpoint",
		Long: `cocowatch watches a directory tree, debounces file events into settled
change sets, and keeps a local SQLite full-text index up to date. In
hybrid or serve-only mode it also exposes the index over MCP (stdio or
streamable HTTP) for AI coding assistants.

With no arguments it watches the current directory using the default
document flow.`,
		Version:       version.Version,
		Args:          cobra.MaximumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCoordinator(cmd, args, flags)
		},
	}

	cmd.SetVersionTemplate("cocowatch version {{.Version}}\n")

	cmd.Flags().BoolVar(&flags.withMCPServer, "with-mcp-server", false, "Serve MCP queries while watching (hybrid mode)")
	cmd.Flags().BoolVar(&flags.mcpServerOnly, "mcp-server-only", false, "Serve MCP queries only, without watching")
	cmd.Flags().StringVar(&flags.address, "address", "", "MCP listen address as host:port (empty means stdio)")
	cmd.Flags().Float64Var(&flags.debounceSeconds, "debounce-seconds", 2.0, "Quiet period before a batch of file events settles")
	cmd.Flags().BoolVar(&flags.noRecursive, "no-recursive", false, "Watch only the top-level directory")
	cmd.Flags().BoolVar(&flags.initialIndex, "initial-index", false, "Run a full index pass before watching starts")
	cmd.Flags().StringArrayVar(&flags.ignorePatterns, "ignore", nil, "Glob pattern to exclude from watching (repeatable)")
	cmd.Flags().BoolVar(&flags.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and maps errors to exit codes.
func Execute() int {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "cocowatch: %v\n", err)
		if cocoerrors.GetCategory(err) == cocoerrors.CategoryConfig {
			return exitConfig
		}
		return exitRuntime
	}
	return exitOK
}

// runCoordinator builds the config from file, env, and flags, sets up
// logging, and runs the controller until a signal arrives.
func runCoordinator(cmd *cobra.Command, args []string, flags *rootFlags) error {
	cfg, err := buildConfig(cmd, args, flags)
	if err != nil {
		return err
	}

	cleanup, err := setupLogging(cfg)
	if err != nil {
		return cocoerrors.ConfigError("failed to set up logging", err)
	}
	defer cleanup()

	ctrl, err := controller.New(cfg, slog.Default())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("starting coordinator",
		slog.String("version", version.Version),
		slog.String("mode", string(cfg.Mode)),
		slog.String("watch_path", cfg.WatchPath))

	return ctrl.Run(ctx)
}

// buildConfig layers flag values on top of defaults, config file, and
// environment. Only flags the user changed win over the lower layers.
func buildConfig(cmd *cobra.Command, args []string, flags *rootFlags) (*config.Config, error) {
	if flags.withMCPServer && flags.mcpServerOnly {
		return nil, cocoerrors.ConfigError("--with-mcp-server and --mcp-server-only are mutually exclusive", nil)
	}

	cfg := config.New()

	watchPath := "."
	if len(args) > 0 {
		watchPath = args[0]
	}
	abs, err := filepath.Abs(watchPath)
	if err != nil {
		return nil, cocoerrors.ConfigError(fmt.Sprintf("invalid watch path %q", watchPath), err)
	}
	cfg.WatchPath = abs

	if err := cfg.Load(abs, "."); err != nil {
		return nil, err
	}

	if len(args) > 1 {
		cfg.Flow = args[1]
	}
	if cfg.Flow == "" {
		cfg.Flow = indexer.FlowDocuments
	}

	// Without either flag the coordinator watches only; serving is
	// opt-in.
	switch {
	case flags.mcpServerOnly:
		cfg.Mode = config.ModeServeOnly
	case flags.withMCPServer:
		cfg.Mode = config.ModeHybrid
	}

	if cmd.Flags().Changed("address") {
		cfg.Address = flags.address
	}
	if cmd.Flags().Changed("debounce-seconds") {
		cfg.DebounceWindow = time.Duration(flags.debounceSeconds * float64(time.Second))
	}
	if cmd.Flags().Changed("no-recursive") {
		cfg.Recursive = !flags.noRecursive
	}
	if cmd.Flags().Changed("initial-index") {
		cfg.InitialIndex = flags.initialIndex
	}
	if len(flags.ignorePatterns) > 0 {
		cfg.IgnorePatterns = append(cfg.IgnorePatterns, flags.ignorePatterns...)
	}
	if flags.debug {
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging picks the logging mode based on the transport. With an
// MCP stdio transport stdout carries JSON-RPC exclusively, so logs must
// go to the file only.
func setupLogging(cfg *config.Config) (func(), error) {
	stdioServe := cfg.Mode.Serves() && cfg.Address == ""

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.LogLevel
	if cfg.LogFile != "" {
		logCfg.FilePath = cfg.LogFile
	}

	if stdioServe {
		return logging.SetupStdioMode(cfg.LogLevel, cfg.LogFile)
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// Fall back to stderr-only logging rather than refusing to start.
		var pathErr *os.PathError
		if errors.As(err, &pathErr) {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
				Level: logging.LevelFromString(cfg.LogLevel),
			})))
			return func() {}, nil
		}
		return nil, err
	}

	slog.SetDefault(logger)
	return cleanup, nil
}
