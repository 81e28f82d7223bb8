package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/hpungsan/synapse/internal/config"
	"github.com/hpungsan/synapse/internal/mcp"
	"github.com/hpungsan/synapse/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"capture": true, "list": true, "show": true, "count": true,
	"export": true, "clear": true, "sync": true,
	"queue": true, "config": true, "auth": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   ___ _  _ _ __   __ _ _ __  ___  ___
  / __| || | '_ \ / _' | '_ \/ __|/ _ \
  \__ \ || | | | | (_| | |_) \__ \  __/
  |___/\_, |_| |_|\__,_| .__/|___/\___|
       |__/            |_|

  Local-first capture store

  Usage: synapse <command> [options]
         synapse --help

  MCP server mode requires piped input.`)
}

// newLogger writes text logs to stderr; stdout belongs to JSON output and MCP.
func newLogger(cfg *config.Config) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
}

func main() {
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Help and version need no database.
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine data directory: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if isCLIMode(os.Args) {
		os.Exit(runCLI(baseDir, cfg, logger))
	}

	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'synapse --help' for usage.\n")
		os.Exit(1)
	}

	os.Exit(runMCP(baseDir, cfg, logger))
}

func runCLI(baseDir string, cfg *config.Config, logger *slog.Logger) int {
	rt, err := ops.Open(baseDir, cfg, ops.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize store: %v\n", err)
		return 1
	}
	defer rt.Close()

	app := newCLIApp(rt)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func runMCP(baseDir string, cfg *config.Config, logger *slog.Logger) int {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "tools", unknown, "valid", mcp.AllToolNames())
	}

	rt, err := ops.Open(baseDir, cfg, ops.Options{Logger: logger})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize store: %v\n", err)
		return 1
	}
	defer rt.Close()

	if err := mcp.Run(rt, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
