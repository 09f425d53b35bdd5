package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jward/blueprintgen"
	"github.com/jward/blueprintgen/internal/mcpserver"
)

var (
	flagType    string
	flagPrefix  string
	flagProject string
)

var completeCmd = &cobra.Command{
	Use:   "complete [<file> <offset>]",
	Short: "Complete catalog entry names",
	Long:  "Lists the entries of a type whose names start with a prefix, either from --type/--prefix or from the member access ending at a byte offset in a file.",
	Args: func(cmd *cobra.Command, args []string) error {
		switch {
		case len(args) == 2:
			return nil
		case len(args) == 0 && flagType != "":
			return nil
		default:
			return fmt.Errorf("requires either <file> <offset> arguments or --type")
		}
	},
	RunE: runComplete,
}

func init() {
	completeCmd.Flags().StringVar(&flagType, "type", "", "type, accessor or qualified type name")
	completeCmd.Flags().StringVar(&flagPrefix, "prefix", "", "case-insensitive name prefix")
	completeCmd.Flags().StringVar(&flagProject, "project", "", "project directory (default: the one containing the working directory)")

	serveCmd.Flags().StringVar(&flagProject, "project", "", "project directory (default: the one containing the working directory)")
}

func runComplete(cmd *cobra.Command, args []string) error {
	engine, err := openEngine()
	if err != nil {
		return outputError("complete", err)
	}
	defer engine.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if err := engine.IndexDirectory(ctx); err != nil {
		return outputError("complete", fmt.Errorf("indexing: %w", err))
	}

	var got []blueprintgen.Candidate
	if len(args) == 2 {
		file, err := resolveFilePath(args[0])
		if err != nil {
			return outputError("complete", err)
		}
		offset, err := parseIntArg(args[1], "offset")
		if err != nil {
			return outputError("complete", err)
		}
		src, err := os.ReadFile(file)
		if err != nil {
			return outputError("complete", err)
		}
		got, err = engine.Answerer().CompleteAt(ctx, src, offset)
		if err != nil {
			return outputError("complete", err)
		}
	} else {
		got, err = engine.Answerer().Complete(ctx, flagType, flagPrefix)
		if err != nil {
			return outputError("complete", err)
		}
	}

	total := len(got)
	return outputResult(CLIResult{Command: "complete", Results: got, TotalCount: &total})
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve entry completion over MCP on stdio",
	Long:  "Runs a Model Context Protocol server on stdin/stdout with the complete_entries tool. Logs go to stderr.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, err := openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := engine.IndexDirectory(ctx); err != nil {
			return fmt.Errorf("indexing: %w", err)
		}

		logger, err := newLogger(os.Stderr, engine.Config())
		if err != nil {
			return err
		}
		return mcpserver.New(engine.Answerer(), engine.Config().ProjectRoot, logger).Run(ctx)
	},
}

// openEngine opens the session of the --project directory, which must have
// been generated before.
func openEngine() (*blueprintgen.Engine, error) {
	var args []string
	if flagProject != "" {
		args = []string{flagProject}
	}
	cfg, err := loadConfig(args)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(cfg.DBPath()); os.IsNotExist(err) {
		return nil, fmt.Errorf("database not found: %s (run 'blueprintgen generate' first)", cfg.DBPath())
	}
	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return nil, err
	}
	return blueprintgen.New(cfg, blueprintgen.WithLogger(logger))
}

// resolveFilePath converts a file argument to an absolute path.
func resolveFilePath(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", fmt.Errorf("resolving file path %q: %w", file, err)
	}
	return abs, nil
}

// parseIntArg parses a positional argument as a non-negative integer.
func parseIntArg(value, name string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", name, value)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be non-negative", name, value)
	}
	return n, nil
}
