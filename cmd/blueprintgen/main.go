package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/blueprintgen"
)

var (
	flagDB        string
	flagFormat    string
	flagLogLevel  string
	flagLogFormat string
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "blueprintgen",
	Short:         "Typed accessors and constructors from a game-data catalog",
	Long:          "Blueprintgen joins a catalog of data entries against a Go program and emits typed accessors, default-initializing constructors and new-entity handles.",
	Version:       blueprintgen.Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return validateLogFormat(flagLogFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "session database path (default: .blueprintgen.db in the project root)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (default: from config)")
	rootCmd.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "log format: text|json")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(completeCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(cleanCmd)
}

var flagForce bool

var generateCmd = &cobra.Command{
	Use:   "generate [project]",
	Short: "Index the program and emit accessors, constructors and entity handles",
	Long:  "Indexes changed Go files, joins the catalog against the program, refreshes the entry cache and writes every emitted unit. Units whose content did not change are left alone.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runGenerate,
}

func init() {
	generateCmd.Flags().BoolVar(&flagForce, "force", false, "delete the session database and rebuild from scratch")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig(args)
	if err != nil {
		return outputError("generate", err)
	}

	if flagForce {
		if err := removeDB(cfg.DBPath()); err != nil {
			return outputError("generate", fmt.Errorf("removing database for --force: %w", err))
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", cfg.DBPath())
	}

	logger, err := newLogger(os.Stderr, cfg)
	if err != nil {
		return err
	}
	engine, err := blueprintgen.New(cfg, blueprintgen.WithLogger(logger))
	if err != nil {
		return outputError("generate", fmt.Errorf("creating engine: %w", err))
	}
	defer engine.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	indexStart := time.Now()
	if err := engine.IndexDirectory(ctx); err != nil {
		return outputError("generate", fmt.Errorf("indexing: %w", err))
	}
	indexDuration := time.Since(indexStart)

	res, err := engine.Generate(ctx)
	if err != nil {
		return outputError("generate", fmt.Errorf("generating: %w", err))
	}

	fmt.Fprintf(os.Stderr, "Generated %s in %s (index: %s, pass: %s)\n",
		cfg.ProjectRoot,
		time.Since(start).Round(time.Millisecond),
		indexDuration.Round(time.Millisecond),
		res.Duration.Round(time.Millisecond),
	)
	if err := outputResult(CLIResult{Command: "generate", Results: toCLISummary(res)}); err != nil {
		return err
	}
	if n := res.Errors(); n > 0 {
		return fmt.Errorf("%d error diagnostic(s)", n)
	}
	return nil
}

var cleanCmd = &cobra.Command{
	Use:   "clean [project]",
	Short: "Remove the session database",
	Long:  "Removes the session database, forgetting the index, the entry cache and the recorded unit hashes. Emitted files are kept.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(args)
		if err != nil {
			return outputError("clean", err)
		}
		if err := removeDB(cfg.DBPath()); err != nil {
			return outputError("clean", err)
		}
		fmt.Fprintf(os.Stderr, "Cleared database: %s\n", cfg.DBPath())
		return nil
	},
}

// loadConfig reads the settings of the project named by args, or of the
// project containing the working directory, and applies --db.
func loadConfig(args []string) (*blueprintgen.Config, error) {
	dir, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	cfg, err := blueprintgen.LoadConfig(findProjectRoot(dir))
	if err != nil {
		return nil, err
	}
	if flagDB != "" {
		cfg.DB = flagDB
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveTargetDir returns the absolute path of the directory to work on.
func resolveTargetDir(args []string) (string, error) {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving path %q: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("directory not found: %s", abs)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("not a directory: %s", abs)
	}
	return abs, nil
}

// findProjectRoot walks up from startDir looking for go.mod. Returns the
// directory containing it, or startDir if there is none.
func findProjectRoot(startDir string) string {
	dir := startDir
	for {
		if info, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil && !info.IsDir() {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return startDir
		}
		dir = parent
	}
}

// removeDB deletes the database and its SQLite side files.
func removeDB(path string) error {
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return nil
}

// newLogger builds the stderr logger from --log-level and --log-format,
// falling back to the configured level.
func newLogger(w io.Writer, cfg *blueprintgen.Config) (*slog.Logger, error) {
	levelName := flagLogLevel
	if levelName == "" {
		levelName = cfg.LogLevel
	}
	var level slog.Level
	if levelName != "" {
		if err := level.UnmarshalText([]byte(levelName)); err != nil {
			return nil, fmt.Errorf("invalid log level %q", levelName)
		}
	}
	opts := &slog.HandlerOptions{Level: level}
	if flagLogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

var validLogFormats = []string{"text", "json"}

func validateLogFormat(format string) error {
	for _, f := range validLogFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid log format %q: must be %s", format, strings.Join(validLogFormats, " or "))
}
