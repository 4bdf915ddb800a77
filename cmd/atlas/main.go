package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/atlas"
	"github.com/jward/atlas/internal/cargo"
	"github.com/jward/atlas/internal/config"
	"github.com/jward/atlas/internal/logging"
)

var (
	flagConfig    string
	flagCacheDir  string
	flagFormat    string
	flagVerbosity int
	flagQuiet     bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "atlas",
	Short:         "Semantic code graph for Rust workspaces",
	Long:          "Atlas indexes a Rust workspace with tree-sitter into a persisted semantic snapshot and answers agent queries against it.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return validateFormat(flagFormat)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: <workspace>/.atlas/config.*)")
	rootCmd.PersistentFlags().StringVar(&flagCacheDir, "cache-dir", "", "snapshot cache directory (default: user cache dir)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().CountVarP(&flagVerbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")
	rootCmd.PersistentFlags().BoolVar(&flagQuiet, "quiet", false, "suppress all logging")

	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(agentCmd)
}

var indexCmd = &cobra.Command{
	Use:   "index [path]",
	Short: "Index a Rust workspace into a semantic snapshot",
	Long:  "Parses every .rs file under the workspace with tree-sitter, builds the semantic snapshot, and writes it to the snapshot cache.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runIndex,
}

func runIndex(cmd *cobra.Command, args []string) error {
	start := time.Now()

	engine, err := openEngine(args)
	if err != nil {
		return outputError("index", err)
	}
	defer engine.Close()

	res, err := engine.Index(cmd.Context())
	if err != nil {
		return outputError("index", err)
	}
	snap := res.Snapshot

	fmt.Fprintf(os.Stderr, "Indexed %s in %s\n", engine.Root(), time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "Snapshot: %s\n", res.Save.Path)

	return outputResult(CLIResult{
		Command: "index",
		Results: CLIIndexSummary{
			Root:          engine.Root(),
			SnapshotPath:  res.Save.Path,
			Written:       res.Save.Written,
			Completeness:  string(snap.Completeness),
			Entities:      len(snap.Entities),
			Relationships: len(snap.Relationships),
			Diagnostics:   diagnosticsToCLI(snap.Diagnostics),
			DurationMS:    time.Since(start).Milliseconds(),
		},
	})
}

var statusCmd = &cobra.Command{
	Use:   "status [path]",
	Short: "Report snapshot state and freshness",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(args)
	if err != nil {
		return outputError("status", err)
	}
	defer engine.Close()

	startup := engine.Startup()
	status := CLIStatus{
		Root:         engine.Root(),
		SnapshotPath: engine.SnapshotPath(),
		State:        string(startup.State),
		Reason:       string(startup.Reason),
		Message:      startup.Message,
	}
	if m, err := cargo.ReadManifest(engine.Root()); err == nil {
		status.Package = m.Name()
		if m.IsWorkspace() {
			status.Members = m.Workspace.Members
		}
	}

	if snap := engine.Snapshot(); snap != nil {
		status.SchemaVersion = snap.SchemaVersion.String()
		status.Completeness = string(snap.Completeness)
		status.Entities = len(snap.Entities)
		status.Relationships = len(snap.Relationships)
		status.Diagnostics = diagnosticsToCLI(snap.Diagnostics)

		fresh, err := engine.Freshness(cmd.Context())
		if err != nil {
			return outputError("status", err)
		}
		status.Freshness = string(fresh.Freshness)
		status.Guidance = fresh.Guidance.Message
	}

	return outputResult(CLIResult{Command: "status", Results: status})
}

var agentCmd = &cobra.Command{
	Use:   "agent [path]",
	Short: "Serve capability requests as line-delimited JSON on stdin/stdout",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAgent,
}

func runAgent(cmd *cobra.Command, args []string) error {
	engine, err := openEngine(args)
	if err != nil {
		return err
	}
	defer engine.Close()

	status := engine.Startup()
	fmt.Fprintf(os.Stderr, "atlas agent: %s (%s)\n", engine.Root(), status.State)
	return engine.Serve(cmd.Context(), os.Stdin, os.Stdout)
}

// openEngine resolves the workspace from args, loads configuration for it
// and creates an Engine.
func openEngine(args []string) (*atlas.Engine, error) {
	target, err := resolveTargetDir(args)
	if err != nil {
		return nil, err
	}
	root := cargo.FindWorkspaceRoot(target)

	cfg, err := loadConfig(root)
	if err != nil {
		return nil, err
	}
	return atlas.New(root,
		atlas.WithConfig(cfg),
		atlas.WithLogger(newLogger(cfg)),
	)
}

// loadConfig reads configuration for root and applies flag overrides.
func loadConfig(root string) (*config.Config, error) {
	cfg, err := config.Load(flagConfig, root)
	if err != nil {
		return nil, err
	}
	if flagCacheDir != "" {
		cfg.CacheDir = flagCacheDir
	}
	return cfg, nil
}

// newLogger logs to stderr. Verbosity flags take precedence over the
// configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := logging.LevelFromString(cfg.Log.Level)
	if flagQuiet || flagVerbosity > 0 {
		level = logging.LevelFromVerbosity(flagVerbosity, flagQuiet)
	}
	format, _ := logging.ParseFormat(cfg.Log.Format)
	return logging.New(os.Stderr, level, format)
}

// resolveTargetDir returns the absolute path of the directory named by
// args, or of the working directory.
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
