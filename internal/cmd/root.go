// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/dotandev/watpatch/internal/config"
	"github.com/dotandev/watpatch/internal/logger"
	"github.com/dotandev/watpatch/internal/patch"
	"github.com/dotandev/watpatch/internal/shutdown"
	"github.com/dotandev/watpatch/internal/telemetry"
)

// Global flag variables
var (
	ProfileFlag  string
	LogLevelFlag string
	LogJSONFlag  bool
	TraceFlag    bool
	DryRunFlag   bool
)

// Resolved in PersistentPreRunE and shared by every subcommand.
var (
	activeConfig  *config.Config
	activeProfile *patch.Profile
	hooks         = shutdown.NewCoordinator()
)

const shutdownTimeout = 3 * time.Second

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watpatch <input.wat> <output.wat>",
	Short: "Patch the callback trampolines of an emscripten module's text form",
	Long: `watpatch rewrites two functions in the WebAssembly text form of an emscripten
module so that callbacks run on another thread are dispatched through the system
proxying queue.

It reads the module twice. The first pass finds the id of the
(param i32 i32 i32) (result i32) function type and the table slot of
$do_callback in element segment 0. If either is missing nothing is written.
The second pass copies every line through unchanged except the bodies of
$_emscripten_run_callback_on_thread and $do_callback, which are replaced.

Examples:
  watpatch dotnet.wat dotnet.patched.wat       Patch a module
  watpatch --trace dotnet.wat out.wat          Log every discarded line
  watpatch --dry-run dotnet.wat out.wat        Report without writing
  watpatch scan dotnet.wat                     Show the scanned facts
  watpatch --profile mine.toml in.wat out.wat  Use a custom profile`,
	Args: cobra.ExactArgs(2),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	RunE:          patchExec,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// Shutdown hooks run after the command returns, even when ctx was cancelled.
func Execute(ctx context.Context) error {
	defer func() {
		if err := hooks.RunWithTimeout(shutdownTimeout); err != nil {
			logger.Logger.Warn("shutdown hooks completed with errors", "error", err)
		}
	}()
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command) error {
	hooks = shutdown.NewCoordinator()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if LogLevelFlag != "" {
		cfg.LogLevel = LogLevelFlag
	}
	if TraceFlag {
		cfg.LogLevel = "debug"
	}
	if LogJSONFlag {
		cfg.LogJSON = true
	}
	if ProfileFlag != "" {
		cfg.ProfilePath = ProfileFlag
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	activeConfig = cfg

	logger.SetOutput(cmd.ErrOrStderr(), cfg.LogJSON)
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))
	logger.Logger.Debug("configuration loaded", "config", cfg.String())

	flush, err := telemetry.Init(cmd.Context(), telemetry.Config{
		Enabled:     cfg.TelemetryEnabled,
		ExporterURL: cfg.TelemetryEndpoint,
		ServiceName: "watpatch",
		Version:     Version,
	})
	if err != nil {
		logger.Logger.Warn("telemetry disabled", "error", err)
	} else {
		hooks.Register("telemetry-flush", func(context.Context) error {
			flush()
			return nil
		})
	}

	p, err := patch.LoadProfile(cfg.ProfilePath)
	if err != nil {
		return err
	}
	activeProfile = p
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&ProfileFlag,
		"profile",
		"",
		"TOML or YAML profile replacing the built-in emscripten profile",
	)

	rootCmd.PersistentFlags().StringVar(
		&LogLevelFlag,
		"log-level",
		"",
		"Diagnostic log level: debug, info, warn, error",
	)

	rootCmd.PersistentFlags().BoolVar(
		&LogJSONFlag,
		"log-json",
		false,
		"Write diagnostics as JSON lines",
	)

	rootCmd.PersistentFlags().BoolVar(
		&TraceFlag,
		"trace",
		false,
		"Log every line discarded from a replaced region",
	)

	rootCmd.Flags().BoolVar(
		&DryRunFlag,
		"dry-run",
		false,
		"Run both passes and print the report without writing output",
	)

	_ = rootCmd.RegisterFlagCompletionFunc("profile", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"toml", "yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})
	rootCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) >= 2 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		return []string{"wat"}, cobra.ShellCompDirectiveFilterFileExt
	}
}
