// Package main provides the llmbridge CLI entry point.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/phsym/zeroslog"
	"github.com/richinex/llmbridge/cli"
	"github.com/richinex/llmbridge/config"
	"github.com/richinex/llmbridge/llm"
	"github.com/richinex/llmbridge/session"
	"github.com/richinex/llmbridge/storage"
	"github.com/richinex/llmbridge/tools"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider     string
	model        string
	configPath   string
	sessionID    string
	dbPath       string
	instructions string
	maxTurns     int
	jsonOutput   bool
	allowShell   bool
	verbose      bool
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	rootCmd := &cobra.Command{
		Use:   "llmbridge",
		Short: "One streaming interface over several LLM backends",
		Long: `llmbridge talks to OpenAI, Groq, DeepSeek, Anthropic and Gemini through a
single streaming interface. Responses arrive as finished output items
(messages and function calls), whichever backend produced them.

The backend is chosen with --provider or LLM_PROVIDER (default: openai).`,
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&provider, "provider", "p", "", "LLM provider ("+strings.Join(config.SupportedProviders(), ", ")+")")
	flags.StringVar(&model, "model", "", "Model name (default: the provider's *_MODEL value or its default model)")
	flags.StringVar(&configPath, "config", "", "Path to a YAML config file")
	flags.BoolVar(&jsonOutput, "json", false, "Write machine-readable JSON lines")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Show debug logs")

	rootCmd.AddCommand(execCmd())
	rootCmd.AddCommand(chatCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(modelsCmd())
	rootCmd.AddCommand(checkModelCmd())
	rootCmd.AddCommand(sessionsCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setupLogging routes slog through zerolog's console writer.
// An explicit LLMBRIDGE_LOG_LEVEL wins over --verbose.
func setupLogging(raw string) error {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	if raw != "" {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			return fmt.Errorf("invalid value for LLMBRIDGE_LOG_LEVEL: %q: %w", raw, err)
		}
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Stamp}
	log := zerolog.New(output).With().Timestamp().Logger()
	slog.SetDefault(slog.New(
		zeroslog.NewHandler(log, &zeroslog.HandlerOptions{Level: level}),
	))
	return nil
}

// sessionFlags adds the flags of commands that run the turn loop.
func sessionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID for transcript persistence")
	cmd.Flags().StringVar(&dbPath, "db", "", "Transcript database path (default: LLMBRIDGE_DB or .llmbridge/transcripts.db)")
	cmd.Flags().StringVar(&instructions, "instructions", "", "System instructions sent with every request")
	cmd.Flags().IntVar(&maxTurns, "max-turns", cli.DefaultMaxTurns, "Maximum model/tool round trips per prompt")
	cmd.Flags().BoolVar(&allowShell, "allow-shell", false, "Run shell commands the model requests")
}

// runner builds a Runner from settings and flags. The returned cleanup
// closes the transcript store, if one was opened.
func runner(withStore bool) (*cli.Runner, func(), error) {
	settings, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := setupLogging(settings.LogLevel); err != nil {
		return nil, nil, err
	}

	id := sessionID
	if id == "" {
		id = settings.SessionID
	}
	if id != "" {
		session.SetID(id)
	}

	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.Model = model
	opts.Instructions = instructions
	opts.SessionID = id
	opts.JSON = jsonOutput
	if maxTurns > 0 {
		opts.MaxTurns = maxTurns
	}

	r := cli.NewRunner(llm.NewRegistry(settings), opts)
	if allowShell {
		r.WithTools(tools.WithDefaults())
	}

	cleanup := func() {}
	if withStore || id != "" {
		path := dbPath
		if path == "" {
			path = settings.DBPath
		}
		store, err := storage.OpenSqlite(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open database: %w", err)
		}
		r.WithStore(store)
		cleanup = func() { store.Close() }
	}

	return r, cleanup, nil
}

func execCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec [prompt]",
		Short: "Run one prompt, executing requested shell commands when allowed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.Exec(cmd.Context(), args[0])
		},
	}
	sessionFlags(cmd)
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.Chat(cmd.Context(), cmd.InOrStdin())
		},
	}
	sessionFlags(cmd)
	return cmd
}

func completeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete [prompt]",
		Short: "Run a single non-streaming completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.Complete(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVar(&instructions, "instructions", "", "System instructions")
	return cmd
}

func modelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models offered by the provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.Models(cmd.Context())
		},
	}
}

func checkModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-model [name]",
		Short: "Check whether the provider offers a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(false)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.CheckModel(cmd.Context(), args[0])
		},
	}
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored transcript sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, cleanup, err := runner(true)
			if err != nil {
				return err
			}
			defer cleanup()
			return r.Sessions(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "Transcript database path (default: LLMBRIDGE_DB or .llmbridge/transcripts.db)")
	return cmd
}
