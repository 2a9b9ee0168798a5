// Command execution for CLI commands.
//
// Information Hiding:
// - Provider and model resolution hidden
// - Turn loop and tool dispatch hidden
// - Output formatting hidden

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/richinex/llmbridge/internal/slogx"
	"github.com/richinex/llmbridge/llm"
	"github.com/richinex/llmbridge/storage"
	"github.com/richinex/llmbridge/tools"
	"github.com/tidwall/sjson"
)

// DefaultMaxTurns bounds the model/tool round trips of one prompt.
const DefaultMaxTurns = 10

// ErrMaxTurns is returned when the model keeps requesting tools past MaxTurns.
var ErrMaxTurns = errors.New("maximum turns reached")

// ErrModelNotSupported is returned by CheckModel for a model the provider
// does not list.
var ErrModelNotSupported = errors.New("model not supported")

// Options holds CLI execution options.
type Options struct {
	Provider     string
	Model        string
	Instructions string
	SessionID    string
	MaxTurns     int
	JSON         bool
}

// DefaultOptions returns default CLI options.
func DefaultOptions() Options {
	return Options{MaxTurns: DefaultMaxTurns}
}

// Runner executes CLI commands against the selected provider.
type Runner struct {
	registry *llm.Registry
	cache    *llm.ModelCache
	store    storage.Store
	tools    *tools.Registry
	out      io.Writer
	errOut   io.Writer
	opts     Options
}

// NewRunner creates a runner. Tool execution and transcript storage are
// off until enabled with WithTools and WithStore.
func NewRunner(registry *llm.Registry, opts Options) *Runner {
	if opts.MaxTurns <= 0 {
		opts.MaxTurns = DefaultMaxTurns
	}
	return &Runner{
		registry: registry,
		cache:    llm.NewModelCache(registry),
		out:      os.Stdout,
		errOut:   os.Stderr,
		opts:     opts,
	}
}

// WithTools enables execution of the tools in registry.
func (r *Runner) WithTools(registry *tools.Registry) *Runner {
	r.tools = registry
	return r
}

// WithStore enables transcript persistence for the session id.
func (r *Runner) WithStore(store storage.Store) *Runner {
	r.store = store
	return r
}

// WithOutput redirects command output and diagnostics.
func (r *Runner) WithOutput(out, errOut io.Writer) *Runner {
	r.out = out
	r.errOut = errOut
	return r
}

// Exec runs one prompt through the turn loop.
func (r *Runner) Exec(ctx context.Context, prompt string) error {
	provider, model, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	history, err := r.loadHistory(ctx)
	if err != nil {
		return err
	}

	history = append(history, llm.UserInput(prompt))
	history, runErr := r.runTurns(ctx, provider, model, history)

	if err := r.saveHistory(ctx, history); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// Chat starts an interactive session reading prompts from in.
func (r *Runner) Chat(ctx context.Context, in io.Reader) error {
	provider, model, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	history, err := r.loadHistory(ctx)
	if err != nil {
		return err
	}
	if len(history) > 0 {
		fmt.Fprintf(r.errOut, "Resuming session '%s' (%d items)\n\n", r.opts.SessionID, len(history))
	}

	fmt.Fprintf(r.errOut, "Chat with %s (%s). Type 'exit' to quit.\n\n", provider.Name(), model)

	scanner := bufio.NewScanner(in)
	for {
		if !r.opts.JSON {
			fmt.Fprint(r.out, "> ")
		}
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		var runErr error
		history, runErr = r.runTurns(ctx, provider, model, append(history, llm.UserInput(input)))
		if runErr != nil {
			fmt.Fprintf(r.errOut, "\nError: %v\n\n", runErr)
		}

		if err := r.saveHistory(ctx, history); err != nil {
			fmt.Fprintf(r.errOut, "Warning: failed to save history: %v\n", err)
		}
	}

	return scanner.Err()
}

// Complete runs a single non-streaming completion.
func (r *Runner) Complete(ctx context.Context, prompt string) error {
	_, model, err := r.resolve(ctx)
	if err != nil {
		return err
	}

	messages := llm.ToChatMessages([]llm.InputItem{llm.UserInput(prompt)}, r.opts.Instructions)
	content, err := llm.NewClient(r.registry, r.opts.Provider).ChatCompletion(ctx, model, messages)
	if err != nil {
		return fmt.Errorf("completion failed: %w", err)
	}

	if r.opts.JSON {
		return r.writeJSON(map[string]string{"model": model, "content": content})
	}
	fmt.Fprintln(r.out, content)
	return nil
}

// Models prints the models offered by the selected provider.
func (r *Runner) Models(ctx context.Context) error {
	if _, err := r.registry.ResolveType(r.opts.Provider); err != nil {
		return err
	}

	models := r.cache.ListModels(ctx, r.opts.Provider)
	if r.opts.JSON {
		return r.writeJSON(models)
	}
	if len(models) == 0 {
		fmt.Fprintln(r.errOut, "No models available.")
		return nil
	}
	for _, name := range models {
		fmt.Fprintln(r.out, name)
	}
	return nil
}

// CheckModel reports whether the selected provider offers model.
func (r *Runner) CheckModel(ctx context.Context, model string) error {
	if _, err := r.registry.ResolveType(r.opts.Provider); err != nil {
		return err
	}

	supported := r.cache.IsModelSupported(ctx, model, r.opts.Provider)
	if r.opts.JSON {
		if err := r.writeJSON(map[string]any{"model": model, "supported": supported}); err != nil {
			return err
		}
	} else if supported {
		fmt.Fprintf(r.out, "%s: supported\n", model)
	} else {
		fmt.Fprintf(r.out, "%s: not supported\n", model)
	}

	if !supported {
		return fmt.Errorf("%w: %s", ErrModelNotSupported, model)
	}
	return nil
}

// Sessions lists stored sessions, most recent first.
func (r *Runner) Sessions(ctx context.Context) error {
	if r.store == nil {
		return errors.New("no transcript store configured")
	}

	sessions, err := r.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if r.opts.JSON {
		return r.writeJSON(sessions)
	}
	for _, id := range sessions {
		fmt.Fprintln(r.out, id)
	}
	return nil
}

// resolve picks the provider and model: --model first, then the provider's
// configured model, then its default. An unlisted model only warns.
func (r *Runner) resolve(ctx context.Context) (llm.Provider, string, error) {
	id, err := r.registry.ResolveType(r.opts.Provider)
	if err != nil {
		return nil, "", err
	}
	provider, err := r.registry.New(id)
	if err != nil {
		return nil, "", err
	}

	model := r.opts.Model
	if model == "" {
		model = r.registry.ConfiguredModel(id)
	}
	if model == "" {
		model = provider.DefaultModel()
	}

	r.cache.Preload(r.opts.Provider)
	if !r.cache.IsModelSupported(ctx, model, r.opts.Provider) {
		slog.Warn("model is not in the provider's model list",
			slogx.Provider(id.String()),
			slog.String("model", model))
		fmt.Fprintf(r.errOut, "Warning: model %q is not listed by %s\n", model, id)
	}

	return provider, model, nil
}

func (r *Runner) loadHistory(ctx context.Context) ([]llm.InputItem, error) {
	if r.store == nil || r.opts.SessionID == "" {
		return nil, nil
	}
	history, err := r.store.Load(ctx, r.opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return history, nil
}

func (r *Runner) saveHistory(ctx context.Context, history []llm.InputItem) error {
	if r.store == nil || r.opts.SessionID == "" {
		return nil
	}
	if err := r.store.Save(ctx, r.opts.SessionID, history); err != nil {
		return fmt.Errorf("failed to save history: %w", err)
	}
	return nil
}

// runTurns streams responses until the model answers with a message.
// Tool calls are executed and fed back as function_call_output turns.
// The returned history includes every turn appended so far, also on error.
func (r *Runner) runTurns(ctx context.Context, provider llm.Provider, model string, history []llm.InputItem) ([]llm.InputItem, error) {
	for turn := 0; turn < r.opts.MaxTurns; turn++ {
		items, err := r.streamTurn(ctx, provider, model, history)
		if err != nil {
			return history, err
		}

		var calls []llm.ResponseItem
		for _, item := range items {
			switch item.Type {
			case llm.ItemTypeMessage:
				history = append(history, llm.AssistantInput(item.Text()))
			case llm.ItemTypeFunctionCall:
				calls = append(calls, item)
			}
		}

		if len(calls) == 0 {
			return history, nil
		}

		if r.tools == nil {
			for _, call := range calls {
				fmt.Fprintf(r.errOut, "Shell disabled, not running: %s\n", describeCall(call))
			}
			return history, nil
		}

		for _, call := range calls {
			output := r.executeCall(ctx, call)
			history = append(history,
				llm.FunctionCallInput(call.CallID, call.Name, call.Arguments),
				llm.FunctionCallOutput(call.CallID, output),
			)
			if err := r.printToolOutput(call, output); err != nil {
				return history, err
			}
		}
	}

	return history, fmt.Errorf("%w (%d)", ErrMaxTurns, r.opts.MaxTurns)
}

// streamTurn runs one streamed response and prints its items as they finish.
func (r *Runner) streamTurn(ctx context.Context, provider llm.Provider, model string, history []llm.InputItem) ([]llm.ResponseItem, error) {
	params := llm.StreamParams{
		Model:        model,
		Instructions: r.opts.Instructions,
		Input:        history,
	}
	// Without a tool registry the shell stays advertised, so requested
	// commands can still be shown to the user.
	if r.tools != nil {
		params.Tools = r.tools.Definitions()
	}

	stream, err := provider.CreateStream(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to start stream: %w", err)
	}
	defer stream.Close()

	var items []llm.ResponseItem
	for event, err := range stream.All() {
		if err != nil {
			return items, fmt.Errorf("stream failed: %w", err)
		}
		if err := r.printEvent(event); err != nil {
			return items, err
		}
		if event.Type == llm.EventOutputItemDone && event.Item != nil {
			items = append(items, *event.Item)
		}
	}
	return items, nil
}

// executeCall runs a tool call. Failures become the tool output so the
// model can react to them.
func (r *Runner) executeCall(ctx context.Context, call llm.ResponseItem) string {
	tool, ok := r.tools.Get(call.Name)
	if !ok {
		return errorOutput(fmt.Sprintf("unknown tool %q", call.Name))
	}

	output, err := tool.Execute(ctx, call.Arguments)
	if err != nil {
		slog.Debug("tool call failed", slog.String("tool", call.Name), slogx.Error(err))
		return errorOutput(err.Error())
	}
	return output
}

func errorOutput(message string) string {
	doc, err := sjson.Set("", "output", "error: "+message)
	if err != nil {
		return "error: " + message
	}
	doc, _ = sjson.Set(doc, "metadata.exit_code", 1)
	return doc
}

func (r *Runner) printEvent(event llm.Event) error {
	if r.opts.JSON {
		return r.writeJSON(event)
	}
	if event.Type != llm.EventOutputItemDone || event.Item == nil {
		return nil
	}

	switch event.Item.Type {
	case llm.ItemTypeMessage:
		fmt.Fprintln(r.out, event.Item.Text())
		if event.Item.Status == llm.StatusIncomplete {
			fmt.Fprintln(r.errOut, "(response truncated)")
		}
	case llm.ItemTypeFunctionCall:
		fmt.Fprintf(r.out, "%s\n", describeCall(*event.Item))
	}
	return nil
}

func (r *Runner) printToolOutput(call llm.ResponseItem, output string) error {
	if r.opts.JSON {
		return r.writeJSON(llm.FunctionCallOutput(call.CallID, output))
	}
	fmt.Fprintln(r.out, output)
	return nil
}

func (r *Runner) writeJSON(v any) error {
	if err := json.NewEncoder(r.out).Encode(v); err != nil {
		return fmt.Errorf("failed to write JSON output: %w", err)
	}
	return nil
}

// describeCall renders a shell call as "$ argv..." and other calls by name.
func describeCall(call llm.ResponseItem) string {
	if call.Name == llm.ShellToolName {
		if command, _, _, err := tools.ParseShellArgs(call.Arguments); err == nil {
			return "$ " + strings.Join(command, " ")
		}
	}
	return fmt.Sprintf("%s(%s)", call.Name, call.Arguments)
}
