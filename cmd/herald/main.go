// Herald is a conversational routing agent.
//
// Each turn, it classifies the user's utterance with a fast LLM call
// and dispatches it to one of two agents (a direct model responder or
// a web search responder), then persists the exchange per
// (user, thread) pair in a local SQLite database. Configuration is
// loaded from a single YAML file discovered automatically (see
// [config.DefaultSearchPaths]); API keys may come from the environment.
//
// Usage:
//
//	herald chat                 Start the interactive chat loop (default)
//	herald ask <question>       Ask a single question and exit
//	herald history [n]          Show recent messages for the thread
//	herald clear                Delete the thread's conversation
//	herald stats                Print storage statistics
//	herald usage                Print token usage for the last 30 days
//	herald init                 Write an example config file
//	herald version              Print version and build information
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/heraldchat/herald/examples"
	"github.com/heraldchat/herald/internal/buildinfo"
	"github.com/heraldchat/herald/internal/config"
	"github.com/heraldchat/herald/internal/llm"
	"github.com/heraldchat/herald/internal/memory"
	"github.com/heraldchat/herald/internal/router"
	"github.com/heraldchat/herald/internal/search"
	"github.com/heraldchat/herald/internal/session"
	"github.com/heraldchat/herald/internal/skill"
	"github.com/heraldchat/herald/internal/usage"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdin, and os.Args out of the application logic so that
// the full lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the herald command. All OS-level
// dependencies are injected as parameters; run returns nil on clean
// shutdown and a non-nil error for any failure. The caller (main) is
// responsible for printing the error and exiting.
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call
	// run() concurrently from tests. Our argument surface is small
	// enough that manual parsing is clearer than a CLI framework.
	var configPath string
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if command == "" {
		command = "chat"
	}

	switch command {
	case "help":
		return printUsage(stdout)
	case "version":
		fmt.Fprintln(stdout, buildinfo.String())
		return nil
	case "init":
		return initConfig(stdout, configPath)
	case "chat", "ask", "history", "clear", "stats", "usage":
		// handled below, after the app is wired
	default:
		return fmt.Errorf("unknown command %q (try: herald help)", command)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(stderr, cfg.LogLevel)
	if err != nil {
		return err
	}

	app, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	switch command {
	case "chat":
		return app.chat(ctx, stdin, stdout)
	case "ask":
		if len(cmdArgs) == 0 {
			return errors.New("usage: herald ask <question>")
		}
		return app.ask(ctx, stdout, strings.Join(cmdArgs, " "))
	case "history":
		limit := 50
		if len(cmdArgs) > 0 {
			limit, err = strconv.Atoi(cmdArgs[0])
			if err != nil || limit <= 0 {
				return fmt.Errorf("invalid history limit %q", cmdArgs[0])
			}
		}
		return app.history(stdout, limit)
	case "clear":
		return app.clear(stdout)
	case "stats":
		return app.stats(stdout)
	case "usage":
		return app.usage(stdout)
	default:
		return fmt.Errorf("unknown command %q (try: herald help)", command)
	}
}

// loadConfig discovers and loads the config file. When no file exists
// and none was requested explicitly, built-in defaults apply so that
// herald works with nothing but environment API keys.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" {
			return nil, err
		}
		return config.Default(), nil
	}
	return config.Load(path)
}

// newLogger builds the process logger writing to stderr so that chat
// output on stdout stays clean.
func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	lvl, err := config.ParseLogLevel(level)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: config.ReplaceLogLevelNames,
	})), nil
}

// initConfig writes the example configuration file. It refuses to
// overwrite an existing file.
func initConfig(stdout io.Writer, path string) error {
	if path == "" {
		path = "herald.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists, not overwriting", path)
	}
	if err := os.WriteFile(path, examples.ConfigYAML, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Fprintf(stdout, "Wrote %s\n", path)
	return nil
}

// app bundles the wired collaborators for one CLI invocation.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	store   *memory.Store
	usageDB *usage.Store
	ctrl    *session.Controller
}

// newApp wires the store, model client, search provider, skills,
// router, and session controller. Every collaborator is injected
// explicitly; nothing is constructed at package load time.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath()), 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := memory.NewStore(cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open conversation store: %w", err)
	}

	uid, tid := cfg.Session.UserID, cfg.Session.ThreadID

	usageDB, err := usage.NewStore(filepath.Join(cfg.DataDir, "usage.db"))
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open usage store: %w", err)
	}

	client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, logger)
	client.SetUsageRecorder(usageRecorder{store: usageDB, sessionID: uid + "_" + tid})

	mgr := search.NewManager("perplexity")
	mgr.Register(search.NewPerplexity(cfg.Perplexity.APIKey, cfg.Perplexity.Model))

	classifyParams := llm.FastParams(cfg.OpenAI.Model)
	classifyParams.Purpose = "classify"
	generalParams := llm.BalancedParams(cfg.OpenAI.Model)
	generalParams.Purpose = "general"

	r := router.NewRouter(logger, router.Config{
		Classifier: client,
		Params:     classifyParams,
		General:    skill.NewGeneral(logger, client, generalParams),
		Search:     skill.NewSearch(logger, mgr),
		History:    session.HistoryLoader(store, uid, tid),
	})

	ctrl := session.New(logger, store, r, uid, tid, cfg.Session.HistoryLimit)

	return &app{cfg: cfg, logger: logger, store: store, usageDB: usageDB, ctrl: ctrl}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("store close failed", "error", err)
	}
	if err := a.usageDB.Close(); err != nil {
		a.logger.Warn("usage store close failed", "error", err)
	}
}

// usageRecorder tags model call usage with the session and writes it
// to the usage store.
type usageRecorder struct {
	store     *usage.Store
	sessionID string
}

func (r usageRecorder) RecordUsage(ctx context.Context, u llm.Usage) error {
	return r.store.Record(ctx, usage.Record{
		SessionID:        r.sessionID,
		Model:            u.Model,
		Provider:         u.Provider,
		Purpose:          u.Purpose,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	})
}

// exitWords end the interactive loop, matched case-insensitively.
var exitWords = map[string]bool{"quit": true, "exit": true, "bye": true}

// chat runs the interactive read-eval-print loop. Turn failures are
// printed and the loop continues; only input EOF or an exit word ends
// the session.
func (a *app) chat(ctx context.Context, stdin io.Reader, stdout io.Writer) error {
	fmt.Fprintln(stdout, "Chat started! Type 'quit' or 'exit' to end the conversation.")

	state := &router.TurnState{}
	scanner := bufio.NewScanner(stdin)

	for {
		fmt.Fprint(stdout, "User: ")
		if !scanner.Scan() {
			fmt.Fprintln(stdout)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		if exitWords[strings.ToLower(question)] {
			fmt.Fprintln(stdout, "Goodbye!")
			return nil
		}
		if question == "" {
			continue
		}

		state.Messages = append(state.Messages, router.ChatMessage{Role: "user", Content: question})
		state.UserQuestion = question

		result, err := a.ctrl.Run(ctx, state)
		if err != nil {
			fmt.Fprintf(stdout, "Turn failed: %v\n", err)
			continue
		}

		reply := lastAssistantReply(result)
		if reply == "" {
			fmt.Fprintln(stdout, "No response generated.")
			continue
		}

		fmt.Fprintf(stdout, "Assistant: %s\n", reply)
		state = result
		state.UserQuestion = ""
	}
}

// lastAssistantReply extracts the reply to show: the most recent
// assistant message, falling back to the state's response field.
func lastAssistantReply(state *router.TurnState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == "assistant" {
			return state.Messages[i].Content
		}
	}
	return state.Response
}

// ask runs a single turn and prints the response.
func (a *app) ask(ctx context.Context, stdout io.Writer, question string) error {
	result, err := a.ctrl.Run(ctx, &router.TurnState{UserQuestion: question})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, lastAssistantReply(result))
	return nil
}

// history prints recent persisted messages for the configured thread.
func (a *app) history(stdout io.Writer, limit int) error {
	msgs, err := a.store.GetMessages(a.cfg.Session.UserID, a.cfg.Session.ThreadID, limit)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		fmt.Fprintln(stdout, "No messages.")
		return nil
	}
	for _, m := range msgs {
		fmt.Fprintf(stdout, "[%s] %s: %s\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
	}
	return nil
}

// clear deletes the configured thread's conversation.
func (a *app) clear(stdout io.Writer) error {
	deleted, err := a.store.Delete(a.cfg.Session.UserID, a.cfg.Session.ThreadID)
	if err != nil {
		return err
	}
	if deleted {
		fmt.Fprintln(stdout, "Conversation cleared.")
	} else {
		fmt.Fprintln(stdout, "Nothing to clear.")
	}
	return nil
}

// stats prints storage statistics.
func (a *app) stats(stdout io.Writer) error {
	for k, v := range a.store.Stats() {
		fmt.Fprintf(stdout, "%s: %v\n", k, v)
	}
	return nil
}

// usage prints token totals for the last 30 days, broken down by model
// and by call purpose.
func (a *app) usage(stdout io.Writer) error {
	end := time.Now()
	start := end.AddDate(0, 0, -30)

	sum, err := a.usageDB.Summary(start, end)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Last 30 days: %d calls, %d prompt tokens, %d completion tokens\n",
		sum.TotalRecords, sum.TotalPromptTokens, sum.TotalCompletionTokens)

	byModel, err := a.usageDB.SummaryByModel(start, end)
	if err != nil {
		return err
	}
	for model, s := range byModel {
		fmt.Fprintf(stdout, "  model %s: %d calls, %d prompt, %d completion\n",
			model, s.TotalRecords, s.TotalPromptTokens, s.TotalCompletionTokens)
	}

	byPurpose, err := a.usageDB.SummaryByPurpose(start, end)
	if err != nil {
		return err
	}
	for purpose, s := range byPurpose {
		if purpose == "" {
			purpose = "(unlabeled)"
		}
		fmt.Fprintf(stdout, "  purpose %s: %d calls, %d prompt, %d completion\n",
			purpose, s.TotalRecords, s.TotalPromptTokens, s.TotalCompletionTokens)
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprint(w, `herald - conversational routing agent

Usage:
  herald [flags] <command> [args]

Commands:
  chat             Interactive chat loop (default)
  ask <question>   Ask a single question and exit
  history [n]      Show up to n recent messages (default 50)
  clear            Delete the thread's conversation
  stats            Print storage statistics
  usage            Print token usage for the last 30 days
  init             Write an example config file (herald.yaml)
  version          Print version and build information
  help             Show this help

Flags:
  -config <path>   Config file (default: search herald.yaml locations)
`)
	return nil
}
