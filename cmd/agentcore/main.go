// Command agentcore runs the Agent Executor as a standalone A2A server:
// task store, event bus manager, session manager, workflow runtime, tool
// registry, and a Gemini-backed AI handler wired together behind
// a2asrv.NewHandler/NewJSONRPCHandler. Grounded on hector's cmd/hector/main.go
// (kong CLI, signal-driven shutdown) and v2/api.go's Serve (handler
// construction and http.ListenAndServe), trimmed to this core's single
// always-on agent rather than hector's multi-agent config-file runtime.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/agentcore/agentcore/aihandler"
	"github.com/agentcore/agentcore/config"
	"github.com/agentcore/agentcore/eventbus"
	"github.com/agentcore/agentcore/executor"
	"github.com/agentcore/agentcore/internal/llmstream"
	"github.com/agentcore/agentcore/internal/mcpsource"
	"github.com/agentcore/agentcore/internal/obs"
	"github.com/agentcore/agentcore/internal/registry"
	"github.com/agentcore/agentcore/msghandler"
	"github.com/agentcore/agentcore/runtime"
	"github.com/agentcore/agentcore/session"
	"github.com/agentcore/agentcore/task"
	"github.com/agentcore/agentcore/toolregistry"
	"github.com/agentcore/agentcore/workflowhandler"
)

// CLI defines the command-line interface, mirroring hector's single-root
// kong.CLI shape scaled down to this core's one subcommand.
type CLI struct {
	Serve ServeCmd `cmd:"" help:"Start the agent executor's A2A server." default:"withargs"`

	LogLevel string `help:"Log level (debug, info, warn, error)." default:"info"`
}

// ServeCmd starts the A2A JSON-RPC server.
type ServeCmd struct {
	Addr string `help:"Address to listen on." default:":8080"`

	GeminiAPIKey string `name:"gemini-api-key" help:"Gemini API key (or set GEMINI_API_KEY)." env:"GEMINI_API_KEY"`
	GeminiModel  string `name:"gemini-model" help:"Gemini model name." default:"gemini-2.0-flash"`

	DispatchTimeout  time.Duration `name:"dispatch-timeout" help:"Dispatch-response timeout for workflow dispatch tool calls." default:"500ms"`
	MaxInactivity    time.Duration `name:"max-inactivity" help:"Session idle time before the session reaper evicts it." default:"30m"`
	EventBusBuffer   int           `name:"event-bus-buffer" help:"Per-task event bus channel buffer size." default:"64"`
	MaxHistoryTokens int           `name:"max-history-tokens" help:"Token budget for truncating session history before an LLM call (0 disables)." default:"8000"`
	SystemPrompt     string        `name:"system-prompt" help:"System prompt prefixed to every LLM request."`

	MCPServer []string `name:"mcp-server" help:"Repeatable: name=command[,arg1,arg2,...] stdio MCP tool source."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	if err := config.LoadEnvFiles(); err != nil {
		slog.Warn("failed to load .env files", "error", err)
	}
	if c.GeminiAPIKey == "" {
		c.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	}

	shutdownTracing, err := obs.SetupTracing(ctx, "agentcore", true)
	if err != nil {
		return fmt.Errorf("failed to set up tracing: %w", err)
	}
	defer shutdownTracing(context.Background())

	tasks := task.New()
	buses := eventbus.NewManager(c.EventBusBuffer)
	sessions := session.NewManager(c.MaxInactivity)
	go sessions.RunReaper(c.MaxInactivity / 2)

	rt := runtime.New(tasks, runtime.WithDispatchResponseTimeout(c.DispatchTimeout))
	tools := toolregistry.New()

	for _, spec := range c.MCPServer {
		src, err := parseMCPServerFlag(spec)
		if err != nil {
			return err
		}
		if err := tools.RegisterSource(ctx, src); err != nil {
			return fmt.Errorf("failed to register MCP source %q: %w", src.Name(), err)
		}
	}

	llm, err := llmstream.New(ctx, llmstream.Config{APIKey: c.GeminiAPIKey, Model: c.GeminiModel})
	if err != nil {
		return fmt.Errorf("failed to create llmstream client: %w", err)
	}

	cancels := registry.NewBaseRegistry[context.CancelFunc]()
	workflows := workflowhandler.New(rt, buses, cancels)
	plugins := make([]toolregistry.WorkflowPlugin, 0, len(rt.Plugins()))
	for _, p := range rt.Plugins() {
		plugins = append(plugins, p)
	}
	tools.RegisterWorkflowPlugins(plugins)
	if err := tools.Validate(); err != nil {
		return fmt.Errorf("invalid tool configuration: %w", err)
	}

	ai, err := aihandler.New(llm, sessions, tools, workflows, cancels, aihandler.Config{
		SystemPrompt:     c.SystemPrompt,
		MaxHistoryTokens: c.MaxHistoryTokens,
	})
	if err != nil {
		return fmt.Errorf("failed to create AI handler: %w", err)
	}

	messages := msghandler.New(rt, workflows, ai)
	exec := executor.New(buses, sessions, messages, workflows)

	handler := a2asrv.NewHandler(exec, a2asrv.WithTaskStore(task.NewA2AStore(tasks)))
	jsonRPC := a2asrv.NewJSONRPCHandler(handler)
	cardHandler := a2asrv.NewStaticAgentCardHandler(agentCard(c.Addr))

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Handle("/", jsonRPC)
	router.Handle("/.well-known/agent-card.json", cardHandler)
	router.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: c.Addr, Handler: router}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("agent executor listening", "addr", c.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// parseMCPServerFlag parses a name=command[,arg1,arg2,...] --mcp-server
// value into an mcpsource.Source.
func parseMCPServerFlag(spec string) (*mcpsource.Source, error) {
	name, rest, ok := strings.Cut(spec, "=")
	if !ok || name == "" || rest == "" {
		return nil, fmt.Errorf("invalid --mcp-server %q: expected name=command[,arg...]", spec)
	}
	parts := strings.Split(rest, ",")
	cfg := mcpsource.Config{Name: name, Command: parts[0]}
	if len(parts) > 1 {
		cfg.Args = parts[1:]
	}
	return mcpsource.New(cfg), nil
}

func agentCard(addr string) *a2a.AgentCard {
	return &a2a.AgentCard{
		Name:               "agentcore",
		Description:        "Agent executor mediating a streaming LLM, pausable workflow plugins, and the A2A task protocol.",
		URL:                "http://" + strings.TrimPrefix(addr, ":"),
		Version:            "0.1.0",
		ProtocolVersion:    "1.0",
		DefaultInputModes:  []string{"text/plain"},
		DefaultOutputModes: []string{"text/plain"},
		Capabilities: a2a.AgentCapabilities{
			Streaming:              true,
			PushNotifications:      false,
			StateTransitionHistory: false,
		},
		PreferredTransport: a2a.TransportProtocolJSONRPC,
		Skills: []a2a.AgentSkill{{
			ID:          "agentcore",
			Name:        "agentcore",
			Description: "General-purpose agent turn with workflow dispatch.",
			Tags:        []string{"general", "workflow"},
		}},
	}
}

func main() {
	cli := CLI{}
	ctx := kong.Parse(&cli,
		kong.Name("agentcore"),
		kong.Description("Agent executor: A2A server mediating an LLM, workflow plugins, and tasks."),
		kong.UsageOnError(),
	)

	level := slog.LevelInfo
	switch strings.ToLower(cli.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	err := ctx.Run(&cli)
	ctx.FatalIfErrorf(err)
}
