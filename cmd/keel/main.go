// Command keel runs one agent turn against a project directory: it
// sends the prompt to the configured model, executes the tool calls
// the model issues, and prints the final answer.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/keel-agent/keel/agent"
	"github.com/keel-agent/keel/config"
	"github.com/keel-agent/keel/llm"
	"github.com/keel-agent/keel/logging"
	"github.com/keel-agent/keel/permission"
	"github.com/keel-agent/keel/tool"
	"github.com/keel-agent/keel/tools"
)

var (
	flagDir        string
	flagModel      string
	flagMaxTokens  int
	flagLogLevel   string
	flagLogFile    string
	flagSessionDir string
	flagSkipPerms  bool
	flagShowCost   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keel [prompt]",
		Short: "Coding agent that runs model-issued tools in your project",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return run(cmd.Context(), strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVarP(&flagDir, "dir", "C", ".", "project working directory")
	cmd.Flags().StringVarP(&flagModel, "model", "m", "", "model to use (overrides project config)")
	cmd.Flags().IntVar(&flagMaxTokens, "max-tokens", 0, "max tokens per assistant message")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flagLogFile, "log-file", "", "append logs to a file instead of stderr")
	cmd.Flags().StringVar(&flagSessionDir, "session-dir", "", "directory to persist session state in")
	cmd.Flags().BoolVar(&flagSkipPerms, "dangerously-skip-permissions", false, "bypass all permission prompts")
	cmd.Flags().BoolVar(&flagShowCost, "cost", false, "print token usage and cost after the turn")
	return cmd
}

func run(ctx context.Context, prompt string) error {
	_ = godotenv.Load()
	if err := logging.Configure(flagLogLevel, flagLogFile); err != nil {
		return err
	}

	cfg, err := config.Load(flagDir)
	if err != nil {
		return err
	}
	model := flagModel
	if model == "" {
		model = cfg.Model
	}

	gateway, err := buildGateway(model, cfg.FallbackModel)
	if err != nil {
		return err
	}

	registry := tool.NewRegistry(&tools.Bash{}, &tools.ReadFile{}, &tools.WriteFile{})
	env := tool.NewLocalEnv(flagDir)
	session := agent.NewSession(flagDir, registry, cfg, env)

	detector := permission.NewLLMPrefixDetector(gateway, model)
	gate := permission.NewGate(cfg, &terminalPrompter{}, detector)
	if flagSkipPerms {
		gate.SetBypass(true)
	}

	var store agent.Store
	if flagSessionDir != "" {
		store, err = agent.NewFileStore(flagSessionDir)
		if err != nil {
			return err
		}
	}

	engine := agent.NewEngine(gateway, agent.NewDispatcher(gate), store, model)
	engine.MaxTokens = flagMaxTokens
	engine.SystemPrompt = systemPrompt

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rendered := make(chan struct{})
	go func() {
		defer close(rendered)
		renderEvents(os.Stdout, engine.Events())
	}()

	runErr := engine.Run(ctx, session, prompt)
	engine.Emitter.Close()
	<-rendered

	if flagShowCost {
		printCost(os.Stderr, gateway.Costs())
	}
	return runErr
}

// buildGateway registers every backend that has credentials in the
// environment and picks the primary by model family.
func buildGateway(model, fallbackModel string) (*llm.Gateway, error) {
	var backends []llm.Backend
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		backends = append(backends, llm.NewAnthropicBackend(key))
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		backends = append(backends, llm.NewOpenAIBackend(key, os.Getenv("OPENAI_BASE_URL")))
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("no API keys found: set ANTHROPIC_API_KEY or OPENAI_API_KEY")
	}

	primary := backendForModel(model)
	fallback := ""
	if fallbackModel != "" {
		fallback = backendForModel(fallbackModel)
	}
	gateway := llm.NewGateway(primary, fallback, backends...)

	found := false
	for _, b := range backends {
		if b.Name() == primary {
			found = true
		}
	}
	if !found {
		return nil, fmt.Errorf("model %s needs the %s backend but no credentials are set", model, primary)
	}
	return gateway, nil
}

func backendForModel(model string) string {
	if strings.HasPrefix(model, "claude") {
		return "anthropic"
	}
	return "openai"
}

func systemPrompt(session *agent.Session) []string {
	return []string{
		"You are Keel, a coding agent operating in the user's project directory. " +
			"Use the available tools to inspect and modify files and run commands. " +
			"Prefer small, verifiable steps and report what you changed.",
		"Working directory: " + session.WorkingDir,
	}
}
