// Command maestro is the task orchestrator CLI. It reads prompts from
// stdin (plain text or {"prompt": ..., "attachments": [...]} JSON lines)
// and emits progress envelopes on stdout, one JSON object per line.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	maestro "github.com/maestroflow/maestro"
	"github.com/maestroflow/maestro/agents"
	"github.com/maestroflow/maestro/internal/attach"
	"github.com/maestroflow/maestro/internal/config"
	"github.com/maestroflow/maestro/observer"
	"github.com/maestroflow/maestro/provider/openaicompat"
	"github.com/maestroflow/maestro/store/session"
	"github.com/maestroflow/maestro/tools/dashmaker"
	"github.com/maestroflow/maestro/tools/datasource"
	"github.com/maestroflow/maestro/tools/filesaver"
	"github.com/maestroflow/maestro/tools/humaninput"
	"github.com/maestroflow/maestro/tools/pythonexec"
	"github.com/maestroflow/maestro/tools/reporter"
	"github.com/maestroflow/maestro/tools/webcontent"
)

// executeTimeout is the wall-clock limit for one flow execution.
const executeTimeout = time.Hour

func main() {
	root := &cobra.Command{
		Use:           "maestro",
		Short:         "LLM-driven task orchestrator",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd() *cobra.Command {
	var (
		sid        string
		configPath string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the orchestrator, reading prompts from stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), sid, configPath)
		},
	}
	cmd.Flags().StringVar(&sid, "sid", "", "session id to resume (a new one is minted when absent)")
	cmd.Flags().StringVar(&configPath, "config", "", "path to maestro.toml")
	return cmd
}

// promptLine is the structured form of a stdin line.
type promptLine struct {
	Prompt      string   `json:"prompt"`
	Attachments []string `json:"attachments"`
}

func run(ctx context.Context, sid, configPath string) error {
	cfg := config.Load(configPath)

	// stdout carries the envelope stream; logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	newSession := sid == ""
	if newSession {
		sid = uuid.NewString()
	}

	bus := maestro.NewBus(os.Stdout, maestro.BusLogDir(cfg.Workspace.LogDir), maestro.BusLogger(logger))
	bus.SetSession(sid)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var provider maestro.Provider = openaicompat.NewProvider(cfg.LLM.APIKey, cfg.LLM.Model, cfg.LLM.BaseURL)
	var tracer maestro.Tracer
	if cfg.Observer.Enabled {
		shutdown, err := observer.Init(ctx)
		if err != nil {
			logger.Warn("observer init failed, tracing disabled", "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					logger.Warn("observer shutdown failed", "error", err)
				}
			}()
			pricing := make(map[string]observer.ModelPricing, len(cfg.Observer.Pricing))
			for model, p := range cfg.Observer.Pricing {
				pricing[model] = observer.ModelPricing{InputPerMillion: p.Input, OutputPerMillion: p.Output}
			}
			provider = observer.WrapProvider(provider, cfg.LLM.Model, observer.NewCostCalculator(pricing))
			tracer = observer.NewTracer()
		}
	}
	provider = maestro.WithRetry(provider, maestro.RetryLogger(logger))

	gwOpts := []maestro.GatewayOption{
		maestro.GatewayBus(bus),
		maestro.GatewayLogger(logger),
		maestro.GatewayMaxTokens(cfg.LLM.MaxTokens),
		maestro.GatewayTemperature(cfg.LLM.Temperature),
		maestro.GatewayMultimodal(cfg.LLM.MultimodalModels...),
	}
	if cfg.LLM.MaxInputTokens > 0 {
		gwOpts = append(gwOpts, maestro.GatewayMaxInputTokens(cfg.LLM.MaxInputTokens))
	}
	gateway := maestro.NewGateway(provider, cfg.LLM.Model, gwOpts...)

	planning := maestro.NewPlanningTool(bus)
	human := humaninput.New(nil, bus)
	python := pythonexec.New(cfg.Workspace.Path, pythonexec.WithBus(bus))
	files := filesaver.New(cfg.Workspace.Path)
	web := webcontent.New()
	dash := dashmaker.New(cfg.Workspace.Path)
	report := reporter.New()

	analystTools := []maestro.Tool{python, files, web}
	if ds, err := datasource.Open(cfg.Datasource.Driver, cfg.Datasource.DSN, cfg.Workspace.Path); err != nil {
		logger.Warn("datasource unavailable", "driver", cfg.Datasource.Driver, "error", err)
	} else {
		defer ds.Close()
		analystTools = append(analystTools, ds)
	}

	agentOpts := []maestro.AgentOption{maestro.AgentBus(bus), maestro.AgentLogger(logger)}
	if tracer != nil {
		agentOpts = append(agentOpts, maestro.AgentTracer(tracer))
	}
	workers := map[string]*maestro.ToolCallAgent{
		agents.PlannerKey:     agents.NewPlanner(gateway, planning, human, agentOpts...),
		agents.DataAnalystKey: agents.NewDataAnalyst(gateway, analystTools, agentOpts...),
		agents.ReportMakerKey: agents.NewReportMaker(gateway, []maestro.Tool{dash, files, python}, agentOpts...),
		agents.AnswerBotKey:   agents.NewAnswerBot(gateway, []maestro.Tool{python}, agentOpts...),
	}

	store := session.NewStore(cfg.Workspace.SessionsDir)
	flow := maestro.NewPlanningFlow(gateway, planning, workers,
		maestro.FlowPlanningAgent(agents.PlannerKey),
		maestro.FlowExecutors(agents.DataAnalystKey, agents.ReportMakerKey, agents.AnswerBotKey),
		maestro.FlowSession(store, sid),
		maestro.FlowAutoSummary(cfg.LLM.AutoSummary),
		maestro.FlowReporter(report),
		maestro.FlowBus(bus),
		maestro.FlowLogger(logger),
	)

	if !newSession && store.Has(sid) {
		snap, err := store.Load(sid)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", sid, err)
		}
		flow.RestoreSnapshot(snap)
		logger.Info("session resumed", "session", sid)
	}

	return promptLoop(ctx, flow, bus, cfg.Workspace.Path, logger)
}

// promptLoop reads one prompt per stdin line and executes the flow for
// each. The "exit" keyword ends the loop.
func promptLoop(ctx context.Context, flow *maestro.PlanningFlow, bus *maestro.Bus, workspace string, logger *slog.Logger) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var failed bool
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" {
			bus.Emit(maestro.EnvMainExited, "Session closed", nil)
			break
		}

		prompt := parsePrompt(line, workspace)
		bus.Emit(maestro.EnvMainStart, prompt, map[string]any{"session": flow.SessionID()})

		runCtx, cancel := context.WithTimeout(ctx, executeTimeout)
		result, err := flow.Execute(runCtx, prompt)
		cancel()

		switch {
		case err == nil:
			bus.Emit(maestro.EnvMainCompleted, result, nil)
		case errors.Is(err, context.DeadlineExceeded):
			bus.Emit(maestro.EnvMainTimeout, "Execution timed out", nil)
			failed = true
		case errors.Is(err, context.Canceled):
			bus.Emit(maestro.EnvMainInterrupted, "Execution interrupted", nil)
			return errors.New("interrupted")
		default:
			bus.Emit(maestro.EnvMainError, result, nil)
			logger.Error("execution failed", "error", err)
			failed = true
		}

		if ctx.Err() != nil {
			bus.Emit(maestro.EnvMainInterrupted, "Execution interrupted", nil)
			return errors.New("interrupted")
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	if failed {
		return errors.New("one or more executions failed")
	}
	return nil
}

// parsePrompt decodes a stdin line, resolving attachments into inline
// previews appended to the prompt text.
func parsePrompt(line, workspace string) string {
	if !strings.HasPrefix(line, "{") {
		return line
	}
	var p promptLine
	if err := json.Unmarshal([]byte(line), &p); err != nil || p.Prompt == "" {
		return line
	}
	if len(p.Attachments) == 0 {
		return p.Prompt
	}
	previews := attach.PreviewAll("attachments", p.Attachments)
	return p.Prompt + "\n\nAttached files:\n" + previews
}
