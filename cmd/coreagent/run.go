package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/coreagent/runtime/internal/approval"
	"github.com/coreagent/runtime/internal/dmail"
	"github.com/coreagent/runtime/internal/llm"
	"github.com/coreagent/runtime/internal/llm/anthropic"
	"github.com/coreagent/runtime/internal/llm/openai"
	"github.com/coreagent/runtime/internal/loopctx"
	"github.com/coreagent/runtime/internal/model"
	"github.com/coreagent/runtime/internal/observability"
	"github.com/coreagent/runtime/internal/soul"
	"github.com/coreagent/runtime/internal/tool"
	"github.com/coreagent/runtime/internal/tools/exec"
	"github.com/coreagent/runtime/internal/tools/files"
	"github.com/coreagent/runtime/internal/wire"
)

func buildRunCmd() *cobra.Command {
	var (
		workspace   string
		historyPath string
		provider    string
		modelName   string
		yolo        bool
		maxContext  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				wd, err := os.Getwd()
				if err != nil {
					return fmt.Errorf("resolve workspace: %w", err)
				}
				workspace = wd
			}
			if historyPath == "" {
				historyPath = filepath.Join(workspace, ".coreagent", "history.jsonl")
			}
			if err := os.MkdirAll(filepath.Dir(historyPath), 0o755); err != nil {
				return fmt.Errorf("create history directory: %w", err)
			}
			return runSession(cmd, sessionConfig{
				workspace:   workspace,
				historyPath: historyPath,
				provider:    provider,
				modelName:   modelName,
				yolo:        yolo,
				maxContext:  maxContext,
			})
		},
	}

	cmd.Flags().StringVar(&workspace, "workspace", "", "Workspace directory tools resolve paths against (default: current directory)")
	cmd.Flags().StringVar(&historyPath, "history", "", "History file path (default: <workspace>/.coreagent/history.jsonl)")
	cmd.Flags().StringVar(&provider, "provider", "anthropic", "Chat provider: anthropic or openai")
	cmd.Flags().StringVar(&modelName, "model", "claude-sonnet-4-5", "Model name passed to the provider")
	cmd.Flags().BoolVar(&yolo, "yolo", false, "Auto-approve every tool call without prompting")
	cmd.Flags().IntVar(&maxContext, "max-context-size", 0, "Provider context window in tokens; 0 disables compaction")
	return cmd
}

type sessionConfig struct {
	workspace   string
	historyPath string
	provider    string
	modelName   string
	yolo        bool
	maxContext  int
}

func runSession(cmd *cobra.Command, cfg sessionConfig) error {
	out := cmd.OutOrStdout()
	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "text", Output: os.Stderr})
	metrics := observability.NewMetrics()

	store := loopctx.New(cfg.historyPath, logger)
	if restored, err := store.Restore(); err != nil {
		return fmt.Errorf("restore history: %w", err)
	} else if restored {
		fmt.Fprintf(out, "Restored %d prior messages from %s\n", len(store.History()), cfg.historyPath)
	}

	chatProvider, err := newChatProvider(cfg.provider, cfg.modelName)
	if err != nil {
		return err
	}
	facade := llm.NewFacade(chatProvider)
	summarizer := llm.NewSummarizer(facade)

	gate := approval.NewGate(cfg.yolo)
	registry := tool.NewRegistry()
	if err := registerTools(registry, cfg.workspace, gate); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	bus := wire.NewBus(metrics)
	mailbox := dmail.NewBox()

	driver := soul.New(store, registry, bus, facade, mailbox, summarizer, soul.Config{
		MaxContextSize: cfg.maxContext,
	}, logger, metrics)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = observability.AddSessionID(ctx, uuid.NewString())

	if !cfg.yolo {
		go runApprovalPrompter(ctx, gate, os.Stdin, out)
	}

	sub := bus.Subscribe()
	go printEvents(sub, out)
	defer sub.Cancel()

	interactive := term.IsTerminal(int(os.Stdin.Fd()))
	reader := bufio.NewReader(os.Stdin)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintln(out)
			return nil
		}
		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "/exit" || input == "/quit" {
			return nil
		}

		result, err := driver.Run(ctx, input)
		if err != nil {
			fmt.Fprintf(out, "run error: %v\n", err)
			continue
		}
		switch result.Outcome {
		case soul.ProviderError:
			fmt.Fprintf(out, "[provider error: %s]\n", result.Detail)
		case soul.MaxStepsReached:
			fmt.Fprintf(out, "[stopped: max steps reached after %d steps]\n", result.Steps)
		case soul.Interrupted:
			fmt.Fprintln(out, "[interrupted]")
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

func newChatProvider(name, modelName string) (llm.ChatProvider, error) {
	switch strings.ToLower(name) {
	case "anthropic", "":
		key := os.Getenv("ANTHROPIC_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY is not set")
		}
		return anthropic.New(key, modelName), nil
	case "openai":
		key := os.Getenv("OPENAI_API_KEY")
		if key == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is not set")
		}
		return openai.New(key, modelName), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want anthropic or openai)", name)
	}
}

func registerTools(registry *tool.Registry, workspace string, gate *approval.Gate) error {
	fileCfg := files.Config{Workspace: workspace, Approval: gate}
	execManager := exec.NewManager(model.Session{WorkDir: workspace})

	tools := []tool.Tool{
		files.NewReadTool(fileCfg),
		files.NewWriteTool(fileCfg),
		files.NewEditTool(fileCfg),
		files.NewApplyPatchTool(fileCfg),
		exec.NewExecTool("exec", execManager, gate),
		exec.NewProcessTool(execManager, gate),
	}
	for _, t := range tools {
		if err := registry.Register(t); err != nil {
			return err
		}
	}
	return nil
}

// runApprovalPrompter polls the gate for pending approval requests and
// resolves them from an interactive reader, mirroring the teacher's
// promptPassword pattern of falling back to a plain stdin read when the
// terminal isn't a TTY. It owns stdin only while a request is pending; the
// main turn loop never reads stdin while Run is in flight, so the two never
// race over the same reader.
func runApprovalPrompter(ctx context.Context, gate *approval.Gate, in *os.File, out io.Writer) {
	reader := bufio.NewReader(in)
	answered := make(map[string]struct{})
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, req := range gate.PendingRequests() {
				if _, ok := answered[req.ID]; ok {
					continue
				}
				answered[req.ID] = struct{}{}
				fmt.Fprintf(out, "\napproval requested: %s %s — %s\n[y]es once / [a]lways for session / [n]o: ", req.ToolName, req.ActionKey, req.Description)
				line, _ := reader.ReadString('\n')
				decision := model.Reject
				switch strings.ToLower(strings.TrimSpace(line)) {
				case "y", "yes":
					decision = model.ApproveOnce
				case "a", "always":
					decision = model.ApproveForSession
				}
				_ = gate.Resolve(req.ID, decision)
			}
		}
	}
}
