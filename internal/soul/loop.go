package soul

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/coreagent/runtime/internal/dmail"
	"github.com/coreagent/runtime/internal/llm"
	"github.com/coreagent/runtime/internal/loopctx"
	"github.com/coreagent/runtime/internal/model"
	"github.com/coreagent/runtime/internal/observability"
	"github.com/coreagent/runtime/internal/tool"
	"github.com/coreagent/runtime/internal/wire"
)

// Outcome discriminates the terminal shape of a Run, per spec.md §6's
// "Result discriminates Completed, Interrupted, MaxStepsReached,
// ProviderError{detail}."
type Outcome string

const (
	Completed       Outcome = "completed"
	Interrupted     Outcome = "interrupted"
	MaxStepsReached Outcome = "max_steps_reached"
	ProviderError   Outcome = "provider_error"
)

// Result is the awaitable return value of Run.
type Result struct {
	Outcome Outcome
	// Detail carries the provider error message when Outcome is
	// ProviderError.
	Detail string
	// Steps is the number of steps begun (StepBegin events published)
	// before the run ended. For MaxStepsReached this is MaxStepsPerRun+1:
	// the step that exceeded the limit is counted but not executed.
	Steps int
}

// DMailBox is the subset of *dmail.Box the driver needs between steps.
type DMailBox interface {
	Fetch() (dmail.Mail, bool)
}

// Config tunes the driver's stop conditions and compaction policy. It
// mirrors the shape of the teacher's LoopConfig/DefaultLoopConfig: a plain
// struct with a sanitizing constructor, no file- or env-based config
// loading (out of scope per spec.md §1).
type Config struct {
	// MaxStepsPerRun bounds the number of steps a single Run may take.
	// Default: 50.
	MaxStepsPerRun int

	// MaxContextSize is the provider's context window, in tokens, used to
	// derive the compaction threshold.
	MaxContextSize int

	// CompactionRatio is the fraction of MaxContextSize past which
	// compaction triggers. Must be in (0,1). Default: 0.8.
	CompactionRatio float64

	// MaxSummaryLength bounds the length of a compaction summary.
	// Default: 2000.
	MaxSummaryLength int
}

// DefaultConfig returns the driver's default tunables.
func DefaultConfig() Config {
	return Config{
		MaxStepsPerRun:   50,
		MaxContextSize:   0,
		CompactionRatio:  0.8,
		MaxSummaryLength: 2000,
	}
}

func sanitize(cfg Config) Config {
	d := DefaultConfig()
	if cfg.MaxStepsPerRun <= 0 {
		cfg.MaxStepsPerRun = d.MaxStepsPerRun
	}
	if cfg.CompactionRatio <= 0 || cfg.CompactionRatio >= 1 {
		cfg.CompactionRatio = d.CompactionRatio
	}
	if cfg.MaxSummaryLength <= 0 {
		cfg.MaxSummaryLength = d.MaxSummaryLength
	}
	return cfg
}

// Driver is the Loop Driver (§4.7): it binds the Context Store, the Tool
// Registry, the Event Bus, the LLM Facade, and D-Mail into the per-run
// state machine.
type Driver struct {
	context  *loopctx.Store
	registry *tool.Registry
	bus      *wire.Bus
	facade   *llm.Facade
	mailbox  DMailBox
	summary  loopctx.SummaryProvider

	config  Config
	logger  *observability.Logger
	metrics *observability.Metrics
}

// New constructs a Driver. summary may be nil, in which case compaction
// never triggers; it also never triggers while MaxContextSize is 0.
func New(ctx *loopctx.Store, registry *tool.Registry, bus *wire.Bus, facade *llm.Facade, mailbox DMailBox, summary loopctx.SummaryProvider, cfg Config, logger *observability.Logger, metrics *observability.Metrics) *Driver {
	return &Driver{
		context:  ctx,
		registry: registry,
		bus:      bus,
		facade:   facade,
		mailbox:  mailbox,
		summary:  summary,
		config:   sanitize(cfg),
		logger:   componentLogger(logger),
		metrics:  metrics,
	}
}

// componentLogger binds a "component" field to logger so every line this
// driver emits is attributable to the Loop Driver, the way the teacher's
// runtime binds a component logger per subsystem. Returns nil unchanged.
func componentLogger(logger *observability.Logger) *observability.Logger {
	if logger == nil {
		return nil
	}
	return logger.WithFields("component", "soul")
}

// Run executes one user turn to completion, interruption, or a stop
// condition, per the state machine in spec.md §4.7.
func (d *Driver) Run(ctx context.Context, input string) (Result, error) {
	ctx = observability.AddRequestID(ctx, uuid.NewString())

	userMsg := model.Message{
		ID:        uuid.NewString(),
		Role:      model.RoleUser,
		Content:   []model.ContentPart{model.TextPart(input)},
		CreatedAt: time.Now(),
	}
	if err := d.context.Append(userMsg); err != nil {
		return Result{}, persistErr(PhaseAppendUser, "append user message", err)
	}

	step := 0
	for {
		if mail, ok := d.mailbox.Fetch(); ok {
			if err := d.context.RevertTo(mail.CheckpointID); err != nil {
				return Result{Steps: step}, persistErr(PhaseStepBegin, "d-mail revert", err)
			}
			injected := model.Message{
				ID:        uuid.NewString(),
				Role:      model.RoleUser,
				Content:   []model.ContentPart{model.TextPart(mail.Message)},
				CreatedAt: time.Now(),
			}
			if err := d.context.Append(injected); err != nil {
				return Result{Steps: step}, persistErr(PhaseAppendUser, "append injected message", err)
			}
			continue
		}

		if d.shouldCompact() {
			d.bus.Publish(wire.Event{Type: wire.CompactionBegin})
			compacted, err := d.context.Compact(ctx, d.summary, d.config.MaxSummaryLength)
			if err != nil {
				d.logIfPresent(ctx, "compaction failed", "error", err)
			}
			d.bus.Publish(wire.Event{Type: wire.CompactionEnd})
			if compacted {
				d.recordCompaction("ok")
			}
		}

		step++
		d.bus.Publish(wire.Event{Type: wire.StepBegin, StepNumber: step})
		if step > d.config.MaxStepsPerRun {
			d.bus.Publish(wire.Event{Type: wire.StepInterrupted})
			d.recordStep("max_steps")
			return Result{Outcome: MaxStepsReached, Steps: step}, nil
		}

		streamStart := time.Now()
		output, err := d.facade.Stream(ctx, d.context.History(), d.registry.Catalog(), func(p model.ContentPart) {
			switch p.Type {
			case model.PartText:
				d.bus.Publish(wire.Event{Type: wire.ContentPartEvt, Part: &p})
			case model.PartToolCall:
				d.bus.Publish(wire.Event{Type: wire.ToolCallEvt, Call: p.ToolCall})
			}
		})
		if err != nil {
			d.recordLLMRequest("error", time.Since(streamStart), 0)
			d.recordStep("provider_error")
			return Result{Outcome: ProviderError, Detail: err.Error(), Steps: step}, nil
		}

		if output.Interrupted {
			d.recordLLMRequest("interrupted", time.Since(streamStart), output.TokenCount)
			d.bus.Publish(wire.Event{Type: wire.StepInterrupted})
			d.recordStep("interrupted")
			return Result{Outcome: Interrupted, Steps: step}, nil
		}

		d.recordLLMRequest("ok", time.Since(streamStart), output.TokenCount)

		assistantMsg := model.Message{
			ID:        uuid.NewString(),
			Role:      model.RoleAssistant,
			Content:   output.Content,
			CreatedAt: time.Now(),
		}
		if err := d.context.Append(assistantMsg); err != nil {
			return Result{Steps: step}, persistErr(PhaseAppendAssist, "append assistant message", err)
		}
		if err := d.context.UpdateTokenCount(output.TokenCount); err != nil {
			return Result{Steps: step}, persistErr(PhaseAppendAssist, "update token count", err)
		}

		if !assistantMsg.HasToolCalls() {
			d.bus.Publish(wire.Event{Type: wire.StepEnd})
			if _, err := d.context.Checkpoint(true); err != nil {
				return Result{Steps: step}, persistErr(PhaseStepBegin, "checkpoint", err)
			}
			d.recordStep("completed")
			return Result{Outcome: Completed, Steps: step}, nil
		}

		results, interrupted := d.dispatchTools(ctx, assistantMsg)

		toolMsg := model.Message{
			ID:        uuid.NewString(),
			Role:      model.RoleTool,
			Content:   results,
			CreatedAt: time.Now(),
		}
		if err := d.context.Append(toolMsg); err != nil {
			return Result{Steps: step}, persistErr(PhaseAppendResults, "append tool results", err)
		}

		if interrupted {
			d.bus.Publish(wire.Event{Type: wire.StepInterrupted})
			d.recordStep("interrupted")
			return Result{Outcome: Interrupted, Steps: step}, nil
		}
	}
}

// dispatchTools runs every tool call in assistantMsg sequentially, in
// emission order, so a later tool observes the side effects of an earlier
// one within the same turn (§4.7 step 6). If ctx is cancelled partway
// through, the call already in flight keeps whatever result its tool
// returns, and every call after it is resolved with a synthetic ERROR
// result instead of being dispatched, preserving
// invariant I5: no tool-call content part is ever left without a matching
// tool-result.
func (d *Driver) dispatchTools(ctx context.Context, assistantMsg model.Message) ([]model.ContentPart, bool) {
	var calls []model.ToolCall
	for _, p := range assistantMsg.Content {
		if p.Type == model.PartToolCall && p.ToolCall != nil {
			calls = append(calls, *p.ToolCall)
		}
	}

	results := make([]model.ContentPart, 0, len(calls))
	interrupted := false
	for _, call := range calls {
		if interrupted || ctx.Err() != nil {
			interrupted = true
			synthetic := model.ToolResultContentPart(call.ID, model.ToolResultError, "interrupted", "")
			results = append(results, synthetic)
			d.bus.Publish(wire.Event{Type: wire.ToolResultEvt, ResultID: call.ID, Result: synthetic.ToolResult})
			continue
		}

		dispatchStart := time.Now()
		result := d.registry.Dispatch(ctx, call)
		dispatchDuration := time.Since(dispatchStart)
		part := model.ContentPart{Type: model.PartToolResult, ToolResult: &result}
		results = append(results, part)
		d.bus.Publish(wire.Event{Type: wire.ToolResultEvt, ResultID: call.ID, Result: &result})
		d.recordTool(call.Name, string(result.Status), dispatchDuration)
	}
	return results, interrupted
}

// shouldCompact reports whether the current token count has crossed the
// configured soft threshold. Compaction never triggers when MaxContextSize
// is unset (0) or no summary provider is wired.
func (d *Driver) shouldCompact() bool {
	if d.config.MaxContextSize <= 0 || d.summary == nil {
		return false
	}
	threshold := float64(d.config.MaxContextSize) * d.config.CompactionRatio
	return float64(d.context.TokenCount()) > threshold
}

func (d *Driver) logIfPresent(ctx context.Context, msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(ctx, msg, args...)
	}
}

func (d *Driver) recordStep(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordStep(outcome)
	}
}

func (d *Driver) recordTool(name, status string, duration time.Duration) {
	if d.metrics != nil {
		d.metrics.RecordToolExecution(name, status, duration.Seconds())
	}
}

func (d *Driver) recordLLMRequest(status string, duration time.Duration, completionTokens int) {
	if d.metrics != nil {
		d.metrics.RecordLLMRequest(d.facade.ProviderName(), d.facade.ModelName(), status, duration.Seconds(), 0, completionTokens)
	}
}

func (d *Driver) recordCompaction(outcome string) {
	if d.metrics != nil {
		d.metrics.RecordCompaction(outcome)
	}
}
