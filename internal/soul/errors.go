// Package soul implements the Loop Driver (spec.md §4.7): the per-run state
// machine that interleaves LLM streaming with sequential tool dispatch,
// polls D-Mail and the compaction policy between steps, and reports a
// discriminated Result to the caller.
package soul

import (
	"errors"
	"fmt"
)

// Sentinel errors for the fatal Result cases, grounded on the teacher's
// internal/agent/errors.go sentinel-error taxonomy.
var (
	// ErrMaxSteps indicates a run exceeded MaxStepsPerRun.
	ErrMaxSteps = errors.New("max steps per run exceeded")

	// ErrProviderStream indicates the chat provider failed to start or
	// sustain a stream.
	ErrProviderStream = errors.New("provider stream error")

	// ErrPersistence indicates a Context Store write failed.
	ErrPersistence = errors.New("context store persistence error")
)

// Phase names the state the driver was in when a run ended, mirroring the
// state-machine stages of spec.md §4.7.
type Phase string

const (
	PhaseAppendUser    Phase = "append_user"
	PhaseStepBegin     Phase = "step_begin"
	PhaseLLMStream     Phase = "llm_stream"
	PhaseAppendAssist  Phase = "append_assistant"
	PhaseToolDispatch  Phase = "tool_dispatch"
	PhaseAppendResults Phase = "append_results"
	PhaseDone          Phase = "done"
)

// RunError wraps a fatal cause with the phase the driver was in when it
// occurred, so a caller (or a log line) can tell a provider outage from a
// persistence failure without string-matching the cause.
type RunError struct {
	Phase Phase
	Cause error
}

func (e *RunError) Error() string {
	if e.Cause == nil {
		return string(e.Phase)
	}
	return string(e.Phase) + ": " + e.Cause.Error()
}

func (e *RunError) Unwrap() error { return e.Cause }

// persistErr wraps a Context Store failure as a *RunError tagged with the
// phase it occurred in and ErrPersistence in its Unwrap chain.
func persistErr(phase Phase, detail string, cause error) error {
	return &RunError{Phase: phase, Cause: fmt.Errorf("%s: %w: %v", detail, ErrPersistence, cause)}
}
