package main

import (
	"fmt"
	"io"

	"github.com/coreagent/runtime/internal/model"
	"github.com/coreagent/runtime/internal/wire"
)

// printEvents renders Bus events to out as they arrive, until sub is
// cancelled. Text deltas stream inline; tool calls and results print on
// their own lines so a reader can follow dispatch without replaying the
// whole transcript.
func printEvents(sub *wire.Subscription, out io.Writer) {
	for e := range sub.Events() {
		switch e.Type {
		case wire.ContentPartEvt:
			if e.Part != nil && e.Part.Type == model.PartText {
				fmt.Fprint(out, e.Part.Text)
			}
		case wire.ToolCallEvt:
			if e.Call != nil {
				fmt.Fprintf(out, "\n→ %s(%s)\n", e.Call.Name, e.Call.Arguments)
			}
		case wire.ToolResultEvt:
			if e.Result != nil {
				fmt.Fprintf(out, "← [%s] %s\n", e.Result.Status, firstNonEmpty(e.Result.Output, e.Result.Message))
			}
		case wire.StepEnd:
			fmt.Fprintln(out)
		case wire.CompactionBegin:
			fmt.Fprintln(out, "\n[compacting context…]")
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
