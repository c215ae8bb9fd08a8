package main

import (
	"testing"

	"github.com/coreagent/runtime/internal/approval"
	"github.com/coreagent/runtime/internal/tool"
)

func TestRegisterToolsCoversFileAndExecTools(t *testing.T) {
	registry := tool.NewRegistry()
	gate := approval.NewGate(true)
	if err := registerTools(registry, t.TempDir(), gate); err != nil {
		t.Fatalf("registerTools: %v", err)
	}

	want := []string{"read", "write", "edit", "apply_patch", "exec", "process"}
	names := map[string]bool{}
	for _, n := range registry.Names() {
		names[n] = true
	}
	for _, n := range want {
		if !names[n] {
			t.Fatalf("expected tool %q to be registered, got %v", n, registry.Names())
		}
	}
}
