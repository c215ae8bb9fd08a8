package main

import "testing"

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}

	required := []string{"run", "replay"}
	for _, name := range required {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestNewChatProviderRejectsUnknownProvider(t *testing.T) {
	if _, err := newChatProvider("carrier-pigeon", "test-model"); err == nil {
		t.Fatal("expected an error for an unknown provider")
	}
}

func TestNewChatProviderRequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := newChatProvider("anthropic", "test-model"); err == nil {
		t.Fatal("expected an error when ANTHROPIC_API_KEY is unset")
	}
}
