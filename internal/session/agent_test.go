package session

import (
	"strings"
	"testing"
)

func TestAgentTypeCLICommand(t *testing.T) {
	cases := map[AgentType]string{
		AgentClaudeCode: "claude",
		AgentGeminiCLI:  "gemini",
		AgentCodex:      "codex",
		AgentOpenRouter: "codex",
		AgentTerminal:   "",
	}
	for at, want := range cases {
		if got := at.CLICommand(); got != want {
			t.Errorf("%s.CLICommand() = %q, want %q", at, got, want)
		}
	}
}

func TestAgentTypeDisplayName(t *testing.T) {
	cases := map[AgentType]string{
		AgentClaudeCode: "Claude Code",
		AgentGeminiCLI:  "Gemini CLI",
		AgentCodex:      "Codex",
		AgentOpenRouter: "OpenRouter",
		AgentTerminal:   "Terminal",
	}
	for at, want := range cases {
		if got := at.DisplayName(); got != want {
			t.Errorf("%s.DisplayName() = %q, want %q", at, got, want)
		}
	}
}

func TestResolveTerminalNeverFallsBack(t *testing.T) {
	reg := &AgentRegistry{detected: map[AgentType]DetectedAgent{
		AgentTerminal: {AgentType: AgentTerminal, Found: true},
	}}

	resolved, warning := reg.Resolve(AgentTerminal)
	if resolved != AgentTerminal || warning != "" {
		t.Errorf("Resolve(Terminal) = (%q, %q), want (%q, \"\")", resolved, warning, AgentTerminal)
	}
}

func TestResolveInstalledAgentStaysAsRequested(t *testing.T) {
	reg := &AgentRegistry{detected: map[AgentType]DetectedAgent{
		AgentClaudeCode: {AgentType: AgentClaudeCode, Found: true},
	}}

	resolved, warning := reg.Resolve(AgentClaudeCode)
	if resolved != AgentClaudeCode || warning != "" {
		t.Errorf("Resolve(installed) = (%q, %q), want (%q, \"\")", resolved, warning, AgentClaudeCode)
	}
}

func TestResolveUninstalledAgentFallsBackToTerminalWithWarning(t *testing.T) {
	reg := &AgentRegistry{detected: map[AgentType]DetectedAgent{
		AgentGeminiCLI: {AgentType: AgentGeminiCLI, Found: false},
	}}

	resolved, warning := reg.Resolve(AgentGeminiCLI)
	if resolved != AgentTerminal {
		t.Errorf("Resolve(uninstalled) = %q, want %q", resolved, AgentTerminal)
	}
	if warning == "" {
		t.Error("Resolve(uninstalled) warning is empty, want a fallback message")
	}
}

func TestResolveProviderPrecedence(t *testing.T) {
	cases := []struct {
		name          string
		explicit      ProviderChoice
		systemDefault ProviderChoice
		model         string
		want          ProviderChoice
	}{
		{"explicit wins", ProviderOpenRouter, ProviderOpenAI, "gpt-4", ProviderOpenRouter},
		{"falls back to system default", "", ProviderOpenRouter, "gpt-4", ProviderOpenRouter},
		{"model prefix implies openrouter", "", "", "openrouter/anthropic/claude", ProviderOpenRouter},
		{"defaults to openai", "", "", "gpt-4", ProviderOpenAI},
	}
	for _, c := range cases {
		if got := resolveProvider(c.explicit, c.systemDefault, c.model); got != c.want {
			t.Errorf("%s: resolveProvider() = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestProviderEnvOpenRouterFallsBackToSharedKey(t *testing.T) {
	env := ProviderEnv(ProviderOpenRouter, "", "or-key", "/home/u")

	if env["OPENAI_API_KEY"] != "or-key" {
		t.Errorf("OPENAI_API_KEY = %q, want %q", env["OPENAI_API_KEY"], "or-key")
	}
	if env["OPENROUTER_API_KEY"] != "or-key" {
		t.Errorf("OPENROUTER_API_KEY = %q, want %q", env["OPENROUTER_API_KEY"], "or-key")
	}
	if env["CODEX_HOME"] == "" {
		t.Error("CODEX_HOME is empty, want a path under homeDir")
	}
}

func TestProviderEnvOpenAIClearsOpenRouterFields(t *testing.T) {
	env := ProviderEnv(ProviderOpenAI, "sk-test", "or-key", "/home/u")

	if env["OPENAI_API_KEY"] != "sk-test" {
		t.Errorf("OPENAI_API_KEY = %q, want %q", env["OPENAI_API_KEY"], "sk-test")
	}
	if env["OPENROUTER_API_KEY"] != "" {
		t.Errorf("OPENROUTER_API_KEY = %q, want empty", env["OPENROUTER_API_KEY"])
	}
}

func TestLaunchLineClaudeCodeWithModel(t *testing.T) {
	got := LaunchLine(AgentClaudeCode, "claude", "opus", false)
	want := "claude --model 'opus'"
	if got != want {
		t.Errorf("LaunchLine() = %q, want %q", got, want)
	}
}

func TestLaunchLineClaudeCodeWithoutModel(t *testing.T) {
	got := LaunchLine(AgentClaudeCode, "claude", "", false)
	if got != "claude" {
		t.Errorf("LaunchLine() = %q, want %q", got, "claude")
	}
}

func TestLaunchLineCodexIncludesSandboxAndApproval(t *testing.T) {
	got := LaunchLine(AgentCodex, "codex", "", false)
	for _, want := range []string{"--sandbox workspace-write", "--ask-for-approval on-failure"} {
		if !strings.Contains(got, want) {
			t.Errorf("LaunchLine() = %q, missing %q", got, want)
		}
	}
}

func TestLaunchLineOpenRouterForcesAPILogin(t *testing.T) {
	got := LaunchLine(AgentOpenRouter, "codex", "anthropic/claude", false)
	if !strings.Contains(got, `forced_login_method="api"`) {
		t.Errorf("LaunchLine() = %q, want forced_login_method=api", got)
	}
}

func TestLaunchLineTerminalIsEmpty(t *testing.T) {
	if got := LaunchLine(AgentTerminal, "", "", false); got != "" {
		t.Errorf("LaunchLine(Terminal) = %q, want empty", got)
	}
}
