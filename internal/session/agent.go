package session

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// AgentType enumerates the interactive CLIs a session pane can run.
type AgentType string

const (
	AgentClaudeCode AgentType = "claude_code"
	AgentGeminiCLI  AgentType = "gemini_cli"
	AgentCodex      AgentType = "codex"
	AgentOpenRouter AgentType = "openrouter"
	AgentTerminal   AgentType = "terminal"
)

// CLICommand returns the executable name used to detect and launch this
// agent type, mirroring agent_detection.rs's cli_command().
func (a AgentType) CLICommand() string {
	switch a {
	case AgentClaudeCode:
		return "claude"
	case AgentGeminiCLI:
		return "gemini"
	case AgentCodex, AgentOpenRouter:
		return "codex"
	default:
		return ""
	}
}

// DisplayName is a human-readable label for the agent type.
func (a AgentType) DisplayName() string {
	switch a {
	case AgentClaudeCode:
		return "Claude Code"
	case AgentGeminiCLI:
		return "Gemini CLI"
	case AgentCodex:
		return "Codex"
	case AgentOpenRouter:
		return "OpenRouter"
	default:
		return "Terminal"
	}
}

// DetectedAgent records what was found on PATH for one agent type.
type DetectedAgent struct {
	AgentType AgentType
	Command   string
	Found     bool
	Path      string
	Version   string // best-effort; empty if unparseable or unsupported
}

// AgentRegistry is an immutable-after-detection map from agent type to what
// was found on PATH. Terminal is always present.
type AgentRegistry struct {
	detected map[AgentType]DetectedAgent
}

// DetectAgents probes PATH for every known non-Terminal agent plus the
// user's default shell for Terminal, grounded on agent_detection.rs's
// which_like/DetectAgents flow (exec.LookPath is the Go idiom for
// which/where).
func DetectAgents(ctx context.Context) *AgentRegistry {
	reg := &AgentRegistry{detected: make(map[AgentType]DetectedAgent)}

	for _, at := range []AgentType{AgentClaudeCode, AgentGeminiCLI, AgentCodex} {
		reg.detected[at] = detectOne(ctx, at)
	}
	// OpenRouter shares the codex binary; reuse its detection result.
	if codex, ok := reg.detected[AgentCodex]; ok {
		reg.detected[AgentOpenRouter] = DetectedAgent{
			AgentType: AgentOpenRouter,
			Command:   codex.Command,
			Found:     codex.Found,
			Path:      codex.Path,
			Version:   codex.Version,
		}
	}

	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/bash"
	}
	reg.detected[AgentTerminal] = DetectedAgent{
		AgentType: AgentTerminal,
		Command:   shell,
		Found:     true,
		Path:      shell,
	}

	return reg
}

func detectOne(ctx context.Context, at AgentType) DetectedAgent {
	cmd := at.CLICommand()
	path, err := exec.LookPath(cmd)
	if err != nil {
		return DetectedAgent{AgentType: at, Command: cmd, Found: false}
	}

	d := DetectedAgent{AgentType: at, Command: cmd, Found: true, Path: path}

	vctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	out, verr := exec.CommandContext(vctx, path, "--version").Output()
	if verr == nil {
		d.Version = strings.TrimSpace(string(out))
	}
	return d
}

// IsInstalled reports whether at was found on PATH (Terminal is always
// installed).
func (r *AgentRegistry) IsInstalled(at AgentType) bool {
	d, ok := r.detected[at]
	return ok && d.Found
}

// Get returns the detection result for at.
func (r *AgentRegistry) Get(at AgentType) (DetectedAgent, bool) {
	d, ok := r.detected[at]
	return d, ok
}

// List returns all registry entries in a stable order.
func (r *AgentRegistry) List() []DetectedAgent {
	order := []AgentType{AgentTerminal, AgentClaudeCode, AgentGeminiCLI, AgentCodex, AgentOpenRouter}
	out := make([]DetectedAgent, 0, len(order))
	for _, at := range order {
		if d, ok := r.detected[at]; ok {
			out = append(out, d)
		}
	}
	return out
}

// Resolve implements the Session Manager's agent-fallback decision: Terminal
// stays Terminal; an installed agent is used as requested; an uninstalled
// agent falls back to Terminal with a warning string.
func (r *AgentRegistry) Resolve(requested AgentType) (resolved AgentType, warning string) {
	if requested == AgentTerminal {
		return AgentTerminal, ""
	}
	if r.IsInstalled(requested) {
		return requested, ""
	}
	return AgentTerminal, fmt.Sprintf("%s not found on PATH; falling back to a plain shell", requested.DisplayName())
}

// ProviderChoice is the resolved provider for a Codex/OpenRouter session.
type ProviderChoice string

const (
	ProviderOpenAI     ProviderChoice = "openai"
	ProviderOpenRouter ProviderChoice = "openrouter"
)

// resolveProvider implements the precedence rule: explicit override wins;
// otherwise the system default; otherwise a model name beginning with
// "openrouter/" implies OpenRouter.
func resolveProvider(explicit, systemDefault ProviderChoice, model string) ProviderChoice {
	if explicit != "" {
		return explicit
	}
	if systemDefault != "" {
		return systemDefault
	}
	if strings.HasPrefix(model, "openrouter/") {
		return ProviderOpenRouter
	}
	return ProviderOpenAI
}

// ProviderEnv computes the environment variables to export before the
// launch line, per the codex-provider table in the external interfaces.
func ProviderEnv(provider ProviderChoice, apiKey, openRouterKey, homeDir string) map[string]string {
	switch provider {
	case ProviderOpenRouter:
		codexHome := filepath.Join(homeDir, ".synk", "codex-openrouter")
		return map[string]string{
			"OPENAI_BASE_URL":   "https://openrouter.ai/api/v1",
			"OPENAI_API_KEY":    firstNonEmpty(apiKey, openRouterKey),
			"OPENROUTER_API_KEY": firstNonEmpty(openRouterKey, apiKey),
			"CODEX_HOME":        codexHome,
		}
	default:
		return map[string]string{
			"OPENAI_API_KEY":     apiKey,
			"OPENAI_BASE_URL":    "",
			"OPENROUTER_API_KEY": "",
			"CODEX_HOME":         "",
		}
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// LaunchLine builds the deterministic agent launch line, appended with
// "\r\n" by the caller. Terminal has no launch line (empty string).
func LaunchLine(at AgentType, cliCommand, model string, forcedLoginMethod bool) string {
	switch at {
	case AgentClaudeCode, AgentGeminiCLI:
		if model != "" {
			return fmt.Sprintf("%s --model '%s'", cliCommand, model)
		}
		return cliCommand
	case AgentCodex, AgentOpenRouter:
		parts := []string{
			"codex",
			"--sandbox workspace-write",
			"--ask-for-approval on-failure",
			`-c 'model_reasoning_effort="high"'`,
		}
		if model != "" {
			parts = append(parts, fmt.Sprintf(`-c 'model="%s"'`, model))
		}
		if at == AgentOpenRouter || forcedLoginMethod {
			parts = append(parts, `-c 'forced_login_method="api"'`)
		}
		return strings.Join(parts, " ")
	default:
		return ""
	}
}
