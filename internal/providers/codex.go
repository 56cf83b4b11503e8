package providers

import "fmt"

// CodexAdapter builds argv for the "codex" CLI.
type CodexAdapter struct {
	commandPath string
}

func NewCodexAdapter() *CodexAdapter { return &CodexAdapter{commandPath: "codex"} }

func (a *CodexAdapter) Name() string        { return "codex" }
func (a *CodexAdapter) DisplayName() string { return "OpenAI Codex" }
func (a *CodexAdapter) AvailableModels() []string {
	return []string{"o4-mini", "gpt-4"}
}
func (a *CodexAdapter) DefaultModel() string { return "o4-mini" }
func (a *CodexAdapter) SupportsResume() bool { return true }

func (a *CodexAdapter) BuildCommand(cfg Config) ([]string, error) {
	argv := []string{a.commandPath}
	switch cfg.Mode {
	case ModeShell:
		return nil, fmt.Errorf("codex: shell mode has no provider command")
	case ModeResume:
		if cfg.SessionID == "" {
			return nil, fmt.Errorf("codex: resume requires a session id")
		}
		argv = append(argv, "resume", cfg.SessionID)
	default: // ModeNew
		if cfg.Model != "" {
			argv = append(argv, "--model", cfg.Model)
		}
		if cfg.Prompt != "" {
			argv = append(argv, cfg.Prompt)
		}
	}
	return argv, nil
}
