package providers

import "fmt"

// ClaudeAdapter builds argv for the "claude" CLI.
type ClaudeAdapter struct {
	commandPath string
}

func NewClaudeAdapter() *ClaudeAdapter { return &ClaudeAdapter{commandPath: "claude"} }

func (a *ClaudeAdapter) Name() string        { return "claude" }
func (a *ClaudeAdapter) DisplayName() string { return "Claude" }
func (a *ClaudeAdapter) AvailableModels() []string {
	return []string{"opus", "sonnet", "haiku"}
}
func (a *ClaudeAdapter) DefaultModel() string { return "sonnet" }
func (a *ClaudeAdapter) SupportsResume() bool { return true }

func (a *ClaudeAdapter) BuildCommand(cfg Config) ([]string, error) {
	argv := []string{a.commandPath}
	switch cfg.Mode {
	case ModeShell:
		return nil, fmt.Errorf("claude: shell mode has no provider command")
	case ModeResume:
		if cfg.SessionID == "" {
			return nil, fmt.Errorf("claude: resume requires a session id")
		}
		argv = append(argv, "--resume", cfg.SessionID)
	default: // ModeNew
		if cfg.Model != "" {
			argv = append(argv, "--model", cfg.Model)
		}
		if cfg.SessionID != "" {
			argv = append(argv, "--session-id", cfg.SessionID)
		}
		if cfg.Prompt != "" {
			argv = append(argv, cfg.Prompt)
		}
	}
	return argv, nil
}
