// Package providers resolves a provider name ("claude", "codex", "gemini")
// plus a requested model/session mode into a spawnable argv, so
// internal/ptysup never has to know about any particular CLI tool's flags.
//
// SUPPLEMENTED FEATURE: spec.md treats "Provider" as an opaque string
// stored on a session. original_source/amux-daemon/src/providers holds the
// argv-building logic the distillation dropped; the Adapter interface
// shape (a small per-provider struct registered into a Registry) is
// grounded on internal/provideradapters/registry.go, though the method set
// here is argv construction rather than pane-text classification.
package providers

import (
	"fmt"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// Mode selects how a provider CLI should start.
type Mode string

const (
	ModeShell  Mode = "shell"
	ModeNew    Mode = "new"
	ModeResume Mode = "resume"
)

// Config parameterizes BuildCommand.
type Config struct {
	Mode      Mode
	Model     string
	SessionID string // used when Mode == ModeResume, or carried through for ModeNew
	Prompt    string
}

// Adapter builds the argv for one provider CLI.
type Adapter interface {
	Name() string
	DisplayName() string
	AvailableModels() []string
	DefaultModel() string
	SupportsResume() bool
	BuildCommand(cfg Config) ([]string, error)
}

// Registry resolves provider names to Adapters.
type Registry struct {
	adapters map[string]Adapter
	def      string
}

// NewRegistry builds a registry from the given adapters, skipping nils.
func NewRegistry(def string, adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters)), def: def}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		r.adapters[a.Name()] = a
	}
	return r
}

// DefaultRegistry returns claude/codex/gemini wired with their argv tables.
func DefaultRegistry() *Registry {
	return NewRegistry("claude",
		NewClaudeAdapter(),
		NewCodexAdapter(),
		NewGeminiAdapter(),
	)
}

// Get returns the named adapter, or ErrNotFound.
func (r *Registry) Get(name string) (Adapter, error) {
	if name == "" {
		name = r.def
	}
	a, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: provider %q", amuxerr.ErrNotFound, name)
	}
	return a, nil
}

// Names lists every registered provider name.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		out = append(out, name)
	}
	return out
}

// ValidateModel checks that model is one of provider's AvailableModels, or
// accepts the empty string (meaning "use the default").
func (r *Registry) ValidateModel(provider, model string) error {
	if model == "" {
		return nil
	}
	a, err := r.Get(provider)
	if err != nil {
		return err
	}
	for _, m := range a.AvailableModels() {
		if m == model {
			return nil
		}
	}
	return fmt.Errorf("%w: model %q not available for provider %q", amuxerr.ErrConflict, model, provider)
}

// BuildCommand resolves provider and builds its argv, falling back to the
// provider's default model when cfg.Model is empty.
func (r *Registry) BuildCommand(provider string, cfg Config) ([]string, error) {
	a, err := r.Get(provider)
	if err != nil {
		return nil, err
	}
	if cfg.Model == "" {
		cfg.Model = a.DefaultModel()
	}
	return a.BuildCommand(cfg)
}
