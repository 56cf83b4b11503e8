// Package todo is a SUPPLEMENTED FEATURE: original_source tracks a
// per-worktree todo list alongside session state, which spec.md's
// distillation dropped. Persisted as a single JSON file per repo under
// ~/.amux/todos/<repo>/todos.json, following the same one-file-per-scope
// idiom as internal/review. Round-trips exactly as written (R3): no field
// is normalized or reordered on save/load.
package todo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/amux-dev/amux/internal/amuxerr"
)

// Item is one todo entry, scoped to a repo (not a branch: a plan usually
// spans a whole feature, not a single worktree).
type Item struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"created_at"`
}

// Store manages todo Items for every repo, one file each.
type Store struct {
	baseDir string

	mu    sync.Mutex
	items map[string][]Item // repoID -> items
}

// New creates a Store persisting under baseDir (normally ~/.amux/todos).
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir, items: map[string][]Item{}}
}

func (s *Store) path(repoID string) string {
	return filepath.Join(s.baseDir, repoID, "todos.json")
}

func (s *Store) load(repoID string) ([]Item, error) {
	if items, ok := s.items[repoID]; ok {
		return items, nil
	}
	data, err := os.ReadFile(s.path(repoID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read todos: %w", err)
	}
	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode todos: %w", err)
	}
	return items, nil
}

func (s *Store) save(repoID string, items []Item) error {
	path := s.path(repoID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create todo dir: %w", err)
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encode todos: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write todos: %w", err)
	}
	s.items[repoID] = items
	return nil
}

// List returns every todo item for repoID, in stored order.
func (s *Store) List(ctx context.Context, repoID string) ([]Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(repoID)
	if err != nil {
		return nil, err
	}
	return append([]Item(nil), items...), nil
}

// Add appends item and persists.
func (s *Store) Add(ctx context.Context, repoID string, item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(repoID)
	if err != nil {
		return err
	}
	items = append(items, item)
	return s.save(repoID, items)
}

// SetDone toggles an item's completion state.
func (s *Store) SetDone(ctx context.Context, repoID, itemID string, done bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(repoID)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == itemID {
			items[i].Done = done
			return s.save(repoID, items)
		}
	}
	return fmt.Errorf("%w: todo %s", amuxerr.ErrNotFound, itemID)
}

// Delete removes an item.
func (s *Store) Delete(ctx context.Context, repoID, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	items, err := s.load(repoID)
	if err != nil {
		return err
	}
	for i := range items {
		if items[i].ID == itemID {
			items = append(items[:i], items[i+1:]...)
			return s.save(repoID, items)
		}
	}
	return fmt.Errorf("%w: todo %s", amuxerr.ErrNotFound, itemID)
}
