// Package schedule implements the deferred-command queue: persisting
// commands for a future instant, timing their execution with one-shot
// timers or a periodic sweep, restoring them across process restarts and
// cancelling them on request.
package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	ports "github.com/embervale/hearth-agent/hearth/agent/ports"
)

// SettingsKey is the well-known settings key holding the full scheduled
// command map.
const SettingsKey = "scheduler.commands"

// StatusPending is the only status ever persisted; executed or cancelled
// commands are removed outright instead of being marked.
const StatusPending = "pending"

// Command is one persisted deferred command. ExecuteAt and CreatedAt are
// stored in UTC; DelayMinutes is the delay as computed at creation time.
type Command struct {
	ID           string    `json:"id"`
	Text         string    `json:"command"`
	Description  string    `json:"description"`
	ExecuteAt    time.Time `json:"executeAt"`
	CreatedAt    time.Time `json:"createdAt"`
	DelayMinutes int       `json:"delayMinutes"`
	Status       string    `json:"status"`
}

// Store persists the command map as one JSON document in the settings
// store. A single mutex serializes the read-modify-write cycles; timer,
// sweep and management callers all go through it concurrently.
type Store struct {
	mu       sync.Mutex
	settings ports.Settings
}

// NewStore wraps the settings store.
func NewStore(settings ports.Settings) *Store {
	return &Store{settings: settings}
}

func (s *Store) load(ctx context.Context) (map[string]Command, error) {
	raw, ok, err := s.settings.Get(ctx, SettingsKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load scheduled commands: %w", err)
	}
	commands := make(map[string]Command)
	if !ok || raw == "" {
		return commands, nil
	}
	if err := json.Unmarshal([]byte(raw), &commands); err != nil {
		return nil, fmt.Errorf("failed to decode scheduled commands: %w", err)
	}
	return commands, nil
}

func (s *Store) save(ctx context.Context, commands map[string]Command) error {
	raw, err := json.Marshal(commands)
	if err != nil {
		return fmt.Errorf("failed to encode scheduled commands: %w", err)
	}
	return s.settings.Set(ctx, SettingsKey, string(raw))
}

// Put persists cmd, replacing any record with the same id.
func (s *Store) Put(ctx context.Context, cmd Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	commands, err := s.load(ctx)
	if err != nil {
		return err
	}
	commands[cmd.ID] = cmd
	return s.save(ctx, commands)
}

// Get returns the record for id and whether it exists.
func (s *Store) Get(ctx context.Context, id string) (Command, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	commands, err := s.load(ctx)
	if err != nil {
		return Command{}, false, err
	}
	cmd, ok := commands[id]
	return cmd, ok, nil
}

// Delete removes id and reports whether a record existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	commands, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := commands[id]; !ok {
		return false, nil
	}
	delete(commands, id)
	return true, s.save(ctx, commands)
}

// All returns every persisted command, soonest first.
func (s *Store) All(ctx context.Context) ([]Command, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	commands, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Command, 0, len(commands))
	for _, cmd := range commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExecuteAt.Before(out[j].ExecuteAt) })
	return out, nil
}
