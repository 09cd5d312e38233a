package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/state"
)

// Manager loads and saves conversation state through a Repository. The
// control record never leaves the process: it is checkpointed in memory
// between turns and dropped on retire.
type Manager struct {
	repo   Repository
	logger *slog.Logger
	now    func() time.Time

	mu          sync.RWMutex
	checkpoints map[string]state.Control
	// persisted holds the domain keys last read or written per
	// conversation, so a commit can delete the ones a turn cleared.
	persisted map[string]map[string]bool
}

// Option is a function that configures a Manager.
type Option func(*Manager)

// WithLogger overrides the logger used by the manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithClock overrides the timestamp source for new conversations.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager over repo.
//
// Example:
//
//	mgr := session.NewManager(store.NewInMemoryStore())
func NewManager(repo Repository, opts ...Option) *Manager {
	m := &Manager{
		repo:        repo,
		now:         func() time.Time { return time.Now().UTC() },
		checkpoints: make(map[string]state.Control),
		persisted:   make(map[string]map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = logging.WithComponent("session_manager")
	}
	return m
}

// NewConversationID returns a fresh random conversation id.
func NewConversationID() string {
	return uuid.NewString()
}

// Open returns the state for id with inbound recorded as the pending
// message. Unknown ids start a new conversation.
func (m *Manager) Open(ctx context.Context, id, inbound string) (*state.State, error) {
	if id == "" {
		return nil, fmt.Errorf("conversation id is required: %w", errorskg.ErrInvalidInput)
	}
	doc, err := m.repo.Load(ctx, id)
	var st *state.State
	switch {
	case errors.Is(err, errorskg.ErrNotFound):
		m.logger.Info("starting conversation", "conversation_id", id)
		st = state.New(id)
		now := m.now()
		st.CreatedAt, st.UpdatedAt = now, now
	case err != nil:
		m.logger.Error("load conversation failed", "conversation_id", id, "error", err)
		return nil, fmt.Errorf("failed to load conversation %s: %w", id, err)
	default:
		st, err = Decode(doc)
		if err != nil {
			return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
		}
		st.ConversationID = id
	}

	m.mu.Lock()
	m.persisted[id] = domainKeys(doc)
	if ctl, ok := m.checkpoints[id]; ok {
		st.Control = ctl
		st.Control.Chain = append([]string(nil), ctl.Chain...)
	}
	m.mu.Unlock()
	st.Control.Inbound = inbound
	return st, nil
}

// Commit checkpoints the control record and merges the persistable fields
// into the repository.
func (m *Manager) Commit(ctx context.Context, st *state.State) error {
	if st == nil || st.ConversationID == "" {
		return fmt.Errorf("state without conversation id: %w", errorskg.ErrInvalidInput)
	}
	doc, err := Encode(st)
	if err != nil {
		return err
	}
	m.mu.RLock()
	tombstone(doc, m.persisted[st.ConversationID])
	m.mu.RUnlock()
	if err := m.repo.Save(ctx, st.ConversationID, doc); err != nil {
		m.logger.Error("save conversation failed", "conversation_id", st.ConversationID, "error", err)
		return fmt.Errorf("failed to save conversation %s: %w", st.ConversationID, err)
	}

	ctl := st.Control
	ctl.Inbound = ""
	ctl.Chain = append([]string(nil), st.Control.Chain...)
	m.mu.Lock()
	m.checkpoints[st.ConversationID] = ctl
	m.persisted[st.ConversationID] = domainKeys(doc)
	m.mu.Unlock()

	m.logger.Debug("conversation saved", "conversation_id", st.ConversationID, "keys", len(doc))
	return nil
}

// Retire deletes the conversation and its checkpoint.
func (m *Manager) Retire(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.checkpoints, id)
	delete(m.persisted, id)
	m.mu.Unlock()

	if err := m.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	m.logger.Info("conversation retired", "conversation_id", id)
	return nil
}

// List returns the stored conversation ids.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.repo.List(ctx)
}

// Exists reports whether the conversation has been saved.
func (m *Manager) Exists(ctx context.Context, id string) (bool, error) {
	return m.repo.Exists(ctx, id)
}

// Load returns the saved state without touching checkpoints.
func (m *Manager) Load(ctx context.Context, id string) (*state.State, error) {
	doc, err := m.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	st, err := Decode(doc)
	if err != nil {
		return nil, err
	}
	st.ConversationID = id
	return st, nil
}

func (m *Manager) checkpointCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.checkpoints)
}
