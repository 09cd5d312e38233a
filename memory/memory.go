// Package memory maintains one markdown document per (conversation, handler).
//
// A document is rebuilt from shared state on every refresh. Only the notes
// block at its tail survives a rebuild:
//
//	<!-- memory_format: 1 -->
//	# Research Memory — Japan Trip
//
//	## Trip Context [auto-refreshed]
//	...
//	## Cross-Agent Insights [auto-refreshed]
//	[planner] - [shared] ...
//
//	## Agent Notes [accumulated] <!-- mem:notes -->
//	- [pinned] ...
//	- ...
//
// Writes are atomic (temp file, fsync, rename) and serialized per key by a
// lock registry owned by the Manager. SyncLibrary uses the same write path
// to render the whole trip as browsable pages under <conversation>/library/.
package memory

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/pkg/logging"
	"github.com/sehgal-vip/travel-agent/pkg/telemetry"
)

const (
	NotesMarker       = "## Agent Notes [accumulated] <!-- mem:notes -->"
	LegacyNotesMarker = "## Agent Notes [accumulated]"
	PinnedTag         = "[pinned]"
	SharedTag         = "[shared]"
	FormatVersion     = "1"

	DefaultMaxPinned    = 10
	DefaultMaxEphemeral = 25
	DefaultMaxShared    = 15
	DefaultWarnBytes    = 50 * 1024
	DefaultStaleAge     = 90 * 24 * time.Hour

	fileExt = ".md"
)

var (
	memoryHandlers = []string{handler.Cost, handler.Feedback, handler.Planner, handler.Prioritizer, handler.Research, handler.Scheduler}
	notesHandlers  = map[string]bool{handler.Research: true, handler.Planner: true, handler.Feedback: true}
)

// Eligible reports whether a handler owns a memory document.
func Eligible(name string) bool {
	for _, h := range memoryHandlers {
		if h == name {
			return true
		}
	}
	return false
}

// NotesEligible reports whether notes are generated after a handler acts.
func NotesEligible(name string) bool { return notesHandlers[name] }

// Handlers returns the memory-eligible handler names in sorted order.
func Handlers() []string { return append([]string(nil), memoryHandlers...) }

// TokenCounter counts prompt tokens.
type TokenCounter interface {
	CountTokens(text string) int
}

// estimateCounter assumes three characters per token, which stays safe for
// CJK and emoji.
type estimateCounter struct{}

func (estimateCounter) CountTokens(text string) int { return len([]rune(text)) / 3 }

type lockKey struct {
	conversation string
	handler      string
}

// Manager builds, persists and maintains memory documents under a base
// directory laid out as <base>/<conversation>/<handler>.md.
type Manager struct {
	baseDir      string
	maxPinned    int
	maxEphemeral int
	maxShared    int
	warnBytes    int
	counter      TokenCounter
	logger       *slog.Logger
	tracer       trace.Tracer
	now          func() time.Time

	mu    sync.RWMutex
	locks map[lockKey]*sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithTracer sets the tracer used for persist spans.
func WithTracer(t trace.Tracer) Option {
	return func(m *Manager) {
		if t != nil {
			m.tracer = t
		}
	}
}

// WithTokenCounter replaces the character-based token estimate.
func WithTokenCounter(c TokenCounter) Option {
	return func(m *Manager) {
		if c != nil {
			m.counter = c
		}
	}
}

// WithNoteCaps sets the pinned and ephemeral line caps.
func WithNoteCaps(pinned, ephemeral int) Option {
	return func(m *Manager) {
		if pinned > 0 {
			m.maxPinned = pinned
		}
		if ephemeral > 0 {
			m.maxEphemeral = ephemeral
		}
	}
}

// WithSizeWarning sets the byte size above which persist logs a warning.
func WithSizeWarning(bytes int) Option {
	return func(m *Manager) {
		if bytes > 0 {
			m.warnBytes = bytes
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a manager rooted at baseDir.
func NewManager(baseDir string, opts ...Option) *Manager {
	m := &Manager{
		baseDir:      baseDir,
		maxPinned:    DefaultMaxPinned,
		maxEphemeral: DefaultMaxEphemeral,
		maxShared:    DefaultMaxShared,
		warnBytes:    DefaultWarnBytes,
		counter:      estimateCounter{},
		logger:       logging.WithComponent("memory"),
		tracer:       telemetry.Tracer("memory"),
		now:          time.Now,
		locks:        make(map[lockKey]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// BaseDir returns the root directory.
func (m *Manager) BaseDir() string { return m.baseDir }

func (m *Manager) lockFor(conversationID, handlerName string) *sync.Mutex {
	key := lockKey{conversationID, handlerName}
	m.mu.RLock()
	l, ok := m.locks[key]
	m.mu.RUnlock()
	if ok {
		return l
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.locks[key]; !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

func (m *Manager) dropLocks(conversationID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for key := range m.locks {
		if key.conversation == conversationID {
			delete(m.locks, key)
			n++
		}
	}
	return n
}

// lockCount is used by tests to observe registry pruning.
func (m *Manager) lockCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.locks)
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

func (m *Manager) convDir(conversationID string) (string, error) {
	if !validSegment(conversationID) {
		return "", fmt.Errorf("conversation id %q: %w", conversationID, errorskg.ErrInvalidInput)
	}
	return filepath.Join(m.baseDir, conversationID), nil
}

func (m *Manager) path(conversationID, handlerName string) (string, error) {
	dir, err := m.convDir(conversationID)
	if err != nil {
		return "", err
	}
	if !Eligible(handlerName) {
		return "", fmt.Errorf("handler %q: %w", handlerName, errorskg.ErrNotEligible)
	}
	return filepath.Join(dir, handlerName+fileExt), nil
}

func (m *Manager) readDocument(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read memory %s: %w", path, err)
	}
	return string(data), true, nil
}
