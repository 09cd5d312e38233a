package memory

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Retire removes every document of a conversation and prunes its locks.
func (m *Manager) Retire(ctx context.Context, conversationID string) error {
	dir, err := m.convDir(conversationID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remove memory dir: %w", err)
	}
	pruned := m.dropLocks(conversationID)
	m.logger.InfoContext(ctx, "conversation memory retired", "conversation_id", conversationID, "locks_pruned", pruned)
	return nil
}

// DocumentStats describes one persisted document.
type DocumentStats struct {
	SizeBytes       int  `json:"size_bytes"`
	EstimatedTokens int  `json:"estimated_tokens"`
	HasNotes        bool `json:"has_notes"`
}

// Stats reports size and notes presence for each existing document.
func (m *Manager) Stats(conversationID string) (map[string]DocumentStats, error) {
	stats := make(map[string]DocumentStats)
	for _, h := range memoryHandlers {
		path, err := m.path(conversationID, h)
		if err != nil {
			return nil, err
		}
		doc, ok, err := m.readDocument(path)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		stats[h] = DocumentStats{
			SizeBytes:       len(doc),
			EstimatedTokens: m.counter.CountTokens(doc),
			HasNotes:        notesStart(doc) >= 0,
		}
	}
	return stats, nil
}

// StaleCandidates lists conversations whose newest document is older than
// maxAge without removing anything. A non-positive maxAge uses
// DefaultStaleAge.
func (m *Manager) StaleCandidates(ctx context.Context, maxAge time.Duration) ([]string, error) {
	if maxAge <= 0 {
		maxAge = DefaultStaleAge
	}
	entries, err := os.ReadDir(m.baseDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list memory dir: %w", err)
	}

	cutoff := m.now().Add(-maxAge)
	var stale []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return stale, err
		}
		if !e.IsDir() {
			continue
		}
		latest, err := newestFile(filepath.Join(m.baseDir, e.Name()))
		if err != nil {
			return stale, err
		}
		if latest.IsZero() || !latest.Before(cutoff) {
			continue
		}
		stale = append(stale, e.Name())
	}
	return stale, nil
}

// CleanupStale retires every conversation StaleCandidates reports and
// returns their ids.
func (m *Manager) CleanupStale(ctx context.Context, maxAge time.Duration) ([]string, error) {
	stale, err := m.StaleCandidates(ctx, maxAge)
	if err != nil {
		return nil, err
	}
	cleaned := make([]string, 0, len(stale))
	for _, id := range stale {
		if err := m.Retire(ctx, id); err != nil {
			return cleaned, err
		}
		cleaned = append(cleaned, id)
	}
	return cleaned, nil
}

// newestFile returns the latest modification time of the documents and
// library pages under dir. Temp files are ignored.
func newestFile(dir string) (time.Time, error) {
	var latest time.Time
	err := filepath.WalkDir(dir, func(path string, e fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("list %s: %w", path, err)
		}
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			return nil
		}
		info, err := e.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(latest) {
			latest = info.ModTime()
		}
		return nil
	})
	return latest, err
}
