package memory

import (
	"context"
	"fmt"
	"strings"
)

// notesStart returns the index just past the notes marker, or -1.
func notesStart(doc string) int {
	if i := strings.Index(doc, NotesMarker); i >= 0 {
		return i + len(NotesMarker)
	}
	if i := strings.Index(doc, LegacyNotesMarker); i >= 0 {
		return i + len(LegacyNotesMarker)
	}
	return -1
}

// capNotes keeps the most recent pinned and ephemeral lines independently,
// pinned lines first.
func capNotes(raw string, maxPinned, maxEphemeral int) []string {
	var pinned, ephemeral []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimRight(line, " \t\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if strings.Contains(line, PinnedTag) {
			pinned = append(pinned, line)
		} else {
			ephemeral = append(ephemeral, line)
		}
	}
	if len(pinned) > maxPinned {
		pinned = pinned[len(pinned)-maxPinned:]
	}
	if len(ephemeral) > maxEphemeral {
		ephemeral = ephemeral[len(ephemeral)-maxEphemeral:]
	}
	return append(pinned, ephemeral...)
}

func (m *Manager) notesFrom(doc string) (string, bool) {
	start := notesStart(doc)
	if start < 0 {
		return "", false
	}
	lines := capNotes(doc[start:], m.maxPinned, m.maxEphemeral)
	if len(lines) == 0 {
		return "", false
	}
	return strings.Join(lines, "\n"), true
}

// ReadNotes returns the capped notes of a handler's document. The bool is
// false when the document or its notes block does not exist.
func (m *Manager) ReadNotes(conversationID, handlerName string) (string, bool, error) {
	path, err := m.path(conversationID, handlerName)
	if err != nil {
		return "", false, err
	}
	doc, ok, err := m.readDocument(path)
	if err != nil || !ok {
		return "", false, err
	}
	notes, ok := m.notesFrom(doc)
	return notes, ok, nil
}

func sanitizeNotes(notes string) string {
	notes = strings.ReplaceAll(notes, NotesMarker, "")
	notes = strings.ReplaceAll(notes, LegacyNotesMarker, "")
	return strings.TrimSpace(notes)
}

// AppendNotes appends note lines under the notes marker. The marker, and
// the document itself, are created when missing.
func (m *Manager) AppendNotes(ctx context.Context, conversationID, handlerName, notes string) error {
	path, err := m.path(conversationID, handlerName)
	if err != nil {
		return err
	}
	notes = sanitizeNotes(notes)
	if notes == "" {
		return nil
	}

	lock := m.lockFor(conversationID, handlerName)
	lock.Lock()
	defer lock.Unlock()

	doc, _, err := m.readDocument(path)
	if err != nil {
		return err
	}
	switch {
	case notesStart(doc) >= 0:
		doc = strings.TrimRight(doc, "\n") + "\n" + notes
	case doc == "":
		doc = NotesMarker + "\n" + notes
	default:
		doc = strings.TrimRight(doc, "\n") + "\n\n" + NotesMarker + "\n" + notes
	}

	if _, err := m.persistLocked(ctx, conversationID, handlerName, path, doc); err != nil {
		return fmt.Errorf("append notes: %w", err)
	}
	return nil
}
