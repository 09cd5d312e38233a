package memory

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sehgal-vip/travel-agent/pkg/telemetry"
)

// Persist writes content as the handler's document. It reports whether a
// write happened; identical content is skipped.
func (m *Manager) Persist(ctx context.Context, conversationID, handlerName, content string) (bool, error) {
	path, err := m.path(conversationID, handlerName)
	if err != nil {
		return false, err
	}
	lock := m.lockFor(conversationID, handlerName)
	lock.Lock()
	defer lock.Unlock()
	return m.persistLocked(ctx, conversationID, handlerName, path, content)
}

func (m *Manager) persistLocked(ctx context.Context, conversationID, handlerName, path, content string) (written bool, err error) {
	_, span := m.tracer.Start(ctx, "memory.persist", trace.WithAttributes(
		telemetry.Conversation(conversationID),
		telemetry.Handler(handlerName),
		attribute.Int("memory.bytes", len(content)),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("memory.written", written))
		telemetry.End(span, err)
	}()

	same, err := sameContent(path, content)
	if err != nil || same {
		return false, err
	}

	if err := atomicWrite(path, []byte(content)); err != nil {
		return false, err
	}

	size := len(content)
	tokens := m.counter.CountTokens(content)
	m.logger.Debug("memory written",
		"conversation_id", conversationID,
		"handler", handlerName,
		"bytes", size,
		"estimated_tokens", tokens,
	)
	if size > m.warnBytes {
		m.logger.Warn("memory document exceeds size threshold",
			"conversation_id", conversationID,
			"handler", handlerName,
			"bytes", size,
			"threshold_bytes", m.warnBytes,
			"estimated_tokens", tokens,
		)
	}
	return true, nil
}

func hashOf(content string) []byte {
	sum := sha256.Sum256([]byte(content))
	return sum[:]
}

// sameContent reports whether the file at path already holds content. A
// missing file is not an error.
func sameContent(path, content string) (bool, error) {
	existing, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read memory %s: %w", path, err)
	}
	sum := sha256.Sum256(existing)
	return bytes.Equal(sum[:], hashOf(content)), nil
}

// atomicWrite writes data to a temp file in the target directory, syncs it
// and renames it over path.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
