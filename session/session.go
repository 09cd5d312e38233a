// Package session persists conversation state between turns.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sehgal-vip/travel-agent/state"
)

// Document is the persisted form of a conversation: one entry per top-level
// field. Stores merge documents key by key.
type Document map[string]json.RawMessage

// Clone returns a copy of the document.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Merge overlays src onto d. Keys absent from src are kept and null
// entries in src delete the key.
func (d Document) Merge(src Document) {
	for k, v := range src {
		if IsNull(v) {
			delete(d, k)
			continue
		}
		d[k] = append(json.RawMessage(nil), v...)
	}
}

// Split separates the entries to write from the keys to delete.
func (d Document) Split() (set Document, removed []string) {
	set = make(Document, len(d))
	for k, v := range d {
		if IsNull(v) {
			removed = append(removed, k)
			continue
		}
		set[k] = v
	}
	sort.Strings(removed)
	return set, removed
}

// IsNull reports whether raw is a JSON null (or empty).
func IsNull(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	return len(v) == 0 || bytes.Equal(v, []byte("null"))
}

// tombstone returns null entries for every key in prev that doc no longer
// holds. Envelope keys are never deleted.
func tombstone(doc Document, prev map[string]bool) {
	for k := range prev {
		if _, ok := doc[k]; !ok && !envelopeKeys[k] {
			doc[k] = json.RawMessage("null")
		}
	}
}

// domainKeys returns the non-empty domain keys held by doc.
func domainKeys(doc Document) map[string]bool {
	keys := make(map[string]bool, len(doc))
	for k, v := range doc {
		if envelopeKeys[k] || Internal(k) || IsNull(v) {
			continue
		}
		keys[k] = true
	}
	return keys
}

// Repository is a storage backend for conversation documents.
type Repository interface {
	// Load returns errors.ErrNotFound for unknown ids.
	Load(ctx context.Context, id string) (Document, error)
	// Save merges doc into the stored document, creating it if needed.
	// A null entry deletes that key.
	Save(ctx context.Context, id string, doc Document) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// envelopeKeys are the non-domain fields stored alongside the domain keys.
var envelopeKeys = map[string]bool{
	"conversation_id": true,
	"title":           true,
	"created_at":      true,
	"updated_at":      true,
	"history":         true,
	"current_handler": true,
}

// Internal reports whether key is scratch data that is never persisted.
func Internal(key string) bool {
	return strings.HasPrefix(key, "_")
}

// Encode flattens st into a document. Domain fields become top-level keys,
// internal keys are dropped, and the control record is never included.
func Encode(st *state.State) (Document, error) {
	domain, err := json.Marshal(st.Domain)
	if err != nil {
		return nil, fmt.Errorf("encode domain: %w", err)
	}
	doc := Document{}
	if err := json.Unmarshal(domain, &doc); err != nil {
		return nil, fmt.Errorf("encode domain: %w", err)
	}
	for key := range doc {
		if Internal(key) || envelopeKeys[key] {
			delete(doc, key)
		}
	}

	fields := map[string]any{
		"conversation_id": st.ConversationID,
		"created_at":      st.CreatedAt,
		"updated_at":      st.UpdatedAt,
		"history":         st.History,
	}
	if st.Title != "" {
		fields["title"] = st.Title
	}
	if st.CurrentHandler != "" {
		fields["current_handler"] = st.CurrentHandler
	}
	for key, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		doc[key] = raw
	}
	return doc, nil
}

// Decode rebuilds a state from a document. The control record is empty.
func Decode(doc Document) (*state.State, error) {
	meta := Document{}
	domain := Document{}
	for k, v := range doc {
		switch {
		case envelopeKeys[k]:
			meta[k] = v
		case Internal(k):
		default:
			domain[k] = v
		}
	}

	st := &state.State{}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	raw, err = json.Marshal(domain)
	if err != nil {
		return nil, fmt.Errorf("decode domain: %w", err)
	}
	if err := json.Unmarshal(raw, &st.Domain); err != nil {
		return nil, fmt.Errorf("decode domain: %w", err)
	}
	return st, nil
}
