package agents

import (
	"context"
	"fmt"
	"time"

	"github.com/sehgal-vip/travel-agent/handler"
	"github.com/sehgal-vip/travel-agent/memory"
	"github.com/sehgal-vip/travel-agent/state"
)

const librarianDescription = "sync the trip into the traveler's markdown library"

// LibrarySyncer renders a trip into its markdown library.
type LibrarySyncer interface {
	SyncLibrary(ctx context.Context, st *state.State) (memory.LibraryReport, error)
}

// NewLibrarian returns the librarian handler. It writes the library
// directly from state and records where and when it synced; no model call
// is made.
func NewLibrarian(lib LibrarySyncer) handler.Handler {
	return handler.Func(func(ctx context.Context, st *state.State, _ string) (handler.Result, error) {
		report, err := lib.SyncLibrary(ctx, st)
		if err != nil {
			return handler.Result{}, fmt.Errorf("sync library: %w", err)
		}
		return handler.Result{
			Response: report.Summary(),
			Patch: state.Patch{"library": state.Library{
				Path:       report.Path,
				LastSynced: report.SyncedAt.Format(time.RFC3339),
			}},
		}, nil
	})
}

// Roster describes every routable handler for intent classification: the
// catalog specialists plus the librarian.
func Roster() []Spec {
	return append(Catalog(), Spec{Name: handler.Librarian, Description: librarianDescription})
}
