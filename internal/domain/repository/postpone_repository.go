package repository

import (
	"context"

	"github.com/YoshitsuguKoike/guardbroker/internal/domain/model/postpone"
)

// PostponeRepository persists ambiguous requests awaiting clarification.
// Entries survive process restarts; their deadlines are absolute.
type PostponeRepository interface {
	// Save inserts a new entry
	Save(ctx context.Context, record *postpone.Record) error

	// Update persists a phase transition
	Update(ctx context.Context, record *postpone.Record) error

	// Find retrieves an entry by ID
	Find(ctx context.Context, id string) (*postpone.Record, error)

	// FindPending returns all non-terminal entries
	FindPending(ctx context.Context) ([]*postpone.Record, error)

	// List returns entries newest-first, up to limit
	List(ctx context.Context, limit int) ([]*postpone.Record, error)
}
