package patient

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when no patient has the key.
var ErrNotFound = errors.New("patient not found")

// ErrIDConflict is returned by Upsert when the registry id is already held
// by a mirror row with a different key.
var ErrIDConflict = errors.New("patient id held by another key")

// Store is the lookup/create contract shared by the Postgres mirror and the
// external registry.
type Store interface {
	FindByKey(ctx context.Context, sitePatientID, site string) (*Patient, error)
	Create(ctx context.Context, p *Patient) error
}

// MirrorStore is the primary database copy that event rows reference.
type MirrorStore interface {
	Store
	// Upsert writes a registry patient into the mirror under the registry id.
	// A mirror row holding the same key under another id is folded into it,
	// events included.
	Upsert(ctx context.Context, p *Patient) error
}
