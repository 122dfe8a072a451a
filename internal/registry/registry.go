// Package registry tracks which release of each package is installed on
// this machine.
package registry

import (
	"context"
	"fmt"
	"time"
)

// Record is the local install record for one package. Its presence is the
// only signal that the package is installed.
type Record struct {
	PackageID   int64     `json:"package_id"`
	ReleaseID   int64     `json:"release_id"`
	Repository  string    `json:"repository,omitempty"`
	InstalledAt time.Time `json:"installed_at"`
}

// Persistence stores records keyed by PackageID. Implementations must be safe
// for concurrent use.
type Persistence interface {
	Find(ctx context.Context, packageID int64) (Record, bool, error)
	Upsert(ctx context.Context, rec Record) error
	Remove(ctx context.Context, packageID int64) error
	List(ctx context.Context) ([]Record, error)
}

// Error wraps a persistence failure.
type Error struct {
	Op        string
	PackageID int64
	Err       error
}

func (e *Error) Error() string {
	if e.PackageID == 0 {
		return fmt.Sprintf("install registry %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("install registry %s package %d: %v", e.Op, e.PackageID, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Registry is the install registry service over a Persistence handle.
type Registry struct {
	store Persistence
	now   func() time.Time
}

// New creates a Registry over the given persistence.
func New(store Persistence) *Registry {
	return &Registry{store: store, now: time.Now}
}

// Find returns the record for a package, if any.
func (r *Registry) Find(ctx context.Context, packageID int64) (Record, bool, error) {
	rec, ok, err := r.store.Find(ctx, packageID)
	if err != nil {
		return Record{}, false, &Error{Op: "find", PackageID: packageID, Err: err}
	}
	return rec, ok, nil
}

// Record marks releaseID as the installed release of packageID, replacing
// any previous record.
func (r *Registry) Record(ctx context.Context, packageID, releaseID int64, repository string) error {
	rec := Record{
		PackageID:   packageID,
		ReleaseID:   releaseID,
		Repository:  repository,
		InstalledAt: r.now().UTC(),
	}
	if err := r.store.Upsert(ctx, rec); err != nil {
		return &Error{Op: "record", PackageID: packageID, Err: err}
	}
	return nil
}

// Remove deletes the record for packageID. Removing an absent record is not
// an error.
func (r *Registry) Remove(ctx context.Context, packageID int64) error {
	if err := r.store.Remove(ctx, packageID); err != nil {
		return &Error{Op: "remove", PackageID: packageID, Err: err}
	}
	return nil
}

// List returns all records ordered by PackageID.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	recs, err := r.store.List(ctx)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	return recs, nil
}
