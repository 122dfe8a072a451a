package engine

import (
	"errors"
	"fmt"
)

// ErrNoReleaseFound is returned when a package has no eligible release.
var ErrNoReleaseFound = errors.New("no release found")

// UnsupportedVersionError is returned for a manifest version the engine
// cannot execute.
type UnsupportedVersionError struct {
	Version int
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported manifest version %d", e.Version)
}

// MissingManifestError is returned when a release carries no manifest asset.
type MissingManifestError struct {
	ReleaseID int64
}

func (e *MissingManifestError) Error() string {
	return fmt.Sprintf("release %d has no manage.package asset", e.ReleaseID)
}
