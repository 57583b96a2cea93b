package storage

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cinemaleshalles/rapla/internal/entity"
)

// ErrNotFound is returned by repositories when a requested record does not
// exist.
var ErrNotFound = errors.New("storage: record not found")

// VersionConflictError signals that a changeset stored an entity based on a
// stale snapshot. It is retryable: the client re-fetches and reapplies.
type VersionConflictError struct {
	Reference        entity.ReferenceInfo
	ClientVersion    int64
	CommittedVersion int64
}

// Error implements the error interface.
func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("storage: %s changed concurrently (client version %d, committed %d)",
		e.Reference, e.ClientVersion, e.CommittedVersion)
}

// DependencyError blocks the removal of an entity that other entities still
// reference. Dependencies carries descriptions the caller can show to users.
type DependencyError struct {
	Reference    entity.ReferenceInfo
	Dependencies []string
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("storage: %s is still referenced by %s",
		e.Reference, strings.Join(e.Dependencies, ", "))
}
