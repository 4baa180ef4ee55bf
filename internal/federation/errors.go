package federation

import (
	"errors"
	"fmt"

	"github.com/frederic-klein/yamr/internal/dist"
	"github.com/frederic-klein/yamr/internal/tree"
)

var (
	// ErrNotFound is returned when no backing repository holds an artifact.
	ErrNotFound = tree.ErrNotFound
	// ErrConflictingStructure is returned when backing repositories disagree
	// on whether a path is a directory or an artifact.
	ErrConflictingStructure = errors.New("conflicting structure")
	// ErrPagingInfoMismatch is returned when a continuation token does not
	// have one entry per backing repository.
	ErrPagingInfoMismatch = errors.New("paging info does not match the repositories")
)

// FetchError reports an I/O failure of the backing repository an artifact
// was fetched from. It never wraps ErrNotFound.
type FetchError struct {
	Ref    dist.ArtifactRef
	Origin string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s from %s: %v", e.Ref, e.Origin, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
