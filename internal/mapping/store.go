// Package mapping stores the association between an issue and the crater
// experiment it started. Callbacks carry only the experiment name, and the
// status and abort commands need the reverse lookup from the issue.
package mapping

import (
	"context"
	"strconv"
)

// Store maps (project, issue id) to an experiment name. A Put for an issue
// that already has a mapping replaces it; concurrent Puts on the same key
// resolve last-write-wins.
type Store interface {
	// Put records experiment as the active experiment for the issue.
	Put(ctx context.Context, project string, issueID uint64, experiment string) error
	// Get returns the active experiment for the issue, if any.
	Get(ctx context.Context, project string, issueID uint64) (string, bool, error)
	// Ping reports whether the backend is usable.
	Ping(ctx context.Context) error
	// Close releases backend resources.
	Close() error
}

// Key builds the composite store key. '#' cannot appear in a path-style
// project identifier, so keys never collide.
func Key(project string, issueID uint64) string {
	return project + "#" + strconv.FormatUint(issueID, 10)
}
