// Package naming converts between issue identities and crater experiment
// names. The experiment name is the only key crater echoes back in its
// callbacks, so Encode and Decode must stay exact inverses.
//
// Format: the project path with every "/" replaced by "--", then "-" and the
// issue id. "my-org/my-repo" issue 789 becomes "my-org--my-repo-789".
package naming

import (
	"fmt"
	"strconv"
	"strings"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
	"github.com/p-blackswan/crater-relay/internal/models"
)

const (
	pathSeparator  = "--"
	issueSeparator = "-"
)

// ErrInvalidName is returned by Decode for names this relay did not produce.
var ErrInvalidName = fmt.Errorf("%w: invalid experiment name", rerrors.ErrInternal)

// Encode derives the experiment name for an issue.
func Encode(project string, issueID uint64) string {
	return strings.ReplaceAll(project, "/", pathSeparator) + issueSeparator + strconv.FormatUint(issueID, 10)
}

// EncodeRef is Encode for an IssueRef.
func EncodeRef(ref models.IssueRef) string {
	return Encode(ref.Project, ref.IssueID)
}

// Decode recovers the project path and issue id from an experiment name.
// The issue id is split off at the last hyphen so hyphens inside owner or
// repository names are left alone.
func Decode(name string) (string, uint64, error) {
	idx := strings.LastIndex(name, issueSeparator)
	if idx < 0 {
		return "", 0, fmt.Errorf("%w: %q has no issue separator", ErrInvalidName, name)
	}

	issueID, err := strconv.ParseUint(name[idx+1:], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q has non-numeric issue id %q", ErrInvalidName, name, name[idx+1:])
	}

	encoded := name[:idx]
	if encoded == "" {
		return "", 0, fmt.Errorf("%w: %q has an empty project", ErrInvalidName, name)
	}

	return strings.ReplaceAll(encoded, pathSeparator, "/"), issueID, nil
}

// DecodeRef is Decode returning an IssueRef.
func DecodeRef(name string) (models.IssueRef, error) {
	project, issueID, err := Decode(name)
	if err != nil {
		return models.IssueRef{}, err
	}
	return models.IssueRef{Project: project, IssueID: issueID}, nil
}
