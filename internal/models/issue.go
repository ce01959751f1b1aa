// Package models holds the small value types shared across the relay.
package models

import "fmt"

// IssueRef identifies an issue on the code-hosting platform.
// Project is a path-style identifier such as "owner/repo".
type IssueRef struct {
	Project string `json:"project"`
	IssueID uint64 `json:"issue_id"`
}

func (r IssueRef) String() string {
	return fmt.Sprintf("%s#%d", r.Project, r.IssueID)
}
