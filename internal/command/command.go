// Package command parses bot commands out of issue comment text.
package command

import (
	"fmt"
	"strings"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
)

// Kind selects the action a command performs.
type Kind string

const (
	KindRun    Kind = "run"
	KindStatus Kind = "status"
	KindAbort  Kind = "abort"
	KindHelp   Kind = "help"
	KindList   Kind = "list"
)

// Command is a parsed bot command. Toolchains is only set for KindRun and
// holds at least two entries in the order they were typed.
type Command struct {
	Kind       Kind
	Toolchains []string
}

// Parse extracts a command from comment text. A comment that does not start
// with triggerPrefix is not a command and yields (nil, nil).
//
// The command word is matched case-insensitively; toolchain names are kept
// verbatim because they are external version identifiers.
func Parse(text, triggerPrefix string) (*Command, error) {
	text = strings.TrimSpace(text)
	if triggerPrefix == "" || !strings.HasPrefix(text, triggerPrefix) {
		return nil, nil
	}

	rest := strings.TrimSpace(strings.TrimPrefix(text, triggerPrefix))
	if rest == "" {
		return &Command{Kind: KindHelp}, nil
	}

	parts := strings.Fields(rest)
	switch word := strings.ToLower(parts[0]); Kind(word) {
	case KindRun:
		if len(parts) < 3 {
			return nil, fmt.Errorf("%w: run requires at least two toolchains. Usage: %s",
				rerrors.ErrInvalidCommand, Usage(triggerPrefix))
		}
		toolchains := make([]string, len(parts)-1)
		copy(toolchains, parts[1:])
		return &Command{Kind: KindRun, Toolchains: toolchains}, nil
	case KindStatus, KindAbort, KindHelp, KindList:
		return &Command{Kind: Kind(word)}, nil
	default:
		return nil, fmt.Errorf("%w: unknown command %q, use '%s help' to list commands",
			rerrors.ErrInvalidCommand, parts[0], triggerPrefix)
	}
}

// Usage returns the usage line for the run command.
func Usage(triggerPrefix string) string {
	return triggerPrefix + " run <toolchain1> <toolchain2>"
}

func (c Command) String() string {
	if c.Kind == KindRun {
		return fmt.Sprintf("run %s", strings.Join(c.Toolchains, " "))
	}
	return string(c.Kind)
}
