// Package notify mirrors experiment outcomes to a chat channel.
package notify

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"

	"github.com/p-blackswan/crater-relay/internal/models"
)

// Notifier receives a copy of every callback message posted to an issue.
type Notifier interface {
	Notify(ctx context.Context, issue models.IssueRef, status, message string) error
}

// Poster abstracts the Slack API client for testing.
type Poster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack posts callback messages to a single channel.
type Slack struct {
	api       Poster
	channel   string
	issueBase string
	logger    zerolog.Logger
}

// NewSlack creates a Slack notifier. issueBase, when set, is the web root
// used to link the issue (e.g. "https://gitcode.com").
func NewSlack(token, channel, issueBase string, logger zerolog.Logger) *Slack {
	return NewSlackWithPoster(slack.New(token), channel, issueBase, logger)
}

// NewSlackWithPoster creates a Slack notifier around an existing client.
func NewSlackWithPoster(api Poster, channel, issueBase string, logger zerolog.Logger) *Slack {
	return &Slack{
		api:       api,
		channel:   channel,
		issueBase: issueBase,
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// Notify posts message with the issue and status as context.
func (s *Slack) Notify(ctx context.Context, issue models.IssueRef, status, message string) error {
	blocks := Blocks(issue, status, message, s.issueBase)

	_, ts, err := s.api.PostMessageContext(ctx, s.channel,
		slack.MsgOptionText(fmt.Sprintf("%s: %s", issue, status), false),
		slack.MsgOptionBlocks(blocks...),
	)
	if err != nil {
		return fmt.Errorf("posting to slack channel %s: %w", s.channel, err)
	}

	s.logger.Debug().Str("channel", s.channel).Str("ts", ts).Str("issue", issue.String()).Msg("callback mirrored")
	return nil
}

// Blocks renders the Slack blocks for a callback message.
func Blocks(issue models.IssueRef, status, message, issueBase string) []slack.Block {
	ref := issue.String()
	if issueBase != "" {
		ref = fmt.Sprintf("<%s/%s/issues/%d|%s>", issueBase, issue.Project, issue.IssueID, issue)
	}

	return []slack.Block{
		slack.NewSectionBlock(
			slack.NewTextBlockObject(slack.MarkdownType, message, false, false),
			nil, nil,
		),
		slack.NewContextBlock("",
			slack.NewTextBlockObject(slack.MarkdownType,
				fmt.Sprintf("*Issue:* %s  *Status:* `%s`", ref, status), false, false),
		),
	}
}
