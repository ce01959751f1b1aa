package platform

import (
	"context"
	"fmt"

	rerrors "github.com/p-blackswan/crater-relay/internal/errors"
)

// GiteeTokenHeader carries the Gitee webhook password.
const GiteeTokenHeader = "X-Gitee-Token"

// Gitee is a placeholder back-end; every capability reports ErrNotImplemented.
type Gitee struct{}

// NewGitee creates the Gitee placeholder.
func NewGitee() *Gitee { return &Gitee{} }

func (g *Gitee) Name() string { return NameGitee }

func (g *Gitee) WebhookHeader() string { return GiteeTokenHeader }

func (g *Gitee) PostComment(context.Context, string, uint64, string) error {
	return g.notImplemented()
}

func (g *Gitee) VerifyWebhook([]byte, string) (bool, error) {
	return false, g.notImplemented()
}

func (g *Gitee) StoreMapping(context.Context, string, uint64, string) error {
	return g.notImplemented()
}

func (g *Gitee) GetMapping(context.Context, string, uint64) (string, bool, error) {
	return "", false, g.notImplemented()
}

func (g *Gitee) notImplemented() error {
	return fmt.Errorf("%w: %s adapter", rerrors.ErrNotImplemented, g.Name())
}
