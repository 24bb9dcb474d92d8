package usecases

import (
	"context"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"newsletter.backend/internal/config"
	"newsletter.backend/internal/domain/entities"
	"newsletter.backend/pkg/logger"
)

// Notifier delivers notifications to subscribers
type Notifier interface {
	Notify(ctx context.Context, n entities.Notification) error
}

// LinkBuilder builds the public URLs carried by notifications
type LinkBuilder struct {
	cfg config.LinksConfig
}

// NewLinkBuilder creates a LinkBuilder rooted at cfg.BaseURL.
func NewLinkBuilder(cfg config.LinksConfig) LinkBuilder {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return LinkBuilder{cfg: cfg}
}

// VerifyEmail returns the email verification link for token.
func (b LinkBuilder) VerifyEmail(token string) string {
	return b.build(b.cfg.VerifyEmailPath, token)
}

// CompleteAccount returns the account completion link for token.
func (b LinkBuilder) CompleteAccount(token string) string {
	return b.build(b.cfg.CompleteAccountPath, token)
}

// Preferences returns the preferences management link for token.
func (b LinkBuilder) Preferences(token string) string {
	return b.build(b.cfg.PreferencesPath, token)
}

func (b LinkBuilder) build(path, token string) string {
	return b.cfg.BaseURL + "/" + strings.TrimLeft(path, "/") + "?" + url.Values{"token": {token}}.Encode()
}

// deliver sends n after a committed state change. Delivery survives request
// cancellation but never outlives the caller's deadline, and never fails the
// flow.
func deliver(ctx context.Context, notifier Notifier, timeout time.Duration, n entities.Notification) {
	if notifier == nil {
		return
	}

	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		notificationFailures.WithLabelValues(string(n.Kind)).Inc()
		logger.Warn(ctx, "Notification skipped, caller deadline reached",
			zap.String("kind", string(n.Kind)),
		)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	if err := notifier.Notify(sendCtx, n); err != nil {
		notificationFailures.WithLabelValues(string(n.Kind)).Inc()
		logger.Warn(ctx, "Notification delivery failed",
			zap.String("kind", string(n.Kind)),
			zap.Error(err),
		)
	}
}
