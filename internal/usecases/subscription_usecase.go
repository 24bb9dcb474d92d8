package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"

	"newsletter.backend/internal/config"
	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/domain/repositories"
	"newsletter.backend/pkg/crypto"
	"newsletter.backend/pkg/logger"
)

// Flow names used in logs and metrics
const (
	FlowSubscribe       = "subscribe"
	FlowVerifyEmail     = "verify_email"
	FlowCompleteAccount = "complete_account"
	FlowGetPreferences  = "get_preferences"
	FlowSetPreferences  = "set_preferences"
	FlowRegenerateToken = "regenerate_token"
)

// RegeneratedToken is the result of a successful regeneration. Token is the
// new plaintext and is never stored.
type RegeneratedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SubscriptionSettings holds token lifetimes and notification limits
type SubscriptionSettings struct {
	VerificationTTL           time.Duration
	AccountCompletionTTL      time.Duration
	RegenVerificationTTL      time.Duration
	RegenAccountCompletionTTL time.Duration
	NotifyTimeout             time.Duration
}

// NewSubscriptionSettings derives settings from configuration
func NewSubscriptionSettings(tokens config.TokenConfig, mail config.MailConfig) SubscriptionSettings {
	return SubscriptionSettings{
		VerificationTTL:           tokens.VerificationTTL,
		AccountCompletionTTL:      tokens.AccountCompletionTTL,
		RegenVerificationTTL:      tokens.RegenVerificationTTL,
		RegenAccountCompletionTTL: tokens.RegenAccountCompletionTTL,
		NotifyTimeout:             mail.SendTimeout,
	}
}

func (s SubscriptionSettings) regenerationTTL(tokenType entities.TokenType) time.Duration {
	if tokenType == entities.TokenTypeAccountCompletion {
		return s.RegenAccountCompletionTTL
	}
	return s.RegenVerificationTTL
}

type validationMode int

const (
	// unused and unexpired
	validateStrict validationMode = iota
	// unused, expiry ignored
	validateAllowExpired
	// existence only; preferences tokens are reusable and never expire
	validateCapability
)

// SubscriptionUsecase drives subscribers through subscribe, verify,
// complete-account, preferences and token regeneration.
type SubscriptionUsecase struct {
	subscriberRepo repositories.SubscriberRepository
	tokenRepo      repositories.TokenRepository
	uow            repositories.UnitOfWork
	generator      *TokenGenerator
	notifier       Notifier
	links          LinkBuilder
	settings       SubscriptionSettings
	now            func() time.Time
}

// NewSubscriptionUsecase creates a new subscription usecase
func NewSubscriptionUsecase(
	subscriberRepo repositories.SubscriberRepository,
	tokenRepo repositories.TokenRepository,
	uow repositories.UnitOfWork,
	generator *TokenGenerator,
	notifier Notifier,
	links LinkBuilder,
	settings SubscriptionSettings,
) *SubscriptionUsecase {
	return &SubscriptionUsecase{
		subscriberRepo: subscriberRepo,
		tokenRepo:      tokenRepo,
		uow:            uow,
		generator:      generator,
		notifier:       notifier,
		links:          links,
		settings:       settings,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe registers email and sends it a verification link
func (u *SubscriptionUsecase) Subscribe(ctx context.Context, email string) error {
	email, err := NormalizeEmail(email)
	if err != nil {
		return u.finish(ctx, FlowSubscribe, err)
	}

	now := u.now()
	var token string
	err = u.uow.Do(ctx, func(txCtx context.Context) error {
		subscriber := &entities.Subscriber{
			Email:        email,
			Subscribed:   true,
			SubscribedAt: now,
			Preferences:  entities.DefaultPreferences(),
		}
		if err := u.subscriberRepo.Create(txCtx, subscriber); err != nil {
			if errors.Is(err, domainerrors.ErrDuplicateEmail) {
				return domainerrors.ErrAlreadySubscribed
			}
			return fmt.Errorf("create subscriber: %w", err)
		}

		token, err = u.issueToken(txCtx, subscriber.ID, entities.TokenTypeEmailVerification,
			null.TimeFrom(now.Add(u.settings.VerificationTTL)))
		return err
	})
	if err != nil {
		return u.finish(ctx, FlowSubscribe, err)
	}

	deliver(ctx, u.notifier, u.settings.NotifyTimeout, entities.Notification{
		Kind:  entities.NotificationVerification,
		Email: email,
		Links: map[string]string{entities.LinkVerifyEmail: u.links.VerifyEmail(token)},
	})
	return u.finish(ctx, FlowSubscribe, nil)
}

// VerifyEmail consumes a verification token, marks the address verified and
// issues the account-completion and preferences tokens.
func (u *SubscriptionUsecase) VerifyEmail(ctx context.Context, token string) error {
	var email, completionToken, preferencesToken string

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		t, err := u.validateToken(u.uow.WithLock(txCtx), token, entities.TokenTypeEmailVerification, validateStrict)
		if err != nil {
			return err
		}

		subscriber, err := u.loadSubscriber(txCtx, t.UserID)
		if err != nil {
			return err
		}
		email = subscriber.Email

		if err := u.subscriberRepo.SetEmailVerified(txCtx, t.UserID); err != nil {
			return fmt.Errorf("set email verified: %w", err)
		}
		if err := u.tokenRepo.MarkUsed(txCtx, t.TokenHash); err != nil {
			return err
		}

		now := u.now()
		completionToken, err = u.issueToken(txCtx, t.UserID, entities.TokenTypeAccountCompletion,
			null.TimeFrom(now.Add(u.settings.AccountCompletionTTL)))
		if err != nil {
			return err
		}
		preferencesToken, err = u.issueToken(txCtx, t.UserID, entities.TokenTypePreferences, null.Time{})
		return err
	})
	if err != nil {
		return u.finish(ctx, FlowVerifyEmail, err)
	}

	deliver(ctx, u.notifier, u.settings.NotifyTimeout, entities.Notification{
		Kind:  entities.NotificationWelcome,
		Email: email,
		Links: map[string]string{
			entities.LinkCompleteAccount: u.links.CompleteAccount(completionToken),
			entities.LinkPreferences:     u.links.Preferences(preferencesToken),
		},
	})
	return u.finish(ctx, FlowVerifyEmail, nil)
}

// CompleteAccount stores the subscriber's names and consumes the token. A
// blank last name is stored as NULL.
func (u *SubscriptionUsecase) CompleteAccount(ctx context.Context, token, firstName, lastName string) error {
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		t, err := u.validateToken(u.uow.WithLock(txCtx), token, entities.TokenTypeAccountCompletion, validateStrict)
		if err != nil {
			return err
		}
		if firstName == "" {
			return domainerrors.ErrFirstNameRequired
		}

		last := null.String{}
		if lastName != "" {
			last = null.StringFrom(lastName)
		}
		if err := u.subscriberRepo.SetNames(txCtx, t.UserID, firstName, last); err != nil {
			return fmt.Errorf("set names: %w", err)
		}
		return u.tokenRepo.MarkUsed(txCtx, t.TokenHash)
	})
	return u.finish(ctx, FlowCompleteAccount, err)
}

// GetPreferences returns the preferences of the subscriber owning token
func (u *SubscriptionUsecase) GetPreferences(ctx context.Context, token string) (entities.Preferences, error) {
	t, err := u.validateToken(ctx, token, entities.TokenTypePreferences, validateCapability)
	if err != nil {
		return nil, u.finish(ctx, FlowGetPreferences, err)
	}

	subscriber, err := u.loadSubscriber(ctx, t.UserID)
	if err != nil {
		return nil, u.finish(ctx, FlowGetPreferences, err)
	}
	return subscriber.Preferences, u.finish(ctx, FlowGetPreferences, nil)
}

// SetPreferences replaces the subscriber's preferences. Disabling every
// topic unsubscribes; enabling any topic resubscribes.
func (u *SubscriptionUsecase) SetPreferences(ctx context.Context, token string, prefs entities.Preferences) error {
	if strings.TrimSpace(token) == "" {
		return u.finish(ctx, FlowSetPreferences, domainerrors.ErrInvalidToken)
	}
	if len(prefs) == 0 {
		return u.finish(ctx, FlowSetPreferences, domainerrors.ErrPreferencesRequired)
	}

	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		t, err := u.validateToken(txCtx, token, entities.TokenTypePreferences, validateCapability)
		if err != nil {
			return err
		}

		subscribed := true
		unsubscribeTime := null.Time{}
		if prefs.AllDisabled() {
			subscribed = false
			unsubscribeTime = null.TimeFrom(u.now())
		}
		if err := u.subscriberRepo.SetPreferences(txCtx, t.UserID, prefs, subscribed, unsubscribeTime); err != nil {
			if errors.Is(err, domainerrors.ErrNotFound) {
				return domainerrors.ErrInvalidToken
			}
			return fmt.Errorf("set preferences: %w", err)
		}
		return nil
	})
	return u.finish(ctx, FlowSetPreferences, err)
}

// RegenerateToken replaces an expired, unused token presented from origin
// with a fresh one and mails the new link.
func (u *SubscriptionUsecase) RegenerateToken(ctx context.Context, token, origin string) (*RegeneratedToken, error) {
	flowOrigin := entities.FlowOrigin(strings.TrimSpace(origin))
	tokenType, ok := flowOrigin.TokenType()
	if !ok {
		return nil, u.finish(ctx, FlowRegenerateToken, domainerrors.ErrInvalidOrigin)
	}

	var (
		email  string
		result *RegeneratedToken
	)
	err := u.uow.Do(ctx, func(txCtx context.Context) error {
		t, err := u.validateToken(u.uow.WithLock(txCtx), token, tokenType, validateAllowExpired)
		if err != nil {
			return err
		}
		now := u.now()
		if !t.IsExpired(now) {
			return domainerrors.ErrTokenNotExpired
		}

		subscriber, err := u.loadSubscriber(txCtx, t.UserID)
		if err != nil {
			return err
		}
		email = subscriber.Email

		expiresAt := now.Add(u.settings.regenerationTTL(tokenType))
		plaintext, err := u.reissueToken(txCtx, t.UserID, tokenType, null.TimeFrom(expiresAt))
		if err != nil {
			return err
		}
		result = &RegeneratedToken{Token: plaintext, ExpiresAt: expiresAt}
		return nil
	})
	if err != nil {
		return nil, u.finish(ctx, FlowRegenerateToken, err)
	}

	links := map[string]string{}
	if tokenType == entities.TokenTypeEmailVerification {
		links[entities.LinkVerifyEmail] = u.links.VerifyEmail(result.Token)
	} else {
		links[entities.LinkCompleteAccount] = u.links.CompleteAccount(result.Token)
	}
	deliver(ctx, u.notifier, u.settings.NotifyTimeout, entities.Notification{
		Kind:   entities.NotificationRegenerated,
		Email:  email,
		Links:  links,
		Origin: flowOrigin,
	})
	return result, u.finish(ctx, FlowRegenerateToken, nil)
}

// validateToken looks a presented token up by hash and type and applies the
// checks of mode. Expiry is checked before use, so an expired token always
// reports ErrTokenExpired.
func (u *SubscriptionUsecase) validateToken(ctx context.Context, plaintext string, tokenType entities.TokenType, mode validationMode) (*entities.Token, error) {
	plaintext = strings.TrimSpace(plaintext)
	if plaintext == "" {
		return nil, domainerrors.ErrInvalidToken
	}

	t, err := u.tokenRepo.FindByHash(ctx, crypto.HashToken(plaintext), tokenType)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("find token: %w", err)
	}

	switch mode {
	case validateStrict:
		if t.IsExpired(u.now()) {
			return nil, domainerrors.ErrTokenExpired
		}
		if t.Used {
			return nil, domainerrors.ErrTokenAlreadyUsed
		}
	case validateAllowExpired:
		if t.Used {
			return nil, domainerrors.ErrTokenAlreadyUsed
		}
	}
	return t, nil
}

func (u *SubscriptionUsecase) loadSubscriber(ctx context.Context, id int64) (*entities.Subscriber, error) {
	subscriber, err := u.subscriberRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, domainerrors.ErrInvalidToken
		}
		return nil, fmt.Errorf("load subscriber: %w", err)
	}
	return subscriber, nil
}

// issueToken creates a new token row for userID and returns its plaintext
func (u *SubscriptionUsecase) issueToken(ctx context.Context, userID int64, tokenType entities.TokenType, expiresAt null.Time) (string, error) {
	plaintext, _, err := u.generator.Issue(ctx, u.tokenRepo, func(hash string) error {
		return u.tokenRepo.Create(ctx, &entities.Token{
			UserID:    userID,
			TokenHash: hash,
			TokenType: tokenType,
			ExpiresAt: expiresAt,
		})
	})
	if err != nil {
		return "", fmt.Errorf("issue %s token: %w", tokenType, err)
	}
	return plaintext, nil
}

// reissueToken rotates the existing token row of tokenType in place
func (u *SubscriptionUsecase) reissueToken(ctx context.Context, userID int64, tokenType entities.TokenType, expiresAt null.Time) (string, error) {
	plaintext, _, err := u.generator.Issue(ctx, u.tokenRepo, func(hash string) error {
		return u.tokenRepo.Replace(ctx, userID, tokenType, hash, expiresAt)
	})
	if err != nil {
		return "", fmt.Errorf("reissue %s token: %w", tokenType, err)
	}
	return plaintext, nil
}

// finish records the outcome of a flow and returns err unchanged
func (u *SubscriptionUsecase) finish(ctx context.Context, flow string, err error) error {
	code := domainerrors.Code(err)
	flowOutcomes.WithLabelValues(flow, code).Inc()

	switch {
	case err == nil:
		logger.Debug(ctx, "Flow completed", zap.String("flow", flow))
	case errors.Is(err, domainerrors.ErrTokenGenerationExhausted):
		logger.Error(ctx, "Flow failed: token generation exhausted", zap.String("flow", flow), zap.Error(err))
	case code == domainerrors.CodeInternal:
		logger.Error(ctx, "Flow failed", zap.String("flow", flow), zap.Error(err))
	default:
		logger.Info(ctx, "Flow rejected", zap.String("flow", flow), zap.String("code", code))
	}
	return err
}
