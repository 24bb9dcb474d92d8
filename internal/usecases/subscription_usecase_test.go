package usecases_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"newsletter.backend/internal/config"
	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/usecases"
	"newsletter.backend/pkg/crypto"
)

type mockDeps struct {
	uow      *MockUnitOfWork
	subs     *MockSubscriberRepository
	tokens   *MockTokenRepository
	notifier *recordingNotifier
}

func newMockUsecase() (*usecases.SubscriptionUsecase, *mockDeps) {
	d := &mockDeps{
		uow:      new(MockUnitOfWork),
		subs:     new(MockSubscriberRepository),
		tokens:   new(MockTokenRepository),
		notifier: &recordingNotifier{},
	}
	d.uow.On("Do", mock.Anything, mock.Anything).Return()
	d.uow.On("WithLock", mock.Anything).Return()

	uc := usecases.NewSubscriptionUsecase(
		d.subs, d.tokens, d.uow,
		usecases.NewTokenGenerator(5),
		d.notifier,
		usecases.NewLinkBuilder(config.LinksConfig{
			BaseURL:             "http://localhost:3000",
			VerifyEmailPath:     "verify-email",
			CompleteAccountPath: "complete-account",
			PreferencesPath:     "manage-preferences",
		}),
		usecases.SubscriptionSettings{
			VerificationTTL:           24 * time.Hour,
			AccountCompletionTTL:      24 * time.Hour,
			RegenVerificationTTL:      24 * time.Hour,
			RegenAccountCompletionTTL: time.Hour,
			NotifyTimeout:             time.Second,
		},
	)
	return uc, d
}

func validToken(tokenType entities.TokenType) *entities.Token {
	return &entities.Token{
		ID:        7,
		UserID:    42,
		TokenHash: crypto.HashToken("plain"),
		TokenType: tokenType,
		ExpiresAt: null.TimeFrom(time.Now().Add(time.Hour)),
	}
}

func TestSubscriptionUsecase_Subscribe_ValidatesBeforeStorage(t *testing.T) {
	uc, d := newMockUsecase()

	err := uc.Subscribe(context.Background(), "bad@")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidEmail)
	d.uow.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_Subscribe_DuplicateEmail(t *testing.T) {
	uc, d := newMockUsecase()
	d.subs.On("Create", mock.Anything, mock.Anything).Return(domainerrors.ErrDuplicateEmail)

	err := uc.Subscribe(context.Background(), "dup@example.com")
	assert.ErrorIs(t, err, domainerrors.ErrAlreadySubscribed)
	d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_Subscribe_StorageError(t *testing.T) {
	uc, d := newMockUsecase()
	d.subs.On("Create", mock.Anything, mock.Anything).Return(errors.New("connection reset"))

	err := uc.Subscribe(context.Background(), "a@example.com")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domainerrors.ErrAlreadySubscribed)
	assert.Equal(t, domainerrors.CodeInternal, domainerrors.Code(err))
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_Subscribe_StoresHashAndMailsPlaintext(t *testing.T) {
	uc, d := newMockUsecase()
	d.subs.On("Create", mock.Anything, mock.MatchedBy(func(s *entities.Subscriber) bool {
		return s.Email == "a@example.com" && s.Subscribed && !s.EmailVerified
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*entities.Subscriber).ID = 42
	}).Return(nil)
	d.tokens.On("ExistsByHash", mock.Anything, mock.Anything).Return(false, nil)

	var stored *entities.Token
	d.tokens.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*entities.Token)
	}).Return(nil)

	require.NoError(t, uc.Subscribe(context.Background(), "a@example.com"))
	require.NotNil(t, stored)
	assert.Equal(t, int64(42), stored.UserID)
	assert.Equal(t, entities.TokenTypeEmailVerification, stored.TokenType)
	assert.True(t, stored.ExpiresAt.Valid)

	n := d.notifier.last()
	assert.Equal(t, entities.NotificationVerification, n.Kind)
	link := n.Links[entities.LinkVerifyEmail]
	assert.Contains(t, link, "http://localhost:3000/verify-email?token=")
	assert.NotContains(t, link, stored.TokenHash)
}

func TestSubscriptionUsecase_Subscribe_GenerationExhausted(t *testing.T) {
	uc, d := newMockUsecase()
	d.subs.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.tokens.On("ExistsByHash", mock.Anything, mock.Anything).Return(true, nil)

	err := uc.Subscribe(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, domainerrors.ErrTokenGenerationExhausted)
	assert.Equal(t, domainerrors.CodeTokenGenerationExhausted, domainerrors.Code(err))
	d.tokens.AssertNumberOfCalls(t, "ExistsByHash", 5)
	d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_Subscribe_InsertCollisionRetries(t *testing.T) {
	uc, d := newMockUsecase()
	d.subs.On("Create", mock.Anything, mock.Anything).Return(nil)
	d.tokens.On("ExistsByHash", mock.Anything, mock.Anything).Return(false, nil)
	d.tokens.On("Create", mock.Anything, mock.Anything).Return(domainerrors.ErrDuplicateTokenHash).Once()
	d.tokens.On("Create", mock.Anything, mock.Anything).Return(nil).Once()

	require.NoError(t, uc.Subscribe(context.Background(), "a@example.com"))
	d.tokens.AssertNumberOfCalls(t, "Create", 2)
	assert.Len(t, d.notifier.all(), 1)
}

func TestSubscriptionUsecase_VerifyEmail_LookupError(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, crypto.HashToken("plain"), entities.TokenTypeEmailVerification).
		Return(nil, assert.AnError)

	err := uc.VerifyEmail(context.Background(), "plain")
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, domainerrors.ErrInvalidToken)
	d.uow.AssertCalled(t, "WithLock", mock.Anything)
}

func TestSubscriptionUsecase_VerifyEmail_OrphanToken(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypeEmailVerification).
		Return(validToken(entities.TokenTypeEmailVerification), nil)
	d.subs.On("GetByID", mock.Anything, int64(42)).Return(nil, domainerrors.ErrNotFound)

	err := uc.VerifyEmail(context.Background(), "plain")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
	d.subs.AssertNotCalled(t, "SetEmailVerified", mock.Anything, mock.Anything)
}

func TestSubscriptionUsecase_VerifyEmail_LostRace(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypeEmailVerification).
		Return(validToken(entities.TokenTypeEmailVerification), nil)
	d.subs.On("GetByID", mock.Anything, int64(42)).Return(&entities.Subscriber{ID: 42, Email: "a@example.com"}, nil)
	d.subs.On("SetEmailVerified", mock.Anything, int64(42)).Return(nil)
	d.tokens.On("MarkUsed", mock.Anything, crypto.HashToken("plain")).Return(domainerrors.ErrTokenAlreadyUsed)

	err := uc.VerifyEmail(context.Background(), "plain")
	assert.ErrorIs(t, err, domainerrors.ErrTokenAlreadyUsed)
	d.tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_VerifyEmail_NotifierFailureIgnored(t *testing.T) {
	uc, d := newMockUsecase()
	d.notifier.err = errors.New("smtp down")
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypeEmailVerification).
		Return(validToken(entities.TokenTypeEmailVerification), nil)
	d.subs.On("GetByID", mock.Anything, int64(42)).Return(&entities.Subscriber{ID: 42, Email: "a@example.com"}, nil)
	d.subs.On("SetEmailVerified", mock.Anything, int64(42)).Return(nil)
	d.tokens.On("MarkUsed", mock.Anything, mock.Anything).Return(nil)
	d.tokens.On("ExistsByHash", mock.Anything, mock.Anything).Return(false, nil)
	d.tokens.On("Create", mock.Anything, mock.Anything).Return(nil)

	require.NoError(t, uc.VerifyEmail(context.Background(), "plain"))

	n := d.notifier.last()
	assert.Equal(t, entities.NotificationWelcome, n.Kind)
	assert.Contains(t, n.Links, entities.LinkCompleteAccount)
	assert.Contains(t, n.Links, entities.LinkPreferences)

	var types []entities.TokenType
	for _, call := range d.tokens.Calls {
		if call.Method == "Create" {
			types = append(types, call.Arguments.Get(1).(*entities.Token).TokenType)
		}
	}
	assert.ElementsMatch(t, []entities.TokenType{entities.TokenTypeAccountCompletion, entities.TokenTypePreferences}, types)
}

func TestSubscriptionUsecase_CompleteAccount_StorageError(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypeAccountCompletion).
		Return(validToken(entities.TokenTypeAccountCompletion), nil)
	d.subs.On("SetNames", mock.Anything, int64(42), "Ada", null.String{}).Return(assert.AnError)

	err := uc.CompleteAccount(context.Background(), "plain", "Ada", "")
	assert.ErrorIs(t, err, assert.AnError)
	d.tokens.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything)
}

func TestSubscriptionUsecase_SetPreferences_Unsubscribes(t *testing.T) {
	uc, d := newMockUsecase()
	prefs := entities.Preferences{"updates": false, "promotions": false}
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypePreferences).
		Return(&entities.Token{UserID: 42, TokenType: entities.TokenTypePreferences, Used: true}, nil)
	d.subs.On("SetPreferences", mock.Anything, int64(42), prefs, false, mock.MatchedBy(func(ts null.Time) bool {
		return ts.Valid
	})).Return(nil)

	require.NoError(t, uc.SetPreferences(context.Background(), "plain", prefs))
	d.subs.AssertExpectations(t)
	d.tokens.AssertNotCalled(t, "MarkUsed", mock.Anything, mock.Anything)
}

func TestSubscriptionUsecase_SetPreferences_MissingSubscriber(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypePreferences).
		Return(&entities.Token{UserID: 42, TokenType: entities.TokenTypePreferences}, nil)
	d.subs.On("SetPreferences", mock.Anything, int64(42), mock.Anything, true, null.Time{}).Return(domainerrors.ErrNotFound)

	err := uc.SetPreferences(context.Background(), "plain", entities.Preferences{"updates": true})
	assert.ErrorIs(t, err, domainerrors.ErrInvalidToken)
}

func TestSubscriptionUsecase_GetPreferences_ReadsWithoutTransaction(t *testing.T) {
	uc, d := newMockUsecase()
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypePreferences).
		Return(&entities.Token{UserID: 42, TokenType: entities.TokenTypePreferences}, nil)
	d.subs.On("GetByID", mock.Anything, int64(42)).
		Return(&entities.Subscriber{ID: 42, Preferences: entities.Preferences{"updates": true}}, nil)

	prefs, err := uc.GetPreferences(context.Background(), "plain")
	require.NoError(t, err)
	assert.Equal(t, entities.Preferences{"updates": true}, prefs)
	d.uow.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
}

func TestSubscriptionUsecase_RegenerateToken_ReplaceFails(t *testing.T) {
	uc, d := newMockUsecase()
	expired := validToken(entities.TokenTypeEmailVerification)
	expired.ExpiresAt = null.TimeFrom(time.Now().Add(-time.Hour))
	d.tokens.On("FindByHash", mock.Anything, mock.Anything, entities.TokenTypeEmailVerification).Return(expired, nil)
	d.subs.On("GetByID", mock.Anything, int64(42)).Return(&entities.Subscriber{ID: 42, Email: "a@example.com"}, nil)
	d.tokens.On("ExistsByHash", mock.Anything, mock.Anything).Return(false, nil)
	d.tokens.On("Replace", mock.Anything, int64(42), entities.TokenTypeEmailVerification, mock.Anything, mock.Anything).
		Return(assert.AnError)

	result, err := uc.RegenerateToken(context.Background(), "plain", "verify-email")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Empty(t, d.notifier.all())
}

func TestSubscriptionUsecase_RegenerateToken_InvalidOriginSkipsStorage(t *testing.T) {
	uc, d := newMockUsecase()

	_, err := uc.RegenerateToken(context.Background(), "plain", "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidOrigin)
	d.uow.AssertNotCalled(t, "Do", mock.Anything, mock.Anything)
}
