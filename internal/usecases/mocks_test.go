package usecases_test

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/volatiletech/null/v8"

	"newsletter.backend/internal/domain/entities"
)

// Mock UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
}

func (m *MockUnitOfWork) Do(ctx context.Context, f func(context.Context) error) error {
	m.Called(ctx, f)
	return f(ctx)
}

func (m *MockUnitOfWork) WithLock(ctx context.Context) context.Context {
	m.Called(ctx)
	return ctx
}

// Mock SubscriberRepository
type MockSubscriberRepository struct {
	mock.Mock
}

func (m *MockSubscriberRepository) Create(ctx context.Context, subscriber *entities.Subscriber) error {
	args := m.Called(ctx, subscriber)
	return args.Error(0)
}

func (m *MockSubscriberRepository) GetByID(ctx context.Context, id int64) (*entities.Subscriber, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Subscriber), args.Error(1)
}

func (m *MockSubscriberRepository) GetByEmail(ctx context.Context, email string) (*entities.Subscriber, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Subscriber), args.Error(1)
}

func (m *MockSubscriberRepository) SetEmailVerified(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockSubscriberRepository) SetNames(ctx context.Context, id int64, firstName string, lastName null.String) error {
	args := m.Called(ctx, id, firstName, lastName)
	return args.Error(0)
}

func (m *MockSubscriberRepository) SetPreferences(ctx context.Context, id int64, prefs entities.Preferences, subscribed bool, unsubscribeTime null.Time) error {
	args := m.Called(ctx, id, prefs, subscribed, unsubscribeTime)
	return args.Error(0)
}

// Mock TokenRepository
type MockTokenRepository struct {
	mock.Mock
}

func (m *MockTokenRepository) Create(ctx context.Context, token *entities.Token) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockTokenRepository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	args := m.Called(ctx, hash)
	return args.Bool(0), args.Error(1)
}

func (m *MockTokenRepository) FindByHash(ctx context.Context, hash string, tokenType entities.TokenType) (*entities.Token, error) {
	args := m.Called(ctx, hash, tokenType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Token), args.Error(1)
}

func (m *MockTokenRepository) MarkUsed(ctx context.Context, hash string) error {
	args := m.Called(ctx, hash)
	return args.Error(0)
}

func (m *MockTokenRepository) Replace(ctx context.Context, userID int64, tokenType entities.TokenType, newHash string, expiresAt null.Time) error {
	args := m.Called(ctx, userID, tokenType, newHash, expiresAt)
	return args.Error(0)
}

func (m *MockTokenRepository) DeleteUsedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

// recordingNotifier keeps every notification it is asked to deliver
type recordingNotifier struct {
	mu   sync.Mutex
	sent []entities.Notification
	err  error
	ctxs []context.Context
}

func (n *recordingNotifier) Notify(ctx context.Context, notification entities.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	n.ctxs = append(n.ctxs, ctx)
	return n.err
}

func (n *recordingNotifier) all() []entities.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]entities.Notification(nil), n.sent...)
}

func (n *recordingNotifier) last() entities.Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.sent) == 0 {
		return entities.Notification{}
	}
	return n.sent[len(n.sent)-1]
}
