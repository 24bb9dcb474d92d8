package repositories

import (
	"context"

	"github.com/volatiletech/null/v8"

	"newsletter.backend/internal/domain/entities"
)

// SubscriberRepository defines subscriber data operations
type SubscriberRepository interface {
	// Create inserts the subscriber and sets its ID. Returns ErrDuplicateEmail
	// when the email is taken.
	Create(ctx context.Context, subscriber *entities.Subscriber) error
	GetByID(ctx context.Context, id int64) (*entities.Subscriber, error)
	GetByEmail(ctx context.Context, email string) (*entities.Subscriber, error)
	SetEmailVerified(ctx context.Context, id int64) error
	SetNames(ctx context.Context, id int64, firstName string, lastName null.String) error
	SetPreferences(ctx context.Context, id int64, prefs entities.Preferences, subscribed bool, unsubscribeTime null.Time) error
}
