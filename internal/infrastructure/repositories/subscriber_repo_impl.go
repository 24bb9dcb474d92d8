package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/infrastructure/models"
)

// SubscriberRepository implements repositories.SubscriberRepository
type SubscriberRepository struct {
	db    *gorm.DB
	table string
}

// NewSubscriberRepository creates a subscriber repository bound to table
func NewSubscriberRepository(db *gorm.DB, table string) *SubscriberRepository {
	return &SubscriberRepository{db: db, table: table}
}

func (r *SubscriberRepository) query(ctx context.Context) *gorm.DB {
	return GetDB(ctx, r.db).Table(r.table)
}

// Create inserts a subscriber
func (r *SubscriberRepository) Create(ctx context.Context, subscriber *entities.Subscriber) error {
	m := toSubscriberModel(subscriber)
	if err := r.query(ctx).Create(m).Error; err != nil {
		if dup, _ := uniqueViolation(err); dup {
			return domainerrors.ErrDuplicateEmail
		}
		return err
	}
	subscriber.ID = m.ID
	return nil
}

// GetByID gets a subscriber by ID
func (r *SubscriberRepository) GetByID(ctx context.Context, id int64) (*entities.Subscriber, error) {
	var m models.Subscriber
	if err := lockForUpdate(ctx, r.query(ctx)).Where("id = ?", id).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toSubscriberEntity(&m), nil
}

// GetByEmail gets a subscriber by email
func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*entities.Subscriber, error) {
	var m models.Subscriber
	if err := r.query(ctx).Where("email = ?", email).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domainerrors.ErrNotFound
		}
		return nil, err
	}
	return toSubscriberEntity(&m), nil
}

// SetEmailVerified marks the subscriber's address as verified
func (r *SubscriberRepository) SetEmailVerified(ctx context.Context, id int64) error {
	return r.update(ctx, id, map[string]interface{}{"email_verified": true})
}

// SetNames stores the subscriber's names. An invalid lastName clears it.
func (r *SubscriberRepository) SetNames(ctx context.Context, id int64, firstName string, lastName null.String) error {
	return r.update(ctx, id, map[string]interface{}{
		"first_name": firstName,
		"last_name":  lastName,
	})
}

// SetPreferences replaces the preferences map and subscription state
func (r *SubscriberRepository) SetPreferences(ctx context.Context, id int64, prefs entities.Preferences, subscribed bool, unsubscribeTime null.Time) error {
	return r.update(ctx, id, map[string]interface{}{
		"preferences":      models.PreferencesJSON(prefs),
		"subscribed":       subscribed,
		"unsubscribe_time": unsubscribeTime,
	})
}

func (r *SubscriberRepository) update(ctx context.Context, id int64, values map[string]interface{}) error {
	result := r.query(ctx).Where("id = ?", id).Updates(values)
	if result.Error != nil {
		return fmt.Errorf("update subscriber %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func toSubscriberModel(e *entities.Subscriber) *models.Subscriber {
	prefs := e.Preferences
	if prefs == nil {
		prefs = entities.DefaultPreferences()
	}
	return &models.Subscriber{
		ID:              e.ID,
		Email:           e.Email,
		Subscribed:      e.Subscribed,
		SubscribedAt:    e.SubscribedAt,
		EmailVerified:   e.EmailVerified,
		Preferences:     models.PreferencesJSON(prefs),
		FirstName:       e.FirstName.Ptr(),
		LastName:        e.LastName.Ptr(),
		UnsubscribeTime: e.UnsubscribeTime.Ptr(),
	}
}

func toSubscriberEntity(m *models.Subscriber) *entities.Subscriber {
	prefs := entities.Preferences(m.Preferences)
	if prefs == nil {
		prefs = entities.Preferences{}
	}
	return &entities.Subscriber{
		ID:              m.ID,
		Email:           m.Email,
		Subscribed:      m.Subscribed,
		SubscribedAt:    m.SubscribedAt,
		EmailVerified:   m.EmailVerified,
		Preferences:     prefs,
		FirstName:       null.StringFromPtr(m.FirstName),
		LastName:        null.StringFromPtr(m.LastName),
		UnsubscribeTime: null.TimeFromPtr(m.UnsubscribeTime),
	}
}
