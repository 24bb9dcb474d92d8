package entities

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Preferences holds per-topic opt-ins. Keys are open ended.
type Preferences map[string]bool

// DefaultPreferences returns the preferences every new subscriber starts with
func DefaultPreferences() Preferences {
	return Preferences{"updates": true, "promotions": true}
}

// AllDisabled reports whether no topic is opted into. An empty map counts
// as disabled.
func (p Preferences) AllDisabled() bool {
	for _, enabled := range p {
		if enabled {
			return false
		}
	}
	return true
}

// Subscriber represents a newsletter subscriber
type Subscriber struct {
	ID              int64       `json:"id"`
	Email           string      `json:"email"`
	Subscribed      bool        `json:"subscribed"`
	SubscribedAt    time.Time   `json:"subscribedAt"`
	EmailVerified   bool        `json:"emailVerified"`
	Preferences     Preferences `json:"preferences"`
	FirstName       null.String `json:"firstName"`
	LastName        null.String `json:"lastName"`
	UnsubscribeTime null.Time   `json:"unsubscribeTime"`
}
