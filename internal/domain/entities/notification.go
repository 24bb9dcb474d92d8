package entities

// NotificationKind selects the message sent to a subscriber
type NotificationKind string

const (
	NotificationVerification NotificationKind = "verification"
	NotificationWelcome      NotificationKind = "welcome"
	NotificationRegenerated  NotificationKind = "regenerated"
)

// Link names used in Notification.Links
const (
	LinkVerifyEmail     = "verifyEmail"
	LinkCompleteAccount = "completeAccount"
	LinkPreferences     = "preferences"
)

// Notification is an outbound message produced after a committed state
// change. Links carry plaintext tokens and must never be persisted.
type Notification struct {
	Kind   NotificationKind
	Email  string
	Links  map[string]string
	Origin FlowOrigin
}
