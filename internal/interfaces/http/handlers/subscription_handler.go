package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"newsletter.backend/internal/domain/entities"
	domainerrors "newsletter.backend/internal/domain/errors"
	"newsletter.backend/internal/interfaces/http/response"
	"newsletter.backend/internal/usecases"
)

// OriginHeader carries the flow a regeneration request comes from when the
// body does not name it.
const OriginHeader = "X-Request-Origin"

// SubscriptionService is the subscription state machine as seen by HTTP
type SubscriptionService interface {
	Subscribe(ctx context.Context, email string) error
	VerifyEmail(ctx context.Context, token string) error
	CompleteAccount(ctx context.Context, token, firstName, lastName string) error
	GetPreferences(ctx context.Context, token string) (entities.Preferences, error)
	SetPreferences(ctx context.Context, token string, prefs entities.Preferences) error
	RegenerateToken(ctx context.Context, token, origin string) (*usecases.RegeneratedToken, error)
}

// SubscriptionHandler handles the newsletter subscription endpoints
type SubscriptionHandler struct {
	service SubscriptionService
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(service SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{service: service}
}

// SubscribeRequest represents the subscribe request body
type SubscribeRequest struct {
	Email string `json:"email"`
}

// TokenRequest represents a request carrying only a token
type TokenRequest struct {
	Token string `json:"token"`
}

// CompleteAccountRequest represents the complete-account request body
type CompleteAccountRequest struct {
	Token     string `json:"token"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

// PreferencesRequest represents the preferences update body
type PreferencesRequest struct {
	Token       string               `json:"token"`
	Preferences entities.Preferences `json:"preferences"`
}

// RegenerateTokenRequest represents the token regeneration body
type RegenerateTokenRequest struct {
	Token  string `json:"token"`
	Origin string `json:"origin"`
}

// Subscribe registers an email address
// POST /api/v1/subscribe
func (h *SubscriptionHandler) Subscribe(c *gin.Context) {
	var req SubscribeRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.Subscribe(c.Request.Context(), req.Email); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusCreated, "Subscription successful. Please check your email to verify your address.")
}

// VerifyEmail consumes a verification token. The token comes from the body
// or, for links opened directly, the query string.
// POST /api/v1/verify-email
// GET /api/v1/verify-email?token=
func (h *SubscriptionHandler) VerifyEmail(c *gin.Context) {
	var req TokenRequest
	if c.Request.Method == http.MethodGet {
		req.Token = c.Query("token")
	} else if !bindJSON(c, &req) {
		return
	}

	err := h.service.VerifyEmail(c.Request.Context(), req.Token)
	switch {
	case err == nil:
		response.Message(c, http.StatusOK, "Email verified successfully.")
	case errors.Is(err, domainerrors.ErrTokenAlreadyUsed):
		response.Message(c, http.StatusOK, "Email already verified.")
	default:
		response.Error(c, err)
	}
}

// CompleteAccount stores the subscriber's names
// POST /api/v1/complete-account
func (h *SubscriptionHandler) CompleteAccount(c *gin.Context) {
	var req CompleteAccountRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.CompleteAccount(c.Request.Context(), req.Token, req.FirstName, req.LastName); err != nil {
		response.Error(c, err)
		return
	}

	response.Message(c, http.StatusOK, "Account completed successfully.")
}

// GetPreferences returns the preferences unlocked by a preferences token
// GET /api/v1/preferences?token=
func (h *SubscriptionHandler) GetPreferences(c *gin.Context) {
	prefs, err := h.service.GetPreferences(c.Request.Context(), c.Query("token"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"preferences": prefs})
}

// UpdatePreferences replaces the subscriber's preferences
// POST /api/v1/preferences
func (h *SubscriptionHandler) UpdatePreferences(c *gin.Context) {
	var req PreferencesRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := h.service.SetPreferences(c.Request.Context(), req.Token, req.Preferences); err != nil {
		response.Error(c, err)
		return
	}

	message := "Preferences updated successfully."
	if req.Preferences.AllDisabled() {
		message = "You have been unsubscribed."
	}
	response.Message(c, http.StatusOK, message)
}

// RegenerateToken replaces an expired token and mails the new link
// POST /api/v1/tokens/regenerate
func (h *SubscriptionHandler) RegenerateToken(c *gin.Context) {
	var req RegenerateTokenRequest
	if !bindJSON(c, &req) {
		return
	}
	origin := strings.TrimSpace(req.Origin)
	if origin == "" {
		origin = c.GetHeader(OriginHeader)
	}

	result, err := h.service.RegenerateToken(c.Request.Context(), req.Token, origin)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"message":   "A new link has been sent to your email.",
		"token":     result.Token,
		"expiresAt": result.ExpiresAt,
	})
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, domainerrors.BadRequest("Invalid request body."))
		return false
	}
	return true
}
