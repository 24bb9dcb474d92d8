package main

import (
	"github.com/gin-gonic/gin"

	"newsletter.backend/internal/interfaces/http/handlers"
)

type routeDeps struct {
	subscriptionHandler *handlers.SubscriptionHandler
	rateLimit           func(scope string) gin.HandlerFunc
}

func registerAPIV1Routes(r *gin.Engine, d routeDeps) {
	v1 := r.Group("/api/v1")
	{
		// Subscription flow (public, token gated)
		v1.POST("/subscribe", d.rateLimit("subscribe"), d.subscriptionHandler.Subscribe)
		v1.POST("/verify-email", d.subscriptionHandler.VerifyEmail)
		v1.GET("/verify-email", d.subscriptionHandler.VerifyEmail)
		v1.POST("/complete-account", d.subscriptionHandler.CompleteAccount)

		preferences := v1.Group("/preferences")
		{
			preferences.GET("", d.subscriptionHandler.GetPreferences)
			preferences.POST("", d.subscriptionHandler.UpdatePreferences)
		}

		tokens := v1.Group("/tokens")
		{
			tokens.POST("/regenerate", d.rateLimit("regenerate"), d.subscriptionHandler.RegenerateToken)
		}
	}
}
