package middlewares

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/utils"
)

type contextKey string

const wsAuthKey contextKey = "ws_auth"

// WebSocketAuthContext holds authenticated WebSocket connection data
type WebSocketAuthContext struct {
	UserID string
	ViewID uuid.UUID
}

// ViewOwner reports whether a view belongs to a user.
type ViewOwner interface {
	OwnsView(viewID uuid.UUID, userID string) bool
}

// WebSocketAuthMiddleware authenticates event stream connections before the
// upgrade. Browsers cannot set headers on a WebSocket handshake, so the
// token travels as a query parameter. Ownership of the view is checked
// against the live view registry, never taken from the client.
func WebSocketAuthMiddleware(jwtSecret string, views ViewOwner, log zerolog.Logger) gin.HandlerFunc {
	log = log.With().Str("component", "ws_auth").Logger()

	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "authentication required",
			})
			return
		}

		claims, err := utils.ParseAccessToken(token, jwtSecret)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		viewIDStr := c.Query("view_id")
		if viewIDStr == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "view_id required",
			})
			return
		}

		viewID, err := uuid.Parse(viewIDStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": "invalid view_id format",
			})
			return
		}

		if !views.OwnsView(viewID, claims.UserID) {
			log.Warn().Str("user_id", claims.UserID).Str("view_id", viewID.String()).Msg("view not owned by user")
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
				"error": "view not found",
			})
			return
		}

		authCtx := &WebSocketAuthContext{UserID: claims.UserID, ViewID: viewID}
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), wsAuthKey, authCtx))
		c.Set(userIDKey, claims.UserID)

		c.Next()
	}
}

// GetWebSocketAuth retrieves authentication context from request
func GetWebSocketAuth(c *gin.Context) (*WebSocketAuthContext, error) {
	val := c.Request.Context().Value(wsAuthKey)
	if val == nil {
		return nil, errors.New("websocket authentication context not found")
	}

	auth, ok := val.(*WebSocketAuthContext)
	if !ok {
		return nil, errors.New("invalid websocket authentication context type")
	}

	return auth, nil
}
