package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/handlers"
	"github.com/gitflash/interviewd/internal/middlewares"
)

func RegisterPublicEndpoints(
	router *gin.Engine,
	healthHandler *handlers.HealthHandler,
	webSocketHandler *handlers.WebSocketHandler,
	views middlewares.ViewOwner,
	jwtSecret string,
	log zerolog.Logger,
) {
	public := router.Group("/api")

	public.GET("/health", healthHandler.Health)

	// Event stream. The middleware validates the token from the query and
	// checks the view belongs to its user before the upgrade.
	wsAuth := middlewares.WebSocketAuthMiddleware(jwtSecret, views, log)
	public.GET("/ws/interviews", wsAuth, webSocketHandler.HandleWebSocket)
}
