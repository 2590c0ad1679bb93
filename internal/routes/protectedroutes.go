package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/handlers"
	"github.com/gitflash/interviewd/internal/middlewares"
)

func RegisterProtectedEndpoints(
	router *gin.Engine,
	interviewHandler *handlers.InterviewHandler,
	jwtSecret string,
	log zerolog.Logger,
) {
	protected := router.Group("/api")
	protected.Use(middlewares.AuthMiddleware(jwtSecret, log))

	protected.POST("/interviews/views", interviewHandler.OpenView)
	protected.POST("/interviews/views/resume", interviewHandler.ResumeView)

	view := protected.Group("/interviews/views/:view_id")
	view.GET("", interviewHandler.GetView)
	view.DELETE("", interviewHandler.CloseView)

	view.POST("/start", interviewHandler.StartSession)
	view.POST("/refresh", interviewHandler.RefreshStatus)
	view.POST("/end", interviewHandler.EndSession)
	view.GET("/recording", interviewHandler.GetRecording)
	view.POST("/recording/check", interviewHandler.CheckRecording)

	view.POST("/call/join", interviewHandler.JoinCall)
	view.POST("/call/leave", interviewHandler.LeaveCall)
	view.POST("/call/audio/toggle", interviewHandler.ToggleAudio)
	view.POST("/call/video/toggle", interviewHandler.ToggleVideo)
	view.GET("/call/participants", interviewHandler.Participants)
	view.POST("/surface/loaded", interviewHandler.SurfaceLoaded)

	view.GET("/devices", interviewHandler.ListDevices)
	view.PUT("/devices/:kind", interviewHandler.SelectDevice)
	view.POST("/devices/speaker/test-tone", interviewHandler.PlayTestTone)
}
