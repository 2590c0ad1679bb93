package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/dtos"
	"github.com/gitflash/interviewd/internal/middlewares"
	"github.com/gitflash/interviewd/internal/provider"
	"github.com/gitflash/interviewd/internal/rtc"
	"github.com/gitflash/interviewd/internal/services"
)

type InterviewHandler struct {
	service *services.InterviewService
	log     zerolog.Logger
}

func NewInterviewHandler(service *services.InterviewService, log zerolog.Logger) *InterviewHandler {
	return &InterviewHandler{
		service: service,
		log:     log.With().Str("component", "interview_handler").Logger(),
	}
}

func (h *InterviewHandler) OpenView(c *gin.Context) {
	userID, _ := middlewares.GetUserID(c)

	var req dtos.OpenViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.service.OpenView(c.Request.Context(), userID, req.ConversationID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, viewResponse(view))
}

func (h *InterviewHandler) ResumeView(c *gin.Context) {
	userID, _ := middlewares.GetUserID(c)

	var req dtos.ResumeViewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.service.ResumeView(c.Request.Context(), userID, req.SessionID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, viewResponse(view))
}

func (h *InterviewHandler) GetView(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, viewResponse(view))
}

// CloseView unmounts the view. The remote session keeps running.
func (h *InterviewHandler) CloseView(c *gin.Context) {
	userID, _ := middlewares.GetUserID(c)
	viewID, ok := viewIDParam(c)
	if !ok {
		return
	}

	if err := h.service.CloseView(c.Request.Context(), viewID, userID); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *InterviewHandler) StartSession(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	joinURL, err := view.Controller.Start(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrInvalidJoinURL) {
			c.JSON(http.StatusBadGateway, gin.H{"error": "provider returned no usable join url"})
			return
		}
		h.respondProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.StartSessionResponse{ViewResponse: viewResponse(view), JoinURL: joinURL})
}

func (h *InterviewHandler) RefreshStatus(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	if err := view.Controller.RefreshStatus(c.Request.Context()); err != nil {
		h.respondProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse(view))
}

func (h *InterviewHandler) EndSession(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	if err := view.Controller.End(c.Request.Context()); err != nil {
		h.respondProviderError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse(view))
}

func (h *InterviewHandler) GetRecording(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	snap := view.Controller.Snapshot()
	c.JSON(http.StatusOK, dtos.RecordingResponse{SessionID: snap.SessionID, Recording: snap.Recording})
}

func (h *InterviewHandler) CheckRecording(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	rec, err := view.Controller.CheckRecording(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.RecordingResponse{SessionID: view.Controller.Snapshot().SessionID, Recording: rec})
}

func (h *InterviewHandler) JoinCall(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	// The join URL always comes from the session, never from the client.
	joinURL := view.Controller.Snapshot().JoinURL
	if err := view.Surface.Join(c.Request.Context(), joinURL); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// another view holds the shared transport
			c.JSON(http.StatusConflict, gin.H{"error": "call transport is busy"})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse(view))
}

func (h *InterviewHandler) LeaveCall(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	if err := view.Surface.Leave(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, viewResponse(view))
}

func (h *InterviewHandler) ToggleAudio(c *gin.Context) {
	h.toggle(c, (*services.CallSurface).ToggleAudio)
}

func (h *InterviewHandler) ToggleVideo(c *gin.Context) {
	h.toggle(c, (*services.CallSurface).ToggleVideo)
}

func (h *InterviewHandler) toggle(c *gin.Context, flip func(*services.CallSurface, context.Context) (bool, error)) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	enabled, err := flip(view.Surface, c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.ToggleResponse{Enabled: enabled})
}

func (h *InterviewHandler) Participants(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dtos.ParticipantsResponse{Participants: view.Surface.Participants()})
}

func (h *InterviewHandler) SurfaceLoaded(c *gin.Context) {
	userID, _ := middlewares.GetUserID(c)
	viewID, ok := viewIDParam(c)
	if !ok {
		return
	}

	started, err := h.service.SurfaceLoaded(c.Request.Context(), viewID, userID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dtos.SurfaceLoadedResponse{AutoJoinStarted: started})
}

func (h *InterviewHandler) ListDevices(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	groups, err := view.Devices.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": groups})
}

func (h *InterviewHandler) SelectDevice(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	var req dtos.SelectDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kind := rtc.DeviceKind(c.Param("kind"))
	if err := view.Devices.Select(c.Request.Context(), kind, req.DeviceID); err != nil {
		h.respondError(c, err)
		return
	}

	groups, err := view.Devices.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": groups})
}

func (h *InterviewHandler) PlayTestTone(c *gin.Context) {
	view, ok := h.view(c)
	if !ok {
		return
	}

	if err := view.Devices.PlayTestTone(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// view resolves :view_id for the authenticated user and writes the error
// response itself when it cannot.
func (h *InterviewHandler) view(c *gin.Context) (*services.View, bool) {
	userID, _ := middlewares.GetUserID(c)
	viewID, ok := viewIDParam(c)
	if !ok {
		return nil, false
	}

	view, err := h.service.GetView(viewID, userID)
	if err != nil {
		h.respondError(c, err)
		return nil, false
	}
	return view, true
}

func viewIDParam(c *gin.Context) (uuid.UUID, bool) {
	viewID, err := uuid.Parse(c.Param("view_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid view_id"})
		return uuid.Nil, false
	}
	return viewID, true
}

func viewResponse(view *services.View) dtos.ViewResponse {
	audio, video := view.Surface.MediaState()
	return dtos.ViewResponse{
		ViewID:  view.ID,
		Session: view.Controller.Snapshot(),
		Call: dtos.CallState{
			Joined: view.Surface.Joined(),
			Audio:  audio,
			Video:  video,
		},
	}
}

// respondProviderError is respondError for operations that call the
// provider: anything unclassified is an upstream failure.
func (h *InterviewHandler) respondProviderError(c *gin.Context, err error) {
	if status, ok := statusFor(err); ok {
		c.JSON(status, gin.H{"error": errorMessage(err)})
		return
	}
	h.log.Warn().Err(err).Str("path", c.FullPath()).Msg("provider request failed")
	c.JSON(http.StatusBadGateway, gin.H{"error": errorMessage(err)})
}

func (h *InterviewHandler) respondError(c *gin.Context, err error) {
	if status, ok := statusFor(err); ok {
		c.JSON(status, gin.H{"error": errorMessage(err)})
		return
	}
	h.log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func statusFor(err error) (int, bool) {
	var providerErr *provider.Error
	switch {
	case errors.Is(err, services.ErrViewNotFound),
		errors.Is(err, services.ErrSessionNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, services.ErrInvalidTransition),
		errors.Is(err, services.ErrJoinNotAllowed),
		errors.Is(err, services.ErrAlreadyJoined),
		errors.Is(err, services.ErrNotJoined),
		errors.Is(err, services.ErrJoinCancelled),
		errors.Is(err, services.ErrSessionNotEnded),
		errors.Is(err, services.ErrViewClosed):
		return http.StatusConflict, true
	case errors.Is(err, services.ErrInvalidJoinURL),
		errors.Is(err, services.ErrInvalidDeviceKind),
		errors.Is(err, rtc.ErrUnknownDevice):
		return http.StatusBadRequest, true
	case errors.Is(err, rtc.ErrPermissionDenied):
		return http.StatusUnprocessableEntity, true
	case errors.As(err, &providerErr):
		return http.StatusBadGateway, true
	}
	return 0, false
}

// errorMessage prefers the provider's own words.
func errorMessage(err error) string {
	var providerErr *provider.Error
	if errors.As(err, &providerErr) {
		return providerErr.Error()
	}
	return err.Error()
}
