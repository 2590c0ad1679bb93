package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/middlewares"
	"github.com/gitflash/interviewd/internal/services"
	ws "github.com/gitflash/interviewd/internal/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

type WebSocketHandler struct {
	service  *services.InterviewService
	hub      *ws.Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWebSocketHandler accepts upgrades from allowedOrigins only; "*" allows
// every origin.
func NewWebSocketHandler(service *services.InterviewService, hub *ws.Hub, allowedOrigins []string, log zerolog.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		service: service,
		hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
		log: log.With().Str("component", "ws_handler").Logger(),
	}
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// HandleWebSocket is the WebSocket endpoint handler
// MUST be protected by WebSocketAuthMiddleware
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	auth, err := middlewares.GetWebSocketAuth(c)
	if err != nil {
		h.log.Error().Err(err).Msg("missing authentication context")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "internal server error",
		})
		return
	}

	view, err := h.service.GetView(auth.ViewID, auth.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "view not found"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := ws.NewClient(auth.ViewID, auth.UserID, conn, h.hub)
	h.hub.AddClient(client)

	log := h.log.With().
		Str("view_id", auth.ViewID.String()).
		Str("client_id", client.ID.String()).
		Logger()
	log.Info().Msg("event stream connected")

	// The hosting view renders from the snapshot, then applies events.
	if msg, err := ws.NewMessage(ws.TypeSnapshot, viewResponse(view)); err == nil {
		client.Deliver(msg)
	}

	go h.writePump(client, log)
	go h.readPump(client, log)
}

// readPump reads messages from the hosting view until the connection drops.
func (h *WebSocketHandler) readPump(client *ws.Client, log zerolog.Logger) {
	defer func() {
		h.hub.RemoveClient(client.ViewID, client.ID)
		client.Close()
		log.Info().Msg("event stream disconnected")
	}()

	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg ws.WebSocketMessage
		if err := client.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("unexpected close")
			}
			return
		}

		switch msg.Type {
		case ws.TypeAutoJoinResult:
			var res ws.AutoJoinResultPayload
			if err := json.Unmarshal(msg.Payload, &res); err != nil {
				log.Warn().Err(err).Msg("malformed auto-join result")
				continue
			}
			if !h.hub.CompleteAutoJoin(res) {
				log.Debug().Str("attempt_id", res.AttemptID).Msg("late auto-join result dropped")
			}

		case ws.TypePing:
			if pong, err := ws.NewMessage(ws.TypePong, nil); err == nil {
				client.Deliver(pong)
			}

		default:
			log.Debug().Str("type", msg.Type).Msg("unknown message type")
		}
	}
}

// writePump writes queued messages and keeps the connection alive.
func (h *WebSocketHandler) writePump(client *ws.Client, log zerolog.Logger) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(message); err != nil {
				log.Debug().Err(err).Msg("write failed")
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Msg("ping failed")
				return
			}

		case <-client.Done:
			return
		}
	}
}
