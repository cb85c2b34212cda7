package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/engine"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/response"
	"github.com/stemsi/exstem-prep/internal/service"
	ws "github.com/stemsi/exstem-prep/internal/websocket"
)

// outboxSize bounds replies queued behind a slow client.
const outboxSize = 16

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams session snapshots and accepts session commands over WebSocket.
type WSHandler struct {
	sessionService *service.SessionService
	log            zerolog.Logger
	upgrader       websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/candidate/sessions/:session_id/stream
// Pushes a snapshot after every state change and accepts select, advance,
// submit, bookmark and ping actions.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	// Ownership is checked before upgrading so failures are plain HTTP errors.
	ctrl, err := h.sessionService.Get(claims.UserID, sessionID)
	if err != nil {
		status, code := sessionError(err)
		response.Fail(c, status, code)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		reqLog := response.RequestLogger(c, h.log)
		reqLog.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().
		Int("candidate_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Candidate connected")

	snapshots, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	outbox := make(chan any, outboxSize)
	done := make(chan struct{})
	go h.writeLoop(conn, wsLog, snapshots, outbox, done)
	defer close(outbox)

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		reply := h.dispatch(ctrl, wsLog, msg)
		if reply == nil {
			continue
		}
		select {
		case outbox <- reply:
		case <-done:
			return
		}
	}
}

// dispatch runs one client action. A nil reply means the resulting snapshot
// is the only answer.
func (h *WSHandler) dispatch(ctrl *engine.Controller, wsLog zerolog.Logger, msg ws.RequestPayload) any {
	switch msg.Action {
	case ws.ActionPing:
		return ws.PongResponse{Event: ws.EventPong}

	case ws.ActionSelect:
		if msg.Slot == nil || msg.Option == nil {
			return errorReply(response.ErrInvalidPayload)
		}
		if err := ctrl.SelectOption(*msg.Slot, *msg.Option); err != nil {
			_, code := sessionError(err)
			return errorReply(code)
		}
		return nil

	case ws.ActionAdvance:
		window, err := ctrl.AdvanceWindow()
		if err != nil {
			_, code := sessionError(err)
			return errorReply(code)
		}
		return ws.AdvancedResponse{Event: ws.EventAdvanced, Window: window}

	case ws.ActionSubmit:
		if _, err := ctrl.Submit(engine.SubmitReasonCandidate); err != nil {
			_, code := sessionError(err)
			return errorReply(code)
		}
		return nil

	case ws.ActionBookmark:
		if msg.Slot == nil {
			return errorReply(response.ErrInvalidPayload)
		}
		on, err := ctrl.ToggleBookmark(*msg.Slot)
		if err != nil {
			_, code := sessionError(err)
			return errorReply(code)
		}
		return ws.BookmarkResponse{Event: ws.EventBookmark, Slot: *msg.Slot, Bookmarked: on}

	default:
		wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		return ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrInvalidPayload), Error: "unknown action: " + string(msg.Action)}
	}
}

// writeLoop is the only writer on conn. It ends when the outbox closes or a
// write fails, closing done in either case.
func (h *WSHandler) writeLoop(conn *websocket.Conn, wsLog zerolog.Logger, snapshots <-chan engine.Snapshot, outbox <-chan any, done chan<- struct{}) {
	defer close(done)
	for {
		var payload any
		select {
		case snap, ok := <-snapshots:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
					time.Now().Add(time.Second))
				snapshots = nil
				continue
			}
			payload = ws.SnapshotResponse{Event: ws.EventSnapshot, Snapshot: snap}
		case msg, ok := <-outbox:
			if !ok {
				return
			}
			payload = msg
		}

		if err := ws.WriteTyped(conn, payload); err != nil {
			wsLog.Debug().Err(err).Msg("Write failed")
			_ = conn.Close()
			return
		}
	}
}

func errorReply(code response.ErrCode) ws.ErrorResponse {
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: response.GetMessage(code)}
}
