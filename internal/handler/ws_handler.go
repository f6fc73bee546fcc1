package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/ielts-listening/internal/middleware"
	"github.com/stemsi/ielts-listening/internal/model"
	"github.com/stemsi/ielts-listening/internal/response"
	"github.com/stemsi/ielts-listening/internal/service"
	"github.com/stemsi/ielts-listening/internal/session"
	"github.com/stemsi/ielts-listening/internal/validator"
	ws "github.com/stemsi/ielts-listening/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
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

// WSHandler streams the attempt timer and takes answers over a WebSocket.
type WSHandler struct {
	listeningService *service.ListeningService
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(listeningService *service.ListeningService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		listeningService: listeningService,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// outboxSize bounds queued frames per connection; tick events are dropped
// when a slow client falls behind.
const outboxSize = 64

// ListeningStream godoc
// WS /ws/v1/listening/exams/:exam_id/stream
// Pushes state and tick events for an open attempt and accepts answer,
// toggle_checkbox, drag, submit, status and ping actions.
func (h *WSHandler) ListeningStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	userID := claims.UserID()
	examID := c.Param("exam_id")

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	wsLog := h.log.With().Str("user_id", userID).Str("exam_id", examID).Logger()

	outbox := make(chan interface{}, outboxSize)
	send := func(v interface{}) {
		select {
		case outbox <- v:
		default:
			wsLog.Warn().Msg("Outbox full, frame dropped")
		}
	}

	unsubscribe, err := h.listeningService.Subscribe(userID, examID, func(ev session.Event) {
		send(ws.StatusResponse{
			Event:   ws.Event(ev.Type),
			Status:  ev.Status,
			Trigger: string(ev.Trigger),
			Error:   ev.Error,
		})
	})
	if err != nil {
		_, code := classify(err)
		ws.WriteError(conn, string(code), err.Error())
		return
	}
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case v := <-outbox:
				if err := ws.WriteTyped(conn, v); err != nil {
					wsLog.Debug().Err(err).Msg("Write failed")
					cancel()
					return
				}
			}
		}
	}()

	wsLog.Info().Msg("Client connected")
	if status, err := h.listeningService.Status(userID, examID); err == nil {
		send(ws.StatusResponse{Event: ws.EventState, Status: status})
	}

	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			send(errorFrame(err))
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			send(h.handleAnswer(ctx, userID, examID, raw))
		case ws.ActionCheckbox:
			send(h.handleCheckbox(ctx, userID, examID, raw))
		case ws.ActionDrag:
			send(h.handleDrag(ctx, userID, examID, raw))
		case ws.ActionSubmit:
			// Success and failure arrive as lifecycle events.
			if _, err := h.listeningService.Submit(ctx, userID, examID); err != nil {
				send(errorFrame(err))
			}
		case ws.ActionStatus:
			status, err := h.listeningService.Status(userID, examID)
			if err != nil {
				send(errorFrame(err))
				continue
			}
			send(ws.StatusResponse{Event: ws.EventState, Status: status})
		case ws.ActionPing:
			send(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			send(ws.ErrorResponse{Event: ws.EventError, Error: "unknown action: " + string(env.Action)})
		}
	}

	cancel()
	<-writerDone
}

func (h *WSHandler) handleAnswer(ctx context.Context, userID, examID string, raw json.RawMessage) interface{} {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorFrame(err)
	}
	req := model.SetAnswerRequest{Value: msg.Value}
	if fields := validator.Validate(&req); fields != nil {
		return fieldsFrame(fields)
	}
	if err := h.listeningService.SetAnswer(ctx, userID, examID, msg.Number, req.Value); err != nil {
		return errorFrame(err)
	}
	return h.saved(userID, examID, true)
}

func (h *WSHandler) handleCheckbox(ctx context.Context, userID, examID string, raw json.RawMessage) interface{} {
	var msg ws.CheckboxRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorFrame(err)
	}
	req := model.CheckboxToggleRequest{Start: msg.Start, Value: msg.Value}
	if fields := validator.Validate(&req); fields != nil {
		return fieldsFrame(fields)
	}
	changed, err := h.listeningService.ToggleCheckbox(ctx, userID, examID, req)
	if err != nil {
		return errorFrame(err)
	}
	return h.saved(userID, examID, changed)
}

func (h *WSHandler) handleDrag(ctx context.Context, userID, examID string, raw json.RawMessage) interface{} {
	var msg ws.DragRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		return errorFrame(err)
	}
	req := model.DragRequest{Part: msg.Part, Value: msg.Value, From: msg.From, To: msg.To}
	if fields := validator.Validate(&req); fields != nil {
		return fieldsFrame(fields)
	}
	if err := h.listeningService.Drag(ctx, userID, examID, req); err != nil {
		return errorFrame(err)
	}
	return h.saved(userID, examID, true)
}

func (h *WSHandler) saved(userID, examID string, changed bool) interface{} {
	rep, err := h.listeningService.Progress(userID, examID)
	if err != nil {
		return errorFrame(err)
	}
	return ws.SavedResponse{Event: ws.EventSaved, Changed: changed, Progress: rep}
}

func errorFrame(err error) ws.ErrorResponse {
	_, code := classify(err)
	return ws.ErrorResponse{Event: ws.EventError, Code: string(code), Error: err.Error()}
}

func fieldsFrame(fields map[string]string) ws.ErrorResponse {
	parts := make([]string, 0, len(fields))
	for k, v := range fields {
		parts = append(parts, k+": "+v)
	}
	sort.Strings(parts)
	return ws.ErrorResponse{Event: ws.EventError, Code: string(response.ErrValidation), Error: strings.Join(parts, "; ")}
}
