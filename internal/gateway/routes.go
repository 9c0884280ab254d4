package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/soyeahso/huddle/internal/conversation"
)

// newConversationID is the path id that asks the server to generate one.
const newConversationID = "new"

const startFrameTimeout = 10 * time.Second

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("GET /v1/conversations/active", s.requireAuth(s.handleActive))
	mux.HandleFunc("GET /v1/conversations/{id}", s.requireAuth(s.handleTranscript))
	mux.HandleFunc("POST /v1/conversations/{id}/run", s.requireAuth(s.handleRun))
	mux.HandleFunc("GET /v1/conversations/{id}/stream", s.requireAuth(s.handleStream))
	mux.HandleFunc("POST /v1/conversations/{id}/stop", s.requireAuth(s.handleStop))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}

// conversationID reads the path id, generating one for "new".
func conversationID(r *http.Request) string {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == newConversationID {
		return uuid.NewString()
	}
	return id
}

func (p StartParams) request(conversationID, userID string) conversation.Request {
	return conversation.Request{
		ConversationID: conversationID,
		AgentIDs:       p.AgentIDs,
		InitialMessage: p.Message,
		MaxTurns:       p.MaxTurns,
		UserID:         userID,
		Attachments:    p.Attachments,
	}
}

// statusFor maps an end reason to the HTTP status of a batch run.
func statusFor(reason conversation.EndReason) int {
	switch reason {
	case conversation.EndInvalid:
		return http.StatusBadRequest
	case conversation.EndBusy:
		return http.StatusConflict
	case conversation.EndFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusOK
	}
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var p StartParams
	body := http.MaxBytesReader(w, r.Body, maxPayload)
	if err := json.NewDecoder(body).Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_params", "invalid request body: "+err.Error())
		return
	}

	req := p.request(conversationID(r), requestUser(r))
	res := s.conversations.Start(r.Context(), req)
	s.log.Info().
		Str("conversationId", res.ConversationID).
		Str("reason", string(res.Reason)).
		Int("turns", res.Turns).
		Msg("batch run finished")
	writeJSON(w, statusFor(res.Reason), res)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.conversations.Stop(id) {
		writeError(w, http.StatusNotFound, "not_running", "conversation is not running: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conversationId": id, "stopped": true})
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"conversations": s.conversations.Active()})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	if s.transcripts == nil {
		writeError(w, http.StatusNotImplemented, "unavailable", "transcripts are not available")
		return
	}
	id := r.PathValue("id")
	msgs, err := s.transcripts.GetExisting(r.Context(), id, requestUser(r))
	if err != nil {
		s.log.Error().Err(err).Str("conversationId", id).Msg("failed to read transcript")
		writeError(w, http.StatusInternalServerError, "store_error", "transcript could not be read")
		return
	}
	if len(msgs) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "conversation not found: "+id)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"conversationId": id,
		"messages":       conversation.Display(msgs),
	})
}

// handleStream upgrades to WebSocket, waits for a start frame, then relays
// conversation events until the done event. A stop frame stops the
// conversation at its next turn boundary; a dropped connection cancels it.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := conversationID(r)
	uid := requestUser(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxPayload)

	client := NewClient(conn, uid, id, s.log.Sub("ws"))
	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	conn.SetReadDeadline(time.Now().Add(startFrameTimeout))
	frame, err := client.ReadFrame()
	if err != nil || frame.Type != FrameTypeStart {
		client.SendError("protocol_error", "expected start frame")
		client.CloseNormal("protocol error")
		return
	}
	var p StartParams
	if len(frame.Params) > 0 {
		if err := json.Unmarshal(frame.Params, &p); err != nil {
			client.SendError("invalid_params", "invalid start params")
			client.CloseNormal("invalid params")
			return
		}
	}
	conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go s.readControl(client, id, cancel)

	for ev := range s.conversations.Stream(ctx, p.request(id, uid)) {
		if err := client.SendEvent(string(ev.Type), ev); err != nil {
			s.log.Debug().Err(err).Str("conversationId", id).Msg("stream client gone")
			cancel()
		}
	}
	client.CloseNormal("conversation ended")
}

// readControl handles frames sent after start. It cancels the stream when
// the connection drops.
func (s *Server) readControl(client *Client, id string, cancel context.CancelFunc) {
	defer cancel()
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("stream read ended")
			}
			return
		}
		switch frame.Type {
		case FrameTypeStop:
			stopped := s.conversations.Stop(id)
			s.log.Info().Str("conversationId", id).Bool("stopped", stopped).Msg("stop requested over stream")
		default:
			client.SendError("protocol_error", "unexpected frame type: "+frame.Type)
		}
	}
}
