package httpapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/leeseongmin/maum/internal/memory"
)

// Stream protocol: the client sends one JSON message per event and gets a
// JSON reply for each. "turn" appends an exchange, "end" closes out the
// session; anything else is answered with an error frame and the connection
// stays open.
type streamMessage struct {
	Type      string         `json:"type"`
	UserText  string         `json:"user_text,omitempty"`
	AgentText string         `json:"agent_text,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type streamReply struct {
	Type       string         `json:"type"`
	SessionID  string         `json:"session_id"`
	Status     memory.Status  `json:"status,omitempty"`
	TotalTurns int            `json:"total_turns,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
	Code       string         `json:"code,omitempty"`
	Detail     string         `json:"detail,omitempty"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "query parameter session_id is required")
		return
	}
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		userID = "anonymous"
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.log.Info().Str("session_id", sessionID).Str("user_id", userID).Msg("memory stream connected")

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))

		var reply streamReply
		switch msg.Type {
		case "turn":
			sess := s.manager.ProcessTurn(r.Context(), sessionID, userID, msg.UserText, msg.AgentText, msg.Metadata)
			s.metrics.SetActiveSessions(s.manager.ActiveSessionCount())
			reply = streamReply{
				Type:       "turn_ack",
				SessionID:  sessionID,
				Status:     sess.Status(),
				TotalTurns: sess.TurnCount(),
				Context:    sess.AllContext(),
			}
		case "end":
			s.manager.EndSession(r.Context(), sessionID, userID)
			s.metrics.SetActiveSessions(s.manager.ActiveSessionCount())
			reply = streamReply{Type: "session_ended", SessionID: sessionID, Status: memory.StatusEnded}
			if sess, ok := s.manager.LookupSession(sessionID); ok {
				reply.TotalTurns = sess.TurnCount()
				reply.Context = sess.AllContext()
			}
		default:
			reply = streamReply{
				Type:      "error",
				SessionID: sessionID,
				Code:      "invalid_message_type",
				Detail:    "unsupported type " + msg.Type,
			}
		}

		_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteJSON(reply); err != nil {
			break
		}
	}

	s.log.Info().Str("session_id", sessionID).Msg("memory stream disconnected")
}
