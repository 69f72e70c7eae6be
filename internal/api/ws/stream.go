// Package ws provides the WebSocket audio ingress: clients stream binary
// PCM16LE frames and JSON control messages, and receive live transcript and
// invoice events.
package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-invoice-agent-service/internal/agent"
	"ai-invoice-agent-service/internal/models"
	"ai-invoice-agent-service/internal/observability/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 16 * 1024,
	// The dashboard is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// controlMessage is a JSON text frame from the client.
type controlMessage struct {
	Type string            `json:"type"` // start, stop, finish
	Job  models.JobContext `json:"job,omitempty"`
}

// event is a JSON text frame to the client.
type event struct {
	Kind    string `json:"kind"`
	Payload any    `json:"payload"`
}

// Handler bridges one WebSocket connection to the agent session.
type Handler struct {
	session *agent.Session
	log     zerolog.Logger
}

// NewHandler creates the stream handler.
func NewHandler(session *agent.Session) *Handler {
	return &Handler{session: session, log: logging.WithComponent("ws")}
}

// ServeHTTP upgrades the connection and pumps frames until the client leaves.
// Binary frames carry audio; text frames carry control messages. Recording
// stops when the connection drops, whatever the client last said.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	// Serialize writes: the sink fires from pipeline goroutines.
	var writeMu sync.Mutex
	send := func(kind string, payload any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		if err := conn.WriteJSON(event{Kind: kind, Payload: payload}); err != nil {
			h.log.Debug().Err(err).Msg("websocket write failed")
		}
	}

	h.session.SetSink(send)
	defer func() {
		h.session.SetSink(nil)
		h.session.StopRecording()
	}()

	send("status", h.session.SnapshotState())

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Warn().Err(err).Msg("websocket read failed")
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			h.session.HandleAudio(data)

		case websocket.TextMessage:
			var msg controlMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				h.log.Warn().Err(err).Msg("bad control message")
				continue
			}
			h.handleControl(msg, send)
		}
	}
}

func (h *Handler) handleControl(msg controlMessage, send agent.Sink) {
	switch msg.Type {
	case "start":
		job := h.session.StartJob(msg.Job)
		send("status", h.session.SnapshotState())
		h.log.Info().Str("job", job.JobNumber).Msg("recording started")
	case "stop":
		h.session.StopRecording()
		send("status", h.session.SnapshotState())
	case "finish":
		snap := h.session.Complete()
		send("status", snap)
	default:
		h.log.Warn().Str("type", msg.Type).Msg("unknown control message")
	}
}
