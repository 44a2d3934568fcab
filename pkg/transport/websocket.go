package transport

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/kadirpekel/oraculum/pkg/logger"
	"github.com/kadirpekel/oraculum/pkg/orchestrator"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// clientFrame is one client-to-server frame: {type, question, video_ids,
// max_iterations}. Fields unused by a given type are ignored.
type clientFrame struct {
	Type          string   `json:"type"`
	Question      string   `json:"question"`
	VideoIDs      []string `json:"video_ids"`
	MaxIterations int      `json:"max_iterations"`
}

// wsConn serializes writes to a single websocket connection so Ask,
// Compare, and Discover can all be driven from the same connection and
// (in Compare's case) emit from two goroutines at once without
// interleaving partial JSON frames on the wire.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) emit(e orchestrator.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.WriteJSON(e); err != nil {
		logger.GetLogger().Warn("ws: write failed", slog.String("err", err.Error()))
	}
}

// handleWebSocket upgrades the connection and loops reading client
// frames, dispatching each to the matching orchestrator call and
// streaming its events back until the client disconnects.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	if s.obs != nil && s.obs.MetricsEnabled() {
		s.obs.Metrics().IncWSConnections()
		defer s.obs.Metrics().DecWSConnections()
	}

	ws := &wsConn{conn: conn}

	for {
		var frame clientFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		s.dispatchFrame(r, ws, frame)
	}
}

func (s *Server) dispatchFrame(r *http.Request, ws *wsConn, frame clientFrame) {
	ctx := r.Context()

	switch frame.Type {
	case "ask":
		spanCtx, end := s.startSpan(ctx, "ask", frame.Question, frame.MaxIterations)
		defer end()
		_, _, _ = s.orch.Ask(spanCtx, orchestrator.AskRequest{
			Question:      frame.Question,
			VideoIDs:      frame.VideoIDs,
			MaxIterations: frame.MaxIterations,
		}, ws.emit)

	case "compare":
		spanCtx, end := s.startSpan(ctx, "compare", frame.Question, frame.MaxIterations)
		defer end()
		_, _ = s.orch.Compare(spanCtx, orchestrator.AskRequest{
			Question:      frame.Question,
			VideoIDs:      frame.VideoIDs,
			MaxIterations: frame.MaxIterations,
		}, ws.emit)

	case "discover":
		spanCtx, end := s.startSpan(ctx, "discover", "", frame.MaxIterations)
		defer end()
		_, _ = s.orch.Discover(spanCtx, orchestrator.DiscoverRequest{
			MaxIterations: frame.MaxIterations,
		}, ws.emit)

	case "ping":
		ws.emit(orchestrator.Event{Type: orchestrator.EventPong, Payload: map[string]any{}})

	default:
		ws.emit(orchestrator.Event{Type: orchestrator.EventError, Payload: map[string]any{
			"message": "unknown frame type: " + frame.Type,
		}})
	}
}
