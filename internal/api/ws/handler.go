package ws

import (
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/host"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/monitoring"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// SessionHost is the part of the host a stream needs.
type SessionHost interface {
	Get(sessionID string) (*host.SessionInfo, error)
	Write(sessionID string, data []byte) error
	Resize(sessionID string, cols, rows uint16) error
	Subscribe(sessionID string) (<-chan []byte, func(), error)
}

// Message is a JSON control frame in either direction.
type Message struct {
	Type      string `json:"type"`
	SessionID string `json:"session_id,omitempty"`
	Data      string `json:"data,omitempty"`
	Cols      uint16 `json:"cols,omitempty"`
	Rows      uint16 `json:"rows,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// Handler streams live sessions over WebSocket.
type Handler struct {
	host     SessionHost
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a handler. allowedOrigins limits browser origins;
// empty allows any.
func NewHandler(sessionHost SessionHost, metrics *monitoring.Metrics, logger *zap.Logger, allowedOrigins ...string) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		host:    sessionHost,
		metrics: metrics,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 16384,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		if origin == "*" {
			return func(*http.Request) bool { return true }
		}
		set[origin] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Register mounts the stream route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/sessions/:id/stream", h.HandleConnection)
}

// HandleConnection upgrades the request and streams one session.
//
// Output is sent as binary frames of raw PTY bytes. The client sends JSON
// text frames of type input, resize or ping; a binary frame from the client
// is raw input. When the session ends the server sends an exit frame and
// closes the connection.
func (h *Handler) HandleConnection(c *gin.Context) {
	sessionID := c.Param("id")
	if _, err := h.host.Get(sessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	output, cancel, err := h.host.Subscribe(sessionID)
	if err != nil {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"))
		conn.Close()
		return
	}

	if h.metrics != nil {
		h.metrics.IncWSConnections()
		defer h.metrics.DecWSConnections()
	}
	logger := h.logger.With(zap.String("session_id", sessionID))
	logger.Debug("Stream connected")

	s := &stream{
		conn:      conn,
		sessionID: sessionID,
		host:      h.host,
		metrics:   h.metrics,
		logger:    logger,
		done:      make(chan struct{}),
	}
	defer conn.Close()
	defer cancel()

	s.send(Message{Type: "system", SessionID: sessionID, Message: "connected", Timestamp: time.Now().Unix()})

	go s.readLoop()
	s.writeLoop(output)
	logger.Debug("Stream disconnected")
}

// stream is one connection. gorilla allows one concurrent writer, so every
// write goes through writeMu.
type stream struct {
	conn      *websocket.Conn
	sessionID string
	host      SessionHost
	metrics   *monitoring.Metrics
	logger    *zap.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func (s *stream) stop() {
	s.closeOnce.Do(func() { close(s.done) })
}

func (s *stream) readLoop() {
	defer s.stop()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		kind, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}

		if kind == websocket.BinaryMessage {
			s.record("in", "input")
			s.input(data)
			continue
		}

		var msg Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			s.sendError("invalid message")
			continue
		}
		s.record("in", msg.Type)

		switch msg.Type {
		case "input":
			s.input([]byte(msg.Data))
		case "resize":
			if err := s.host.Resize(s.sessionID, msg.Cols, msg.Rows); err != nil {
				s.sendError(err.Error())
			}
		case "ping":
			s.send(Message{Type: "pong", Timestamp: time.Now().Unix()})
		default:
			s.sendError("unknown message type")
		}
	}
}

func (s *stream) input(data []byte) {
	if err := s.host.Write(s.sessionID, data); err != nil {
		s.sendError(err.Error())
	}
}

func (s *stream) writeLoop(output <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case chunk, ok := <-output:
			if !ok {
				s.finish()
				return
			}
			if err := s.write(websocket.BinaryMessage, chunk); err != nil {
				return
			}
			s.record("out", "output")
		case <-ticker.C:
			if err := s.writeControl(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// finish tells the client why output stopped: the session ended, or this
// connection fell too far behind and was dropped by the host.
func (s *stream) finish() {
	if _, err := s.host.Get(s.sessionID); err == nil {
		s.sendError("output stream fell behind")
		_ = s.writeControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "lagging"))
		return
	}
	s.send(Message{Type: "exit", SessionID: s.sessionID, Timestamp: time.Now().Unix()})
	_ = s.writeControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
}

func (s *stream) write(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(kind, data)
}

func (s *stream) writeControl(kind int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteControl(kind, data, time.Now().Add(writeWait))
}

func (s *stream) send(msg Message) {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.write(websocket.TextMessage, data); err != nil {
		s.logger.Debug("WebSocket write failed", zap.Error(err))
		return
	}
	s.record("out", msg.Type)
}

func (s *stream) sendError(msg string) {
	s.send(Message{Type: "error", Message: msg, Timestamp: time.Now().Unix()})
}

func (s *stream) record(direction, msgType string) {
	if s.metrics != nil {
		s.metrics.RecordWSMessage(direction, msgType)
	}
}
