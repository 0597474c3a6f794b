package http

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/vibeterm/internal/host"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vibeterm/internal/store"
	"github.com/GriffinCanCode/vibeterm/internal/terminal"
)

const (
	// maxInputBytes bounds one input request.
	maxInputBytes = 1 << 20

	defaultHistoryLimit = 50
	maxHistoryLimit     = 500

	maxEnvVars = 256
)

// envKeyPattern matches portable environment variable names.
var envKeyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SessionHost is the live-session surface the handlers drive.
type SessionHost interface {
	Start(opts host.StartOptions) (*host.SessionInfo, error)
	Write(sessionID string, data []byte) error
	Output(sessionID string) ([]byte, error)
	Resize(sessionID string, cols, rows uint16) error
	End(sessionID string) error
	Get(sessionID string) (*host.SessionInfo, error)
	List() []host.SessionInfo
}

// History is the session store as seen by the API: recorded sessions and
// UI interactions.
type History interface {
	SessionsWithCommands(ctx context.Context, limit int) ([]store.SessionSummary, error)
	Session(ctx context.Context, sessionID string) (*store.Session, error)
	Events(ctx context.Context, sessionID string) ([]store.Event, error)
	RecentCommands(ctx context.Context, sessionID string, limit int) ([]store.Command, error)
	Export(ctx context.Context, sessionID string, w io.Writer, format store.Format) error

	TrackInteraction(ctx context.Context, in store.Interaction) (string, error)
	Interactions(ctx context.Context, limit int) ([]store.Interaction, error)
	CommonPatterns(ctx context.Context, window time.Duration, minOccurrences int) ([]store.Pattern, error)
	FrictionPoints(ctx context.Context, window time.Duration) ([]store.Interaction, error)
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	host    SessionHost
	history History
	metrics *monitoring.Metrics
	logger  *zap.Logger
}

// NewHandlers creates the handlers. history may be nil when persistence is
// disabled; the history routes then answer 503.
func NewHandlers(sessionHost SessionHost, history History, metrics *monitoring.Metrics, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		host:    sessionHost,
		history: history,
		metrics: metrics,
		logger:  logger,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Live sessions
	r.POST("/sessions", h.StartSession)
	r.GET("/sessions", h.ListSessions)
	r.GET("/sessions/:id", h.GetSession)
	r.DELETE("/sessions/:id", h.EndSession)
	r.POST("/sessions/:id/input", h.WriteInput)
	r.GET("/sessions/:id/output", h.ReadOutput)
	r.POST("/sessions/:id/resize", h.Resize)

	// Recorded history
	r.GET("/history/sessions", h.ListHistory)
	r.GET("/history/sessions/:id", h.GetHistory)
	r.GET("/history/sessions/:id/events", h.ListEvents)
	r.GET("/history/sessions/:id/commands", h.ListCommands)
	r.GET("/history/sessions/:id/export", h.ExportSession)

	// UI interactions
	r.POST("/interactions", h.TrackInteraction)
	r.GET("/interactions", h.ListInteractions)
	r.GET("/interactions/patterns", h.InteractionPatterns)
	r.GET("/interactions/friction", h.FrictionPoints)

	// UI logs
	r.POST("/logs", h.StreamLogs)
}

// Root describes the service.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "vibeterm",
		"history": h.history != nil,
	})
}

// Health reports liveness with a metrics summary.
func (h *Handlers) Health(c *gin.Context) {
	resp := gin.H{
		"status":          "healthy",
		"active_sessions": len(h.host.List()),
		"history":         h.history != nil,
	}
	if h.metrics != nil {
		resp["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, resp)
}

// StartRequest is the body of POST /sessions. Every field is optional.
type StartRequest struct {
	Shell      string            `json:"shell"`
	WorkingDir string            `json:"working_dir"`
	Cols       uint16            `json:"cols" binding:"omitempty,max=1000"`
	Rows       uint16            `json:"rows" binding:"omitempty,max=1000"`
	Env        map[string]string `json:"env"`
}

// StartSession spawns a shell.
func (h *Handlers) StartSession(c *gin.Context) {
	var req StartRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request: "+err.Error())
			return
		}
	}
	if err := validateEnv(req.Env); err != nil {
		badRequest(c, err.Error())
		return
	}

	info, err := h.host.Start(host.StartOptions{
		Shell:      req.Shell,
		WorkingDir: req.WorkingDir,
		Cols:       req.Cols,
		Rows:       req.Rows,
		Env:        req.Env,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"session": info,
	})
}

// ListSessions returns the live sessions.
func (h *Handlers) ListSessions(c *gin.Context) {
	sessions := h.host.List()
	if sessions == nil {
		sessions = []host.SessionInfo{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSession returns one live session.
func (h *Handlers) GetSession(c *gin.Context) {
	info, err := h.host.Get(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// EndSession closes a live session.
func (h *Handlers) EndSession(c *gin.Context) {
	if err := h.host.End(c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Session ended",
	})
}

// InputRequest is the body of POST /sessions/:id/input. Base64 carries
// input that is not valid UTF-8.
type InputRequest struct {
	Data   string `json:"data" binding:"required"`
	Base64 bool   `json:"base64"`
}

// WriteInput queues keystrokes for the shell.
func (h *Handlers) WriteInput(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxInputBytes)

	var req InputRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	data := []byte(req.Data)
	if req.Base64 {
		decoded, err := base64.StdEncoding.DecodeString(req.Data)
		if err != nil {
			badRequest(c, "Invalid base64 data")
			return
		}
		data = decoded
	}

	if err := h.host.Write(c.Param("id"), data); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"bytes":   len(data),
	})
}

// ReadOutput returns the output produced since the previous read. With
// ?encoding=base64, or when the bytes are not valid UTF-8, data is base64.
func (h *Handlers) ReadOutput(c *gin.Context) {
	out, err := h.host.Output(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}

	encoding := "utf-8"
	data := string(out)
	if c.Query("encoding") == "base64" || !utf8.Valid(out) {
		encoding = "base64"
		data = base64.StdEncoding.EncodeToString(out)
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"encoding": encoding,
		"bytes":    len(out),
	})
}

// ResizeRequest is the body of POST /sessions/:id/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols" binding:"required,min=1,max=1000"`
	Rows uint16 `json:"rows" binding:"required,min=1,max=1000"`
}

// Resize changes a session's terminal size.
func (h *Handlers) Resize(c *gin.Context) {
	var req ResizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}
	if err := h.host.Resize(c.Param("id"), req.Cols, req.Rows); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cols":    req.Cols,
		"rows":    req.Rows,
	})
}

// ListHistory returns recorded sessions with their commands, newest first.
func (h *Handlers) ListHistory(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	sessions, err := h.history.SessionsWithCommands(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if sessions == nil {
		sessions = []store.SessionSummary{}
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetHistory returns one recorded session.
func (h *Handlers) GetHistory(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	sess, err := h.history.Session(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListEvents returns a recorded session's event stream.
func (h *Handlers) ListEvents(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := h.history.Session(ctx, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	events, err := h.history.Events(ctx, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"count":  len(events),
	})
}

// ListCommands returns a recorded session's most recent commands.
func (h *Handlers) ListCommands(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := h.history.Session(ctx, sessionID); err != nil {
		h.fail(c, err)
		return
	}
	commands, err := h.history.RecentCommands(ctx, sessionID, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if commands == nil {
		commands = []store.Command{}
	}
	c.JSON(http.StatusOK, gin.H{
		"commands": commands,
		"count":    len(commands),
	})
}

// ExportSession streams a recorded session as a download.
func (h *Handlers) ExportSession(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	format, err := store.ParseFormat(c.Query("format"))
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	ctx := c.Request.Context()
	sessionID := c.Param("id")

	if _, err := h.history.Session(ctx, sessionID); err != nil {
		h.fail(c, err)
		return
	}

	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+sessionID+format.Extension()+`"`)
	c.Status(http.StatusOK)
	if err := h.history.Export(ctx, sessionID, c.Writer, format); err != nil {
		// Headers are gone; the truncated body is all the client gets.
		h.logger.Error("Session export failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (h *Handlers) requireHistory(c *gin.Context) bool {
	if h.history != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"success": false,
		"error":   "session history is disabled",
	})
	return false
}

// fail maps host, terminal and store errors to HTTP statuses.
func (h *Handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, host.ErrSessionNotFound), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, terminal.ErrInvalidSize), errors.Is(err, store.ErrInvalidInteraction):
		return http.StatusBadRequest
	case errors.Is(err, terminal.ErrClosed), errors.Is(err, terminal.ErrWriterStopped):
		return http.StatusConflict
	case errors.Is(err, host.ErrTooManySessions):
		return http.StatusTooManyRequests
	case errors.Is(err, host.ErrShuttingDown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func validateEnv(env map[string]string) error {
	if len(env) > maxEnvVars {
		return fmt.Errorf("too many environment variables (max %d)", maxEnvVars)
	}
	for key, value := range env {
		if !envKeyPattern.MatchString(key) {
			return fmt.Errorf("invalid environment variable name %q", key)
		}
		if strings.IndexByte(value, 0) >= 0 {
			return fmt.Errorf("environment variable %s contains a NUL byte", key)
		}
	}
	return nil
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}

func limitParam(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return defaultHistoryLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		badRequest(c, "limit must be a positive integer")
		return 0, false
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	return limit, true
}

func unixNow() int64 {
	return time.Now().Unix()
}
