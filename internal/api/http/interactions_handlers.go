package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/vibeterm/internal/store"
)

const (
	defaultWindowHours    = 24
	maxWindowHours        = 24 * 365
	defaultMinOccurrences = 2
)

// InteractionRequest is the body of POST /interactions.
type InteractionRequest struct {
	SessionID string `json:"session_id" binding:"required,max=128"`
	Type      string `json:"type" binding:"required,max=64"`
	Context   string `json:"context" binding:"max=256"`
	Target    string `json:"target" binding:"max=1024"`
	Outcome   string `json:"outcome" binding:"required,max=32"`
	Metadata  string `json:"metadata" binding:"max=65536"`
}

// TrackInteraction records one UI interaction.
func (h *Handlers) TrackInteraction(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request: "+err.Error())
		return
	}

	recID, err := h.history.TrackInteraction(c.Request.Context(), store.Interaction{
		SessionID: req.SessionID,
		Type:      req.Type,
		Context:   req.Context,
		Target:    req.Target,
		Outcome:   req.Outcome,
		Metadata:  req.Metadata,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"id":      recID,
	})
}

// ListInteractions returns the most recent interactions.
func (h *Handlers) ListInteractions(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	interactions, err := h.history.Interactions(c.Request.Context(), limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondInteractions(c, interactions)
}

// InteractionPatterns counts interaction types over ?hours= that occur at
// least ?min= times.
func (h *Handlers) InteractionPatterns(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	window, ok := windowParam(c)
	if !ok {
		return
	}
	minOccurrences, ok := positiveParam(c, "min", defaultMinOccurrences)
	if !ok {
		return
	}

	patterns, err := h.history.CommonPatterns(c.Request.Context(), window, minOccurrences)
	if err != nil {
		h.fail(c, err)
		return
	}
	if patterns == nil {
		patterns = []store.Pattern{}
	}
	c.JSON(http.StatusOK, gin.H{
		"patterns": patterns,
		"count":    len(patterns),
		"hours":    int(window / time.Hour),
	})
}

// FrictionPoints returns interactions over ?hours= that went wrong.
func (h *Handlers) FrictionPoints(c *gin.Context) {
	if !h.requireHistory(c) {
		return
	}
	window, ok := windowParam(c)
	if !ok {
		return
	}
	interactions, err := h.history.FrictionPoints(c.Request.Context(), window)
	if err != nil {
		h.fail(c, err)
		return
	}
	respondInteractions(c, interactions)
}

func respondInteractions(c *gin.Context, interactions []store.Interaction) {
	if interactions == nil {
		interactions = []store.Interaction{}
	}
	c.JSON(http.StatusOK, gin.H{
		"interactions": interactions,
		"count":        len(interactions),
	})
}

func windowParam(c *gin.Context) (time.Duration, bool) {
	hours, ok := positiveParam(c, "hours", defaultWindowHours)
	if !ok {
		return 0, false
	}
	if hours > maxWindowHours {
		hours = maxWindowHours
	}
	return time.Duration(hours) * time.Hour, true
}

func positiveParam(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		badRequest(c, name+" must be a positive integer")
		return 0, false
	}
	return n, true
}
