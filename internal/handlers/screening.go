package handlers

import (
	"errors"
	"hearcheck-go/internal/screening"
	"hearcheck-go/internal/services"
	"hearcheck-go/internal/tone"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ScreeningHandler struct {
	log     *zap.Logger
	service *services.ScreeningService
}

func NewScreeningHandler(log *zap.Logger, service *services.ScreeningService) *ScreeningHandler {
	return &ScreeningHandler{log: log, service: service}
}

// descriptor is a presentation plus the amplitude to play it at.
type descriptor struct {
	*screening.Presentation
	Volume float64 `json:"volume"`
}

func newDescriptor(p *screening.Presentation) descriptor {
	return descriptor{Presentation: p, Volume: tone.AmplitudeForLevel(p.Level)}
}

type userRequest struct {
	UserID *uint `json:"user_id"`
}

type responseRequest struct {
	UserID *uint `json:"user_id"`
	Heard  *bool `json:"heard" binding:"required"`
}

// Start begins a new run and returns the first presentation.
func (h *ScreeningHandler) Start(c *gin.Context) {
	var req userRequest
	// An empty body is fine when the cookie session knows the user.
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, err)
		return
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		badRequest(c, err)
		return
	}

	pres, err := h.service.Start(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, newDescriptor(pres))
}

// Next returns the pending presentation or, once finished, the result.
func (h *ScreeningHandler) Next(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	pres, res, err := h.service.Next(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	if res != nil {
		c.JSON(http.StatusOK, res)
		return
	}
	c.JSON(http.StatusOK, newDescriptor(pres))
}

// Submit records whether the last tone was heard.
func (h *ScreeningHandler) Submit(c *gin.Context) {
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	userID, err := resolveUserID(c, req.UserID)
	if err != nil {
		badRequest(c, err)
		return
	}

	ack, err := h.service.Submit(c.Request.Context(), userID, *req.Heard)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"item_completed": ack.ItemCompleted,
		"test_completed": ack.TestCompleted,
	})
}

// Summary returns the result of the completed run.
func (h *ScreeningHandler) Summary(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.service.Summary(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
