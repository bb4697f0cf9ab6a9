package handlers

import (
	"hearcheck-go/internal/services"
	"net/http"
	"strings"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler struct {
	log     *zap.Logger
	service *services.ScreeningService
}

func NewUserHandler(log *zap.Logger, service *services.ScreeningService) *UserHandler {
	return &UserHandler{log: log, service: service}
}

type registerRequest struct {
	Name     string `json:"name" binding:"required,personname"`
	Surname  string `json:"surname" binding:"required,personname"`
	AgeGroup string `json:"age_group" binding:"label"`
	Gender   string `json:"gender" binding:"label"`
}

// Register creates a participant and remembers it in the cookie session.
func (h *UserHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), services.Participant{
		Name:     strings.TrimSpace(req.Name),
		Surname:  strings.TrimSpace(req.Surname),
		AgeGroup: req.AgeGroup,
		Gender:   req.Gender,
	})
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	session := sessions.Default(c)
	session.Set(SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		// The id is still returned, the client can pass it explicitly.
		h.log.Warn("Failed to save session", zap.Uint("user_id", user.ID), zap.Error(err))
	}
	c.JSON(http.StatusOK, gin.H{"user_id": user.ID})
}

// GetUserInfo returns the participant's name.
func (h *UserHandler) GetUserInfo(c *gin.Context) {
	userID, err := queryUserID(c)
	if err != nil {
		badRequest(c, err)
		return
	}
	user, err := h.service.UserInfo(c.Request.Context(), userID)
	if err != nil {
		respondError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"name": user.Name, "surname": user.Surname})
}
