package handlers

import (
	"hearcheck-go/internal/tone"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ToneHandler struct {
	log *zap.Logger
}

func NewToneHandler(log *zap.Logger) *ToneHandler {
	return &ToneHandler{log: log}
}

// Tone streams a WAV clip. Missing query parameters keep their defaults.
func (h *ToneHandler) Tone(c *gin.Context) {
	params := tone.DefaultParams()
	if err := c.ShouldBindQuery(&params); err != nil {
		c.String(http.StatusBadRequest, "Bad parameters")
		return
	}

	wav, err := tone.Generate(params)
	if err != nil {
		h.log.Debug("Rejected tone request", zap.Error(err))
		c.String(http.StatusBadRequest, "Bad parameters")
		return
	}
	h.log.Debug("Generated tone",
		zap.Int("frequency", params.Frequency),
		zap.Float64("duration", params.Duration),
		zap.Float64("volume", params.Volume),
		zap.String("channel", string(params.Channel)))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "audio/wav", wav)
}
