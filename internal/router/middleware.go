package router

import (
	"errors"
	"hearcheck-go/internal/handlers"
	"hearcheck-go/internal/screening"
	"hearcheck-go/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ParticipantLoader checks the participant id held in the cookie session.
// Ids of participants that no longer exist are dropped so the handlers fall
// back to asking for an explicit user_id.
func ParticipantLoader(log *zap.Logger, service *services.ScreeningService) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := session.Get(handlers.SessionUserKey).(uint)
		if !ok {
			c.Next()
			return
		}

		_, err := service.UserInfo(c.Request.Context(), userID)
		switch {
		case errors.Is(err, screening.ErrUserNotFound):
			log.Debug("Dropping session of unknown participant", zap.Uint("user_id", userID))
			session.Delete(handlers.SessionUserKey)
			if err := session.Save(); err != nil {
				log.Warn("Failed to save session", zap.Error(err))
			}
		case err == nil:
			c.Set(handlers.SessionUserKey, userID)
		}
		// Storage errors are left to the handler, which reports them.
		c.Next()
	}
}
