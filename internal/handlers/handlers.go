// Package handlers implements the JSON endpoints of the screening server.
package handlers

import (
	"errors"
	"fmt"
	"hearcheck-go/internal/screening"
	"hearcheck-go/internal/utils"
	"net/http"
	"strconv"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// SessionUserKey is the cookie session key holding the participant id.
const SessionUserKey = "userID"

var errUserIDRequired = errors.New("user ID required")

// RegisterValidators adds the custom binding tags used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return errors.New("unexpected binding validator engine")
	}
	if err := v.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
		return utils.IsValidName(fl.Field().String())
	}); err != nil {
		return err
	}
	return v.RegisterValidation("label", func(fl validator.FieldLevel) bool {
		return utils.IsValidLabel(fl.Field().String())
	})
}

// resolveUserID picks the explicit id when one is given and falls back to
// the participant stored in the cookie session.
func resolveUserID(c *gin.Context, explicit *uint) (uint, error) {
	if explicit != nil {
		return *explicit, nil
	}
	if id, ok := sessions.Default(c).Get(SessionUserKey).(uint); ok {
		return id, nil
	}
	return 0, errUserIDRequired
}

// queryUserID reads ?user_id= and falls back to the cookie session.
func queryUserID(c *gin.Context) (uint, error) {
	raw, ok := c.GetQuery("user_id")
	if !ok || raw == "" {
		return resolveUserID(c, nil)
	}
	id, err := strconv.ParseUint(raw, 10, 0)
	if err != nil {
		return 0, fmt.Errorf("invalid user_id %q", raw)
	}
	u := uint(id)
	return resolveUserID(c, &u)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, screening.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, screening.ErrInvalidState), errors.Is(err, screening.ErrConflict):
		return http.StatusConflict
	default:
		// Malformed state and storage failures.
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, log *zap.Logger, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		// Internal details stay in the log.
		if errors.Is(err, screening.ErrMalformedState) {
			c.JSON(status, gin.H{"error": "Invalid test state data"})
			return
		}
		c.JSON(status, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
