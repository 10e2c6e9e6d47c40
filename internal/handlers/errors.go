package handlers

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-server/internal/middleware"
	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/notify"
	"clinic-booking-server/internal/scheduling"
	"clinic-booking-server/internal/utils"
)

const dateLayout = "2006-01-02"

// respondError maps a scheduling or inbox error onto the response envelope.
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	var se *scheduling.Error
	switch {
	case errors.As(err, &se):
		switch se.Kind {
		case scheduling.KindValidation:
			utils.BadRequest(c, se.Message)
			return
		case scheduling.KindNotFound:
			utils.NotFound(c, se.Message)
			return
		case scheduling.KindConflict:
			utils.Conflict(c, se.Message, se.Reselect)
			return
		}
	case errors.Is(err, notify.ErrNotFound):
		utils.NotFound(c, "Notification not found")
		return
	case errors.Is(err, notify.ErrUnsupportedRecipient):
		utils.Forbidden(c, "This account has no notification inbox")
		return
	}

	logger.Error("request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	_ = c.Error(err)
	utils.InternalServerError(c, "Something went wrong, please try again later")
}

// requireActor returns the authenticated identity or answers 401.
func requireActor(c *gin.Context) (scheduling.Actor, bool) {
	actor, ok := middleware.ActorFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
	}
	return actor, ok
}

// parseSlot reads a validated date and time pair.
func parseSlot(date, clock string) (time.Time, models.TimeOfDay, error) {
	d, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, 0, err
	}
	t, err := models.ParseTimeOfDay(clock)
	if err != nil {
		return time.Time{}, 0, err
	}
	return d, t, nil
}

// parseSelection returns nil unless both date and time are present.
func parseSelection(date, clock string) (*scheduling.Selection, error) {
	if date == "" || clock == "" {
		return nil, nil
	}
	d, t, err := parseSlot(date, clock)
	if err != nil {
		return nil, err
	}
	return &scheduling.Selection{Date: d, Time: t}, nil
}
