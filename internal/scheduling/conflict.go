package scheduling

import (
	"context"
	"time"

	"clinic-booking-server/internal/models"
)

// ConflictChecker answers whether a doctor is free at a given date and time.
// It reads the store directly and is the check performed at commit time.
type ConflictChecker struct {
	appointments AppointmentStore
	now          Clock
}

func NewConflictChecker(appointments AppointmentStore, clock Clock) *ConflictChecker {
	if clock == nil {
		clock = time.Now
	}
	return &ConflictChecker{appointments: appointments, now: clock}
}

// IsAvailable reports whether a grid slot can be booked: it must respect the
// one-day lead time and not overlap a blocking appointment other than ignoreID.
func (c *ConflictChecker) IsAvailable(ctx context.Context, doctorID string, date time.Time, at models.TimeOfDay, ignoreID string) (bool, error) {
	if at.On(date).Before(leadTimeFloor(c.now())) {
		return false, nil
	}
	return c.isFree(ctx, doctorID, date, at, SlotMinutes, ignoreID)
}

// isFree checks only overlap, for any duration.
func (c *ConflictChecker) isFree(ctx context.Context, doctorID string, date time.Time, at models.TimeOfDay, minutes int, ignoreID string) (bool, error) {
	day := models.DateOnly(date)
	existing, err := c.appointments.FindByDoctorAndDateRange(ctx, doctorID, day, day)
	if err != nil {
		return false, persistenceError("check slot availability", err)
	}
	return buildOccupancy(existing, ignoreID).isFree(day, at, minutes), nil
}
