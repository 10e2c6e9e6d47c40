package scheduling

import (
	"time"

	"clinic-booking-server/internal/models"
)

const (
	// SlotMinutes is the grid granularity and the length of a booked appointment.
	SlotMinutes = 30
	// HorizonDays is the number of days, today included, covered by an agenda.
	HorizonDays = 14

	slotsPerDay = 18
	firstSlot   = 9 * 60
)

var workingSlots = func() []models.TimeOfDay {
	slots := make([]models.TimeOfDay, slotsPerDay)
	for i := range slots {
		slots[i] = models.TimeOfDay(firstSlot + i*SlotMinutes)
	}
	return slots
}()

// WorkingSlots returns the ordered slot starts of a working day, 09:00 through 17:30.
// The grid is the same for every doctor and date.
func WorkingSlots() []models.TimeOfDay {
	out := make([]models.TimeOfDay, len(workingSlots))
	copy(out, workingSlots)
	return out
}

// IsGridAligned reports whether t is one of the working slots.
func IsGridAligned(t models.TimeOfDay) bool {
	m := t.Minutes()
	return m >= firstSlot && m <= workingSlots[len(workingSlots)-1].Minutes() && (m-firstSlot)%SlotMinutes == 0
}

// WorkingWindow is [09:00, 18:00): the first slot start to the last slot end.
func WorkingWindow() (open, close models.TimeOfDay) {
	return workingSlots[0], workingSlots[len(workingSlots)-1].Add(SlotMinutes)
}

// leadTimeFloor is the earliest bookable instant: midnight of the day after now.
func leadTimeFloor(now time.Time) time.Time {
	return models.DateOnly(now).AddDate(0, 0, 1)
}

// interval is a half-open [start, end) range in minutes since midnight.
type interval struct {
	start, end int
}

func intervalOf(at models.TimeOfDay, minutes int) interval {
	return interval{start: at.Minutes(), end: at.Minutes() + minutes}
}

func (i interval) overlaps(o interval) bool {
	return i.start < o.end && o.start < i.end
}

// occupancy maps a date key to the intervals held by blocking appointments.
type occupancy map[string][]interval

func buildOccupancy(appointments []models.Appointment, ignoreID string) occupancy {
	occ := make(occupancy)
	for i := range appointments {
		a := &appointments[i]
		if ignoreID != "" && a.ID == ignoreID {
			continue
		}
		status, ok := models.ParseAppointmentStatus(string(a.Status))
		if !ok || !status.IsBlocking() {
			continue
		}
		key := models.DateKey(a.Date)
		occ[key] = append(occ[key], intervalOf(a.Time, a.Duration()))
	}
	return occ
}

func (o occupancy) isFree(date time.Time, at models.TimeOfDay, minutes int) bool {
	want := intervalOf(at, minutes)
	for _, held := range o[models.DateKey(date)] {
		if held.overlaps(want) {
			return false
		}
	}
	return true
}
