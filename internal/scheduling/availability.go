package scheduling

import (
	"context"
	"time"

	"clinic-booking-server/internal/metrics"
	"clinic-booking-server/internal/models"
)

// Selection is a concrete (date, time) pick.
type Selection struct {
	Date time.Time        `json:"date"`
	Time models.TimeOfDay `json:"time"`
}

func (s *Selection) matches(date time.Time, at models.TimeOfDay) bool {
	return s != nil && models.DateKey(s.Date) == models.DateKey(date) && s.Time == at
}

// SlotState is one grid position of one day.
type SlotState struct {
	Time     models.TimeOfDay `json:"time"`
	Open     bool             `json:"open"`
	Selected bool             `json:"selected"`
}

// DayAgenda is the free/busy state of one horizon day.
type DayAgenda struct {
	Date        time.Time   `json:"date"`
	Label       string      `json:"label"`
	IsToday     bool        `json:"isToday"`
	HasOpenSlot bool        `json:"hasOpenSlot"`
	Slots       []SlotState `json:"slots"`
}

// Agenda is the horizon for one doctor.
type Agenda struct {
	DoctorID string      `json:"doctorId"`
	Days     []DayAgenda `json:"days"`
	// Suggested is the first open slot in chronological order, nil when none.
	Suggested *Selection `json:"suggested,omitempty"`
	// Selected is the caller's pick when it is open, otherwise Suggested.
	Selected *Selection `json:"selected,omitempty"`
}

// HasAvailability reports whether any day has an open slot.
func (a *Agenda) HasAvailability() bool {
	return a.Suggested != nil
}

// IsOpen reports whether the agenda shows (date, at) as open.
func (a *Agenda) IsOpen(date time.Time, at models.TimeOfDay) bool {
	key := models.DateKey(date)
	for _, day := range a.Days {
		if models.DateKey(day.Date) != key {
			continue
		}
		for _, slot := range day.Slots {
			if slot.Time == at {
				return slot.Open
			}
		}
	}
	return false
}

// AvailabilityQuery selects the doctor and optional pre-selection for an agenda.
type AvailabilityQuery struct {
	DoctorID string
	Selected *Selection
	// IgnoreAppointmentID excludes the appointment being rescheduled from occupancy.
	IgnoreAppointmentID string
}

// AvailabilityEngine merges the slot grid with blocking appointments over the horizon.
// It is recomputed on every call.
type AvailabilityEngine struct {
	appointments AppointmentStore
	now          Clock
	metrics      *metrics.BookingMetrics
}

func NewAvailabilityEngine(appointments AppointmentStore, clock Clock, m *metrics.BookingMetrics) *AvailabilityEngine {
	if clock == nil {
		clock = time.Now
	}
	return &AvailabilityEngine{appointments: appointments, now: clock, metrics: m}
}

// Agenda computes the horizon today .. today+13 for q.DoctorID.
func (e *AvailabilityEngine) Agenda(ctx context.Context, q AvailabilityQuery) (*Agenda, error) {
	started := time.Now()
	defer func() { e.metrics.ObserveAvailability(time.Since(started).Seconds()) }()

	now := e.now()
	today := models.DateOnly(now)
	last := today.AddDate(0, 0, HorizonDays-1)

	existing, err := e.appointments.FindByDoctorAndDateRange(ctx, q.DoctorID, today, last)
	if err != nil {
		return nil, persistenceError("load doctor appointments", err)
	}
	occ := buildOccupancy(existing, q.IgnoreAppointmentID)
	floor := leadTimeFloor(now)

	agenda := &Agenda{DoctorID: q.DoctorID, Days: make([]DayAgenda, 0, HorizonDays)}
	for offset := 0; offset < HorizonDays; offset++ {
		date := today.AddDate(0, 0, offset)
		day := DayAgenda{
			Date:    date,
			Label:   date.Format("Mon 2 Jan"),
			IsToday: offset == 0,
			Slots:   make([]SlotState, 0, slotsPerDay),
		}
		for _, at := range workingSlots {
			open := !at.On(date).Before(floor) && occ.isFree(date, at, SlotMinutes)
			if open && agenda.Suggested == nil {
				agenda.Suggested = &Selection{Date: date, Time: at}
			}
			day.HasOpenSlot = day.HasOpenSlot || open
			day.Slots = append(day.Slots, SlotState{Time: at, Open: open})
		}
		agenda.Days = append(agenda.Days, day)
	}

	agenda.Selected = agenda.Suggested
	if q.Selected != nil && agenda.IsOpen(q.Selected.Date, q.Selected.Time) {
		agenda.Selected = q.Selected
	}
	if agenda.Selected != nil {
		agenda.markSelected(*agenda.Selected)
	}
	return agenda, nil
}

func (a *Agenda) markSelected(sel Selection) {
	for d := range a.Days {
		for s := range a.Days[d].Slots {
			a.Days[d].Slots[s].Selected = sel.matches(a.Days[d].Date, a.Days[d].Slots[s].Time)
		}
	}
}
