package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusStarted   AppointmentStatus = "STARTED"
	StatusCompleted AppointmentStatus = "COMPLETED"
	StatusCancelled AppointmentStatus = "CANCELLED"
)

// ParseAppointmentStatus normalizes case and surrounding whitespace.
func ParseAppointmentStatus(s string) (AppointmentStatus, bool) {
	status := AppointmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case StatusPending, StatusConfirmed, StatusStarted, StatusCompleted, StatusCancelled:
		return status, true
	}
	return "", false
}

// IsBlocking reports whether an appointment in this status occupies the doctor's time.
func (s AppointmentStatus) IsBlocking() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusStarted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s AppointmentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// CanTransitionTo is the lifecycle table. Rescheduling is not a status; it is
// allowed from the states that CanReschedule reports.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusConfirmed || next == StatusStarted || next == StatusCancelled
	case StatusConfirmed:
		return next == StatusStarted || next == StatusCancelled
	case StatusStarted:
		return next == StatusCompleted || next == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

// CanReschedule reports whether date, time or doctor may still be changed.
func (s AppointmentStatus) CanReschedule() bool {
	return s == StatusPending || s == StatusConfirmed
}

// Appointment represents a scheduled medical appointment
type Appointment struct {
	BaseModel
	PatientID          string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID           string            `gorm:"size:36;not null;index:idx_appointments_doctor_date,priority:1" json:"doctorId"`
	Date               time.Time         `gorm:"type:date;not null;index:idx_appointments_doctor_date,priority:2" json:"date"`
	Time               TimeOfDay         `gorm:"type:time;not null" json:"time"`
	DurationMinutes    int               `gorm:"not null;default:30" json:"durationMinutes"`
	Status             AppointmentStatus `gorm:"size:20;not null;default:'PENDING'" json:"status"`
	Reason             string            `gorm:"size:500" json:"reason"`
	Notes              string            `gorm:"size:500" json:"notes"`
	CancellationReason string            `gorm:"size:500" json:"cancellationReason,omitempty"`
	Diagnosis          string            `gorm:"size:500" json:"diagnosis,omitempty"`
	Treatment          string            `gorm:"size:500" json:"treatment,omitempty"`
	IsVirtual          bool              `gorm:"not null;default:false" json:"isVirtual"`
	IsFollowUp         bool              `gorm:"not null;default:false" json:"isFollowUp"`

	// SlotKey is non-NULL only while the status is blocking. The unique index
	// makes the database reject a second blocking row for the same start.
	SlotKey *string `gorm:"size:80;uniqueIndex" json:"-"`
}

const (
	DefaultDurationMinutes = 30
	MinDurationMinutes     = 15
	MaxDurationMinutes     = 240
)

// BeforeSave keeps SlotKey in sync with status, doctor, date and time.
func (a *Appointment) BeforeSave(tx *gorm.DB) error {
	a.SlotKey = a.BlockingSlotKey()
	return nil
}

// BlockingSlotKey returns the uniqueness key for a blocking appointment, or nil.
func (a *Appointment) BlockingSlotKey() *string {
	if !a.Status.IsBlocking() {
		return nil
	}
	key := a.DoctorID + "|" + DateKey(a.Date) + "|" + a.Time.String()
	return &key
}

// StartsAt combines Date and Time in the location of Date.
func (a *Appointment) StartsAt() time.Time {
	return a.Time.On(a.Date)
}

// EndsAt is StartsAt plus the duration.
func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt().Add(time.Duration(a.Duration()) * time.Minute)
}

// Duration falls back to the default for rows stored without one.
func (a *Appointment) Duration() int {
	if a.DurationMinutes <= 0 {
		return DefaultDurationMinutes
	}
	return a.DurationMinutes
}
