package scheduling

import (
	"context"
	"time"

	"clinic-booking-server/internal/models"
)

// AppointmentStore is the durable appointment storage. Find* methods return
// (nil, nil) when nothing matches.
type AppointmentStore interface {
	FindByDoctorAndDateRange(ctx context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error)
	FindByID(ctx context.Context, id string) (*models.Appointment, error)
	FindByPatientAndID(ctx context.Context, patientID, id string) (*models.Appointment, error)
	FindByPatient(ctx context.Context, patientID string) ([]models.Appointment, error)
	FindByDoctorFrom(ctx context.Context, doctorID string, from time.Time) ([]models.Appointment, error)
	// Insert and Update return ErrSlotTaken when the storage uniqueness guard fires.
	Insert(ctx context.Context, a *models.Appointment) (string, error)
	Update(ctx context.Context, a *models.Appointment) error
	// CompleteWithFollowUp updates completed and inserts followUp (may be nil) atomically.
	CompleteWithFollowUp(ctx context.Context, completed, followUp *models.Appointment) error
}

// SpecialtySummary is a specialty with its number of active doctors.
type SpecialtySummary struct {
	models.Specialty
	ActiveDoctors int `json:"activeDoctors"`
}

// ProfileDirectory resolves doctor, patient and specialty identities.
type ProfileDirectory interface {
	GetActiveDoctor(ctx context.Context, doctorID string) (*models.Doctor, error)
	// GetDoctorsBySpecialty returns active doctors ordered by name.
	GetDoctorsBySpecialty(ctx context.Context, specialtyID string) ([]models.Doctor, error)
	GetPatient(ctx context.Context, patientID string) (*models.Patient, error)
	GetSpecialty(ctx context.Context, specialtyID string) (*models.Specialty, error)
	// ListSpecialties returns active specialties matching search (empty matches all), ordered by name.
	ListSpecialties(ctx context.Context, search string) ([]SpecialtySummary, error)
}

// NotificationGateway receives appointment events. Errors are logged by the
// caller and never undo the state change they describe.
type NotificationGateway interface {
	NotifyCreated(ctx context.Context, doctorID, patientID string, when time.Time, reason string) error
	NotifyCancelled(ctx context.Context, doctorID, patientID string, when time.Time, reason string) error
	NotifyRescheduled(ctx context.Context, doctorID, patientID string, oldWhen, newWhen time.Time, reason string) error
	NotifyCompleted(ctx context.Context, doctorID, patientID string, when time.Time) error
}

// SlotLocker serializes the check-then-write sequence for one doctor and day.
type SlotLocker interface {
	// Lock blocks until the key is acquired, ctx ends, or the locker gives up
	// with ErrSlotBusy. The returned func releases the lock.
	Lock(ctx context.Context, key string) (func(), error)
}

// Clock returns the current facility-local time.
type Clock func() time.Time

// Actor is the identity on whose behalf an operation runs.
type Actor struct {
	ID   string
	Role models.Role
}

func (a Actor) isStaff() bool {
	return a.Role == models.RoleDoctor || a.Role == models.RoleAdmin
}
