// Package store implements the scheduling ports on top of gorm and MySQL.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
)

const mysqlDuplicateEntry = 1062

// Appointments is the gorm AppointmentStore.
type Appointments struct {
	db *gorm.DB
}

func NewAppointments(db *gorm.DB) *Appointments {
	return &Appointments{db: db}
}

func (s *Appointments) FindByDoctorAndDateRange(ctx context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND `date` BETWEEN ? AND ?", doctorID, models.DateKey(from), models.DateKey(to)).
		Order("`date` asc, `time` asc").
		Find(&out).Error
	return out, err
}

func (s *Appointments) FindByID(ctx context.Context, id string) (*models.Appointment, error) {
	return s.first(s.db.WithContext(ctx).Where("id = ?", id))
}

func (s *Appointments) FindByPatientAndID(ctx context.Context, patientID, id string) (*models.Appointment, error) {
	return s.first(s.db.WithContext(ctx).Where("id = ? AND patient_id = ?", id, patientID))
}

func (s *Appointments) FindByPatient(ctx context.Context, patientID string) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("`date` asc, `time` asc").
		Find(&out).Error
	return out, err
}

func (s *Appointments) FindByDoctorFrom(ctx context.Context, doctorID string, from time.Time) ([]models.Appointment, error) {
	var out []models.Appointment
	err := s.db.WithContext(ctx).
		Where("doctor_id = ? AND `date` >= ?", doctorID, models.DateKey(from)).
		Order("`date` asc, `time` asc").
		Find(&out).Error
	return out, err
}

// Insert creates a, assigning its ID. The BeforeSave hook fills slot_key.
func (s *Appointments) Insert(ctx context.Context, a *models.Appointment) (string, error) {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return "", translate(err)
	}
	return a.ID, nil
}

func (s *Appointments) Update(ctx context.Context, a *models.Appointment) error {
	return update(s.db.WithContext(ctx), a)
}

// CompleteWithFollowUp writes the completed appointment and the optional
// follow-up in one transaction.
func (s *Appointments) CompleteWithFollowUp(ctx context.Context, completed, followUp *models.Appointment) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := update(tx, completed); err != nil {
			return err
		}
		if followUp == nil {
			return nil
		}
		if err := tx.Create(followUp).Error; err != nil {
			return translate(err)
		}
		return nil
	})
}

func (s *Appointments) first(q *gorm.DB) (*models.Appointment, error) {
	var a models.Appointment
	if err := q.First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// update writes the mutable columns. slot_key is recomputed so that leaving a
// blocking status frees the unique index entry.
func update(db *gorm.DB, a *models.Appointment) error {
	res := db.Model(a).Updates(map[string]interface{}{
		"doctor_id":           a.DoctorID,
		"date":                a.Date,
		"time":                a.Time,
		"duration_minutes":    a.Duration(),
		"status":              a.Status,
		"reason":              a.Reason,
		"notes":               a.Notes,
		"cancellation_reason": a.CancellationReason,
		"diagnosis":           a.Diagnosis,
		"treatment":           a.Treatment,
		"is_virtual":          a.IsVirtual,
		"slot_key":            a.BlockingSlotKey(),
		"updated_at":          a.UpdatedAt,
	})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("appointment %s: %w", a.ID, gorm.ErrRecordNotFound)
	}
	return nil
}

// translate maps a unique-index violation to scheduling.ErrSlotTaken.
func translate(err error) error {
	var myErr *mysqldriver.MySQLError
	if errors.Is(err, gorm.ErrDuplicatedKey) || (errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry) {
		return fmt.Errorf("%w: %v", scheduling.ErrSlotTaken, err)
	}
	return err
}
