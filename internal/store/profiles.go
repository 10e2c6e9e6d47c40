package store

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
)

// Profiles is the gorm ProfileDirectory.
type Profiles struct {
	db *gorm.DB
}

func NewProfiles(db *gorm.DB) *Profiles {
	return &Profiles{db: db}
}

func (p *Profiles) GetActiveDoctor(ctx context.Context, doctorID string) (*models.Doctor, error) {
	var d models.Doctor
	err := p.db.WithContext(ctx).Where("id = ? AND active = ?", doctorID, true).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *Profiles) GetDoctorsBySpecialty(ctx context.Context, specialtyID string) ([]models.Doctor, error) {
	var out []models.Doctor
	err := p.db.WithContext(ctx).
		Where("specialty_id = ? AND active = ?", specialtyID, true).
		Order("first_name asc, last_name asc").
		Find(&out).Error
	return out, err
}

func (p *Profiles) GetPatient(ctx context.Context, patientID string) (*models.Patient, error) {
	var pt models.Patient
	err := p.db.WithContext(ctx).Where("id = ?", patientID).First(&pt).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (p *Profiles) GetSpecialty(ctx context.Context, specialtyID string) (*models.Specialty, error) {
	var s models.Specialty
	err := p.db.WithContext(ctx).Where("id = ?", specialtyID).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSpecialties counts active doctors per active specialty in one query.
func (p *Profiles) ListSpecialties(ctx context.Context, search string) ([]scheduling.SpecialtySummary, error) {
	q := p.db.WithContext(ctx).
		Model(&models.Specialty{}).
		Select("specialties.*, (SELECT COUNT(*) FROM doctors WHERE doctors.specialty_id = specialties.id AND doctors.active = ?) AS active_doctors", true).
		Where("specialties.active = ?", true)
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("specialties.name LIKE ? OR specialties.description LIKE ?", like, like)
	}

	var out []scheduling.SpecialtySummary
	if err := q.Order("specialties.name asc").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
