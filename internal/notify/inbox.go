// Package notify records appointment events as in-system notifications shared
// by the doctor and the patient of the appointment.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"clinic-booking-server/internal/models"
)

const (
	// InboxLimit caps how many notifications a listing returns.
	InboxLimit = 50

	whenLayout       = "02/01/2006 15:04"
	maxMessageLength = 1000
)

var (
	ErrNotFound             = errors.New("notification not found")
	ErrUnsupportedRecipient = errors.New("recipient has no inbox")
)

// Recipient selects an inbox: the doctor's or the patient's side.
type Recipient struct {
	ID   string
	Role models.Role
}

func (r Recipient) column() (string, error) {
	switch r.Role {
	case models.RoleDoctor:
		return "doctor_id", nil
	case models.RolePatient:
		return "patient_id", nil
	}
	return "", ErrUnsupportedRecipient
}

// Inbox implements scheduling.NotificationGateway on the notifications table.
type Inbox struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewInbox(db *gorm.DB, logger *zap.Logger) *Inbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Inbox{db: db, logger: logger, now: time.Now}
}

func (i *Inbox) NotifyCreated(ctx context.Context, doctorID, patientID string, when time.Time, reason string) error {
	return i.record(ctx, compose(models.EventCreated, doctorID, patientID, when, time.Time{}, reason))
}

func (i *Inbox) NotifyCancelled(ctx context.Context, doctorID, patientID string, when time.Time, reason string) error {
	return i.record(ctx, compose(models.EventCancelled, doctorID, patientID, when, time.Time{}, reason))
}

func (i *Inbox) NotifyRescheduled(ctx context.Context, doctorID, patientID string, oldWhen, newWhen time.Time, reason string) error {
	return i.record(ctx, compose(models.EventRescheduled, doctorID, patientID, newWhen, oldWhen, reason))
}

func (i *Inbox) NotifyCompleted(ctx context.Context, doctorID, patientID string, when time.Time) error {
	return i.record(ctx, compose(models.EventCompleted, doctorID, patientID, when, time.Time{}, ""))
}

// compose renders subject and message for an event. previous is only used by
// rescheduled events.
func compose(event models.NotificationEvent, doctorID, patientID string, when, previous time.Time, reason string) models.Notification {
	n := models.Notification{
		DoctorID:     doctorID,
		PatientID:    patientID,
		Event:        event,
		ScheduledFor: when,
	}
	at := when.Format(whenLayout)
	switch event {
	case models.EventCreated:
		n.Subject = "New appointment scheduled"
		n.Message = fmt.Sprintf("A new appointment was scheduled for %s. Reason: %s", at, reason)
	case models.EventCancelled:
		n.Subject = "Appointment cancelled"
		n.Message = fmt.Sprintf("Your appointment on %s was cancelled. Reason: %s", at, reason)
	case models.EventRescheduled:
		n.Subject = "Appointment rescheduled"
		n.Message = fmt.Sprintf("Your appointment on %s was moved to %s.", previous.Format(whenLayout), at)
		if reason != "" {
			n.Message += " Reason: " + reason
		}
	case models.EventCompleted:
		n.Subject = "Appointment completed"
		n.Message = fmt.Sprintf("Your appointment on %s was completed. Thank you for your visit.", at)
	}
	if utf8.RuneCountInString(n.Message) > maxMessageLength {
		n.Message = string([]rune(n.Message)[:maxMessageLength])
	}
	return n
}

func (i *Inbox) record(ctx context.Context, n models.Notification) error {
	n.SentAt = i.now().UTC()
	if err := i.db.WithContext(ctx).Create(&n).Error; err != nil {
		return fmt.Errorf("record %s notification: %w", n.Event, err)
	}
	i.logger.Info("notification recorded",
		zap.String("event", string(n.Event)),
		zap.String("doctor_id", n.DoctorID),
		zap.String("patient_id", n.PatientID),
		zap.Time("scheduled_for", n.ScheduledFor),
	)
	return nil
}

// List returns the latest notifications of r, newest first.
func (i *Inbox) List(ctx context.Context, r Recipient, unreadOnly bool) ([]models.Notification, error) {
	col, err := r.column()
	if err != nil {
		return nil, err
	}
	q := i.db.WithContext(ctx).Where(col+" = ?", r.ID)
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var out []models.Notification
	if err := q.Order("sent_at desc").Limit(InboxLimit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (i *Inbox) CountUnread(ctx context.Context, r Recipient) (int64, error) {
	col, err := r.column()
	if err != nil {
		return 0, err
	}
	var n int64
	err = i.db.WithContext(ctx).Model(&models.Notification{}).
		Where(col+" = ? AND is_read = ?", r.ID, false).
		Count(&n).Error
	return n, err
}

// MarkRead flags one notification of r as read. Marking it again is a no-op.
func (i *Inbox) MarkRead(ctx context.Context, r Recipient, id string) error {
	col, err := r.column()
	if err != nil {
		return err
	}
	var n models.Notification
	err = i.db.WithContext(ctx).Where("id = ? AND "+col+" = ?", id, r.ID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	return i.db.WithContext(ctx).Model(&n).Update("is_read", true).Error
}

// MarkAllRead flags every unread notification of r and returns how many changed.
func (i *Inbox) MarkAllRead(ctx context.Context, r Recipient) (int64, error) {
	col, err := r.column()
	if err != nil {
		return 0, err
	}
	res := i.db.WithContext(ctx).Model(&models.Notification{}).
		Where(col+" = ? AND is_read = ?", r.ID, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
