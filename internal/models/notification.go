package models

import "time"

// NotificationEvent names the appointment event a notification was raised for.
type NotificationEvent string

const (
	EventCreated     NotificationEvent = "created"
	EventCancelled   NotificationEvent = "cancelled"
	EventRescheduled NotificationEvent = "rescheduled"
	EventCompleted   NotificationEvent = "completed"
)

// Notification is an in-system message shared by the doctor and patient of an appointment.
type Notification struct {
	BaseModel
	DoctorID     string            `gorm:"size:36;index;not null" json:"doctorId"`
	PatientID    string            `gorm:"size:36;index;not null" json:"patientId"`
	Event        NotificationEvent `gorm:"size:20;not null" json:"event"`
	Subject      string            `gorm:"size:120;not null" json:"subject"`
	Message      string            `gorm:"size:1000;not null" json:"message"`
	ScheduledFor time.Time         `json:"scheduledFor"`
	IsRead       bool              `gorm:"not null;default:false" json:"read"`
	SentAt       time.Time         `gorm:"index" json:"sentAt"`
}
