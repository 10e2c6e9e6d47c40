package scheduling

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"clinic-booking-server/internal/metrics"
	"clinic-booking-server/internal/models"
)

var tracer = otel.Tracer("clinic-booking.internal.scheduling")

const (
	defaultReason         = "Medical consultation"
	defaultFollowUpReason = "Follow-up appointment"
	patientCancelReason   = "Cancelled by the patient"
	patientRescheduleNote = "Rescheduled by the patient"
)

// Dependencies wires the scheduling components.
type Dependencies struct {
	Appointments AppointmentStore
	Profiles     ProfileDirectory
	Notifier     NotificationGateway
	Locker       SlotLocker
	Clock        Clock
	Logger       *zap.Logger
	Metrics      *metrics.BookingMetrics
}

func (d Dependencies) withDefaults() Dependencies {
	if d.Appointments == nil {
		panic("scheduling: appointment store required")
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Locker == nil {
		d.Locker = nopLocker{}
	}
	return d
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context, string) (func(), error) { return func() {}, nil }

// StateMachine applies status transitions and emits their notifications once
// the write has succeeded.
type StateMachine struct {
	appointments AppointmentStore
	notifier     NotificationGateway
	locker       SlotLocker
	conflicts    *ConflictChecker
	now          Clock
	logger       *zap.Logger
	metrics      *metrics.BookingMetrics
}

func NewStateMachine(deps Dependencies) *StateMachine {
	deps = deps.withDefaults()
	return &StateMachine{
		appointments: deps.Appointments,
		notifier:     deps.Notifier,
		locker:       deps.Locker,
		conflicts:    NewConflictChecker(deps.Appointments, deps.Clock),
		now:          deps.Clock,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
	}
}

// CancelResult reports whether Cancel changed anything.
type CancelResult struct {
	Appointment *models.Appointment `json:"appointment"`
	Changed     bool                `json:"changed"`
}

// FollowUpRequest asks Complete to book a follow-up with the same doctor.
type FollowUpRequest struct {
	Date   time.Time
	Time   models.TimeOfDay
	Reason string
}

// CompletionRequest carries the consultation outcome.
type CompletionRequest struct {
	Diagnosis string
	Treatment string
	Notes     string
	FollowUp  *FollowUpRequest
}

// CompletionResult holds the completed appointment and the follow-up, if any.
type CompletionResult struct {
	Appointment *models.Appointment `json:"appointment"`
	FollowUp    *models.Appointment `json:"followUp,omitempty"`
}

// Get returns an appointment visible to actor.
func (m *StateMachine) Get(ctx context.Context, actor Actor, id string) (*models.Appointment, error) {
	return m.load(ctx, actor, id)
}

// Confirm moves PENDING to CONFIRMED. Confirming a CONFIRMED appointment is a no-op.
func (m *StateMachine) Confirm(ctx context.Context, actor Actor, id string) (appt *models.Appointment, err error) {
	defer m.observe("confirm", &err)

	appt, err = m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.StatusConfirmed {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(models.StatusConfirmed) {
		return nil, transitionError("appointment in status %s cannot be confirmed", appt.Status)
	}
	appt.Status = models.StatusConfirmed
	appt.UpdatedAt = m.now()
	if err := m.appointments.Update(ctx, appt); err != nil {
		return nil, m.storeError("confirm appointment", err)
	}
	return appt, nil
}

// Start moves PENDING or CONFIRMED to STARTED.
func (m *StateMachine) Start(ctx context.Context, actor Actor, id string) (appt *models.Appointment, err error) {
	defer m.observe("start", &err)

	appt, err = m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.StatusStarted {
		return appt, nil
	}
	if !appt.Status.CanTransitionTo(models.StatusStarted) {
		return nil, transitionError("appointment in status %s cannot be started", appt.Status)
	}
	appt.Status = models.StatusStarted
	appt.UpdatedAt = m.now()
	if err := m.appointments.Update(ctx, appt); err != nil {
		return nil, m.storeError("start appointment", err)
	}
	return appt, nil
}

// Cancel moves any non-terminal appointment to CANCELLED. Staff must give a
// reason. Cancelling a CANCELLED appointment succeeds without change.
func (m *StateMachine) Cancel(ctx context.Context, actor Actor, id, reason string) (res *CancelResult, err error) {
	defer m.observe("cancel", &err)

	reason = strings.TrimSpace(reason)
	if actor.isStaff() && reason == "" {
		return nil, validationError("a cancellation reason is required")
	}

	appt, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if appt.Status == models.StatusCancelled {
		return &CancelResult{Appointment: appt, Changed: false}, nil
	}
	if !appt.Status.CanTransitionTo(models.StatusCancelled) {
		return nil, transitionError("appointment in status %s cannot be cancelled", appt.Status)
	}
	if reason == "" {
		reason = patientCancelReason
	}

	appt.Status = models.StatusCancelled
	appt.CancellationReason = reason
	appt.UpdatedAt = m.now()
	if err := m.appointments.Update(ctx, appt); err != nil {
		return nil, m.storeError("cancel appointment", err)
	}

	m.notify(ctx, models.EventCancelled, appt, func(ctx context.Context) error {
		return m.notifier.NotifyCancelled(ctx, appt.DoctorID, appt.PatientID, appt.StartsAt(), reason)
	})
	return &CancelResult{Appointment: appt, Changed: true}, nil
}

// Complete moves STARTED to COMPLETED and optionally books a follow-up in the
// same write.
func (m *StateMachine) Complete(ctx context.Context, actor Actor, id string, req CompletionRequest) (res *CompletionResult, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.complete")
	defer span.End()
	defer m.observe("complete", &err)
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
	}()

	appt, err := m.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID), attribute.String("clinic.doctor_id", appt.DoctorID))

	if appt.Status == models.StatusCompleted {
		return nil, transitionError("appointment was already completed")
	}
	if !appt.Status.CanTransitionTo(models.StatusCompleted) {
		return nil, transitionError("appointment must be started before completing")
	}

	diagnosis := strings.TrimSpace(req.Diagnosis)
	treatment := strings.TrimSpace(req.Treatment)
	if diagnosis == "" || treatment == "" {
		return nil, validationError("diagnosis and recommended treatment are required")
	}

	var followUp *models.Appointment
	if req.FollowUp != nil {
		date := facilityDay(m.now, req.FollowUp.Date)
		at := req.FollowUp.Time
		if !IsGridAligned(at) {
			return nil, validationError("follow-up time %s is not a bookable slot", at)
		}
		if !at.On(date).After(m.now()) {
			return nil, validationError("the follow-up appointment must be in the future")
		}

		unlock, err := m.lockSlot(ctx, appt.DoctorID, date)
		if err != nil {
			return nil, err
		}
		defer unlock()

		ok, err := m.conflicts.IsAvailable(ctx, appt.DoctorID, date, at, "")
		if err != nil {
			return nil, err
		}
		if !ok {
			m.metrics.ObserveConflict("check")
			return nil, slotConflictError(nil)
		}

		reason := strings.TrimSpace(req.FollowUp.Reason)
		if reason == "" {
			reason = defaultFollowUpReason
		}
		followUp = &models.Appointment{
			PatientID:       appt.PatientID,
			DoctorID:        appt.DoctorID,
			Date:            date,
			Time:            at,
			DurationMinutes: appt.Duration(),
			Status:          models.StatusPending,
			Reason:          reason,
			IsVirtual:       appt.IsVirtual,
			IsFollowUp:      true,
		}
		followUp.CreatedAt = m.now()
	}

	appt.Diagnosis = diagnosis
	appt.Treatment = treatment
	if notes := strings.TrimSpace(req.Notes); notes != "" {
		appt.Notes = notes
	}
	appt.Status = models.StatusCompleted
	appt.UpdatedAt = m.now()

	if err := m.appointments.CompleteWithFollowUp(ctx, appt, followUp); err != nil {
		return nil, m.storeError("complete appointment", err)
	}

	m.notify(ctx, models.EventCompleted, appt, func(ctx context.Context) error {
		return m.notifier.NotifyCompleted(ctx, appt.DoctorID, appt.PatientID, appt.StartsAt())
	})
	if followUp != nil {
		m.notify(ctx, models.EventCreated, followUp, func(ctx context.Context) error {
			return m.notifier.NotifyCreated(ctx, followUp.DoctorID, followUp.PatientID, followUp.StartsAt(), followUp.Reason)
		})
	}
	return &CompletionResult{Appointment: appt, FollowUp: followUp}, nil
}

// recordCreated inserts a new appointment and emits "created".
func (m *StateMachine) recordCreated(ctx context.Context, appt *models.Appointment) error {
	if _, err := m.appointments.Insert(ctx, appt); err != nil {
		return m.storeError("create appointment", err)
	}
	reason := appt.Reason
	if reason == "" {
		reason = defaultReason
	}
	m.notify(ctx, models.EventCreated, appt, func(ctx context.Context) error {
		return m.notifier.NotifyCreated(ctx, appt.DoctorID, appt.PatientID, appt.StartsAt(), reason)
	})
	return nil
}

// recordRescheduled persists a moved appointment and emits "rescheduled".
func (m *StateMachine) recordRescheduled(ctx context.Context, appt *models.Appointment, oldWhen time.Time) error {
	if err := m.appointments.Update(ctx, appt); err != nil {
		return m.storeError("reschedule appointment", err)
	}
	m.notify(ctx, models.EventRescheduled, appt, func(ctx context.Context) error {
		return m.notifier.NotifyRescheduled(ctx, appt.DoctorID, appt.PatientID, oldWhen, appt.StartsAt(), patientRescheduleNote)
	})
	return nil
}

func (m *StateMachine) load(ctx context.Context, actor Actor, id string) (*models.Appointment, error) {
	var (
		appt *models.Appointment
		err  error
	)
	switch actor.Role {
	case models.RolePatient:
		appt, err = m.appointments.FindByPatientAndID(ctx, actor.ID, id)
	case models.RoleDoctor, models.RoleAdmin:
		appt, err = m.appointments.FindByID(ctx, id)
	default:
		return nil, notFoundError("appointment %s not found", id)
	}
	if err != nil {
		return nil, persistenceError("load appointment", err)
	}
	if appt == nil || (actor.Role == models.RoleDoctor && appt.DoctorID != actor.ID) {
		return nil, notFoundError("appointment %s not found", id)
	}
	return appt, nil
}

func (m *StateMachine) lockSlot(ctx context.Context, doctorID string, date time.Time) (func(), error) {
	unlock, err := m.locker.Lock(ctx, doctorID+"|"+models.DateKey(date))
	if errors.Is(err, ErrSlotBusy) {
		m.metrics.ObserveConflict("lock")
		return nil, slotConflictError(err)
	}
	if err != nil {
		return nil, persistenceError("lock slot", err)
	}
	return unlock, nil
}

func (m *StateMachine) storeError(op string, err error) error {
	if errors.Is(err, ErrSlotTaken) {
		m.metrics.ObserveConflict("storage")
		return slotConflictError(err)
	}
	return persistenceError(op, err)
}

// notify runs send detached from request cancellation; failures are logged only.
func (m *StateMachine) notify(ctx context.Context, event models.NotificationEvent, appt *models.Appointment, send func(context.Context) error) {
	if m.notifier == nil {
		return
	}
	if err := send(context.WithoutCancel(ctx)); err != nil {
		m.metrics.ObserveNotificationFailure(string(event))
		m.logger.Warn("appointment notification failed",
			zap.String("event", string(event)),
			zap.String("appointment_id", appt.ID),
			zap.String("doctor_id", appt.DoctorID),
			zap.String("patient_id", appt.PatientID),
			zap.Error(err),
		)
	}
}

func (m *StateMachine) observe(operation string, errp *error) {
	outcome := "ok"
	if *errp != nil {
		outcome = KindOf(*errp).String()
	}
	m.metrics.ObserveOperation(operation, outcome)
}

// facilityDay returns midnight of t's calendar day in the clock's location.
func facilityDay(clock Clock, t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, clock().Location())
}
