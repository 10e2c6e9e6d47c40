package scheduling

import (
	"context"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"clinic-booking-server/internal/metrics"
	"clinic-booking-server/internal/models"
)

const (
	summaryLength   = 120
	officePending   = "Office to be confirmed"
	msgLeadTime     = "Appointments must be booked at least one day in advance."
	msgSlotTaken    = "The selected slot is no longer available. Please choose another one."
	msgInvalidSlot  = "The selected time is not a bookable slot."
	msgReschedule   = "You are rescheduling an existing appointment. Review the details before confirming."
	msgReadyToBook  = "Review the details and confirm your appointment."
	maxReasonLength = 500
)

// BookingRequest is the final step of the patient flow.
type BookingRequest struct {
	ActingPatientID string
	SpecialtyID     string
	DoctorID        string
	Date            time.Time
	Time            models.TimeOfDay
	Reason          string
	Notes           string
	IsVirtual       bool
}

// AdminBookingRequest is a staff booking. It may use any time inside the
// working window and any duration in range, and it skips the lead time.
type AdminBookingRequest struct {
	PatientID       string
	DoctorID        string
	Date            time.Time
	Time            models.TimeOfDay
	DurationMinutes int
	Status          models.AppointmentStatus
	Reason          string
	Notes           string
	IsVirtual       bool
}

// DoctorChoiceRequest drives the doctor and agenda step.
type DoctorChoiceRequest struct {
	ActingPatientID string
	SpecialtyID     string
	// DoctorID is optional; the first doctor of the specialty is used when empty.
	DoctorID string
	Selected *Selection
	// AppointmentID is set when the patient is rescheduling.
	AppointmentID string
}

// DoctorOption is one doctor card in the doctor step.
type DoctorOption struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Summary  string `json:"summary,omitempty"`
	Selected bool   `json:"selected"`
}

// DoctorChoice is the doctor step: the specialty, its doctors and the chosen doctor's agenda.
type DoctorChoice struct {
	Specialty models.Specialty `json:"specialty"`
	Doctors   []DoctorOption   `json:"doctors"`
	Doctor    *models.Doctor   `json:"doctor,omitempty"`
	Agenda    *Agenda          `json:"agenda,omitempty"`
}

// ReviewRequest names the pick to be reviewed.
type ReviewRequest struct {
	ActingPatientID string
	SpecialtyID     string
	DoctorID        string
	Date            time.Time
	Time            models.TimeOfDay
	IsVirtual       bool
	AppointmentID   string
}

// Review is the summary shown before the patient confirms.
type Review struct {
	SpecialtyName string           `json:"specialty"`
	DoctorName    string           `json:"doctor"`
	Office        string           `json:"office"`
	PatientName   string           `json:"patient"`
	PatientEmail  string           `json:"email,omitempty"`
	PatientPhone  string           `json:"phone,omitempty"`
	Date          time.Time        `json:"date"`
	Time          models.TimeOfDay `json:"time"`
	IsVirtual     bool             `json:"isVirtual"`
	AppointmentID string           `json:"appointmentId,omitempty"`
	CanConfirm    bool             `json:"canConfirm"`
	Message       string           `json:"message"`
}

// PatientAppointments splits a patient's history.
type PatientAppointments struct {
	Upcoming []models.Appointment `json:"upcoming"`
	Past     []models.Appointment `json:"past"`
}

// BookingWorkflow runs the patient booking flow and staff bookings on top of
// the availability engine, the conflict checker and the state machine.
type BookingWorkflow struct {
	profiles     ProfileDirectory
	appointments AppointmentStore
	availability *AvailabilityEngine
	conflicts    *ConflictChecker
	machine      *StateMachine
	now          Clock
	logger       *zap.Logger
	metrics      *metrics.BookingMetrics
}

func NewBookingWorkflow(deps Dependencies, machine *StateMachine) *BookingWorkflow {
	deps = deps.withDefaults()
	if machine == nil {
		machine = NewStateMachine(deps)
	}
	return &BookingWorkflow{
		profiles:     deps.Profiles,
		appointments: deps.Appointments,
		availability: NewAvailabilityEngine(deps.Appointments, deps.Clock, deps.Metrics),
		conflicts:    machine.conflicts,
		machine:      machine,
		now:          deps.Clock,
		logger:       deps.Logger,
		metrics:      deps.Metrics,
	}
}

// ListSpecialties is the first step of the flow.
func (w *BookingWorkflow) ListSpecialties(ctx context.Context, search string) ([]SpecialtySummary, error) {
	out, err := w.profiles.ListSpecialties(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, persistenceError("list specialties", err)
	}
	return out, nil
}

// ChooseDoctor lists the specialty's doctors and the agenda of the selected one.
func (w *BookingWorkflow) ChooseDoctor(ctx context.Context, req DoctorChoiceRequest) (*DoctorChoice, error) {
	specialty, err := w.profiles.GetSpecialty(ctx, req.SpecialtyID)
	if err != nil {
		return nil, persistenceError("load specialty", err)
	}
	if specialty == nil || !specialty.Active {
		return nil, notFoundError("specialty %s not found", req.SpecialtyID)
	}
	if req.AppointmentID != "" {
		if _, err := w.ownedReschedulable(ctx, req.ActingPatientID, req.AppointmentID); err != nil {
			return nil, err
		}
	}

	doctors, err := w.profiles.GetDoctorsBySpecialty(ctx, specialty.ID)
	if err != nil {
		return nil, persistenceError("load doctors", err)
	}

	choice := &DoctorChoice{Specialty: *specialty, Doctors: make([]DoctorOption, 0, len(doctors))}
	for i := range doctors {
		d := &doctors[i]
		selected := false
		if choice.Doctor == nil && (req.DoctorID == "" || req.DoctorID == d.ID) {
			choice.Doctor = d
			selected = true
		}
		choice.Doctors = append(choice.Doctors, DoctorOption{
			ID:       d.ID,
			Name:     d.FullName(),
			Summary:  doctorSummary(d),
			Selected: selected,
		})
	}
	if req.DoctorID != "" && choice.Doctor == nil {
		return nil, notFoundError("doctor %s not found in specialty %s", req.DoctorID, specialty.Name)
	}
	if choice.Doctor == nil {
		return choice, nil
	}

	choice.Agenda, err = w.availability.Agenda(ctx, AvailabilityQuery{
		DoctorID:            choice.Doctor.ID,
		Selected:            req.Selected,
		IgnoreAppointmentID: req.AppointmentID,
	})
	if err != nil {
		return nil, err
	}
	return choice, nil
}

// Review previews a pick. It never fails for an unavailable slot; CanConfirm
// and Message tell the caller what to do.
func (w *BookingWorkflow) Review(ctx context.Context, req ReviewRequest) (*Review, error) {
	doctor, patient, specialty, err := w.resolveParties(ctx, req.ActingPatientID, req.SpecialtyID, req.DoctorID)
	if err != nil {
		return nil, err
	}

	date := facilityDay(w.now, req.Date)
	review := &Review{
		SpecialtyName: specialty.Name,
		DoctorName:    doctor.FullName(),
		Office:        doctor.Office,
		PatientName:   patient.FullName(),
		PatientEmail:  patient.Email,
		PatientPhone:  patient.Phone,
		Date:          date,
		Time:          req.Time,
		IsVirtual:     req.IsVirtual,
		AppointmentID: req.AppointmentID,
	}
	if strings.TrimSpace(review.Office) == "" {
		review.Office = officePending
	}

	var existing *models.Appointment
	if req.AppointmentID != "" {
		if existing, err = w.ownedReschedulable(ctx, patient.ID, req.AppointmentID); err != nil {
			return nil, err
		}
	}

	switch {
	case !IsGridAligned(req.Time):
		review.Message = msgInvalidSlot
	case existing != nil && sameSlot(existing, doctor.ID, date, req.Time):
		review.CanConfirm = true
	case req.Time.On(date).Before(leadTimeFloor(w.now())):
		review.Message = msgLeadTime
	default:
		ok, err := w.conflicts.IsAvailable(ctx, doctor.ID, date, req.Time, req.AppointmentID)
		if err != nil {
			return nil, err
		}
		review.CanConfirm = ok
		if !ok {
			review.Message = msgSlotTaken
		}
	}
	if review.CanConfirm {
		review.Message = msgReadyToBook
		if existing != nil {
			review.Message = msgReschedule
		}
	}
	return review, nil
}

// Create books a new PENDING appointment for the acting patient.
func (w *BookingWorkflow) Create(ctx context.Context, req BookingRequest) (appt *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.create")
	defer span.End()
	defer w.machine.observe("create", &err)
	defer recordSpanError(span, &err)

	doctor, patient, _, err := w.resolveParties(ctx, req.ActingPatientID, req.SpecialtyID, req.DoctorID)
	if err != nil {
		return nil, err
	}
	date, err := w.validatePick(req.Date, req.Time, req.Reason, req.Notes)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("clinic.doctor_id", doctor.ID),
		attribute.String("clinic.slot", models.DateKey(date)+" "+req.Time.String()),
	)

	unlock, err := w.machine.lockSlot(ctx, doctor.ID, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	ok, err := w.conflicts.IsAvailable(ctx, doctor.ID, date, req.Time, "")
	if err != nil {
		return nil, err
	}
	if !ok {
		w.metrics.ObserveConflict("check")
		return nil, slotConflictError(nil)
	}

	appt = &models.Appointment{
		PatientID:       patient.ID,
		DoctorID:        doctor.ID,
		Date:            date,
		Time:            req.Time,
		DurationMinutes: SlotMinutes,
		Status:          models.StatusPending,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           strings.TrimSpace(req.Notes),
		IsVirtual:       req.IsVirtual,
	}
	appt.CreatedAt = w.now()
	appt.UpdatedAt = appt.CreatedAt
	if err := w.machine.recordCreated(ctx, appt); err != nil {
		return nil, err
	}
	w.logger.Info("appointment booked",
		zap.String("appointment_id", appt.ID),
		zap.String("doctor_id", appt.DoctorID),
		zap.Time("starts_at", appt.StartsAt()),
	)
	return appt, nil
}

// Reschedule moves an existing PENDING or CONFIRMED appointment of the acting
// patient and puts it back to PENDING. Keeping the same doctor, date and time
// skips the lead time and availability checks.
func (w *BookingWorkflow) Reschedule(ctx context.Context, appointmentID string, req BookingRequest) (appt *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.reschedule")
	defer span.End()
	defer w.machine.observe("reschedule", &err)
	defer recordSpanError(span, &err)
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))

	doctor, _, _, err := w.resolveParties(ctx, req.ActingPatientID, req.SpecialtyID, req.DoctorID)
	if err != nil {
		return nil, err
	}
	appt, err = w.ownedReschedulable(ctx, req.ActingPatientID, appointmentID)
	if err != nil {
		return nil, err
	}
	date := facilityDay(w.now, req.Date)
	oldWhen := appt.StartsAt()
	moved := !sameSlot(appt, doctor.ID, date, req.Time)
	if !moved {
		if err := validateText(req.Reason, req.Notes); err != nil {
			return nil, err
		}
	} else {
		if _, err := w.validatePick(req.Date, req.Time, req.Reason, req.Notes); err != nil {
			return nil, err
		}
		unlock, err := w.machine.lockSlot(ctx, doctor.ID, date)
		if err != nil {
			return nil, err
		}
		defer unlock()

		ok, err := w.conflicts.IsAvailable(ctx, doctor.ID, date, req.Time, appt.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			w.metrics.ObserveConflict("check")
			return nil, slotConflictError(nil)
		}
	}

	appt.DoctorID = doctor.ID
	appt.Date = date
	appt.Time = req.Time
	appt.Reason = strings.TrimSpace(req.Reason)
	appt.Notes = strings.TrimSpace(req.Notes)
	appt.IsVirtual = req.IsVirtual
	appt.Status = models.StatusPending
	appt.UpdatedAt = w.now()

	if err := w.machine.recordRescheduled(ctx, appt, oldWhen); err != nil {
		return nil, err
	}
	return appt, nil
}

// CreateAdministrative books on behalf of a patient.
func (w *BookingWorkflow) CreateAdministrative(ctx context.Context, actor Actor, req AdminBookingRequest) (appt *models.Appointment, err error) {
	ctx, span := tracer.Start(ctx, "scheduling.create_administrative")
	defer span.End()
	defer w.machine.observe("create_administrative", &err)
	defer recordSpanError(span, &err)

	if !actor.isStaff() {
		return nil, validationError("only staff can book on behalf of a patient")
	}
	if actor.Role == models.RoleDoctor && req.DoctorID == "" {
		req.DoctorID = actor.ID
	}

	duration := req.DurationMinutes
	if duration == 0 {
		duration = models.DefaultDurationMinutes
	}
	if duration < models.MinDurationMinutes || duration > models.MaxDurationMinutes {
		return nil, validationError("duration must be between %d and %d minutes", models.MinDurationMinutes, models.MaxDurationMinutes)
	}
	status := models.StatusPending
	if req.Status != "" {
		parsed, ok := models.ParseAppointmentStatus(string(req.Status))
		if !ok || !parsed.IsBlocking() {
			return nil, validationError("initial status must be PENDING, CONFIRMED or STARTED")
		}
		status = parsed
	}
	if err := validateText(req.Reason, req.Notes); err != nil {
		return nil, err
	}
	if !req.Time.Valid() {
		return nil, validationError("invalid time %s", req.Time)
	}
	date := facilityDay(w.now, req.Date)
	if !req.Time.On(date).After(w.now()) {
		return nil, validationError("the appointment must be in the future")
	}
	open, closing := WorkingWindow()
	if req.Time < open || req.Time.Add(duration) > closing {
		return nil, validationError("the appointment must fall between %s and %s", open, closing)
	}

	doctor, err := w.profiles.GetActiveDoctor(ctx, req.DoctorID)
	if err != nil {
		return nil, persistenceError("load doctor", err)
	}
	if doctor == nil {
		return nil, notFoundError("doctor %s not found", req.DoctorID)
	}
	patient, err := w.activePatient(ctx, req.PatientID)
	if err != nil {
		return nil, err
	}

	unlock, err := w.machine.lockSlot(ctx, doctor.ID, date)
	if err != nil {
		return nil, err
	}
	defer unlock()

	free, err := w.conflicts.isFree(ctx, doctor.ID, date, req.Time, duration, "")
	if err != nil {
		return nil, err
	}
	if !free {
		w.metrics.ObserveConflict("check")
		return nil, slotConflictError(nil)
	}

	appt = &models.Appointment{
		PatientID:       patient.ID,
		DoctorID:        doctor.ID,
		Date:            date,
		Time:            req.Time,
		DurationMinutes: duration,
		Status:          status,
		Reason:          strings.TrimSpace(req.Reason),
		Notes:           strings.TrimSpace(req.Notes),
		IsVirtual:       req.IsVirtual,
	}
	appt.CreatedAt = w.now()
	appt.UpdatedAt = appt.CreatedAt
	if err := w.machine.recordCreated(ctx, appt); err != nil {
		return nil, err
	}
	w.logger.Info("appointment booked by staff",
		zap.String("appointment_id", appt.ID),
		zap.String("actor_id", actor.ID),
		zap.String("status", string(status)),
	)
	return appt, nil
}

// Availability returns the agenda of an active doctor. ignoreID is honoured
// only when the actor may move that appointment.
func (w *BookingWorkflow) Availability(ctx context.Context, actor Actor, doctorID string, selected *Selection, ignoreID string) (*Agenda, error) {
	doctor, err := w.profiles.GetActiveDoctor(ctx, doctorID)
	if err != nil {
		return nil, persistenceError("load doctor", err)
	}
	if doctor == nil {
		return nil, notFoundError("doctor %s not found", doctorID)
	}
	if err := w.checkIgnorable(ctx, actor, ignoreID); err != nil {
		return nil, err
	}
	return w.availability.Agenda(ctx, AvailabilityQuery{DoctorID: doctor.ID, Selected: selected, IgnoreAppointmentID: ignoreID})
}

// CheckSlot answers the point availability query.
func (w *BookingWorkflow) CheckSlot(ctx context.Context, actor Actor, doctorID string, date time.Time, at models.TimeOfDay, ignoreID string) (bool, error) {
	if !at.Valid() {
		return false, validationError("invalid time %s", at)
	}
	if err := w.checkIgnorable(ctx, actor, ignoreID); err != nil {
		return false, err
	}
	return w.conflicts.IsAvailable(ctx, doctorID, facilityDay(w.now, date), at, ignoreID)
}

// checkIgnorable rejects an appointment id the actor cannot see or move.
func (w *BookingWorkflow) checkIgnorable(ctx context.Context, actor Actor, id string) error {
	if id == "" {
		return nil
	}
	if actor.Role == models.RolePatient {
		_, err := w.ownedReschedulable(ctx, actor.ID, id)
		return err
	}
	appt, err := w.machine.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if !appt.Status.CanReschedule() {
		return transitionError("appointment in status %s cannot be rescheduled", appt.Status)
	}
	return nil
}

// PatientAppointments returns upcoming active appointments in chronological
// order and completed ones most recent first.
func (w *BookingWorkflow) PatientAppointments(ctx context.Context, patientID string) (*PatientAppointments, error) {
	all, err := w.appointments.FindByPatient(ctx, patientID)
	if err != nil {
		return nil, persistenceError("list patient appointments", err)
	}
	today := models.DateOnly(w.now())
	out := &PatientAppointments{Upcoming: []models.Appointment{}, Past: []models.Appointment{}}
	for _, a := range all {
		switch {
		case a.Status == models.StatusCompleted:
			out.Past = append(out.Past, a)
		case a.Status.IsBlocking() && !models.DateOnly(a.Date).Before(today):
			out.Upcoming = append(out.Upcoming, a)
		}
	}
	sort.SliceStable(out.Upcoming, func(i, j int) bool {
		return out.Upcoming[i].StartsAt().Before(out.Upcoming[j].StartsAt())
	})
	sort.SliceStable(out.Past, func(i, j int) bool {
		return out.Past[i].StartsAt().After(out.Past[j].StartsAt())
	})
	return out, nil
}

// DoctorAppointments returns a doctor's appointments from today on.
func (w *BookingWorkflow) DoctorAppointments(ctx context.Context, doctorID string) ([]models.Appointment, error) {
	out, err := w.appointments.FindByDoctorFrom(ctx, doctorID, models.DateOnly(w.now()))
	if err != nil {
		return nil, persistenceError("list doctor appointments", err)
	}
	return out, nil
}

func (w *BookingWorkflow) resolveParties(ctx context.Context, patientID, specialtyID, doctorID string) (*models.Doctor, *models.Patient, *models.Specialty, error) {
	patient, err := w.activePatient(ctx, patientID)
	if err != nil {
		return nil, nil, nil, err
	}
	doctor, err := w.profiles.GetActiveDoctor(ctx, doctorID)
	if err != nil {
		return nil, nil, nil, persistenceError("load doctor", err)
	}
	if doctor == nil || (specialtyID != "" && doctor.SpecialtyID != specialtyID) {
		return nil, nil, nil, notFoundError("doctor %s not found in the selected specialty", doctorID)
	}
	specialty, err := w.profiles.GetSpecialty(ctx, doctor.SpecialtyID)
	if err != nil {
		return nil, nil, nil, persistenceError("load specialty", err)
	}
	if specialty == nil {
		return nil, nil, nil, notFoundError("specialty %s not found", doctor.SpecialtyID)
	}
	return doctor, patient, specialty, nil
}

func (w *BookingWorkflow) activePatient(ctx context.Context, patientID string) (*models.Patient, error) {
	patient, err := w.profiles.GetPatient(ctx, patientID)
	if err != nil {
		return nil, persistenceError("load patient", err)
	}
	if patient == nil || !patient.Active {
		return nil, notFoundError("patient %s not found", patientID)
	}
	return patient, nil
}

func (w *BookingWorkflow) ownedReschedulable(ctx context.Context, patientID, appointmentID string) (*models.Appointment, error) {
	appt, err := w.machine.load(ctx, Actor{ID: patientID, Role: models.RolePatient}, appointmentID)
	if err != nil {
		return nil, err
	}
	if !appt.Status.CanReschedule() {
		return nil, transitionError("appointment in status %s cannot be rescheduled", appt.Status)
	}
	return appt, nil
}

// validatePick checks a patient pick: grid slot, lead time and text lengths.
func (w *BookingWorkflow) validatePick(date time.Time, at models.TimeOfDay, reason, notes string) (time.Time, error) {
	day := facilityDay(w.now, date)
	if !IsGridAligned(at) {
		return day, validationError("time %s is not a bookable slot", at)
	}
	if at.On(day).Before(leadTimeFloor(w.now())) {
		return day, validationError("appointments must be booked at least one day in advance")
	}
	return day, validateText(reason, notes)
}

func validateText(reason, notes string) error {
	if utf8.RuneCountInString(strings.TrimSpace(reason)) > maxReasonLength {
		return validationError("reason must be at most %d characters", maxReasonLength)
	}
	if utf8.RuneCountInString(strings.TrimSpace(notes)) > maxReasonLength {
		return validationError("notes must be at most %d characters", maxReasonLength)
	}
	return nil
}

func sameSlot(a *models.Appointment, doctorID string, date time.Time, at models.TimeOfDay) bool {
	return a.DoctorID == doctorID && models.DateKey(a.Date) == models.DateKey(date) && a.Time == at
}

func doctorSummary(d *models.Doctor) string {
	if bio := strings.TrimSpace(d.Biography); bio != "" {
		if utf8.RuneCountInString(bio) <= summaryLength {
			return bio
		}
		runes := []rune(bio)
		return strings.TrimSpace(string(runes[:summaryLength])) + "…"
	}
	if office := strings.TrimSpace(d.Office); office != "" {
		return "Office: " + office
	}
	return ""
}

func recordSpanError(span trace.Span, errp *error) {
	if *errp != nil {
		span.RecordError(*errp)
	}
}
