package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
	"clinic-booking-server/internal/utils"
)

// AppointmentHandler handles appointment queries and lifecycle transitions.
type AppointmentHandler struct {
	Workflow *scheduling.BookingWorkflow
	Machine  *scheduling.StateMachine
	Logger   *zap.Logger
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(workflow *scheduling.BookingWorkflow, machine *scheduling.StateMachine, logger *zap.Logger) *AppointmentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AppointmentHandler{Workflow: workflow, Machine: machine, Logger: logger}
}

type listQuery struct {
	DoctorID  string `form:"doctorId"`
	PatientID string `form:"patientId"`
}

// GetAppointmentsForUser lists appointments of the logged-in patient or doctor.
// Admins pick the doctor or patient through the query string.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q listQuery
	if !utils.BindQueryAndValidate(c, &q) {
		return
	}

	switch {
	case actor.Role == models.RolePatient:
		h.listForPatient(c, actor.ID)
	case actor.Role == models.RoleDoctor:
		h.listForDoctor(c, actor.ID)
	case actor.Role == models.RoleAdmin && q.DoctorID != "":
		h.listForDoctor(c, q.DoctorID)
	case actor.Role == models.RoleAdmin && q.PatientID != "":
		h.listForPatient(c, q.PatientID)
	case actor.Role == models.RoleAdmin:
		utils.BadRequest(c, "doctorId or patientId is required")
	default:
		utils.Forbidden(c, "User role not permitted to view appointments this way. Role: "+string(actor.Role))
	}
}

func (h *AppointmentHandler) listForPatient(c *gin.Context, patientID string) {
	out, err := h.Workflow.PatientAppointments(c.Request.Context(), patientID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", out)
}

func (h *AppointmentHandler) listForDoctor(c *gin.Context, doctorID string) {
	out, err := h.Workflow.DoctorAppointments(c.Request.Context(), doctorID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", out)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
// Accessible by the involved patient, the owning doctor, or an admin.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	appointment, err := h.Machine.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appointment)
}

// RescheduleAppointment handles PUT /appointments/:id/reschedule by the owning patient.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var form BookingForm
	if !utils.BindAndValidate(c, &form) {
		return
	}
	req, err := form.request(actor.ID)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	appointment, err := h.Workflow.Reschedule(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointment rescheduled successfully", appointment)
}

// CancelRequest is the body of POST /appointments/:id/cancel. Staff must give a reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// CancelAppointment handles POST /appointments/:id/cancel.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req CancelRequest
	if c.Request.ContentLength != 0 && !utils.BindAndValidate(c, &req) {
		return
	}

	res, err := h.Machine.Cancel(c.Request.Context(), actor, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	message := "Appointment cancelled successfully"
	if !res.Changed {
		message = "Appointment was already cancelled"
	}
	utils.Success(c, message, res.Appointment)
}

// ConfirmAppointment handles POST /appointments/:id/confirm.
func (h *AppointmentHandler) ConfirmAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	appointment, err := h.Machine.Confirm(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointment confirmed successfully", appointment)
}

// StartAppointment handles POST /appointments/:id/start.
func (h *AppointmentHandler) StartAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	appointment, err := h.Machine.Start(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointment started successfully", appointment)
}

// FollowUpForm books a follow-up while completing.
type FollowUpForm struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Time   string `json:"time" validate:"required,clock"`
	Reason string `json:"reason" validate:"max=500"`
}

// CompleteRequest is the body of POST /appointments/:id/complete.
type CompleteRequest struct {
	Diagnosis string        `json:"diagnosis" validate:"max=500"`
	Treatment string        `json:"treatment" validate:"max=500"`
	Notes     string        `json:"notes" validate:"max=500"`
	FollowUp  *FollowUpForm `json:"followUp" validate:"omitempty"`
}

// CompleteAppointment handles POST /appointments/:id/complete.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var req CompleteRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	completion := scheduling.CompletionRequest{
		Diagnosis: req.Diagnosis,
		Treatment: req.Treatment,
		Notes:     req.Notes,
	}
	if req.FollowUp != nil {
		date, at, err := parseSlot(req.FollowUp.Date, req.FollowUp.Time)
		if err != nil {
			utils.BadRequest(c, err.Error())
			return
		}
		completion.FollowUp = &scheduling.FollowUpRequest{Date: date, Time: at, Reason: req.FollowUp.Reason}
	}

	res, err := h.Machine.Complete(c.Request.Context(), actor, c.Param("id"), completion)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Appointment completed successfully", res)
}
