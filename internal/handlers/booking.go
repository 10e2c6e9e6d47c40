package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
	"clinic-booking-server/internal/utils"
)

// BookingHandler serves the patient booking flow: specialty, doctor and
// slot, review, then create.
type BookingHandler struct {
	Workflow *scheduling.BookingWorkflow
	Logger   *zap.Logger
}

// NewBookingHandler creates a new BookingHandler.
func NewBookingHandler(workflow *scheduling.BookingWorkflow, logger *zap.Logger) *BookingHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{Workflow: workflow, Logger: logger}
}

// slotQuery is the optional pre-selection shared by the agenda endpoints.
type slotQuery struct {
	Date          string `form:"date" validate:"omitempty,datetime=2006-01-02"`
	Time          string `form:"time" validate:"omitempty,clock"`
	AppointmentID string `form:"appointmentId"`
}

// ListSpecialties handles GET /specialties?search=.
func (h *BookingHandler) ListSpecialties(c *gin.Context) {
	specialties, err := h.Workflow.ListSpecialties(c.Request.Context(), c.Query("search"))
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Specialties fetched successfully", specialties)
}

type doctorChoiceQuery struct {
	slotQuery
	DoctorID string `form:"doctorId"`
}

// ChooseDoctor handles GET /specialties/:id/doctors.
func (h *BookingHandler) ChooseDoctor(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q doctorChoiceQuery
	if !utils.BindQueryAndValidate(c, &q) {
		return
	}
	selected, err := parseSelection(q.Date, q.Time)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	choice, err := h.Workflow.ChooseDoctor(c.Request.Context(), scheduling.DoctorChoiceRequest{
		ActingPatientID: actor.ID,
		SpecialtyID:     c.Param("id"),
		DoctorID:        q.DoctorID,
		Selected:        selected,
		AppointmentID:   q.AppointmentID,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Doctors fetched successfully", choice)
}

// Availability handles GET /doctors/:id/availability.
func (h *BookingHandler) Availability(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q slotQuery
	if !utils.BindQueryAndValidate(c, &q) {
		return
	}
	selected, err := parseSelection(q.Date, q.Time)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	agenda, err := h.Workflow.Availability(c.Request.Context(), actor, c.Param("id"), selected, q.AppointmentID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Availability fetched successfully", gin.H{
		"agenda":          agenda,
		"hasAvailability": agenda.HasAvailability(),
	})
}

type slotCheckQuery struct {
	Date          string `form:"date" validate:"required,datetime=2006-01-02"`
	Time          string `form:"time" validate:"required,clock"`
	AppointmentID string `form:"appointmentId"`
}

// CheckSlot handles GET /doctors/:id/slots/check.
func (h *BookingHandler) CheckSlot(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q slotCheckQuery
	if !utils.BindQueryAndValidate(c, &q) {
		return
	}
	date, at, err := parseSlot(q.Date, q.Time)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	available, err := h.Workflow.CheckSlot(c.Request.Context(), actor, c.Param("id"), date, at, q.AppointmentID)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Slot checked successfully", gin.H{"available": available})
}

type reviewQuery struct {
	SpecialtyID   string `form:"specialtyId" validate:"required"`
	DoctorID      string `form:"doctorId" validate:"required"`
	Date          string `form:"date" validate:"required,datetime=2006-01-02"`
	Time          string `form:"time" validate:"required,clock"`
	IsVirtual     bool   `form:"isVirtual"`
	AppointmentID string `form:"appointmentId"`
}

// Review handles GET /appointments/review.
func (h *BookingHandler) Review(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var q reviewQuery
	if !utils.BindQueryAndValidate(c, &q) {
		return
	}
	date, at, err := parseSlot(q.Date, q.Time)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	review, err := h.Workflow.Review(c.Request.Context(), scheduling.ReviewRequest{
		ActingPatientID: actor.ID,
		SpecialtyID:     q.SpecialtyID,
		DoctorID:        q.DoctorID,
		Date:            date,
		Time:            at,
		IsVirtual:       q.IsVirtual,
		AppointmentID:   q.AppointmentID,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Review ready", review)
}

// BookingForm is the body of POST /appointments and PUT /appointments/:id/reschedule.
type BookingForm struct {
	SpecialtyID string `json:"specialtyId" validate:"required"`
	DoctorID    string `json:"doctorId" validate:"required"`
	Date        string `json:"date" validate:"required,datetime=2006-01-02"`
	Time        string `json:"time" validate:"required,clock"`
	Reason      string `json:"reason" validate:"max=500"`
	Notes       string `json:"notes" validate:"max=500"`
	IsVirtual   bool   `json:"isVirtual"`
}

func (f BookingForm) request(patientID string) (scheduling.BookingRequest, error) {
	date, at, err := parseSlot(f.Date, f.Time)
	if err != nil {
		return scheduling.BookingRequest{}, err
	}
	return scheduling.BookingRequest{
		ActingPatientID: patientID,
		SpecialtyID:     f.SpecialtyID,
		DoctorID:        f.DoctorID,
		Date:            date,
		Time:            at,
		Reason:          f.Reason,
		Notes:           f.Notes,
		IsVirtual:       f.IsVirtual,
	}, nil
}

// CreateAppointment handles POST /appointments for the acting patient.
func (h *BookingHandler) CreateAppointment(c *gin.Context) {
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

	appointment, err := h.Workflow.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}

// AdminBookingForm is the body of POST /appointments/admin.
type AdminBookingForm struct {
	PatientID       string `json:"patientId" validate:"required"`
	DoctorID        string `json:"doctorId"`
	Date            string `json:"date" validate:"required,datetime=2006-01-02"`
	Time            string `json:"time" validate:"required,clock"`
	DurationMinutes int    `json:"durationMinutes" validate:"omitempty,min=15,max=240"`
	Status          string `json:"status"`
	Reason          string `json:"reason" validate:"max=500"`
	Notes           string `json:"notes" validate:"max=500"`
	IsVirtual       bool   `json:"isVirtual"`
}

// CreateAdministrativeAppointment handles POST /appointments/admin.
func (h *BookingHandler) CreateAdministrativeAppointment(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var form AdminBookingForm
	if !utils.BindAndValidate(c, &form) {
		return
	}
	date, at, err := parseSlot(form.Date, form.Time)
	if err != nil {
		utils.BadRequest(c, err.Error())
		return
	}

	appointment, err := h.Workflow.CreateAdministrative(c.Request.Context(), actor, scheduling.AdminBookingRequest{
		PatientID:       form.PatientID,
		DoctorID:        form.DoctorID,
		Date:            date,
		Time:            at,
		DurationMinutes: form.DurationMinutes,
		Status:          models.AppointmentStatus(form.Status),
		Reason:          form.Reason,
		Notes:           form.Notes,
		IsVirtual:       form.IsVirtual,
	})
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appointment)
}
