package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-server/internal/handlers"
	"clinic-booking-server/internal/middleware"
	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/scheduling"
)

// Dependencies are the components the HTTP surface is built from.
type Dependencies struct {
	JWTSecret string
	Workflow  *scheduling.BookingWorkflow
	Machine   *scheduling.StateMachine
	Inbox     handlers.NotificationInbox
	// Limiter throttles write routes. Nil disables throttling.
	Limiter *middleware.IPRateLimiter
	// Metrics serves /metrics when set.
	Metrics http.Handler
	Logger  *zap.Logger
}

// SetupRoutes configures the application routes.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	bookingHandler := handlers.NewBookingHandler(deps.Workflow, deps.Logger)
	appointmentHandler := handlers.NewAppointmentHandler(deps.Workflow, deps.Machine, deps.Logger)
	notificationHandler := handlers.NewNotificationHandler(deps.Inbox, deps.Logger)

	patientOnly := middleware.RoleAuthMiddleware(models.RolePatient)
	staffOnly := middleware.RoleAuthMiddleware(models.RoleDoctor, models.RoleAdmin)
	inboxOwners := middleware.RoleAuthMiddleware(models.RoleDoctor, models.RolePatient)
	throttle := func(c *gin.Context) { c.Next() }
	if deps.Limiter != nil {
		throttle = middleware.RateLimitMiddleware(deps.Limiter)
	}

	private := router.Group("/api/v1")
	private.Use(middleware.AuthMiddleware(deps.JWTSecret))
	{
		private.GET("/specialties", bookingHandler.ListSpecialties)
		private.GET("/specialties/:id/doctors", bookingHandler.ChooseDoctor)

		doctorRoutes := private.Group("/doctors/:id")
		{
			doctorRoutes.GET("/availability", bookingHandler.Availability)
			doctorRoutes.GET("/slots/check", bookingHandler.CheckSlot)
		}

		appointmentRoutes := private.Group("/appointments")
		{
			appointmentRoutes.GET("/review", patientOnly, bookingHandler.Review)
			appointmentRoutes.POST("", patientOnly, throttle, bookingHandler.CreateAppointment)
			appointmentRoutes.POST("/admin", staffOnly, throttle, bookingHandler.CreateAdministrativeAppointment)

			appointmentRoutes.GET("", appointmentHandler.GetAppointmentsForUser)
			appointmentRoutes.GET("/:id", appointmentHandler.GetAppointmentByID)

			appointmentRoutes.PUT("/:id/reschedule", patientOnly, throttle, appointmentHandler.RescheduleAppointment)
			appointmentRoutes.POST("/:id/cancel", throttle, appointmentHandler.CancelAppointment)
			appointmentRoutes.POST("/:id/confirm", staffOnly, appointmentHandler.ConfirmAppointment)
			appointmentRoutes.POST("/:id/start", staffOnly, appointmentHandler.StartAppointment)
			appointmentRoutes.POST("/:id/complete", staffOnly, throttle, appointmentHandler.CompleteAppointment)
		}

		notificationRoutes := private.Group("/notifications")
		notificationRoutes.Use(inboxOwners)
		{
			notificationRoutes.GET("", notificationHandler.ListNotifications)
			notificationRoutes.GET("/unread-count", notificationHandler.UnreadCount)
			notificationRoutes.PATCH("/read-all", notificationHandler.MarkAllRead)
			notificationRoutes.PATCH("/:id/read", notificationHandler.MarkRead)
		}
	}

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	// Simple health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "UP"})
	})
}
