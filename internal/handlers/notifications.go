package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"clinic-booking-server/internal/models"
	"clinic-booking-server/internal/notify"
	"clinic-booking-server/internal/utils"
)

// NotificationInbox is the read side of the notification store.
type NotificationInbox interface {
	List(ctx context.Context, r notify.Recipient, unreadOnly bool) ([]models.Notification, error)
	CountUnread(ctx context.Context, r notify.Recipient) (int64, error)
	MarkRead(ctx context.Context, r notify.Recipient, id string) error
	MarkAllRead(ctx context.Context, r notify.Recipient) (int64, error)
}

// NotificationHandler serves the in-system inbox of doctors and patients.
type NotificationHandler struct {
	Inbox  NotificationInbox
	Logger *zap.Logger
}

// NewNotificationHandler creates a new NotificationHandler.
func NewNotificationHandler(inbox NotificationInbox, logger *zap.Logger) *NotificationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationHandler{Inbox: inbox, Logger: logger}
}

func (h *NotificationHandler) recipient(c *gin.Context) (notify.Recipient, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return notify.Recipient{}, false
	}
	return notify.Recipient{ID: actor.ID, Role: actor.Role}, true
}

// ListNotifications handles GET /notifications?unread=true.
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	r, ok := h.recipient(c)
	if !ok {
		return
	}
	out, err := h.Inbox.List(c.Request.Context(), r, c.Query("unread") == "true")
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Notifications fetched successfully", out)
}

// UnreadCount handles GET /notifications/unread-count.
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	r, ok := h.recipient(c)
	if !ok {
		return
	}
	n, err := h.Inbox.CountUnread(c.Request.Context(), r)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Unread notifications counted", gin.H{"unread": n})
}

// MarkRead handles PATCH /notifications/:id/read.
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	r, ok := h.recipient(c)
	if !ok {
		return
	}
	if err := h.Inbox.MarkRead(c.Request.Context(), r, c.Param("id")); err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Notification marked as read", nil)
}

// MarkAllRead handles PATCH /notifications/read-all.
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	r, ok := h.recipient(c)
	if !ok {
		return
	}
	n, err := h.Inbox.MarkAllRead(c.Request.Context(), r)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	utils.Success(c, "Notifications marked as read", gin.H{"updated": n})
}
