package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListNotifications(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	notifications, err := h.Notifications.List(c.Request.Context(), sess.UserID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}

func (h *Handlers) MarkNotificationRead(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Notifications.MarkRead(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}

func (h *Handlers) MarkAllNotificationsRead(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	updated, err := h.Notifications.MarkAllRead(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handlers) DeleteNotification(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Notifications.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

func (h *Handlers) ClearNotifications(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	deleted, err := h.Notifications.ClearAll(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}
