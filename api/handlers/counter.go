package handlers

import (
	"net/http"
	"sereno/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// GetCounters
// @Summary Get user counters
// @Description Badge counters (friend requests, notifications, unread messages) of the authenticated user
// @Tags counters
// @Security Bearer
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} map[string]string
// @Failure 502 {object} map[string]string
// @Router /counters [get]
func (h *Handlers) GetCounters(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	counters, err := h.Counters.GetAll(c.Request.Context(), sess.UserID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "GetCounters", "user_id": sess.UserID, "error": err.Error()}).
			Error("Failed to get counters")
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to get counters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": sess.UserID, "counters": counters})
}

// SyncCounters recomputes the counters kept in Redis from the database
func (h *Handlers) SyncCounters(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	requests, err := h.Friends.SyncRequestCounter(ctx, sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	unread, err := h.Notifications.UnreadCount(ctx, sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.Counters.Set(ctx, sess.UserID, services.CounterNotifications, unread); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": "failed to store counters"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friend_requests": requests, "notifications": unread})
}
