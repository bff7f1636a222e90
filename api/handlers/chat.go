package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type messageBody struct {
	Text string `json:"text" binding:"required"`
}

// SendMessage - direct message to a friend
func (h *Handlers) SendMessage(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var body messageBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	msg, err := h.Chat.Send(c.Request.Context(), sess, c.Param("userId"), body.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handlers) ListMessages(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	messages, err := h.Chat.Messages(c.Request.Context(), sess.UserID, c.Param("userId"), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (h *Handlers) MarkMessageRead(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Chat.MarkRead(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Marked as read"})
}
