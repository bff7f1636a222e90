package handlers

import (
	"net/http"
	"sereno/services"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) ListGroups(c *gin.Context) {
	groups, err := h.Groups.List(c.Request.Context(), c.Query("category"), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

func (h *Handlers) CreateGroup(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var req services.GroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	group, err := h.Groups.Create(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, group)
}

func (h *Handlers) JoinGroup(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	group, err := h.Groups.Join(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}

func (h *Handlers) LeaveGroup(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	group, err := h.Groups.Leave(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, group)
}
