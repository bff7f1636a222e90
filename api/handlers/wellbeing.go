package handlers

import (
	"net/http"
	"sereno/services"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) RecordMood(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var req services.MoodInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	entry, err := h.Moods.RecordMood(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handlers) MoodHistory(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	entries, err := h.Moods.History(c.Request.Context(), sess.UserID, queryInt(c, "days", 30))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moods": entries})
}

func (h *Handlers) MoodStats(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	stats, err := h.Moods.Stats(c.Request.Context(), sess.UserID, c.Query("period"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handlers) ListDiary(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	entries, err := h.Diary.List(c.Request.Context(), sess.UserID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (h *Handlers) CreateDiaryEntry(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var req services.DiaryInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	entry, err := h.Diary.Create(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handlers) UpdateDiaryEntry(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var patch services.DiaryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	entry, err := h.Diary.Update(c.Request.Context(), sess, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

func (h *Handlers) DeleteDiaryEntry(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Diary.Delete(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Diary entry deleted"})
}
