package handlers

import (
	"context"
	"errors"
	"net/http"
	"sereno/api/middleware"
	"sereno/api/views"
	"sereno/services"
	"time"

	"github.com/gin-gonic/gin"
)

type sendRequestBody struct {
	RecipientID string `json:"recipient_id" binding:"required"`
}

// friendsView builds a per-request view; callers must Close it
func (h *Handlers) friendsView(sess services.Session) *views.FriendsView {
	return views.NewFriendsView(sess, h.Friends, h.Toaster)
}

// runFriendAction executes action on a fresh view and answers with the new state and toast
func (h *Handlers) runFriendAction(c *gin.Context, operation string, status int, action func(ctx context.Context, v *views.FriendsView) error) {
	sess, ok := session(c)
	if !ok {
		return
	}
	view := h.friendsView(sess)
	defer view.Close()

	start := time.Now()
	err := action(c.Request.Context(), view)
	var stale *views.RefreshError
	if errors.As(err, &stale) {
		// the write is stored; only the returned lists are out of date
		middleware.RecordFriendOperation(operation, time.Since(start), nil)
		c.JSON(status, gin.H{
			"state": view.State(),
			"toast": view.LastToast(),
			"stale": true,
			"error": services.UserMessage(stale.Err),
		})
		return
	}
	middleware.RecordFriendOperation(operation, time.Since(start), err)
	if err != nil {
		c.JSON(StatusFor(err), gin.H{
			"error": services.UserMessage(err),
			"kind":  services.KindOf(err),
			"toast": view.LastToast(),
		})
		return
	}
	c.JSON(status, gin.H{"state": view.State(), "toast": view.LastToast()})
}

// GetFriendsState
// @Summary Friends, incoming and outgoing requests of the current user
// @Tags friends
// @Security Bearer
// @Produce json
// @Success 200 {object} views.FriendsState
// @Failure 502 {object} map[string]string
// @Router /friends [get]
func (h *Handlers) GetFriendsState(c *gin.Context) {
	h.runFriendAction(c, "load", http.StatusOK, func(ctx context.Context, v *views.FriendsView) error {
		return v.Load(ctx)
	})
}

func (h *Handlers) SendFriendRequest(c *gin.Context) {
	var body sendRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "recipient_id is required"})
		return
	}
	h.runFriendAction(c, "send", http.StatusCreated, func(ctx context.Context, v *views.FriendsView) error {
		return v.SendRequest(ctx, body.RecipientID)
	})
}

func (h *Handlers) CancelFriendRequest(c *gin.Context) {
	h.runFriendAction(c, "cancel", http.StatusOK, func(ctx context.Context, v *views.FriendsView) error {
		return v.CancelRequest(ctx, c.Param("id"))
	})
}

func (h *Handlers) AcceptFriendRequest(c *gin.Context) {
	h.runFriendAction(c, "accept", http.StatusOK, func(ctx context.Context, v *views.FriendsView) error {
		return v.AcceptRequest(ctx, c.Param("id"))
	})
}

func (h *Handlers) RejectFriendRequest(c *gin.Context) {
	h.runFriendAction(c, "reject", http.StatusOK, func(ctx context.Context, v *views.FriendsView) error {
		return v.RejectRequest(ctx, c.Param("id"))
	})
}

func (h *Handlers) RemoveFriend(c *gin.Context) {
	h.runFriendAction(c, "remove", http.StatusOK, func(ctx context.Context, v *views.FriendsView) error {
		return v.RemoveFriend(ctx, c.Param("id"))
	})
}

// FriendStatus tells the profile page which friend button to show
func (h *Handlers) FriendStatus(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	view := h.friendsView(sess)
	defer view.Close()

	if err := view.Load(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	relation, requestID := view.RelationTo(c.Param("id"))
	c.JSON(http.StatusOK, gin.H{"relation": relation, "request_id": requestID})
}

// UserSearch
// @Summary Search users by display name or username
// @Tags users
// @Security Bearer
// @Param q query string true "search term"
// @Produce json
// @Success 200 {array} views.SearchResult
// @Router /users/search [get]
func (h *Handlers) UserSearch(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	view := h.friendsView(sess)
	defer view.Close()

	start := time.Now()
	results, err := view.Search(c.Request.Context(), c.Query("q"))
	middleware.RecordFriendOperation("search", time.Since(start), err)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}
