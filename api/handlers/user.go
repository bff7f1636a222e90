package handlers

import (
	"net/http"
	"sereno/services"

	"github.com/gin-gonic/gin"
)

func (h *Handlers) Me(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	user, err := h.Users.GetProfile(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (h *Handlers) UpdateMe(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var patch services.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	user, err := h.Users.UpdateProfile(c.Request.Context(), sess, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	// clients holding the old token still get the new name through the session lookup
	token, err := h.Users.IssueToken(user)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

// UserGet returns the public profile of a user plus their visible posts
func (h *Handlers) UserGet(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	user, err := h.Users.GetProfile(ctx, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	posts, err := h.Posts.GetUserPosts(ctx, user.ID, sess.UserID, queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	profile := user.Profile()
	c.JSON(http.StatusOK, gin.H{"user": profile, "bio": user.Bio, "location": user.Location, "posts": posts})
}
