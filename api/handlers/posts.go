package handlers

import (
	"net/http"
	"sereno/services"

	"github.com/gin-gonic/gin"
)

type commentBody struct {
	Content string `json:"content" binding:"required"`
}

// CreatePost
// @Summary Publish a post
// @Tags posts
// @Security Bearer
// @Accept json
// @Produce json
// @Success 201 {object} models.Post
// @Failure 400 {object} map[string]string
// @Router /posts [post]
func (h *Handlers) CreatePost(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var req services.PostInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	post, err := h.Posts.CreatePost(c.Request.Context(), sess, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

func (h *Handlers) ListPosts(c *gin.Context) {
	var q services.PostQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query"})
		return
	}
	feed, err := h.Posts.ListPosts(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

func (h *Handlers) UpdatePost(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var patch services.PostPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	post, err := h.Posts.UpdatePost(c.Request.Context(), sess, c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, post)
}

func (h *Handlers) DeletePost(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Posts.DeletePost(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Post deleted"})
}

func (h *Handlers) LikePost(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	post, err := h.Posts.LikePost(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": post.ID, "likes": post.Likes, "liked": true})
}

func (h *Handlers) UnlikePost(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	post, err := h.Posts.UnlikePost(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"post_id": post.ID, "likes": post.Likes, "liked": false})
}

// GetFeed
// @Summary Posts of friends and own posts, newest first
// @Tags posts
// @Security Bearer
// @Param last_id query string false "id of the last post already shown"
// @Param limit query int false "page size, 20 by default, at most 100"
// @Produce json
// @Success 200 {object} models.FeedResponse
// @Router /feed [get]
func (h *Handlers) GetFeed(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	feed, err := h.Posts.GetFeed(c.Request.Context(), sess.UserID, c.Query("last_id"), queryInt(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, feed)
}

// RebuildFeed drops and rebuilds the cached feed of the current user
func (h *Handlers) RebuildFeed(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Posts.RebuildFeed(c.Request.Context(), sess.UserID); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Feed cache is not available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Feed rebuilt"})
}

func (h *Handlers) ListComments(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	comments, err := h.Comments.ListComments(c.Request.Context(), c.Param("id"), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

func (h *Handlers) AddComment(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var body commentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	comment, err := h.Comments.AddComment(c.Request.Context(), sess, c.Param("id"), body.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handlers) EditComment(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var body commentBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "content is required"})
		return
	}
	comment, err := h.Comments.EditComment(c.Request.Context(), sess, c.Param("id"), body.Content)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

func (h *Handlers) DeleteComment(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	if err := h.Comments.DeleteComment(c.Request.Context(), sess, c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Comment deleted"})
}

func (h *Handlers) ToggleCommentVisibility(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	comment, err := h.Comments.ToggleVisibility(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, comment)
}

type reportBody struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handlers) ToggleCommentLike(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	comment, liked, err := h.Comments.ToggleCommentLike(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comment": comment, "liked": liked})
}

// ReportComment
// @Summary Report a comment to the post author
// @Tags comments
// @Security Bearer
// @Accept json
// @Produce json
// @Success 201 {object} models.Comment
// @Failure 409 {object} map[string]string
// @Router /comments/{id}/report [post]
func (h *Handlers) ReportComment(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	var body reportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reason is required"})
		return
	}
	comment, err := h.Comments.ReportComment(c.Request.Context(), sess, c.Param("id"), body.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

func (h *Handlers) CommentReports(c *gin.Context) {
	sess, ok := session(c)
	if !ok {
		return
	}
	reports, err := h.Comments.Reports(c.Request.Context(), sess, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}
