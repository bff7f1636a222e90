package routes

import (
	"sereno/api/handlers"

	"github.com/gin-gonic/gin"
)

func PublicApi(router *gin.Engine, h *handlers.Handlers) *gin.RouterGroup {
	publicEndpoints := router.Group("/api/v1/")
	{
		publicEndpoints.POST("auth/register", h.Register)
		publicEndpoints.POST("auth/login", h.Login)
		publicEndpoints.GET("groups", h.ListGroups)
	}
	return publicEndpoints
}

// PrivateApi - endpoints that need a session; auth resolves it
func PrivateApi(router *gin.Engine, h *handlers.Handlers, auth gin.HandlerFunc) *gin.RouterGroup {
	privateEndpoints := router.Group("/api/v1/", auth)
	{
		privateEndpoints.GET("users/me", h.Me)
		privateEndpoints.PUT("users/me", h.UpdateMe)
		privateEndpoints.GET("users/search", h.UserSearch)
		privateEndpoints.GET("users/:id", h.UserGet)

		// friends
		privateEndpoints.GET("friends", h.GetFriendsState)
		privateEndpoints.POST("friends/requests", h.SendFriendRequest)
		privateEndpoints.POST("friends/requests/:id/cancel", h.CancelFriendRequest)
		privateEndpoints.POST("friends/requests/:id/accept", h.AcceptFriendRequest)
		privateEndpoints.POST("friends/requests/:id/reject", h.RejectFriendRequest)
		privateEndpoints.GET("friends/status/:id", h.FriendStatus)
		privateEndpoints.DELETE("friends/:id", h.RemoveFriend)

		// posts
		privateEndpoints.GET("posts", h.ListPosts)
		privateEndpoints.POST("posts", h.CreatePost)
		privateEndpoints.PATCH("posts/:id", h.UpdatePost)
		privateEndpoints.DELETE("posts/:id", h.DeletePost)
		privateEndpoints.POST("posts/:id/like", h.LikePost)
		privateEndpoints.DELETE("posts/:id/like", h.UnlikePost)
		privateEndpoints.GET("posts/:id/comments", h.ListComments)
		privateEndpoints.POST("posts/:id/comments", h.AddComment)
		privateEndpoints.PATCH("comments/:id", h.EditComment)
		privateEndpoints.DELETE("comments/:id", h.DeleteComment)
		privateEndpoints.POST("comments/:id/visibility", h.ToggleCommentVisibility)
		privateEndpoints.POST("comments/:id/like", h.ToggleCommentLike)
		privateEndpoints.POST("comments/:id/report", h.ReportComment)
		privateEndpoints.GET("comments/:id/reports", h.CommentReports)
		privateEndpoints.GET("feed", h.GetFeed)
		privateEndpoints.POST("feed/rebuild", h.RebuildFeed)

		// wellbeing
		privateEndpoints.GET("moods", h.MoodHistory)
		privateEndpoints.POST("moods", h.RecordMood)
		privateEndpoints.GET("moods/stats", h.MoodStats)
		privateEndpoints.GET("diary", h.ListDiary)
		privateEndpoints.POST("diary", h.CreateDiaryEntry)
		privateEndpoints.PATCH("diary/:id", h.UpdateDiaryEntry)
		privateEndpoints.DELETE("diary/:id", h.DeleteDiaryEntry)

		// groups
		privateEndpoints.POST("groups", h.CreateGroup)
		privateEndpoints.POST("groups/:id/join", h.JoinGroup)
		privateEndpoints.POST("groups/:id/leave", h.LeaveGroup)

		// chat
		privateEndpoints.GET("chats/:userId/messages", h.ListMessages)
		privateEndpoints.POST("chats/:userId/messages", h.SendMessage)
		privateEndpoints.POST("messages/:id/read", h.MarkMessageRead)

		// notifications and counters
		privateEndpoints.GET("notifications", h.ListNotifications)
		privateEndpoints.DELETE("notifications", h.ClearNotifications)
		privateEndpoints.POST("notifications/read-all", h.MarkAllNotificationsRead)
		privateEndpoints.POST("notifications/:id/read", h.MarkNotificationRead)
		privateEndpoints.DELETE("notifications/:id", h.DeleteNotification)
		privateEndpoints.GET("counters", h.GetCounters)
		privateEndpoints.POST("counters/sync", h.SyncCounters)
	}
	router.GET("/ws", auth, h.Events)
	return privateEndpoints
}
