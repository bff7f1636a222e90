package handlers

import (
	"net/http"
	"sereno/api/middleware"
	"sereno/api/views"
	"sereno/services"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// Handlers holds the services every endpoint works with
type Handlers struct {
	DB            *gorm.DB
	Users         *services.UserService
	Friends       *services.FriendStore
	Posts         *services.PostService
	Comments      *services.CommentService
	Moods         *services.MoodService
	Diary         *services.DiaryService
	Groups        *services.GroupService
	Chat          *services.ChatService
	Notifications *services.NotificationService
	Counters      *services.CounterService
	Queue         *services.QueueService
	WS            *services.WSConnManager
	Toaster       views.Toaster
}

// StatusFor maps an error kind to its HTTP status
func StatusFor(err error) int {
	switch services.KindOf(err) {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindForbidden:
		return http.StatusForbidden
	case services.KindAlreadyFriends, services.KindDuplicate, services.KindAlreadyResolved:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(StatusFor(err), gin.H{
		"error": services.UserMessage(err),
		"kind":  services.KindOf(err),
	})
}

func session(c *gin.Context) (services.Session, bool) {
	sess, ok := middleware.CurrentSession(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return services.Session{}, false
	}
	return sess, true
}

func queryInt(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
