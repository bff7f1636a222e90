package handlers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sereno/api/handlers"
	"sereno/api/middleware"
	"sereno/api/routes"
	"sereno/db"
	"sereno/services"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testServer struct {
	router *gin.Engine
	tokens *services.TokenIssuer
	orm    *gorm.DB
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	orm, err := db.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := orm.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	tokens := services.NewTokenIssuer("handler-test-secret", time.Hour)
	notifications := services.NewNotificationService(orm, nil, nil)
	users := services.NewUserService(orm, tokens)
	h := &handlers.Handlers{
		DB:            orm,
		Users:         users,
		Friends:       services.NewFriendStore(orm, services.WithNotifier(notifications)),
		Notifications: notifications,
	}

	router := gin.New()
	routes.PublicApi(router, h)
	routes.PrivateApi(router, h, middleware.AuthMiddleware(middleware.AuthOptions{
		Tokens:          tokens,
		AllowTestTokens: true,
		Resolve:         users.ResolveSession,
	}))
	router.GET("/health", h.Health)
	return &testServer{router: router, tokens: tokens, orm: orm}
}

// do sends a JSON request as userID; an empty userID sends no credentials
func (s *testServer) do(t *testing.T, method, path, userID string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	}
	return w.Code, decoded
}

func (s *testServer) register(t *testing.T, displayName string) string {
	t.Helper()
	code, body := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email":        gofakeit.Email(),
		"password":     "calm-waters-42",
		"display_name": displayName,
	})
	require.Equal(t, http.StatusCreated, code, body)
	return body["user"].(map[string]interface{})["id"].(string)
}

func toastMessage(body map[string]interface{}) string {
	toast, _ := body["toast"].(map[string]interface{})
	message, _ := toast["message"].(string)
	return message
}

func listLen(body map[string]interface{}, key string) int {
	state, _ := body["state"].(map[string]interface{})
	list, _ := state[key].([]interface{})
	return len(list)
}

func TestFriendFlowOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")

	code, body := s.do(t, http.MethodPost, "/api/v1/friends/requests", alice, gin.H{"recipient_id": bob})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, "Friend request sent!", toastMessage(body))
	assert.Equal(t, 1, listLen(body, "sent"))

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests", alice, gin.H{"recipient_id": bob})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(services.KindDuplicate), body["kind"])
	assert.Equal(t, "you already sent a friend request to this user", toastMessage(body))

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests", alice, gin.H{})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = s.do(t, http.MethodGet, "/api/v1/friends", bob, nil)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, listLen(body, "pending"))
	requestID := body["state"].(map[string]interface{})["pending"].([]interface{})[0].(map[string]interface{})["id"].(string)

	code, body = s.do(t, http.MethodGet, "/api/v1/friends/status/"+alice, bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "request_received", body["relation"])
	assert.Equal(t, requestID, body["request_id"])

	code, _ = s.do(t, http.MethodPost, "/api/v1/friends/requests/"+requestID+"/accept", alice, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests/"+requestID+"/accept", bob, nil)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, "Friend request accepted!", toastMessage(body))
	assert.Equal(t, 0, listLen(body, "pending"))
	assert.Equal(t, 1, listLen(body, "friends"))

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests/"+requestID+"/accept", bob, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(services.KindAlreadyResolved), body["kind"])

	code, body = s.do(t, http.MethodGet, "/api/v1/friends/status/"+bob, alice, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "friend", body["relation"])

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests", bob, gin.H{"recipient_id": alice})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, string(services.KindAlreadyFriends), body["kind"])

	code, body = s.do(t, http.MethodDelete, "/api/v1/friends/"+alice, bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Friend removed.", toastMessage(body))
	assert.Equal(t, 0, listLen(body, "friends"))

	code, body = s.do(t, http.MethodPost, "/api/v1/friends/requests/missing/reject", bob, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, string(services.KindNotFound), body["kind"])
}

func TestSavedActionWithFailedRefresh(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "Alice")
	bob := s.register(t, "Bob")

	err := s.orm.Callback().Row().Before("gorm:row").Register("test:fail_friend_list", func(tx *gorm.DB) {
		if tx.Statement.Table == "friendships f" {
			_ = tx.AddError(errors.New("replica unavailable"))
		}
	})
	require.NoError(t, err)

	code, body := s.do(t, http.MethodPost, "/api/v1/friends/requests", alice, gin.H{"recipient_id": bob})
	require.Equal(t, http.StatusCreated, code, body)
	assert.Equal(t, true, body["stale"])
	assert.Equal(t, "failed to load friends", body["error"])
	assert.Equal(t, "info", body["toast"].(map[string]interface{})["kind"])

	require.NoError(t, s.orm.Callback().Row().Remove("test:fail_friend_list"))

	code, body = s.do(t, http.MethodGet, "/api/v1/friends", bob, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 1, listLen(body, "pending"), "the request was stored")
}

func TestUserSearchOverHTTP(t *testing.T) {
	s := newTestServer(t)
	alice := s.register(t, "Alice Moon")
	bob := s.register(t, "Bob Moon")

	code, body := s.do(t, http.MethodGet, "/api/v1/users/search?q=moon", alice, nil)
	require.Equal(t, http.StatusOK, code)
	users := body["users"].([]interface{})
	require.Len(t, users, 1)
	assert.Equal(t, bob, users[0].(map[string]interface{})["id"])
	assert.Equal(t, "none", users[0].(map[string]interface{})["relation"])
}

func TestLoginTokenAuthenticates(t *testing.T) {
	s := newTestServer(t)
	email := gofakeit.Email()
	code, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "password": "calm-waters-42", "display_name": "Token User",
	})
	require.Equal(t, http.StatusCreated, code)

	code, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "calm-waters-42"})
	require.Equal(t, http.StatusOK, code)
	token := body["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/friends", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	code, _ = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func (s *testServer) doBearer(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}
	req := httptest.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded), w.Body.String())
	return w.Code, decoded
}

func TestRenameReachesNewFriendRequests(t *testing.T) {
	s := newTestServer(t)
	email := gofakeit.Email()
	code, _ := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": email, "password": "calm-waters-42", "display_name": "Old Name",
	})
	require.Equal(t, http.StatusCreated, code)
	bob := s.register(t, "Bob")

	code, body := s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "calm-waters-42"})
	require.Equal(t, http.StatusOK, code)
	oldToken := body["token"].(string)

	code, body = s.doBearer(t, http.MethodPut, "/api/v1/users/me", oldToken, gin.H{"display_name": "New Name"})
	require.Equal(t, http.StatusOK, code, body)
	freshToken, _ := body["token"].(string)
	require.NotEmpty(t, freshToken)
	sess, err := s.tokens.Parse(freshToken)
	require.NoError(t, err)
	assert.Equal(t, "New Name", sess.DisplayName)

	// the token issued before the rename is still in use
	code, body = s.doBearer(t, http.MethodPost, "/api/v1/friends/requests", oldToken, gin.H{"recipient_id": bob})
	require.Equal(t, http.StatusCreated, code, body)

	code, body = s.do(t, http.MethodGet, "/api/v1/friends", bob, nil)
	require.Equal(t, http.StatusOK, code)
	pending := body["state"].(map[string]interface{})["pending"].([]interface{})
	require.Len(t, pending, 1)
	assert.Equal(t, "New Name", pending[0].(map[string]interface{})["sender_name"])
}

func TestUnknownUserIsRejected(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/api/v1/friends", uuid.NewString(), nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "Authentication required", body["error"])
}

func TestPrivateEndpointsNeedSession(t *testing.T) {
	s := newTestServer(t)
	for _, path := range []string{"/api/v1/friends", "/api/v1/users/search?q=a", "/api/v1/friends/status/x"} {
		code, body := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, code, path)
		assert.Equal(t, "Authentication required", body["error"])
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	code, body := s.do(t, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "ok", body["database"])
	assert.NotContains(t, body, "feed_queue")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind   services.ErrorKind
		status int
	}{
		{services.KindValidation, http.StatusBadRequest},
		{services.KindNotFound, http.StatusNotFound},
		{services.KindForbidden, http.StatusForbidden},
		{services.KindAlreadyFriends, http.StatusConflict},
		{services.KindDuplicate, http.StatusConflict},
		{services.KindAlreadyResolved, http.StatusConflict},
		{services.KindRemote, http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, handlers.StatusFor(&services.StoreError{Kind: tt.kind}))
		})
	}
	assert.Equal(t, http.StatusBadGateway, handlers.StatusFor(errors.New("connection reset")))
}
