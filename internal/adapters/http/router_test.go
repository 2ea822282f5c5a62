package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/adapters/persistence/memory"
	"github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/directory"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T, required bool) (*gin.Engine, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{
		Mode:   "test",
		Secret: "cookie-secret",
		Auth:   config.AuthConfig{JWTSecret: testSecret, Required: required},
	}
	o := &orch.Orchestrator{
		Registry:  app.NewRegistry(),
		Rooms:     app.NewRoomManager(),
		Directory: directory.NewMemory(),
		RoomStore: memory.NewRoomStore(),
		Messages:  memory.NewMessageStore(),
		Policy:    app.SimplePolicy{},
	}
	ctrl := signal.NewSignalWSController(o, signal.Options{}, nil, nil)
	return SetupRouter(context.Background(), cfg, o, ctrl), o
}

func issue(t *testing.T, userID, name string) string {
	t.Helper()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		UserID: userID,
		Name:   name,
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return raw
}

func do(r http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateAndGetRoom(t *testing.T) {
	r, _ := newTestRouter(t, true)
	token := issue(t, "u1", "Ann")

	w := do(r, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Title: " Retro "})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.NotEmpty(t, w.Header().Get(headerRequestID))
	var created struct {
		Room domain.Room `json:"room"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "Retro", created.Room.Title)
	assert.Equal(t, domain.UserID("u1"), created.Room.OwnerID)
	assert.Len(t, string(created.Room.Code), domain.RoomCodeLen)

	w = do(r, http.MethodGet, "/api/rooms/"+string(created.Room.Code), token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/rooms/unknown", token, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Room not found")

	w = do(r, http.MethodPost, "/api/rooms", token, CreateRoomRequest{Title: "  "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthRequired(t *testing.T) {
	r, _ := newTestRouter(t, true)
	w := do(r, http.MethodGet, "/api/rooms/abc", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/api/rooms/abc", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"directory":"memory"`)
}

func TestParticipantsAndChatHistory(t *testing.T) {
	r, o := newTestRouter(t, false)
	ctx := context.Background()
	room, err := domain.NewRoom("Plan", "u1")
	require.NoError(t, err)
	require.NoError(t, o.RoomStore.Create(ctx, room))
	require.NoError(t, o.Directory.Add(ctx, room.Code, domain.NewParticipant("s1", &domain.User{ID: "u1", Name: "Ann"}, false)))
	require.NoError(t, o.Messages.Append(ctx, &domain.Message{RoomID: room.ID, SenderID: "u1", SenderName: "Ann", Text: "hello"}))

	w := do(r, http.MethodGet, "/api/rooms/"+string(room.Code)+"/participants", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Participants []domain.Participant `json:"participants"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Participants, 1)
	assert.True(t, body.Participants[0].IsHost)

	w = do(r, http.MethodGet, "/api/chat/"+string(room.ID), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []domain.Message
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Text)

	w = do(r, http.MethodGet, "/api/chat/not-an-id", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/rooms", "", CreateRoomRequest{Title: "x", HostID: "u9"})
	assert.Equal(t, http.StatusCreated, w.Code)
	w = do(r, http.MethodGet, "/api/rooms", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestClientTokenIsStoredInSessionCookie(t *testing.T) {
	r, _ := newTestRouter(t, false)
	w := do(r, http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	found := false
	for _, c := range w.Result().Cookies() {
		if c.Name == "MeetSessions" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestParseToken(t *testing.T) {
	u, err := ParseToken(testSecret, issue(t, "u7", "Zed"))
	require.NoError(t, err)
	assert.Equal(t, domain.UserID("u7"), u.ID)

	_, err = ParseToken("other", issue(t, "u7", "Zed"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}
