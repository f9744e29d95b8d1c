package handler_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"nearprop/chat/internal/api/handler"
	"nearprop/chat/internal/chat"
	"nearprop/chat/internal/gateway"
	"nearprop/chat/internal/localization"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, svc *MockChatService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	loc, err := localization.New()
	require.NoError(t, err)

	r := gin.New()
	handler.NewHandler(svc, loc, "en").Register(r)
	return r
}

func serve(r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestStatus(t *testing.T) {
	svc := new(MockChatService)
	svc.On("ConnectionState").Return(realtime.Connected)
	svc.On("ActiveRoom").Return(int64(501))
	svc.On("LoggedIn", mock.Anything).Return(true)

	w := serve(newRouter(t, svc), http.MethodGet, "/status", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "connected", body["connection"])
	assert.EqualValues(t, 501, body["activeRoom"])
	assert.Equal(t, true, body["loggedIn"])
	assert.NotEqual(t, "status.connected", body["label"])
}

func TestOpenPropertyChat(t *testing.T) {
	svc := new(MockChatService)
	room := &models.ChatRoom{ID: 501, PropertyID: 42, CounterpartName: "Ravi"}
	svc.On("OpenRoomForProperty", mock.Anything, int64(42)).Return(room, nil)
	svc.On("Transcript", int64(501)).Return([]models.Message{{ID: 1, RoomID: 501, Content: "hi"}})

	w := serve(newRouter(t, svc), http.MethodPost, "/properties/42/chat", "")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 501, body["room"].(map[string]interface{})["id"])
	assert.Len(t, body["messages"], 1)
	svc.AssertExpectations(t)
}

func TestBadPathParams(t *testing.T) {
	svc := new(MockChatService)
	r := newRouter(t, svc)

	for _, path := range []string{"/properties/abc/chat", "/properties/0/chat", "/rooms/-3/activate"} {
		w := serve(r, http.MethodPost, path, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, path)
	}
	w := serve(r, http.MethodPost, "/rooms/501/history?page=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.AssertNotCalled(t, "OpenRoomForProperty", mock.Anything, mock.Anything)
	svc.AssertNotCalled(t, "LoadHistory", mock.Anything, mock.Anything, mock.Anything)
}

func TestLoadHistory(t *testing.T) {
	svc := new(MockChatService)
	svc.On("LoadHistory", mock.Anything, int64(501), 2).Return(3, nil)
	svc.On("Transcript", int64(501)).Return([]models.Message{})

	w := serve(newRouter(t, svc), http.MethodPost, "/rooms/501/history?page=2", "")

	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode(t, w)["added"])
}

func TestSendMessage(t *testing.T) {
	svc := new(MockChatService)
	sent := &models.Message{ID: 9001, RoomID: 501, Content: "Hello", Mine: true, Status: models.StatusSent}
	svc.On("Send", mock.Anything, "Hello").Return(sent, nil)

	w := serve(newRouter(t, svc), http.MethodPost, "/messages", `{"text":"Hello"}`)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.EqualValues(t, 9001, decode(t, w)["id"])
}

func TestSendMessage_MissingBody(t *testing.T) {
	svc := new(MockChatService)

	w := serve(newRouter(t, svc), http.MethodPost, "/messages", `{}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertNotCalled(t, "Send", mock.Anything, mock.Anything)
}

func TestMarkRead(t *testing.T) {
	svc := new(MockChatService)
	svc.On("MarkRead", mock.Anything, int64(501), int64(9002)).
		Return(&chat.ReadCommand{ID: "c1", RoomID: 501, MessageID: 9002, State: chat.CommandConfirmed}, nil)

	w := serve(newRouter(t, svc), http.MethodPatch, "/rooms/501/messages/9002/read", "")

	require.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestScheduleVisit(t *testing.T) {
	svc := new(MockChatService)
	at := time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)
	svc.On("ScheduleVisit", mock.Anything, int64(42), at, "morning").Return(nil)

	w := serve(newRouter(t, svc), http.MethodPost, "/visits",
		`{"propertyId":42,"visitAt":"2024-06-01T11:00:00Z","note":"morning"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	svc.AssertExpectations(t)
}

func TestErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"guest", chat.ErrLoginRequired, http.StatusUnauthorized},
		{"rejected token", &gateway.APIError{Status: http.StatusUnauthorized, Message: "expired"}, http.StatusUnauthorized},
		{"empty", chat.ErrEmptyMessage, http.StatusBadRequest},
		{"no room", chat.ErrNoActiveRoom, http.StatusBadRequest},
		{"backend", &gateway.APIError{Status: http.StatusInternalServerError, Message: "boom"}, http.StatusBadGateway},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("refused")}, http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := new(MockChatService)
			svc.On("Send", mock.Anything, "Hi").Return(nil, tc.err)

			w := serve(newRouter(t, svc), http.MethodPost, "/messages", `{"text":"Hi"}`)

			assert.Equal(t, tc.status, w.Code)
			assert.NotEmpty(t, decode(t, w)["error"])
		})
	}
}

func TestLoginRequiredMessageIsLocalized(t *testing.T) {
	svc := new(MockChatService)
	svc.On("RefreshRooms", mock.Anything).Return(chat.ErrLoginRequired)

	w := serve(newRouter(t, svc), http.MethodPost, "/rooms/refresh", "")

	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEqual(t, "error.login_required", decode(t, w)["error"])
}

func TestStaleHistoryConflict(t *testing.T) {
	svc := new(MockChatService)
	svc.On("LoadHistory", mock.Anything, int64(501), 0).Return(0, chat.ErrStaleRoom)

	w := serve(newRouter(t, svc), http.MethodPost, "/rooms/501/history", "")

	assert.Equal(t, http.StatusConflict, w.Code)
}
