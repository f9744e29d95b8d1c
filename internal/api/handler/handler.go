// Package handler exposes the chat controller as a loopback HTTP API.
package handler

import (
	"context"
	"net/http"
	"time"

	"nearprop/chat/internal/chat"
	"nearprop/chat/internal/localization"
	"nearprop/chat/internal/models"
	"nearprop/chat/internal/realtime"

	"github.com/gin-gonic/gin"
)

// ChatService is the controller surface the API drives.
type ChatService interface {
	Rooms() []models.ChatRoom
	RefreshRooms(ctx context.Context) error
	OpenRoomForProperty(ctx context.Context, propertyID int64) (*models.ChatRoom, error)
	ActivateRoom(ctx context.Context, roomID int64) error
	ActiveRoom() int64
	Transcript(roomID int64) []models.Message
	LoadHistory(ctx context.Context, roomID int64, page int) (int, error)
	Typing(roomID int64) []models.TypingSignal
	MarkRead(ctx context.Context, roomID, messageID int64) (*chat.ReadCommand, error)
	Send(ctx context.Context, text string) (*models.Message, error)
	KeyStroke(ctx context.Context) error
	ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error
	ConnectionState() realtime.State
	LoggedIn(ctx context.Context) bool
}

type Handler struct {
	Chat      ChatService
	Localizer *localization.Localizer
	Lang      string
	// Events serves GET /events when set.
	Events http.HandlerFunc
}

func NewHandler(svc ChatService, localizer *localization.Localizer, lang string) *Handler {
	return &Handler{Chat: svc, Localizer: localizer, Lang: lang}
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/status", h.GetStatus)

	r.GET("/rooms", h.ListRooms)
	r.POST("/rooms/refresh", h.RefreshRooms)
	r.POST("/properties/:propertyId/chat", h.OpenPropertyChat)
	r.POST("/rooms/:roomId/activate", h.ActivateRoom)
	r.GET("/rooms/:roomId/messages", h.GetTranscript)
	r.POST("/rooms/:roomId/history", h.LoadHistory)
	r.GET("/rooms/:roomId/typing", h.GetTyping)
	r.PATCH("/rooms/:roomId/messages/:messageId/read", h.MarkRead)

	r.POST("/messages", h.SendMessage)
	r.POST("/typing", h.KeyStroke)
	r.POST("/visits", h.ScheduleVisit)

	if h.Events != nil {
		r.GET("/events", gin.WrapF(h.Events))
	}
}

func (h *Handler) GetStatus(c *gin.Context) {
	state := h.Chat.ConnectionState()
	c.JSON(http.StatusOK, gin.H{
		"connection": state.String(),
		"label":      h.text("status." + state.String()),
		"activeRoom": h.Chat.ActiveRoom(),
		"loggedIn":   h.Chat.LoggedIn(c.Request.Context()),
	})
}

func (h *Handler) text(key string) string {
	if h.Localizer == nil {
		return key
	}
	return h.Localizer.GetString(h.Lang, key)
}
