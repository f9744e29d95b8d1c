package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

func (h *Handler) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": h.Chat.Rooms(), "activeRoom": h.Chat.ActiveRoom()})
}

func (h *Handler) RefreshRooms(c *gin.Context) {
	if err := h.Chat.RefreshRooms(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": h.Chat.Rooms()})
}

func (h *Handler) OpenPropertyChat(c *gin.Context) {
	propertyID, ok := h.idParam(c, "propertyId")
	if !ok {
		return
	}
	room, err := h.Chat.OpenRoomForProperty(c.Request.Context(), propertyID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": room, "messages": h.Chat.Transcript(room.ID)})
}

func (h *Handler) ActivateRoom(c *gin.Context) {
	roomID, ok := h.idParam(c, "roomId")
	if !ok {
		return
	}
	if err := h.Chat.ActivateRoom(c.Request.Context(), roomID); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "messages": h.Chat.Transcript(roomID)})
}

func (h *Handler) GetTranscript(c *gin.Context) {
	roomID, ok := h.idParam(c, "roomId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "messages": h.Chat.Transcript(roomID)})
}

func (h *Handler) LoadHistory(c *gin.Context) {
	roomID, ok := h.idParam(c, "roomId")
	if !ok {
		return
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		h.badRequest(c)
		return
	}

	added, err := h.Chat.LoadHistory(c.Request.Context(), roomID, page)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "page": page, "added": added, "messages": h.Chat.Transcript(roomID)})
}

func (h *Handler) GetTyping(c *gin.Context) {
	roomID, ok := h.idParam(c, "roomId")
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"roomId": roomID, "typing": h.Chat.Typing(roomID)})
}
