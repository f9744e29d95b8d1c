package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type sendRequest struct {
	Text string `json:"text" binding:"required"`
}

type visitRequest struct {
	PropertyID int64     `json:"propertyId" binding:"required"`
	VisitAt    time.Time `json:"visitAt" binding:"required"`
	Note       string    `json:"note"`
}

func (h *Handler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	msg, err := h.Chat.Send(c.Request.Context(), req.Text)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (h *Handler) KeyStroke(c *gin.Context) {
	if err := h.Chat.KeyStroke(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkRead(c *gin.Context) {
	roomID, ok := h.idParam(c, "roomId")
	if !ok {
		return
	}
	messageID, ok := h.idParam(c, "messageId")
	if !ok {
		return
	}

	cmd, err := h.Chat.MarkRead(c.Request.Context(), roomID, messageID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cmd)
}

func (h *Handler) ScheduleVisit(c *gin.Context) {
	var req visitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c)
		return
	}
	if err := h.Chat.ScheduleVisit(c.Request.Context(), req.PropertyID, req.VisitAt, req.Note); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusCreated)
}
