package handler

import (
	"errors"
	"log"
	"net/http"
	"net/url"
	"strconv"

	"nearprop/chat/internal/chat"
	"nearprop/chat/internal/gateway"

	"github.com/gin-gonic/gin"
)

// fail maps an operation error to a status and a localized message.
func (h *Handler) fail(c *gin.Context, err error) {
	status, key := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("ERROR: %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": h.text(key)})
}

func classify(err error) (int, string) {
	var apiErr *gateway.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, chat.ErrLoginRequired), errors.Is(err, gateway.ErrUnauthorized):
		return http.StatusUnauthorized, "error.login_required"
	case errors.Is(err, chat.ErrStaleRoom):
		return http.StatusConflict, "error.stale_room"
	case errors.Is(err, chat.ErrNoActiveRoom):
		return http.StatusBadRequest, "error.no_active_room"
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, "error.empty_message"
	case errors.Is(err, chat.ErrInvalidProperty):
		return http.StatusBadRequest, "error.invalid_property"
	case errors.Is(err, chat.ErrInvalidVisit):
		return http.StatusBadRequest, "error.invalid_visit"
	case errors.As(err, &apiErr), errors.As(err, &urlErr):
		return http.StatusBadGateway, "error.gateway"
	}
	return http.StatusInternalServerError, "error.internal"
}

func (h *Handler) badRequest(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": h.text("error.invalid_request")})
}

// idParam reads a positive integer path parameter.
func (h *Handler) idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		h.badRequest(c)
		return 0, false
	}
	return id, true
}
