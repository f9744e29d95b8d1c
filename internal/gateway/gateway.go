// Package gateway is the REST side of the chat: stateless calls against the
// marketplace backend, authenticated with the session's bearer token.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nearprop/chat/internal/models"
)

// ErrUnauthorized matches any 401 from the backend.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("gateway: backend returned %d", e.Status)
	}
	return fmt.Sprintf("gateway: backend returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

// SessionSource supplies the bearer token and the viewer identity used to
// resolve room counterparts.
type SessionSource interface {
	Current(ctx context.Context) (*models.Session, error)
}

// Client talks to the chat REST endpoints. It holds no state across calls.
type Client struct {
	BaseURL  string
	HTTP     *http.Client
	Sessions SessionSource
}

func NewClient(baseURL string, timeout time.Duration, sessions SessionSource) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: timeout},
		Sessions: sessions,
	}
}

// ListRooms enumerates the viewer's rooms.
func (c *Client) ListRooms(ctx context.Context) ([]models.ChatRoom, error) {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	var payloads []models.RoomPayload
	if err := c.do(ctx, sess, http.MethodGet, "/chat/rooms", nil, &payloads); err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	rooms := make([]models.ChatRoom, 0, len(payloads))
	for i := range payloads {
		rooms = append(rooms, payloads[i].ToChatRoom(sess))
	}
	return rooms, nil
}

// CreateRoom starts a room with the owner of a property.
func (c *Client) CreateRoom(ctx context.Context, propertyID int64) (*models.ChatRoom, error) {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]int64{"propertyId": propertyID}
	var payload models.RoomPayload
	if err := c.do(ctx, sess, http.MethodPost, "/chat/rooms", body, &payload); err != nil {
		return nil, fmt.Errorf("create room for property %d: %w", propertyID, err)
	}
	room := payload.ToChatRoom(sess)
	if room.PropertyID == 0 {
		room.PropertyID = propertyID
	}
	return &room, nil
}

// GetRoom refreshes one room.
func (c *Client) GetRoom(ctx context.Context, roomID int64) (*models.ChatRoom, error) {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	var payload models.RoomPayload
	if err := c.do(ctx, sess, http.MethodGet, "/chat/rooms/"+id(roomID), nil, &payload); err != nil {
		return nil, fmt.Errorf("get room %d: %w", roomID, err)
	}
	room := payload.ToChatRoom(sess)
	return &room, nil
}

// ListMessages fetches one page of a room's history.
func (c *Client) ListMessages(ctx context.Context, roomID int64, page, size int) ([]models.Message, error) {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	path := "/chat/rooms/" + id(roomID) + "/messages?" + q.Encode()

	var msgs []models.Message
	if err := c.do(ctx, sess, http.MethodGet, path, nil, &msgs); err != nil {
		return nil, fmt.Errorf("list messages of room %d: %w", roomID, err)
	}
	for i := range msgs {
		fillMessage(&msgs[i], roomID, sess)
	}
	return msgs, nil
}

// SendMessage posts a message and returns the server-confirmed copy.
func (c *Client) SendMessage(ctx context.Context, roomID int64, content string) (*models.Message, error) {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return nil, err
	}
	body := map[string]string{"content": content}
	var msg models.Message
	if err := c.do(ctx, sess, http.MethodPost, "/chat/rooms/"+id(roomID)+"/messages", body, &msg); err != nil {
		return nil, fmt.Errorf("send message to room %d: %w", roomID, err)
	}
	fillMessage(&msg, roomID, sess)
	msg.Mine = true
	return &msg, nil
}

// MarkRead sets a message's status to READ.
func (c *Client) MarkRead(ctx context.Context, roomID, messageID int64) error {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return err
	}
	body := map[string]interface{}{"status": models.StatusRead, "roomId": roomID}
	if err := c.do(ctx, sess, http.MethodPatch, "/chat/messages/"+id(messageID)+"/status", body, nil); err != nil {
		return fmt.Errorf("mark message %d read: %w", messageID, err)
	}
	return nil
}

// ScheduleVisit books a site visit for a property.
func (c *Client) ScheduleVisit(ctx context.Context, propertyID int64, at time.Time, note string) error {
	sess, err := c.Sessions.Current(ctx)
	if err != nil {
		return err
	}
	body := map[string]interface{}{
		"propertyId": propertyID,
		"visitAt":    at.UTC().Format(time.RFC3339),
		"note":       note,
	}
	if err := c.do(ctx, sess, http.MethodPost, "/visits", body, nil); err != nil {
		return fmt.Errorf("schedule visit for property %d: %w", propertyID, err)
	}
	return nil
}

// fillMessage completes fields that history pages and send responses omit.
func fillMessage(msg *models.Message, roomID int64, sess *models.Session) {
	if msg.RoomID == 0 {
		msg.RoomID = roomID
	}
	if msg.SenderID == 0 && msg.Mine {
		msg.SenderID = sess.UserID
	}
	if msg.SenderID != 0 && msg.SenderID == sess.UserID {
		msg.Mine = true
	}
	if !msg.Status.Valid() {
		msg.Status = models.StatusSent
	}
}

func id(v int64) string { return strconv.FormatInt(v, 10) }

// do sends one JSON request. out may be nil when only success matters.
func (c *Client) do(ctx context.Context, sess *models.Session, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return json.Unmarshal(unwrap(data), out)
}
