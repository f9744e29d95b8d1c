package models

import (
	"encoding/json"
	"time"
)

// ChatRoom represents a conversation between one property viewer and the
// property owner. Exactly one room is expected per (viewer, property) pair.
// The client keeps rooms as a cache; the backend is authoritative.
type ChatRoom struct {
	// ID is the server-assigned room identifier.
	ID int64 `gorm:"primaryKey;autoIncrement:false" json:"id"`
	// CounterpartName is the display name of the other participant.
	CounterpartName string `json:"counterpartName"`
	// CounterpartAvatar is an avatar URL of the other participant.
	CounterpartAvatar string `json:"counterpartAvatar"`
	// PropertyID is the listing this conversation is about.
	PropertyID int64 `gorm:"index" json:"propertyId"`
	// DistrictLabel is the district of the listing, shown under the name.
	DistrictLabel string `json:"districtLabel"`
	// UnreadCount is the number of messages the viewer has not read.
	UnreadCount int `json:"unreadCount"`
	// LastMessage is a preview of the latest message in the room.
	LastMessage string `json:"lastMessage"`
	// UpdatedAt is maintained by gorm for the local mirror.
	UpdatedAt time.Time `json:"-"`
}

// RoomPayload is the wire shape of a room returned by the chat backend.
type RoomPayload struct {
	ID       int64        `json:"id"`
	Seller   *Participant `json:"seller"`
	Buyer    *Participant `json:"buyer"`
	Property *struct {
		ID           int64  `json:"id"`
		DistrictName string `json:"districtName"`
	} `json:"property"`
	UnreadCount int             `json:"unreadCount"`
	LastMessage json.RawMessage `json:"lastMessage"`
}

// ToChatRoom resolves the counterpart from the viewer's point of view: the
// seller when the viewer is the buyer, the buyer otherwise.
func (p *RoomPayload) ToChatRoom(viewer *Session) ChatRoom {
	room := ChatRoom{
		ID:          p.ID,
		UnreadCount: p.UnreadCount,
		LastMessage: previewText(p.LastMessage),
	}
	if p.Property != nil {
		room.PropertyID = p.Property.ID
		room.DistrictLabel = p.Property.DistrictName
	}

	counterpart := p.Seller
	if viewer != nil && p.Seller != nil && p.Buyer != nil {
		switch {
		case p.Seller.ID != 0 && p.Seller.ID == viewer.UserID:
			counterpart = p.Buyer
		case p.Buyer.ID == 0 && p.Seller.ID == 0 && viewer.IsSeller():
			counterpart = p.Buyer
		}
	} else if counterpart == nil {
		counterpart = p.Buyer
	}
	room.CounterpartName = counterpart.DisplayName()
	if counterpart != nil {
		room.CounterpartAvatar = counterpart.Avatar
	}
	return room
}

// previewText accepts either a plain string or a message object.
func previewText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var msg struct {
		Content string `json:"content"`
	}
	if err := json.Unmarshal(raw, &msg); err == nil {
		return msg.Content
	}
	return ""
}
