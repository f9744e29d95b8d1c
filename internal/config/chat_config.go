package config

import "time"

const (
	// Realtime channel
	ReconnectDelay   = 5 * time.Second
	HandshakeTimeout = 10 * time.Second
	HeartBeat        = 10 * time.Second
	// Upper bound on waiting for the broker's UNSUBSCRIBE receipt
	UnsubscribeTimeout = 3 * time.Second

	// Typing
	TypingIdleTimeout = 2 * time.Second

	// History
	DefaultPageSize = 20

	// Persisted storage keys
	SessionKey  = "nearprop.session"
	LastRoomKey = "nearprop.lastChatRoom"

	// Broker destinations
	RoomTopicPattern   = "/topic/chat/%d"
	TypingDestPattern  = "/app/chat/%d/typing"
	TokenQueryParam    = "token"
	DefaultListenAddr  = "127.0.0.1:8090"
	DefaultStorageDSN  = "sqlite://nearprop-chat.db"
	DefaultHTTPTimeout = 15 * time.Second
)
