package models

import (
	"time"

	"github.com/segmentio/ksuid"
)

// Role is derived once at connect time from the handshake auth parameter.
type Role int

const (
	RolePlayer Role = iota
	RoleAdmin
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RolePlayer:
		return "player"
	default:
		return "unknown"
	}
}

// Session describes one connected client
type Session struct {
	ID           string    `json:"id"`
	RemoteAddr   string    `json:"remote_addr"`
	Role         Role      `json:"role"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// NewSession creates session metadata with a fresh KSUID identity.
// KSUIDs sort by creation time, which keeps log output and the registry
// listing in connect order.
func NewSession(remoteAddr string, role Role) *Session {
	now := time.Now()
	return &Session{
		ID:           ksuid.New().String(),
		RemoteAddr:   remoteAddr,
		Role:         role,
		ConnectedAt:  now,
		LastActiveAt: now,
	}
}
