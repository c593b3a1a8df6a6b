package domain

import (
	"time"
)

// SessionState is the lifecycle state of the managed WhatsApp session.
type SessionState int

const (
	StateUninitialized SessionState = iota
	StateInitializing
	StateAwaitingQR
	StateReady
	StateDisconnected
	StateAuthFailed
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateAwaitingQR:
		return "awaiting_qr"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	case StateAuthFailed:
		return "auth_failed"
	default:
		return "unknown"
	}
}

// ConnectionState is the single persisted row mirroring the gateway's
// session state, keyed by the configured gateway identity.
type ConnectionState struct {
	ID                  string     `gorm:"primaryKey;type:varchar(64)" json:"id"`
	QRCode              *string    `gorm:"type:text" json:"qr_code"`
	IsConnected         bool       `gorm:"not null" json:"is_connected"`
	ConnectedNumber     *string    `gorm:"type:varchar(32)" json:"connected_number"`
	DisconnectionReason *string    `gorm:"type:varchar(255)" json:"disconnection_reason"`
	AuthFailureMessage  *string    `gorm:"type:varchar(255)" json:"auth_failure_message"`
	LastConnectionAt    *time.Time `json:"last_connection_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func (ConnectionState) TableName() string {
	return "connection_config"
}

// ConnectionSnapshot is the in-memory view of the session manager's
// state handed to the publisher and the HTTP layer.
type ConnectionSnapshot struct {
	State               SessionState
	QRCode              string
	IsConnected         bool
	ConnectedNumber     string
	DisconnectionReason string
	AuthFailureMessage  string
	LastConnectionAt    *time.Time
}

// Record converts the snapshot into the persisted row form. Empty
// strings become NULLs and the connected number is cleared whenever the
// session is not connected.
func (s ConnectionSnapshot) Record(id string, now time.Time) ConnectionState {
	rec := ConnectionState{
		ID:               id,
		IsConnected:      s.IsConnected,
		LastConnectionAt: s.LastConnectionAt,
		UpdatedAt:        now,
	}
	if s.QRCode != "" {
		rec.QRCode = &s.QRCode
	}
	if s.IsConnected && s.ConnectedNumber != "" {
		rec.ConnectedNumber = &s.ConnectedNumber
	}
	if s.DisconnectionReason != "" {
		rec.DisconnectionReason = &s.DisconnectionReason
	}
	if s.AuthFailureMessage != "" {
		rec.AuthFailureMessage = &s.AuthFailureMessage
	}
	return rec
}

// MediaInfo describes a stored inbound media file referenced by an
// envelope.
type MediaInfo struct {
	FileName  string `json:"fileName"`
	Mimetype  string `json:"mimetype"`
	Filesize  int    `json:"filesize"`
	Caption   string `json:"caption,omitempty"`
	Thumbnail string `json:"thumbnail,omitempty"`
}

// InboundEnvelope is the normalized inbound message forwarded to the
// application webhook. It is built per event and not retained.
type InboundEnvelope struct {
	From       string     `json:"from"`
	To         string     `json:"to"`
	Body       string     `json:"body"`
	Timestamp  int64      `json:"timestamp"`
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	HasMedia   bool       `json:"hasMedia"`
	MediaInfo  *MediaInfo `json:"mediaInfo,omitempty"`
	MediaError string     `json:"mediaError,omitempty"`
}
