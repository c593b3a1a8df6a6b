package waclient

import (
	"context"
	"time"
)

// Event is a tagged variant emitted by a Client into the session
// manager's event channel. Driving the manager through a plain channel
// keeps the state machine testable without a live WhatsApp connection.
type Event interface {
	sessionEvent()
}

// QREvent carries a fresh pairing code. Codes expire and the underlying
// library re-emits them; each emission replaces the previous one.
type QREvent struct {
	Code    string
	Timeout time.Duration
}

// ConnectedEvent signals an authenticated, ready session.
type ConnectedEvent struct {
	Number string
}

// DisconnectedEvent signals a dropped connection.
type DisconnectedEvent struct {
	Reason string
}

// AuthFailureEvent signals that the session credentials are no longer
// valid and re-pairing is required.
type AuthFailureEvent struct {
	Message string
}

// MessageEvent is an inbound message. Download is non-nil only when
// HasMedia is true and fetches the decrypted media payload.
type MessageEvent struct {
	ID        string
	From      string
	Body      string
	Timestamp int64
	Type      string
	HasMedia  bool
	FileName  string
	Mimetype  string
	Filesize  int
	Caption   string
	Download  func(ctx context.Context) ([]byte, error)
}

func (QREvent) sessionEvent()           {}
func (ConnectedEvent) sessionEvent()    {}
func (DisconnectedEvent) sessionEvent() {}
func (AuthFailureEvent) sessionEvent()  {}
func (MessageEvent) sessionEvent()      {}

// Media is an outbound attachment.
type Media struct {
	Data     []byte
	Mimetype string
	FileName string
	Caption  string
}

// Client is one live messaging-client instance. The session manager
// guarantees at most one exists at a time.
type Client interface {
	// Start opens the local session store and connects, after which the
	// client emits events until Stop is called.
	Start(ctx context.Context) error
	// Stop disconnects and releases the session store. Idempotent.
	Stop()
	// Logout invalidates the server-side session without touching local
	// files.
	Logout(ctx context.Context) error
	SendText(ctx context.Context, phone, body string) (string, error)
	SendMedia(ctx context.Context, phone string, media Media) (string, error)
}

// Factory constructs clients bound to an event channel. The session
// manager owns the channel and the returned client's lifecycle.
type Factory interface {
	New(events chan<- Event) (Client, error)
}
