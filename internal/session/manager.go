package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	"github.com/fleetdesk/whatsapp-gateway/internal/waclient"
)

// ErrNotConnected is returned by send operations while no authenticated
// session is available.
var ErrNotConnected = errors.New("client not connected")

// Publisher mirrors connection snapshots to external state. Publish
// must not block the caller on failure; errors are the publisher's to
// log.
type Publisher interface {
	Publish(ctx context.Context, snap domain.ConnectionSnapshot)
}

// MessageSink receives inbound messages for relaying. Enqueue must be
// fast; the sink owns its own delivery ordering.
type MessageSink interface {
	Enqueue(msg waclient.MessageEvent, connectedNumber string)
}

type Options struct {
	Factory        waclient.Factory
	Publisher      Publisher
	Sink           MessageSink
	Logger         *slog.Logger
	SessionDir     string
	ReconnectDelay time.Duration
	InitRetryDelay time.Duration
	ResetDelay     time.Duration
}

// Manager owns the single messaging-client instance and its lifecycle
// state machine. All mutation funnels through the manager's mutex and
// its event loop, so at most one client exists at any time.
type Manager struct {
	factory        waclient.Factory
	publisher      Publisher
	sink           MessageSink
	logger         *slog.Logger
	sessionDir     string
	reconnectDelay time.Duration
	initRetryDelay time.Duration
	resetDelay     time.Duration

	// startMu serializes client construction so two Start windows can
	// never overlap, even when a reset races a pending reconnect.
	startMu sync.Mutex

	mtx              sync.Mutex
	state            domain.SessionState
	client           waclient.Client
	generation       uint64
	qrCode           string
	connectedNumber  string
	disconnectReason string
	authFailure      string
	lastConnectionAt *time.Time
	manualDisconnect bool

	events chan waclient.Event
	pubCh  chan domain.ConnectionSnapshot
	done   chan struct{}
	wg     sync.WaitGroup
}

const publishTimeout = 5 * time.Second

func NewManager(opts Options) *Manager {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.InitRetryDelay <= 0 {
		opts.InitRetryDelay = 10 * time.Second
	}
	if opts.ResetDelay <= 0 {
		opts.ResetDelay = 2 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	m := &Manager{
		factory:        opts.Factory,
		publisher:      opts.Publisher,
		sink:           opts.Sink,
		logger:         opts.Logger,
		sessionDir:     opts.SessionDir,
		reconnectDelay: opts.ReconnectDelay,
		initRetryDelay: opts.InitRetryDelay,
		resetDelay:     opts.ResetDelay,
		state:          domain.StateUninitialized,
		events:         make(chan waclient.Event, 64),
		pubCh:          make(chan domain.ConnectionSnapshot, 64),
		done:           make(chan struct{}),
	}

	m.wg.Add(2)
	go m.run()
	go m.publishLoop()

	return m
}

func (m *Manager) run() {
	defer m.wg.Done()
	for {
		select {
		case ev := <-m.events:
			m.apply(ev)
		case <-m.done:
			return
		}
	}
}

// apply is the single transition function consuming client events.
func (m *Manager) apply(ev waclient.Event) {
	switch ev := ev.(type) {
	case waclient.QREvent:
		m.mtx.Lock()
		m.state = domain.StateAwaitingQR
		m.qrCode = ev.Code
		m.connectedNumber = ""
		m.mtx.Unlock()
		m.logger.Info("pairing code refreshed", "expiresIn", ev.Timeout.String())
		m.publish()

	case waclient.ConnectedEvent:
		now := time.Now().UTC()
		m.mtx.Lock()
		m.state = domain.StateReady
		m.qrCode = ""
		m.connectedNumber = ev.Number
		m.lastConnectionAt = &now
		m.disconnectReason = ""
		m.authFailure = ""
		m.mtx.Unlock()
		m.logger.Info("session ready", "number", ev.Number)
		m.publish()

	case waclient.DisconnectedEvent:
		m.mtx.Lock()
		if m.state == domain.StateAuthFailed {
			// Auth failure is sticky until an explicit reset.
			m.mtx.Unlock()
			return
		}
		m.state = domain.StateDisconnected
		m.qrCode = ""
		m.connectedNumber = ""
		m.disconnectReason = ev.Reason
		manual := m.manualDisconnect
		m.mtx.Unlock()
		m.logger.Warn("session disconnected", "reason", ev.Reason, "manual", manual)
		m.publish()
		m.teardownClient()
		if !manual {
			m.scheduleInitialize(m.reconnectDelay)
		}

	case waclient.AuthFailureEvent:
		m.mtx.Lock()
		m.state = domain.StateAuthFailed
		m.qrCode = ""
		m.connectedNumber = ""
		m.authFailure = ev.Message
		m.mtx.Unlock()
		m.logger.Error("authentication failed", "message", ev.Message)
		m.publish()
		m.teardownClient()
		// No automatic retry from auth failure; recovery requires an
		// explicit session reset.

	case waclient.MessageEvent:
		if m.sink != nil {
			m.sink.Enqueue(ev, m.ConnectedNumber())
		}
	}
}

// Initialize starts a client unless one already exists or another
// initialization is in flight; concurrent requests coalesce into one.
// While the state is auth-failed it does nothing, so a reconnect timer
// scheduled before the failure cannot restart the session behind
// Reset's back.
func (m *Manager) Initialize() {
	m.mtx.Lock()
	if m.state == domain.StateInitializing || m.state == domain.StateAuthFailed || m.client != nil {
		m.mtx.Unlock()
		return
	}
	m.state = domain.StateInitializing
	m.qrCode = ""
	m.disconnectReason = ""
	m.authFailure = ""
	m.manualDisconnect = false
	m.generation++
	gen := m.generation
	m.mtx.Unlock()

	m.logger.Info("initializing session")
	m.publish()

	go m.startClient(gen)
}

func (m *Manager) startClient(gen uint64) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	m.mtx.Lock()
	stale := m.generation != gen
	m.mtx.Unlock()
	if stale {
		return
	}

	cli, err := m.factory.New(m.events)
	if err == nil {
		err = cli.Start(context.Background())
	}
	if err != nil {
		m.mtx.Lock()
		if m.generation == gen && m.state == domain.StateInitializing {
			m.state = domain.StateUninitialized
		}
		m.mtx.Unlock()
		m.logger.Error("session initialization failed", "error", err.Error())
		m.scheduleInitialize(m.initRetryDelay)
		return
	}

	m.mtx.Lock()
	if m.generation != gen {
		// A reset raced with this start; the newer generation wins.
		m.mtx.Unlock()
		cli.Stop()
		return
	}
	m.client = cli
	m.mtx.Unlock()
}

// Reset tears down the current client, deletes the local session
// directory, and schedules a fresh initialization.
func (m *Manager) Reset() error {
	m.mtx.Lock()
	m.generation++
	cli := m.client
	m.client = nil
	m.state = domain.StateUninitialized
	m.qrCode = ""
	m.connectedNumber = ""
	m.disconnectReason = ""
	m.authFailure = ""
	m.manualDisconnect = true
	m.mtx.Unlock()

	if cli != nil {
		cli.Stop()
	}
	if m.sessionDir != "" {
		if err := os.RemoveAll(m.sessionDir); err != nil {
			m.logger.Error("failed to delete session directory", "error", err.Error())
		}
	}

	m.logger.Info("session reset; re-initializing shortly")
	m.publish()
	m.scheduleInitialize(m.resetDelay)
	return nil
}

// Disconnect logs out the current session. Local session files are
// kept; auto-reconnect is suppressed until the next initialization.
func (m *Manager) Disconnect(ctx context.Context) error {
	m.mtx.Lock()
	cli := m.client
	if cli == nil {
		m.mtx.Unlock()
		return ErrNotConnected
	}
	m.manualDisconnect = true
	m.mtx.Unlock()

	if err := cli.Logout(ctx); err != nil {
		return err
	}
	m.events <- waclient.DisconnectedEvent{Reason: "manual disconnect"}
	return nil
}

func (m *Manager) scheduleInitialize(delay time.Duration) {
	time.AfterFunc(delay, func() {
		select {
		case <-m.done:
		default:
			m.Initialize()
		}
	})
}

func (m *Manager) teardownClient() {
	m.mtx.Lock()
	cli := m.client
	m.client = nil
	m.mtx.Unlock()
	if cli != nil {
		cli.Stop()
	}
}

// publish queues the current snapshot for the publisher goroutine. A
// single consumer delivers snapshots in queue order, so a straggling
// write can never overwrite a newer one in the connection row.
func (m *Manager) publish() {
	if m.publisher == nil {
		return
	}
	snap := m.Snapshot()
	for {
		select {
		case m.pubCh <- snap:
			return
		default:
		}
		// Full queue: discard the oldest pending snapshot so the
		// newest state still reaches the row.
		select {
		case <-m.pubCh:
		default:
		}
	}
}

func (m *Manager) publishLoop() {
	defer m.wg.Done()
	deliver := func(snap domain.ConnectionSnapshot) {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		m.publisher.Publish(ctx, snap)
	}
	for {
		select {
		case snap := <-m.pubCh:
			deliver(snap)
		case <-m.done:
			// Flush whatever is still queued before exiting.
			for {
				select {
				case snap := <-m.pubCh:
					deliver(snap)
				default:
					return
				}
			}
		}
	}
}

// Snapshot returns the current state for publishing and the HTTP layer.
func (m *Manager) Snapshot() domain.ConnectionSnapshot {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return domain.ConnectionSnapshot{
		State:               m.state,
		QRCode:              m.qrCode,
		IsConnected:         m.state == domain.StateReady,
		ConnectedNumber:     m.connectedNumber,
		DisconnectionReason: m.disconnectReason,
		AuthFailureMessage:  m.authFailure,
		LastConnectionAt:    m.lastConnectionAt,
	}
}

// QRCode returns the current pairing payload, if any.
func (m *Manager) QRCode() (string, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.qrCode, m.qrCode != ""
}

func (m *Manager) ConnectedNumber() string {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.connectedNumber
}

func (m *Manager) readyClient() (waclient.Client, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if m.state != domain.StateReady || m.connectedNumber == "" || m.client == nil {
		return nil, ErrNotConnected
	}
	return m.client, nil
}

// SendText dispatches a text message; the session must be ready.
func (m *Manager) SendText(ctx context.Context, phone, body string) (string, error) {
	cli, err := m.readyClient()
	if err != nil {
		return "", err
	}
	return cli.SendText(ctx, phone, body)
}

// SendMedia dispatches a media message; the session must be ready.
func (m *Manager) SendMedia(ctx context.Context, phone string, media waclient.Media) (string, error) {
	cli, err := m.readyClient()
	if err != nil {
		return "", err
	}
	return cli.SendMedia(ctx, phone, media)
}

// Close stops the event loop, flushes queued state publishes and tears
// down any live client. Pending reconnect timers become no-ops.
func (m *Manager) Close() {
	close(m.done)
	m.wg.Wait()
	m.teardownClient()
}
