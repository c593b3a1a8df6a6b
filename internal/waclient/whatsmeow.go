package waclient

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"
)

// MeowFactory builds whatsmeow-backed clients whose session credentials
// live in a sqlite store under SessionDir. Deleting the directory
// forces re-pairing via a fresh QR code.
type MeowFactory struct {
	SessionDir string
	Logger     *slog.Logger
}

func (f *MeowFactory) New(eventsCh chan<- Event) (Client, error) {
	if f.SessionDir == "" {
		return nil, fmt.Errorf("session directory is not configured")
	}
	return &meowClient{
		sessionDir: f.SessionDir,
		logger:     f.Logger,
		events:     eventsCh,
		stopped:    make(chan struct{}),
	}, nil
}

type meowClient struct {
	sessionDir string
	logger     *slog.Logger
	events     chan<- Event

	stopped  chan struct{}
	stopOnce sync.Once

	mu        sync.Mutex
	container *sqlstore.Container
	cli       *whatsmeow.Client
	handlerID uint32
}

func (c *meowClient) Start(ctx context.Context) error {
	if err := os.MkdirAll(c.sessionDir, 0o755); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(c.sessionDir, "session.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Noop)
	if err != nil {
		return fmt.Errorf("failed to open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		container.Close()
		return fmt.Errorf("failed to load device store: %w", err)
	}

	cli := whatsmeow.NewClient(device, waLog.Noop)
	// The handler closes over its own client handle; Stop nils the
	// shared fields while dispatches may still be in flight.
	handlerID := cli.AddEventHandler(func(raw any) {
		c.handleEvent(cli, raw)
	})
	c.mu.Lock()
	c.cli = cli
	c.container = container
	c.handlerID = handlerID
	c.mu.Unlock()

	if cli.Store.ID == nil {
		// Not paired yet: the QR channel must be obtained before connecting.
		qrChan, err := cli.GetQRChannel(ctx)
		if err != nil {
			c.Stop()
			return fmt.Errorf("failed to open QR channel: %w", err)
		}
		if err := cli.Connect(); err != nil {
			c.Stop()
			return fmt.Errorf("failed to connect: %w", err)
		}
		go c.pumpQR(qrChan)
		return nil
	}

	if err := cli.Connect(); err != nil {
		c.Stop()
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *meowClient) Stop() {
	// Unblocks any emit parked on a full channel first, so pending
	// event dispatches and the QR pump can finish.
	c.stopOnce.Do(func() { close(c.stopped) })

	c.mu.Lock()
	cli := c.cli
	container := c.container
	handlerID := c.handlerID
	c.cli = nil
	c.container = nil
	c.mu.Unlock()

	if cli != nil {
		cli.RemoveEventHandler(handlerID)
		cli.Disconnect()
	}
	if container != nil {
		container.Close()
	}
}

func (c *meowClient) handle() (*whatsmeow.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli == nil {
		return nil, fmt.Errorf("client is not started")
	}
	return c.cli, nil
}

// emit forwards an event unless the client was stopped; a stopped
// client never blocks on a full channel.
func (c *meowClient) emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.stopped:
	}
}

func (c *meowClient) Logout(ctx context.Context) error {
	cli, err := c.handle()
	if err != nil {
		return err
	}
	return cli.Logout(ctx)
}

// pumpQR translates QR channel items into session events. The library
// re-emits codes until pairing succeeds or times out.
func (c *meowClient) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.emit(QREvent{Code: item.Code, Timeout: item.Timeout})
		case "success":
			// events.Connected follows on the main handler.
		case "timeout":
			c.emit(DisconnectedEvent{Reason: "qr pairing timed out"})
		default:
			c.emit(AuthFailureEvent{Message: fmt.Sprintf("qr pairing failed: %s", item.Event)})
		}
	}
}

func (c *meowClient) handleEvent(cli *whatsmeow.Client, raw any) {
	switch evt := raw.(type) {
	case *events.Connected:
		number := ""
		if cli.Store.ID != nil {
			number = cli.Store.ID.User
		}
		c.emit(ConnectedEvent{Number: number})
	case *events.Disconnected:
		c.emit(DisconnectedEvent{Reason: "connection closed"})
	case *events.StreamReplaced:
		c.emit(DisconnectedEvent{Reason: "stream replaced by another client"})
	case *events.LoggedOut:
		c.emit(AuthFailureEvent{Message: fmt.Sprintf("logged out by server: %v", evt.Reason)})
	case *events.Message:
		if msg := c.translateMessage(cli, evt); msg != nil {
			c.emit(*msg)
		}
	}
}

// translateMessage flattens a whatsmeow message event into the
// gateway's normalized form. Messages sent by the account itself are
// dropped.
func (c *meowClient) translateMessage(cli *whatsmeow.Client, evt *events.Message) *MessageEvent {
	if evt.Info.IsFromMe {
		return nil
	}

	msg := MessageEvent{
		ID:        evt.Info.ID,
		From:      evt.Info.Sender.String(),
		Timestamp: evt.Info.Timestamp.Unix(),
		Type:      "text",
	}

	content := evt.Message
	if content == nil {
		return &msg
	}

	switch {
	case content.GetImageMessage() != nil:
		img := content.GetImageMessage()
		msg.Type = "image"
		msg.HasMedia = true
		msg.Mimetype = img.GetMimetype()
		msg.Filesize = int(img.GetFileLength())
		msg.Caption = img.GetCaption()
		msg.Body = img.GetCaption()
		msg.Download = func(ctx context.Context) ([]byte, error) {
			return cli.Download(ctx, img)
		}
	case content.GetVideoMessage() != nil:
		vid := content.GetVideoMessage()
		msg.Type = "video"
		msg.HasMedia = true
		msg.Mimetype = vid.GetMimetype()
		msg.Filesize = int(vid.GetFileLength())
		msg.Caption = vid.GetCaption()
		msg.Body = vid.GetCaption()
		msg.Download = func(ctx context.Context) ([]byte, error) {
			return cli.Download(ctx, vid)
		}
	case content.GetAudioMessage() != nil:
		aud := content.GetAudioMessage()
		msg.Type = "audio"
		msg.HasMedia = true
		msg.Mimetype = aud.GetMimetype()
		msg.Filesize = int(aud.GetFileLength())
		msg.Download = func(ctx context.Context) ([]byte, error) {
			return cli.Download(ctx, aud)
		}
	case content.GetDocumentMessage() != nil:
		doc := content.GetDocumentMessage()
		msg.Type = "document"
		msg.HasMedia = true
		msg.Mimetype = doc.GetMimetype()
		msg.Filesize = int(doc.GetFileLength())
		msg.FileName = doc.GetFileName()
		msg.Caption = doc.GetCaption()
		msg.Body = doc.GetCaption()
		msg.Download = func(ctx context.Context) ([]byte, error) {
			return cli.Download(ctx, doc)
		}
	case content.GetConversation() != "":
		msg.Body = content.GetConversation()
	case content.GetExtendedTextMessage() != nil:
		msg.Body = content.GetExtendedTextMessage().GetText()
	}

	return &msg
}

func (c *meowClient) SendText(ctx context.Context, phone, body string) (string, error) {
	cli, err := c.handle()
	if err != nil {
		return "", err
	}
	jid, err := RecipientJID(phone)
	if err != nil {
		return "", err
	}
	resp, err := cli.SendMessage(ctx, jid, &waE2E.Message{
		Conversation: proto.String(body),
	})
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (c *meowClient) SendMedia(ctx context.Context, phone string, media Media) (string, error) {
	cli, err := c.handle()
	if err != nil {
		return "", err
	}
	jid, err := RecipientJID(phone)
	if err != nil {
		return "", err
	}

	mediaType := uploadType(media.Mimetype)
	uploaded, err := cli.Upload(ctx, media.Data, mediaType)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}

	msg := &waE2E.Message{}
	switch mediaType {
	case whatsmeow.MediaImage:
		msg.ImageMessage = &waE2E.ImageMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(media.Mimetype),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}
	case whatsmeow.MediaVideo:
		msg.VideoMessage = &waE2E.VideoMessage{
			Caption:       proto.String(media.Caption),
			Mimetype:      proto.String(media.Mimetype),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}
	case whatsmeow.MediaAudio:
		msg.AudioMessage = &waE2E.AudioMessage{
			Mimetype:      proto.String(media.Mimetype),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}
	default:
		msg.DocumentMessage = &waE2E.DocumentMessage{
			Caption:       proto.String(media.Caption),
			FileName:      proto.String(media.FileName),
			Mimetype:      proto.String(media.Mimetype),
			URL:           &uploaded.URL,
			DirectPath:    &uploaded.DirectPath,
			MediaKey:      uploaded.MediaKey,
			FileEncSHA256: uploaded.FileEncSHA256,
			FileSHA256:    uploaded.FileSHA256,
			FileLength:    &uploaded.FileLength,
		}
	}

	resp, err := cli.SendMessage(ctx, jid, msg)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RecipientJID normalizes a phone number to a WhatsApp user JID,
// appending the user-server suffix when no server part is present.
func RecipientJID(phone string) (types.JID, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return types.JID{}, fmt.Errorf("phone number is empty")
	}
	if !strings.ContainsRune(phone, '@') {
		phone = phone + "@" + types.DefaultUserServer
	}
	return types.ParseJID(phone)
}

func uploadType(mimetype string) whatsmeow.MediaType {
	switch {
	case strings.HasPrefix(mimetype, "image/"):
		return whatsmeow.MediaImage
	case strings.HasPrefix(mimetype, "video/"):
		return whatsmeow.MediaVideo
	case strings.HasPrefix(mimetype, "audio/"):
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}
