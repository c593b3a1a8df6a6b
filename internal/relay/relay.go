package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	"github.com/fleetdesk/whatsapp-gateway/internal/mediastore"
	"github.com/fleetdesk/whatsapp-gateway/internal/waclient"
	"github.com/google/uuid"
)

// Marker records which message ids were already forwarded. The
// connstate repository satisfies this against redis.
type Marker interface {
	MarkRelayed(ctx context.Context, msgID string, at time.Time) error
	RecentlyRelayed(ctx context.Context, msgID string) (bool, error)
}

// Relay forwards inbound messages to the application webhook. A single
// consumer goroutine drains the queue, so envelopes leave in the order
// the client emitted them; a slow media download delays later messages'
// forwarding but never their receipt.
type Relay struct {
	store        *mediastore.Store
	marker       Marker
	logger       *slog.Logger
	webhookURL   string
	webhookToken string
	httpClient   *http.Client

	queue chan job
	done  chan struct{}
	wg    sync.WaitGroup
}

type job struct {
	msg waclient.MessageEvent
	to  string
}

func NewRelay(store *mediastore.Store, marker Marker, logger *slog.Logger, webhookURL, webhookToken string) *Relay {
	r := &Relay{
		store:        store,
		marker:       marker,
		logger:       logger,
		webhookURL:   webhookURL,
		webhookToken: webhookToken,
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
		queue: make(chan job, 256),
		done:  make(chan struct{}),
	}

	r.wg.Add(1)
	go r.consume()

	return r
}

// Enqueue hands a message to the relay. A full queue drops the message
// rather than blocking the session event loop.
func (r *Relay) Enqueue(msg waclient.MessageEvent, connectedNumber string) {
	select {
	case r.queue <- job{msg: msg, to: connectedNumber}:
	default:
		r.logger.Error("relay queue full, dropping message", slog.String("messageId", msg.ID))
	}
}

func (r *Relay) consume() {
	defer r.wg.Done()
	for {
		select {
		case j := <-r.queue:
			r.process(context.Background(), j)
		case <-r.done:
			return
		}
	}
}

func (r *Relay) process(ctx context.Context, j job) {
	msgLogger := r.logger.With(slog.String("messageId", j.msg.ID))

	if r.marker != nil {
		if relayed, err := r.marker.RecentlyRelayed(ctx, j.msg.ID); err == nil && relayed {
			msgLogger.Info("message already relayed, skipping")
			return
		}
	}

	env := domain.InboundEnvelope{
		From:      j.msg.From,
		To:        j.to,
		Body:      j.msg.Body,
		Timestamp: j.msg.Timestamp,
		Type:      j.msg.Type,
		ID:        j.msg.ID,
		HasMedia:  j.msg.HasMedia,
	}

	if j.msg.HasMedia {
		r.attachMedia(ctx, &env, j.msg, msgLogger)
	}

	if err := r.forward(ctx, env); err != nil {
		msgLogger.Error("failed to forward message to webhook", "error", err.Error())
		return
	}
	msgLogger.Info("message forwarded", slog.String("type", env.Type), slog.Bool("hasMedia", env.HasMedia))

	if r.marker != nil {
		if err := r.marker.MarkRelayed(ctx, j.msg.ID, time.Now().UTC()); err != nil {
			msgLogger.Error("failed to mark message as relayed", "error", err.Error())
		}
	}
}

// attachMedia downloads and stores the payload, filling MediaInfo on
// success or MediaError on failure. Either way the envelope is
// forwarded: media failure never blocks delivery of the metadata.
func (r *Relay) attachMedia(ctx context.Context, env *domain.InboundEnvelope, msg waclient.MessageEvent, logger *slog.Logger) {
	if msg.Download == nil {
		env.MediaError = "no media downloader available"
		return
	}

	data, err := msg.Download(ctx)
	if err != nil {
		env.MediaError = fmt.Sprintf("failed to download media: %v", err)
		logger.Error("media download failed", "error", err.Error())
		return
	}

	name, err := r.store.SaveInbound(msg.ID, msg.Mimetype, data)
	if err != nil {
		env.MediaError = fmt.Sprintf("failed to store media: %v", err)
		logger.Error("media store failed", "error", err.Error())
		return
	}

	info := &domain.MediaInfo{
		FileName: name,
		Mimetype: msg.Mimetype,
		Filesize: len(data),
		Caption:  msg.Caption,
	}

	if strings.HasPrefix(msg.Mimetype, "image/") {
		thumb, err := r.store.SaveThumbnail(name, data)
		if err != nil {
			// Non-fatal: the envelope just goes out without a thumbnail.
			logger.Error("thumbnail generation failed", "error", err.Error())
		} else {
			info.Thumbnail = thumb
		}
	}

	env.MediaInfo = info
}

func (r *Relay) forward(ctx context.Context, env domain.InboundEnvelope) error {
	jsonPayload, err := json.Marshal(env)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.webhookURL, bytes.NewBuffer(jsonPayload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+r.webhookToken)
	req.Header.Add("X-Request-ID", uuid.NewString())

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("webhook responded with status %d", resp.StatusCode)
	}
	return nil
}

// Close drains nothing: pending queue entries are dropped, matching the
// at-most-once delivery contract.
func (r *Relay) Close() {
	close(r.done)
	r.wg.Wait()
}
