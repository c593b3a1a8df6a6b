package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fleetdesk/whatsapp-gateway/internal/mediastore"
	"github.com/fleetdesk/whatsapp-gateway/internal/waclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type receivedPost struct {
	body   []byte
	header http.Header
}

func newWebhookServer(t *testing.T) (*httptest.Server, chan receivedPost) {
	t.Helper()
	received := make(chan receivedPost, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		received <- receivedPost{body: body, header: r.Header.Clone()}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, received
}

func newTestRelay(t *testing.T, webhookURL string, marker Marker) (*Relay, *mediastore.Store) {
	t.Helper()
	store, err := mediastore.New(t.TempDir())
	require.NoError(t, err)
	r := NewRelay(store, marker, slog.Default(), webhookURL, "test-token")
	t.Cleanup(r.Close)
	return r, store
}

func waitForPost(t *testing.T, received chan receivedPost) receivedPost {
	t.Helper()
	select {
	case p := <-received:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for webhook POST")
		return receivedPost{}
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestTextMessageForwardedOnce(t *testing.T) {
	srv, received := newWebhookServer(t)
	r, _ := newTestRelay(t, srv.URL, nil)

	r.Enqueue(waclient.MessageEvent{
		ID:        "MSG1",
		From:      "556188880000@s.whatsapp.net",
		Body:      "hello",
		Timestamp: 1700000000,
		Type:      "text",
	}, "556199990000")

	post := waitForPost(t, received)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(post.body, &payload))
	assert.Equal(t, "556188880000@s.whatsapp.net", payload["from"])
	assert.Equal(t, "556199990000", payload["to"])
	assert.Equal(t, "hello", payload["body"])
	assert.Equal(t, "text", payload["type"])
	assert.Equal(t, false, payload["hasMedia"])
	assert.NotContains(t, payload, "mediaInfo")
	assert.NotContains(t, payload, "mediaError")

	assert.Equal(t, "Bearer test-token", post.header.Get("Authorization"))
	assert.NotEmpty(t, post.header.Get("X-Request-ID"))

	// Exactly one POST.
	select {
	case <-received:
		t.Fatal("unexpected second webhook POST")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMediaDownloadFailureStillForwards(t *testing.T) {
	srv, received := newWebhookServer(t)
	r, store := newTestRelay(t, srv.URL, nil)

	r.Enqueue(waclient.MessageEvent{
		ID:        "MSG2",
		From:      "556188880000@s.whatsapp.net",
		Body:      "look at this",
		Timestamp: 1700000001,
		Type:      "image",
		HasMedia:  true,
		Mimetype:  "image/jpeg",
		Download: func(ctx context.Context) ([]byte, error) {
			return nil, errors.New("media key expired")
		},
	}, "556199990000")

	post := waitForPost(t, received)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(post.body, &payload))
	assert.Equal(t, "MSG2", payload["id"])
	assert.Equal(t, "look at this", payload["body"])
	assert.Equal(t, "image", payload["type"])
	assert.Contains(t, payload["mediaError"], "media key expired")
	assert.NotContains(t, payload, "mediaInfo")

	// Nothing was left in the store.
	entries, err := os.ReadDir(store.Root())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInboundImageStoredWithThumbnail(t *testing.T) {
	srv, received := newWebhookServer(t)
	r, store := newTestRelay(t, srv.URL, nil)

	data := pngBytes(t, 320, 240)
	r.Enqueue(waclient.MessageEvent{
		ID:        "MSG3",
		From:      "556188880000@s.whatsapp.net",
		Body:      "foto",
		Timestamp: 1700000002,
		Type:      "image",
		HasMedia:  true,
		Mimetype:  "image/png",
		Caption:   "foto",
		Download: func(ctx context.Context) ([]byte, error) {
			return data, nil
		},
	}, "556199990000")

	post := waitForPost(t, received)

	var payload struct {
		HasMedia  bool `json:"hasMedia"`
		MediaInfo struct {
			FileName  string `json:"fileName"`
			Mimetype  string `json:"mimetype"`
			Filesize  int    `json:"filesize"`
			Caption   string `json:"caption"`
			Thumbnail string `json:"thumbnail"`
		} `json:"mediaInfo"`
	}
	require.NoError(t, json.Unmarshal(post.body, &payload))

	assert.True(t, payload.HasMedia)
	assert.Equal(t, "MSG3.png", payload.MediaInfo.FileName)
	assert.Equal(t, "image/png", payload.MediaInfo.Mimetype)
	assert.Equal(t, len(data), payload.MediaInfo.Filesize)
	assert.Equal(t, "foto", payload.MediaInfo.Caption)
	require.NotEmpty(t, payload.MediaInfo.Thumbnail)

	// Both the full media and the thumbnail exist in the store.
	_, err := os.Stat(filepath.Join(store.Root(), payload.MediaInfo.FileName))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(), payload.MediaInfo.Thumbnail))
	require.NoError(t, err)
}

func TestNonImageMediaHasNoThumbnail(t *testing.T) {
	srv, received := newWebhookServer(t)
	r, store := newTestRelay(t, srv.URL, nil)

	r.Enqueue(waclient.MessageEvent{
		ID:       "MSG4",
		From:     "556188880000@s.whatsapp.net",
		Type:     "document",
		HasMedia: true,
		Mimetype: "application/pdf",
		FileName: "report.pdf",
		Download: func(ctx context.Context) ([]byte, error) {
			return []byte("%PDF-1.4 fake"), nil
		},
	}, "556199990000")

	post := waitForPost(t, received)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(post.body, &payload))
	info, ok := payload["mediaInfo"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "MSG4.pdf", info["fileName"])
	assert.NotContains(t, info, "thumbnail")

	_, err := os.Stat(filepath.Join(store.Root(), "MSG4.pdf"))
	require.NoError(t, err)
}

func TestEnvelopesForwardedInOrder(t *testing.T) {
	srv, received := newWebhookServer(t)
	r, _ := newTestRelay(t, srv.URL, nil)

	for i := range 5 {
		r.Enqueue(waclient.MessageEvent{
			ID:   fmt.Sprintf("ORD%d", i),
			Type: "text",
			Body: "m",
		}, "556199990000")
	}

	for i := range 5 {
		post := waitForPost(t, received)
		var payload map[string]any
		require.NoError(t, json.Unmarshal(post.body, &payload))
		assert.Equal(t, fmt.Sprintf("ORD%d", i), payload["id"])
	}
}

type fakeMarker struct {
	mu      sync.Mutex
	relayed map[string]bool
	marked  []string
}

func (m *fakeMarker) MarkRelayed(ctx context.Context, msgID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.relayed == nil {
		m.relayed = map[string]bool{}
	}
	m.relayed[msgID] = true
	m.marked = append(m.marked, msgID)
	return nil
}

func (m *fakeMarker) RecentlyRelayed(ctx context.Context, msgID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.relayed[msgID], nil
}

func TestDuplicateMessageSkipped(t *testing.T) {
	srv, received := newWebhookServer(t)
	marker := &fakeMarker{}
	r, _ := newTestRelay(t, srv.URL, marker)

	msg := waclient.MessageEvent{ID: "DUP1", Type: "text", Body: "once"}
	r.Enqueue(msg, "556199990000")
	waitForPost(t, received)

	r.Enqueue(msg, "556199990000")
	select {
	case <-received:
		t.Fatal("duplicate message was forwarded")
	case <-time.After(100 * time.Millisecond):
	}

	marker.mu.Lock()
	defer marker.mu.Unlock()
	assert.Equal(t, []string{"DUP1"}, marker.marked)
}

func TestWebhookFailureDoesNotMark(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	marker := &fakeMarker{}
	r, _ := newTestRelay(t, srv.URL, marker)

	r.Enqueue(waclient.MessageEvent{ID: "FAIL1", Type: "text", Body: "x"}, "556199990000")

	// Give the relay time to process; the failed POST must not be
	// retried or marked as relayed.
	time.Sleep(200 * time.Millisecond)
	marker.mu.Lock()
	defer marker.mu.Unlock()
	assert.Empty(t, marker.marked)
}
