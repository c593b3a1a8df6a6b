package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/fleetdesk/whatsapp-gateway/docs"
	"github.com/fleetdesk/whatsapp-gateway/internal/domain"
	"github.com/fleetdesk/whatsapp-gateway/internal/mediastore"
	"github.com/fleetdesk/whatsapp-gateway/internal/session"
	"github.com/fleetdesk/whatsapp-gateway/internal/waclient"
	"github.com/gin-gonic/gin"
	qrcode "github.com/skip2/go-qrcode"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const maxUploadSize = 50 << 20

// allowedUploadExts is the allow-list for /send-media uploads: common
// image, video, audio and document types.
var allowedUploadExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
	".mp4": true, ".3gp": true, ".mov": true, ".avi": true,
	".mp3": true, ".ogg": true, ".m4a": true, ".wav": true, ".opus": true,
	".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
	".ppt": true, ".pptx": true, ".txt": true, ".csv": true, ".zip": true,
}

// SessionController is what the HTTP layer needs from the session
// manager.
type SessionController interface {
	Snapshot() domain.ConnectionSnapshot
	QRCode() (string, bool)
	ConnectedNumber() string
	Reset() error
	Disconnect(ctx context.Context) error
	SendText(ctx context.Context, phone, body string) (string, error)
	SendMedia(ctx context.Context, phone string, media waclient.Media) (string, error)
}

type Handler struct {
	session   SessionController
	store     *mediastore.Store
	logger    *slog.Logger
	urlClient *http.Client
	server    *http.Server
}

// @title WhatsApp Gateway API
// @version 1.0
// @description HTTP surface of the WhatsApp gateway: session control, outbound sending and media serving
// @BasePath /
func NewHttpHandler(addr string, sess SessionController, store *mediastore.Store, logger *slog.Logger) *Handler {
	h := &Handler{
		session: sess,
		store:   store,
		logger:  logger,
		urlClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}

	// create router
	router := gin.Default()

	// register routes
	router.GET("/health", h.health)
	router.GET("/status", h.status)
	router.GET("/qr-code", h.qrCode)
	router.GET("/qr-image", h.qrImage)
	router.POST("/reset-session", h.resetSession)
	router.POST("/disconnect", h.disconnect)
	router.POST("/send-message", h.sendMessage)
	router.POST("/send-media", h.sendMedia)
	router.POST("/send-media-url", h.sendMediaURL)
	router.GET("/media/:filename", h.serveMedia)
	router.GET("/qr-view", h.qrView)
	router.GET("/test-media", h.testMedia)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// create http server
	h.server = &http.Server{
		Addr:    addr,
		Handler: router.Handler(),
	}

	return h
}

// Router exposes the underlying handler for tests.
func (h *Handler) Router() http.Handler {
	return h.server.Handler
}

func (h *Handler) Run() error {
	return h.server.ListenAndServe()
}

func (h *Handler) Shutdown(ctx context.Context) error {
	return h.server.Shutdown(ctx)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Status godoc
// @Summary Current connection status
// @Tags Session
// @Success 200 {object} map[string]any
// @Router /status [get]
func (h *Handler) status(c *gin.Context) {
	snap := h.session.Snapshot()

	var number *string
	if snap.IsConnected && snap.ConnectedNumber != "" {
		number = &snap.ConnectedNumber
	}

	c.JSON(http.StatusOK, gin.H{
		"isConnected":     snap.IsConnected,
		"connectedNumber": number,
		"clientState": gin.H{
			"state":               snap.State.String(),
			"qrAvailable":         snap.QRCode != "",
			"disconnectionReason": snap.DisconnectionReason,
			"authFailureMessage":  snap.AuthFailureMessage,
			"lastConnectionAt":    snap.LastConnectionAt,
		},
	})
}

// QRCode godoc
// @Summary Current pairing payload
// @Tags Session
// @Success 200 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Router /qr-code [get]
func (h *Handler) qrCode(c *gin.Context) {
	code, ok := h.session.QRCode()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No QR code available"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"qrCode": code})
}

// QRImage godoc
// @Summary Current pairing payload rendered as a PNG
// @Tags Session
// @Produce png
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /qr-image [get]
func (h *Handler) qrImage(c *gin.Context) {
	code, ok := h.session.QRCode()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No QR code available"})
		return
	}

	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		h.logger.Error("failed to render qr image", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render QR code"})
		return
	}
	c.Header("Cache-Control", "no-cache, no-store, must-revalidate")
	c.Data(http.StatusOK, "image/png", png)
}

// ResetSession godoc
// @Summary Tear down the session, delete local credentials and restart
// @Tags Session
// @Success 200 {object} map[string]any
// @Router /reset-session [post]
func (h *Handler) resetSession(c *gin.Context) {
	if err := h.session.Reset(); err != nil {
		h.logger.Error("session reset failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to reset session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session reset initiated"})
}

// Disconnect godoc
// @Summary Log out the current session without deleting local credentials
// @Tags Session
// @Success 200 {object} map[string]any
// @Router /disconnect [post]
func (h *Handler) disconnect(c *gin.Context) {
	if err := h.session.Disconnect(c.Request.Context()); err != nil {
		h.logger.Error("disconnect failed", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": publicError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Session logged out"})
}

type sendMessageRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	Message     string `json:"message" binding:"required"`
}

// SendMessage godoc
// @Summary Send a text message
// @Tags Outbound
// @Accept json
// @Param request body sendMessageRequest true "recipient and text"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /send-message [post]
func (h *Handler) sendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "phoneNumber and message are required"})
		return
	}

	if _, err := h.session.SendText(c.Request.Context(), req.PhoneNumber, req.Message); err != nil {
		h.logger.Error("failed to send message", slog.String("phoneNumber", req.PhoneNumber), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": publicError(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Message sent successfully"})
}

// SendMedia godoc
// @Summary Send an uploaded file as a media message
// @Tags Outbound
// @Accept mpfd
// @Param media formData file true "media file, max 50MB"
// @Param phoneNumber formData string true "recipient"
// @Param caption formData string false "caption"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /send-media [post]
func (h *Handler) sendMedia(c *gin.Context) {
	fileHeader, err := c.FormFile("media")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "No media file provided"})
		return
	}

	phone := c.PostForm("phoneNumber")
	if phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "phoneNumber is required"})
		return
	}

	if fileHeader.Size > maxUploadSize {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "File exceeds the 50MB limit"})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if !allowedUploadExts[ext] {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Unsupported file type"})
		return
	}

	tempName := h.store.UploadName(fileHeader.Filename)
	tempPath := h.store.Path(tempName)
	if err := c.SaveUploadedFile(fileHeader, tempPath); err != nil {
		h.logger.Error("failed to store uploaded file", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to store uploaded file"})
		return
	}
	// The temp upload is removed on every path, success or failure.
	defer func() {
		if err := h.store.Remove(tempName); err != nil {
			h.logger.Error("failed to remove temp upload", slog.String("fileName", tempName), "error", err.Error())
		}
	}()

	data, err := os.ReadFile(tempPath)
	if err != nil {
		h.logger.Error("failed to read uploaded file", "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to read uploaded file"})
		return
	}

	mimetype := fileHeader.Header.Get("Content-Type")
	if mimetype == "" {
		mimetype = mediastore.ContentType(tempName)
	}

	media := waclient.Media{
		Data:     data,
		Mimetype: mimetype,
		FileName: fileHeader.Filename,
		Caption:  c.PostForm("caption"),
	}

	if _, err := h.session.SendMedia(c.Request.Context(), phone, media); err != nil {
		h.logger.Error("failed to send media", slog.String("phoneNumber", phone), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": publicError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Media sent successfully",
		"fileName": fileHeader.Filename,
		"fileSize": fileHeader.Size,
	})
}

type sendMediaURLRequest struct {
	PhoneNumber string `json:"phoneNumber" binding:"required"`
	MediaURL    string `json:"mediaUrl" binding:"required"`
	Caption     string `json:"caption"`
	FileName    string `json:"fileName"`
}

// SendMediaURL godoc
// @Summary Fetch a remote resource and send it as a media message
// @Tags Outbound
// @Accept json
// @Param request body sendMediaURLRequest true "recipient and media url"
// @Success 200 {object} map[string]any
// @Failure 400 {object} map[string]any
// @Failure 500 {object} map[string]any
// @Router /send-media-url [post]
func (h *Handler) sendMediaURL(c *gin.Context) {
	var req sendMediaURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "phoneNumber and mediaUrl are required"})
		return
	}

	// Readiness is checked before any fetch is attempted.
	if h.session.ConnectedNumber() == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": session.ErrNotConnected.Error()})
		return
	}

	data, contentType, err := h.fetchRemoteMedia(c.Request.Context(), req.MediaURL)
	if err != nil {
		h.logger.Error("failed to fetch remote media", slog.String("mediaUrl", req.MediaURL), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to send media from URL"})
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = deriveFileName(req.MediaURL, contentType)
	}

	media := waclient.Media{
		Data:     data,
		Mimetype: contentType,
		FileName: fileName,
		Caption:  req.Caption,
	}

	if _, err := h.session.SendMedia(c.Request.Context(), req.PhoneNumber, media); err != nil {
		h.logger.Error("failed to send media from url", slog.String("phoneNumber", req.PhoneNumber), "error", err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": publicError(err)})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"message":     "Media sent successfully",
		"fileName":    fileName,
		"contentType": contentType,
	})
}

func (h *Handler) fetchRemoteMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", err
	}

	resp, err := h.urlClient.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", errors.New("remote responded with status " + resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUploadSize+1))
	if err != nil {
		return nil, "", err
	}
	if len(data) > maxUploadSize {
		return nil, "", errors.New("remote file exceeds the 50MB limit")
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	return data, contentType, nil
}

// ServeMedia godoc
// @Summary Stream a stored media file by name
// @Tags Media
// @Param filename path string true "stored file name"
// @Success 200
// @Failure 404 {object} map[string]string
// @Router /media/{filename} [get]
func (h *Handler) serveMedia(c *gin.Context) {
	name := c.Param("filename")
	filePath, err := h.store.Resolve(name)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Media file not found"})
		return
	}
	c.Header("Content-Type", mediastore.ContentType(filePath))
	c.File(filePath)
}

func (h *Handler) qrView(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(qrViewPage))
}

func (h *Handler) testMedia(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(testMediaPage))
}

// publicError keeps internal details out of responses while surfacing
// actionable failure messages.
func publicError(err error) string {
	if errors.Is(err, session.ErrNotConnected) {
		return session.ErrNotConnected.Error()
	}
	return err.Error()
}

func deriveFileName(mediaURL, contentType string) string {
	if parsed, err := url.Parse(mediaURL); err == nil {
		if base := path.Base(parsed.Path); base != "" && base != "." && base != "/" {
			return base
		}
	}
	return "file" + mediastore.ExtensionForMIME(contentType)
}
