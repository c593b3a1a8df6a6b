package mediastore

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store is a flat local directory holding inbound media, outbound
// upload temp files and generated thumbnails. Names are unique per file
// by construction, so there are never concurrent writers to one path.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("media directory is not configured")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string {
	return s.root
}

// SaveInbound persists a downloaded media payload under a name derived
// from the unique message id and the MIME type.
func (s *Store) SaveInbound(msgID, mimetype string, data []byte) (string, error) {
	name := sanitizeName(msgID) + ExtensionForMIME(mimetype)
	if err := os.WriteFile(filepath.Join(s.root, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}
	return name, nil
}

// UploadName generates a collision-resistant name for an outbound
// upload, keeping the original extension.
func (s *Store) UploadName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return fmt.Sprintf("%d_%s%s", time.Now().UnixNano(), uuid.NewString()[:8], ext)
}

// Path maps a stored name to its absolute location. The input is
// reduced to a bare basename first so no lookup can escape the root.
func (s *Store) Path(name string) string {
	return filepath.Join(s.root, sanitizeName(name))
}

// Resolve returns the on-disk path of an existing file or an error if
// it does not exist.
func (s *Store) Resolve(name string) (string, error) {
	path := s.Path(name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("media file not found: %s", sanitizeName(name))
	}
	return path, nil
}

func (s *Store) Remove(name string) error {
	return os.Remove(s.Path(name))
}

// ContentType resolves the MIME type of a stored file from its
// extension, defaulting to a binary stream.
func ContentType(name string) string {
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ExtensionForMIME maps a MIME type to a file extension, preferring the
// conventional extensions for the types WhatsApp commonly carries.
func ExtensionForMIME(mimetype string) string {
	base := mimetype
	if idx := strings.IndexByte(base, ';'); idx >= 0 {
		base = strings.TrimSpace(base[:idx])
	}
	switch base {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	case "video/mp4":
		return ".mp4"
	case "audio/ogg":
		return ".ogg"
	case "audio/mpeg":
		return ".mp3"
	case "audio/mp4":
		return ".m4a"
	case "application/pdf":
		return ".pdf"
	}
	if exts, err := mime.ExtensionsByType(base); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}

// sanitizeName strips any path components and characters that could
// interfere with filesystem use.
func sanitizeName(name string) string {
	name = filepath.Base(name)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.':
			return r
		default:
			return '_'
		}
	}, name)
}
