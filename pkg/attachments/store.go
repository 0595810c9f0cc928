package attachments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/utils"
)

// Attachment is what a note references: a content address plus media facts.
type Attachment struct {
	Address   string `json:"address"`
	SizeBytes int64  `json:"size_in_bytes"`
	Width     int    `json:"width,omitempty"`
	Height    int    `json:"height,omitempty"`
	MimeType  string `json:"mime_type"`
}

// Store persists raw bytes and returns their content address.
type Store interface {
	Put(ctx context.Context, data []byte, mimeType string) (Attachment, error)
}

// New builds the store selected by cfg.Backend.
func New(cfg config.AttachmentsConfig) (Store, error) {
	switch cfg.Backend {
	case "ipfs":
		return NewIPFSStore(cfg), nil
	case "", "local":
		return NewLocalStore(config.ExpandHome(cfg.LocalDir), cfg.MaxBytes)
	default:
		return nil, fmt.Errorf("unknown attachments backend %q", cfg.Backend)
	}
}

type Record struct {
	ID         string    `json:"id"`
	StoredPath string    `json:"stored_path"`
	MIMEType   string    `json:"mime_type,omitempty"`
	SizeBytes  int64     `json:"size_bytes"`
	SHA256     string    `json:"sha256"`
	CreatedAt  time.Time `json:"created_at"`
}

type stateFile struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// LocalStore keeps blobs under rootPath, deduplicated by sha256, with a JSON
// index next to them.
type LocalStore struct {
	mu        sync.RWMutex
	statePath string
	rootPath  string
	maxBytes  int64
	byHash    map[string]Record
}

func NewLocalStore(root string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("mkdir attachment root: %w", err)
	}
	s := &LocalStore{
		statePath: filepath.Join(root, "index.json"),
		rootPath:  root,
		maxBytes:  maxBytes,
		byHash:    map[string]Record{},
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *LocalStore) Put(_ context.Context, data []byte, mimeType string) (Attachment, error) {
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("empty attachment")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Attachment{}, fmt.Errorf("attachment of %d bytes exceeds limit %d", len(data), s.maxBytes)
	}
	if mimeType == "" {
		mimeType = utils.DetectImageMimeType(data)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.byHash[hash]; ok {
		return toAttachment(rec), nil
	}

	now := time.Now().UTC()
	dayPath := filepath.Join(s.rootPath, now.Format("2006"), now.Format("01"), now.Format("02"))
	if err := os.MkdirAll(dayPath, 0755); err != nil {
		return Attachment{}, fmt.Errorf("mkdir attachment day path: %w", err)
	}
	name := utils.SanitizeFilename(hash[:16] + extensionFor(mimeType))
	destPath := filepath.Join(dayPath, name)
	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return Attachment{}, fmt.Errorf("write attachment: %w", err)
	}

	rec := Record{
		ID:         "att_" + uuid.NewString(),
		StoredPath: destPath,
		MIMEType:   mimeType,
		SizeBytes:  int64(len(data)),
		SHA256:     hash,
		CreatedAt:  now,
	}
	s.byHash[hash] = rec
	if err := s.saveLocked(); err != nil {
		delete(s.byHash, hash)
		_ = os.Remove(destPath)
		return Attachment{}, err
	}
	logger.DebugCF("attachments", "Attachment stored", map[string]interface{}{
		"id":   rec.ID,
		"size": rec.SizeBytes,
	})
	return toAttachment(rec), nil
}

func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

func toAttachment(r Record) Attachment {
	return Attachment{
		Address:   "file://" + filepath.ToSlash(r.StoredPath),
		SizeBytes: r.SizeBytes,
		MimeType:  r.MIMEType,
	}
}

func extensionFor(mimeType string) string {
	switch strings.ToLower(mimeType) {
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func (s *LocalStore) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := os.ReadFile(s.statePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var st stateFile
	if err := json.Unmarshal(data, &st); err != nil {
		logger.WarnCF("attachments", "Attachment index unreadable, starting empty", map[string]interface{}{
			"path":  s.statePath,
			"error": err.Error(),
		})
		return nil
	}
	for _, r := range st.Records {
		s.byHash[r.SHA256] = r
	}
	return nil
}

func (s *LocalStore) saveLocked() error {
	records := make([]Record, 0, len(s.byHash))
	for _, r := range s.byHash {
		records = append(records, r)
	}

	st := stateFile{
		Version: 1,
		Records: records,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal attachment index: %w", err)
	}
	tmp := s.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write attachment temp: %w", err)
	}
	if err := os.Rename(tmp, s.statePath); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace attachment index: %w", err)
	}
	return nil
}

// FromPhoto uploads the largest photo of msg. It returns nil when the message
// has no photo.
func FromPhoto(ctx context.Context, t bus.Transport, s Store, msg *bus.InboundMessage) (*Attachment, error) {
	photo, ok := msg.LargestPhoto()
	if !ok {
		return nil, nil
	}
	data, err := t.FileContent(ctx, photo.FileID)
	if err != nil {
		return nil, fmt.Errorf("fetch photo %s: %w", photo.FileID, err)
	}
	att, err := s.Put(ctx, data, "image/jpeg")
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	att.Width = photo.Width
	att.Height = photo.Height
	return &att, nil
}

// Collect returns the attachments of msg, logging instead of failing so a
// broken photo never blocks the share itself.
func Collect(ctx context.Context, t bus.Transport, s Store, msg *bus.InboundMessage) []Attachment {
	if s == nil || msg == nil {
		return nil
	}
	att, err := FromPhoto(ctx, t, s, msg)
	if err != nil {
		logger.WarnCF("attachments", "Failed to fetch photo", map[string]interface{}{
			"message_id": msg.ID,
			"error":      err.Error(),
		})
		return nil
	}
	if att == nil {
		return nil
	}
	return []Attachment{*att}
}
