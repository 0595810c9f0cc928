package attachments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/nomland/nunti/pkg/bus"
	"github.com/nomland/nunti/pkg/config"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR-test-image")

func TestLocalStore_PutDeduplicates(t *testing.T) {
	root := t.TempDir()
	s, err := NewLocalStore(root, 0)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}

	a1, err := s.Put(context.Background(), pngBytes, "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if a1.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want sniffed image/png", a1.MimeType)
	}
	if a1.SizeBytes != int64(len(pngBytes)) {
		t.Errorf("SizeBytes = %d", a1.SizeBytes)
	}
	if !strings.HasPrefix(a1.Address, "file://") {
		t.Errorf("Address = %q", a1.Address)
	}

	a2, err := s.Put(context.Background(), pngBytes, "image/png")
	if err != nil {
		t.Fatalf("second Put: %v", err)
	}
	if a2.Address != a1.Address || s.Len() != 1 {
		t.Fatalf("same content stored twice: %q vs %q (len %d)", a1.Address, a2.Address, s.Len())
	}

	// The index survives a reopen.
	reopened, err := NewLocalStore(root, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reopened.Len() != 1 {
		t.Fatalf("reopened Len = %d, want 1", reopened.Len())
	}
	path := strings.TrimPrefix(a1.Address, "file://")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stored file missing: %v", err)
	}
}

func TestLocalStore_Limits(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 4)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	if _, err := s.Put(context.Background(), nil, ""); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := s.Put(context.Background(), pngBytes, ""); err == nil {
		t.Error("expected error for oversize data")
	}
}

func TestIPFSStore_Put(t *testing.T) {
	var gotField string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, hdr, err := r.FormFile("file")
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer f.Close()
		body, _ := io.ReadAll(f)
		gotField = hdr.Filename + ":" + string(body[:4])
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"cid": "bafytestcid"})
	}))
	defer srv.Close()

	s := NewIPFSStore(config.AttachmentsConfig{IPFSEndpoint: srv.URL})
	att, err := s.Put(context.Background(), pngBytes, "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if att.Address != "ipfs://bafytestcid" {
		t.Errorf("Address = %q", att.Address)
	}
	if gotField != "upload.png:\x89PNG" {
		t.Errorf("uploaded field = %q", gotField)
	}
}

func TestIPFSStore_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "relay down", http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewIPFSStore(config.AttachmentsConfig{IPFSEndpoint: srv.URL})
	if _, err := s.Put(context.Background(), pngBytes, "image/png"); err == nil {
		t.Fatal("expected error on 502")
	}
}

type photoTransport struct {
	bus.Transport
	files map[string][]byte
}

func (p *photoTransport) FileContent(_ context.Context, fileID string) ([]byte, error) {
	return p.files[fileID], nil
}

func TestFromPhotoPicksLargest(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("NewLocalStore: %v", err)
	}
	tr := &photoTransport{files: map[string][]byte{"big": pngBytes, "small": []byte("tiny")}}
	msg := &bus.InboundMessage{Photos: []bus.PhotoRef{
		{FileID: "small", Width: 90, Height: 60},
		{FileID: "big", Width: 1280, Height: 720},
	}}

	att, err := FromPhoto(context.Background(), tr, s, msg)
	if err != nil {
		t.Fatalf("FromPhoto: %v", err)
	}
	if att == nil || att.Width != 1280 || att.Height != 720 || att.SizeBytes != int64(len(pngBytes)) {
		t.Fatalf("attachment = %+v", att)
	}

	if got := Collect(context.Background(), tr, s, &bus.InboundMessage{}); got != nil {
		t.Fatalf("Collect without photo = %v", got)
	}
}
