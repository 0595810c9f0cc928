package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	cases := map[string]string{
		"photo.jpg":         "photo.jpg",
		"../../etc/passwd":  "passwd",
		"dir/..hidden..png": "hiddenpng",
	}
	for in, want := range cases {
		if got := SanitizeFilename(in); got != want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("Truncate short = %q", got)
	}
	if got := Truncate("hello world", 8); got != "hello..." {
		t.Errorf("Truncate long = %q", got)
	}
	if got := Truncate("héllo", 2); got != "hé" {
		t.Errorf("Truncate tiny = %q", got)
	}
}

func TestDetectImageMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if got := DetectImageMimeType(png); got != "image/png" {
		t.Errorf("DetectImageMimeType(png) = %q", got)
	}
	if got := DetectImageMimeType([]byte("plain text")); got != "application/octet-stream" {
		t.Errorf("DetectImageMimeType(text) = %q", got)
	}
}

func TestDownloadBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("X-Token") != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("0123456789"))
	}))
	defer srv.Close()

	ctx := context.Background()
	headers := map[string]string{"X-Token": "abc"}

	data, err := DownloadBytes(ctx, srv.URL+"/file", DownloadOptions{ExtraHeaders: headers})
	if err != nil {
		t.Fatalf("DownloadBytes: %v", err)
	}
	if string(data) != "0123456789" {
		t.Fatalf("body = %q", data)
	}

	if _, err := DownloadBytes(ctx, srv.URL+"/file", DownloadOptions{ExtraHeaders: headers, MaxBytes: 4}); err == nil {
		t.Fatal("expected size limit error")
	}
	if _, err := DownloadBytes(ctx, srv.URL+"/missing", DownloadOptions{}); err == nil {
		t.Fatal("expected error for 404")
	}
}
