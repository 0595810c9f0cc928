package utils

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// DetectImageMimeType sniffs the MIME type of raw image bytes. Non-image
// content is reported as application/octet-stream.
func DetectImageMimeType(data []byte) string {
	mime := http.DetectContentType(data)
	if strings.HasPrefix(mime, "image/") {
		return mime
	}
	return "application/octet-stream"
}

// SanitizeFilename removes potentially dangerous characters from a filename
// and returns a safe version for local filesystem storage.
func SanitizeFilename(filename string) string {
	base := filepath.Base(filename)

	base = strings.ReplaceAll(base, "..", "")
	base = strings.ReplaceAll(base, "/", "_")
	base = strings.ReplaceAll(base, "\\", "_")

	return base
}

// Truncate shortens s to at most max runes, appending "..." when cut.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}

// DownloadOptions holds optional parameters for downloading files
type DownloadOptions struct {
	Timeout      time.Duration
	ExtraHeaders map[string]string
	// MaxBytes rejects bodies larger than this. Zero means unlimited.
	MaxBytes int64
}

// DownloadBytes fetches url into memory.
func DownloadBytes(ctx context.Context, url string, opts DownloadOptions) ([]byte, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 60 * time.Second
	}

	client := resty.New().SetTimeout(opts.Timeout)
	resp, err := client.R().
		SetContext(ctx).
		SetHeaders(opts.ExtraHeaders).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", url, resp.StatusCode())
	}

	body := resp.Body()
	if opts.MaxBytes > 0 && int64(len(body)) > opts.MaxBytes {
		return nil, fmt.Errorf("download %s: %d bytes exceeds limit %d", url, len(body), opts.MaxBytes)
	}
	return body, nil
}
