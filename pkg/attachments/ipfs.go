package attachments

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/utils"
)

// IPFSStore uploads blobs to an IPFS relay and returns ipfs:// addresses.
type IPFSStore struct {
	client   *resty.Client
	endpoint string
	maxBytes int64
}

type ipfsUploadResponse struct {
	CID string `json:"cid"`
	URL string `json:"url"`
}

func NewIPFSStore(cfg config.AttachmentsConfig) *IPFSStore {
	return &IPFSStore{
		client:   resty.New().SetTimeout(60 * time.Second),
		endpoint: cfg.IPFSEndpoint,
		maxBytes: cfg.MaxBytes,
	}
}

func (s *IPFSStore) Put(ctx context.Context, data []byte, mimeType string) (Attachment, error) {
	if len(data) == 0 {
		return Attachment{}, fmt.Errorf("empty attachment")
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return Attachment{}, fmt.Errorf("attachment of %d bytes exceeds limit %d", len(data), s.maxBytes)
	}
	if mimeType == "" {
		mimeType = utils.DetectImageMimeType(data)
	}

	var out ipfsUploadResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetMultipartField("file", "upload"+extensionFor(mimeType), mimeType, bytes.NewReader(data)).
		SetResult(&out).
		Post(s.endpoint)
	if err != nil {
		return Attachment{}, fmt.Errorf("ipfs upload: %w", err)
	}
	if resp.IsError() {
		return Attachment{}, fmt.Errorf("ipfs upload: status %d: %s", resp.StatusCode(), resp.String())
	}

	address := out.URL
	if address == "" && out.CID != "" {
		address = "ipfs://" + out.CID
	}
	if !strings.HasPrefix(address, "ipfs://") {
		return Attachment{}, fmt.Errorf("ipfs upload: unexpected response %q", resp.String())
	}
	return Attachment{
		Address:   address,
		SizeBytes: int64(len(data)),
		MimeType:  mimeType,
	}, nil
}
