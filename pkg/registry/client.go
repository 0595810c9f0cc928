package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nomland/nunti/pkg/config"
)

// HTTPClient is the REST binding of Registry.
type HTTPClient struct {
	client  *resty.Client
	baseURL string
}

type recordKeyResponse struct {
	NoteKey RecordKey `json:"noteKey"`
}

func NewHTTPClient(cfg config.RegistryConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.AppKey != "" {
		c.SetHeader("X-App-Key", cfg.AppKey)
	}
	return &HTTPClient{
		client:  c,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

func (c *HTTPClient) CharacterByHandle(ctx context.Context, handle string) (*Character, error) {
	var out Character
	resp, err := c.client.R().
		SetContext(ctx).
		SetResult(&out).
		Get(c.baseURL + "/characters/handle/" + url.PathEscape(handle))
	if err != nil {
		return nil, fmt.Errorf("get character %s: %w", handle, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return nil, nil
	}
	if resp.IsError() {
		return nil, fmt.Errorf("get character %s: status %d: %s", handle, resp.StatusCode(), resp.String())
	}
	if out.CharacterID == "" || out.CharacterID == "0" {
		return nil, nil
	}
	return &out, nil
}

func (c *HTTPClient) SetCharacterMetadata(ctx context.Context, characterID string, md Metadata) error {
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(md).
		Put(c.baseURL + "/characters/" + url.PathEscape(characterID) + "/metadata")
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", characterID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("set metadata %s: status %d: %s", characterID, resp.StatusCode(), resp.String())
	}
	return nil
}

func (c *HTTPClient) CreateShare(ctx context.Context, in ShareInput) (RecordKey, error) {
	return c.createNote(ctx, "/notes/shares", in)
}

func (c *HTTPClient) CreateReply(ctx context.Context, in ReplyInput) (RecordKey, error) {
	return c.createNote(ctx, "/notes/replies", in)
}

func (c *HTTPClient) createNote(ctx context.Context, path string, body any) (RecordKey, error) {
	var out recordKeyResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post(c.baseURL + path)
	if err != nil {
		return RecordKey{}, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.IsError() {
		return RecordKey{}, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	if out.NoteKey.CharacterID == "" || out.NoteKey.NoteID == "" {
		return RecordKey{}, fmt.Errorf("post %s: response without note key", path)
	}
	return out.NoteKey, nil
}

func (c *HTTPClient) DeleteRecord(ctx context.Context, key RecordKey) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Delete(c.baseURL + "/notes/" + url.PathEscape(key.CharacterID) + "/" + url.PathEscape(key.NoteID))
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	if resp.StatusCode() == http.StatusNotFound {
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	if resp.IsError() {
		return fmt.Errorf("delete %s: status %d: %s", key, resp.StatusCode(), resp.String())
	}
	return nil
}
