package images

import (
	"SLINK-Backend/internal/config"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to the image host REST API with signed form requests.
type Client struct {
	cfg  config.Images
	http *http.Client
	log  *zap.Logger
	now  func() time.Time
}

func NewClient(cfg config.Images, log *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		log:  log,
		now:  time.Now,
	}
}

// New returns a Client when credentials are present and Nop otherwise.
func New(cfg config.Images, log *zap.Logger) Uploader {
	c := NewClient(cfg, log)
	if !c.Configured() {
		log.Info("image host not configured, uploads disabled")
		return Nop{}
	}
	return c
}

func (c *Client) Configured() bool {
	return c.cfg.CloudName != "" && c.cfg.APIKey != "" && c.cfg.APISecret != ""
}

type uploadResponse struct {
	SecureURL string `json:"secure_url"`
	PublicID  string `json:"public_id"`
	Result    string `json:"result"`
	Error     *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload stores data (a data URI or base64 payload) under id and returns
// the secure URL of the stored asset.
func (c *Client) Upload(ctx context.Context, data, id string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	params := url.Values{}
	params.Set("public_id", c.publicID(id))
	params.Set("overwrite", "true")
	params.Set("invalidate", "true")

	resp, err := c.call(ctx, "upload", params, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload image %s: %w", id, err)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("failed to upload image %s: empty secure_url", id)
	}

	c.log.Debug("image uploaded", zap.String("id", id), zap.String("url", resp.SecureURL))
	return resp.SecureURL, nil
}

func (c *Client) Destroy(ctx context.Context, id string) error {
	if !c.Configured() {
		return nil
	}
	params := url.Values{}
	params.Set("public_id", c.publicID(id))
	params.Set("invalidate", "true")

	if _, err := c.call(ctx, "destroy", params, ""); err != nil {
		return fmt.Errorf("failed to destroy image %s: %w", id, err)
	}
	c.log.Debug("image destroyed", zap.String("id", id))
	return nil
}

func (c *Client) Rename(ctx context.Context, fromID, toID string) error {
	if !c.Configured() {
		return nil
	}
	params := url.Values{}
	params.Set("from_public_id", c.publicID(fromID))
	params.Set("to_public_id", c.publicID(toID))
	params.Set("overwrite", "true")
	params.Set("invalidate", "true")

	if _, err := c.call(ctx, "rename", params, ""); err != nil {
		return fmt.Errorf("failed to rename image %s to %s: %w", fromID, toID, err)
	}
	c.log.Debug("image renamed", zap.String("from", fromID), zap.String("to", toID))
	return nil
}

// URL returns the delivery URL of the asset stored under id.
func (c *Client) URL(id string) string {
	return fmt.Sprintf("https://res.cloudinary.com/%s/image/upload/%s", c.cfg.CloudName, c.publicID(id))
}

func (c *Client) publicID(id string) string {
	if c.cfg.Folder == "" {
		return id
	}
	return path.Join(c.cfg.Folder, id)
}

func (c *Client) call(ctx context.Context, action string, params url.Values, file string) (*uploadResponse, error) {
	params.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("signature", Sign(params, c.cfg.APISecret))
	params.Set("api_key", c.cfg.APIKey)
	if file != "" {
		params.Set("file", file)
	}

	endpoint := fmt.Sprintf("%s/%s/image/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.CloudName, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	var out uploadResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &out); err != nil {
			return nil, fmt.Errorf("unexpected response (status %d): %w", res.StatusCode, err)
		}
	}
	if res.StatusCode >= http.StatusBadRequest {
		if out.Error != nil {
			return nil, fmt.Errorf("status %d: %s", res.StatusCode, out.Error.Message)
		}
		return nil, fmt.Errorf("status %d", res.StatusCode)
	}
	return &out, nil
}

// Sign computes the request signature: sha1 over the sorted key=value pairs
// joined by '&' followed by the API secret. file, api_key and signature are
// excluded.
func Sign(params url.Values, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case "file", "api_key", "signature", "resource_type":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}

	sum := sha1.Sum([]byte(strings.Join(parts, "&") + secret))
	return hex.EncodeToString(sum[:])
}
