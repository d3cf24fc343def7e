// Package images stores link preview images with an external
// Cloudinary-compatible image host.
package images

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConfigured is returned by Upload when no image host is configured.
var ErrNotConfigured = errors.New("image host is not configured")

// Uploader is the image side-channel. Destroy and Rename are no-ops when
// the host is not configured; Upload fails with ErrNotConfigured.
type Uploader interface {
	Configured() bool
	Upload(ctx context.Context, data, id string) (string, error)
	Destroy(ctx context.Context, id string) error
	Rename(ctx context.Context, fromID, toID string) error
}

// AssetID is the public id of the image stored for a link slot.
func AssetID(linkDomain, key string) string {
	return linkDomain + "/" + key
}

// IsEmbedded reports whether image is inline data rather than a remote URL.
func IsEmbedded(image string) bool {
	return image != "" && !strings.HasPrefix(image, "http://") && !strings.HasPrefix(image, "https://")
}

// Nop is used when image hosting is disabled.
type Nop struct{}

func (Nop) Configured() bool { return false }

func (Nop) Upload(context.Context, string, string) (string, error) {
	return "", ErrNotConfigured
}

func (Nop) Destroy(context.Context, string) error { return nil }

func (Nop) Rename(context.Context, string, string) error { return nil }
