// Package storage keeps media bytes in an object store and hands out
// time-limited URLs for them.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by Get for keys that hold no object.
var ErrNotFound = errors.New("storage: object not found")

// ObjectStore is the blob store media bytes live in.
type ObjectStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// MediaKey returns the object key of a medium: media/{id}/{id}.{ext}.
func MediaKey(id, ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		ext = "jpg"
	}
	return fmt.Sprintf("media/%s/%s.%s", id, id, ext)
}
