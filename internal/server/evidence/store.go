// Package evidence stores the images and reports produced by drawer
// confirmations. Keys are slash-separated relative paths such as
// "sessoes/7/sessao7_gaveta2.jpg"; the key is the evidence reference kept
// on the confirmed movements.
package evidence

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
)

// Driver identifies a concrete backend.
type Driver string

const (
	DriverFilesystem Driver = "fs"
	DriverS3         Driver = "s3"
	DriverMemory     Driver = "memory"
)

// Store is the evidence backend. Put overwrites an existing key, so a
// retried capture replaces the earlier frame.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, string, error)
	// URL is where a client can fetch key: a path under the media prefix
	// for local stores, a presigned URL for S3.
	URL(ctx context.Context, key string) (string, error)
	Driver() Driver
}

// MediaPrefix is the HTTP prefix local stores are served under.
const MediaPrefix = "/media/"

var ErrInvalidKey = errors.New("invalid evidence key")

// CleanKey rejects empty, absolute and escaping keys and normalizes the rest.
func CleanKey(key string) (string, error) {
	key = strings.ReplaceAll(strings.TrimSpace(key), "\\", "/")
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	return clean, nil
}

// Config selects and configures a driver.
type Config struct {
	Driver Driver

	Root string

	Bucket     string
	Region     string
	Endpoint   string
	AccessKey  string
	SecretKey  string
	PresignTTL time.Duration
}

// Open builds the store named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverFilesystem, "":
		return NewFSStore(cfg.Root)
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverS3:
		return NewS3Store(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown evidence driver %q", cfg.Driver)
	}
}

// SessionKey is the key of a drawer capture: sessoes/<S>/sessao<S>_gaveta<N><suffix>.
func SessionKey(sessionID int64, drawer int, suffix string) string {
	return fmt.Sprintf("sessoes/%d/sessao%d_gaveta%d%s", sessionID, sessionID, drawer, suffix)
}

func localURL(key string) string {
	return MediaPrefix + key
}
