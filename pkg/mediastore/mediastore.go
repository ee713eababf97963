package mediastore

import (
	"context"
	"io"
	"path"
	"strings"

	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/errcodes"
	"github.com/pkg/errors"
)

// Key prefixes for the different kinds of media.
const (
	PrefixCovers  = "book_covers"
	PrefixGallery = "book_images"
	PrefixQRCodes = "qr_codes"
)

var ErrNotFound = errors.New("media object not found")

// Object is an opened media object. Callers must close Body.
type Object struct {
	Body        io.ReadCloser
	ContentType string
	Size        int64
}

// Store persists image bytes under slash-separated keys like
// "book_covers/三国演义_cover.jpg".
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Open(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, key string) error
}

// New returns the store selected by cfg.MediaStorage.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.MediaStorage {
	case config.MediaStorageS3:
		return NewS3Store(ctx, S3Options{
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UseSSL:          cfg.S3UseSSL,
		})
	case config.MediaStorageFilesystem, "":
		return NewFilesystemStore(cfg.MediaDir)
	default:
		return nil, errors.Errorf("unknown media storage %q", cfg.MediaStorage)
	}
}

// CleanKey validates a key and returns it in canonical form. Keys are relative
// and may not climb out of the store.
func CleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return "", errors.Errorf("invalid media key %q", key)
	}
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.Errorf("invalid media key %q", key)
	}
	return cleaned, nil
}

// Resource turns ErrNotFound into an errcodes 404 for the given resource name
// and leaves other errors alone.
func Resource(err error, resource string) error {
	if errors.Is(err, ErrNotFound) {
		return errcodes.NotFound(resource)
	}
	return err
}
