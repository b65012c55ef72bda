package storage

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

const MaxImageSize = 5 << 20

// ImageStorage stores user uploaded images (avatars, chat photos).
type ImageStorage interface {
	// UploadImage uploads image from reader and returns the public URL.
	// folder is a logical folder in storage (e.g. "avatars").
	UploadImage(ctx context.Context, r io.Reader, folder, fileName string) (string, error)
	// DeleteImage deletes image from storage using its URL.
	DeleteImage(ctx context.Context, fileURL string) error
}

// Upload is an image received from a multipart form.
type Upload struct {
	Reader   io.Reader
	FileName string
	Size     int64
}

// Options selects and configures the backend.
type Options struct {
	Driver string // "cloudinary" or "s3"

	CloudinaryURL string

	S3Region    string
	S3Bucket    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PublicURL string
}

// New builds the backend named by opts.Driver.
func New(ctx context.Context, opts Options) (ImageStorage, error) {
	switch strings.ToLower(opts.Driver) {
	case "", "cloudinary":
		return NewCloudinaryStorage(opts.CloudinaryURL)
	case "s3":
		return NewS3Storage(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", opts.Driver)
	}
}

var allowedImageExt = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".heic": {},
}

// ValidateImage rejects files that are not images or are too large.
func ValidateImage(u *Upload) error {
	if u == nil || u.Reader == nil {
		return apperror.Validation("image is required")
	}
	if _, ok := allowedImageExt[strings.ToLower(filepath.Ext(u.FileName))]; !ok {
		return apperror.Validation("image must be a jpg, png, gif, webp or heic file")
	}
	if u.Size > MaxImageSize {
		return apperror.Validation("image must be at most 5MB")
	}
	return nil
}
