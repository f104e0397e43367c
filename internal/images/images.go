// Package images uploads food photos to blob storage and returns their public URLs.
package images

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

const (
	// Bucket is the storage bucket food photos live in.
	Bucket = "food-images"
	// KeyPrefix is the folder inside Bucket.
	KeyPrefix = "foods"
	// CacheControlSeconds is the max-age hint sent with every upload.
	CacheControlSeconds = 3600
)

// File is an image attached to a food form.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size returns the file size in bytes.
func (f File) Size() int64 {
	return int64(len(f.Data))
}

// Store uploads images. Implementations never overwrite an existing key.
type Store interface {
	Upload(ctx context.Context, file File) (string, error)
}

// UploadError reports an upload the blob store rejected.
type UploadError struct {
	Key     string
	Message string
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %s", e.Key, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// ObjectKey builds the storage key foods/<unix-millis>_<filename>.
func ObjectKey(now time.Time, filename string) string {
	return fmt.Sprintf("%s/%d_%s", KeyPrefix, now.UnixMilli(), baseName(filename))
}

// Browsers on Windows may send the full client path.
func baseName(filename string) string {
	name := path.Base(strings.ReplaceAll(strings.TrimSpace(filename), `\`, "/"))
	if name == "." || name == "/" || name == "" {
		return "image"
	}
	return name
}
