package supabase

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Storage returns a bucket client.
func (c *Client) Storage(bucket string) *BucketClient {
	return &BucketClient{client: c, bucket: bucket}
}

// BucketClient handles object operations in one bucket.
type BucketClient struct {
	client *Client
	bucket string
}

// UploadOptions mirrors the storage API's upload headers.
type UploadOptions struct {
	ContentType  string
	CacheControl string
	Upsert       bool
}

// Upload stores data at key. Without Upsert an existing key is rejected by the
// service with a 409.
func (b *BucketClient) Upload(ctx context.Context, key string, data []byte, opts UploadOptions) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.client.baseURL, url.PathEscape(b.bucket), escapeKey(key))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	b.client.setHeaders(req)

	contentType := opts.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	if opts.CacheControl != "" {
		req.Header.Set("Cache-Control", "max-age="+opts.CacheControl)
	}
	req.Header.Set("x-upsert", fmt.Sprintf("%t", opts.Upsert))

	_, err = b.client.do(req, "storage.upload")
	return err
}

// PublicURL returns the stable public URL for key. It does not check that the object exists.
func (b *BucketClient) PublicURL(key string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.client.baseURL, url.PathEscape(b.bucket), escapeKey(key))
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
