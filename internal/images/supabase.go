package images

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

// SupabaseStore uploads to a Supabase Storage bucket.
type SupabaseStore struct {
	bucket *supabase.BucketClient
	now    func() time.Time
}

func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{bucket: client.Storage(Bucket), now: time.Now}
}

func (s *SupabaseStore) Upload(ctx context.Context, file File) (string, error) {
	key := ObjectKey(s.now(), file.Name)
	err := s.bucket.Upload(ctx, key, file.Data, supabase.UploadOptions{
		ContentType:  file.ContentType,
		CacheControl: strconv.Itoa(CacheControlSeconds),
		Upsert:       false,
	})
	if err != nil {
		msg := err.Error()
		var apiErr *supabase.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.Message
		}
		return "", &UploadError{Key: key, Message: msg, Err: err}
	}
	return s.bucket.PublicURL(key), nil
}
