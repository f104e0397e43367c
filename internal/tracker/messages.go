package tracker

import (
	"errors"

	"github.com/jw6ventures/foodlog/internal/auth"
	"github.com/jw6ventures/foodlog/internal/images"
	"github.com/jw6ventures/foodlog/internal/store"
	"github.com/jw6ventures/foodlog/internal/validation"
)

const (
	msgDuplicate      = "You already logged this food today!"
	msgBusy           = "Please wait for the current action to finish"
	msgSignedOut      = "Please sign in to continue"
	msgEntryNotFound  = "This food entry no longer exists"
	msgSessionChanged = "Your session changed, please try again"
	msgUnknown        = "An error occurred"
)

var persistencePrefixes = map[string]string{
	"list foods":  "Error fetching foods",
	"add food":    "Error adding food",
	"update food": "Error updating food",
	"delete food": "Error deleting food",
}

// Message turns any error returned by the tracker or the auth gateway into the
// text shown to the user.
func Message(err error) string {
	if err == nil {
		return ""
	}

	var vErr *validation.Error
	var authErr *auth.Error
	var upErr *images.UploadError
	var pErr *store.PersistenceError

	switch {
	case errors.As(err, &vErr):
		return vErr.Message
	case errors.Is(err, ErrDuplicateEntry):
		return msgDuplicate
	case errors.Is(err, ErrBusy):
		return msgBusy
	case errors.Is(err, ErrNotAuthenticated):
		return msgSignedOut
	case errors.Is(err, ErrEntryNotFound):
		return msgEntryNotFound
	case errors.Is(err, ErrSessionChanged):
		return msgSessionChanged
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.As(err, &upErr):
		return "Error uploading image: " + upErr.Message
	case errors.As(err, &pErr):
		prefix, ok := persistencePrefixes[pErr.Op]
		if !ok {
			prefix = "Error saving food"
		}
		return prefix + ": " + pErr.Message
	default:
		return msgUnknown
	}
}
