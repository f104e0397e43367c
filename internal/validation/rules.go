// Package validation holds the field checks applied before anything reaches the backend.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	FoodNameMaxLength = 100
	MinCalories       = 0
	MaxCalories       = 10000
	MaxImageSizeMB    = 5
	MaxImageSizeBytes = MaxImageSizeMB * 1024 * 1024
	MinPasswordLength = 6
)

// Kind identifies why a field was rejected.
type Kind string

const (
	KindNone       Kind = ""
	KindEmpty      Kind = "empty"
	KindTooLong    Kind = "too_long"
	KindOutOfRange Kind = "out_of_range"
	KindTooLarge   Kind = "too_large"
	KindBadFormat  Kind = "bad_format"
	KindTooShort   Kind = "too_short"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Result is the outcome of checking a single field.
type Result struct {
	Field   string
	Valid   bool
	Kind    Kind
	Message string
}

// Err returns nil for a valid result and a *Error otherwise.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Field: r.Field, Kind: r.Kind, Message: r.Message}
}

// Error is a rejected field. Its message is safe to show to the user.
type Error struct {
	Field   string
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func ok(field string) Result {
	return Result{Field: field, Valid: true}
}

func fail(field string, kind Kind, message string) Result {
	return Result{Field: field, Kind: kind, Message: message}
}

// FoodName rejects blank names and names longer than FoodNameMaxLength characters.
func FoodName(name string) Result {
	if strings.TrimSpace(name) == "" {
		return fail("name", KindEmpty, "Please enter a food name")
	}
	if utf8.RuneCountInString(name) > FoodNameMaxLength {
		return fail("name", KindTooLong, fmt.Sprintf("Food name must be less than %d characters", FoodNameMaxLength))
	}
	return ok("name")
}

func Calories(calories int) Result {
	if calories < MinCalories || calories > MaxCalories {
		return fail("calories", KindOutOfRange, fmt.Sprintf("Calories must be between %d and %d", MinCalories, MaxCalories))
	}
	return ok("calories")
}

// ImageSize rejects attachments above MaxImageSizeBytes.
func ImageSize(size int64) Result {
	if size > MaxImageSizeBytes {
		return fail("image", KindTooLarge, fmt.Sprintf("Image size must be less than %dMB", MaxImageSizeMB))
	}
	return ok("image")
}

func Email(email string) Result {
	if !emailPattern.MatchString(email) {
		return fail("email", KindBadFormat, "Invalid email format")
	}
	return ok("email")
}

func Password(password string) Result {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return fail("password", KindTooShort, fmt.Sprintf("Password must be at least %d characters", MinPasswordLength))
	}
	return ok("password")
}

// First returns the first failing result's error, or nil when all pass.
func First(results ...Result) error {
	for _, r := range results {
		if err := r.Err(); err != nil {
			return err
		}
	}
	return nil
}
