// Package validate provides the small input checks shared by the services.
// Each check returns an apperr validation error.
package validate

import (
	"net/mail"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kylejryan/insurance-policy-portal/internal/apperr"
	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// Upload limits for claim attachments.
const (
	MaxFiles    = 10
	MaxFileSize = 10 << 20
	MinPassword = 8
)

// allowedTypes maps attachment content types to their extensions.
var allowedTypes = map[string][]string{
	"application/pdf":    {".pdf"},
	"image/jpeg":         {".jpg", ".jpeg"},
	"image/png":          {".png"},
	"text/plain":         {".txt"},
	"application/msword": {".doc"},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {".docx"},
}

var imageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

var nameRx = regexp.MustCompile(`^[\p{L}][\p{L} '\-]{0,63}$`)

// All runs checks in order and returns the first failure.
func All(checks ...func() error) error {
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

// ID checks that s is a well-formed identifier.
func ID(s, what string) error {
	if !models.ValidID(s) {
		return apperr.Validation("invalid " + what + " id")
	}
	return nil
}

// Required checks that s is non-empty after trimming whitespace.
func Required(s, field string) error {
	if strings.TrimSpace(s) == "" {
		return apperr.Validation(field + " is required")
	}
	return nil
}

// Name checks a person's first or last name.
func Name(s, field string) error {
	if !nameRx.MatchString(strings.TrimSpace(s)) {
		return apperr.Validation("invalid " + field)
	}
	return nil
}

// Email checks that s is a single bare address.
func Email(s string) error {
	a, err := mail.ParseAddress(strings.TrimSpace(s))
	if err != nil || a.Name != "" || !strings.Contains(a.Address, ".") {
		return apperr.Validation("invalid email")
	}
	return nil
}

// Password checks the minimum password length.
func Password(p string) error {
	if len([]rune(p)) < MinPassword {
		return apperr.Validation("password must be at least 8 characters")
	}
	return nil
}

// Date parses an ISO-8601 date or RFC3339 timestamp.
func Date(s, field string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, apperr.Validation("invalid " + field)
}

// Period checks that end is strictly after start.
func Period(start, end time.Time) error {
	if !end.After(start) {
		return apperr.Validation("endDate must be after startDate")
	}
	return nil
}

// Positive checks that v is greater than zero.
func Positive(v float64, field string) error {
	if !(v > 0) {
		return apperr.Validation(field + " must be positive")
	}
	return nil
}

// Premium checks that v is a positive amount no larger than models.MaxPremium.
func Premium(v float64, field string) error {
	if err := Positive(v, field); err != nil {
		return err
	}
	if v > models.MaxPremium {
		return apperr.Validation(field + " is too large")
	}
	return nil
}

// Attachment checks a claim attachment's type, extension and size.
func Attachment(filename, contentType string, size int64) error {
	ct := strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	exts, ok := allowedTypes[ct]
	if !ok {
		return apperr.Validation("file type not allowed: " + filename)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	match := false
	for _, e := range exts {
		if e == ext {
			match = true
		}
	}
	if !match {
		return apperr.Validation("file extension does not match its type: " + filename)
	}
	if size <= 0 || size > MaxFileSize {
		return apperr.Validation("file too large or empty: " + filename)
	}
	return nil
}

// FileCount checks the number of attachments of one claim.
func FileCount(n int) error {
	if n > MaxFiles {
		return apperr.Validation("at most 10 files per claim")
	}
	return nil
}

// ImageType returns the key extension for a profile picture content type.
func ImageType(contentType string) (string, error) {
	ext, ok := imageTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", apperr.Validation("profile picture must be jpeg, png or webp")
	}
	return ext, nil
}
