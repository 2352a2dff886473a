package content

import (
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"strings"

	"github.com/h2non/filetype"
	"github.com/microcosm-cc/bluemonday"
)

var (
	policy      = bluemonday.UGCPolicy()
	strict      = bluemonday.StrictPolicy()
	accountIDRe = regexp.MustCompile(`^[A-Z0-9]{5,15}$`)
	emailRe     = regexp.MustCompile(`^[^@\s]+@[^@\s]+$`)
)

var (
	ErrNotDataURI = errors.New("payload is not a base64 data URI")
	ErrNotImage   = errors.New("payload is not an image")
)

// Sanitize removes unsafe HTML from the input string using a UGC policy.
// It is used for free text like bios.
func Sanitize(input string) string {
	return policy.Sanitize(input)
}

// PlainText strips every tag. It is used for display names.
func PlainText(input string) string {
	return strings.TrimSpace(strict.Sanitize(input))
}

// Escape escapes special characters like "<" to become "&lt;".
// It matches the behavior of html/template and is safe for use in HTML attributes.
func Escape(input string) string {
	return template.HTMLEscapeString(input)
}

// NormalizeAccountID trims and upper-cases a user supplied account id.
func NormalizeAccountID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// ValidateAccountID checks a normalized, non-privileged account id:
// 5 to 15 characters, letters and digits only.
func ValidateAccountID(id string) error {
	if id == "" {
		return errors.New("account id cannot be empty")
	}
	if !accountIDRe.MatchString(id) {
		return errors.New("account id must be 5-15 letters or digits")
	}
	return nil
}

func ValidateEmail(email string) error {
	if !emailRe.MatchString(strings.TrimSpace(email)) {
		return errors.New("invalid email address")
	}
	return nil
}

// DetectImage checks that dataURI carries a base64 encoded image and
// returns its MIME type as sniffed from the payload bytes.
func DetectImage(dataURI string) (string, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return "", ErrNotDataURI
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return "", ErrNotDataURI
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotDataURI, err)
	}
	if !filetype.IsImage(data) {
		return "", ErrNotImage
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return kind.MIME.Value, nil
}
