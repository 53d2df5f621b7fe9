package security

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Security limits and configuration
const (
	// MaxTemplateNameLength is the maximum length for template names
	MaxTemplateNameLength = 100

	// MaxRunIDLength is the maximum length for run identifiers
	MaxRunIDLength = 64

	// MaxConcurrency is the hard limit for worker loops in one process
	MaxConcurrency = 1000

	// MaxErrorMessageLength is the maximum length for stored error messages
	MaxErrorMessageLength = 4096
)

// Validation errors
var (
	ErrInvalidTemplateName = errors.New("training: invalid template name (must be alphanumeric, start with letter)")
	ErrTemplateNameTooLong = errors.New("training: template name too long")
	ErrInvalidRunID        = errors.New("training: invalid run id")
)

// validName matches alphanumeric, hyphens, underscores, and dots
var validName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_\-\.]*$`)

// validRunID allows the characters of uuids and integer ids, nothing path-like
var validRunID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_\-]*$`)

// ValidateTemplateName validates a template name used as a registry key
func ValidateTemplateName(name string) error {
	if name == "" {
		return ErrInvalidTemplateName
	}
	if len(name) > MaxTemplateNameLength {
		return ErrTemplateNameTooLong
	}
	if !validName.MatchString(name) {
		return ErrInvalidTemplateName
	}
	return nil
}

// ValidateRunID validates a run id before it becomes part of a file path
func ValidateRunID(id string) error {
	if id == "" || len(id) > MaxRunIDLength || !validRunID.MatchString(id) {
		return ErrInvalidRunID
	}
	return nil
}

// SanitizeErrorMessage truncates and sanitizes error messages for storage
func SanitizeErrorMessage(msg string) string {
	if msg == "" {
		return ""
	}

	// Remove any null bytes or control characters (except newlines)
	var sanitized strings.Builder
	sanitized.Grow(len(msg))

	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' || (r >= 32 && r != 127) {
			sanitized.WriteRune(r)
		}
	}

	result := strings.TrimSpace(sanitized.String())

	if utf8.RuneCountInString(result) > MaxErrorMessageLength {
		runes := []rune(result)
		result = string(runes[:MaxErrorMessageLength-3]) + "..."
	}

	return result
}

// ClampConcurrency ensures concurrency is within limits
func ClampConcurrency(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxConcurrency {
		return MaxConcurrency
	}
	return n
}
