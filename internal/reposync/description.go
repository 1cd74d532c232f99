package reposync

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// SanitizeDescription removes Unicode control, format, private-use and surrogate characters,
// which the destination API rejects in free-text fields.
func SanitizeDescription(description *string) *string {
	if description == nil {
		return nil
	}
	sanitized, _, transformError := transform.String(runes.Remove(runes.In(unicode.C)), *description)
	if transformError != nil {
		return nil
	}
	return &sanitized
}
