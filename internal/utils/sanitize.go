package utils

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

// MaxURLLen is the hard cap applied to validated URLs.
const MaxURLLen = 2048

var (
	// Control characters, including newlines: alert text is rendered as a
	// single logical line everywhere downstream
	controlCharPattern = regexp.MustCompile(`[\x00-\x1F\x7F]`)

	// Markup and quoting characters stripped from free-text fields
	markupCharPattern = regexp.MustCompile("[<>\"'`]")

	// URL-style prefixes that smuggle executable content into text fields
	dangerousPrefixPattern = regexp.MustCompile(`(?i)(javascript|data)\s*:`)
)

// SanitizeText strips angle brackets, quotes, control characters, and
// javascript:/data: prefixes from free-form provider text, then trims and
// truncates to maxLen. It never fails; unusable input becomes "".
func SanitizeText(text string, maxLen int) string {
	text = controlCharPattern.ReplaceAllString(text, " ")
	text = markupCharPattern.ReplaceAllString(text, "")
	text = dangerousPrefixPattern.ReplaceAllString(text, "")
	text = strings.TrimSpace(text)
	if maxLen > 0 && len(text) > maxLen {
		text = strings.TrimSpace(text[:maxLen])
	}
	return text
}

// ValidateURL accepts only well-formed absolute http/https URLs. Overlong
// URLs are truncated to MaxURLLen characters, which preserves the
// scheme+host prefix. Anything else returns "" (absent) with a logged
// warning, never an error.
func ValidateURL(v interface{}) string {
	raw, ok := v.(string)
	if !ok || strings.TrimSpace(raw) == "" {
		return ""
	}
	raw = strings.TrimSpace(raw)
	if len(raw) > MaxURLLen {
		log.Warn().Int("length", len(raw)).Msg("truncating overlong URL")
		raw = raw[:MaxURLLen]
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		log.Warn().Str("url", EscapeForLogging(raw, 128)).Msg("dropping invalid URL")
		return ""
	}
	return raw
}

// EscapeForLogging truncates text and flattens newlines so it is safe to
// embed in a single structured log field.
func EscapeForLogging(text string, maxLen int) string {
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	text = strings.ReplaceAll(text, "\n", "\\n")
	text = strings.ReplaceAll(text, "\r", "\\r")
	text = strings.ReplaceAll(text, "\t", "\\t")
	return text
}
