package core

import (
	"html"
	"regexp"
	"strings"
)

// MaxMessageLength bounds the accepted message text.
const MaxMessageLength = 1000

var (
	roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)
	usernameRe = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	scriptTagRe    = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	iframeTagRe    = regexp.MustCompile(`(?is)<iframe\b.*?</iframe>`)
	eventHandlerRe = regexp.MustCompile(`(?i)on\w+\s*=\s*['"]`)
)

// ValidRoomName reports whether name is a syntactically valid room name.
func ValidRoomName(name string) bool {
	return roomNameRe.MatchString(name)
}

// ValidUsername reports whether name is a syntactically valid username.
func ValidUsername(name string) bool {
	return usernameRe.MatchString(name)
}

// ValidMessage reports whether text is a non-empty message within bounds.
func ValidMessage(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	return len(text) <= MaxMessageLength
}

// Sanitize strips script/iframe tags and inline event handlers, then
// escapes the remaining HTML. Applied before persistence and fan-out.
func Sanitize(text string) string {
	sanitized := scriptTagRe.ReplaceAllString(text, "")
	sanitized = eventHandlerRe.ReplaceAllString(sanitized, "")
	sanitized = iframeTagRe.ReplaceAllString(sanitized, "")
	return html.EscapeString(sanitized)
}
