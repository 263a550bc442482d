package whatsapp

import "strings"

// Cloud API length limits for interactive messages.
const (
	HeaderLimit      = 60
	BodyLimit        = 1024
	FooterLimit      = 60
	ButtonTitleLimit = 20
	RowTitleLimit    = 24
	RowDescLimit     = 72
	MaxButtons       = 3
)

const ellipsis = "…"

// Truncate cuts text to limit runes, appending an ellipsis when it had to
// cut. Zero or negative limits leave the text untouched.
func Truncate(text string, limit int) string {
	text = strings.TrimSpace(text)
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit == 1 {
		return ellipsis
	}
	return strings.TrimSpace(string(runes[:limit-1])) + ellipsis
}
