package detect

import (
	"context"
	"regexp"
	"strings"

	"lobang-bot/internal/domain"
)

// KeywordClassifier is the deterministic fallback rule: a message counts
// as a deal submission when it carries a price token or an offer word.
type KeywordClassifier struct{}

var _ domain.DealClassifier = KeywordClassifier{}

var priceToken = regexp.MustCompile(`(?i)(?:\$|s\$)\s*\d|\d+\s*%|\d+\s*(?:percent|off)\b|1[\s-]?for[\s-]?1|buy\s*\d+\s*(?:get|free)`)

var offerWords = []string{
	"deal", "promo", "promotion", "discount", "offer", "special",
	"free", "happy hour", "set lunch", "set meal", "lobang",
}

// IsDealSubmission never errors; it exists so both classifiers share an
// interface.
func (KeywordClassifier) IsDealSubmission(_ context.Context, text string) (bool, error) {
	return MatchesDealKeywords(text), nil
}

// MatchesDealKeywords applies the keyword rule directly.
func MatchesDealKeywords(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return false
	}
	if priceToken.MatchString(text) {
		return true
	}
	for _, word := range offerWords {
		if strings.Contains(text, word) {
			return true
		}
	}
	return false
}
