package parsers

import (
	"strings"

	"github.com/retailchat-ai/server/internal/agent/model"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

const (
	maxIntentLen  = 256
	maxErrSnippet = 200
)

// intentCutset holds what the classifier tends to wrap names in.
const intentCutset = "'\"`.“”‘’*: \t\r\n"

// CleanIntent strips quotes, periods and whitespace around a classifier answer.
func CleanIntent(s string) string {
	s = strings.Trim(s, intentCutset)
	// models sometimes echo the registry line: "Name: X | Description: ..."
	if i := strings.Index(s, "|"); i >= 0 {
		s = s[:i]
	}
	if len(s) > 5 && strings.EqualFold(s[:5], "name:") {
		s = s[5:]
	}
	return strings.Trim(s, intentCutset)
}

// ParseIntent maps a raw classifier answer onto the registered names.
// Matching ignores case. "Other", "none" and empty select no tool; anything
// else outside names is rejected.
func ParseIntent(raw string, names []string) model.IntentResult {
	if len(raw) > maxIntentLen {
		logx.Warn().
			Str("component", "intent_parser").
			Int("max_len", maxIntentLen).
			Int("orig_len", len(raw)).
			Msg("classifier answer too long")
		return model.Rejected(safeSnippet(raw))
	}

	cleaned := CleanIntent(raw)
	switch strings.ToLower(cleaned) {
	case "", "other", "none", "null":
		return model.NoIntent(cleaned)
	}
	for _, n := range names {
		if strings.EqualFold(cleaned, n) {
			return model.Selected(n, cleaned)
		}
	}
	return model.Rejected(cleaned)
}

func safeSnippet(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet]
}
