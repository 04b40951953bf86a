package nlu

import (
	"regexp"
	"strings"
)

// DefaultName is used when no usable name was given.
const DefaultName = "friend"

var (
	greetingPrefixRe = regexp.MustCompile(`(?i)^(hi|hello|hey|greetings)\b[,.\s]*`)
	lettersRe        = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// CleanName extracts a display name from the reply to "what's your name?":
// leading greeting removed, first word kept, title-cased. Anything shorter
// than two letters or containing non-letters becomes DefaultName.
func CleanName(text string) string {
	s := greetingPrefixRe.ReplaceAllString(strings.TrimSpace(text), "")
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DefaultName
	}
	name := fields[0]
	if len(name) < 2 || !lettersRe.MatchString(name) {
		return DefaultName
	}
	return strings.ToUpper(name[:1]) + strings.ToLower(name[1:])
}
