package events

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// genreIDs maps genre keywords to Ticketmaster Discovery genre ids.
var genreIDs = map[string]string{
	"rock":       "KnvZfZ7vAeA",
	"pop":        "KnvZfZ7vAev",
	"classical":  "KnvZfZ7v7nJ",
	"jazz":       "KnvZfZ7vAvE",
	"hip hop":    "KnvZfZ7vAv1",
	"rap":        "KnvZfZ7vAv1",
	"electronic": "KnvZfZ7vAvF",
	"edm":        "KnvZfZ7vAvF",
	"country":    "KnvZfZ7vAv6",
	"r&b":        "KnvZfZ7vAee",
	"metal":      "KnvZfZ7vAvt",
	"indie":      "KnvZfZ7vAed",
	"folk":       "KnvZfZ7vAeF",
}

// GenreID returns the provider genre id for a keyword, or "".
func GenreID(genre string) string {
	return genreIDs[strings.ToLower(strings.TrimSpace(genre))]
}

// capitalize upper-cases the first letter only ("hip hop" -> "Hip hop").
func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
