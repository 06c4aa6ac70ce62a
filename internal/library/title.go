package library

import (
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// deriveTitle turns a file name such as "moby_dick-1851.epub" into a display
// title ("Moby Dick 1851").
func deriveTitle(sourcePath string) string {
	base := filepath.Base(sourcePath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range stem {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == '\'':
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return base
	}
	return cases.Title(language.Und).String(title)
}
