package utils

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxNameLength  = 100
	maxLabelLength = 32
)

// IsValidName checks that a personal name is non-blank, not overly long and
// made of letters, spaces, hyphens, apostrophes or periods.
func IsValidName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return false
	}
	for _, char := range name {
		switch {
		case unicode.IsLetter(char), unicode.IsMark(char):
		case char == ' ', char == '-', char == '\'', char == '.':
		default:
			return false
		}
	}
	return true
}

// IsValidLabel checks an optional questionnaire choice such as an age group
// or gender: empty, or a short printable string.
func IsValidLabel(label string) bool {
	if utf8.RuneCountInString(label) > maxLabelLength {
		return false
	}
	for _, char := range label {
		if !unicode.IsPrint(char) {
			return false
		}
	}
	return true
}
