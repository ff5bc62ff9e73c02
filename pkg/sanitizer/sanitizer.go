package sanitizer

import (
	"regexp"
	"strings"
	"unicode"
)

type Strategy func(string) string

type Pipeline []Strategy

func (p Pipeline) Apply(s string) string {
	for _, fn := range p {
		s = fn(s)
	}
	return s
}

var (
	reNonAlpha      = regexp.MustCompile(`[^A-Za-z]+`)
	reFlightNoSpace = regexp.MustCompile(`[\s\-]+`)
)

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return ' '
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// collapseSpaces trims and folds every whitespace run into one space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func SanitizeText(input string) string {
	return Pipeline{stripControl, collapseSpaces}.Apply(input)
}

// SanitizeMultiline keeps line breaks but strips other control runes and
// trailing whitespace on every line.
func SanitizeMultiline(input string) string {
	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, strings.TrimRightFunc(
			strings.Map(func(r rune) rune {
				if r != '\t' && unicode.IsControl(r) {
					return -1
				}
				return r
			}, line), unicode.IsSpace))
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func SanitizePlace(input string) string {
	return SanitizeText(input)
}

func SanitizeAirportCode(input string) string {
	return Pipeline{
		func(s string) string { return reNonAlpha.ReplaceAllString(s, "") },
		strings.ToUpper,
	}.Apply(input)
}

func SanitizeFlightNumber(input string) string {
	return Pipeline{
		strings.TrimSpace,
		func(s string) string { return reFlightNoSpace.ReplaceAllString(s, "") },
		strings.ToUpper,
	}.Apply(input)
}

func SanitizeCurrency(input string) string {
	return strings.ToUpper(strings.TrimSpace(input))
}

func SanitizeReason(input string) string {
	return SanitizeText(input)
}
