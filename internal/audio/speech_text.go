package audio

import (
	"regexp"
	"strings"
	"unicode"
)

type speechRule struct {
	re   *regexp.Regexp
	with string
}

// speechRules run in order: links resolve before bare URLs are dropped, and
// guideline citations go before their brackets would be read out.
var speechRules = []speechRule{
	{regexp.MustCompile(`\[([^\]]+)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	{regexp.MustCompile(`\[(?:\d+(?:\s*[,-]\s*\d+)*|[A-Z]{2,5}[- ]?\d+(?:\.\d+)*)\]`), " "},
	{regexp.MustCompile(`(?i)\((?:see\s+)?(?:section|standing order|guideline)s?\s+[\w.-]+\)`), " "},
	{regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`), ""},
	{regexp.MustCompile(`\b(\d{2,3})\s*/\s*(\d{2,3})\s*mmHg\b`), "$1 over $2"},
	{regexp.MustCompile(`(\d)\s*°\s*C\b`), "$1 degrees Celsius"},
	{regexp.MustCompile(`(\d)\s*mg\b`), "$1 milligrams"},
	{regexp.MustCompile(`(\d)\s*m[lL]\b`), "$1 millilitres"},
	{regexp.MustCompile(`(\d)\s*kg\b`), "$1 kilograms"},
}

var (
	dosingShorthandPattern = regexp.MustCompile(`\b(OD|BD|TDS|QDS|PRN)\b`)
	dosingShorthand        = map[string]string{
		"OD":  "once daily",
		"BD":  "twice daily",
		"TDS": "three times daily",
		"QDS": "four times daily",
		"PRN": "as needed",
	}
	spaceBeforeStopPattern = regexp.MustCompile(`\s+([.,!?;:])`)
)

// SpeechText turns a triage reply into what the synthesizer should read:
// markup, links and guideline citations are dropped and dosing shorthand is
// spelled out. Combining tone marks survive; Yoruba and Igbo need them.
func SpeechText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	for _, rule := range speechRules {
		raw = rule.re.ReplaceAllString(raw, rule.with)
	}
	raw = dosingShorthandPattern.ReplaceAllStringFunc(raw, func(s string) string {
		return dosingShorthand[s]
	})
	raw = strings.Map(speechRune, raw)
	raw = strings.Join(strings.Fields(raw), " ")
	return spaceBeforeStopPattern.ReplaceAllString(raw, "$1")
}

// speechRune keeps letters, digits, marks and the punctuation a voice uses
// for pacing. Markup turns into a word break; emoji and joiners vanish.
func speechRune(r rune) rune {
	switch r {
	case '.', ',', '!', '?', ':', ';', '\'', '"', '-', '(', ')', '/', '%':
		return r
	case '\u200d', '\ufe0f', '\u20e3':
		return -1
	}
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return r
	case unicode.IsSpace(r), unicode.IsPunct(r):
		return ' '
	case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk), unicode.IsControl(r):
		return -1
	}
	return ' '
}
