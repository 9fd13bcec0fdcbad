// Package sentence splits exercise text into sentences for queued playback.
package sentence

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// MinLength is the shortest fragment kept as a sentence, in runes.
const MinLength = 2

// Words per minute assumed by EstimateDuration at rate 1.
const wordsPerMinute = 150

// abbreviations never end a sentence. Keys are lower case without the
// trailing period.
var abbreviations = map[string]bool{
	"abs": true, "abt": true, "bzgl": true, "bzw": true, "ca": true,
	"d.h": true, "dr": true, "evtl": true, "ggf": true, "hr": true,
	"hrn": true, "inkl": true, "jh": true, "max": true, "min": true,
	"mio": true, "mrd": true, "nr": true, "prof": true, "s": true,
	"sog": true, "str": true, "tel": true, "u.a": true, "usw": true,
	"vgl": true, "z.b": true, "z.t": true, "zb": true, "zzgl": true,
	"etc": true, "e.g": true, "i.e": true, "mr": true, "mrs": true,
	"vs": true,
}

var months = map[string]bool{
	"januar": true, "februar": true, "märz": true, "april": true,
	"mai": true, "juni": true, "juli": true, "august": true,
	"september": true, "oktober": true, "november": true, "dezember": true,
}

func isTerminal(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

func isClosing(r rune) bool {
	switch r {
	case '"', '\'', ')', ']', '»', '«', '“', '”', '‘', '’':
		return true
	}
	return false
}

// Split returns the sentences of text in order, trimmed and with blank
// lines acting as hard breaks.
func Split(text string) []string {
	var out []string
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		out = append(out, splitBlock(strings.Join(strings.Fields(block), " "))...)
	}
	return out
}

func splitBlock(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if !isTerminal(r) {
			continue
		}
		word := lastWord(s[start : i-size])

		// Swallow runs like "?!" or "..." and closing quotes.
		for i < len(s) {
			next, n := utf8.DecodeRuneInString(s[i:])
			if !isTerminal(next) && !isClosing(next) {
				break
			}
			i += n
		}
		if i < len(s) && s[i] != ' ' {
			continue
		}
		if r == '.' && !endsSentence(word, nextWord(s[i:])) {
			continue
		}
		out = appendSentence(out, s[start:i])
		start = i
	}
	return appendSentence(out, s[start:])
}

// endsSentence decides whether a period after word is a sentence boundary.
func endsSentence(word, next string) bool {
	if next == "" {
		return true
	}
	lw := strings.ToLower(word)
	if abbreviations[lw] {
		return false
	}
	// Initials such as "J. S. Bach".
	if utf8.RuneCountInString(word) == 1 && unicode.IsUpper([]rune(word)[0]) {
		return false
	}
	// Ordinals such as "am 3. Mai" or "die 2. Aufgabe".
	if word != "" && strings.Trim(word, "0123456789") == "" {
		return !months[strings.ToLower(strings.TrimRight(next, ".,;:!?"))] &&
			startsUpper(next) && !isTeilNoun(next)
	}
	r, _ := utf8.DecodeRuneInString(next)
	return unicode.IsUpper(r) || strings.ContainsRune("0123456789\"„»(", r)
}

// isTeilNoun catches common nouns that follow ordinals in exam instructions.
func isTeilNoun(w string) bool {
	switch strings.ToLower(strings.TrimRight(w, ".,;:!?")) {
	case "teil", "aufgabe", "klasse", "stock", "etage", "platz", "auflage":
		return true
	}
	return false
}

func startsUpper(w string) bool {
	r, _ := utf8.DecodeRuneInString(w)
	return unicode.IsUpper(r)
}

func lastWord(s string) string {
	if i := strings.LastIndexByte(s, ' '); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
}

func nextWord(s string) string {
	f := strings.Fields(s)
	if len(f) == 0 {
		return ""
	}
	return f[0]
}

func appendSentence(out []string, s string) []string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) < MinLength {
		return out
	}
	return append(out, s)
}

// EstimateDuration approximates how long text takes to speak at rate.
func EstimateDuration(text string, rate float64) time.Duration {
	if rate <= 0 {
		rate = 1
	}
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	seconds := float64(words) * 60 / (wordsPerMinute * rate)
	return time.Duration(seconds * float64(time.Second))
}
