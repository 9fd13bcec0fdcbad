package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// SampleLength is the number of leading characters of a text that take part
// in its audio cache key.
const SampleLength = 100

// audioKeyParams is serialized in field order; changing the order or the
// JSON names changes every stored key.
type audioKeyParams struct {
	TextSample string `json:"textSample"`
	Length     int    `json:"length"`
	Lang       string `json:"lang"`
	Voice      string `json:"voice"`
}

// DeriveAudioKey maps a synthesis request to its durable cache key. The text
// is NFC normalized; its first SampleLength characters, with everything but
// ASCII letters, digits and German diacritics replaced by '_', are combined
// with the total character count, language and voice.
func DeriveAudioKey(text, language, voice string) string {
	text = norm.NFC.String(text)

	p := audioKeyParams{
		TextSample: sample(text),
		Length:     utf8.RuneCountInString(text),
		Lang:       language,
		Voice:      voice,
	}

	// Marshalling a struct of strings and ints cannot fail.
	raw, _ := json.Marshal(p)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func sample(text string) string {
	var b strings.Builder
	n := 0
	for _, r := range text {
		if n == SampleLength {
			break
		}
		if allowedKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
		n++
	}
	return b.String()
}

func allowedKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	}
	switch r {
	case 'ä', 'ö', 'ü', 'Ä', 'Ö', 'Ü', 'ß':
		return true
	}
	return false
}

// DeriveContentKey maps the parameters of a content request to its cache
// key. Object keys are sorted at every level before hashing, so maps built in
// any order (or structs with the same JSON shape) produce the same key.
func DeriveContentKey(ct ContentType, params any) (string, error) {
	canonical, err := canonicalJSON(params)
	if err != nil {
		return "", fmt.Errorf("failed to serialize %s parameters: %w", ct, err)
	}
	sum := sha256.Sum256(canonical)
	return ct.String() + ":" + hex.EncodeToString(sum[:]), nil
}

// canonicalJSON re-encodes v through a generic value; encoding/json writes
// map keys in sorted order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
