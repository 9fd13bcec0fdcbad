package tts

import "strings"

// Supported gateway languages and voices. Other values are passed through
// untouched and left for the gateway to reject.
const (
	LanguageGerman  = "de"
	LanguageEnglish = "en"

	VoiceDefault = "default"
	VoiceFemale  = "female"
	VoiceMale    = "male"
)

// Request is a single synthesis request.
type Request struct {
	Text     string `json:"text"`
	Language string `json:"language"`
	Voice    string `json:"voice"`
}

// Normalize fills in the default language and voice.
func (r Request) Normalize() Request {
	r.Language = strings.ToLower(strings.TrimSpace(r.Language))
	if r.Language == "" {
		r.Language = LanguageGerman
	}
	r.Voice = strings.ToLower(strings.TrimSpace(r.Voice))
	if r.Voice == "" {
		r.Voice = VoiceDefault
	}
	return r
}

// Validate rejects requests that cannot be synthesized at all.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return NewTTSError(ErrorCodeInvalidInput, "text is empty", nil)
	}
	return nil
}

// Audio is an encoded audio clip as returned by a synthesizer.
type Audio struct {
	Data     []byte
	MimeType string
}

// Empty reports whether the clip carries no audio bytes.
func (a *Audio) Empty() bool {
	return a == nil || len(a.Data) == 0
}
