package cache

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func decodeAudioKey(t *testing.T, key string) audioKeyParams {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(key)
	if err != nil {
		t.Fatalf("key is not base64: %v", err)
	}
	var p audioKeyParams
	if err := json.Unmarshal(raw, &p); err != nil {
		t.Fatalf("key does not decode to params: %v", err)
	}
	return p
}

func TestDeriveAudioKey_Deterministic(t *testing.T) {
	text := "Der Zug nach München fährt um 14:30 Uhr ab."
	first := DeriveAudioKey(text, "de", "female")
	for i := 0; i < 10; i++ {
		if got := DeriveAudioKey(text, "de", "female"); got != first {
			t.Fatalf("call %d returned %q, want %q", i, got, first)
		}
	}
}

func TestDeriveAudioKey_LengthDisambiguatesSharedPrefix(t *testing.T) {
	prefix := strings.Repeat("a", SampleLength)
	short := DeriveAudioKey(prefix+"b", "de", "default")
	long := DeriveAudioKey(prefix+"bc", "de", "default")

	if short == long {
		t.Fatal("texts with identical sample but different length collide")
	}
	if decodeAudioKey(t, short).TextSample != decodeAudioKey(t, long).TextSample {
		t.Error("samples should be identical for a shared prefix")
	}
}

func TestDeriveAudioKey_SeparatesLanguageAndVoice(t *testing.T) {
	base := DeriveAudioKey("Hallo", "de", "default")
	if base == DeriveAudioKey("Hallo", "en", "default") {
		t.Error("language does not affect the key")
	}
	if base == DeriveAudioKey("Hallo", "de", "male") {
		t.Error("voice does not affect the key")
	}
}

func TestDeriveAudioKey_Sample(t *testing.T) {
	p := decodeAudioKey(t, DeriveAudioKey("Grüße, Straße! 42?", "de", "default"))

	if p.TextSample != "Grüße__Straße__42_" {
		t.Errorf("TextSample = %q", p.TextSample)
	}
	if p.Length != 18 {
		t.Errorf("Length = %d, want 18", p.Length)
	}
	if p.Lang != "de" || p.Voice != "default" {
		t.Errorf("unexpected params %+v", p)
	}
}

func TestDeriveAudioKey_SampleTruncatesAtCharacters(t *testing.T) {
	text := strings.Repeat("ü", SampleLength+20)
	p := decodeAudioKey(t, DeriveAudioKey(text, "de", "default"))

	if n := len([]rune(p.TextSample)); n != SampleLength {
		t.Errorf("sample has %d characters, want %d", n, SampleLength)
	}
	if p.Length != SampleLength+20 {
		t.Errorf("Length = %d, want %d", p.Length, SampleLength+20)
	}
}

func TestDeriveAudioKey_NormalizesComposition(t *testing.T) {
	composed := "Tschüss"
	decomposed := "Tschu\u0308ss"
	if DeriveAudioKey(composed, "de", "default") != DeriveAudioKey(decomposed, "de", "default") {
		t.Error("composed and decomposed umlauts produce different keys")
	}
}

func TestDeriveAudioKey_ASCIISafe(t *testing.T) {
	key := DeriveAudioKey("Ärger über Öl – „Zitat“ 😀", "de", "default")
	for _, r := range key {
		if r > 127 {
			t.Fatalf("key contains non-ASCII rune %q", r)
		}
	}
}

func TestDeriveContentKey_OrderIndependent(t *testing.T) {
	a := map[string]any{"level": "B2", "topic": "Umwelt", "count": 5, "opts": map[string]any{"x": 1, "y": 2}}
	b := map[string]any{"opts": map[string]any{"y": 2, "x": 1}, "count": 5, "topic": "Umwelt", "level": "B2"}

	ka, err := DeriveContentKey(ContentTypeExercise, a)
	if err != nil {
		t.Fatalf("DeriveContentKey failed: %v", err)
	}
	kb, err := DeriveContentKey(ContentTypeExercise, b)
	if err != nil {
		t.Fatalf("DeriveContentKey failed: %v", err)
	}
	if ka != kb {
		t.Errorf("keys differ: %s vs %s", ka, kb)
	}
	if !strings.HasPrefix(ka, "exercise:") {
		t.Errorf("key %q lacks content type prefix", ka)
	}
}

func TestDeriveContentKey_StructMatchesMap(t *testing.T) {
	type params struct {
		Topic string `json:"topic"`
		Level string `json:"level"`
	}
	ks, err := DeriveContentKey(ContentTypeAnalysis, params{Topic: "Arbeit", Level: "B2"})
	if err != nil {
		t.Fatal(err)
	}
	km, err := DeriveContentKey(ContentTypeAnalysis, map[string]string{"level": "B2", "topic": "Arbeit"})
	if err != nil {
		t.Fatal(err)
	}
	if ks != km {
		t.Errorf("struct key %s != map key %s", ks, km)
	}
}

func TestDeriveContentKey_DistinguishesValues(t *testing.T) {
	k1, _ := DeriveContentKey(ContentTypeExercise, map[string]any{"topic": "Umwelt"})
	k2, _ := DeriveContentKey(ContentTypeExercise, map[string]any{"topic": "Arbeit"})
	k3, _ := DeriveContentKey(ContentTypeAnalysis, map[string]any{"topic": "Umwelt"})
	if k1 == k2 || k1 == k3 {
		t.Error("distinct requests share a key")
	}
}

func TestDeriveContentKey_Unserializable(t *testing.T) {
	if _, err := DeriveContentKey(ContentTypeExercise, map[string]any{"fn": func() {}}); err == nil {
		t.Error("expected an error for unserializable params")
	}
}
