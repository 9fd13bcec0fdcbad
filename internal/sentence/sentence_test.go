package sentence

import (
	"slices"
	"testing"
	"time"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{
			name: "simple",
			in:   "Guten Tag. Wie geht es Ihnen? Sehr gut!",
			want: []string{"Guten Tag.", "Wie geht es Ihnen?", "Sehr gut!"},
		},
		{
			name: "abbreviations",
			in:   "Das kostet z.B. 5 Euro. Fragen Sie Dr. Weber usw. heute.",
			want: []string{"Das kostet z.B. 5 Euro.", "Fragen Sie Dr. Weber usw. heute."},
		},
		{
			name: "ordinal date",
			in:   "Wir treffen uns am 3. Mai in Berlin. Bis dann.",
			want: []string{"Wir treffen uns am 3. Mai in Berlin.", "Bis dann."},
		},
		{
			name: "ordinal noun",
			in:   "Lesen Sie den 2. Teil der Prüfung.",
			want: []string{"Lesen Sie den 2. Teil der Prüfung."},
		},
		{
			name: "number ends sentence",
			in:   "Ich bin 30. Dann kam ich nach Köln.",
			want: []string{"Ich bin 30.", "Dann kam ich nach Köln."},
		},
		{
			name: "quotes and mixed punctuation",
			in:   "Er rief: „Komm!“ Sie antwortete nicht. Wirklich?! Ja.",
			want: []string{"Er rief: „Komm!“", "Sie antwortete nicht.", "Wirklich?!", "Ja."},
		},
		{
			name: "ellipsis inside sentence",
			in:   "Na ja... mal sehen. Gut.",
			want: []string{"Na ja... mal sehen.", "Gut."},
		},
		{
			name: "paragraphs break hard",
			in:   "Überschrift ohne Punkt\n\nErster Satz. Zweiter\nSatz.",
			want: []string{"Überschrift ohne Punkt", "Erster Satz.", "Zweiter Satz."},
		},
		{
			name: "no terminal punctuation",
			in:   "einfach weiter",
			want: []string{"einfach weiter"},
		},
		{
			name: "blank",
			in:   "  \n\n ",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.in)
			if !slices.Equal(got, tt.want) {
				t.Errorf("Split() =\n  %q\nwant\n  %q", got, tt.want)
			}
		})
	}
}

func TestEstimateDuration(t *testing.T) {
	text := "eins zwei drei vier fünf"
	if got := EstimateDuration(text, 1); got != 2*time.Second {
		t.Errorf("EstimateDuration() = %v, want 2s", got)
	}
	if got := EstimateDuration(text, 2); got != time.Second {
		t.Errorf("EstimateDuration() at 2x = %v, want 1s", got)
	}
	if got := EstimateDuration("", 1); got != 0 {
		t.Errorf("EstimateDuration() empty = %v, want 0", got)
	}
}
