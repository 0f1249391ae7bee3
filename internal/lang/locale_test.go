package lang

import (
	"testing"

	"golang.org/x/text/language"
)

func TestFromAcceptLanguage(t *testing.T) {
	cases := []struct {
		header string
		want   language.Tag
	}{
		{"", language.English},
		{"pl-PL,pl;q=0.9,en;q=0.8", language.Polish},
		{"en-US,en;q=0.9,pl;q=0.5", language.English},
		{"de-DE", language.English},
		{";;;", language.English},
	}
	for _, tc := range cases {
		if got := FromAcceptLanguage(tc.header); got != tc.want {
			t.Errorf("FromAcceptLanguage(%q) = %v, want %v", tc.header, got, tc.want)
		}
	}
}

func TestText(t *testing.T) {
	if got := Text(language.Polish, KeyDefaultBody); got != "Nowa notatka" {
		t.Errorf("unexpected polish text %q", got)
	}
	if got := Text(language.English, KeyOpen); got != "Open" {
		t.Errorf("unexpected english text %q", got)
	}
}
