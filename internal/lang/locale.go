// Package lang picks the notification language from Accept-Language and
// holds the translated notification strings.
package lang

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	KeyDefaultBody = "New note"
	KeyOpen        = "Open"
	KeyClose       = "Close"
	KeySaved       = "Note saved!"
)

var supported = []language.Tag{language.English, language.Polish}

var matcher = language.NewMatcher(supported)

func init() {
	for key, pl := range map[string]string{
		KeyDefaultBody: "Nowa notatka",
		KeyOpen:        "Otwórz",
		KeyClose:       "Zamknij",
		KeySaved:       "Notatka zapisana!",
	} {
		_ = message.SetString(language.Polish, key, pl)
		_ = message.SetString(language.English, key, key)
	}
}

// FromAcceptLanguage returns the best supported tag, English when nothing
// matches or the header is malformed.
func FromAcceptLanguage(header string) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := matcher.Match(tags...)
	return supported[idx]
}

// Text translates key into tag's language.
func Text(tag language.Tag, key string) string {
	return message.NewPrinter(tag).Sprintf(key)
}
