package tts

import "strings"

// DefaultLang is the tag used when a request leaves lang empty and the
// fallback for tags that are not in the table.
const DefaultLang = "en"

// Language is a resolved entry of the language/voice table.
type Language struct {
	Tag   string
	Code  LangCode
	Voice string
}

// languages maps client language tags to Kokoro language codes and default voices.
var languages = map[string]Language{
	"en": {Tag: "en", Code: "a", Voice: "af_heart"},   // American English
	"gb": {Tag: "gb", Code: "b", Voice: "bf_sunny"},   // British English
	"es": {Tag: "es", Code: "e", Voice: "em_alex"},    // Spanish
	"ja": {Tag: "ja", Code: "j", Voice: "jf_yama"},    // Japanese
	"zh": {Tag: "zh", Code: "z", Voice: "zf_xiaobei"}, // Mandarin Chinese
}

// Voices resolves language tags against the fixed table, with optional
// per-tag voice overrides.
type Voices struct {
	overrides map[string]string
}

// NewVoices builds a resolver. Overrides for tags outside the table are ignored.
func NewVoices(overrides map[string]string) *Voices {
	v := &Voices{overrides: make(map[string]string, len(overrides))}
	for tag, voice := range overrides {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if _, ok := languages[tag]; ok && voice != "" {
			v.overrides[tag] = voice
		}
	}
	return v
}

// Resolve maps a tag (case-insensitive) to its language entry. Unknown or
// empty tags fall back to English.
func (v *Voices) Resolve(tag string) Language {
	tag = strings.ToLower(strings.TrimSpace(tag))
	lang, ok := languages[tag]
	if !ok {
		lang = languages[DefaultLang]
	}
	if voice, ok := v.overrides[lang.Tag]; ok {
		lang.Voice = voice
	}
	return lang
}

// SupportedTags returns the tags of the language table in a stable order.
func SupportedTags() []string {
	return []string{"en", "gb", "es", "ja", "zh"}
}
