package moderation

import "github.com/abadojack/whatlanggo"

// DetectLanguage returns the ISO 639-1 code of the text, or "und" when the
// detector is not confident enough.
func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return "und"
	}
	if code := info.Lang.Iso6391(); code != "" {
		return code
	}
	return "und"
}
