package extract

import (
	"github.com/abadojack/whatlanggo"
)

const languageSample = 4000

// DetectLanguage returns the ISO 639-1 code of the dominant language of text, or ""
// when the detector is not confident.
func DetectLanguage(text string) string {
	r := []rune(text)
	if len(r) > languageSample {
		text = string(r[:languageSample])
	}
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
