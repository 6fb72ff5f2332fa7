package config

// DefaultLanguage is used when a detected language is outside the supported set.
const DefaultLanguage = "en"

// LanguageNames provides human-readable names for the languages the detector may return.
var LanguageNames = map[string]string{
	"pt": "Portuguese",
	"en": "English",
	"es": "Spanish",
	"fr": "French",
	"de": "German",
	"it": "Italian",
	"ja": "Japanese",
	"ko": "Korean",
	"zh": "Chinese",
	"ro": "Romanian",
	"ru": "Russian",
	"ar": "Arabic",
	"hi": "Hindi",
	"nl": "Dutch",
	"pl": "Polish",
	"tr": "Turkish",
}

// IsSupportedLanguage reports whether code is an accepted ISO 639-1 detection result.
func IsSupportedLanguage(code string) bool {
	_, ok := LanguageNames[code]
	return ok
}

// LanguageName returns the display name for code, or the code itself when unknown.
func LanguageName(code string) string {
	if name, ok := LanguageNames[code]; ok {
		return name
	}
	return code
}
