package config

const (
	LangEN = "en"
	LangES = "es"
)

// SupportedLanguage reports whether translations ship for lang.
func SupportedLanguage(lang string) bool {
	return lang == LangEN || lang == LangES
}

// LocaleFor returns lang if it is supported, English otherwise.
func LocaleFor(lang string) string {
	if SupportedLanguage(lang) {
		return lang
	}
	return LangEN
}
