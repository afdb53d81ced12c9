package model

import (
	"path"
	"strings"
)

// Language tags a virtual file for editor highlighting and icon selection.
// It is never used to validate content.
type Language string

const (
	LanguageHTML       Language = "html"
	LanguageCSS        Language = "css"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
	LanguageJSON       Language = "json"
	LanguageMarkdown   Language = "markdown"
	LanguageText       Language = "text"
	LanguageUnknown    Language = "unknown"
)

var extLanguages = map[string]Language{
	".html": LanguageHTML,
	".htm":  LanguageHTML,
	".css":  LanguageCSS,
	".js":   LanguageJavaScript,
	".mjs":  LanguageJavaScript,
	".ts":   LanguageTypeScript,
	".json": LanguageJSON,
	".md":   LanguageMarkdown,
	".txt":  LanguageText,
}

var tagLanguages = map[string]Language{
	"html":       LanguageHTML,
	"htm":        LanguageHTML,
	"css":        LanguageCSS,
	"javascript": LanguageJavaScript,
	"js":         LanguageJavaScript,
	"mjs":        LanguageJavaScript,
	"jsx":        LanguageJavaScript,
	"typescript": LanguageTypeScript,
	"ts":         LanguageTypeScript,
	"tsx":        LanguageTypeScript,
	"json":       LanguageJSON,
	"markdown":   LanguageMarkdown,
	"md":         LanguageMarkdown,
	"text":       LanguageText,
	"txt":        LanguageText,
	"plain":      LanguageText,
	"plaintext":  LanguageText,
}

// LanguageForName infers a language from the file extension.
func LanguageForName(name string) Language {
	if l, ok := extLanguages[strings.ToLower(path.Ext(name))]; ok {
		return l
	}
	return LanguageUnknown
}

// ParseLanguage maps a fence tag such as "js" or "html" to a Language.
func ParseLanguage(tag string) Language {
	if l, ok := tagLanguages[strings.ToLower(strings.TrimSpace(tag))]; ok {
		return l
	}
	return LanguageUnknown
}

func (l Language) Known() bool {
	return l != "" && l != LanguageUnknown
}

func (l Language) String() string {
	if l == "" {
		return string(LanguageUnknown)
	}
	return string(l)
}
