package moderation

import (
	"log/slog"
	"strings"

	"github.com/abadojack/whatlanggo"
)

// ContentFilter censors message contents and tags them with their language.
// A nil moderator only detects the language.
type ContentFilter struct {
	log       *slog.Logger
	moderator *Moderator
}

func NewContentFilter(log *slog.Logger, moderator *Moderator) *ContentFilter {
	return &ContentFilter{log: log, moderator: moderator}
}

// NewContentFilterFromDictionaries loads the censored words from dir and builds the filter.
func NewContentFilterFromDictionaries(log *slog.Logger, loader *CensoredLoader, dir string, censoredChar rune) (*ContentFilter, error) {
	data, err := loader.LoadAll(dir)
	if err != nil {
		return nil, err
	}
	log.Info("Censored dictionaries loaded",
		"languages", strings.Join(data.Languages, ","),
		"words", len(data.Words))

	moderator, err := NewModerator(data.Words, censoredChar, log)
	if err != nil {
		return nil, err
	}
	return NewContentFilter(log, moderator), nil
}

// Moderate returns the censored content and its ISO 639-1 language, empty when unsure.
func (f *ContentFilter) Moderate(content string) (string, string) {
	lang := detectLang(content)
	if f.moderator == nil {
		return content, lang
	}
	censored, words := f.moderator.Censor(content)
	if len(words) > 0 {
		f.log.Debug("Message censored", "words", len(words), "lang", lang)
	}
	return censored, lang
}

func detectLang(content string) string {
	if strings.TrimSpace(content) == "" {
		return ""
	}
	info := whatlanggo.Detect(content)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}
