package tokenizer

import (
	"bufio"
	"embed"
	"fmt"
	"strings"
)

// Language is one of the fixed set of languages with a stopword list.
type Language int

const (
	English Language = iota
	French
	Spanish
	German
	Italian
)

// DefaultLanguage is used whenever a language code is not recognised.
const DefaultLanguage = English

var languageCodes = map[string]Language{
	"en": English,
	"fr": French,
	"es": Spanish,
	"de": German,
	"it": Italian,
}

var languageFiles = map[Language]string{
	English: "stopwords/english.txt",
	French:  "stopwords/french.txt",
	Spanish: "stopwords/spanish.txt",
	German:  "stopwords/german.txt",
	Italian: "stopwords/italian.txt",
}

//go:embed stopwords/*.txt
var stopwordFiles embed.FS

var stopwordSets = loadStopwords()

// ParseLanguage maps a catalog language field to a Language. Catalog
// entries may list several codes ("en, fr"); the first one wins.
func ParseLanguage(code string) Language {
	first, _, _ := strings.Cut(code, ",")
	first = strings.ToLower(strings.TrimSpace(first))
	if lang, ok := languageCodes[first]; ok {
		return lang
	}
	return DefaultLanguage
}

// Code returns the two-letter ISO 639-1 code.
func (l Language) Code() string {
	for code, lang := range languageCodes {
		if lang == l {
			return code
		}
	}
	return DefaultLanguage.Code()
}

func (l Language) String() string {
	switch l {
	case English:
		return "english"
	case French:
		return "french"
	case Spanish:
		return "spanish"
	case German:
		return "german"
	case Italian:
		return "italian"
	default:
		return "unknown"
	}
}

// IsStopword reports whether word (already lowercased) is a stopword in l.
func IsStopword(l Language, word string) bool {
	set, ok := stopwordSets[l]
	if !ok {
		set = stopwordSets[DefaultLanguage]
	}
	_, stop := set[word]
	return stop
}

func loadStopwords() map[Language]map[string]struct{} {
	sets := make(map[Language]map[string]struct{}, len(languageFiles))
	for lang, path := range languageFiles {
		f, err := stopwordFiles.Open(path)
		if err != nil {
			panic(fmt.Sprintf("tokenizer: opening embedded stopwords %s: %v", path, err))
		}
		set := make(map[string]struct{})
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			word := strings.TrimSpace(scanner.Text())
			if word != "" {
				set[word] = struct{}{}
			}
		}
		f.Close()
		sets[lang] = set
	}
	return sets
}
