// Package tokenizer turns raw book text into a stream of lowercased terms
// tagged with their character offsets. Stopwords are removed per language;
// no stemming is applied.
package tokenizer

import (
	"strings"
	"unicode"
)

// ScoringMinLength is the minimum term length (in characters) used by the
// TF-IDF scoring pass. Plain indexing keeps every non-stopword term.
const ScoringMinLength = 3

// Token represents a single normalised term and the character offset of
// its first rune in the original text.
type Token struct {
	Term     string
	Position int
}

// Tokenizer holds the per-document tokenization policy. The zero value
// tokenizes English text without a length filter.
type Tokenizer struct {
	Language  Language
	MinLength int
}

// New returns a Tokenizer for the given language code.
func New(languageCode string) Tokenizer {
	return Tokenizer{Language: ParseLanguage(languageCode)}
}

// Scoring returns a copy of t that drops terms shorter than
// ScoringMinLength.
func (t Tokenizer) Scoring() Tokenizer {
	t.MinLength = ScoringMinLength
	return t
}

// Tokenize scans text left to right for maximal runs of word characters and
// returns the surviving terms in order of appearance.
func (t Tokenizer) Tokenize(text string) []Token {
	tokens := make([]Token, 0, len(text)/8)
	var word strings.Builder
	start, length, offset := 0, 0, 0

	emit := func() {
		if length == 0 {
			return
		}
		term := word.String()
		word.Reset()
		if length >= t.MinLength && !IsStopword(t.Language, term) {
			tokens = append(tokens, Token{Term: term, Position: start})
		}
		length = 0
	}

	for _, r := range text {
		if isWordRune(r) {
			if length == 0 {
				start = offset
			}
			word.WriteRune(unicode.ToLower(r))
			length++
		} else {
			emit()
		}
		offset++
	}
	emit()
	return tokens
}

// Positions groups the tokens of text by term. Each position list is
// strictly ascending because the scan never moves backwards.
func (t Tokenizer) Positions(text string) map[string][]int {
	positions := make(map[string][]int)
	for _, tok := range t.Tokenize(text) {
		positions[tok.Term] = append(positions[tok.Term], tok.Position)
	}
	return positions
}

// Tokenize tokenizes English text with the plain indexing policy.
func Tokenize(text string) []Token {
	return Tokenizer{}.Tokenize(text)
}

// Normalize reduces a query string to the single term it would be indexed
// under. It returns false when nothing survives tokenization.
func Normalize(query string) (string, bool) {
	tokens := Tokenizer{}.Tokenize(query)
	if len(tokens) == 0 {
		return "", false
	}
	return tokens[0].Term, true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsMark(r)
}
