package bm25

import (
	"strings"
	"unicode"

	"github.com/go-ego/gse"
)

// Tokenizer segments Chinese legal text. Primary path is gse dictionary
// segmentation; spans the dictionary cannot split fall back to character
// bigrams so out-of-vocabulary crime names still index.
type Tokenizer struct {
	seg       gse.Segmenter
	stopwords map[string]bool
}

func NewTokenizer(stopwords []string) (*Tokenizer, error) {
	var seg gse.Segmenter
	if err := seg.LoadDict(); err != nil {
		return nil, err
	}
	stop := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		w = strings.TrimSpace(w)
		if w != "" {
			stop[w] = true
		}
	}
	return &Tokenizer{seg: seg, stopwords: stop}, nil
}

func (t *Tokenizer) Tokenize(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	raw := t.seg.CutSearch(text, true)
	out := make([]string, 0, len(raw))
	for _, tok := range raw {
		tok = strings.TrimSpace(tok)
		if tok == "" || t.stopwords[tok] || isPunct(tok) {
			continue
		}
		if len([]rune(tok)) == 1 && isHan(tok) {
			// Single-character segments carry little signal on their own;
			// the bigram fallback below covers their context.
			continue
		}
		out = append(out, strings.ToLower(tok))
	}
	if len(out) == 0 {
		return charBigrams(text)
	}
	return out
}

func charBigrams(text string) []string {
	runes := make([]rune, 0, len(text))
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			runes = append(runes, unicode.ToLower(r))
		}
	}
	if len(runes) == 0 {
		return nil
	}
	if len(runes) == 1 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}

func isPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func isHan(s string) bool {
	for _, r := range s {
		if !unicode.Is(unicode.Han, r) {
			return false
		}
	}
	return len(s) > 0
}
