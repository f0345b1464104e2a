// Package quality scores OCR output for garbling. Scoring is pure and
// deterministic: the same text and word lists always give the same score.
package quality

import (
	"bufio"
	_ "embed"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

//go:embed whitelist.txt
var defaultWhitelist string

const (
	// maxTokenRunes is the longest token considered plausible.
	maxTokenRunes = 30
	// maxConsonantRun is the longest run of Latin consonants considered plausible.
	maxConsonantRun = 8
	// maxRepeatedLetters is the longest run of one repeated letter considered plausible.
	maxRepeatedLetters = 3
)

// Report breaks down how a text was scored.
type Report struct {
	Tokens      int
	Garbled     int
	Whitelisted int
	Score       float64
}

// Analyzer scores page text and decides which pages need enhancement.
type Analyzer struct {
	threshold float64
	force     bool
	whitelist map[string]struct{}
	lexicon   map[string]struct{}
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithWhitelist adds terms to the embedded whitelist.
func WithWhitelist(terms ...string) Option {
	return func(a *Analyzer) {
		addTerms(a.whitelist, terms)
	}
}

// WithLexicon enables dictionary checking: letter-only tokens missing from
// the lexicon count as garbled.
func WithLexicon(words ...string) Option {
	return func(a *Analyzer) {
		if a.lexicon == nil {
			a.lexicon = make(map[string]struct{}, len(words))
		}
		addTerms(a.lexicon, words)
	}
}

// WithoutDefaultWhitelist drops the embedded whitelist.
func WithoutDefaultWhitelist() Option {
	return func(a *Analyzer) {
		a.whitelist = make(map[string]struct{})
	}
}

// New creates an analyzer. Pages scoring below threshold are flagged; with
// force every page is flagged.
func New(threshold float64, force bool, opts ...Option) *Analyzer {
	a := &Analyzer{
		threshold: threshold,
		force:     force,
		whitelist: make(map[string]struct{}),
	}
	addTerms(a.whitelist, parseTerms(defaultWhitelist))
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Threshold returns the flagging threshold.
func (a *Analyzer) Threshold() float64 {
	return a.threshold
}

// Score returns the garbling score of text in [0,1]; 1 means clean.
func (a *Analyzer) Score(text string) float64 {
	return a.Analyze(text).Score
}

// Flag reports whether a page with the given score needs enhancement.
func (a *Analyzer) Flag(score float64) bool {
	return a.force || score < a.threshold
}

// Analyze tokenizes text and counts garbled tokens.
func (a *Analyzer) Analyze(text string) Report {
	folder := cases.Fold()
	var r Report
	for _, raw := range strings.FieldsFunc(text, isSeparator) {
		if hasGarbageRune(raw) {
			r.Tokens++
			r.Garbled++
			continue
		}
		word := trimToken(raw)
		if word == "" {
			continue
		}
		r.Tokens++
		key := folder.String(norm.NFC.String(word))
		if a.whitelisted(key) {
			r.Whitelisted++
			continue
		}
		if a.garbled(word, key) {
			r.Garbled++
		}
	}
	r.Score = score(r.Garbled, r.Tokens)
	return r
}

func (a *Analyzer) whitelisted(key string) bool {
	if _, ok := a.whitelist[key]; ok {
		return true
	}
	for _, suffix := range []string{"'s", "’s"} {
		if base, ok := strings.CutSuffix(key, suffix); ok {
			if _, ok := a.whitelist[base]; ok {
				return true
			}
		}
	}
	return false
}

func (a *Analyzer) garbled(word, key string) bool {
	if utf8.RuneCountInString(word) > maxTokenRunes {
		return true
	}
	if abnormalTransitions(word) {
		return true
	}
	return a.nonDictionary(word, key)
}

func (a *Analyzer) nonDictionary(word, key string) bool {
	if !isLetters(word) {
		return false
	}
	if a.lexicon != nil {
		if _, ok := a.lexicon[key]; !ok {
			return true
		}
	}
	if repeatedLetters(word) > maxRepeatedLetters {
		return true
	}
	if !isLatin(word) {
		return false
	}
	n := utf8.RuneCountInString(word)
	if n >= 4 && !hasVowel(key) && !isAcronym(word) {
		return true
	}
	return consonantRun(key) > maxConsonantRun
}

func score(garbled, total int) float64 {
	if total == 0 {
		return 1.0
	}
	s := 1 - float64(garbled)/float64(total)
	return min(1, max(0, s))
}

// hasGarbageRune reports private-use, replacement or control characters.
func hasGarbageRune(s string) bool {
	for _, r := range s {
		switch {
		case r >= 0xE000 && r <= 0xF8FF:
			return true
		case r == utf8.RuneError:
			return true
		case r < 0x20:
			return true
		}
	}
	return false
}

// isSeparator splits tokens on white space and on dashes other than the
// hyphen, so words joined by an em dash count separately.
func isSeparator(r rune) bool {
	if unicode.IsSpace(r) {
		return true
	}
	switch r {
	case '-', '\u2010', '\u2011':
		return false
	}
	return unicode.Is(unicode.Pd, r)
}

func trimToken(s string) string {
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}

// inWordSymbols may sit between letters without signalling garbling.
const inWordSymbols = "-\u2010\u2011'’./·"

// abnormalTransitions flags tokens such as "l0v3", "w@rd" or "tHiS".
func abnormalTransitions(word string) bool {
	runes := []rune(word)
	letterDigit, lowerUpper := 0, 0
	for i := 1; i < len(runes); i++ {
		prev, cur := runes[i-1], runes[i]
		if (unicode.IsLetter(prev) && unicode.IsDigit(cur)) || (unicode.IsDigit(prev) && unicode.IsLetter(cur)) {
			letterDigit++
		}
		if unicode.IsLower(prev) && unicode.IsUpper(cur) {
			lowerUpper++
		}
		if i+1 < len(runes) && unicode.IsLetter(prev) && unicode.IsLetter(runes[i+1]) &&
			!unicode.IsLetter(cur) && !unicode.IsDigit(cur) && !unicode.IsMark(cur) &&
			!strings.ContainsRune(inWordSymbols, cur) {
			return true
		}
	}
	return letterDigit >= 2 || lowerUpper >= 2
}

func isLetters(word string) bool {
	for _, r := range word {
		if !unicode.IsLetter(r) && !unicode.IsMark(r) {
			return false
		}
	}
	return true
}

func isLatin(word string) bool {
	for _, r := range word {
		if unicode.IsLetter(r) && !unicode.Is(unicode.Latin, r) {
			return false
		}
	}
	return true
}

func isAcronym(word string) bool {
	if utf8.RuneCountInString(word) > 6 {
		return false
	}
	for _, r := range word {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// vowels covers folded Latin vowels, including the accented forms common in
// German, French and transliterated Greek.
const vowels = "aeiouyàáâãäåæāăąèéêëēėęěìíîïīįòóôõöøōœùúûüūůűųýÿ"

func hasVowel(key string) bool {
	return strings.ContainsAny(key, vowels)
}

func consonantRun(key string) int {
	longest, run := 0, 0
	for _, r := range key {
		if unicode.IsLetter(r) && !strings.ContainsRune(vowels, r) {
			run++
			longest = max(longest, run)
			continue
		}
		run = 0
	}
	return longest
}

func repeatedLetters(word string) int {
	longest, run := 0, 0
	var last rune
	for _, r := range word {
		if unicode.IsLetter(r) && r == last {
			run++
		} else {
			run = 1
		}
		last = r
		longest = max(longest, run)
	}
	return longest
}

func parseTerms(text string) []string {
	var terms []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		terms = append(terms, strings.Fields(line)...)
	}
	return terms
}

func addTerms(set map[string]struct{}, terms []string) {
	folder := cases.Fold()
	for _, t := range terms {
		for _, f := range strings.Fields(t) {
			if w := trimToken(f); w != "" {
				set[folder.String(norm.NFC.String(w))] = struct{}{}
			}
		}
	}
}

// ReadTerms reads a word list: one term per line, '#' starts a comment line.
func ReadTerms(r io.Reader) ([]string, error) {
	var terms []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		terms = append(terms, parseTerms(scanner.Text())...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return terms, nil
}

// LoadTermsFile reads a word list from disk.
func LoadTermsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open word list: %w", err)
	}
	defer f.Close()
	return ReadTerms(f)
}
