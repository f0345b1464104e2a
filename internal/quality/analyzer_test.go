package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScoreCleanText(t *testing.T) {
	a := New(0.8, false)
	text := "The phenomenological method describes experience as it is lived, before theory intervenes."
	assert.Equal(t, 1.0, a.Score(text))
}

func TestScoreEmptyText(t *testing.T) {
	a := New(0.8, false)
	for _, text := range []string{"", "   \n\t ", "... -- !!"} {
		assert.Equal(t, 1.0, a.Score(text), "text %q", text)
	}
}

func TestAnalyzeDetectsGarbling(t *testing.T) {
	tests := []struct {
		name  string
		token string
	}{
		{"letter digit switching", "l0v3ly"},
		{"embedded symbol", "w@rd"},
		{"case flipping", "tHiS"},
		{"no vowels", "qwrtzp"},
		{"replacement character", "wo\ufffdrd"},
		{"private use glyph", "ab\ue001c"},
		{"repeated letters", "aaaaargh"},
		{"improbable length", strings.Repeat("ab", 20)},
		{"consonant cluster", "bcdfghjklm"},
	}
	a := New(0.8, false)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := a.Analyze(tt.token)
			assert.Equal(t, 1, r.Tokens)
			assert.Equal(t, 1, r.Garbled, "expected %q to be garbled", tt.token)
			assert.Equal(t, 0.0, r.Score)
		})
	}
}

func TestAnalyzeAcceptsPlausibleTokens(t *testing.T) {
	a := New(0.8, false)
	for _, token := range []string{"HTML", "COVID19", "1990s", "3rd", "McDonald", "and/or", "well-known", "l'autre", "Schadenfreude", "(1927)", "pp.", "Angstschweiß"} {
		r := a.Analyze(token)
		assert.Zero(t, r.Garbled, "expected %q to be clean", token)
	}
}

func TestDashesSeparateWords(t *testing.T) {
	a := New(0.85, false)
	for _, text := range []string{
		"The argument—if it is one—rests on Kant’s first Critique.",
		"Being—that is, Dasein—is always already…",
		"pp. 12–15 and the years 1927‒1929",
		"a well-known non‐trivial claim",
	} {
		r := a.Analyze(text)
		assert.Zero(t, r.Garbled, "text %q", text)
		assert.False(t, a.Flag(r.Score), "text %q", text)
	}

	r := a.Analyze("argument—if")
	assert.Equal(t, 2, r.Tokens)
}

func TestScoreFraction(t *testing.T) {
	a := New(0.8, false)
	r := a.Analyze("good text with qwrtzp and xkcdvbnm here")
	assert.Equal(t, 7, r.Tokens)
	assert.Equal(t, 2, r.Garbled)
	assert.InDelta(t, 1-2.0/7.0, r.Score, 1e-9)
}

func TestWhitelistedTermsAreNeverGarbled(t *testing.T) {
	a := New(0.8, false, WithLexicon("the", "concept", "of", "is", "central"))
	r := a.Analyze("the concept of Dasein is central")
	assert.Equal(t, 0, r.Garbled)
	assert.Equal(t, 1, r.Whitelisted)

	r = a.Analyze("the concept of λόγος is central")
	assert.Equal(t, 0, r.Garbled)

	bare := New(0.8, false, WithoutDefaultWhitelist(), WithLexicon("the", "concept", "of", "is", "central"))
	r = bare.Analyze("the concept of Dasein is central")
	assert.Equal(t, 1, r.Garbled)
}

func TestWhitelistMatchingIsCaseAndNormalizationInsensitive(t *testing.T) {
	a := New(0.8, false, WithoutDefaultWhitelist(), WithWhitelist("différance"), WithLexicon())
	decomposed := "diffe\u0301rance"
	assert.Equal(t, 1.0, a.Score("DIFFÉRANCE"))
	assert.Equal(t, 1.0, a.Score(decomposed))
	assert.Equal(t, 1.0, a.Score("différance's"))
}

func TestWhitelistNeverLowersScore(t *testing.T) {
	a := New(0.8, false, WithLexicon("the", "author", "argues", "that", "is", "not", "a", "thing"))
	bases := []string{
		"the author argues that",
		"the qwrtzp author argues l0v3 that",
		"tHiS xkcdvbnm w@rd",
		"",
	}
	terms := []string{"Dasein", "ἀλήθεια", "jouissance", "Zeitgeist", "a priori"}
	for _, base := range bases {
		for _, term := range terms {
			with := strings.TrimSpace(base + " " + term + " is not a thing " + term)
			without := strings.TrimSpace(base + " is not a thing")
			assert.GreaterOrEqual(t, a.Score(with), a.Score(without), "base=%q term=%q", base, term)
		}
	}
}

func TestScoreIsBoundedAndDeterministic(t *testing.T) {
	a := New(0.8, false)
	texts := []string{"", "clean words only", "qwrtzp xkcdvbnm", "��", "Dasein l0v3"}
	for _, text := range texts {
		s := a.Score(text)
		assert.GreaterOrEqual(t, s, 0.0)
		assert.LessOrEqual(t, s, 1.0)
		assert.Equal(t, s, a.Score(text))
	}
}

func TestFlag(t *testing.T) {
	a := New(0.9, false)
	assert.True(t, a.Flag(0.5))
	assert.False(t, a.Flag(0.9))
	assert.False(t, a.Flag(1.0))

	forced := New(0.95, true)
	assert.True(t, forced.Flag(1.0))
}

func TestReadTerms(t *testing.T) {
	terms, err := ReadTerms(strings.NewReader("# comment\nDasein\n\n  a priori \n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Dasein", "a", "priori"}, terms)
}

func TestEmbeddedWhitelistLoads(t *testing.T) {
	a := New(0.8, false)
	for _, term := range []string{"Weltanschauung", "écriture", "εὐδαιμονία", "cogito"} {
		r := a.Analyze(term)
		assert.Equal(t, 1, r.Whitelisted, "term %q", term)
	}
}
