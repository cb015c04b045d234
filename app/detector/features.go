// Package detector implements the spam detection pipeline: text feature
// extraction and normalization, the text classifier, external reputation
// checks, the optional LLM check and the verdict engine fusing them.
package detector

import (
	"regexp"
	"strings"

	"github.com/forPelevin/gomoji"
)

var (
	linkRe  = regexp.MustCompile(`(https?://[^\s]+|www\.[^\s]+|[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}(?:/[^\s]*)?)`)
	tagRe   = regexp.MustCompile(`@[a-zA-Z0-9_]+`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9_.+-]+@[a-zA-Z0-9-]+\.[a-zA-Z0-9-.]+`)

	linkTokenRe = regexp.MustCompile(`\bLINK\b`)
	tagTokenRe  = regexp.MustCompile(`\bTAG\b`)
	spacesRe    = regexp.MustCompile(`\s+`)

	punctReplacer = strings.NewReplacer(func() []string {
		const punct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
		pairs := make([]string, 0, len(punct)*2)
		for _, r := range punct {
			pairs = append(pairs, string(r), " ")
		}
		return pairs
	}()...)
)

// FeatureSet holds surface-level counters of a message text
type FeatureSet struct {
	Emojis         int
	Newlines       int
	WhitespaceRuns int
	Links          int
	Tags           int
}

// Extract computes surface features of the raw text
func Extract(text string) FeatureSet {
	return FeatureSet{
		Emojis:         len(gomoji.CollectAll(text)),
		Newlines:       strings.Count(text, "\n"),
		WhitespaceRuns: len(spacesRe.FindAllString(text, -1)),
		Links:          len(linkRe.FindAllString(text, -1)),
		Tags:           len(tagRe.FindAllString(text, -1)),
	}
}

// Options controls the preprocessing steps. Steps always apply in the
// fixed order: lowercase, link replacement, mention replacement,
// punctuation stripping, emoji stripping, whitespace collapsing.
type Options struct {
	Lowercase          bool
	ReplaceLinks       bool
	ReplaceTags        bool
	StripPunctuation   bool
	StripEmoji         bool
	CollapseWhitespace bool
}

// DefaultOptions enables every preprocessing step
func DefaultOptions() Options {
	return Options{
		Lowercase:          true,
		ReplaceLinks:       true,
		ReplaceTags:        true,
		StripPunctuation:   true,
		StripEmoji:         true,
		CollapseWhitespace: true,
	}
}

// Preprocess normalizes the text for the classifier. Links and mentions
// collapse to the uppercase placeholders [LINK] and [TAG] so the
// classifier sees their presence but not their content. The placeholders
// survive punctuation stripping because the bare tokens are re-wrapped
// afterwards.
func Preprocess(text string, opts Options) string {
	res := text
	if opts.Lowercase {
		res = strings.ToLower(res)
	}
	if opts.ReplaceLinks {
		res = linkRe.ReplaceAllString(res, "[LINK]")
	}
	if opts.ReplaceTags {
		res = tagRe.ReplaceAllString(res, "[TAG]")
	}
	if opts.StripPunctuation {
		res = punctReplacer.Replace(res)
		res = linkTokenRe.ReplaceAllString(res, "[LINK]")
		res = tagTokenRe.ReplaceAllString(res, "[TAG]")
	}
	if opts.StripEmoji {
		res = gomoji.RemoveEmojis(res)
	}
	if opts.CollapseWhitespace {
		res = spacesRe.ReplaceAllString(res, " ")
		res = strings.TrimSpace(res)
	}
	return res
}

// ContainsEmail reports whether the raw text contains an email address.
// This check runs on the original text, not the preprocessed form.
func ContainsEmail(text string) bool {
	return emailRe.MatchString(text)
}
