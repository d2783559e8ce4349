// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package keywords extracts keyword n-grams from a query for keyword-driven
// search tools.
package keywords

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// PruneMode selects how stopwords are removed from n-grams.
type PruneMode string

const (
	// PruneWithinPhrase removes stopword tokens from inside every phrase and
	// drops phrases left empty.
	PruneWithinPhrase PruneMode = "remove_stopwords_within_phrase"

	// PruneEdges drops phrases that start or end with a stopword.
	PruneEdges PruneMode = "edges"
)

// DefaultStopwords is the English stopword list used when none is configured.
var DefaultStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "am", "an", "and", "any", "are", "as", "at",
	"be", "because", "been", "before", "being", "below", "between", "both", "but", "by", "could", "did", "do",
	"does", "doing", "down", "during", "each", "few", "for", "from", "further", "had", "has", "have", "having",
	"he", "her", "here", "hers", "herself", "him", "himself", "his", "how", "i", "if", "in", "into", "is", "it",
	"its", "itself", "just", "me", "more", "most", "my", "myself", "no", "nor", "not", "now", "of", "off", "on",
	"once", "only", "or", "other", "our", "ours", "ourselves", "out", "over", "own", "same", "she", "should",
	"so", "some", "such", "than", "that", "the", "their", "theirs", "them", "themselves", "then", "there",
	"these", "they", "this", "those", "through", "to", "too", "under", "until", "up", "very", "was", "we",
	"were", "what", "when", "where", "which", "while", "who", "whom", "why", "will", "with", "you", "your",
	"yours", "yourself", "yourselves",
}

// Config configures an Extractor. Zero values select defaults.
type Config struct {
	Sizes     []int     `yaml:"sizes"`
	Stopwords []string  `yaml:"stopwords"`
	Mode      PruneMode `yaml:"prune_mode"`
	MaxNgrams int       `yaml:"max_ngrams"`
}

// Extractor produces pruned, de-duplicated n-grams.
//
// Thread Safety: immutable after construction; safe for concurrent use.
type Extractor struct {
	sizes     []int
	stopwords map[string]bool
	mode      PruneMode
	max       int
}

// NewExtractor validates cfg and builds an Extractor.
func NewExtractor(cfg Config) (*Extractor, error) {
	sizes := cfg.Sizes
	if len(sizes) == 0 {
		sizes = []int{1, 2, 3}
	}
	for _, n := range sizes {
		if n < 1 {
			return nil, fmt.Errorf("keywords: invalid n-gram size %d", n)
		}
	}
	sizes = append([]int(nil), sizes...)
	sort.Sort(sort.Reverse(sort.IntSlice(sizes)))

	words := cfg.Stopwords
	if words == nil {
		words = DefaultStopwords
	}
	stop := make(map[string]bool, len(words))
	for _, w := range words {
		stop[strings.ToLower(w)] = true
	}

	mode := cfg.Mode
	switch mode {
	case "":
		mode = PruneWithinPhrase
	case PruneWithinPhrase, PruneEdges:
	default:
		return nil, fmt.Errorf("keywords: unknown prune mode %q", cfg.Mode)
	}

	max := cfg.MaxNgrams
	if max <= 0 {
		max = 20
	}
	return &Extractor{sizes: sizes, stopwords: stop, mode: mode, max: max}, nil
}

// Extract returns the n-grams of text, longest phrases first and in text
// order within one size.
func (e *Extractor) Extract(text string) []string {
	tokens := Tokenize(text)
	seen := make(map[string]bool)
	var out []string
	for _, n := range e.sizes {
		for i := 0; i+n <= len(tokens); i++ {
			phrase, ok := e.prune(tokens[i : i+n])
			if !ok || seen[phrase] {
				continue
			}
			seen[phrase] = true
			out = append(out, phrase)
			if len(out) == e.max {
				return out
			}
		}
	}
	return out
}

// ExtractContext adapts Extract to the artifact cache's NgramFunc shape.
func (e *Extractor) ExtractContext(_ context.Context, text string) ([]string, error) {
	return e.Extract(text), nil
}

func (e *Extractor) prune(words []string) (string, bool) {
	switch e.mode {
	case PruneEdges:
		if e.stopwords[words[0]] || e.stopwords[words[len(words)-1]] {
			return "", false
		}
		return strings.Join(words, " "), true
	default:
		kept := make([]string, 0, len(words))
		for _, w := range words {
			if !e.stopwords[w] {
				kept = append(kept, w)
			}
		}
		if len(kept) == 0 {
			return "", false
		}
		return strings.Join(kept, " "), true
	}
}

// Tokenize lowercases text and splits it into word tokens. Hyphens and
// apostrophes inside a word are kept.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '\'' || r == '_')
	})
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, "-'")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
