// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"strings"
	"unicode"
)

// SentenceChunker splits text into windows of whole sentences.
//
// # Description
//
// Sentences end at '.', '!' or '?' followed by whitespace, or at a newline.
// Sentences are packed into a chunk until adding the next one would exceed
// MaxWords. Each new chunk starts with the last OverlapWords words of the
// previous chunk. A single sentence longer than MaxWords is cut on word
// boundaries.
//
// # Thread Safety
//
// Immutable; safe for concurrent use.
type SentenceChunker struct {
	MaxWords     int
	OverlapWords int
}

// NewSentenceChunker returns a chunker with the query defaults (300/40).
func NewSentenceChunker() SentenceChunker {
	return SentenceChunker{MaxWords: 300, OverlapWords: 40}
}

// Chunk splits text. Blank input yields no chunks.
func (c SentenceChunker) Chunk(text string) []string {
	maxWords := c.MaxWords
	if maxWords <= 0 {
		maxWords = 300
	}
	overlap := c.OverlapWords
	if overlap < 0 || overlap >= maxWords {
		overlap = 0
	}

	var chunks []string
	var cur []string
	curSentences := 0
	flush := func() {
		if curSentences == 0 {
			return
		}
		chunks = append(chunks, strings.Join(cur, " "))
		if overlap > 0 && len(cur) > overlap {
			cur = append([]string(nil), cur[len(cur)-overlap:]...)
		} else if overlap > 0 {
			cur = append([]string(nil), cur...)
		} else {
			cur = nil
		}
		curSentences = 0
	}

	for _, sentence := range splitSentences(text) {
		words := strings.Fields(sentence)
		for len(words) > maxWords {
			flush()
			cur = nil
			chunks = append(chunks, strings.Join(words[:maxWords], " "))
			words = words[maxWords:]
		}
		if len(words) == 0 {
			continue
		}
		if curSentences > 0 && len(cur)+len(words) > maxWords {
			flush()
			if len(cur)+len(words) > maxWords {
				cur = nil
			}
		}
		cur = append(cur, words...)
		curSentences++
	}
	if curSentences > 0 {
		chunks = append(chunks, strings.Join(cur, " "))
	}
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	runes := []rune(text)
	for i, r := range runes {
		if r == '\n' {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
			continue
		}
		b.WriteRune(r)
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(b.String()); s != "" {
				out = append(out, s)
			}
			b.Reset()
		}
	}
	if s := strings.TrimSpace(b.String()); s != "" {
		out = append(out, s)
	}
	return out
}
