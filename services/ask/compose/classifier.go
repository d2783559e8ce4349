// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package compose

import "strings"

// Classifier decides whether a query asks for metrics.
type Classifier interface {
	IsMetric(query string) bool
}

// DefaultMetricKeywords mark a query as a metrics question.
var DefaultMetricKeywords = []string{
	"how many", "count", "average", "sum", "total", "report",
	"list all", "github", "users", "opportunities",
}

// KeywordClassifier matches lowercase keyword substrings.
type KeywordClassifier struct {
	keywords []string
}

// NewKeywordClassifier builds a classifier. Nil keywords selects
// DefaultMetricKeywords.
func NewKeywordClassifier(keywords []string) KeywordClassifier {
	if keywords == nil {
		keywords = DefaultMetricKeywords
	}
	kw := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			kw = append(kw, k)
		}
	}
	return KeywordClassifier{keywords: kw}
}

// IsMetric implements Classifier.
func (k KeywordClassifier) IsMetric(query string) bool {
	q := strings.ToLower(query)
	for _, kw := range k.keywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}
