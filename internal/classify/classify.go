// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package classify implements the C4 intent classifier: a closed set of
// intents scored by keyword/regex bundles, with confidence normalized
// across bundles rather than taken from a single winning score (spec §4.4).
package classify

import (
	"regexp"
	"strings"

	"github.com/kquery/fusion-engine/internal/domain"
)

// bundle is one intent's keyword/pattern evidence set. Keywords are matched
// case-insensitively as substrings; Patterns are compiled regexes checked
// in addition to keywords so intents that hinge on structure (e.g. "A vs B")
// aren't limited to a fixed vocabulary.
type bundle struct {
	intent   domain.Intent
	keywords []string
	patterns []*regexp.Regexp
}

// bundles is the closed, authoritative intent table named in spec §9:
// extending the classifier is a change to this table, not to the scoring
// logic below.
var bundles = []bundle{
	{
		intent:   domain.IntentNews,
		keywords: []string{"뉴스", "소식", "보도", "news", "기사"},
	},
	{
		intent:   domain.IntentComparison,
		keywords: []string{"비교", "대비", "vs", "차이", "compare"},
		patterns: []*regexp.Regexp{regexp.MustCompile(`(?i)\bvs\.?\b`)},
	},
	{
		intent:   domain.IntentTrend,
		keywords: []string{"추세", "동향", "전망", "trend", "변화"},
	},
	{
		intent:   domain.IntentStock,
		keywords: []string{"주가", "주식", "시가", "종가", "거래량", "stock", "price"},
	},
}

// Classifier assigns a Query's Intent and Confidence from the fixed bundle
// table. It holds no mutable state and is safe for concurrent use.
type Classifier struct{}

// New builds a Classifier.
func New() *Classifier { return &Classifier{} }

// Classify scores text against every bundle and returns the Intent with the
// highest score, normalized to [0,1] confidence relative to the total
// evidence seen. An unmatched query returns domain.IntentGeneral with
// confidence 0, per spec §4.4's closed-set invariant (every query gets an
// intent, never an error).
func (c *Classifier) Classify(text string) (domain.Intent, float64) {
	lower := strings.ToLower(text)

	scores := make(map[domain.Intent]int, len(bundles))
	total := 0
	for _, b := range bundles {
		hits := 0
		for _, kw := range b.keywords {
			if strings.Contains(lower, strings.ToLower(kw)) {
				hits++
			}
		}
		for _, p := range b.patterns {
			if p.MatchString(text) {
				hits++
			}
		}
		if hits > 0 {
			scores[b.intent] = hits
			total += hits
		}
	}

	if total == 0 {
		return domain.IntentGeneral, 0
	}

	var best domain.Intent
	bestHits := -1
	for _, b := range bundles {
		if h, ok := scores[b.intent]; ok && h > bestHits {
			best = b.intent
			bestHits = h
		}
	}

	confidence := float64(bestHits) / float64(total)
	return best, confidence
}
