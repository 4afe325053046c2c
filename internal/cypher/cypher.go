// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cypher builds label-aware Cypher statements for the Graph
// adapter. Each supported entity label gets its own MATCH/WHERE branch over
// a configured set of named keys, combined with UNION, instead of a
// generic `ANY(k IN keys(n) WHERE ...)` scan: direct `toLower(n.key)
// CONTAINS toLower($q)` clauses let the graph's own text indexes do the
// filtering, where a generic key-scan would force a full property read per
// node and defeat those indexes entirely (spec §4.8).
package cypher

import (
	"fmt"
	"strings"
)

// Label is a graph node label this package knows how to build a branch for.
type Label string

const (
	LabelCompany    Label = "Company"
	LabelNews       Label = "News"
	LabelEvent      Label = "Event"
	LabelSector     Label = "Sector"
	LabelTechnology Label = "Technology"
	LabelTheme      Label = "Theme"
	LabelProgram    Label = "Program"
	LabelAgency     Label = "Agency"
)

// DefaultLabels is the label set queried when the caller doesn't narrow it,
// matching the entity types domain.Entities can carry plus the broader
// ontology labels the graph ingests.
var DefaultLabels = []Label{
	LabelCompany, LabelNews, LabelEvent, LabelSector,
	LabelTechnology, LabelTheme, LabelProgram, LabelAgency,
}

// labelKeys restricts the per-label text search to a configured set of
// string properties, so a label picks up exactly the attributes it's known
// to carry instead of scanning every key on the node.
var labelKeys = map[Label][]string{
	LabelCompany:    {"name", "description"},
	LabelNews:       {"title", "summary"},
	LabelEvent:      {"title", "description"},
	LabelSector:     {"name"},
	LabelTechnology: {"name", "description"},
	LabelTheme:      {"name", "description"},
	LabelProgram:    {"name", "agency"},
	LabelAgency:     {"name"},
}

// tsFields are the node properties ts is drawn from, in priority order, per
// the graph query contract in spec §6.
var tsFields = []string{"published_at", "award_date", "lastSeenAt"}

// Query describes the graph keyword lookup to build: the search text, the
// labels to search across, a result limit, and an optional recency window
// and domain filter (spec §6's graph query contract params: q, limit,
// lookback_days, domain).
type Query struct {
	Text         string
	EntityNames  []string
	Labels       []Label
	Limit        int
	LookbackDays int
	Domain       string
}

// searchText resolves the keyword search string: Text takes priority, and
// EntityNames (kept for callers that still pass discrete entity names) is
// joined into one search phrase otherwise.
func (q Query) searchText() string {
	if q.Text != "" {
		return q.Text
	}
	return strings.Join(q.EntityNames, " ")
}

// Build renders a label-aware UNION query projecting {n, labels, ts} rows,
// and the parameter map to execute it with. Each branch matches nodes of
// one label whose configured keys contain the search text (case-insensitive
// substring match), so the graph's text index on those properties serves
// the lookup instead of a per-node key scan.
func Build(q Query) (string, map[string]any) {
	labels := q.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 25
	}

	branches := make([]string, 0, len(labels))
	for _, label := range labels {
		branches = append(branches, branchFor(label, q.LookbackDays, q.Domain))
	}

	statement := fmt.Sprintf(
		"CALL {\n%s\n}\nRETURN n, labels, ts\nORDER BY ts DESC\nLIMIT $limit",
		strings.Join(branches, "\nUNION\n"),
	)

	params := map[string]any{
		"q":     q.searchText(),
		"limit": limit,
	}
	if q.LookbackDays > 0 {
		params["lookback_days"] = q.LookbackDays
	}
	if q.Domain != "" {
		params["domain"] = q.Domain
	}
	return statement, params
}

// branchFor renders the MATCH/WHERE/RETURN clause for one label: an OR across
// its configured keys, each a direct case-insensitive substring match
// against the query text, plus an optional recency window and domain
// filter shared by every branch.
func branchFor(label Label, lookbackDays int, domain string) string {
	keys := labelKeys[label]
	if len(keys) == 0 {
		keys = []string{"name"}
	}

	conditions := make([]string, 0, len(keys))
	for _, key := range keys {
		conditions = append(conditions, fmt.Sprintf(
			"(n.%s IS NOT NULL AND toLower(n.%s) CONTAINS toLower($q))", key, key,
		))
	}
	where := "(" + strings.Join(conditions, " OR ") + ")"

	var sb strings.Builder
	fmt.Fprintf(&sb, "MATCH (n:%s)\nWHERE %s", string(label), where)

	ts := fmt.Sprintf("coalesce(n.%s)", strings.Join(tsFields, ", n."))
	if lookbackDays > 0 {
		fmt.Fprintf(&sb, "\nAND %s >= datetime() - duration({days: $lookback_days})", ts)
	}
	if domain != "" {
		sb.WriteString("\nAND n.domain = $domain")
	}

	fmt.Fprintf(&sb, "\nRETURN n, labels(n) AS labels, %s AS ts", ts)
	return sb.String()
}
