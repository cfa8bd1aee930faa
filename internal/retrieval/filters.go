package retrieval

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/beaconhq/beacon/internal/indexstore"
	"github.com/beaconhq/beacon/internal/models"
)

// Structured hints recognized inside free text. Matches are stripped from
// the portion used for scoring so "deploy error last week" scores on
// "deploy error" with a one-week time cutoff.
var (
	reLastUnit  = regexp.MustCompile(`(?i)\b(?:last|past)\s+(week|month|day|year)\b`)
	rePastN     = regexp.MustCompile(`(?i)\b(?:last|past)\s+(\d+)\s+(days?|weeks?|months?)\b`)
	reYesterday = regexp.MustCompile(`(?i)\byesterday\b`)
	reToday     = regexp.MustCompile(`(?i)\btoday\b`)
	reSince     = regexp.MustCompile(`(?i)\bsince\s+(\d{4}-\d{2}-\d{2})\b`)
	reSource    = regexp.MustCompile(`(?i)\b(?:from|in)\s+([a-z][a-z0-9_-]*)\b`)
	reTagPair   = regexp.MustCompile(`(?i)\btag:([a-z0-9_-]+)=([^\s]+)`)
	reHashTag   = regexp.MustCompile(`#([a-z0-9_-]+)\b`)
	reSpaces    = regexp.MustCompile(`\s{2,}`)
)

// ExtractFilters pulls structured hints out of a raw query. knownSources
// bounds source extraction: "from slack" only becomes a filter when
// "slack" is a registered source type, otherwise the words stay in the
// scoring text. Explicit request filters are merged in by the caller.
func ExtractFilters(query string, knownSources []string, now time.Time) (string, indexstore.SearchFilters) {
	var filters indexstore.SearchFilters
	text := query

	if m := rePastN.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err == nil && n > 0 {
			cutoff := now.Add(-unitDuration(m[2], n))
			filters.TimeCutoff = &cutoff
			text = strings.Replace(text, m[0], "", 1)
		}
	} else if m := reLastUnit.FindStringSubmatch(text); m != nil {
		cutoff := now.Add(-unitDuration(m[1], 1))
		filters.TimeCutoff = &cutoff
		text = strings.Replace(text, m[0], "", 1)
	} else if m := reSince.FindStringSubmatch(text); m != nil {
		if t, err := time.Parse("2006-01-02", m[1]); err == nil {
			filters.TimeCutoff = &t
			text = strings.Replace(text, m[0], "", 1)
		}
	} else if m := reYesterday.FindString(text); m != "" {
		cutoff := now.AddDate(0, 0, -1).Truncate(24 * time.Hour)
		filters.TimeCutoff = &cutoff
		text = strings.Replace(text, m, "", 1)
	} else if m := reToday.FindString(text); m != "" {
		cutoff := now.Truncate(24 * time.Hour)
		filters.TimeCutoff = &cutoff
		text = strings.Replace(text, m, "", 1)
	}

	known := make(map[string]struct{}, len(knownSources))
	for _, s := range knownSources {
		known[strings.ToLower(s)] = struct{}{}
	}
	for _, m := range reSource.FindAllStringSubmatch(text, -1) {
		source := strings.ToLower(m[1])
		if _, ok := known[source]; !ok {
			continue
		}
		filters.SourceTypes = append(filters.SourceTypes, source)
		text = strings.Replace(text, m[0], "", 1)
	}

	for _, m := range reTagPair.FindAllStringSubmatch(text, -1) {
		filters.Tags = append(filters.Tags, models.Tag{Key: m[1], Value: m[2]})
		text = strings.Replace(text, m[0], "", 1)
	}
	for _, m := range reHashTag.FindAllStringSubmatch(text, -1) {
		filters.Tags = append(filters.Tags, models.Tag{Value: m[1]})
		text = strings.Replace(text, m[0], "", 1)
	}

	text = strings.TrimSpace(reSpaces.ReplaceAllString(text, " "))
	if text == "" {
		// Everything was a filter; keep the original so scoring still has
		// something to match on.
		text = strings.TrimSpace(query)
	}
	return text, filters
}

func unitDuration(unit string, n int) time.Duration {
	switch strings.TrimSuffix(strings.ToLower(unit), "s") {
	case "day":
		return time.Duration(n) * 24 * time.Hour
	case "week":
		return time.Duration(n) * 7 * 24 * time.Hour
	case "month":
		return time.Duration(n) * 30 * 24 * time.Hour
	case "year":
		return time.Duration(n) * 365 * 24 * time.Hour
	}
	return 0
}
