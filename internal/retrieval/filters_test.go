package retrieval

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beaconhq/beacon/internal/models"
)

var filterNow = time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)

var knownSources = []string{"slack", "github", "filestore"}

func TestExtractFiltersTimePhrases(t *testing.T) {
	text, f := ExtractFilters("deploy error last week", knownSources, filterNow)
	assert.Equal(t, "deploy error", text)
	require.NotNil(t, f.TimeCutoff)
	assert.Equal(t, filterNow.Add(-7*24*time.Hour), *f.TimeCutoff)

	_, f = ExtractFilters("incidents past 3 days", knownSources, filterNow)
	require.NotNil(t, f.TimeCutoff)
	assert.Equal(t, filterNow.Add(-3*24*time.Hour), *f.TimeCutoff)

	_, f = ExtractFilters("changes since 2026-06-01", knownSources, filterNow)
	require.NotNil(t, f.TimeCutoff)
	assert.Equal(t, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC), *f.TimeCutoff)
}

func TestExtractFiltersSourceHints(t *testing.T) {
	text, f := ExtractFilters("retro notes from slack", knownSources, filterNow)
	assert.Equal(t, "retro notes", text)
	assert.Equal(t, []string{"slack"}, f.SourceTypes)

	// Unregistered source stays in the scoring text.
	text, f = ExtractFilters("emails from outlook", knownSources, filterNow)
	assert.Equal(t, "emails from outlook", text)
	assert.Empty(t, f.SourceTypes)
}

func TestExtractFiltersTags(t *testing.T) {
	text, f := ExtractFilters("rollout plan tag:team=infra #urgent", knownSources, filterNow)
	assert.Equal(t, "rollout plan", text)
	assert.Contains(t, f.Tags, models.Tag{Key: "team", Value: "infra"})
	assert.Contains(t, f.Tags, models.Tag{Value: "urgent"})
}

func TestExtractFiltersCombined(t *testing.T) {
	text, f := ExtractFilters("postmortem last month in github tag:sev=1", knownSources, filterNow)
	assert.Equal(t, "postmortem", text)
	require.NotNil(t, f.TimeCutoff)
	assert.Equal(t, []string{"github"}, f.SourceTypes)
	assert.Equal(t, []models.Tag{{Key: "sev", Value: "1"}}, f.Tags)
}

func TestExtractFiltersAllFilterQueryKeepsOriginal(t *testing.T) {
	text, f := ExtractFilters("#urgent", knownSources, filterNow)
	assert.Equal(t, "#urgent", text)
	assert.Len(t, f.Tags, 1)
}

func TestExtractFiltersPlainQueryUntouched(t *testing.T) {
	text, f := ExtractFilters("how do we rotate credentials", knownSources, filterNow)
	assert.Equal(t, "how do we rotate credentials", text)
	assert.Nil(t, f.TimeCutoff)
	assert.Empty(t, f.SourceTypes)
	assert.Empty(t, f.Tags)
}
