package engine

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questweaver/server/internal/models"
)

func testState(t *testing.T) *models.AdventureState {
	t.Helper()
	st, err := models.NewAdventureState("adv-1", models.Identity{UserID: "u1"},
		"science", "astronomy", models.PlanChapterKinds(4), nil, "test")
	require.NoError(t, err)
	return st
}

func marshal(t *testing.T, st *models.AdventureState) []byte {
	t.Helper()
	blob, err := json.Marshal(st)
	require.NoError(t, err)
	return blob
}

func TestReconstructRoundTrip(t *testing.T) {
	st := testState(t)
	_, err := st.AppendChapter(models.ChapterState{Kind: models.KindStory, Content: "the journey begins"})
	require.NoError(t, err)

	got, err := NewReconstructor().Reconstruct(marshal(t, st))
	require.NoError(t, err)
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, models.CurrentStateVersion, got.StateVersion)
	assert.Len(t, got.Chapters, 1)
	assert.True(t, got.LastChapter().Open())
}

func TestReconstructFillsPlaceholderSummaries(t *testing.T) {
	st := testState(t)
	long := strings.Repeat("a very long chapter sentence. ", 20)
	_, err := st.AppendChapter(models.ChapterState{Kind: models.KindStory, Content: long})
	require.NoError(t, err)

	got, err := NewReconstructor().Reconstruct(marshal(t, st))
	require.NoError(t, err)

	ch := got.LastChapter()
	assert.True(t, ch.SummaryIsPlaceholder)
	assert.NotEmpty(t, ch.SummaryText)
	assert.Less(t, len([]rune(ch.SummaryText)), len([]rune(long)))

	// A summary that already exists must not be overwritten.
	ch.SummaryText = "real summary"
	ch.SummaryIsPlaceholder = false
	again, err := NewReconstructor().Reconstruct(marshal(t, got))
	require.NoError(t, err)
	assert.Equal(t, "real summary", again.LastChapter().SummaryText)
	assert.False(t, again.LastChapter().SummaryIsPlaceholder)
}

func TestReconstructUnparseableBlob(t *testing.T) {
	_, err := NewReconstructor().Reconstruct([]byte("{not json"))
	require.Error(t, err)
	assert.True(t, IsCorruptState(err))

	var ce *CorruptStateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, -1, ce.LastWellFormedIndex)
	assert.Equal(t, 0, ce.ChapterCount)
}

func TestReconstructIllFormedState(t *testing.T) {
	st := testState(t)
	st.Chapters = []models.ChapterState{
		{Number: 1, Kind: models.KindStory, Content: "one",
			Response: &models.ChapterResponse{ChosenDestinationID: "a"}},
		{Number: 5, Kind: models.KindStory, Content: "five"},
	}

	_, err := NewReconstructor().Reconstruct(marshal(t, st))
	require.Error(t, err)

	var ce *CorruptStateError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.ChapterCount)
	assert.Equal(t, 0, ce.LastWellFormedIndex)
}

func TestReconstructDefaultsStateVersion(t *testing.T) {
	st := testState(t)
	st.StateVersion = 0

	got, err := NewReconstructor().Reconstruct(marshal(t, st))
	require.NoError(t, err)
	assert.Equal(t, models.CurrentStateVersion, got.StateVersion)
}

func TestPlaceholderSummary(t *testing.T) {
	short := "a short chapter"
	assert.Equal(t, short, PlaceholderSummary(short))

	long := strings.Repeat("x", 500)
	got := PlaceholderSummary(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, got, PlaceholderSummary(long), "placeholder must be deterministic")
}
