package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"questweaver/server/internal/models"
)

// placeholderSummaryLimit bounds the length of a synthesized placeholder
// summary, in runes.
const placeholderSummaryLimit = 160

// CorruptStateError means a persisted blob could not be turned into a
// well-formed AdventureState. It carries enough context for the caller to
// offer "start fresh" instead of serving a broken adventure.
type CorruptStateError struct {
	ChapterCount        int
	LastWellFormedIndex int
	Err                 error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt adventure state (chapters=%d, last good index=%d): %v",
		e.ChapterCount, e.LastWellFormedIndex, e.Err)
}

func (e *CorruptStateError) Unwrap() error { return e.Err }

// IsCorruptState reports whether err is a CorruptStateError.
func IsCorruptState(err error) bool {
	var ce *CorruptStateError
	return errors.As(err, &ce)
}

// Reconstructor rebuilds a working AdventureState from a persisted blob.
type Reconstructor struct{}

func NewReconstructor() *Reconstructor {
	return &Reconstructor{}
}

// Reconstruct deserializes a persisted blob into a valid AdventureState.
// Missing per-chapter summaries are repaired with marked placeholders so
// reconstruction never blocks on enrichment work; a blob that fails the
// structural invariants yields a CorruptStateError.
func (r *Reconstructor) Reconstruct(blob []byte) (*models.AdventureState, error) {
	var st models.AdventureState
	if err := json.Unmarshal(blob, &st); err != nil {
		return nil, &CorruptStateError{
			ChapterCount:        0,
			LastWellFormedIndex: -1,
			Err:                 fmt.Errorf("failed to parse blob: %w", err),
		}
	}

	if st.NarrativeSelections == nil {
		st.NarrativeSelections = map[string]string{}
	}
	if st.CharacterVisuals == nil {
		st.CharacterVisuals = map[string]string{}
	}
	if st.StateVersion == 0 {
		// Blobs written before the version field was introduced.
		st.StateVersion = models.CurrentStateVersion
	}

	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if ch.Kind == models.KindSummary || ch.Content == "" {
			continue
		}
		if ch.SummaryText == "" {
			ch.SummaryText = PlaceholderSummary(ch.Content)
			ch.SummaryIsPlaceholder = true
		}
	}

	if err := st.CheckWellFormed(); err != nil {
		var wf *models.WellFormedError
		lastGood := -1
		if errors.As(err, &wf) {
			lastGood = wf.LastWellFormedIndex
		}
		return nil, &CorruptStateError{
			ChapterCount:        len(st.Chapters),
			LastWellFormedIndex: lastGood,
			Err:                 err,
		}
	}

	return &st, nil
}

// PlaceholderSummary derives a deterministic stand-in summary from chapter
// content. The result is stable for a given content so a background task can
// later overwrite it without losing identity.
func PlaceholderSummary(content string) string {
	if utf8.RuneCountInString(content) <= placeholderSummaryLimit {
		return content
	}
	runes := []rune(content)
	return string(runes[:placeholderSummaryLimit]) + "…"
}
