package models

import (
	"fmt"
	"time"
)

// ChapterKind is the narrative role of a chapter.
type ChapterKind string

const (
	KindStory      ChapterKind = "story"
	KindLesson     ChapterKind = "lesson"
	KindReflect    ChapterKind = "reflect"
	KindConclusion ChapterKind = "conclusion"
	KindSummary    ChapterKind = "summary"
)

// Valid reports whether k is one of the known chapter kinds.
func (k ChapterKind) Valid() bool {
	switch k {
	case KindStory, KindLesson, KindReflect, KindConclusion, KindSummary:
		return true
	}
	return false
}

// Choice is one option presented to the user at the end of a chapter.
type Choice struct {
	Text          string `json:"text"`
	DestinationID string `json:"destination_id"`
}

// ChapterResponse records the user's action on a chapter. Its presence
// closes the chapter; a chapter without one is still open.
type ChapterResponse struct {
	ChosenDestinationID string `json:"chosen_destination_id"`
	ChoiceText          string `json:"choice_text"`
}

// LessonQuestion is the structured question embedded in a lesson chapter.
type LessonQuestion struct {
	Text          string   `json:"text"`
	CorrectAnswer string   `json:"correct_answer"`
	WrongAnswers  []string `json:"wrong_answers"`
	Explanation   string   `json:"explanation"`
}

// ChapterState is one narrative unit: the unit of generation, choice and
// persistence.
type ChapterState struct {
	Number   int              `json:"number"`
	Kind     ChapterKind      `json:"kind"`
	Content  string           `json:"content"`
	Choices  []Choice         `json:"choices"`
	Response *ChapterResponse `json:"response,omitempty"`
	Question *LessonQuestion  `json:"question,omitempty"`

	// SummaryText is filled in asynchronously after the chapter content is
	// finalized. SummaryIsPlaceholder marks a deterministic stand-in that a
	// background task may later overwrite.
	SummaryText          string `json:"summary_text,omitempty"`
	SummaryIsPlaceholder bool   `json:"summary_is_placeholder,omitempty"`
}

// Open reports whether the chapter is still awaiting a user response.
func (c *ChapterState) Open() bool {
	return c.Response == nil
}

// LessonStats tracks question outcomes across the adventure.
type LessonStats struct {
	TotalQuestionsAsked int `json:"total_questions_asked"`
	CorrectAnswers      int `json:"correct_answers"`
}

// Identity names the owner of an adventure plus the client correlation id
// assigned for this connection.
type Identity struct {
	UserID              string `json:"user_id"`
	ClientCorrelationID string `json:"client_correlation_id"`
}

// AdventureState is the aggregate root for one adventure. It has exactly one
// writer at a time: the session loop that owns it.
type AdventureState struct {
	ID           string      `json:"id"`
	StateVersion int         `json:"state_version"`
	Environment  string      `json:"environment"`
	Identity     Identity    `json:"identity"`
	Category     string      `json:"category"`
	Topic        string      `json:"topic"`

	Chapters     []ChapterState `json:"chapters"`
	PlannedKinds []ChapterKind  `json:"planned_kinds"`

	// NarrativeSelections pin the consistency dimensions (setting, tone,
	// theme, moral, twist) chosen once at creation.
	NarrativeSelections    map[string]string `json:"narrative_selections"`
	ProtagonistDescription string            `json:"protagonist_description"`
	CharacterVisuals       map[string]string `json:"character_visuals"`

	LessonStats LessonStats `json:"lesson_stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CurrentStateVersion is the persisted blob schema version.
const CurrentStateVersion = 1

// NewAdventureState creates a fresh adventure. The planned kind sequence is
// validated once here and never mutated afterwards.
func NewAdventureState(id string, identity Identity, category, topic string, planned []ChapterKind, selections map[string]string, environment string) (*AdventureState, error) {
	if id == "" {
		return nil, fmt.Errorf("adventure id is required")
	}
	if err := ValidatePlan(planned); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	st := &AdventureState{
		ID:                  id,
		StateVersion:        CurrentStateVersion,
		Environment:         environment,
		Identity:            identity,
		Category:            category,
		Topic:               topic,
		Chapters:            []ChapterState{},
		PlannedKinds:        append([]ChapterKind{}, planned...),
		NarrativeSelections: map[string]string{},
		CharacterVisuals:    map[string]string{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for k, v := range selections {
		st.NarrativeSelections[k] = v
	}
	return st, nil
}

// ValidatePlan checks a planned chapter-kind sequence: every lesson must be
// immediately followed by a reflect, a conclusion may only sit in the final
// slot, and a summary is never planned (it is synthesized at the end).
func ValidatePlan(planned []ChapterKind) error {
	if len(planned) == 0 {
		return fmt.Errorf("planned chapter kinds must not be empty")
	}
	for i, k := range planned {
		if !k.Valid() {
			return fmt.Errorf("planned kind %d: unknown kind %q", i+1, k)
		}
		switch k {
		case KindSummary:
			return fmt.Errorf("planned kind %d: summary chapters are synthesized, not planned", i+1)
		case KindLesson:
			if i+1 >= len(planned) || planned[i+1] != KindReflect {
				return fmt.Errorf("planned kind %d: lesson must be immediately followed by reflect", i+1)
			}
		case KindConclusion:
			if i != len(planned)-1 {
				return fmt.Errorf("planned kind %d: conclusion must be the last planned chapter", i+1)
			}
		}
	}
	return nil
}

// PlanChapterKinds builds the standard plan for an adventure of the given
// length: story chapters with one lesson/reflect pair in the middle and a
// conclusion at the end. Length is clamped to a sensible minimum of 4
// (story, lesson, reflect, conclusion).
func PlanChapterKinds(length int) []ChapterKind {
	if length < 4 {
		length = 4
	}
	kinds := make([]ChapterKind, length)
	for i := range kinds {
		kinds[i] = KindStory
	}
	lessonAt := length/2 - 1
	kinds[lessonAt] = KindLesson
	kinds[lessonAt+1] = KindReflect
	kinds[length-1] = KindConclusion
	return kinds
}

// WellFormedError carries enough context for a caller to decide whether to
// discard a structurally broken state.
type WellFormedError struct {
	Reason              string
	ChapterCount        int
	LastWellFormedIndex int
}

func (e *WellFormedError) Error() string {
	return fmt.Sprintf("adventure state not well-formed: %s (chapters=%d, last good index=%d)",
		e.Reason, e.ChapterCount, e.LastWellFormedIndex)
}

// CheckWellFormed validates the structural invariants of the state. The
// returned error, if any, is a *WellFormedError.
func (s *AdventureState) CheckWellFormed() error {
	fail := func(lastGood int, format string, args ...interface{}) error {
		return &WellFormedError{
			Reason:              fmt.Sprintf(format, args...),
			ChapterCount:        len(s.Chapters),
			LastWellFormedIndex: lastGood,
		}
	}
	if err := ValidatePlan(s.PlannedKinds); err != nil {
		return fail(-1, "invalid plan: %v", err)
	}
	// A transient summary chapter may sit one past the planned length.
	if len(s.Chapters) > len(s.PlannedKinds)+1 {
		return fail(len(s.PlannedKinds), "chapter count %d exceeds plan length %d+1", len(s.Chapters), len(s.PlannedKinds))
	}
	for i := range s.Chapters {
		ch := &s.Chapters[i]
		if ch.Number != i+1 {
			return fail(i-1, "chapter at index %d has number %d", i, ch.Number)
		}
		if !ch.Kind.Valid() {
			return fail(i-1, "chapter %d has unknown kind %q", ch.Number, ch.Kind)
		}
		if ch.Kind == KindLesson {
			if i >= len(s.PlannedKinds) || s.PlannedKinds[i] != KindLesson {
				return fail(i-1, "lesson chapter %d does not match plan", ch.Number)
			}
			if i+1 < len(s.PlannedKinds) && s.PlannedKinds[i+1] != KindReflect {
				return fail(i-1, "lesson chapter %d is not followed by a planned reflect", ch.Number)
			}
		}
		if ch.Open() && i != len(s.Chapters)-1 {
			return fail(i-1, "chapter %d is open but not last", ch.Number)
		}
	}
	return nil
}

// IsWellFormed is the pure validation predicate over the structural
// invariants.
func (s *AdventureState) IsWellFormed() bool {
	return s.CheckWellFormed() == nil
}

// LastChapter returns the most recent chapter, or nil for a fresh adventure.
func (s *AdventureState) LastChapter() *ChapterState {
	if len(s.Chapters) == 0 {
		return nil
	}
	return &s.Chapters[len(s.Chapters)-1]
}

// DisplayChapterNumber is the chapter number the user perceives themselves to
// be on. If the last chapter is still open the user is on it (it will be
// replayed, not regenerated); otherwise they are about to enter the next one.
// Every surface that reports progress must go through this one function.
func (s *AdventureState) DisplayChapterNumber() int {
	last := s.LastChapter()
	if last == nil {
		return 1
	}
	if last.Open() {
		return last.Number
	}
	return last.Number + 1
}

// IsComplete reports whether the adventure has ended: a summary chapter has
// been appended.
func (s *AdventureState) IsComplete() bool {
	last := s.LastChapter()
	return last != nil && last.Kind == KindSummary
}

// PlanExhausted reports whether every planned chapter has been generated.
func (s *AdventureState) PlanExhausted() bool {
	return len(s.Chapters) >= len(s.PlannedKinds)
}

// NextPlannedKind returns the kind of the chapter about to be generated and
// false once the plan is exhausted.
func (s *AdventureState) NextPlannedKind() (ChapterKind, bool) {
	if s.PlanExhausted() {
		return "", false
	}
	return s.PlannedKinds[len(s.Chapters)], true
}

// AppendChapter appends a finalized chapter. The chapter number is assigned
// here so callers cannot introduce gaps.
func (s *AdventureState) AppendChapter(ch ChapterState) (*ChapterState, error) {
	last := s.LastChapter()
	if last != nil && last.Open() {
		return nil, fmt.Errorf("cannot append chapter %d: chapter %d is still open", len(s.Chapters)+1, last.Number)
	}
	ch.Number = len(s.Chapters) + 1
	s.Chapters = append(s.Chapters, ch)
	s.UpdatedAt = time.Now().UTC()
	return s.LastChapter(), nil
}

// CloseChapter records the user response on the current open chapter.
func (s *AdventureState) CloseChapter(resp ChapterResponse) error {
	last := s.LastChapter()
	if last == nil {
		return fmt.Errorf("no chapter to close")
	}
	if !last.Open() {
		return fmt.Errorf("chapter %d is already closed", last.Number)
	}
	last.Response = &resp
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// UsedQuestionTexts lists the texts of every question already embedded in a
// chapter, so lesson sampling never repeats within one adventure.
func (s *AdventureState) UsedQuestionTexts() []string {
	var used []string
	for i := range s.Chapters {
		if q := s.Chapters[i].Question; q != nil {
			used = append(used, q.Text)
		}
	}
	return used
}
