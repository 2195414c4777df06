package prompts

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"questweaver/server/internal/models"
)

// VisualFallback is the deterministic stand-in used when character-visual
// extraction has not completed in time.
const VisualFallback = "a character whose appearance has not yet been described"

// ApologyContent is the in-narrative text shown when generation fails even
// after a retry. The adventure stays resumable; the reader sees story, not a
// stack trace.
const ApologyContent = `The storyteller pauses, lantern flickering, and rubs their eyes.

"Forgive me — the thread of this tale has slipped from my fingers for a moment.
Rest here a while, and when you are ready, we will pick the story back up together."`

// templateFor maps a chapter kind to its prompt template. The switch is
// deliberately closed: a new kind must be given a template here.
func templateFor(kind models.ChapterKind) (string, error) {
	switch kind {
	case models.KindStory:
		return "chapter_story", nil
	case models.KindLesson:
		return "chapter_lesson", nil
	case models.KindReflect:
		return "chapter_reflect", nil
	case models.KindConclusion:
		return "chapter_conclusion", nil
	case models.KindSummary:
		return "", fmt.Errorf("summary chapters are synthesized, not generated")
	}
	return "", fmt.Errorf("no template for chapter kind %q", kind)
}

// ChapterPromptInput carries everything the next chapter's prompt needs.
type ChapterPromptInput struct {
	State      *models.AdventureState
	Kind       models.ChapterKind
	ChosenText string
	Question   *models.LessonQuestion

	// VisualOverride replaces the protagonist description when the
	// extraction hard-dependency fell back (see tasks.Ledger.AwaitRequired).
	VisualOverride string
}

// BuildChapterPrompt renders the generation prompt for the chapter about to
// be written, from full prior history (summaries once available, to bound
// prompt size), the narrative selections, and the visual registry as
// currently known.
func (e *Engine) BuildChapterPrompt(in ChapterPromptInput) (string, error) {
	name, err := templateFor(in.Kind)
	if err != nil {
		return "", err
	}

	st := in.State
	protagonist := st.ProtagonistDescription
	if in.VisualOverride != "" {
		protagonist = in.VisualOverride
	}
	if protagonist == "" {
		protagonist = VisualFallback
	}

	vars := map[string]string{
		"setting":           st.NarrativeSelections["setting"],
		"tone":              st.NarrativeSelections["tone"],
		"theme":             st.NarrativeSelections["theme"],
		"moral":             st.NarrativeSelections["moral"],
		"twist":             st.NarrativeSelections["twist"],
		"topic":             st.Topic,
		"protagonist":       protagonist,
		"character_visuals": formatVisuals(st.CharacterVisuals),
		"history":           formatHistory(st),
		"chosen":            in.ChosenText,
		"chapter_number":    strconv.Itoa(len(st.Chapters) + 1),
		"total_chapters":    strconv.Itoa(len(st.PlannedKinds)),
	}

	if in.Kind == models.KindLesson {
		if in.Question == nil {
			return "", fmt.Errorf("lesson chapter requires a question")
		}
		vars["question"] = in.Question.Text
	}
	if in.Kind == models.KindReflect {
		q, outcome := lastLessonOutcome(st)
		if q != nil {
			vars["question"] = q.Text
			vars["correct_answer"] = q.CorrectAnswer
			vars["explanation"] = q.Explanation
			vars["answer_outcome"] = outcome
		}
	}

	return e.Render(name, vars)
}

// BuildSummaryTextPrompt renders the background-summary prompt for one
// finalized chapter.
func (e *Engine) BuildSummaryTextPrompt(ch *models.ChapterState) (string, error) {
	return e.Render("chapter_summary_text", map[string]string{"content": ch.Content})
}

// BuildVisualExtractionPrompt renders the character-visual extraction prompt
// for a finalized chapter.
func (e *Engine) BuildVisualExtractionPrompt(ch *models.ChapterState, known map[string]string) (string, error) {
	return e.Render("visual_extraction", map[string]string{
		"known_visuals": formatVisuals(known),
		"content":       ch.Content,
	})
}

// BuildImagePrompt renders an illustration prompt for a finalized chapter.
func (e *Engine) BuildImagePrompt(st *models.AdventureState, ch *models.ChapterState) (string, error) {
	scene := ch.Content
	if idx := strings.Index(scene, "\n\n"); idx > 0 {
		scene = scene[:idx]
	}
	return e.Render("image_scene", map[string]string{
		"tone":        st.NarrativeSelections["tone"],
		"setting":     st.NarrativeSelections["setting"],
		"protagonist": st.ProtagonistDescription,
		"scene":       scene,
	})
}

// BuildFinalSummary assembles the summary chapter content from the
// per-chapter summaries and the lesson recap. Purely local: the summary is
// synthesized, never generated.
func BuildFinalSummary(st *models.AdventureState) string {
	var b strings.Builder
	b.WriteString("Your Adventure\n\n")
	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if ch.Kind == models.KindSummary {
			continue
		}
		summary := ch.SummaryText
		if summary == "" {
			summary = ch.Content
		}
		fmt.Fprintf(&b, "Chapter %d (%s): %s\n\n", ch.Number, ch.Kind, strings.TrimSpace(summary))
	}
	if st.LessonStats.TotalQuestionsAsked > 0 {
		fmt.Fprintf(&b, "You answered %d of %d questions correctly.\n",
			st.LessonStats.CorrectAnswers, st.LessonStats.TotalQuestionsAsked)
	}
	return strings.TrimSpace(b.String())
}

var choicesPattern = regexp.MustCompile(`(?s)<choices>\s*(\[.*?\])\s*</choices>`)

// ParseChoices splits generated text into narrative content and the
// structured choices emitted in the <choices> block. If the block is missing
// or malformed a default set is returned so the adventure never dead-ends.
func ParseChoices(text string) (string, []models.Choice) {
	match := choicesPattern.FindStringSubmatchIndex(text)
	if match == nil {
		return strings.TrimSpace(text), defaultChoices()
	}

	narrative := strings.TrimSpace(text[:match[0]] + text[match[1]:])
	raw := text[match[2]:match[3]]

	var choices []models.Choice
	if err := json.Unmarshal([]byte(raw), &choices); err != nil || len(choices) == 0 {
		return narrative, defaultChoices()
	}
	for i := range choices {
		if choices[i].DestinationID == "" {
			choices[i].DestinationID = fmt.Sprintf("choice-%d", i+1)
		}
	}
	return narrative, choices
}

func defaultChoices() []models.Choice {
	return []models.Choice{
		{Text: "Press on", DestinationID: "choice-1"},
		{Text: "Look around carefully", DestinationID: "choice-2"},
		{Text: "Talk to someone nearby", DestinationID: "choice-3"},
	}
}

var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// ParseVisuals extracts the name→description map from a visual-extraction
// completion. Tolerates code fences and surrounding prose.
func ParseVisuals(text string) (map[string]string, error) {
	raw := jsonObjectPattern.FindString(text)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in extraction output")
	}
	visuals := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &visuals); err != nil {
		return nil, fmt.Errorf("failed to parse extraction output: %w", err)
	}
	return visuals, nil
}

// formatHistory renders prior chapters for the prompt, preferring summaries
// once available to bound prompt size. The most recent chapter always goes in
// full so the continuation has texture to work with.
func formatHistory(st *models.AdventureState) string {
	if len(st.Chapters) == 0 {
		return "(the story has not started yet)"
	}
	var b strings.Builder
	for i := range st.Chapters {
		ch := &st.Chapters[i]
		body := ch.Content
		if i < len(st.Chapters)-1 && ch.SummaryText != "" {
			body = ch.SummaryText
		}
		fmt.Fprintf(&b, "Chapter %d: %s\n", ch.Number, strings.TrimSpace(body))
		if ch.Response != nil {
			fmt.Fprintf(&b, "The reader chose: %s\n", ch.Response.ChoiceText)
		}
	}
	return strings.TrimSpace(b.String())
}

func formatVisuals(visuals map[string]string) string {
	if len(visuals) == 0 {
		return "(no characters described yet)"
	}
	names := make([]string, 0, len(visuals))
	for name := range visuals {
		names = append(names, name)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, name := range names {
		fmt.Fprintf(&b, "- %s: %s\n", name, visuals[name])
	}
	return strings.TrimSpace(b.String())
}

// lastLessonOutcome finds the most recent closed lesson chapter and reports
// whether the reader answered correctly.
func lastLessonOutcome(st *models.AdventureState) (*models.LessonQuestion, string) {
	for i := len(st.Chapters) - 1; i >= 0; i-- {
		ch := &st.Chapters[i]
		if ch.Kind != models.KindLesson || ch.Question == nil || ch.Response == nil {
			continue
		}
		if ch.Response.ChoiceText == ch.Question.CorrectAnswer {
			return ch.Question, "the reader was correct"
		}
		return ch.Question, "the reader was incorrect"
	}
	return nil, ""
}
