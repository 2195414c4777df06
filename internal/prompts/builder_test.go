package prompts

import (
	"strings"
	"testing"

	"questweaver/server/internal/models"
)

func testState(t *testing.T) *models.AdventureState {
	t.Helper()
	st, err := models.NewAdventureState("adv-1", models.Identity{UserID: "u1"},
		"science", "astronomy", models.PlanChapterKinds(4),
		map[string]string{
			"setting": "a bustling port city",
			"tone":    "warm and hopeful",
			"theme":   "curiosity opens doors",
			"moral":   "honesty costs less than it seems",
			"twist":   "an ally is not who they claim to be",
		}, "test")
	if err != nil {
		t.Fatalf("NewAdventureState: %v", err)
	}
	return st
}

func TestParseChoices(t *testing.T) {
	text := `The door creaks open onto a moonlit courtyard.

<choices>[{"text": "Step inside", "destination_id": "a"}, {"text": "Call out", "destination_id": "b"}, {"text": "Wait", "destination_id": "c"}]</choices>`

	narrative, choices := ParseChoices(text)
	if strings.Contains(narrative, "<choices>") {
		t.Errorf("narrative still contains the choices block: %q", narrative)
	}
	if len(choices) != 3 {
		t.Fatalf("len(choices) = %d, want 3", len(choices))
	}
	if choices[0].Text != "Step inside" || choices[0].DestinationID != "a" {
		t.Errorf("unexpected first choice: %+v", choices[0])
	}
}

func TestParseChoicesMissingBlockFallsBack(t *testing.T) {
	narrative, choices := ParseChoices("A chapter with no structured block at all.")
	if narrative == "" {
		t.Error("narrative should survive")
	}
	if len(choices) == 0 {
		t.Fatal("expected default choices")
	}
	for _, c := range choices {
		if c.DestinationID == "" {
			t.Errorf("default choice missing destination id: %+v", c)
		}
	}
}

func TestParseChoicesMalformedJSONFallsBack(t *testing.T) {
	_, choices := ParseChoices(`Story text <choices>[{"text": broken]</choices>`)
	if len(choices) == 0 {
		t.Fatal("expected default choices on malformed JSON")
	}
}

func TestParseVisuals(t *testing.T) {
	visuals, err := ParseVisuals("Here you go:\n```json\n{\"Mira\": \"a tall girl\", \"Protagonist\": \"a boy in a red scarf\"}\n```")
	if err != nil {
		t.Fatalf("ParseVisuals: %v", err)
	}
	if visuals["Mira"] != "a tall girl" {
		t.Errorf("Mira = %q", visuals["Mira"])
	}
	if visuals["Protagonist"] != "a boy in a red scarf" {
		t.Errorf("Protagonist = %q", visuals["Protagonist"])
	}

	if _, err := ParseVisuals("no json here"); err == nil {
		t.Error("expected an error without a JSON object")
	}
}

func TestBuildChapterPromptStory(t *testing.T) {
	e := NewEngine()
	st := testState(t)

	prompt, err := e.BuildChapterPrompt(ChapterPromptInput{State: st, Kind: models.KindStory})
	if err != nil {
		t.Fatalf("BuildChapterPrompt: %v", err)
	}
	for _, want := range []string{
		"a bustling port city",
		"astronomy",
		VisualFallback,
		"chapter 1 of 4",
		"<choices>",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestBuildChapterPromptVisualOverride(t *testing.T) {
	e := NewEngine()
	st := testState(t)
	st.ProtagonistDescription = "a boy in a red scarf"

	prompt, err := e.BuildChapterPrompt(ChapterPromptInput{
		State: st, Kind: models.KindStory, VisualOverride: "a traveler in a gray cloak",
	})
	if err != nil {
		t.Fatalf("BuildChapterPrompt: %v", err)
	}
	if !strings.Contains(prompt, "a traveler in a gray cloak") {
		t.Error("override description not used")
	}
	if strings.Contains(prompt, "a boy in a red scarf") {
		t.Error("stored description should be replaced by the override")
	}
}

func TestBuildChapterPromptLessonRequiresQuestion(t *testing.T) {
	e := NewEngine()
	st := testState(t)

	if _, err := e.BuildChapterPrompt(ChapterPromptInput{State: st, Kind: models.KindLesson}); err == nil {
		t.Error("lesson prompt without a question should fail")
	}

	prompt, err := e.BuildChapterPrompt(ChapterPromptInput{
		State: st, Kind: models.KindLesson,
		Question: &models.LessonQuestion{Text: "Which planet is known as the Red Planet?", CorrectAnswer: "Mars"},
	})
	if err != nil {
		t.Fatalf("BuildChapterPrompt: %v", err)
	}
	if !strings.Contains(prompt, "Red Planet") {
		t.Error("lesson prompt missing the question text")
	}
}

func TestBuildChapterPromptSummaryRefused(t *testing.T) {
	e := NewEngine()
	if _, err := e.BuildChapterPrompt(ChapterPromptInput{State: testState(t), Kind: models.KindSummary}); err == nil {
		t.Error("summary chapters are synthesized and must not get a generation prompt")
	}
}

func TestBuildChapterPromptHistoryPrefersSummaries(t *testing.T) {
	e := NewEngine()
	st := testState(t)
	st.Chapters = []models.ChapterState{
		{
			Number: 1, Kind: models.KindStory,
			Content:     "the full first chapter text, long and winding",
			SummaryText: "the hero set out at dawn",
			Response:    &models.ChapterResponse{ChosenDestinationID: "a", ChoiceText: "set out"},
		},
		{
			Number: 2, Kind: models.KindStory,
			Content:     "the full second chapter text",
			SummaryText: "a storm rolled in",
			Response:    &models.ChapterResponse{ChosenDestinationID: "b", ChoiceText: "shelter"},
		},
	}

	prompt, err := e.BuildChapterPrompt(ChapterPromptInput{State: st, Kind: models.KindStory, ChosenText: "shelter"})
	if err != nil {
		t.Fatalf("BuildChapterPrompt: %v", err)
	}
	if !strings.Contains(prompt, "the hero set out at dawn") {
		t.Error("older chapter should appear as its summary")
	}
	if !strings.Contains(prompt, "the full second chapter text") {
		t.Error("most recent chapter should appear in full")
	}
}

func TestBuildFinalSummary(t *testing.T) {
	st := testState(t)
	st.Chapters = []models.ChapterState{
		{Number: 1, Kind: models.KindStory, Content: "long text", SummaryText: "the hero set out",
			Response: &models.ChapterResponse{ChosenDestinationID: "a"}},
		{Number: 2, Kind: models.KindLesson, Content: "long text", SummaryText: "a question was asked",
			Response: &models.ChapterResponse{ChosenDestinationID: "b"}},
	}
	st.LessonStats = models.LessonStats{TotalQuestionsAsked: 1, CorrectAnswers: 1}

	summary := BuildFinalSummary(st)
	for _, want := range []string{"Chapter 1", "the hero set out", "Chapter 2", "1 of 1 questions"} {
		if !strings.Contains(summary, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
