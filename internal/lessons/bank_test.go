package lessons

import (
	"os"
	"path/filepath"
	"testing"
)

const bankYAML = `topics:
  astronomy:
    - text: "Which planet is known as the Red Planet?"
      answer: "Mars"
      wrong_answers: ["Venus", "Jupiter"]
      explanation: "Iron oxide dust gives Mars its color."
    - text: "What is the closest star to Earth?"
      answer: "The Sun"
      wrong_answers: ["Proxima Centauri", "Sirius"]
      explanation: "The Sun is a star too."
`

func loadedBank(t *testing.T) *Bank {
	t.Helper()
	path := filepath.Join(t.TempDir(), "lessons.yaml")
	if err := os.WriteFile(path, []byte(bankYAML), 0644); err != nil {
		t.Fatal(err)
	}
	b := NewBank(1)
	if err := b.LoadFile(path); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	return b
}

func TestBankLoadFile(t *testing.T) {
	b := loadedBank(t)
	if got := b.TopicCount("astronomy"); got != 2 {
		t.Errorf("TopicCount = %d, want 2", got)
	}
	if got := b.TopicCount("Astronomy "); got != 2 {
		t.Errorf("topic lookup should be case and space insensitive, got %d", got)
	}
	if got := b.Topics(); got != 1 {
		t.Errorf("Topics = %d, want 1", got)
	}
}

func TestSampleNeverRepeats(t *testing.T) {
	b := loadedBank(t)

	first := b.Sample("astronomy", nil)
	second := b.Sample("astronomy", []string{first.Text})
	if first.Text == second.Text {
		t.Errorf("second sample repeated %q despite exclusion", first.Text)
	}
}

func TestSampleExhaustedFallsBack(t *testing.T) {
	b := loadedBank(t)

	q := b.Sample("astronomy", []string{
		"Which planet is known as the Red Planet?",
		"What is the closest star to Earth?",
	})
	if q.Text == "" || q.CorrectAnswer == "" {
		t.Fatalf("exhausted topic must still yield a usable question, got %+v", q)
	}
	if len(q.WrongAnswers) == 0 {
		t.Error("fallback question needs wrong answers to form choices")
	}
}

func TestSampleUnknownTopicFallsBack(t *testing.T) {
	b := NewBank(1)
	q := b.Sample("volcanoes", nil)
	if q.Text == "" || q.CorrectAnswer == "" {
		t.Fatalf("unknown topic must still yield a usable question, got %+v", q)
	}
}
