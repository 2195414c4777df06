// Package lessons holds the topic-keyed question bank behind lesson
// chapters.
package lessons

import (
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"

	"questweaver/server/internal/models"
)

// bankFile is the on-disk YAML shape.
type bankFile struct {
	Topics map[string][]bankQuestion `yaml:"topics"`
}

type bankQuestion struct {
	Text         string   `yaml:"text"`
	Answer       string   `yaml:"answer"`
	WrongAnswers []string `yaml:"wrong_answers"`
	Explanation  string   `yaml:"explanation"`
}

// Bank samples questions per topic, never repeating a question within one
// adventure.
type Bank struct {
	mu     sync.RWMutex
	topics map[string][]models.LessonQuestion
	rng    *rand.Rand
}

// NewBank creates an empty bank. Sampling from an empty bank returns the
// built-in fallback question.
func NewBank(seed int64) *Bank {
	return &Bank{
		topics: make(map[string][]models.LessonQuestion),
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// LoadFile reads a YAML question bank from disk, merging into the bank.
func (b *Bank) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read question bank: %w", err)
	}
	var file bankFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse question bank: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for topic, questions := range file.Topics {
		key := normalizeTopic(topic)
		for _, q := range questions {
			b.topics[key] = append(b.topics[key], models.LessonQuestion{
				Text:          q.Text,
				CorrectAnswer: q.Answer,
				WrongAnswers:  append([]string{}, q.WrongAnswers...),
				Explanation:   q.Explanation,
			})
		}
	}
	return nil
}

// Sample picks a random question for the topic that is not in exclude. When
// every bank question for the topic has been used (or the topic is unknown)
// it falls back to a generic built-in question rather than failing: a lesson
// chapter must always have something to ask.
func (b *Bank) Sample(topic string, exclude []string) models.LessonQuestion {
	b.mu.RLock()
	pool := b.topics[normalizeTopic(topic)]
	b.mu.RUnlock()

	used := make(map[string]bool, len(exclude))
	for _, text := range exclude {
		used[text] = true
	}

	candidates := make([]models.LessonQuestion, 0, len(pool))
	for _, q := range pool {
		if !used[q.Text] {
			candidates = append(candidates, q)
		}
	}
	if len(candidates) == 0 {
		return fallbackQuestion(topic)
	}

	b.mu.Lock()
	idx := b.rng.Intn(len(candidates))
	b.mu.Unlock()
	return candidates[idx]
}

// TopicCount reports how many questions are loaded for a topic.
func (b *Bank) TopicCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[normalizeTopic(topic)])
}

// Topics reports the number of distinct topics loaded.
func (b *Bank) Topics() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics)
}

func normalizeTopic(topic string) string {
	return strings.ToLower(strings.TrimSpace(topic))
}

func fallbackQuestion(topic string) models.LessonQuestion {
	return models.LessonQuestion{
		Text:          fmt.Sprintf("What is one new thing about %s you learned on this adventure?", topic),
		CorrectAnswer: "Something from the story so far",
		WrongAnswers:  []string{"Nothing at all", "I was not paying attention"},
		Explanation:   "Any detail from the story counts; the point is to look back and notice it.",
	}
}
