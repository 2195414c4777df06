package prompts

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Engine manages named prompt templates with {{var}} substitution.
type Engine struct {
	templates map[string]*Template
	mu        sync.RWMutex
}

// Template is a prompt template with named variables.
type Template struct {
	Name        string `json:"name"`
	Content     string `json:"content"`
	Description string `json:"description"`
}

var varPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// NewEngine creates an engine preloaded with the default templates.
func NewEngine() *Engine {
	e := &Engine{templates: make(map[string]*Template)}
	e.registerDefaults()
	return e
}

// Register adds or replaces a template.
func (e *Engine) Register(tmpl *Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Name] = tmpl
}

// Render substitutes vars into the named template. Unknown variables render
// as empty strings; a missing template is an error.
func (e *Engine) Render(name string, vars map[string]string) (string, error) {
	e.mu.RLock()
	tmpl, ok := e.templates[name]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template not found: %s", name)
	}

	out := varPattern.ReplaceAllStringFunc(tmpl.Content, func(match string) string {
		key := varPattern.FindStringSubmatch(match)[1]
		return vars[key]
	})
	return strings.TrimSpace(out), nil
}

func (e *Engine) registerDefaults() {
	for _, tmpl := range defaultTemplates {
		e.templates[tmpl.Name] = tmpl
	}
}

var defaultTemplates = []*Template{
	{
		Name:        "chapter_story",
		Description: "Narrative chapter continuation",
		Content: `You are narrating an interactive adventure for a young reader.

Setting: {{setting}}. Tone: {{tone}}. Theme: {{theme}}. Moral lesson: {{moral}}. Planned twist: {{twist}}.
Topic being taught: {{topic}}.

Protagonist: {{protagonist}}
Known characters and their appearance:
{{character_visuals}}

The story so far:
{{history}}

The reader just chose: "{{chosen}}"

Write chapter {{chapter_number}} of {{total_chapters}}. Continue the story from that
choice. End the chapter at a decision point and output exactly three choices in a
<choices>[{"text": "...", "destination_id": "a"}, ...]</choices> block after the narrative.`,
	},
	{
		Name:        "chapter_lesson",
		Description: "Lesson chapter weaving in an educational question",
		Content: `You are narrating an interactive educational adventure.

Setting: {{setting}}. Tone: {{tone}}. Theme: {{theme}}.
Topic being taught: {{topic}}.

Protagonist: {{protagonist}}
Known characters and their appearance:
{{character_visuals}}

The story so far:
{{history}}

The reader just chose: "{{chosen}}"

Write chapter {{chapter_number}} of {{total_chapters}}. Weave the story toward a moment
where a character naturally poses this question to the reader, ending the chapter on the
question itself. Do not reveal the answer.

Question: {{question}}

Do not output a <choices> block; the answer options are presented separately.`,
	},
	{
		Name:        "chapter_reflect",
		Description: "Reflection chapter following a lesson",
		Content: `You are narrating an interactive educational adventure.

Setting: {{setting}}. Tone: {{tone}}. Theme: {{theme}}.
Topic being taught: {{topic}}.

The story so far:
{{history}}

In the previous chapter the reader answered "{{chosen}}" to the question "{{question}}".
The correct answer was "{{correct_answer}}" ({{answer_outcome}}). Explanation: {{explanation}}.

Write chapter {{chapter_number}} of {{total_chapters}}: a reflective scene where a
character revisits the question, affirms or gently corrects the reader's answer using the
explanation, and ties it back to the story. End at a decision point and output exactly
three choices in a <choices>[{"text": "...", "destination_id": "a"}, ...]</choices> block.`,
	},
	{
		Name:        "chapter_conclusion",
		Description: "Final narrative chapter",
		Content: `You are narrating the final chapter of an interactive adventure.

Setting: {{setting}}. Tone: {{tone}}. Theme: {{theme}}. Moral lesson: {{moral}}. Twist to resolve: {{twist}}.

Protagonist: {{protagonist}}
Known characters and their appearance:
{{character_visuals}}

The story so far:
{{history}}

The reader just chose: "{{chosen}}"

Write chapter {{chapter_number}} of {{total_chapters}}: bring the story to a satisfying
close, resolve the twist, and land the moral without preaching. This is the last chapter;
do not output a <choices> block and do not end on a cliffhanger.`,
	},
	{
		Name:        "chapter_summary_text",
		Description: "One-paragraph summary of a single chapter",
		Content: `Summarize the following adventure chapter in two or three sentences,
third person, past tense. Capture what happened and what the reader chose, nothing else.

Chapter:
{{content}}`,
	},
	{
		Name:        "visual_extraction",
		Description: "Extract character visual descriptions from chapter text",
		Content: `Read the chapter below and extract a concise visual description for the
protagonist and for each named character who appears. Only describe what the text
supports. Respond with a single JSON object mapping character name to description, e.g.
{"Mira": "a tall girl with a copper braid and a patched green cloak"}. Use the key
"Protagonist" for the protagonist.

Known descriptions (update only if the chapter adds detail):
{{known_visuals}}

Chapter:
{{content}}`,
	},
	{
		Name:        "image_scene",
		Description: "Illustration prompt for a chapter",
		Content: `Storybook illustration, {{tone}} mood, {{setting}}.
{{protagonist}}
Scene: {{scene}}`,
	},
}
