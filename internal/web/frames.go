package web

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"questweaver/server/internal/models"
)

var validate = validator.New()

// ClientMessage is one inbound frame from the client.
type ClientMessage struct {
	Type  string `json:"type" validate:"required,oneof=start choice"`
	Token string `json:"token,omitempty"`

	// Start fields.
	ResumeAdventureID string `json:"resume_adventure_id,omitempty"`
	Category          string `json:"category,omitempty"`
	Topic             string `json:"topic,omitempty"`
	Length            int    `json:"length,omitempty" validate:"omitempty,min=0,max=12"`

	// State is the client-cached AdventureState snapshot, used as a resume
	// source of last resort when the server has no record of the id.
	State json.RawMessage `json:"state,omitempty"`

	// Choice fields.
	Choice *ChoicePayload `json:"choice,omitempty"`
}

// ChoicePayload is the user's selection on the current chapter.
type ChoicePayload struct {
	DestinationID string `json:"destination_id" validate:"required"`
	ChoiceText    string `json:"choice_text"`
}

// Validate checks the structural validity of an inbound frame.
func (m *ClientMessage) Validate() error {
	if err := validate.Struct(m); err != nil {
		return err
	}
	if m.Type == "choice" && m.Choice != nil {
		return validate.Struct(m.Choice)
	}
	return nil
}

// Error codes carried on error frames.
const (
	CodeProtocolViolation  = "protocol_violation"
	CodeUnknownDestination = "unknown_destination"
	CodeConflict           = "conflict"
	CodeCorruptState       = "corrupt_state"
	CodeRateLimited        = "rate_limited"
	CodeServerError        = "server_error"
)

// Outbound frame kinds. The Type field discriminates on the wire.

type storyFrame struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type choiceDTO struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// choicesFrame carries the options for the chapter just finished. An empty
// array signals the terminal chapter.
type choicesFrame struct {
	Type    string      `json:"type"`
	Choices []choiceDTO `json:"choices"`
}

type chapterUpdateFrame struct {
	Type    string              `json:"type"`
	Chapter models.ChapterState `json:"chapter"`
}

type adventureFrame struct {
	Type                 string `json:"type"`
	AdventureID          string `json:"adventure_id"`
	DisplayChapterNumber int    `json:"display_chapter_number"`
	TotalChapters        int    `json:"total_chapters"`
}

type hideLoaderFrame struct {
	Type string `json:"type"`
}

type summaryReadyFrame struct {
	Type    string `json:"type"`
	StateID string `json:"state_id"`
}

type imageUpdateFrame struct {
	Type          string `json:"type"`
	ChapterNumber int    `json:"chapter_number"`
	ImageBase64   string `json:"image_base64"`
}

// conflictInfo describes the identity's existing adventure when a start
// request would collide with it.
type conflictInfo struct {
	AdventureID          string `json:"adventure_id"`
	Category             string `json:"category"`
	Topic                string `json:"topic"`
	DisplayChapterNumber int    `json:"display_chapter_number"`
}

// errorFrame is intended for client developers, not end users. It never
// closes the connection.
type errorFrame struct {
	Type     string        `json:"type"`
	Code     string        `json:"code"`
	Message  string        `json:"message"`
	Conflict *conflictInfo `json:"conflict,omitempty"`
}

func newStoryFrame(content string) storyFrame {
	return storyFrame{Type: "story", Content: content}
}

func newChoicesFrame(choices []models.Choice) choicesFrame {
	dtos := make([]choiceDTO, 0, len(choices))
	for _, c := range choices {
		dtos = append(dtos, choiceDTO{ID: c.DestinationID, Text: c.Text})
	}
	return choicesFrame{Type: "choices", Choices: dtos}
}

func newChapterUpdateFrame(ch models.ChapterState) chapterUpdateFrame {
	return chapterUpdateFrame{Type: "chapter_update", Chapter: ch}
}

func newAdventureLoadedFrame(st *models.AdventureState) adventureFrame {
	return adventureFrame{
		Type:                 "adventure_loaded",
		AdventureID:          st.ID,
		DisplayChapterNumber: st.DisplayChapterNumber(),
		TotalChapters:        len(st.PlannedKinds),
	}
}

func newAdventureCreatedFrame(st *models.AdventureState) adventureFrame {
	return adventureFrame{
		Type:                 "adventure_created",
		AdventureID:          st.ID,
		DisplayChapterNumber: st.DisplayChapterNumber(),
		TotalChapters:        len(st.PlannedKinds),
	}
}

func newHideLoaderFrame() hideLoaderFrame {
	return hideLoaderFrame{Type: "hide_loader"}
}

func newSummaryReadyFrame(stateID string) summaryReadyFrame {
	return summaryReadyFrame{Type: "summary_ready", StateID: stateID}
}

func newErrorFrame(code, message string) errorFrame {
	return errorFrame{Type: "error", Code: code, Message: message}
}
