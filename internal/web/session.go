package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	uatomic "go.uber.org/atomic"
	"golang.org/x/time/rate"

	"questweaver/server/internal/engine"
	"questweaver/server/internal/models"
	"questweaver/server/internal/prompts"
	"questweaver/server/internal/tasks"
)

// Session protocol states.
const (
	stateEstablishing int32 = iota
	stateStreaming
	stateAwaitingChoice
	stateTerminated
)

var errSessionClosed = errors.New("session closed")

// choicesMarker opens the structured block at the end of generated text. It
// is stripped from the live stream and parsed once the full text is known.
const choicesMarker = "<choices>"

// Session drives one connected client: the protocol state machine, the
// generation stream, and enrichment scheduling. The owned AdventureState has
// exactly one writer: the run loop goroutine. Background tasks compute
// results off to the side; the results are applied to state only from the
// run loop, at harvest points.
type Session struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	quit   chan struct{}

	closed  *uatomic.Bool
	state   *uatomic.Int32
	limiter *rate.Limiter
	rng     *rand.Rand

	userID    string
	adventure *models.AdventureState
}

func newSession(server *Server, conn *websocket.Conn) *Session {
	return &Session{
		id:      uuid.NewString(),
		server:  server,
		conn:    conn,
		send:    make(chan []byte, 256),
		quit:    make(chan struct{}),
		closed:  uatomic.NewBool(false),
		state:   uatomic.NewInt32(stateEstablishing),
		limiter: rate.NewLimiter(rate.Every(200*time.Millisecond), 5),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// run consumes inbound messages one at a time and is the sole writer of
// s.adventure. Reading happens on its own goroutine so frames keep arriving
// while a chapter streams.
func (s *Session) run(ctx context.Context) {
	go s.writePump()
	inbound := make(chan *ClientMessage, 16)
	go s.readPump(inbound)
	defer s.cleanup()

	for msg := range inbound {
		switch msg.Type {
		case "start":
			s.handleStart(ctx, msg)
		case "choice":
			s.handleChoice(ctx, msg)
		}
	}
}

// readPump reads and validates frames continuously. A choice frame that
// arrives while a chapter is still streaming is rejected here, at read time;
// it must not sit in the transport until the stream finishes and then act on
// choices the user never saw.
func (s *Session) readPump(inbound chan<- *ClientMessage) {
	defer close(inbound)

	s.conn.SetReadLimit(64 * 1024)
	_ = s.conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(10 * time.Minute))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[Session] %s unexpected close: %v", s.id, err)
			}
			return
		}

		if !s.limiter.Allow() {
			s.sendError(CodeRateLimited, "slow down")
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.sendError(CodeProtocolViolation, "malformed frame")
			continue
		}
		if err := msg.Validate(); err != nil {
			s.sendError(CodeProtocolViolation, fmt.Sprintf("invalid frame: %v", err))
			continue
		}
		if msg.Type == "choice" && s.state.Load() == stateStreaming {
			s.sendError(CodeProtocolViolation, "choice received while a chapter is still streaming")
			continue
		}
		inbound <- &msg
	}
}

// handleStart resolves identity and the fresh-vs-resume question, then
// either replays the open chapter or generates the next one.
func (s *Session) handleStart(ctx context.Context, msg *ClientMessage) {
	if s.state.Load() != stateEstablishing {
		s.sendError(CodeProtocolViolation, "adventure already established on this connection")
		return
	}

	userID, err := s.server.identity.Resolve(ctx, msg.Token)
	if err != nil {
		s.sendError(CodeServerError, "identity resolution failed")
		return
	}
	s.userID = userID

	st, created, ok := s.resolveAdventure(ctx, msg, userID)
	if !ok {
		return
	}
	st.Identity.ClientCorrelationID = s.id
	s.adventure = st

	if prev := s.server.registry.Register(userID, s); prev != nil && prev != s {
		prev.close()
	}

	if created {
		s.sendFrame(newAdventureCreatedFrame(st))
	} else {
		s.sendFrame(newAdventureLoadedFrame(st))
	}

	if st.IsComplete() {
		s.sendFrame(newSummaryReadyFrame(st.ID))
		s.state.Store(stateTerminated)
		return
	}

	last := st.LastChapter()
	if last != nil && last.Open() {
		s.replayChapter(last)
		return
	}

	chosen := ""
	if last != nil && last.Response != nil {
		chosen = last.Response.ChoiceText
	}
	s.generateNextChapter(ctx, chosen)
}

// resolveAdventure decides between explicit resume, implicit resume by
// matching category+topic, conflict, and fresh creation.
func (s *Session) resolveAdventure(ctx context.Context, msg *ClientMessage, userID string) (st *models.AdventureState, created, ok bool) {
	if msg.ResumeAdventureID != "" {
		blob, err := s.server.store.Load(ctx, msg.ResumeAdventureID)
		if err != nil {
			// The client-cached snapshot is the resume source of last
			// resort when the server has no record.
			if len(msg.State) == 0 {
				s.sendError(CodeCorruptState, "adventure not found; start fresh")
				return nil, false, false
			}
			blob = msg.State
		}
		st, err := s.server.reconstructor.Reconstruct(blob)
		if err != nil {
			log.Printf("[Session] %s reconstruction failed: %v", s.id, err)
			s.sendError(CodeCorruptState, "saved adventure is unreadable; start fresh")
			return nil, false, false
		}
		if st.Identity.UserID != userID {
			s.sendError(CodeProtocolViolation, "adventure belongs to a different identity")
			return nil, false, false
		}
		// Resuming implicitly abandons any other incomplete adventure for
		// the identity; the next Save reactivates this one.
		if err := s.server.store.AbandonOtherActive(ctx, userID, st.ID); err != nil {
			log.Printf("[Session] %s failed to abandon stale adventures: %v", s.id, err)
		}
		return st, false, true
	}

	active, err := s.server.store.ActiveForUser(ctx, userID)
	if err == nil {
		if active.Category == msg.Category && active.Topic == msg.Topic {
			st, rerr := s.server.reconstructor.Reconstruct(active.Blob)
			if rerr != nil {
				log.Printf("[Session] %s reconstruction of active adventure failed: %v", s.id, rerr)
				s.sendError(CodeCorruptState, "saved adventure is unreadable; abandon it to start fresh")
				return nil, false, false
			}
			return st, false, true
		}
		// A different incomplete adventure exists. Surface the conflict and
		// let the client decide abandon-vs-continue.
		s.sendConflict(active.AdventureID, active.Category, active.Topic, s.displayNumberFor(active.Blob))
		return nil, false, false
	}

	st, err = s.createAdventure(ctx, msg, userID)
	if err != nil {
		log.Printf("[Session] %s create failed: %v", s.id, err)
		s.sendError(CodeServerError, "failed to create adventure")
		return nil, false, false
	}
	return st, true, true
}

func (s *Session) createAdventure(ctx context.Context, msg *ClientMessage, userID string) (*models.AdventureState, error) {
	length := msg.Length
	if length == 0 {
		length = s.server.cfg.Adventure.DefaultLength
	}
	st, err := models.NewAdventureState(
		uuid.NewString(),
		models.Identity{UserID: userID, ClientCorrelationID: s.id},
		msg.Category,
		msg.Topic,
		models.PlanChapterKinds(length),
		pickSelections(s.rng),
		s.server.cfg.Adventure.Environment,
	)
	if err != nil {
		return nil, err
	}
	if err := s.server.store.Save(ctx, st); err != nil {
		return nil, err
	}
	// Creating an adventure implicitly abandons any other incomplete one
	// for the identity.
	if err := s.server.store.AbandonOtherActive(ctx, userID, st.ID); err != nil {
		log.Printf("[Session] %s failed to abandon stale adventures: %v", s.id, err)
	}
	return st, nil
}

// replayChapter sends the already-generated content of an open chapter
// verbatim. The user already saw this chapter; regenerating it would hand
// them a different story on every refresh.
func (s *Session) replayChapter(ch *models.ChapterState) {
	s.sendFrame(newHideLoaderFrame())
	s.sendFrame(newStoryFrame(ch.Content))
	s.sendFrame(newChoicesFrame(ch.Choices))
	s.sendFrame(newChapterUpdateFrame(*ch))
	s.state.Store(stateAwaitingChoice)
}

// handleChoice validates and records the user's choice, then drives the next
// chapter.
func (s *Session) handleChoice(ctx context.Context, msg *ClientMessage) {
	switch s.state.Load() {
	case stateStreaming:
		s.sendError(CodeProtocolViolation, "choice received while a chapter is still streaming")
		return
	case stateAwaitingChoice:
	default:
		s.sendError(CodeProtocolViolation, "no chapter is awaiting a choice")
		return
	}
	if msg.Choice == nil {
		s.sendError(CodeProtocolViolation, "choice payload missing")
		return
	}

	current := s.adventure.LastChapter()
	if current == nil || !current.Open() {
		s.sendError(CodeProtocolViolation, "no open chapter")
		return
	}

	var picked *models.Choice
	for i := range current.Choices {
		if current.Choices[i].DestinationID == msg.Choice.DestinationID {
			picked = &current.Choices[i]
			break
		}
	}
	if picked == nil {
		s.sendError(CodeUnknownDestination, fmt.Sprintf("unknown destination %q", msg.Choice.DestinationID))
		return
	}

	if current.Kind == models.KindLesson && current.Question != nil {
		if picked.Text == current.Question.CorrectAnswer {
			s.adventure.LessonStats.CorrectAnswers++
		}
	}

	if err := s.adventure.CloseChapter(models.ChapterResponse{
		ChosenDestinationID: picked.DestinationID,
		ChoiceText:          picked.Text,
	}); err != nil {
		s.sendError(CodeServerError, err.Error())
		return
	}

	// Chapter close must be durable before the client may safely
	// disconnect; this write stays on the hot path deliberately.
	if err := s.server.store.Save(ctx, s.adventure); err != nil {
		log.Printf("[Session] %s persist after close failed: %v", s.id, err)
		s.sendError(CodeServerError, "failed to save progress")
		return
	}

	s.generateNextChapter(ctx, picked.Text)
}

// generateNextChapter builds the prompt for the upcoming chapter, streams
// the generation, finalizes the chapter, and schedules enrichment.
func (s *Session) generateNextChapter(ctx context.Context, chosenText string) {
	st := s.adventure

	kind, planned := st.NextPlannedKind()
	if !planned {
		s.synthesizeSummary(ctx)
		return
	}

	// Late summaries are applied to state here, in the run loop, never from
	// the task goroutines.
	s.harvestSummaries()

	visualOverride := s.awaitVisualDependency(ctx)

	var question *models.LessonQuestion
	if kind == models.KindLesson {
		q := s.server.bank.Sample(st.Topic, st.UsedQuestionTexts())
		question = &q
		st.LessonStats.TotalQuestionsAsked++
	}

	prompt, err := s.server.prompts.BuildChapterPrompt(prompts.ChapterPromptInput{
		State:          st,
		Kind:           kind,
		ChosenText:     chosenText,
		Question:       question,
		VisualOverride: visualOverride,
	})
	if err != nil {
		log.Printf("[Session] %s prompt build failed: %v", s.id, err)
		s.sendError(CodeServerError, "failed to prepare the next chapter")
		return
	}

	s.state.Store(stateStreaming)
	s.sendFrame(newHideLoaderFrame())

	text, err := s.streamWithRetry(ctx, prompt)
	if errors.Is(err, errSessionClosed) {
		s.state.Store(stateTerminated)
		return
	}
	if err != nil {
		log.Printf("[Session] %s generation failed after retry: %v", s.id, err)
		text = ""
	}

	ch := s.finalizeChapter(kind, text, question)
	if ch == nil {
		return
	}

	if err := s.server.store.Save(ctx, st); err != nil {
		log.Printf("[Session] %s persist after generation failed: %v", s.id, err)
	}

	s.sendFrame(newChoicesFrame(ch.Choices))
	s.sendFrame(newChapterUpdateFrame(*ch))
	s.scheduleEnrichment(ch)

	if kind == models.KindConclusion {
		// One more choice-less round: the conclusion closes itself and the
		// summary follows immediately.
		_ = st.CloseChapter(models.ChapterResponse{ChosenDestinationID: "summary"})
		s.synthesizeSummary(ctx)
		return
	}
	s.state.Store(stateAwaitingChoice)
}

// finalizeChapter turns raw generated text into a chapter and appends it.
// Empty text means generation failed even after retry: the user gets an
// in-narrative apology instead of a dropped connection.
func (s *Session) finalizeChapter(kind models.ChapterKind, text string, question *models.LessonQuestion) *models.ChapterState {
	var content string
	var choices []models.Choice

	switch {
	case text == "":
		content = prompts.ApologyContent
		s.sendFrame(newStoryFrame(content))
		if kind == models.KindLesson {
			// The slot was meant to teach; the apology cannot, so it plays
			// as a plain story beat and the question stays unasked.
			kind = models.KindStory
			s.adventure.LessonStats.TotalQuestionsAsked--
			question = nil
		}
		if kind != models.KindConclusion {
			choices = []models.Choice{{Text: "Pick the story back up", DestinationID: "continue"}}
		}
	case kind == models.KindLesson:
		content, _ = prompts.ParseChoices(text)
		choices = s.questionChoices(question)
	case kind == models.KindConclusion:
		content, _ = prompts.ParseChoices(text)
	default:
		content, choices = prompts.ParseChoices(text)
	}

	ch, err := s.adventure.AppendChapter(models.ChapterState{
		Kind:     kind,
		Content:  content,
		Choices:  choices,
		Question: question,
	})
	if err != nil {
		log.Printf("[Session] %s append failed: %v", s.id, err)
		s.sendError(CodeServerError, "internal chapter ordering error")
		return nil
	}
	return ch
}

// questionChoices turns a lesson question into shuffled answer options.
func (s *Session) questionChoices(q *models.LessonQuestion) []models.Choice {
	if q == nil {
		return nil
	}
	texts := append([]string{q.CorrectAnswer}, q.WrongAnswers...)
	s.rng.Shuffle(len(texts), func(i, j int) { texts[i], texts[j] = texts[j], texts[i] })
	choices := make([]models.Choice, len(texts))
	for i, text := range texts {
		choices[i] = models.Choice{Text: text, DestinationID: fmt.Sprintf("answer-%d", i+1)}
	}
	return choices
}

// awaitVisualDependency is the one hard dependency on enrichment: the next
// chapter's prompt wants the previous chapter's character visuals. The wait
// is bounded; on timeout the prompt carries a deterministic fallback.
func (s *Session) awaitVisualDependency(ctx context.Context) string {
	st := s.adventure
	last := st.LastChapter()
	if last == nil || (last.Kind != models.KindStory && last.Kind != models.KindConclusion) {
		return ""
	}

	key := tasks.TaskKey{AdventureID: st.ID, Chapter: last.Number, Kind: tasks.TaskVisuals}
	result := s.server.ledger.AwaitRequired(ctx, key, s.server.cfg.Adventure.VisualAwaitTimeout, prompts.VisualFallback)

	visuals, ok := result.(map[string]string)
	if !ok {
		if st.ProtagonistDescription == "" {
			return prompts.VisualFallback
		}
		return ""
	}
	for name, desc := range visuals {
		if name == "Protagonist" {
			st.ProtagonistDescription = desc
			continue
		}
		st.CharacterVisuals[name] = desc
	}
	return ""
}

// streamWithRetry runs the generation stream, retrying once with the
// unmodified prompt. A later chapter_update snapshot supersedes any partial
// text the first attempt forwarded.
func (s *Session) streamWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		fw := &chunkForwarder{session: s}
		text, err := s.server.generator.StreamCompletion(ctx, prompt, fw.onChunk)
		if err == nil {
			return text, nil
		}
		if errors.Is(err, errSessionClosed) {
			return "", err
		}
		lastErr = err
		log.Printf("[Session] %s generation attempt %d failed: %v", s.id, attempt+1, err)
	}
	return "", lastErr
}

// chunkForwarder forwards stream chunks to the client while holding back the
// structured choices block at the tail.
type chunkForwarder struct {
	session *Session
	buf     strings.Builder
	emitted int
	stopped bool
}

func (f *chunkForwarder) onChunk(chunk string) error {
	if f.session.closed.Load() {
		return errSessionClosed
	}
	if f.stopped {
		return nil
	}
	f.buf.WriteString(chunk)
	text := f.buf.String()

	limit := len(text)
	if idx := strings.Index(text, choicesMarker); idx >= 0 {
		limit = idx
		f.stopped = true
	} else {
		// Hold back a tail that might be the start of the marker.
		for k := len(choicesMarker) - 1; k > 0; k-- {
			if strings.HasSuffix(text, choicesMarker[:k]) {
				limit = len(text) - k
				break
			}
		}
	}

	if limit > f.emitted {
		delta := text[f.emitted:limit]
		f.emitted = limit
		f.session.sendFrame(newStoryFrame(delta))
	}
	return nil
}

// harvestSummaries applies any completed summary tasks to state. Runs in the
// run loop only.
func (s *Session) harvestSummaries() {
	st := s.adventure
	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if ch.SummaryText != "" && !ch.SummaryIsPlaceholder {
			continue
		}
		key := tasks.TaskKey{AdventureID: st.ID, Chapter: ch.Number, Kind: tasks.TaskSummary}
		if v, ok := s.server.ledger.HarvestBestEffort(key); ok {
			if summary, ok := v.(string); ok && summary != "" {
				ch.SummaryText = strings.TrimSpace(summary)
				ch.SummaryIsPlaceholder = false
			}
		}
	}
}

// synthesizeSummary assembles the final summary chapter from per-chapter
// summaries, pulling in late enrichment under a bounded wait, then
// terminates the session.
func (s *Session) synthesizeSummary(ctx context.Context) {
	st := s.adventure

	var keys []tasks.TaskKey
	for i := range st.Chapters {
		keys = append(keys, tasks.TaskKey{AdventureID: st.ID, Chapter: st.Chapters[i].Number, Kind: tasks.TaskSummary})
	}
	s.server.ledger.AwaitAll(ctx, s.server.cfg.Adventure.SummaryHarvestTimeout, keys...)
	s.harvestSummaries()

	for i := range st.Chapters {
		ch := &st.Chapters[i]
		if ch.SummaryText == "" && ch.Content != "" {
			ch.SummaryText = engine.PlaceholderSummary(ch.Content)
			ch.SummaryIsPlaceholder = true
		}
	}

	ch, err := st.AppendChapter(models.ChapterState{
		Kind:    models.KindSummary,
		Content: prompts.BuildFinalSummary(st),
	})
	if err != nil {
		log.Printf("[Session] %s summary append failed: %v", s.id, err)
		s.sendError(CodeServerError, "failed to assemble summary")
		return
	}

	// The summary reveal is a terminal client-visible event; the state must
	// be durable before announcing it.
	if err := s.server.store.Save(ctx, st); err != nil {
		log.Printf("[Session] %s persist of summary failed: %v", s.id, err)
		s.sendError(CodeServerError, "failed to save summary")
		return
	}

	s.sendFrame(newChapterUpdateFrame(*ch))
	s.sendFrame(newSummaryReadyFrame(st.ID))
	s.state.Store(stateTerminated)
	s.server.ledger.Forget(st.ID)
}

// scheduleEnrichment queues the background work for a finalized chapter:
// summary text, an illustration, and (for chapters that can introduce
// characters) visual extraction. All best-effort; only the visual task is
// ever awaited, and that with a bound.
func (s *Session) scheduleEnrichment(ch *models.ChapterState) {
	st := s.adventure
	bg := s.server.bgCtx
	chapterNum := ch.Number
	chapterCopy := *ch

	if summaryPrompt, err := s.server.prompts.BuildSummaryTextPrompt(&chapterCopy); err == nil {
		key := tasks.TaskKey{AdventureID: st.ID, Chapter: chapterNum, Kind: tasks.TaskSummary}
		s.server.ledger.Schedule(bg, key, func(ctx context.Context) (interface{}, error) {
			return s.server.generator.Complete(ctx, summaryPrompt)
		})
	}

	if ch.Kind == models.KindStory || ch.Kind == models.KindConclusion {
		knownVisuals := make(map[string]string, len(st.CharacterVisuals))
		for k, v := range st.CharacterVisuals {
			knownVisuals[k] = v
		}
		if extractPrompt, err := s.server.prompts.BuildVisualExtractionPrompt(&chapterCopy, knownVisuals); err == nil {
			key := tasks.TaskKey{AdventureID: st.ID, Chapter: chapterNum, Kind: tasks.TaskVisuals}
			s.server.ledger.Schedule(bg, key, func(ctx context.Context) (interface{}, error) {
				raw, err := s.server.generator.Complete(ctx, extractPrompt)
				if err != nil {
					return nil, err
				}
				return prompts.ParseVisuals(raw)
			})
		}
	}

	if s.server.images != nil {
		if imagePrompt, err := s.server.prompts.BuildImagePrompt(st, &chapterCopy); err == nil {
			key := tasks.TaskKey{AdventureID: st.ID, Chapter: chapterNum, Kind: tasks.TaskImage}
			s.server.ledger.Schedule(bg, key, func(ctx context.Context) (interface{}, error) {
				data, err := s.server.images.GenerateImage(ctx, imagePrompt)
				if err != nil {
					return nil, err
				}
				// Push straight to the client if it is still connected;
				// otherwise the cache keeps the result for the next visit.
				s.sendFrame(imageUpdateFrame{
					Type:          "image_update",
					ChapterNumber: chapterNum,
					ImageBase64:   base64.StdEncoding.EncodeToString(data),
				})
				return data, nil
			})
		}
	}
}

func (s *Session) displayNumberFor(blob []byte) int {
	st, err := s.server.reconstructor.Reconstruct(blob)
	if err != nil {
		return 0
	}
	return st.DisplayChapterNumber()
}

func (s *Session) sendConflict(adventureID, category, topic string, displayNumber int) {
	frame := newErrorFrame(CodeConflict, "another adventure is already in progress for this identity")
	frame.Conflict = &conflictInfo{
		AdventureID:          adventureID,
		Category:             category,
		Topic:                topic,
		DisplayChapterNumber: displayNumber,
	}
	s.sendFrame(frame)
}

func (s *Session) sendError(code, message string) {
	s.sendFrame(newErrorFrame(code, message))
}

// sendFrame serializes and queues a frame. The send channel is never closed,
// so late background pushes after disconnect land in the buffer or are
// dropped; a dead transport must never crash state handling.
func (s *Session) sendFrame(frame interface{}) {
	if s.closed.Load() {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		log.Printf("[Session] %s failed to marshal frame: %v", s.id, err)
		return
	}
	select {
	case s.send <- data:
	default:
		log.Printf("[Session] %s send buffer full, dropping frame", s.id)
	}
}

// writePump owns all websocket writes and the keepalive ping.
func (s *Session) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case message := <-s.send:
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Session] %s write failed: %v", s.id, err)
				s.closed.Store(true)
				return
			}
		case <-s.quit:
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.closed.Store(true)
				return
			}
		}
	}
}

// close tears the session down from outside the run loop (supersession).
func (s *Session) close() {
	if s.closed.CompareAndSwap(false, true) {
		_ = s.conn.Close()
	}
}

// cleanup runs when the run loop exits. Background enrichment keeps
// running: its results are still wanted on the next reconnect.
func (s *Session) cleanup() {
	s.closed.Store(true)
	close(s.quit)
	if s.userID != "" {
		s.server.registry.Release(s.userID, s)
	}
	log.Printf("[Session] %s closed", s.id)
}
