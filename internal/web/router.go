package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"questweaver/server/internal/config"
	"questweaver/server/internal/engine"
	"questweaver/server/internal/interfaces"
	"questweaver/server/internal/lessons"
	"questweaver/server/internal/models"
	"questweaver/server/internal/prompts"
	"questweaver/server/internal/tasks"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server wires the websocket sessions and the REST surface to the shared
// collaborators. bgCtx outlives every session so enrichment tasks keep
// running across disconnects.
type Server struct {
	cfg           *config.Config
	store         interfaces.AdventureStore
	generator     interfaces.Generator
	images        interfaces.ImageGenerator
	identity      interfaces.IdentityResolver
	ledger        *tasks.Ledger
	prompts       *prompts.Engine
	bank          *lessons.Bank
	reconstructor *engine.Reconstructor
	registry      *Registry
	bgCtx         context.Context
}

// ServerDeps carries the collaborators for NewServer. Images may be nil when
// no illustration backend is configured.
type ServerDeps struct {
	Store     interfaces.AdventureStore
	Generator interfaces.Generator
	Images    interfaces.ImageGenerator
	Identity  interfaces.IdentityResolver
	Bank      *lessons.Bank
}

func NewServer(bgCtx context.Context, cfg *config.Config, deps ServerDeps) *Server {
	identity := deps.Identity
	if identity == nil {
		identity = GuestResolver{}
	}
	return &Server{
		cfg:           cfg,
		store:         deps.Store,
		generator:     deps.Generator,
		images:        deps.Images,
		identity:      identity,
		ledger:        tasks.NewLedger(),
		prompts:       prompts.NewEngine(),
		bank:          deps.Bank,
		reconstructor: engine.NewReconstructor(),
		registry:      NewRegistry(),
		bgCtx:         bgCtx,
	}
}

// Router builds the chi router with the websocket endpoint and the REST
// companion API.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/ws", s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/adventure/active", s.handleActiveAdventure)
		r.Post("/adventure/{adventureID}/abandon", s.handleAbandon)
		r.Get("/adventure/{adventureID}/summary", s.handleSummary)
	})
	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"sessions":        s.registry.Count(),
		"tasks_in_flight": s.ledger.InFlight(),
		"environment":     s.cfg.Adventure.Environment,
		"lesson_topics":   s.bank.Topics(),
		"state_version":   models.CurrentStateVersion,
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Server] Websocket upgrade failed: %v", err)
		return
	}
	session := newSession(s, conn)
	log.Printf("[Server] Session %s connected from %s", session.id, r.RemoteAddr)
	// The request context dies with this handler; the session lives on the
	// server's background context instead.
	go session.run(s.bgCtx)
}

// handleActiveAdventure reports the user's incomplete adventure, if any, with
// the same display chapter number the websocket surface shows.
func (s *Server) handleActiveAdventure(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	active, err := s.store.ActiveForUser(r.Context(), userID)
	if err != nil {
		if err == interfaces.ErrNoActive {
			writeJSON(w, http.StatusOK, map[string]interface{}{"active": false})
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	st, err := s.reconstructor.Reconstruct(active.Blob)
	if err != nil {
		log.Printf("[Server] Active adventure %s is unreadable: %v", active.AdventureID, err)
		writeError(w, http.StatusInternalServerError, "saved adventure is unreadable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"active":                 true,
		"adventure_id":           st.ID,
		"category":               st.Category,
		"topic":                  st.Topic,
		"display_chapter_number": st.DisplayChapterNumber(),
		"total_chapters":         len(st.PlannedKinds),
	})
}

func (s *Server) handleAbandon(w http.ResponseWriter, r *http.Request) {
	adventureID := chi.URLParam(r, "adventureID")
	if err := s.store.Abandon(r.Context(), adventureID); err != nil {
		if err == interfaces.ErrNotFound {
			writeError(w, http.StatusNotFound, "adventure not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "abandon failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"abandoned": adventureID})
}

// handleSummary serves the synthesized summary chapter of a completed
// adventure. Incomplete adventures get a 409: the summary does not exist
// until the final chapter has closed.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	adventureID := chi.URLParam(r, "adventureID")
	blob, err := s.store.Load(r.Context(), adventureID)
	if err != nil {
		writeError(w, http.StatusNotFound, "adventure not found")
		return
	}

	st, err := s.reconstructor.Reconstruct(blob)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "saved adventure is unreadable")
		return
	}
	if !st.IsComplete() {
		writeError(w, http.StatusConflict, "adventure is not complete yet")
		return
	}

	last := st.LastChapter()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"adventure_id": st.ID,
		"summary":      last.Content,
		"lesson_stats": st.LessonStats,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[Server] Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// HTTPServer builds the http.Server with the configured timeouts. Write
// timeout stays zero so long-lived websocket connections are not cut off.
func (s *Server) HTTPServer(addr string) *http.Server {
	readTimeout := s.cfg.Server.ReadTimeout
	if readTimeout == 0 {
		readTimeout = 30 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: readTimeout,
	}
}
