// Package server exposes the HTTP surface: state inspection endpoints,
// admin operations, and a websocket feed streaming live state.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/reverie/dream"
	"github.com/becomeliminal/reverie/emotion"
	"github.com/becomeliminal/reverie/memory"
)

// Config configures the server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// StreamInterval is the websocket snapshot cadence. Defaults to
	// 200ms.
	StreamInterval time.Duration
}

// Server wires the memory store, dream system, and emotion engine to
// HTTP.
type Server struct {
	store  *memory.Store
	dreams *dream.System
	engine *emotion.Engine
	cfg    Config

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// New creates a server with all routes registered.
func New(store *memory.Store, dreams *dream.System, engine *emotion.Engine, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 200 * time.Millisecond
	}
	s := &Server{
		store:  store,
		dreams: dreams,
		engine: engine,
		cfg:    cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.httpServer = &http.Server{
		Addr:    cfg.Addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the route mux. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/dream/state", s.handleDreamState)
	mux.HandleFunc("POST /api/dreams/trigger", s.handleDreamTrigger)
	mux.HandleFunc("GET /api/dreams", s.handleDreams)
	mux.HandleFunc("GET /api/memories", s.handleMemories)
	mux.HandleFunc("POST /api/memories/bulk", s.handleMemoriesBulk)
	mux.HandleFunc("GET /api/emotion/state", s.handleEmotionState)
	mux.HandleFunc("POST /api/emotion/reset", s.handleEmotionReset)
	mux.HandleFunc("POST /api/chat", s.handleChat)
	mux.HandleFunc("POST /api/system/reset", s.handleSystemReset)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// Start begins serving. It blocks until the listener fails or Shutdown
// is called.
func (s *Server) Start() error {
	log.Printf("[SERVER] Listening on %s", s.cfg.Addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDreamState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dreams.State())
}

func (s *Server) handleDreamTrigger(w http.ResponseWriter, r *http.Request) {
	result := s.dreams.Trigger(r.Context())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDreams(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"dreams": s.dreams.RecentDreams(),
	})
}

func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	active, consolidated, insights := s.store.Counts()
	writeJSON(w, http.StatusOK, map[string]any{
		"recent":       s.store.Recent(20),
		"consolidated": s.store.Consolidated(10),
		"insights":     s.store.Insights(10),
		"counts": map[string]int{
			"active":       active,
			"consolidated": consolidated,
			"insights":     insights,
		},
	})
}

// bulkMemory is one entry in a bulk load request. A nil importance
// invokes the scoring heuristic.
type bulkMemory struct {
	Text       string         `json:"text"`
	Source     string         `json:"source"`
	Importance *float64       `json:"importance"`
	Metadata   map[string]any `json:"metadata"`
}

func (s *Server) handleMemoriesBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Memories []bulkMemory `json:"memories"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Invalid request body",
		})
		return
	}
	if len(req.Memories) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "No memories provided",
		})
		return
	}

	added := 0
	for _, m := range req.Memories {
		if m.Text == "" {
			continue
		}
		source := m.Source
		if source == "" {
			source = memory.SourceGenerated
		}
		var opts []memory.AddOption
		if m.Importance != nil {
			opts = append(opts, memory.WithImportance(*m.Importance))
		}
		if m.Metadata != nil {
			opts = append(opts, memory.WithMetadata(m.Metadata))
		}
		s.store.AddMemory(r.Context(), m.Text, source, opts...)
		added++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"added":   added,
	})
}

func (s *Server) handleEmotionState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

func (s *Server) handleEmotionReset(w http.ResponseWriter, r *http.Request) {
	s.engine.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"message": "Message is required",
		})
		return
	}
	reply := s.engine.ProcessMessage(r.Context(), req.Message)
	writeJSON(w, http.StatusOK, map[string]any{
		"reply":    reply,
		"emotions": s.engine.Snapshot(),
	})
}

func (s *Server) handleSystemReset(w http.ResponseWriter, r *http.Request) {
	s.dreams.Reset()
	s.store.Reset(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// snapshot is one websocket frame: the full observable state.
func (s *Server) snapshot() map[string]any {
	active, consolidated, insights := s.store.Counts()
	return map[string]any{
		"dream":   s.dreams.State(),
		"emotion": s.engine.State(),
		"memory_counts": map[string]int{
			"active":       active,
			"consolidated": consolidated,
			"insights":     insights,
		},
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[SERVER] Websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.cfg.StreamInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := conn.WriteJSON(s.snapshot()); err != nil {
				return
			}
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Encoding response failed: %v", err)
	}
}
