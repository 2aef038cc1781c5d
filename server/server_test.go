package server_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/becomeliminal/reverie/dream"
	"github.com/becomeliminal/reverie/emotion"
	"github.com/becomeliminal/reverie/genai"
	"github.com/becomeliminal/reverie/memory"
	"github.com/becomeliminal/reverie/server"
)

func newTestHandler() (http.Handler, *memory.Store) {
	store := memory.New()
	gen := genai.NewStatic()
	dreams := dream.New(store, gen, dream.DefaultConfig())
	engine := emotion.New(store, gen, emotion.DefaultConfig())
	srv := server.New(store, dreams, engine, server.Config{})
	return srv.Handler(), store
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("%s %s: decoding response %q: %v", method, path, rec.Body.String(), err)
	}
	return rec, decoded
}

func TestHealth(t *testing.T) {
	handler, _ := newTestHandler()
	rec, body := doJSON(t, handler, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", rec.Code, body)
	}
}

func TestBulkLoadRejectsEmptyList(t *testing.T) {
	handler, _ := newTestHandler()
	rec, body := doJSON(t, handler, http.MethodPost, "/api/memories/bulk",
		map[string]any{"memories": []any{}})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want structured failure with 200", rec.Code)
	}
	if body["success"] != false || body["message"] != "No memories provided" {
		t.Fatalf("body = %v", body)
	}
}

func TestBulkLoadAddsMemories(t *testing.T) {
	handler, store := newTestHandler()
	_, body := doJSON(t, handler, http.MethodPost, "/api/memories/bulk", map[string]any{
		"memories": []map[string]any{
			{"text": "learned to sail", "source": "learning"},
			{"text": "routine checkup", "importance": 0.2},
			{"text": ""},
		},
	})

	if body["success"] != true || body["added"] != float64(2) {
		t.Fatalf("body = %v", body)
	}
	active, _, _ := store.Counts()
	if active != 2 {
		t.Fatalf("active count = %d, want 2", active)
	}

	_, listing := doJSON(t, handler, http.MethodGet, "/api/memories", nil)
	recent, ok := listing["recent"].([]any)
	if !ok || len(recent) != 2 {
		t.Fatalf("recent = %v", listing["recent"])
	}
}

func TestDreamTriggerAndState(t *testing.T) {
	handler, _ := newTestHandler()

	_, trigger := doJSON(t, handler, http.MethodPost, "/api/dreams/trigger", nil)
	if trigger["status"] != dream.StatusCompleted {
		t.Fatalf("trigger = %v", trigger)
	}

	_, state := doJSON(t, handler, http.MethodGet, "/api/dream/state", nil)
	if state["dreaming"] != false || state["current_stage"] != dream.StageIdle {
		t.Fatalf("state = %v", state)
	}

	_, dreams := doJSON(t, handler, http.MethodGet, "/api/dreams", nil)
	records, ok := dreams["dreams"].([]any)
	if !ok || len(records) != 1 {
		t.Fatalf("dreams = %v", dreams["dreams"])
	}
}

func TestEmotionState(t *testing.T) {
	handler, _ := newTestHandler()
	_, state := doJSON(t, handler, http.MethodGet, "/api/emotion/state", nil)

	emotions, ok := state["emotions"].(map[string]any)
	if !ok {
		t.Fatalf("state = %v", state)
	}
	if len(emotions) != len(emotion.Names) {
		t.Fatalf("emotion count = %d, want %d", len(emotions), len(emotion.Names))
	}

	rec, body := doJSON(t, handler, http.MethodPost, "/api/emotion/reset", nil)
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("reset = %d %v", rec.Code, body)
	}
}

func TestChat(t *testing.T) {
	handler, store := newTestHandler()
	_, body := doJSON(t, handler, http.MethodPost, "/api/chat",
		map[string]any{"message": "good morning"})

	reply, ok := body["reply"].(string)
	if !ok || reply == "" {
		t.Fatalf("body = %v", body)
	}
	active, _, _ := store.Counts()
	if active != 1 {
		t.Fatalf("active count = %d, want the stored exchange", active)
	}

	rec, _ := doJSON(t, handler, http.MethodPost, "/api/chat", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty message status = %d, want 400", rec.Code)
	}
}

func TestSystemReset(t *testing.T) {
	handler, store := newTestHandler()
	doJSON(t, handler, http.MethodPost, "/api/memories/bulk", map[string]any{
		"memories": []map[string]any{{"text": "something to forget"}},
	})
	doJSON(t, handler, http.MethodPost, "/api/dreams/trigger", nil)

	rec, body := doJSON(t, handler, http.MethodPost, "/api/system/reset", nil)
	if rec.Code != http.StatusOK || body["success"] != true {
		t.Fatalf("reset = %d %v", rec.Code, body)
	}
	active, consolidated, insights := store.Counts()
	if active != 0 || consolidated != 0 || insights != 0 {
		t.Fatalf("counts after reset = %d/%d/%d", active, consolidated, insights)
	}
}
