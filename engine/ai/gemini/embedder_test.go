package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	e := NewEmbedder("test-key", DefaultEmbedModel)
	e.baseURL = srv.URL
	return e
}

func TestEmbedderTaskTypes(t *testing.T) {
	var gotTasks []string
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		var req embedContentReq
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		gotTasks = append(gotTasks, req.TaskType)
		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{0.1, 0.2}},
		})
	})

	if _, err := e.EmbedDocument(context.Background(), "stored text"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.EmbedQuery(context.Background(), "search text"); err != nil {
		t.Fatal(err)
	}

	if len(gotTasks) != 2 || gotTasks[0] != "RETRIEVAL_DOCUMENT" || gotTasks[1] != "RETRIEVAL_QUERY" {
		t.Errorf("task types = %v", gotTasks)
	}
}

func TestEmbedderRequestShape(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("api key header = %q", got)
		}

		var req embedContentReq
		json.NewDecoder(r.Body).Decode(&req)
		if req.Model != "models/"+DefaultEmbedModel {
			t.Errorf("model = %q", req.Model)
		}
		if len(req.Content.Parts) != 1 || req.Content.Parts[0].Text != "hello" {
			t.Errorf("parts = %+v", req.Content.Parts)
		}

		json.NewEncoder(w).Encode(map[string]any{
			"embedding": map[string]any{"values": []float32{1, 2, 3}},
		})
	})

	vec, err := e.EmbedDocument(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 3 {
		t.Errorf("vector = %v", vec)
	}
}

func TestEmbedderUpstreamError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error": "quota exceeded"}`, http.StatusTooManyRequests)
	})

	if _, err := e.EmbedDocument(context.Background(), "text"); err == nil {
		t.Fatal("expected error on 429")
	}
}

func TestEmbedderEmptyEmbedding(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"embedding": map[string]any{"values": []float32{}}})
	})

	if _, err := e.EmbedDocument(context.Background(), "text"); err == nil {
		t.Fatal("empty embedding must be an error")
	}
}
