package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/recallhq/recall/engine/ai"
	"github.com/recallhq/recall/engine/content"
	"github.com/recallhq/recall/engine/jobs"
	"github.com/recallhq/recall/engine/rag"
	"github.com/recallhq/recall/engine/semantic"
)

// --- In-memory fakes wired through the real services ---

type fakeStore struct {
	records map[int64]content.Record
	nextID  int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: map[int64]content.Record{}, nextID: 1}
}

func (f *fakeStore) Insert(_ context.Context, r content.Record) (content.Record, error) {
	r.ID = f.nextID
	f.nextID++
	f.records[r.ID] = r
	return r, nil
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (*content.Record, error) {
	if r, ok := f.records[id]; ok {
		return &r, nil
	}
	return nil, nil
}

func (f *fakeStore) GetByIDs(_ context.Context, ids []int64) ([]content.Record, error) {
	var out []content.Record
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) List(_ context.Context, _ content.ListFilter) ([]content.Record, error) {
	var out []content.Record
	for _, r := range f.records {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeStore) Update(_ context.Context, id int64, p content.Patch) (*content.Record, error) {
	r, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	if p.Title != nil {
		r.Title = *p.Title
	}
	f.records[id] = r
	return &r, nil
}

func (f *fakeStore) Delete(_ context.Context, id int64) (bool, error) {
	if _, ok := f.records[id]; !ok {
		return false, nil
	}
	delete(f.records, id)
	return true, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) AnalyzeText(context.Context, string, string, string) (ai.Analysis, error) {
	return ai.Analysis{Type: "note", Metadata: map[string]any{}, Labels: []string{"test"}}, nil
}

func (fakeAnalyzer) AnalyzeImage(context.Context, string, string) (ai.Analysis, error) {
	return ai.Analysis{Type: "image", Metadata: map[string]any{}, Labels: []string{"test"}}, nil
}

func (fakeAnalyzer) AnalyzeURL(context.Context, string, string) (ai.Analysis, error) {
	return ai.Analysis{Type: "link", Metadata: map[string]any{}, Labels: []string{"test"}}, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedDocument(context.Context, string) ([]float32, error) {
	return []float32{0.1}, nil
}

func (fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{0.1}, nil
}

type fakeGenerator struct{}

func (fakeGenerator) GenerateAnswer(context.Context, string, []string) (string, error) {
	return "generated answer", nil
}

type fakeIndex struct {
	hits []semantic.Hit
}

func (f *fakeIndex) Upsert(_ context.Context, rec semantic.VectorRecord) error {
	f.hits = append(f.hits, semantic.Hit{ID: rec.ID, Score: 0.9})
	return nil
}

func (f *fakeIndex) Search(context.Context, []float32, semantic.Query) ([]semantic.Hit, error) {
	return f.hits, nil
}

func (f *fakeIndex) Delete(context.Context, int64) error { return nil }

func newTestServer() (*server, *fakeStore) {
	st := newFakeStore()
	idx := &fakeIndex{}
	contentSvc := content.NewService(st, fakeAnalyzer{}, content.NewSyncIndexer(fakeEmbedder{}, idx), idx, nil)
	ragEngine := rag.New(fakeEmbedder{}, fakeGenerator{}, idx, st, nil)
	return &server{
		content: contentSvc,
		rag:     ragEngine,
		failed:  jobs.NewFailedLog(),
		logger:  slog.Default(),
	}, st
}

func newMux(s *server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/content", s.handleCreate)
	mux.HandleFunc("GET /api/content", s.handleList)
	mux.HandleFunc("GET /api/content/{id}", s.handleGet)
	mux.HandleFunc("PUT /api/content/{id}", s.handleUpdate)
	mux.HandleFunc("DELETE /api/content/{id}", s.handleDelete)
	mux.HandleFunc("GET /api/content/search", s.handleSearch)
	mux.HandleFunc("POST /api/content/search", s.handleAsk)
	mux.HandleFunc("GET /api/jobs/failed", s.handleFailedJobs)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

// --- Tests ---

func TestHealth(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, newMux(s), "GET", "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCreateContent(t *testing.T) {
	s, st := newTestServer()
	rec := doJSON(t, newMux(s), "POST", "/api/content", content.CreateRequest{Content: "remember this"})

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var got content.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.ID == 0 || got.Type != "note" {
		t.Errorf("record = %+v", got)
	}
	if len(st.records) != 1 {
		t.Error("record not persisted")
	}
}

func TestCreateContentRejectsEmpty(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, newMux(s), "POST", "/api/content", content.CreateRequest{Title: "no body"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestCreateContentBadJSON(t *testing.T) {
	s, _ := newTestServer()
	mux := newMux(s)

	req := httptest.NewRequest("POST", "/api/content", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestGetContent(t *testing.T) {
	s, _ := newTestServer()
	mux := newMux(s)

	created := doJSON(t, mux, "POST", "/api/content", content.CreateRequest{Content: "x"})
	var rec content.Record
	json.Unmarshal(created.Body.Bytes(), &rec)

	got := doJSON(t, mux, "GET", "/api/content/1", nil)
	if got.Code != http.StatusOK {
		t.Errorf("status = %d", got.Code)
	}

	missing := doJSON(t, mux, "GET", "/api/content/999", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing: status = %d", missing.Code)
	}

	bad := doJSON(t, mux, "GET", "/api/content/abc", nil)
	if bad.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d", bad.Code)
	}
}

func TestUpdateContent(t *testing.T) {
	s, _ := newTestServer()
	mux := newMux(s)
	doJSON(t, mux, "POST", "/api/content", content.CreateRequest{Content: "x"})

	title := "renamed"
	rec := doJSON(t, mux, "PUT", "/api/content/1", content.Patch{Title: &title})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got content.Record
	json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Title != "renamed" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestDeleteContent(t *testing.T) {
	s, st := newTestServer()
	mux := newMux(s)
	doJSON(t, mux, "POST", "/api/content", content.CreateRequest{Content: "x"})

	rec := doJSON(t, mux, "DELETE", "/api/content/1", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("status = %d", rec.Code)
	}
	if len(st.records) != 0 {
		t.Error("record not deleted")
	}

	again := doJSON(t, mux, "DELETE", "/api/content/1", nil)
	if again.Code != http.StatusNotFound {
		t.Errorf("second delete: status = %d", again.Code)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, newMux(s), "GET", "/api/content/search?q=", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSearchReturnsScoredRecords(t *testing.T) {
	s, _ := newTestServer()
	mux := newMux(s)
	doJSON(t, mux, "POST", "/api/content", content.CreateRequest{Content: "searchable"})

	rec := doJSON(t, mux, "GET", "/api/content/search?q=searchable", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var results []rag.ScoredRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &results); err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Score != 0.9 {
		t.Errorf("results = %+v", results)
	}
}

func TestAskWithNoContent(t *testing.T) {
	s, _ := newTestServer()
	rec := doJSON(t, newMux(s), "POST", "/api/content/search", AskRequest{Query: "anything?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var answer rag.Answer
	json.Unmarshal(rec.Body.Bytes(), &answer)
	if answer.Text != rag.NoAnswerText {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 0 {
		t.Errorf("sources = %v", answer.Sources)
	}
}

func TestAskWithContent(t *testing.T) {
	s, _ := newTestServer()
	mux := newMux(s)
	doJSON(t, mux, "POST", "/api/content", content.CreateRequest{Content: "the answer is 42"})

	rec := doJSON(t, mux, "POST", "/api/content/search", AskRequest{Query: "what is the answer?"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var answer rag.Answer
	json.Unmarshal(rec.Body.Bytes(), &answer)
	if answer.Text != "generated answer" {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 1 {
		t.Errorf("sources = %v", answer.Sources)
	}
}

func TestFailedJobsEndpoint(t *testing.T) {
	s, _ := newTestServer()
	s.failed.Record(jobs.FailedJob{Job: jobs.Job{ContentID: 7}, Error: "boom", Attempts: 3})

	rec := doJSON(t, newMux(s), "GET", "/api/jobs/failed", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []jobs.FailedJob
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Job.ContentID != 7 {
		t.Errorf("failed jobs = %+v", got)
	}
}

func TestSplitCSV(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"a", 1},
		{"a,b,c", 3},
		{"a, b , ,c", 3},
	}
	for _, tc := range cases {
		if got := splitCSV(tc.in); len(got) != tc.want {
			t.Errorf("splitCSV(%q) = %v", tc.in, got)
		}
	}
}

func TestAtoiOr(t *testing.T) {
	if atoiOr("", 5) != 5 || atoiOr("bad", 5) != 5 || atoiOr("7", 5) != 7 {
		t.Error("atoiOr fallback broken")
	}
}
