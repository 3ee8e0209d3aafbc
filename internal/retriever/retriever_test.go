// File path: internal/retriever/retriever_test.go
package retriever

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agrisense/farmchat/internal/vector"
)

type fakeStore struct {
	results  []vector.SearchResult
	err      error
	gotLimit int
}

func (f *fakeStore) Available() bool            { return true }
func (f *fakeStore) DocumentCollection() string { return "documents" }
func (f *fakeStore) DataCollection() string     { return "data_files" }

func (f *fakeStore) Upsert(ctx context.Context, collection string, docs []vector.Doc) error {
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vec []float32, limit int) ([]vector.SearchResult, error) {
	f.gotLimit = limit
	return f.results, f.err
}

func (f *fakeStore) GetAll(ctx context.Context, collection string) ([]vector.StoredDoc, error) {
	return nil, nil
}

func (f *fakeStore) DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error {
	return nil
}

type fakeEmbedder struct {
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

type fakeWeb struct {
	called bool
	reply  string
}

func (f *fakeWeb) Search(ctx context.Context, query string, numResults int) string {
	f.called = true
	return f.reply
}

func candidate(id string, distance float64) vector.SearchResult {
	return vector.SearchResult{
		ID:       id,
		Distance: distance,
		Document: "content of " + id,
		Metadata: map[string]interface{}{"filename": id + ".pdf"},
	}
}

func TestNormalizeMinMaxScenario(t *testing.T) {
	scored := Normalize([]vector.SearchResult{
		candidate("a", 0.1),
		candidate("b", 0.5),
		candidate("c", 0.9),
	})
	// The batch midpoint must land exactly on 0.5, not fractionally below
	// it, so that a threshold of 0.5 keeps it.
	want := []float64{1.0, 0.5, 0.0}
	for i, doc := range scored {
		if doc.Similarity != want[i] {
			t.Errorf("similarity[%d] = %.12f, want exactly %f", i, doc.Similarity, want[i])
		}
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	batch := []vector.SearchResult{candidate("a", 0.2), candidate("b", 0.7)}
	first := Normalize(batch)
	second := Normalize(batch)
	for i := range first {
		if first[i].Similarity != second[i].Similarity {
			t.Fatalf("normalization not stable at %d: %f vs %f", i, first[i].Similarity, second[i].Similarity)
		}
	}
}

func TestNormalizeSingleDistinctDistance(t *testing.T) {
	scored := Normalize([]vector.SearchResult{candidate("a", 0.4), candidate("b", 0.4)})
	for _, doc := range scored {
		if doc.Similarity != 1.0 {
			t.Fatalf("expected similarity 1.0, got %f", doc.Similarity)
		}
	}
}

func TestRetrieveThresholdFilterIsExact(t *testing.T) {
	store := &fakeStore{results: []vector.SearchResult{
		candidate("a", 0.1),
		candidate("b", 0.5),
		candidate("c", 0.9),
	}}
	web := &fakeWeb{reply: "web"}
	r := New(&fakeEmbedder{}, store, web, Config{TopK: 20, Threshold: 0.5})

	result, err := r.Retrieve(context.Background(), "딸기 최적 온도는?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected retrieval to apply")
	}
	if web.called {
		t.Fatal("web fallback must not run when documents survive the threshold")
	}
	if !strings.Contains(result.Context, "a.pdf") || !strings.Contains(result.Context, "b.pdf") {
		t.Fatalf("expected documents a and b in context: %q", result.Context)
	}
	if strings.Contains(result.Context, "c.pdf") {
		t.Fatalf("document below threshold leaked into context: %q", result.Context)
	}
	if got := strings.Count(result.Context, "[문서:"); got != 2 {
		t.Fatalf("expected exactly two documents to survive threshold 0.5, got %d: %q", got, result.Context)
	}
}

func TestRetrieveOverFetchesCandidates(t *testing.T) {
	store := &fakeStore{results: []vector.SearchResult{candidate("a", 0.1)}}
	r := New(&fakeEmbedder{}, store, &fakeWeb{}, Config{TopK: 5, Threshold: 0.5})
	if _, err := r.Retrieve(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gotLimit != 50 {
		t.Fatalf("expected over-fetch floor of 50, got %d", store.gotLimit)
	}

	r = New(&fakeEmbedder{}, store, &fakeWeb{}, Config{TopK: 40, Threshold: 0.5})
	if _, err := r.Retrieve(context.Background(), "q"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.gotLimit != 80 {
		t.Fatalf("expected topK*2 = 80, got %d", store.gotLimit)
	}
}

func TestRetrieveEmptyIndexEscalatesToWeb(t *testing.T) {
	store := &fakeStore{}
	web := &fakeWeb{reply: "[출처: http://example.com]\nweb text"}
	r := New(&fakeEmbedder{}, store, web, DefaultConfig())

	result, err := r.Retrieve(context.Background(), "질문")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Applied {
		t.Fatal("expected Applied=false for web fallback")
	}
	if !web.called {
		t.Fatal("expected web fallback to be invoked")
	}
	if result.Context != web.reply {
		t.Fatalf("unexpected context: %q", result.Context)
	}
}

func TestRetrieveThresholdBoundary(t *testing.T) {
	store := &fakeStore{results: []vector.SearchResult{
		candidate("a", 0.1),
		candidate("b", 0.5),
		candidate("c", 0.9),
	}}
	web := &fakeWeb{reply: "web"}
	r := New(&fakeEmbedder{}, store, web, Config{TopK: 20, Threshold: 0.51})
	result, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Applied {
		t.Fatal("expected top document to survive")
	}
	if strings.Contains(result.Context, "b.pdf") {
		t.Fatalf("similarity 0.5 must not pass threshold 0.51: %q", result.Context)
	}
}

func TestRetrieveStableOrderOnTies(t *testing.T) {
	store := &fakeStore{results: []vector.SearchResult{
		candidate("first", 0.3),
		candidate("second", 0.3),
		candidate("third", 0.3),
	}}
	r := New(&fakeEmbedder{}, store, &fakeWeb{}, Config{TopK: 2, Threshold: 0.5})
	result, err := r.Retrieve(context.Background(), "q")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	firstIdx := strings.Index(result.Context, "first.pdf")
	secondIdx := strings.Index(result.Context, "second.pdf")
	if firstIdx < 0 || secondIdx < 0 || firstIdx > secondIdx {
		t.Fatalf("tie order not preserved: %q", result.Context)
	}
	if strings.Contains(result.Context, "third.pdf") {
		t.Fatalf("topK=2 must cut the third tie: %q", result.Context)
	}
}

func TestRetrieveEmbedderFailure(t *testing.T) {
	r := New(&fakeEmbedder{err: errors.New("embed down")}, &fakeStore{}, &fakeWeb{}, DefaultConfig())
	if _, err := r.Retrieve(context.Background(), "q"); err == nil {
		t.Fatal("expected error from embedder failure")
	}
}
