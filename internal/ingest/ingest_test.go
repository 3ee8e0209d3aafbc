// File path: internal/ingest/ingest_test.go
package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/agrisense/farmchat/internal/dataset"
	"github.com/agrisense/farmchat/internal/llm"
	"github.com/agrisense/farmchat/internal/vector"
)

type fakeProvider struct {
	embedErr error
}

func (f *fakeProvider) Chat(ctx context.Context, messages []llm.Message) (string, error) {
	return "", nil
}

func (f *fakeProvider) Embed(ctx context.Context, input []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	vectors := make([][]float32, len(input))
	for i := range input {
		vectors[i] = []float32{0.1, 0.2}
	}
	return vectors, nil
}

func (f *fakeProvider) Name() string { return "fake" }

type upsertCall struct {
	collection string
	docs       []vector.Doc
}

type fakeStore struct {
	upserts   []upsertCall
	upsertErr error
}

func (f *fakeStore) Available() bool            { return true }
func (f *fakeStore) DocumentCollection() string { return "documents" }
func (f *fakeStore) DataCollection() string     { return "data_files" }

func (f *fakeStore) Upsert(ctx context.Context, collection string, docs []vector.Doc) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{collection: collection, docs: docs})
	return nil
}

func (f *fakeStore) Query(ctx context.Context, collection string, vec []float32, limit int) ([]vector.SearchResult, error) {
	return nil, nil
}

func (f *fakeStore) GetAll(ctx context.Context, collection string) ([]vector.StoredDoc, error) {
	return nil, nil
}

func (f *fakeStore) DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error {
	return nil
}

func (f *fakeStore) allDocs() []vector.Doc {
	var docs []vector.Doc
	for _, call := range f.upserts {
		docs = append(docs, call.docs...)
	}
	return docs
}

func TestIngestCSV(t *testing.T) {
	store := &fakeStore{}
	registry := dataset.NewColumnRegistry()
	ing := New(&fakeProvider{}, store, registry)

	data := []byte("농가,온도,습도\n1,20,65\n2,21,70\n")
	result, err := ing.Ingest(context.Background(), "sensors.csv", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindData {
		t.Fatalf("expected data kind, got %q", result.Kind)
	}
	if result.Chunks != 2 {
		t.Fatalf("expected 2 rows, got %d", result.Chunks)
	}
	docs := store.allDocs()
	if docs[0].Text != "농가: 1, 온도: 20, 습도: 65" {
		t.Fatalf("unexpected row serialization: %q", docs[0].Text)
	}
	if store.upserts[0].collection != "data_files" {
		t.Fatalf("csv rows must land in the sensor collection, got %q", store.upserts[0].collection)
	}
	for _, column := range []string{"농가", "온도", "습도"} {
		found := false
		for _, got := range registry.Columns() {
			if got == column {
				found = true
			}
		}
		if !found {
			t.Fatalf("column %q not registered: %v", column, registry.Columns())
		}
	}
	if docs[0].Metadata["hash"] != result.Hash {
		t.Fatalf("chunk metadata missing content hash")
	}
}

func TestIngestJSONArray(t *testing.T) {
	store := &fakeStore{}
	ing := New(&fakeProvider{}, store, dataset.NewColumnRegistry())

	data := []byte(`[{"농가": "1", "온도": 20.5}, {"농가": "2", "온도": 21}]`)
	result, err := ing.Ingest(context.Background(), "sensors.json", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindData || result.Chunks != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	docs := store.allDocs()
	if docs[0].Text != "농가: 1, 온도: 20.5" {
		t.Fatalf("numbers must keep their source form: %q", docs[0].Text)
	}
	record, err := dataset.ParseRecord(docs[1].Text)
	if err != nil {
		t.Fatalf("stored row must parse back: %v", err)
	}
	if record["온도"] != "21" {
		t.Fatalf("unexpected parsed value: %q", record["온도"])
	}
}

func TestIngestTextDocument(t *testing.T) {
	store := &fakeStore{}
	ing := New(&fakeProvider{}, store, dataset.NewColumnRegistry())

	text := strings.Repeat("딸기 재배에는 적절한 온도 관리가 필요합니다. ", 100)
	result, err := ing.Ingest(context.Background(), "guide.txt", []byte(text))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Kind != KindDocument {
		t.Fatalf("expected document kind, got %q", result.Kind)
	}
	if result.Chunks < 2 {
		t.Fatalf("long text must split into multiple chunks, got %d", result.Chunks)
	}
	if store.upserts[0].collection != "documents" {
		t.Fatalf("text chunks must land in the document collection, got %q", store.upserts[0].collection)
	}
	for _, doc := range store.allDocs() {
		if doc.Metadata["filename"] != "guide.txt" {
			t.Fatalf("chunk missing filename metadata: %+v", doc.Metadata)
		}
	}
}

func TestIngestHashIsStable(t *testing.T) {
	data := []byte("same content")
	if HashBytes(data) != HashBytes([]byte("same content")) {
		t.Fatal("hash must be a pure function of content")
	}
	if HashBytes(data) == HashBytes([]byte("other content")) {
		t.Fatal("different content must hash differently")
	}
}

func TestIngestEmptyFile(t *testing.T) {
	ing := New(&fakeProvider{}, &fakeStore{}, dataset.NewColumnRegistry())
	if _, err := ing.Ingest(context.Background(), "empty.txt", []byte("   \n")); err == nil {
		t.Fatal("expected error for empty file")
	}
}

func TestIngestCSVWithoutDataRows(t *testing.T) {
	ing := New(&fakeProvider{}, &fakeStore{}, dataset.NewColumnRegistry())
	if _, err := ing.Ingest(context.Background(), "header.csv", []byte("농가,온도\n")); err == nil {
		t.Fatal("expected error for header-only csv")
	}
}

func TestIngestFailsWhenNothingStored(t *testing.T) {
	ing := New(&fakeProvider{embedErr: errors.New("embed down")}, &fakeStore{}, dataset.NewColumnRegistry())
	if _, err := ing.Ingest(context.Background(), "guide.txt", []byte("text body")); err == nil {
		t.Fatal("expected error when no chunk could be embedded")
	}
}
