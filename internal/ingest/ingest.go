// File path: internal/ingest/ingest.go
package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"

	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/common/telemetry"
	"github.com/agrisense/farmchat/internal/dataset"
	"github.com/agrisense/farmchat/internal/llm"
	"github.com/agrisense/farmchat/internal/vector"
)

// Kind tells which collection a file landed in.
type Kind string

const (
	KindData     Kind = "data"
	KindDocument Kind = "document"
)

const (
	chunkSize    = 1000
	chunkOverlap = 100
	embedBatch   = 64
)

type Result struct {
	Hash   string
	Kind   Kind
	Chunks int
}

// Ingestor turns uploaded files into embedded chunks. Structured files (CSV,
// JSON) become one serialized row per chunk in the sensor collection and feed
// the column registry; everything else is split into overlapping text chunks
// for the document collection.
type Ingestor struct {
	provider llm.Provider
	store    vector.Store
	registry *dataset.ColumnRegistry
	splitter textsplitter.TextSplitter
}

func New(provider llm.Provider, store vector.Store, registry *dataset.ColumnRegistry) *Ingestor {
	return &Ingestor{
		provider: provider,
		store:    store,
		registry: registry,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}
}

// HashBytes is the content identity used for upload deduplication and for
// deleting a file's chunks from the vector store.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (i *Ingestor) Ingest(ctx context.Context, filename string, data []byte) (Result, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Result{}, fmt.Errorf("file %q is empty", filename)
	}
	hash := HashBytes(data)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, columns, err := rowsFromCSV(data)
		if err != nil {
			return Result{}, fmt.Errorf("parse csv %q: %w", filename, err)
		}
		return i.storeRows(ctx, filename, hash, rows, columns)
	case ".json":
		rows, columns, err := rowsFromJSON(data)
		if err != nil {
			return Result{}, fmt.Errorf("parse json %q: %w", filename, err)
		}
		return i.storeRows(ctx, filename, hash, rows, columns)
	default:
		chunks, err := i.splitter.SplitText(string(data))
		if err != nil {
			return Result{}, fmt.Errorf("split %q: %w", filename, err)
		}
		stored, err := i.storeChunks(ctx, i.store.DocumentCollection(), filename, hash, chunks, "chunk")
		if err != nil {
			return Result{}, err
		}
		return Result{Hash: hash, Kind: KindDocument, Chunks: stored}, nil
	}
}

func (i *Ingestor) storeRows(ctx context.Context, filename, hash string, rows []string, columns []string) (Result, error) {
	i.registry.Add(columns...)
	stored, err := i.storeChunks(ctx, i.store.DataCollection(), filename, hash, rows, "row")
	if err != nil {
		return Result{}, err
	}
	return Result{Hash: hash, Kind: KindData, Chunks: stored}, nil
}

// storeChunks embeds and upserts chunks in batches. A failed batch is logged
// and skipped; the ingest only fails when nothing at all could be stored.
func (i *Ingestor) storeChunks(ctx context.Context, collection, filename, hash string, chunks []string, indexKey string) (int, error) {
	logger := common.Logger()
	stored := 0
	for start := 0; start < len(chunks); start += embedBatch {
		end := start + embedBatch
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		vectors, err := i.provider.Embed(ctx, batch)
		if err != nil || len(vectors) != len(batch) {
			logger.Warn("ingest: embedding batch failed, skipping",
				"file", filename, "offset", start, "size", len(batch), "error", err)
			continue
		}
		docs := make([]vector.Doc, 0, len(batch))
		for j, text := range batch {
			docs = append(docs, vector.Doc{
				ID:   uuid.NewString(),
				Text: text,
				Metadata: map[string]interface{}{
					"filename": filename,
					"hash":     hash,
					indexKey:   start + j,
				},
				Embedding: vectors[j],
			})
		}
		if err := i.store.Upsert(ctx, collection, docs); err != nil {
			logger.Warn("ingest: upsert batch failed, skipping",
				"file", filename, "offset", start, "error", err)
			continue
		}
		stored += len(docs)
		telemetry.RecordIngestBatch(len(docs))
	}
	if stored == 0 {
		return 0, fmt.Errorf("no chunks stored for %q", filename)
	}
	logger.Info("ingest: file stored", "file", filename, "collection", collection, "chunks", stored)
	return stored, nil
}

// rowsFromCSV serializes each data row as "col: val, col: val" in header
// order, the text form the structured filter parses back.
func rowsFromCSV(data []byte) ([]string, []string, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) < 2 {
		return nil, nil, fmt.Errorf("need a header row and at least one data row")
	}
	header := make([]string, len(records[0]))
	for i, column := range records[0] {
		header[i] = strings.TrimSpace(column)
	}
	rows := make([]string, 0, len(records)-1)
	for _, record := range records[1:] {
		parts := make([]string, 0, len(record))
		for i, value := range record {
			if i >= len(header) || header[i] == "" {
				continue
			}
			parts = append(parts, header[i]+": "+strings.TrimSpace(value))
		}
		if len(parts) > 0 {
			rows = append(rows, strings.Join(parts, ", "))
		}
	}
	return rows, header, nil
}

// rowsFromJSON accepts an array of flat objects or a single object.
func rowsFromJSON(data []byte) ([]string, []string, error) {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var raw interface{}
	if err := decoder.Decode(&raw); err != nil {
		return nil, nil, err
	}
	var objects []map[string]interface{}
	switch typed := raw.(type) {
	case []interface{}:
		for _, item := range typed {
			object, ok := item.(map[string]interface{})
			if !ok {
				return nil, nil, fmt.Errorf("array elements must be objects")
			}
			objects = append(objects, object)
		}
	case map[string]interface{}:
		objects = append(objects, typed)
	default:
		return nil, nil, fmt.Errorf("expected an object or an array of objects")
	}
	columnSet := make(map[string]struct{})
	rows := make([]string, 0, len(objects))
	for _, object := range objects {
		record := make(dataset.Record, len(object))
		for key, value := range object {
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			record[key] = formatValue(value)
			columnSet[key] = struct{}{}
		}
		if len(record) > 0 {
			rows = append(rows, record.Serialize())
		}
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("no usable rows")
	}
	columns := make([]string, 0, len(columnSet))
	for column := range columnSet {
		columns = append(columns, column)
	}
	return rows, columns, nil
}

func formatValue(value interface{}) string {
	switch typed := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(typed)
	case json.Number:
		return typed.String()
	case bool:
		return strconv.FormatBool(typed)
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return fmt.Sprintf("%v", typed)
		}
		return string(encoded)
	}
}
