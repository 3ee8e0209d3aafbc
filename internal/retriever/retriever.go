// File path: internal/retriever/retriever.go
package retriever

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agrisense/farmchat/internal/common"
	"github.com/agrisense/farmchat/internal/common/telemetry"
	"github.com/agrisense/farmchat/internal/vector"
)

// Embedder is the minimal contract needed to turn a query into a vector.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// WebSearcher is the fallback invoked when no document clears the threshold.
type WebSearcher interface {
	Search(ctx context.Context, query string, numResults int) string
}

// overFetchFloor over-fetches the candidate set so that threshold
// filtering still has enough material after ranking.
const overFetchFloor = 50

type Config struct {
	TopK       int
	Threshold  float64
	WebResults int
}

func DefaultConfig() Config {
	return Config{TopK: 20, Threshold: 0.75, WebResults: 2}
}

// Result reports whether document retrieval applied. Applied=false means the
// context came from the web fallback and is not grounded in the document
// store; callers adjust the generation prompt accordingly.
type Result struct {
	Applied bool
	Context string
}

// ScoredDocument pairs a candidate with its normalized similarity.
type ScoredDocument struct {
	Candidate  vector.SearchResult
	Similarity float64
}

type Retriever struct {
	embedder Embedder
	store    vector.Store
	web      WebSearcher
	cfg      Config
}

func New(embedder Embedder, store vector.Store, web WebSearcher, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultConfig().TopK
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultConfig().Threshold
	}
	if cfg.WebResults <= 0 {
		cfg.WebResults = DefaultConfig().WebResults
	}
	return &Retriever{embedder: embedder, store: store, web: web, cfg: cfg}
}

// Retrieve runs the similarity pipeline: embed, over-fetch, normalize,
// rank, threshold. An empty surviving set escalates to the web fallback
// with Applied=false. Embedding or store errors are returned for the caller
// to absorb as an empty-context branch.
func (r *Retriever) Retrieve(ctx context.Context, query string) (Result, error) {
	logger := common.Logger()
	start := time.Now()
	vectors, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return Result{}, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return Result{}, fmt.Errorf("embedder returned no vector")
	}
	limit := overFetchFloor
	if doubled := r.cfg.TopK * 2; doubled > limit {
		limit = doubled
	}
	candidates, err := r.store.Query(ctx, r.store.DocumentCollection(), vectors[0], limit)
	if err != nil {
		return Result{}, fmt.Errorf("query vector store: %w", err)
	}
	if len(candidates) == 0 {
		logger.Info("retriever: empty index, escalating to web search", "query_length", len(query))
		telemetry.RecordRetrieval(false, time.Since(start))
		return r.webFallback(ctx, query), nil
	}
	scored := Normalize(candidates)
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Similarity > scored[j].Similarity
	})
	if len(scored) > r.cfg.TopK {
		scored = scored[:r.cfg.TopK]
	}
	kept := scored[:0:0]
	for _, doc := range scored {
		if doc.Similarity >= r.cfg.Threshold {
			kept = append(kept, doc)
		}
	}
	if len(kept) == 0 {
		logger.Info("retriever: no document above threshold, escalating to web search",
			"candidates", len(candidates), "threshold", r.cfg.Threshold)
		telemetry.RecordRetrieval(false, time.Since(start))
		return r.webFallback(ctx, query), nil
	}
	logger.Info("retriever: documents retrieved", "kept", len(kept), "top_similarity", kept[0].Similarity)
	telemetry.RecordRetrieval(true, time.Since(start))
	return Result{Applied: true, Context: formatContext(kept)}, nil
}

func (r *Retriever) webFallback(ctx context.Context, query string) Result {
	if r.web == nil {
		return Result{Applied: false, Context: ""}
	}
	return Result{Applied: false, Context: r.web.Search(ctx, query, r.cfg.WebResults)}
}

// Normalize converts raw distances to similarities in [0,1] with batch
// min-max scaling: sim = (max - dist) / (max - min). The scaling is a pure
// function of the batch, and a candidate sitting exactly on the batch
// midpoint scores exactly 0.5. A batch with a single distinct distance
// scores 1.0 throughout; those candidates are all equally the best match
// available.
func Normalize(candidates []vector.SearchResult) []ScoredDocument {
	if len(candidates) == 0 {
		return nil
	}
	minDist := candidates[0].Distance
	maxDist := candidates[0].Distance
	for _, candidate := range candidates[1:] {
		if candidate.Distance < minDist {
			minDist = candidate.Distance
		}
		if candidate.Distance > maxDist {
			maxDist = candidate.Distance
		}
	}
	scored := make([]ScoredDocument, 0, len(candidates))
	if maxDist == minDist {
		for _, candidate := range candidates {
			scored = append(scored, ScoredDocument{Candidate: candidate, Similarity: 1.0})
		}
		return scored
	}
	denom := maxDist - minDist
	for _, candidate := range candidates {
		scored = append(scored, ScoredDocument{
			Candidate:  candidate,
			Similarity: (maxDist - candidate.Distance) / denom,
		})
	}
	return scored
}

func formatContext(docs []ScoredDocument) string {
	sections := make([]string, 0, len(docs))
	for _, doc := range docs {
		filename := ""
		if doc.Candidate.Metadata != nil {
			if value, ok := doc.Candidate.Metadata["filename"].(string); ok {
				filename = value
			}
		}
		if filename == "" {
			filename = doc.Candidate.ID
		}
		sections = append(sections, fmt.Sprintf("[문서: %s]\n%s", filename, doc.Candidate.Document))
	}
	return strings.Join(sections, "\n\n")
}
