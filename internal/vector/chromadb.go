// File path: internal/vector/chromadb.go
package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/agrisense/farmchat/internal/common"
)

// Store abstracts the embedding index. Collections are addressed by name;
// the deployment uses one for knowledge chunks and one for sensor rows.
type Store interface {
	Available() bool
	DocumentCollection() string
	DataCollection() string
	Upsert(ctx context.Context, collection string, docs []Doc) error
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error)
	GetAll(ctx context.Context, collection string) ([]StoredDoc, error)
	DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error
}

// Doc is a chunk handed to the store at ingestion time.
type Doc struct {
	ID        string
	Text      string
	Metadata  map[string]interface{}
	Embedding []float32
}

// SearchResult carries the raw distance returned by the store. Conversion to
// a similarity score is the retriever's concern.
type SearchResult struct {
	ID       string
	Distance float64
	Document string
	Metadata map[string]interface{}
}

type StoredDoc struct {
	ID       string
	Document string
	Metadata map[string]interface{}
}

type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL   string
	apiKey    string
	available bool

	cfg Config

	mu            sync.RWMutex
	collectionIDs map[string]string
	dimensions    map[string]int
}

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")

	// ErrDimensionMismatch indicates the query-time embedding model differs
	// from the one used at ingestion. That is a configuration error, not a
	// transient failure.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client using the provided configuration. An unreachable
// server is logged and left in the unavailable state rather than failing
// construction; retrieval paths degrade per request.
func New(ctx context.Context, cfg Config) (*Client, error) {
	baseURL := fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port)
	logger := common.Logger()
	logger.Info(
		"vector: initializing chromadb client",
		"host", cfg.Host,
		"port", cfg.Port,
		"documents", cfg.DocumentCollection,
		"data", cfg.DataCollection,
		"timeout", cfg.Timeout,
	)

	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}

	client := &Client{
		httpClient:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:     transport,
		baseURL:       strings.TrimRight(baseURL, "/"),
		apiKey:        cfg.APIKey,
		cfg:           cfg,
		collectionIDs: make(map[string]string),
		dimensions:    make(map[string]int),
	}

	if err := client.ensureReady(ctx); err != nil {
		logger.Warn("vector: chromadb initialization failed", "error", err)
		return client, nil
	}
	logger.Info("vector: chromadb connection established")
	return client, nil
}

func (c *Client) Available() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.available
}

func (c *Client) DocumentCollection() string {
	if c == nil {
		return ""
	}
	return c.cfg.DocumentCollection
}

func (c *Client) DataCollection() string {
	if c == nil {
		return ""
	}
	return c.cfg.DataCollection
}

func (c *Client) ensureReady(ctx context.Context) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	if c.Available() {
		return nil
	}
	const maxAttempts = 3
	var err error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = c.health(ctx)
		if err == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.available = true
	c.mu.Unlock()
	return nil
}

func (c *Client) collectionID(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", errors.New("collection name required")
	}
	c.mu.RLock()
	id := c.collectionIDs[name]
	c.mu.RUnlock()
	if id != "" {
		return id, nil
	}
	id, err := c.findCollection(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" {
		id, err = c.createCollection(ctx, name)
		if err != nil {
			return "", err
		}
	}
	if id == "" {
		return "", fmt.Errorf("collection %q could not be resolved", name)
	}
	c.mu.Lock()
	c.collectionIDs[name] = id
	c.mu.Unlock()
	return id, nil
}

func (c *Client) Upsert(ctx context.Context, collection string, docs []Doc) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	dim := 0
	for _, doc := range docs {
		if len(doc.Embedding) == 0 {
			continue
		}
		if dim == 0 {
			dim = len(doc.Embedding)
			continue
		}
		if len(doc.Embedding) != dim {
			return fmt.Errorf("%w: batch mixes %d and %d", ErrDimensionMismatch, dim, len(doc.Embedding))
		}
	}
	if dim > 0 {
		if err := c.checkDimension(collection, dim); err != nil {
			return err
		}
	}
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(docs))
	embeddings := make([][]float32, 0, len(docs))
	documents := make([]string, 0, len(docs))
	metadatas := make([]map[string]interface{}, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
		embeddings = append(embeddings, doc.Embedding)
		documents = append(documents, doc.Text)
		metadatas = append(metadatas, doc.Metadata)
	}
	payload := map[string]interface{}{
		"ids":        ids,
		"documents":  documents,
		"metadatas":  metadatas,
		"embeddings": embeddings,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(id))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			// Older servers only expose add.
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(id))
			return c.doRequest(ctx, http.MethodPost, fallback, payload, nil)
		}
		return err
	}
	return nil
}

func (c *Client) Query(ctx context.Context, collection string, vector []float32, limit int) ([]SearchResult, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, errors.New("query vector required")
	}
	if err := c.checkDimension(collection, len(vector)); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"query_embeddings": [][]float32{vector},
		"n_results":        limit,
		"include":          []string{"documents", "distances", "metadatas"},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/query", c.baseURL, url.PathEscape(id))
	var resp struct {
		IDs       [][]string                 `json:"ids"`
		Distances [][]float64                `json:"distances"`
		Metadatas [][]map[string]interface{} `json:"metadatas"`
		Documents [][]string                 `json:"documents"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	if len(resp.IDs) == 0 {
		return nil, nil
	}
	results := make([]SearchResult, 0, len(resp.IDs[0]))
	for idx, docID := range resp.IDs[0] {
		result := SearchResult{ID: docID}
		if len(resp.Distances) > 0 && idx < len(resp.Distances[0]) {
			result.Distance = resp.Distances[0][idx]
		}
		if len(resp.Documents) > 0 && idx < len(resp.Documents[0]) {
			result.Document = resp.Documents[0][idx]
		}
		if len(resp.Metadatas) > 0 && idx < len(resp.Metadatas[0]) {
			result.Metadata = resp.Metadatas[0][idx]
		}
		results = append(results, result)
	}
	return results, nil
}

func (c *Client) GetAll(ctx context.Context, collection string) ([]StoredDoc, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}
	body := map[string]interface{}{
		"include": []string{"documents", "metadatas"},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/get", c.baseURL, url.PathEscape(id))
	var resp struct {
		IDs       []string                 `json:"ids"`
		Documents []string                 `json:"documents"`
		Metadatas []map[string]interface{} `json:"metadatas"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &resp); err != nil {
		return nil, err
	}
	docs := make([]StoredDoc, 0, len(resp.IDs))
	for idx, docID := range resp.IDs {
		doc := StoredDoc{ID: docID}
		if idx < len(resp.Documents) {
			doc.Document = resp.Documents[idx]
		}
		if idx < len(resp.Metadatas) {
			doc.Metadata = resp.Metadatas[idx]
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (c *Client) DeleteWhere(ctx context.Context, collection string, where map[string]interface{}) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	if len(where) == 0 {
		return errors.New("delete filter required")
	}
	id, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}
	endpoint := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, url.PathEscape(id))
	return c.doRequest(ctx, http.MethodPost, endpoint, map[string]interface{}{"where": where}, nil)
}

// checkDimension remembers the first embedding width seen per collection and
// rejects later vectors of a different width.
func (c *Client) checkDimension(collection string, dim int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	known, ok := c.dimensions[collection]
	if !ok {
		c.dimensions[collection] = dim
		return nil
	}
	if known != dim {
		return fmt.Errorf("%w: collection %q expects %d, got %d", ErrDimensionMismatch, collection, known, dim)
	}
	return nil
}

func (c *Client) findCollection(ctx context.Context, name string) (string, error) {
	endpoint := fmt.Sprintf("%s/collections?name=%s", c.baseURL, url.QueryEscape(name))
	var resp struct {
		Collections []struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"collections"`
	}
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		if errors.Is(err, errNotFound) {
			return "", nil
		}
		// Fallback to enumerating collections when the name filter is unsupported.
		endpoint = fmt.Sprintf("%s/collections", c.baseURL)
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return "", err
		}
	}
	for _, col := range resp.Collections {
		if strings.EqualFold(col.Name, name) {
			return col.ID, nil
		}
	}
	return "", nil
}

func (c *Client) createCollection(ctx context.Context, name string) (string, error) {
	payload := map[string]interface{}{"name": name}
	endpoint := fmt.Sprintf("%s/collections", c.baseURL)
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, &resp); err != nil {
		if errors.Is(err, errConflict) {
			return c.findCollection(ctx, name)
		}
		return "", err
	}
	return resp.ID, nil
}

func (c *Client) health(ctx context.Context) error {
	endpoint := fmt.Sprintf("%s/heartbeat", c.baseURL)
	return c.doRequest(ctx, http.MethodGet, endpoint, nil, nil)
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}, out interface{}) error {
	if c == nil {
		return errors.New("chromadb client not configured")
	}
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bodyReader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.apiKey))
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode == http.StatusConflict {
		return errConflict
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chromadb %s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Close releases pooled resources associated with the client.
func (c *Client) Close() error {
	if c == nil {
		return nil
	}
	if c.transport != nil {
		c.transport.CloseIdleConnections()
	}
	return nil
}

var _ Store = (*Client)(nil)
