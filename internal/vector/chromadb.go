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
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/nicodishanthj/knowbase/internal/catalog"
	"github.com/nicodishanthj/knowbase/internal/common"
)

// Client pushes document chunks into a chromadb server, keeping one
// collection per knowledge base so scoped deletion maps onto collection
// operations. Index failures degrade the client to unavailable rather than
// failing ingestion; the relational catalog stays authoritative.
type Client struct {
	httpClient *http.Client
	transport  *http.Transport

	baseURL string
	prefix  string
	apiKey  string

	cfg Config

	mu          sync.RWMutex
	available   bool
	collections map[string]string
}

func NewFromEnv(ctx context.Context) (*Client, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

// New constructs a client using the provided configuration. An unreachable
// server is not an error; the client simply reports unavailable.
func New(ctx context.Context, cfg Config) (*Client, error) {
	baseURL := fmt.Sprintf("%s://%s:%s/api/v1", cfg.Scheme, cfg.Host, cfg.Port)
	logger := common.Logger()
	logger.Info(
		"vector: initializing chromadb client",
		"host", cfg.Host,
		"port", cfg.Port,
		"collection_prefix", cfg.CollectionPrefix,
		"timeout", cfg.Timeout,
	)

	transport := &http.Transport{
		MaxIdleConns:        cfg.HTTPMaxIdleConns,
		MaxIdleConnsPerHost: cfg.HTTPMaxIdlePerHost,
		MaxConnsPerHost:     cfg.HTTPMaxConnsPerHost,
		IdleConnTimeout:     cfg.HTTPIdleConnTimeout,
	}

	client := &Client{
		httpClient:  &http.Client{Timeout: cfg.Timeout, Transport: transport},
		transport:   transport,
		baseURL:     strings.TrimRight(baseURL, "/"),
		prefix:      cfg.CollectionPrefix,
		apiKey:      cfg.APIKey,
		cfg:         cfg,
		collections: make(map[string]string),
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
			c.setAvailable(false)
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 250 * time.Millisecond):
		}
	}
	if err != nil {
		c.setAvailable(false)
		return err
	}
	c.setAvailable(true)
	return nil
}

func (c *Client) setAvailable(value bool) {
	c.mu.Lock()
	c.available = value
	c.mu.Unlock()
}

var collectionNamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// CollectionName maps a knowledge base onto a chromadb collection name.
// Chroma restricts names to 3-63 word characters, so everything else is
// replaced and the prefix guarantees the minimum length.
func (c *Client) CollectionName(knowledgeBase string) string {
	sanitized := collectionNamePattern.ReplaceAllString(strings.TrimSpace(knowledgeBase), "_")
	sanitized = strings.Trim(sanitized, "._-")
	if sanitized == "" {
		sanitized = "default"
	}
	name := c.prefix + "_" + sanitized
	if len(name) > 63 {
		name = name[:63]
	}
	return name
}

// AddChunks upserts one chunking run into the knowledge base's collection and
// returns the chunk ids it indexed. Embeddings are computed server side.
func (c *Client) AddChunks(ctx context.Context, knowledgeBase string, chunks []catalog.Chunk) ([]string, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	collectionID, err := c.collectionID(ctx, knowledgeBase, true)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(chunks))
	documents := make([]string, 0, len(chunks))
	metadatas := make([]map[string]interface{}, 0, len(chunks))
	for _, chunk := range chunks {
		ids = append(ids, chunk.ID)
		documents = append(documents, chunk.Content)
		metadatas = append(metadatas, metadataFromChunk(chunk))
	}
	payload := map[string]interface{}{
		"ids":       ids,
		"documents": documents,
		"metadatas": metadatas,
	}
	endpoint := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, url.PathEscape(collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			fallback := fmt.Sprintf("%s/collections/%s/add", c.baseURL, url.PathEscape(collectionID))
			if fallbackErr := c.doRequest(ctx, http.MethodPost, fallback, payload, nil); fallbackErr != nil {
				return nil, fallbackErr
			}
			return ids, nil
		}
		return nil, err
	}
	return ids, nil
}

func metadataFromChunk(chunk catalog.Chunk) map[string]interface{} {
	metadata := make(map[string]interface{}, len(chunk.Metadata)+3)
	for key, value := range chunk.Metadata {
		metadata[key] = value
	}
	metadata["filename"] = chunk.Filename
	metadata["chunk_index"] = chunk.Index
	metadata["knowledge_base"] = chunk.KnowledgeBase
	return metadata
}

// DeleteByFilename removes every indexed chunk whose source document carries
// the filename.
func (c *Client) DeleteByFilename(ctx context.Context, knowledgeBase, filename string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	collectionID, err := c.collectionID(ctx, knowledgeBase, false)
	if err != nil {
		return err
	}
	if collectionID == "" {
		// No collection means nothing was ever indexed for this knowledge base.
		return nil
	}
	payload := map[string]interface{}{
		"where": map[string]interface{}{"filename": filename},
	}
	endpoint := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, url.PathEscape(collectionID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, payload, nil); err != nil {
		if errors.Is(err, errNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// DeleteKnowledgeBase drops the knowledge base's entire collection.
func (c *Client) DeleteKnowledgeBase(ctx context.Context, knowledgeBase string) error {
	if err := c.ensureReady(ctx); err != nil {
		return err
	}
	name := c.CollectionName(knowledgeBase)
	endpoint := fmt.Sprintf("%s/collections/%s", c.baseURL, url.PathEscape(name))
	if err := c.doRequest(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		if errors.Is(err, errNotFound) {
			return nil
		}
		return err
	}
	c.mu.Lock()
	delete(c.collections, knowledgeBase)
	c.mu.Unlock()
	return nil
}

var _ catalog.ChunkIndex = (*Client)(nil)

func (c *Client) collectionID(ctx context.Context, knowledgeBase string, create bool) (string, error) {
	c.mu.RLock()
	cached := c.collections[knowledgeBase]
	c.mu.RUnlock()
	if cached != "" {
		return cached, nil
	}
	name := c.CollectionName(knowledgeBase)
	id, err := c.findCollection(ctx, name)
	if err != nil {
		return "", err
	}
	if id == "" && create {
		id, err = c.createCollection(ctx, name)
		if err != nil {
			return "", err
		}
	}
	if id != "" {
		c.mu.Lock()
		c.collections[knowledgeBase] = id
		c.mu.Unlock()
	}
	return id, nil
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

var (
	errNotFound = errors.New("resource not found")
	errConflict = errors.New("resource conflict")
)

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
	decoder := json.NewDecoder(resp.Body)
	return decoder.Decode(out)
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
