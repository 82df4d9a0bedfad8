// Package search is the search-index adapter. It talks to an
// Elasticsearch-compatible server over its REST API.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/satishbabariya/cauldron/internal/debug"
)

// Config holds search server connection parameters.
type Config struct {
	Host   string
	Port   int
	Scheme string
	// Timeout bounds connection setup and each request.
	Timeout   time.Duration
	KeepAlive time.Duration
}

// DefaultConfig returns the defaults applied to zero-valued fields.
func DefaultConfig() Config {
	return Config{
		Host:      "localhost",
		Port:      9200,
		Scheme:    "http",
		Timeout:   15 * time.Second,
		KeepAlive: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = def.KeepAlive
	}
	return c
}

// BaseURL returns scheme://host:port.
func (c Config) BaseURL() string {
	c = c.withDefaults()
	return c.Scheme + "://" + net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// ResponseError is returned when the server answers with an unexpected status.
type ResponseError struct {
	Status int
	Body   string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("search: unexpected status %d: %s", e.Status, e.Body)
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	var re *ResponseError
	return errors.As(err, &re) && re.Status == http.StatusNotFound
}

// Document is a decoded JSON response body.
type Document = map[string]any

// Client is a search server client. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for cfg.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	dialer := &net.Dialer{Timeout: cfg.Timeout, KeepAlive: cfg.KeepAlive}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		IdleConnTimeout:     cfg.KeepAlive,
		MaxIdleConnsPerHost: 10,
	}
	return NewWithHTTPClient(cfg.BaseURL(), &http.Client{Transport: transport, Timeout: cfg.Timeout})
}

// NewWithHTTPClient returns a client that sends requests to baseURL with hc.
func NewWithHTTPClient(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// docPath joins index, optional doc type and optional id.
func docPath(index, docType, id string) string {
	parts := []string{url.PathEscape(index)}
	if docType != "" {
		parts = append(parts, url.PathEscape(docType))
	}
	if id != "" {
		parts = append(parts, url.PathEscape(id))
	}
	return strings.Join(parts, "/")
}

// typeOrDefault returns docType, or the typeless "_doc" endpoint when empty.
func typeOrDefault(docType string) string {
	if docType == "" {
		return "_doc"
	}
	return docType
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build request: %w", err)
	}
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("search %s /%s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read response: %w", err)
	}
	debug.Debug("Search request", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, data, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, payload any) (*http.Response, Document, error) {
	var body io.Reader
	if payload != nil {
		var data []byte
		switch p := payload.(type) {
		case []byte:
			data = p
		case json.RawMessage:
			data = p
		case string:
			data = []byte(p)
		default:
			var err error
			if data, err = json.Marshal(payload); err != nil {
				return nil, nil, fmt.Errorf("failed to encode request: %w", err)
			}
		}
		body = bytes.NewReader(data)
	}

	resp, data, err := c.do(ctx, method, path, "", body)
	if err != nil {
		return nil, nil, err
	}
	doc, err := decode(data)
	if err != nil {
		return resp, nil, &ResponseError{Status: resp.StatusCode, Body: string(data)}
	}
	return resp, doc, nil
}

func decode(data []byte) (Document, error) {
	var doc Document
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func ok(status int) bool {
	return status >= 200 && status < 300
}

// IndexExists reports whether index exists.
func (c *Client) IndexExists(ctx context.Context, index string) (bool, error) {
	resp, data, err := c.do(ctx, http.MethodHead, docPath(index, "", ""), "", nil)
	if err != nil {
		return false, err
	}
	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, &ResponseError{Status: resp.StatusCode, Body: string(data)}
	}
}

// CreateIndex creates index with the given settings and mappings. Legacy
// mapping syntax in body is translated first.
func (c *Client) CreateIndex(ctx context.Context, index string, body map[string]any) (Document, error) {
	var payload any
	if body != nil {
		payload = TranslateLegacyMapping(body)
	}
	resp, doc, err := c.doJSON(ctx, http.MethodPut, docPath(index, "", ""), payload)
	if err != nil {
		return nil, err
	}
	if !ok(resp.StatusCode) {
		return doc, responseError(resp.StatusCode, doc)
	}
	return doc, nil
}

// DeleteIndex deletes index. A status listed in ignore is reported as
// acknowledged.
func (c *Client) DeleteIndex(ctx context.Context, index string, ignore ...int) (Document, error) {
	return c.delete(ctx, docPath(index, "", ""), ignore)
}

func (c *Client) delete(ctx context.Context, path string, ignore []int) (Document, error) {
	resp, doc, err := c.doJSON(ctx, http.MethodDelete, path, nil)
	if err != nil {
		var re *ResponseError
		if errors.As(err, &re) && slices.Contains(ignore, re.Status) {
			return Document{"acknowledged": true}, nil
		}
		return nil, err
	}
	switch {
	case ok(resp.StatusCode):
		return doc, nil
	case slices.Contains(ignore, resp.StatusCode):
		return Document{"acknowledged": true}, nil
	default:
		return doc, responseError(resp.StatusCode, doc)
	}
}

// Index stores a new document. An empty id lets the server assign one; an
// existing id is a conflict. With refresh set the index is refreshed before
// returning so the document is immediately searchable.
func (c *Client) Index(ctx context.Context, index, docType, id string, body any, refresh bool) (Document, error) {
	path := docPath(index, typeOrDefault(docType), id)
	resp, doc, err := c.doJSON(ctx, http.MethodPost, path+"?op_type=create", body)
	if err != nil {
		return nil, err
	}
	if !ok(resp.StatusCode) {
		return doc, responseError(resp.StatusCode, doc)
	}
	if refresh {
		c.refreshQuietly(ctx, index)
	}
	return doc, nil
}

// Get fetches a document. A missing document is not an error; the returned
// body has "found": false.
func (c *Client) Get(ctx context.Context, index, docType, id string) (Document, error) {
	resp, doc, err := c.doJSON(ctx, http.MethodGet, docPath(index, typeOrDefault(docType), id), nil)
	if err != nil {
		return nil, err
	}
	if !ok(resp.StatusCode) && resp.StatusCode != http.StatusNotFound {
		return doc, responseError(resp.StatusCode, doc)
	}
	return doc, nil
}

// MGet fetches several documents in one request.
func (c *Client) MGet(ctx context.Context, index, docType string, body any) (Document, error) {
	resp, doc, err := c.doJSON(ctx, http.MethodPost, docPath(index, docType, "")+"/_mget", body)
	if err != nil {
		return nil, err
	}
	if !ok(resp.StatusCode) {
		return doc, responseError(resp.StatusCode, doc)
	}
	return doc, nil
}

// Exists reports whether a document exists.
func (c *Client) Exists(ctx context.Context, index, docType, id string) (bool, error) {
	doc, err := c.Get(ctx, index, docType, id)
	if err != nil {
		return false, err
	}
	found, _ := doc["found"].(bool)
	return found, nil
}

// Search runs a query against index.
func (c *Client) Search(ctx context.Context, index, docType string, body any) (Document, error) {
	resp, doc, err := c.doJSON(ctx, http.MethodPost, docPath(index, docType, "")+"/_search", body)
	if err != nil {
		return nil, err
	}
	if !ok(resp.StatusCode) {
		return doc, responseError(resp.StatusCode, doc)
	}
	return doc, nil
}

// Bulk sends action/source line pairs as NDJSON. When the server rejects the
// request with an unreadable body, the result reports every pair as failed.
func (c *Client) Bulk(ctx context.Context, index string, lines []any, refresh bool) (Document, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, line := range lines {
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("failed to encode bulk line: %w", err)
		}
	}

	resp, data, err := c.do(ctx, http.MethodPost, "_bulk", "application/x-ndjson", &buf)
	if err != nil {
		return nil, err
	}
	doc, decErr := decode(data)
	if resp.StatusCode != http.StatusOK {
		if decErr != nil {
			return Document{"errors": len(lines) / 2}, nil
		}
		return doc, nil
	}
	if decErr != nil {
		return nil, &ResponseError{Status: resp.StatusCode, Body: string(data)}
	}
	if refresh && index != "" {
		c.refreshQuietly(ctx, index)
	}
	return doc, nil
}

// Delete removes a document and refreshes its index. A status listed in
// ignore is reported as acknowledged.
func (c *Client) Delete(ctx context.Context, index, docType, id string, ignore ...int) (Document, error) {
	doc, err := c.delete(ctx, docPath(index, typeOrDefault(docType), id), ignore)
	if err != nil {
		return doc, err
	}
	c.refreshQuietly(ctx, index)
	return doc, nil
}

// Refresh makes recent changes to index searchable.
func (c *Client) Refresh(ctx context.Context, index string) error {
	path := "_refresh"
	if index != "" {
		path = docPath(index, "", "") + "/_refresh"
	}
	resp, data, err := c.do(ctx, http.MethodPost, path, "", nil)
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		return &ResponseError{Status: resp.StatusCode, Body: string(data)}
	}
	return nil
}

func (c *Client) refreshQuietly(ctx context.Context, index string) {
	if err := c.Refresh(ctx, index); err != nil {
		debug.Warn("Search refresh failed", "index", index, "error", err)
	}
}

// Ping checks the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	resp, data, err := c.do(ctx, http.MethodGet, "", "", nil)
	if err != nil {
		return err
	}
	if !ok(resp.StatusCode) {
		return &ResponseError{Status: resp.StatusCode, Body: string(data)}
	}
	return nil
}

func responseError(status int, doc Document) error {
	data, _ := json.Marshal(doc)
	return &ResponseError{Status: status, Body: string(data)}
}
