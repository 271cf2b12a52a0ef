package defra

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// Sentinel errors for the defra package.
var (
	// ErrUnhealthy is returned when DefraDB health check fails.
	ErrUnhealthy = errors.New("defra health check failed")

	// ErrSinkClosed is returned when operations are attempted on a closed sink.
	ErrSinkClosed = errors.New("sink closed")
)

const (
	defaultAttempts = 3
	defaultDelay    = 200 * time.Millisecond
)

// Client is a DefraDB HTTP/GraphQL client.
//
// Transport failures and 5xx responses are retried with backoff; GraphQL-level
// errors are returned to the caller untouched.
type Client struct {
	url        string
	httpClient *http.Client
	attempts   uint
	delay      time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetry sets how many times a request is attempted and the initial backoff.
// attempts of 1 disables retries.
func WithRetry(attempts uint, delay time.Duration) ClientOption {
	return func(c *Client) {
		if attempts == 0 {
			attempts = 1
		}
		c.attempts = attempts
		c.delay = delay
	}
}

// NewClient creates a new DefraDB client.
func NewClient(url string, opts ...ClientOption) *Client {
	c := &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		attempts: defaultAttempts,
		delay:    defaultDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// URL returns the base URL the client talks to.
func (c *Client) URL() string {
	return c.url
}

// GQLRequest represents a GraphQL request.
type GQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// GQLResponse represents a GraphQL response.
type GQLResponse struct {
	Data   map[string]any `json:"data,omitempty"`
	Errors []GQLError     `json:"errors,omitempty"`
}

// GQLError represents a GraphQL error.
type GQLError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// Error returns the first error message or empty string.
func (r *GQLResponse) Error() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Message
}

// Docs returns the documents listed under key, skipping non-object entries.
func (r *GQLResponse) Docs(key string) []map[string]any {
	raw, ok := r.Data[key].([]any)
	if !ok {
		return nil
	}
	docs := make([]map[string]any, 0, len(raw))
	for _, d := range raw {
		if doc, ok := d.(map[string]any); ok {
			docs = append(docs, doc)
		}
	}
	return docs
}

// transientError marks a failure worth retrying.
type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// do sends a request built by newReq, retrying transient failures.
// The body of a successful response is returned in full.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	err := retry.Do(
		func() error {
			req, err := newReq()
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("failed to create request: %w", err))
			}
			resp, err := c.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return &transientError{fmt.Errorf("request failed: %w", err)}
			}
			defer resp.Body.Close()

			b, err := io.ReadAll(resp.Body)
			if err != nil {
				return &transientError{fmt.Errorf("failed to read response: %w", err)}
			}
			if resp.StatusCode >= 500 {
				return &transientError{fmt.Errorf("defra server error (status %d): %s", resp.StatusCode, string(b))}
			}
			status, body = resp.StatusCode, b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(c.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(isTransient),
		retry.LastErrorOnly(true),
	)
	return status, body, err
}

// HealthCheck checks if DefraDB is healthy.
func (c *Client) HealthCheck(ctx context.Context) error {
	status, _, err := c.do(ctx, func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.url+"/health-check", nil)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnhealthy, err)
	}
	if status != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, status)
	}
	return nil
}

// Execute sends a GraphQL request and returns the response.
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*GQLResponse, error) {
	bodyBytes, err := json.Marshal(GQLRequest{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	status, respBody, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/graphql", bytes.NewReader(bodyBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	if len(respBody) == 0 {
		return nil, fmt.Errorf("defra returned empty response (status %d)", status)
	}

	var gqlResp GQLResponse
	if err := json.Unmarshal(respBody, &gqlResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, string(respBody))
	}

	return &gqlResp, nil
}

// AddSchema adds a GraphQL schema to DefraDB.
func (c *Client) AddSchema(ctx context.Context, schema string) error {
	status, body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/api/v0/schema", strings.NewReader(schema))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "text/plain")
		return req, nil
	})
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("schema error (status %d): %s", status, string(body))
	}
	return nil
}

// Create creates a document in a collection and returns its document ID.
func (c *Client) Create(ctx context.Context, collection string, input map[string]any) (string, error) {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return "", fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { create_%s(input: %s) { _docID } }`, collection, inputGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return "", err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return "", fmt.Errorf("create error: %s", errMsg)
	}

	docs := resp.Docs("create_" + collection)
	if len(docs) == 0 {
		return "", fmt.Errorf("unexpected response format: %+v", resp.Data)
	}
	docID, _ := docs[0]["_docID"].(string)
	if docID == "" {
		return "", fmt.Errorf("create returned no document ID")
	}
	return docID, nil
}

// Update updates a document in a collection.
func (c *Client) Update(ctx context.Context, collection string, docID string, input map[string]any) error {
	inputGQL, err := mapToGraphQLInput(input)
	if err != nil {
		return fmt.Errorf("failed to build input: %w", err)
	}
	query := fmt.Sprintf(`mutation { update_%s(docID: %q, input: %s) { _docID } }`, collection, docID, inputGQL)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return fmt.Errorf("update error: %s", errMsg)
	}
	return nil
}

// Delete deletes a document from a collection.
func (c *Client) Delete(ctx context.Context, collection string, docID string) error {
	query := fmt.Sprintf(`mutation { delete_%s(docID: %q) { _docID } }`, collection, docID)

	resp, err := c.Execute(ctx, query, nil)
	if err != nil {
		return err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return fmt.Errorf("delete error: %s", errMsg)
	}
	return nil
}

// mapToGraphQLInput converts a map to GraphQL input format.
// Keys are emitted in sorted order so identical inputs produce identical mutations.
func mapToGraphQLInput(input map[string]any) (string, error) {
	keys := make([]string, 0, len(input))
	for k := range input {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		valStr, err := valueToGraphQL(input[k])
		if err != nil {
			return "", fmt.Errorf("failed to convert value for key %q: %w", k, err)
		}
		parts = append(parts, fmt.Sprintf("%s: %s", k, valStr))
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}

// valueToGraphQL converts a Go value to GraphQL syntax.
func valueToGraphQL(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "null", nil
	case string:
		// JSON string escapes are a subset of what GraphQL accepts; Go's %q is not.
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal string: %w", err)
		}
		return string(b), nil
	case int:
		return fmt.Sprintf("%d", val), nil
	case int64:
		return fmt.Sprintf("%d", val), nil
	case float64:
		return fmt.Sprintf("%v", val), nil
	case bool:
		return fmt.Sprintf("%v", val), nil
	case map[string]any:
		return mapToGraphQLInput(val)
	case []string:
		items := make([]any, len(val))
		for i, s := range val {
			items[i] = s
		}
		return valueToGraphQL(items)
	case []any:
		items := make([]string, 0, len(val))
		for _, item := range val {
			itemStr, err := valueToGraphQL(item)
			if err != nil {
				return "", err
			}
			items = append(items, itemStr)
		}
		return "[" + strings.Join(items, ", ") + "]", nil
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return "", fmt.Errorf("failed to marshal value: %w", err)
		}
		return string(b), nil
	}
}
