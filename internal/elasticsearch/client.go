// Package elasticsearch indexes change events so the history of detected
// agenda changes can be searched.
package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/mfenderov/agenda-watch/pkg/models"
)

// Config holds Elasticsearch client configuration.
type Config struct {
	Addresses []string
	Index     string
	Username  string
	Password  string
}

// Client stores and queries change events.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New creates a new Elasticsearch client.
func New(config Config) (*Client, error) {
	if config.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: config.Addresses,
		Username:  config.Username,
		Password:  config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ES client: %w", err)
	}

	return &Client{es: es, index: config.Index}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) bool {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return false
	}
	defer res.Body.Close()
	return !res.IsError()
}

var indexMapping = `{
	"mappings": {
		"properties": {
			"event_id": { "type": "keyword" },
			"change_type": { "type": "keyword" },
			"item_id": { "type": "keyword" },
			"source_id": { "type": "keyword" },
			"title": { "type": "text", "analyzer": "english" },
			"meeting_datetime": { "type": "keyword" },
			"source_url": { "type": "keyword" },
			"detected_at": { "type": "date" },
			"attachment": {
				"properties": {
					"url": { "type": "keyword" },
					"sha256": { "type": "keyword" }
				}
			},
			"facts": {
				"properties": {
					"committee": { "type": "text" },
					"location": { "type": "text" },
					"items": { "type": "text", "analyzer": "english" }
				}
			},
			"summary": {
				"properties": {
					"added_lines": { "type": "text", "analyzer": "english" },
					"removed_lines": { "type": "text", "analyzer": "english" },
					"percent_changed": { "type": "float" }
				}
			}
		}
	}
}`

// CreateIndex creates the index with its mapping. Existing indices are left
// untouched.
func (c *Client) CreateIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check index: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	res, err = c.es.Indices.Create(
		c.index,
		c.es.Indices.Create.WithContext(ctx),
		c.es.Indices.Create.WithBody(bytes.NewReader([]byte(indexMapping))),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error creating index: %s", res.String())
	}
	return nil
}

// DeleteIndex removes the index (for testing/cleanup).
func (c *Client) DeleteIndex(ctx context.Context) error {
	res, err := c.es.Indices.Delete([]string{c.index}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// IndexEvent stores one event under its EventID, so re-publishing the same
// change overwrites rather than duplicates.
func (c *Client) IndexEvent(ctx context.Context, ev models.ChangeEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	res, err := c.es.Index(
		c.index,
		bytes.NewReader(data),
		c.es.Index.WithContext(ctx),
		c.es.Index.WithDocumentID(ev.EventID),
	)
	if err != nil {
		return fmt.Errorf("failed to index event: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing event %s (status %d): %s", ev.EventID, res.StatusCode, res.String())
	}
	return nil
}

// Publish indexes a batch of events and refreshes the index. It satisfies
// events.Sink.
func (c *Client) Publish(ctx context.Context, events []models.ChangeEvent) error {
	for _, ev := range events {
		if err := c.IndexEvent(ctx, ev); err != nil {
			return err
		}
	}
	return c.Refresh(ctx)
}

// Refresh makes indexed events searchable immediately.
func (c *Client) Refresh(ctx context.Context) error {
	res, err := c.es.Indices.Refresh(
		c.es.Indices.Refresh.WithContext(ctx),
		c.es.Indices.Refresh.WithIndex(c.index),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	return nil
}

// Filter narrows a search to exact field values. Empty fields match all.
type Filter struct {
	SourceID   string
	ChangeType models.ChangeType
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source models.ChangeEvent `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// buildQuery returns the search body: full-text match over titles, agenda
// items and diff lines, exact filters, newest first.
func buildQuery(query string, filter Filter, limit int) map[string]interface{} {
	boolQuery := map[string]interface{}{}
	if query != "" {
		boolQuery["must"] = map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "facts.items", "summary.added_lines", "summary.removed_lines", "facts.committee"},
			},
		}
	}

	var filters []map[string]interface{}
	if filter.SourceID != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"source_id": filter.SourceID}})
	}
	if filter.ChangeType != "" {
		filters = append(filters, map[string]interface{}{"term": map[string]interface{}{"change_type": string(filter.ChangeType)}})
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
		"size":  limit,
	}
	if query == "" {
		body["sort"] = []map[string]interface{}{{"detected_at": map[string]interface{}{"order": "desc"}}}
	}
	return body
}

// Search returns events matching query and filter. An empty query lists the
// most recent events.
func (c *Client) Search(ctx context.Context, query string, filter Filter, limit int) ([]models.ChangeEvent, error) {
	if limit <= 0 {
		limit = 10
	}
	data, err := json.Marshal(buildQuery(query, filter, limit))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(data)),
	)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search error: %s", res.String())
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := make([]models.ChangeEvent, len(sr.Hits.Hits))
	for i, hit := range sr.Hits.Hits {
		out[i] = hit.Source
	}
	return out, nil
}

type getResponse struct {
	Found  bool               `json:"found"`
	Source models.ChangeEvent `json:"_source"`
}

// GetEvent retrieves an event by ID. It returns nil, nil when the event does
// not exist.
func (c *Client) GetEvent(ctx context.Context, id string) (*models.ChangeEvent, error) {
	res, err := c.es.Get(c.index, id, c.es.Get.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == 404 {
		return nil, nil
	}
	if res.IsError() {
		return nil, fmt.Errorf("get error: %s", res.String())
	}

	var gr getResponse
	if err := json.NewDecoder(res.Body).Decode(&gr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if !gr.Found {
		return nil, nil
	}
	return &gr.Source, nil
}
