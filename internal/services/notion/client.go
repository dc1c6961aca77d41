// Package notion maps Notion API resources onto the broker request pipeline.
// It does data shaping only; transport, authorization, and retry behavior all
// live in the pipeline.
package notion

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"golang.org/x/sync/errgroup"

	"github.com/agentgate/agentgate/internal/pipeline"
)

// Service is the broker route identifier for Notion.
const Service = "notion"

// pageLookupBatch caps how many page lookups run concurrently when resolving
// multiple page ids.
const pageLookupBatch = 4

// Client is a thin Notion resource mapper.
type Client struct {
	pipe *pipeline.Pipeline
}

// New wraps the pipeline in a Notion client.
func New(pipe *pipeline.Pipeline) *Client {
	return &Client{pipe: pipe}
}

// Result is one search hit.
type Result struct {
	ID     string
	Object string
	Title  string
	URL    string
}

// Search queries the workspace and returns flattened hits.
func (c *Client) Search(ctx context.Context, query string) ([]Result, error) {
	body := []byte(`{}`)
	body, _ = sjson.SetBytes(body, "query", query)
	body, _ = sjson.SetBytes(body, "page_size", 20)

	payload, err := c.pipe.Do(ctx, pipeline.Call{
		Service: Service,
		Method:  http.MethodPost,
		Path:    "/v1/search",
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	var results []Result
	for _, hit := range gjson.GetBytes(payload, "results").Array() {
		results = append(results, Result{
			ID:     hit.Get("id").String(),
			Object: hit.Get("object").String(),
			Title:  extractTitle(hit),
			URL:    hit.Get("url").String(),
		})
	}
	return results, nil
}

// Page is a flattened Notion page.
type Page struct {
	ID         string
	URL        string
	Properties map[string]string
}

// Page fetches one page and flattens its properties.
func (c *Client) Page(ctx context.Context, id string) (*Page, error) {
	payload, err := c.pipe.Do(ctx, pipeline.Call{
		Service: Service,
		Method:  http.MethodGet,
		Path:    "/v1/pages/" + id,
	})
	if err != nil {
		return nil, err
	}

	parsed := gjson.ParseBytes(payload)
	return &Page{
		ID:         parsed.Get("id").String(),
		URL:        parsed.Get("url").String(),
		Properties: flattenProperties(parsed.Get("properties")),
	}, nil
}

// Pages resolves multiple page ids with bounded parallelism. Results keep the
// input order; the first failure cancels the remaining lookups.
func (c *Client) Pages(ctx context.Context, ids []string) ([]*Page, error) {
	pages := make([]*Page, len(ids))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(pageLookupBatch)
	for i, id := range ids {
		i, id := i, id
		group.Go(func() error {
			page, err := c.Page(groupCtx, id)
			if err != nil {
				return fmt.Errorf("page %s: %w", id, err)
			}
			pages[i] = page
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return pages, nil
}

// extractTitle digs the display title out of a page or database object.
func extractTitle(obj gjson.Result) string {
	if title := plainText(obj.Get("title")); title != "" {
		return title
	}
	var title string
	obj.Get("properties").ForEach(func(_, prop gjson.Result) bool {
		if prop.Get("type").String() == "title" {
			title = plainText(prop.Get("title"))
			return false
		}
		return true
	})
	return title
}

// plainText concatenates the plain_text fields of a rich text array.
func plainText(richText gjson.Result) string {
	var parts []string
	for _, span := range richText.Array() {
		if text := span.Get("plain_text").String(); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "")
}

// flattenProperties reduces Notion property objects to display strings.
func flattenProperties(props gjson.Result) map[string]string {
	flattened := make(map[string]string)
	props.ForEach(func(name, prop gjson.Result) bool {
		flattened[name.String()] = flattenProperty(prop)
		return true
	})
	return flattened
}

func flattenProperty(prop gjson.Result) string {
	switch prop.Get("type").String() {
	case "title":
		return plainText(prop.Get("title"))
	case "rich_text":
		return plainText(prop.Get("rich_text"))
	case "number":
		return prop.Get("number").String()
	case "checkbox":
		return prop.Get("checkbox").String()
	case "select":
		return prop.Get("select.name").String()
	case "status":
		return prop.Get("status.name").String()
	case "multi_select":
		var names []string
		for _, option := range prop.Get("multi_select").Array() {
			names = append(names, option.Get("name").String())
		}
		return strings.Join(names, ", ")
	case "date":
		start := prop.Get("date.start").String()
		if end := prop.Get("date.end").String(); end != "" {
			return start + " to " + end
		}
		return start
	case "url":
		return prop.Get("url").String()
	case "email":
		return prop.Get("email").String()
	case "people":
		var names []string
		for _, person := range prop.Get("people").Array() {
			names = append(names, person.Get("name").String())
		}
		return strings.Join(names, ", ")
	default:
		return ""
	}
}
