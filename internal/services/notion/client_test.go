package notion

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/agentgate/agentgate/internal/broker"
	"github.com/agentgate/agentgate/internal/pipeline"
)

func testClient(serverURL string) *Client {
	return New(pipeline.New(broker.NewClient(serverURL, "as-test", ""), false, nil, nil))
}

func TestFlattenProperty(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		prop     string
		expected string
	}{
		{
			"title",
			`{"type": "title", "title": [{"plain_text": "Project "}, {"plain_text": "Plan"}]}`,
			"Project Plan",
		},
		{
			"rich text",
			`{"type": "rich_text", "rich_text": [{"plain_text": "notes"}]}`,
			"notes",
		},
		{
			"number",
			`{"type": "number", "number": 42}`,
			"42",
		},
		{
			"checkbox",
			`{"type": "checkbox", "checkbox": true}`,
			"true",
		},
		{
			"select",
			`{"type": "select", "select": {"name": "In Progress"}}`,
			"In Progress",
		},
		{
			"multi select",
			`{"type": "multi_select", "multi_select": [{"name": "a"}, {"name": "b"}]}`,
			"a, b",
		},
		{
			"date range",
			`{"type": "date", "date": {"start": "2026-01-01", "end": "2026-01-31"}}`,
			"2026-01-01 to 2026-01-31",
		},
		{
			"people",
			`{"type": "people", "people": [{"name": "Ada"}, {"name": "Lin"}]}`,
			"Ada, Lin",
		},
		{
			"unknown type",
			`{"type": "rollup", "rollup": {}}`,
			"",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := flattenProperty(gjson.Parse(tt.prop)); got != tt.expected {
				t.Errorf("flattenProperty() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()

	page := gjson.Parse(`{
		"object": "page",
		"properties": {
			"Status": {"type": "select", "select": {"name": "Done"}},
			"Name": {"type": "title", "title": [{"plain_text": "Roadmap"}]}
		}
	}`)
	if got := extractTitle(page); got != "Roadmap" {
		t.Errorf("extractTitle(page) = %q, want Roadmap", got)
	}

	database := gjson.Parse(`{"object": "database", "title": [{"plain_text": "Tasks"}]}`)
	if got := extractTitle(database); got != "Tasks" {
		t.Errorf("extractTitle(database) = %q, want Tasks", got)
	}
}

func TestSearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/proxy/notion/v1/search" {
			t.Errorf("path = %q", r.URL.Path)
		}
		fmt.Fprint(w, `{"results": [
			{"id": "p1", "object": "page", "url": "https://notion.so/p1",
			 "properties": {"Name": {"type": "title", "title": [{"plain_text": "First"}]}}},
			{"id": "d1", "object": "database", "title": [{"plain_text": "Tasks"}]}
		]}`)
	}))
	defer server.Close()

	results, err := testClient(server.URL).Search(context.Background(), "task")
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].Title != "First" || results[1].Title != "Tasks" {
		t.Errorf("titles = %q, %q", results[0].Title, results[1].Title)
	}
}

func TestPagesKeepsOrder(t *testing.T) {
	var requests atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		id := r.URL.Path[len("/api/proxy/notion/v1/pages/"):]
		fmt.Fprintf(w, `{"id": %q, "properties": {}}`, id)
	}))
	defer server.Close()

	ids := []string{"p1", "p2", "p3", "p4", "p5", "p6"}
	pages, err := testClient(server.URL).Pages(context.Background(), ids)
	if err != nil {
		t.Fatalf("Pages() error: %v", err)
	}
	if len(pages) != len(ids) {
		t.Fatalf("got %d pages", len(pages))
	}
	for i, page := range pages {
		if page.ID != ids[i] {
			t.Errorf("pages[%d].ID = %q, want %q", i, page.ID, ids[i])
		}
	}
	if requests.Load() != int64(len(ids)) {
		t.Errorf("server saw %d requests, want %d", requests.Load(), len(ids))
	}
}
