package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/services/notion"
)

// DoNotionSearch searches the Notion workspace through the broker.
func DoNotionSearch(cfg *config.Config, query string, options *Options) {
	client := notion.New(newPipeline(cfg, options))

	results, err := client.Search(context.Background(), query)
	if err != nil {
		fail(err)
	}

	if len(results) == 0 {
		fmt.Println("No results.")
		return
	}
	for _, result := range results {
		title := result.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("%-36s  %-8s  %s\n", result.ID, result.Object, title)
	}
}

// DoNotionPages fetches one or more pages (comma-separated ids) and prints
// their flattened properties.
func DoNotionPages(cfg *config.Config, idList string, options *Options) {
	var ids []string
	for _, id := range strings.Split(idList, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	if len(ids) == 0 {
		fail(fmt.Errorf("no page ids given"))
	}

	client := notion.New(newPipeline(cfg, options))
	pages, err := client.Pages(context.Background(), ids)
	if err != nil {
		fail(err)
	}

	for _, page := range pages {
		fmt.Printf("%s  %s\n", page.ID, page.URL)
		names := make([]string, 0, len(page.Properties))
		for name := range page.Properties {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if value := page.Properties[name]; value != "" {
				fmt.Printf("  %s: %s\n", name, value)
			}
		}
	}
}
