// Package graph maps Microsoft Graph resources onto the broker request
// pipeline.
package graph

import (
	"context"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentgate/agentgate/internal/pipeline"
)

// Service is the broker route identifier for Microsoft Graph.
const Service = "graph"

// Client is a thin Microsoft Graph resource mapper.
type Client struct {
	pipe *pipeline.Pipeline
}

// New wraps the pipeline in a Graph client.
func New(pipe *pipeline.Pipeline) *Client {
	return &Client{pipe: pipe}
}

// Profile is the signed-in user's identity.
type Profile struct {
	ID          string
	DisplayName string
	Mail        string
}

// Profile fetches the signed-in user.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	payload, err := c.pipe.Do(ctx, pipeline.Call{
		Service: Service,
		Method:  http.MethodGet,
		Path:    "/v1.0/me",
	})
	if err != nil {
		return nil, err
	}
	parsed := gjson.ParseBytes(payload)
	return &Profile{
		ID:          parsed.Get("id").String(),
		DisplayName: parsed.Get("displayName").String(),
		Mail:        parsed.Get("mail").String(),
	}, nil
}

// DriveItem is one entry in a drive folder listing.
type DriveItem struct {
	ID     string
	Name   string
	Size   int64
	Folder bool
}

// DriveChildren lists the items under the given drive path. An empty path
// lists the drive root.
func (c *Client) DriveChildren(ctx context.Context, path string) ([]DriveItem, error) {
	endpoint := "/v1.0/me/drive/root/children"
	if trimmed := strings.Trim(path, "/"); trimmed != "" {
		endpoint = "/v1.0/me/drive/root:/" + trimmed + ":/children"
	}

	payload, err := c.pipe.Do(ctx, pipeline.Call{
		Service: Service,
		Method:  http.MethodGet,
		Path:    endpoint,
	})
	if err != nil {
		return nil, err
	}

	var items []DriveItem
	for _, entry := range gjson.GetBytes(payload, "value").Array() {
		items = append(items, DriveItem{
			ID:     entry.Get("id").String(),
			Name:   entry.Get("name").String(),
			Size:   entry.Get("size").Int(),
			Folder: entry.Get("folder").Exists(),
		})
	}
	return items, nil
}

// Download fetches a drive item's content. Graph answers these endpoints with
// a redirect to a pre-signed URL, which the pipeline follows without the
// session header.
func (c *Client) Download(ctx context.Context, itemID string) ([]byte, error) {
	return c.pipe.Do(ctx, pipeline.Call{
		Service: Service,
		Method:  http.MethodGet,
		Path:    "/v1.0/me/drive/items/" + itemID + "/content",
		Raw:     true,
	})
}
