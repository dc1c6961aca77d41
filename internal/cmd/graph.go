package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/agentgate/agentgate/internal/config"
	"github.com/agentgate/agentgate/internal/services/graph"
)

// DoGraphDrive lists the OneDrive folder at the given path.
func DoGraphDrive(cfg *config.Config, path string, options *Options) {
	client := graph.New(newPipeline(cfg, options))

	items, err := client.DriveChildren(context.Background(), path)
	if err != nil {
		fail(err)
	}

	for _, item := range items {
		kind := "file"
		if item.Folder {
			kind = "dir"
		}
		fmt.Printf("%-36s  %-4s  %10d  %s\n", item.ID, kind, item.Size, item.Name)
	}
}

// DoGraphDownload fetches a drive item's content and writes it to outPath,
// or to stdout when outPath is empty.
func DoGraphDownload(cfg *config.Config, itemID, outPath string, options *Options) {
	client := graph.New(newPipeline(cfg, options))

	content, err := client.Download(context.Background(), itemID)
	if err != nil {
		fail(err)
	}

	if outPath == "" {
		_, _ = os.Stdout.Write(content)
		return
	}
	if err = os.WriteFile(outPath, content, 0o644); err != nil {
		fail(fmt.Errorf("write %s: %w", outPath, err))
	}
	fmt.Printf("Saved %d bytes to %s\n", len(content), outPath)
}
