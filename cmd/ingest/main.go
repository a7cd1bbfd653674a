// Command ingest loads one or more documents into a groundrag store
// without starting the HTTP server, for one-off corpus building or
// scripted batch loads.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/groundrag/groundrag"
)

func main() {
	dataDir := flag.String("data-dir", "./data", "groundrag data directory")
	category := flag.String("category", "", "category tag applied to every ingested document")
	force := flag.Bool("force", false, "reparse even if the content hash is unchanged")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	paths := flag.Args()
	if len(paths) == 0 {
		slog.Error("usage: ingest [flags] <file> [file...]")
		os.Exit(2)
	}

	cfg := groundrag.DefaultConfig()
	cfg.DataDir = *dataDir

	engine, err := groundrag.New(cfg)
	if err != nil {
		slog.Error("creating engine", "error", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	var opts []groundrag.IngestOption
	if *category != "" {
		opts = append(opts, groundrag.WithCategory(*category))
	}
	if *force {
		opts = append(opts, groundrag.WithForceReparse())
	}

	failures := 0
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			slog.Error("resolving path", "path", p, "error", err)
			failures++
			continue
		}
		docID, err := engine.Ingest(ctx, abs, opts...)
		if err != nil {
			slog.Error("ingest failed", "path", abs, "error", err)
			failures++
			continue
		}
		slog.Info("ingested", "path", abs, "document_id", docID)
	}

	if failures > 0 {
		os.Exit(1)
	}
}
