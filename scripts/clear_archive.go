package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"chess-arena/internal/archive"
	"chess-arena/internal/config"
)

type purger interface {
	DeleteAll(ctx context.Context) (int64, error)
}

func main() {
	cfg, err := config.Load(config.GetEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := archive.Open(ctx, archive.Config{
		Driver:   cfg.Archive.Driver,
		URI:      cfg.Archive.URI,
		Database: cfg.Archive.Database,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open archive: %v\n", err)
		os.Exit(1)
	}
	defer store.Close(context.Background())

	p, ok := store.(purger)
	if !ok {
		fmt.Printf("Archive driver %q keeps nothing to clear\n", cfg.Archive.Driver)
		return
	}
	n, err := p.DeleteAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to delete games: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d archived games\n", n)
}
