package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/avilaton/atomo-pricewatch/config"
	"github.com/avilaton/atomo-pricewatch/pkg/changelog"
	"github.com/avilaton/atomo-pricewatch/pkg/logger"
	"github.com/avilaton/atomo-pricewatch/pkg/scraper"
	"github.com/avilaton/atomo-pricewatch/pkg/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	zl, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// a store that cannot be opened is fatal; everything downstream
	// degrades per page or per record instead
	store, err := storage.Open(cfg.DBPath, zl)
	if err != nil {
		zl.Fatal("cannot open product store", zap.Error(err))
	}
	defer store.Close()

	fetcher := scraper.NewFetcher(scraper.FetcherConfig{
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.RequestTimeout,
	}, zl)

	pipeline := scraper.NewPipeline(
		fetcher,
		store,
		changelog.NewWriter(cfg.ChangeLogPath),
		scraper.Config{
			Categories: cfg.Categories,
			PageDelay:  cfg.PageDelay,
		},
		zl,
	)

	changesFound, err := pipeline.Run(ctx)
	if err != nil {
		zl.Fatal("scrape run aborted", zap.Error(err))
	}

	fmt.Printf("Scraping finished. Changes found: %v\n", changesFound)
}
