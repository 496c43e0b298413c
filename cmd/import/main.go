package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/tkrause/balance-up/internal/backup"
	"github.com/tkrause/balance-up/internal/config"
	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/events/kafka"
	"github.com/tkrause/balance-up/internal/importer"
	"github.com/tkrause/balance-up/internal/logger"
	"github.com/tkrause/balance-up/internal/store/postgres"
)

func main() {
	dir := flag.String("dir", "", "Directory to scan for cashbox exports (defaults to IMPORT_DIR)")
	file := flag.String("file", "", "Import a single file instead of scanning a directory")
	latest := flag.Bool("latest", false, "Import only the most recent export in the directory")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal := logger.New("info")
		fatal.Fatal().Err(err).Msg("Loading configuration failed")
	}
	log := logger.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	if *dir == "" {
		*dir = cfg.ImportDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Connecting to database failed")
	}
	defer st.Close()

	opts := []importer.Option{importer.WithBatchSize(cfg.BatchSize)}
	if cfg.KafkaBrokers != "" {
		pub := kafka.NewPublisher(strings.Split(cfg.KafkaBrokers, ","))
		defer pub.Close()
		opts = append(opts, importer.WithPublisher(pub))
	}
	if cfg.BackupBucket != "" {
		opts = append(opts, importer.WithBackup(backup.NewUploader(cfg.BackupBucket)))
	}
	imp := importer.New(st, opts...)

	var summary *domain.ImportSummary
	switch {
	case *file != "":
		summary, err = imp.RunFile(ctx, *file)
	case *latest:
		summary, err = imp.RunLatest(ctx, *dir)
	default:
		summary, err = imp.RunDir(ctx, *dir)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d rows from %d file(s) (%d skipped).\n",
		summary.TotalRows(), summary.Files, summary.Skipped)
}
