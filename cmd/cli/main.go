package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tkrause/balance-up/internal/backup"
	"github.com/tkrause/balance-up/internal/config"
	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/events/kafka"
	"github.com/tkrause/balance-up/internal/importer"
	"github.com/tkrause/balance-up/internal/logger"
	"github.com/tkrause/balance-up/internal/store/postgres"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "import":
		runImport()
	case "users":
		runUsers()
	case "unpaid":
		runUnpaid()
	case "standardize":
		runStandardize()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Balance-Up CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import       Import cashbox exports into the ledger")
	fmt.Println("  users        List users with unpaid and paid punishment totals")
	fmt.Println("  unpaid       Summarize open punishments per user")
	fmt.Println("  standardize  Rename stray export files to the archive naming scheme")
	fmt.Println("  help         Show this help message")
	fmt.Println("\nRun 'cli <command> -h' for more information on a command.")
}

// setup loads configuration and builds the logger every command shares.
func setup() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New("info")
		log.Fatal().Err(err).Msg("Loading configuration failed")
	}
	return cfg, logger.New(cfg.LogLevel)
}

func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) *postgres.LedgerStore {
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	st, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Connecting to database failed")
	}
	return st
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	dir := fs.String("dir", "", "Directory to scan (defaults to IMPORT_DIR)")
	file := fs.String("file", "", "Import a single file")
	latest := fs.Bool("latest", false, "Import only the most recent export")
	fs.Parse(os.Args[2:])

	cfg, log := setup()
	if *dir == "" {
		*dir = cfg.ImportDir
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, cfg, log)
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
	var err error
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

func runUsers() {
	fs := flag.NewFlagSet("users", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg, log := setup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, cfg, log)
	defer st.Close()

	accounts, err := st.ListUsers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Listing users failed")
	}

	fmt.Printf("%-6s %-30s %-8s %12s %12s\n", "ID", "NAME", "TEAM", "UNPAID", "PAID")
	for _, a := range accounts {
		fmt.Printf("%-6d %-30s %-8d %12s %12s\n",
			a.UserID, a.Name, a.TeamID, a.Unpaid.StringFixed(2), a.Paid.StringFixed(2))
	}
}

func runUnpaid() {
	fs := flag.NewFlagSet("unpaid", flag.ExitOnError)
	fs.Parse(os.Args[2:])

	cfg, log := setup()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	st := openStore(ctx, cfg, log)
	defer st.Close()

	totals, err := st.UnpaidPunishments(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Summarizing unpaid punishments failed")
	}

	if len(totals) == 0 {
		fmt.Println("No unpaid punishments.")
		return
	}
	fmt.Printf("%-30s %6s %12s\n", "NAME", "COUNT", "AMOUNT")
	for _, t := range totals {
		fmt.Printf("%-30s %6d %12s\n", t.Name, t.Count, t.Amount.StringFixed(2))
	}
}

func runStandardize() {
	fs := flag.NewFlagSet("standardize", flag.ExitOnError)
	dir := fs.String("dir", "", "Directory to standardize (defaults to IMPORT_DIR)")
	fs.Parse(os.Args[2:])

	cfg, log := setup()
	if *dir == "" {
		*dir = cfg.ImportDir
	}

	renamed, err := importer.StandardizeDir(*dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Standardizing filenames failed")
	}

	if len(renamed) == 0 {
		fmt.Println("Nothing to rename.")
		return
	}
	for _, path := range renamed {
		fmt.Printf("Renamed to %s\n", filepath.Base(path))
	}
}
