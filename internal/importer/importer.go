// Package importer is the cashbox batch ingestion pipeline: it discovers and
// classifies export files, normalizes their heterogeneous headers, transforms
// rows into typed ledger entries, resolves user/team identities, and bulk
// loads everything inside one run-wide transaction. A fatal error anywhere
// rolls back the whole run; archiving and event publishing happen only after
// commit.
package importer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/events"
	"github.com/tkrause/balance-up/internal/logger"
	"github.com/tkrause/balance-up/internal/store"
)

// DefaultBatchSize is the number of rows per bulk insert.
const DefaultBatchSize = 1000

// Publisher announces a finished run to interested consumers.
type Publisher interface {
	PublishImportCompleted(ctx context.Context, event events.ImportCompleted) error
}

// BackupUploader copies an archived file to offsite storage.
type BackupUploader interface {
	Upload(ctx context.Context, path string) error
}

// Importer drives one import run at a time. It is not safe for concurrent
// runs against the same store; truncation happens per kind as that kind's
// first file is processed.
type Importer struct {
	store       store.Store
	transformer *Transformer
	batchSize   int
	now         func() time.Time
	publisher   Publisher
	backup      BackupUploader
}

// Option configures an Importer.
type Option func(*Importer)

// WithBatchSize overrides the bulk insert size.
func WithBatchSize(n int) Option {
	return func(imp *Importer) { imp.batchSize = n }
}

// WithPublisher enables post-commit event publishing.
func WithPublisher(p Publisher) Option {
	return func(imp *Importer) { imp.publisher = p }
}

// WithBackup enables offsite copies of archived files.
func WithBackup(b BackupUploader) Option {
	return func(imp *Importer) { imp.backup = b }
}

// WithClock fixes the importer's notion of now; used by tests and by the
// exempt-due payment date rule.
func WithClock(now func() time.Time) Option {
	return func(imp *Importer) { imp.now = now }
}

// New creates an Importer on top of a ledger store.
func New(st store.Store, opts ...Option) *Importer {
	imp := &Importer{
		store:     st,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(imp)
	}
	imp.transformer = &Transformer{today: func() civil.Date { return civil.DateOf(imp.now()) }}
	return imp
}

// RunDir imports every conventional cashbox export in dir.
func (imp *Importer) RunDir(ctx context.Context, dir string) (*domain.ImportSummary, error) {
	files, err := DiscoverDir(dir)
	if err != nil {
		return nil, err
	}
	return imp.Run(ctx, files)
}

// RunLatest imports only the most recently modified conventional export in
// dir.
func (imp *Importer) RunLatest(ctx context.Context, dir string) (*domain.ImportSummary, error) {
	file, ok, err := LatestInDir(dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		log := logger.FromContext(ctx)
		log.Info().Str("dir", dir).Msg("no cashbox files to import")
		return imp.Run(ctx, nil)
	}
	return imp.Run(ctx, []SourceFile{file})
}

// RunFile imports one explicit file, classifying it by name or content. An
// unclassifiable file is skipped with a warning, not an error.
func (imp *Importer) RunFile(ctx context.Context, path string) (*domain.ImportSummary, error) {
	kind, ok, err := Classify(path)
	if err != nil {
		return nil, err
	}
	if !ok {
		log := logger.FromContext(ctx)
		log.Warn().Str("file", path).Msg("could not determine file kind, skipping")
		summary := newSummary(uuid.NewString())
		summary.Skipped = 1
		return summary, nil
	}
	return imp.Run(ctx, []SourceFile{{Path: path, Kind: kind}})
}

// Run processes the given files inside a single transaction. Either every
// row of every file lands and the files are archived, or the store is left
// untouched.
func (imp *Importer) Run(ctx context.Context, files []SourceFile) (*domain.ImportSummary, error) {
	runID := uuid.NewString()
	log := logger.FromContext(ctx).With().Str("run_id", runID).Logger()
	ctx = logger.WithContext(ctx, log)

	summary := newSummary(runID)
	if len(files) == 0 {
		return summary, nil
	}

	start := imp.now()
	log.Info().Int("files", len(files)).Msg("starting import run")

	tx, err := imp.store.BeginRun(ctx)
	if err != nil {
		return nil, fmt.Errorf("Run: begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Msg("rollback failed")
			}
		}
	}()

	resolver, err := newIdentityResolver(ctx, tx)
	if err != nil {
		return nil, fmt.Errorf("Run: %w", err)
	}

	arch := newArchiver(imp.now)
	truncated := make(map[domain.Kind]bool)

	for _, file := range files {
		rows, err := imp.processFile(ctx, tx, resolver, truncated, file)
		if err != nil {
			log.Error().Err(err).Str("file", file.Path).Msg("import run aborted, rolling back")
			return nil, err
		}
		summary.Files++
		summary.RowsByKind[file.Kind] += rows
		arch.Stage(file)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Run: commit: %w", err)
	}
	committed = true

	// The ledger is consistent from here on; archive and publish failures
	// are reported but cannot fail the run.
	archived, err := arch.Execute()
	if err != nil {
		log.Error().Err(err).Msg("archiving failed after commit")
	}
	for _, path := range archived {
		log.Info().Str("archived", filepath.Base(path)).Msg("archived processed file")
		if imp.backup != nil {
			if err := imp.backup.Upload(ctx, path); err != nil {
				log.Warn().Err(err).Str("file", path).Msg("backup upload failed")
			}
		}
	}

	if imp.publisher != nil {
		event := events.ImportCompleted{
			RunID:       runID,
			Files:       summary.Files,
			Rows:        rowCounts(summary),
			CompletedAt: imp.now(),
			Duration:    imp.now().Sub(start),
		}
		if err := imp.publisher.PublishImportCompleted(ctx, event); err != nil {
			log.Warn().Err(err).Msg("publishing import completed event failed")
		}
	}

	log.Info().
		Int("files", summary.Files).
		Int("rows", summary.TotalRows()).
		Dur("took", imp.now().Sub(start)).
		Msg("import run committed")
	return summary, nil
}

// processFile streams one export file through normalize → transform →
// resolve → load. Any error returned here is fatal for the whole run.
func (imp *Importer) processFile(
	ctx context.Context,
	tx store.RunTx,
	resolver *identityResolver,
	truncated map[domain.Kind]bool,
	file SourceFile,
) (int, error) {
	name := filepath.Base(file.Path)
	log := logger.FromContext(ctx).With().
		Str("file", name).
		Str("kind", string(file.Kind)).
		Logger()

	// Each import run fully replaces a kind's table; truncate before the
	// first row of that kind.
	if !truncated[file.Kind] {
		if err := tx.Truncate(ctx, file.Kind); err != nil {
			return 0, fmt.Errorf("processFile %s: %w", name, err)
		}
		truncated[file.Kind] = true
		log.Info().Msg("truncated destination table")
	}

	f, err := os.Open(file.Path)
	if err != nil {
		return 0, fmt.Errorf("processFile %s: %w", name, err)
	}
	defer f.Close()

	r := newExportReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, fmt.Errorf("processFile %s: reading header: %w", name, err)
	}

	aliases := aliasTable(file.Kind)
	loader := newBatchLoader(tx, file.Kind, imp.batchSize)

	line := 1
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("processFile %s: line %d: %w", name, line+1, err)
		}
		line++

		raw := make(map[string]string, len(header))
		for i, column := range header {
			if i < len(record) {
				raw[column] = record[i]
			}
		}

		outcome := imp.transformer.Row(file.Kind, normalizeRow(aliases, raw))
		if outcome.Err != nil {
			log.Error().Err(outcome.Err).Int("line", line).Interface("row", raw).Msg("fatal row error")
			return 0, fmt.Errorf("processFile %s: line %d: %w", name, line, outcome.Err)
		}
		for _, w := range outcome.Warnings {
			log.Warn().Int("line", line).Str("field", w.Field).Msg(w.Message)
		}

		entry := outcome.Entry
		if err := resolver.resolveTeam(ctx, entry.TeamID, entry.TeamName); err != nil {
			return 0, fmt.Errorf("processFile %s: line %d: %w", name, line, err)
		}
		entry.UserID, err = resolver.resolveUser(ctx, entry.UserName, entry.TeamID)
		if err != nil {
			return 0, fmt.Errorf("processFile %s: line %d: %w", name, line, err)
		}

		if err := loader.Add(ctx, entry); err != nil {
			return 0, fmt.Errorf("processFile %s: %w", name, err)
		}
	}

	if err := loader.Flush(ctx); err != nil {
		return 0, fmt.Errorf("processFile %s: %w", name, err)
	}

	log.Info().Int("rows", loader.Loaded()).Msg("file processed")
	return loader.Loaded(), nil
}

func newSummary(runID string) *domain.ImportSummary {
	return &domain.ImportSummary{
		RunID:      runID,
		RowsByKind: make(map[domain.Kind]int),
	}
}

func rowCounts(summary *domain.ImportSummary) map[string]int {
	rows := make(map[string]int, len(summary.RowsByKind))
	for kind, count := range summary.RowsByKind {
		rows[string(kind)] = count
	}
	return rows
}
