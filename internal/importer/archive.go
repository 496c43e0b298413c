package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/tkrause/balance-up/internal/domain"
)

var archivedPattern = regexp.MustCompile(`^\d{8}(_\d{6})?_(dues|punishments|transactions)\.csv$`)

// archiver collects rename operations during a run and executes them only
// after the run's transaction has committed. Renaming earlier would leave
// files archived on disk while their rows were rolled back.
type archiver struct {
	now    func() time.Time
	staged []SourceFile
}

func newArchiver(now func() time.Time) *archiver {
	return &archiver{now: now}
}

// Stage records a successfully processed file for post-commit archiving.
func (a *archiver) Stage(file SourceFile) {
	a.staged = append(a.staged, file)
}

// Execute renames all staged files to YYYYMMDD_{kind}.csv in place. A name
// collision gets an HHMMSS timestamp inserted. Returns the new paths.
func (a *archiver) Execute() ([]string, error) {
	var archived []string
	for _, file := range a.staged {
		target, err := a.archivePath(file)
		if err != nil {
			return archived, err
		}
		if target == file.Path {
			archived = append(archived, target)
			continue
		}
		if err := os.Rename(file.Path, target); err != nil {
			return archived, fmt.Errorf("archiver: renaming %s: %w", file.Path, err)
		}
		archived = append(archived, target)
	}
	a.staged = nil
	return archived, nil
}

func (a *archiver) archivePath(file SourceFile) (string, error) {
	dir := filepath.Dir(file.Path)
	now := a.now()

	target := filepath.Join(dir, ArchivedName(file.Kind, now))
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, fmt.Sprintf("%s_%s_%s.csv",
			now.Format("20060102"), now.Format("150405"), file.Kind))
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("archiver: stat %s: %w", target, err)
	}
	return target, nil
}

// ArchivedName is the standard name of a processed export: YYYYMMDD_{kind}.csv.
func ArchivedName(kind domain.Kind, t time.Time) string {
	return fmt.Sprintf("%s_%s.csv", t.Format("20060102"), kind)
}

// StandardizeDir renames stray CSVs in dir into the archived naming scheme
// without importing them, classifying each by content and dating it by
// modification time. Files already archived, or pending import under the
// cashbox convention, are left alone. Returns the new paths.
func StandardizeDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("StandardizeDir: reading %s: %w", dir, err)
	}

	var renamed []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".csv") {
			continue
		}
		if archivedPattern.MatchString(name) || cashboxName.MatchString(name) {
			continue
		}

		path := filepath.Join(dir, name)
		kind, ok, err := Classify(path)
		if err != nil {
			return renamed, fmt.Errorf("StandardizeDir: %w", err)
		}
		if !ok {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			return renamed, fmt.Errorf("StandardizeDir: stat %s: %w", name, err)
		}
		a := newArchiver(func() time.Time { return info.ModTime() })
		target, err := a.archivePath(SourceFile{Path: path, Kind: kind})
		if err != nil {
			return renamed, fmt.Errorf("StandardizeDir: %w", err)
		}
		if target == path {
			continue
		}
		if err := os.Rename(path, target); err != nil {
			return renamed, fmt.Errorf("StandardizeDir: renaming %s: %w", name, err)
		}
		renamed = append(renamed, target)
	}
	return renamed, nil
}
