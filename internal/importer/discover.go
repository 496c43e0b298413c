package importer

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/tkrause/balance-up/internal/domain"
)

// Cashbox export naming convention: cashbox-{kind}-DD-MM-YYYY-HHMMSS.csv.
var (
	cashboxName   = regexp.MustCompile(`^cashbox-(dues|punishments|transactions)-\d{2}-\d{2}-\d{4}-\d{6}\.csv$`)
	cashboxPrefix = regexp.MustCompile(`^cashbox-(dues|punishments|transactions)-`)
)

// SourceFile is one classified import candidate.
type SourceFile struct {
	Path string
	Kind domain.Kind
}

// DiscoverDir lists all files in dir matching the cashbox naming convention,
// oldest modification first so repeated exports of the same kind apply in
// order (the last one wins the truncate-and-reload).
func DiscoverDir(dir string) ([]SourceFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("DiscoverDir: reading %s: %w", dir, err)
	}

	type candidate struct {
		file    SourceFile
		modTime int64
	}
	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		m := cashboxName.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}
		kind, err := domain.ParseKind(m[1])
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("DiscoverDir: stat %s: %w", entry.Name(), err)
		}
		candidates = append(candidates, candidate{
			file:    SourceFile{Path: filepath.Join(dir, entry.Name()), Kind: kind},
			modTime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime != candidates[j].modTime {
			return candidates[i].modTime < candidates[j].modTime
		}
		return candidates[i].file.Path < candidates[j].file.Path
	})

	files := make([]SourceFile, 0, len(candidates))
	for _, c := range candidates {
		files = append(files, c.file)
	}
	return files, nil
}

// LatestInDir returns the most recently modified conventional export in dir,
// or false when none exists.
func LatestInDir(dir string) (SourceFile, bool, error) {
	files, err := DiscoverDir(dir)
	if err != nil {
		return SourceFile{}, false, err
	}
	if len(files) == 0 {
		return SourceFile{}, false, nil
	}
	return files[len(files)-1], true, nil
}

// Classify determines the kind of a single explicit file: the filename
// convention wins; otherwise the header row is sniffed. Returns false when
// neither yields a kind.
func Classify(path string) (domain.Kind, bool, error) {
	if m := cashboxPrefix.FindStringSubmatch(filepath.Base(path)); m != nil {
		kind, err := domain.ParseKind(m[1])
		if err == nil {
			return kind, true, nil
		}
	}
	return SniffKind(path)
}

// SniffKind classifies a file by its header column prefixes: penalty_ (or the
// misspelled penatly_) means punishments, due_ means dues, transaction_ means
// transactions.
func SniffKind(path string) (domain.Kind, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, fmt.Errorf("SniffKind: open %s: %w", path, err)
	}
	defer f.Close()

	r := newExportReader(f)
	header, err := r.Read()
	if err != nil {
		return "", false, fmt.Errorf("SniffKind: reading header of %s: %w", path, err)
	}

	for _, h := range header {
		switch {
		case strings.HasPrefix(h, "penalty_"), strings.HasPrefix(h, "penatly_"):
			return domain.KindPunishment, true, nil
		case strings.HasPrefix(h, "due_"):
			return domain.KindDue, true, nil
		case strings.HasPrefix(h, "transaction_"):
			return domain.KindTransaction, true, nil
		}
	}
	return "", false, nil
}

// newExportReader wraps a cashbox export in a CSV reader: ;-delimited, UTF-8
// with an optional BOM on the first column name.
func newExportReader(f *os.File) *csv.Reader {
	br := bufio.NewReader(f)
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		br.Discard(3)
	}
	r := csv.NewReader(br)
	r.Comma = ';'
	return r
}
