package importer

import (
	"context"
	"fmt"

	"github.com/tkrause/balance-up/internal/domain"
	"github.com/tkrause/balance-up/internal/store"
)

// batchLoader buffers transformed entries of one kind and bulk-inserts them
// once the buffer reaches the batch size. It never commits; the run
// transaction owns that.
type batchLoader struct {
	tx     store.RunTx
	kind   domain.Kind
	size   int
	buf    []*domain.LedgerEntry
	loaded int
}

func newBatchLoader(tx store.RunTx, kind domain.Kind, size int) *batchLoader {
	return &batchLoader{
		tx:   tx,
		kind: kind,
		size: size,
		buf:  make([]*domain.LedgerEntry, 0, size),
	}
}

// Add buffers one entry, flushing when the buffer is full.
func (l *batchLoader) Add(ctx context.Context, entry *domain.LedgerEntry) error {
	l.buf = append(l.buf, entry)
	if len(l.buf) >= l.size {
		return l.Flush(ctx)
	}
	return nil
}

// Flush inserts any buffered entries.
func (l *batchLoader) Flush(ctx context.Context) error {
	if len(l.buf) == 0 {
		return nil
	}
	if err := l.tx.InsertEntries(ctx, l.kind, l.buf); err != nil {
		return fmt.Errorf("batchLoader: flushing %d %s rows: %w", len(l.buf), l.kind, err)
	}
	l.loaded += len(l.buf)
	l.buf = l.buf[:0]
	return nil
}

// Loaded reports how many entries have been inserted so far.
func (l *batchLoader) Loaded() int {
	return l.loaded
}
