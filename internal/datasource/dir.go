package datasource

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/litescript/ls-mms/internal/logging"
	"github.com/litescript/ls-mms/internal/metrics"
)

// FileExt is the extension of dataset files in a Dir.
const FileExt = ".jsond"

// Dir serves datasets from <root>/<dataset>.jsond files. Decoded tables are
// cached by dataset name and file modification time.
type Dir struct {
	root string
	log  *logging.Logger

	mu    sync.RWMutex
	cache map[string]dirEntry
}

type dirEntry struct {
	modTime time.Time
	table   *Table
}

// DirOption configures a Dir.
type DirOption func(*Dir)

// WithDirLogger sets the logger.
func WithDirLogger(l *logging.Logger) DirOption {
	return func(d *Dir) {
		d.log = l
	}
}

// NewDir creates a directory-backed source.
func NewDir(root string, opts ...DirOption) *Dir {
	d := &Dir{
		root:  root,
		log:   logging.Discard(),
		cache: make(map[string]dirEntry),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Root returns the directory being served.
func (d *Dir) Root() string {
	return d.root
}

// Fetch implements Source.
func (d *Dir) Fetch(ctx context.Context, q Query) ([]Row, error) {
	start := time.Now()
	rows, err := d.fetch(ctx, q)
	metrics.RecordFetch(q.Dataset, err, time.Since(start))
	if err != nil {
		return nil, fetchErr(q.Dataset, err)
	}
	d.log.Debug("%s: %d rows in %s", q.Dataset, len(rows), q.Range)
	return rows, nil
}

func (d *Dir) fetch(ctx context.Context, q Query) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, err := d.load(q)
	if err != nil {
		return nil, err
	}
	return table.Select(q)
}

func (d *Dir) load(q Query) (*Table, error) {
	path := filepath.Join(d.root, q.Dataset+FileExt)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	d.mu.RLock()
	entry, ok := d.cache[q.Dataset]
	d.mu.RUnlock()
	if ok && entry.modTime.Equal(info.ModTime()) {
		return entry.table, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	table, err := DecodeJSOND(f, q.Dataset, q.Fields)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.cache[q.Dataset] = dirEntry{modTime: info.ModTime(), table: table}
	d.mu.Unlock()
	return table, nil
}

// Export writes rows as <root>/<dataset>.jsond, creating root if needed.
func (d *Dir) Export(dataset string, fields []string, rows []Row) error {
	if err := os.MkdirAll(d.root, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", d.root, err)
	}
	path := filepath.Join(d.root, dataset+FileExt)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := EncodeJSOND(f, dataset, fields, rows); err != nil {
		_ = f.Close()
		return fmt.Errorf("encode %s: %w", dataset, err)
	}
	return f.Close()
}
