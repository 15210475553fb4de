package ncfaudit

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
)

// Source is one stream of issued e-CF numbers.
type Source interface {
	Name() string
	// Scan calls fn for every number in the source. It may be called more
	// than once and must yield the same numbers each time.
	Scan(ctx context.Context, fn func(ncf string)) error
}

// GzipLedger is a gzip-compressed text file with one e-CF number per line.
type GzipLedger struct {
	Path string
}

// Name returns the file name of the ledger.
func (l GzipLedger) Name() string { return filepath.Base(l.Path) }

// Scan streams the ledger, skipping blank lines.
func (l GzipLedger) Scan(ctx context.Context, fn func(ncf string)) error {
	f, err := os.Open(l.Path)
	if err != nil {
		return errors.Wrapf(err, "open %s", l.Path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", l.Path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", l.Path)
	}
	return nil
}

// FuncSource adapts a scan function, such as a database cursor, to Source.
type FuncSource struct {
	SourceName string
	ScanFunc   func(ctx context.Context, fn func(ncf string)) error
}

// Name returns SourceName.
func (s FuncSource) Name() string { return s.SourceName }

// Scan calls ScanFunc.
func (s FuncSource) Scan(ctx context.Context, fn func(ncf string)) error {
	return s.ScanFunc(ctx, fn)
}
