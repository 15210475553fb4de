// Command ncf-audit reports e-CF numbers issued more than once across
// gzipped fiscal ledgers and, optionally, the invoices table.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"

	"github.com/go-faster/errors"

	"github.com/xenking/caja-pos/internal/ncfaudit"
	"github.com/xenking/caja-pos/internal/storage/postgres"
)

// exitDuplicates is the exit status when the audit found duplicates.
const exitDuplicates = 3

func main() {
	var (
		ledgerGlob  string
		databaseURL string
		capacity    uint
		fpr         float64
	)

	flag.StringVar(&ledgerGlob, "ledgers", "data/*.gz", "glob of gzipped ledgers, one e-CF number per line")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL; when set the invoices table is audited too")
	flag.UintVar(&capacity, "capacity", 10_000_000, "expected numbers per source, sizes the bloom filters")
	flag.Float64Var(&fpr, "fpr", 0.001, "bloom filter false positive rate")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	report, err := run(ctx, ledgerGlob, databaseURL, ncfaudit.Config{Capacity: capacity, FalsePositiveRate: fpr})
	if err != nil {
		slog.Error("ncf audit failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		slog.Error("write report", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if len(report.Duplicates) > 0 {
		slog.Warn("duplicate e-CF numbers found", slog.Int("count", len(report.Duplicates)))
		os.Exit(exitDuplicates)
	}
	slog.Info("no duplicate e-CF numbers")
}

func run(ctx context.Context, ledgerGlob, databaseURL string, cfg ncfaudit.Config) (*ncfaudit.Report, error) {
	paths, err := filepath.Glob(ledgerGlob)
	if err != nil {
		return nil, errors.Wrapf(err, "expand %q", ledgerGlob)
	}
	sort.Strings(paths)

	sources := make([]ncfaudit.Source, 0, len(paths)+1)
	for _, p := range paths {
		sources = append(sources, ncfaudit.GzipLedger{Path: p})
	}

	if databaseURL != "" {
		slog.Info("connecting to database")
		pool, err := postgres.NewPool(ctx, databaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "connect to database")
		}
		defer pool.Close()

		invoices := postgres.NewInvoiceRepository(pool)
		sources = append(sources, ncfaudit.FuncSource{
			SourceName: "invoices",
			ScanFunc:   invoices.ScanFiscalNumbers,
		})
	}

	slog.Info("auditing", slog.Int("sources", len(sources)))
	return ncfaudit.Audit(ctx, sources, cfg)
}
