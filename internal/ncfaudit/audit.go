// Package ncfaudit finds e-CF numbers that were issued more than once across
// fiscal ledgers.
//
// The audit makes two passes over every source. Pass 1 builds one bloom
// filter per source in parallel. Pass 2 re-streams each source and counts
// exactly the numbers that some filter flagged, so false positives never
// reach the report.
package ncfaudit

import (
	"context"
	"log/slog"
	"sort"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/caja-pos/internal/domain/fiscal"
)

const progressEvery = 1_000_000

// Config sizes the bloom filters.
type Config struct {
	// Capacity is the expected count of numbers per source.
	Capacity uint
	// FalsePositiveRate is the target rate of each filter.
	FalsePositiveRate float64
	Logger            *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Capacity == 0 {
		c.Capacity = 10_000_000
	}
	if c.FalsePositiveRate <= 0 || c.FalsePositiveRate >= 1 {
		c.FalsePositiveRate = 0.001
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// SourceStats counts what a source contained.
type SourceStats struct {
	Name      string `json:"name"`
	Numbers   uint64 `json:"numbers"`
	Malformed uint64 `json:"malformed"`
}

// Duplicate is an e-CF number seen more than once.
type Duplicate struct {
	NCF          string              `json:"ncf"`
	DocumentType fiscal.DocumentType `json:"document_type"`
	Total        int                 `json:"total"`
	// Occurrences maps source name to how often the number appears there.
	Occurrences map[string]int `json:"occurrences"`
}

// Report is the outcome of an audit. Duplicates are sorted by NCF.
type Report struct {
	Sources    []SourceStats `json:"sources"`
	Duplicates []Duplicate   `json:"duplicates"`
}

type pass1 struct {
	filter *bloom.BloomFilter
	// self holds numbers the source's own filter had already seen.
	self  map[string]struct{}
	stats SourceStats
}

// Audit scans sources and reports duplicated e-CF numbers, both within one
// source and across sources. Malformed lines are counted and skipped.
func Audit(ctx context.Context, sources []Source, cfg Config) (*Report, error) {
	if len(sources) == 0 {
		return nil, errors.New("no sources to audit")
	}
	cfg = cfg.withDefaults()

	cfg.Logger.Info("pass 1: building bloom filters", slog.Int("sources", len(sources)))
	first := make([]pass1, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			res, err := buildFilter(gctx, src, cfg)
			if err != nil {
				return errors.Wrapf(err, "pass 1 %s", src.Name())
			}
			first[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cfg.Logger.Info("pass 2: counting candidates")
	counts := make([]map[string]int, len(sources))
	g, gctx = errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			c, err := countCandidates(gctx, i, src, first, cfg)
			if err != nil {
				return errors.Wrapf(err, "pass 2 %s", src.Name())
			}
			counts[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Sources: make([]SourceStats, len(sources))}
	for i := range first {
		report.Sources[i] = first[i].stats
	}
	report.Duplicates = merge(sources, counts)
	return report, nil
}

func buildFilter(ctx context.Context, src Source, cfg Config) (pass1, error) {
	res := pass1{
		filter: bloom.NewWithEstimates(cfg.Capacity, cfg.FalsePositiveRate),
		self:   make(map[string]struct{}),
		stats:  SourceStats{Name: src.Name()},
	}
	err := src.Scan(ctx, func(ncf string) {
		if _, _, err := fiscal.ParseNCF(ncf); err != nil {
			res.stats.Malformed++
			return
		}
		res.stats.Numbers++
		if res.filter.TestOrAddString(ncf) {
			res.self[ncf] = struct{}{}
		}
		if res.stats.Numbers%progressEvery == 0 {
			cfg.Logger.Info("pass 1 progress",
				slog.String("source", src.Name()),
				slog.Uint64("numbers", res.stats.Numbers),
			)
		}
	})
	if err != nil {
		return pass1{}, err
	}
	cfg.Logger.Info("pass 1 complete",
		slog.String("source", src.Name()),
		slog.Uint64("numbers", res.stats.Numbers),
		slog.Uint64("malformed", res.stats.Malformed),
	)
	return res, nil
}

func countCandidates(ctx context.Context, idx int, src Source, first []pass1, cfg Config) (map[string]int, error) {
	counts := make(map[string]int)
	own := first[idx].self
	err := src.Scan(ctx, func(ncf string) {
		if _, _, err := fiscal.ParseNCF(ncf); err != nil {
			return
		}
		if _, ok := own[ncf]; ok {
			counts[ncf]++
			return
		}
		for j := range first {
			if j != idx && first[j].filter.TestString(ncf) {
				counts[ncf]++
				return
			}
		}
	})
	if err != nil {
		return nil, err
	}
	cfg.Logger.Info("pass 2 complete",
		slog.String("source", src.Name()),
		slog.Int("candidates", len(counts)),
	)
	return counts, nil
}

func merge(sources []Source, counts []map[string]int) []Duplicate {
	byNCF := make(map[string]*Duplicate)
	for i, c := range counts {
		name := sources[i].Name()
		for ncf, n := range c {
			d, ok := byNCF[ncf]
			if !ok {
				d = &Duplicate{NCF: ncf, Occurrences: make(map[string]int)}
				byNCF[ncf] = d
			}
			d.Occurrences[name] += n
			d.Total += n
		}
	}

	var out []Duplicate
	for ncf, d := range byNCF {
		if d.Total < 2 {
			continue
		}
		d.DocumentType, _, _ = fiscal.ParseNCF(ncf)
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NCF < out[j].NCF })
	return out
}
