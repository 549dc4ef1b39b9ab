package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/repository"
)

const (
	batchSize     = 500
	progressEvery = 10_000
	maxLineBytes  = 1 << 20
)

func main() {
	var (
		dataDir     string
		databaseURL string
	)

	flag.StringVar(&dataDir, "data-dir", "data", "directory containing *.jsonl.gz product feeds")
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, dataDir, databaseURL); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, dataDir, databaseURL string) error {
	files, err := filepath.Glob(filepath.Join(dataDir, "*.jsonl.gz"))
	if err != nil {
		return errors.Wrap(err, "list feeds")
	}
	if len(files) == 0 {
		slog.Info("no product feeds found", slog.String("dir", dataDir))
		return nil
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	repo := repository.NewCatalogRepository(pool)

	// Each feed is decoded and written by its own goroutine; the first
	// failure cancels the rest.
	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(importFile(ctx, repo, i, f))
	}

	return g.Wait()
}

func importFile(ctx context.Context, repo *repository.CatalogRepository, idx int, path string) func() error {
	return func() error {
		var (
			batch   = make([]catalog.Product, 0, batchSize)
			read    uint64
			written int64
		)

		flush := func() error {
			n, err := repo.UpsertProducts(ctx, batch)
			if err != nil {
				return err
			}
			written += n
			batch = batch[:0]
			return nil
		}

		if err := streamGzFile(ctx, path, func(line []byte) error {
			p, err := decodeProduct(line)
			if err != nil {
				return errors.Wrapf(err, "line %d", read+1)
			}
			read++
			batch = append(batch, p)
			if len(batch) == batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
			if read%progressEvery == 0 {
				slog.Info("import progress",
					slog.Int("file", idx+1),
					slog.Uint64("products", read),
				)
			}
			return nil
		}); err != nil {
			return errors.Wrapf(err, "import %s", path)
		}

		if err := flush(); err != nil {
			return errors.Wrapf(err, "import %s", path)
		}

		slog.Info("feed imported",
			slog.String("path", path),
			slog.Uint64("products", read),
			slog.Int64("rows", written),
		)
		return nil
	}
}

// decodeProduct parses one feed line. Unknown fields are ignored.
func decodeProduct(line []byte) (catalog.Product, error) {
	var p catalog.Product
	if err := jx.DecodeBytes(line).Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "id":
			v, err := d.Str()
			p.ID = v
			return err
		case "name":
			v, err := d.Str()
			p.Name = v
			return err
		case "description":
			v, err := d.Str()
			p.Description = v
			return err
		case "image":
			v, err := d.Str()
			p.Image = v
			return err
		case "price":
			n, err := d.Num()
			if err != nil {
				return err
			}
			price, err := decimal.NewFromString(strings.Trim(n.String(), `"`))
			if err != nil {
				return errors.Wrap(err, "parse price")
			}
			p.Price = price
			return nil
		default:
			return d.Skip()
		}
	}); err != nil {
		return catalog.Product{}, err
	}

	switch {
	case p.ID == "":
		return catalog.Product{}, errors.New("product id is required")
	case p.Name == "":
		return catalog.Product{}, errors.Errorf("product %s: name is required", p.ID)
	case !p.Price.IsPositive():
		return catalog.Product{}, errors.Errorf("product %s: price must be positive", p.ID)
	}
	return p, nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each non-empty
// line.
func streamGzFile(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
