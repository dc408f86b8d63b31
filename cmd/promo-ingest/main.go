// Command promo-ingest bulk-imports campaign promo codes from gzipped code
// lists (one code per line) into the coupons table. Files are scanned
// concurrently; a bloom filter keeps duplicate codes out of the result set
// without holding every raw line in memory.
package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/aurelia-jewels/checkout-api/internal/domain/coupon"
	"github.com/aurelia-jewels/checkout-api/internal/domain/pricing"
	"github.com/aurelia-jewels/checkout-api/internal/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 1_000_000
	minCodeLen    = 4
	maxCodeLen    = 32
)

func main() {
	var (
		databaseURL   string
		discountType  string
		discountValue string
		minPurchase   string
		validDays     int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&discountType, "discount-type", "percentage", "campaign discount type: percentage or fixed")
	flag.StringVar(&discountValue, "discount-value", "10", "campaign discount value")
	flag.StringVar(&minPurchase, "min-purchase", "0", "minimum purchase for the campaign coupons")
	flag.IntVar(&validDays, "valid-days", 30, "days until the campaign coupons expire")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one gzipped code list file is required")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rule, err := campaignRule(discountType, discountValue, minPurchase, validDays)
	if err != nil {
		slog.Error("invalid campaign parameters", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := run(ctx, databaseURL, files, rule); err != nil {
		slog.Error("promo ingest failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("promo ingest completed successfully")
}

// campaign holds the discount rule stamped onto every ingested code.
type campaign struct {
	discountType  pricing.DiscountType
	discountValue decimal.Decimal
	minPurchase   decimal.Decimal
	expiry        time.Time
}

func campaignRule(discountType, discountValue, minPurchase string, validDays int) (campaign, error) {
	dt := pricing.DiscountType(discountType)
	if dt != pricing.DiscountPercentage && dt != pricing.DiscountFixed {
		return campaign{}, errors.Errorf("unknown discount type %q", discountType)
	}
	value, err := decimal.NewFromString(discountValue)
	if err != nil {
		return campaign{}, errors.Wrap(err, "parse discount value")
	}
	minP, err := decimal.NewFromString(minPurchase)
	if err != nil {
		return campaign{}, errors.Wrap(err, "parse min purchase")
	}
	return campaign{
		discountType:  dt,
		discountValue: value,
		minPurchase:   minP,
		expiry:        time.Now().AddDate(0, 0, validDays),
	}, nil
}

func run(ctx context.Context, databaseURL string, files []string, rule campaign) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("scanning code lists", slog.Int("files", len(files)))

	codes, err := collectCodes(ctx, files)
	if err != nil {
		return errors.Wrap(err, "collect codes")
	}

	slog.Info("unique codes found", slog.Int("count", len(codes)))

	if len(codes) == 0 {
		slog.Info("no codes to insert")
		return nil
	}

	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	return writeCoupons(ctx, postgres.NewCouponRepository(pool), codes, rule)
}

// dedupe is a bloom-backed set shared by the file scanners. The filter
// rejects the bulk of repeats cheaply; the map behind it makes the result
// exact despite bloom false positives.
type dedupe struct {
	mu     sync.Mutex
	filter *bloom.BloomFilter
	codes  map[string]struct{}
}

func (d *dedupe) add(code string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.filter.TestAndAddString(code) {
		// Probably seen before; the map lookup settles it.
		if _, ok := d.codes[code]; ok {
			return
		}
	}
	d.codes[code] = struct{}{}
}

// collectCodes streams every file concurrently, normalizing and deduplicating
// codes across all inputs.
func collectCodes(ctx context.Context, files []string) ([]string, error) {
	d := &dedupe{
		filter: bloom.NewWithEstimates(bloomCapacity, bloomFPR),
		codes:  make(map[string]struct{}),
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(scanFile(ctx, i, f, d))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(d.codes))
	for code := range d.codes {
		out = append(out, code)
	}
	return out, nil
}

func scanFile(ctx context.Context, idx int, path string, d *dedupe) func() error {
	return func() error {
		var count uint64

		err := streamGzFile(ctx, path, func(line string) {
			code := coupon.NormalizeCode(line)
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return
			}
			d.add(code)

			count++
			if count%progressEvery == 0 {
				slog.Info("scan progress", slog.Int("file", idx+1), slog.Uint64("codes", count))
			}
		})
		if err != nil {
			return errors.Wrapf(err, "scan file %d", idx+1)
		}

		slog.Info("scan complete", slog.Int("file", idx+1), slog.Uint64("total_codes", count))
		return nil
	}
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string)) error {
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
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(strings.TrimSpace(scanner.Text()))
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}

// writeCoupons upserts every campaign code with the shared rule.
func writeCoupons(ctx context.Context, repo *postgres.CouponRepository, codes []string, rule campaign) error {
	slog.Info("writing coupons to database", slog.Int("count", len(codes)))

	for i, code := range codes {
		if err := repo.Upsert(ctx, coupon.Coupon{
			Code:          code,
			DiscountType:  rule.discountType,
			DiscountValue: rule.discountValue,
			ExpiryDate:    rule.expiry,
			MinPurchase:   rule.minPurchase,
			IsActive:      true,
		}); err != nil {
			return errors.Wrapf(err, "upsert coupon %s", code)
		}

		if (i+1)%100 == 0 || i+1 == len(codes) {
			slog.Info("write progress", slog.Int("written", i+1), slog.Int("total", len(codes)))
		}
	}

	return nil
}
