package main

import (
	"bufio"
	"context"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-checkout/internal/domain/coupon"
)

const bloomFPR = 0.001

// Result is the deduplicated content of a set of dumps.
type Result struct {
	Coupons    []coupon.Coupon
	Duplicates int
	Invalid    int
}

// parsedFile is one dump after the first pass. suspects holds codes that hit
// the file's own filter before being added: in-file duplicates plus false
// positives.
type parsedFile struct {
	coupons  []coupon.Coupon
	filter   *bloom.BloomFilter
	suspects map[string]struct{}
	invalid  int
}

// Ingest parses files concurrently and keeps the first occurrence of every
// code, in file order. Codes are compared case-insensitively.
func Ingest(ctx context.Context, lg *zap.Logger, files []string) (*Result, error) {
	parsed := make([]*parsedFile, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			pf, err := parseFile(gctx, path)
			if err != nil {
				return errors.Wrapf(err, "parse %s", path)
			}
			lg.Debug("Dump parsed",
				zap.String("path", path),
				zap.Int("coupons", len(pf.coupons)),
				zap.Int("suspects", len(pf.suspects)),
			)
			parsed[i] = pf
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return merge(parsed), nil
}

// merge walks files in order. A code absent from its own suspects and from
// every earlier filter is certainly new; anything else is confirmed against
// an exact set holding only suspicious codes.
func merge(files []*parsedFile) *Result {
	res := &Result{}
	seen := make(map[string]struct{})
	for i, pf := range files {
		res.Invalid += pf.invalid
		for _, c := range pf.coupons {
			if !suspicious(files[:i], pf, c.Code) {
				res.Coupons = append(res.Coupons, c)
				continue
			}
			if _, dup := seen[c.Code]; dup {
				res.Duplicates++
				continue
			}
			seen[c.Code] = struct{}{}
			res.Coupons = append(res.Coupons, c)
		}
	}
	return res
}

func suspicious(earlier []*parsedFile, pf *parsedFile, code string) bool {
	if _, ok := pf.suspects[code]; ok {
		return true
	}
	for _, e := range earlier {
		if e.filter.TestString(code) {
			return true
		}
	}
	return false
}

func parseFile(ctx context.Context, path string) (*parsedFile, error) {
	pf := &parsedFile{suspects: make(map[string]struct{})}
	err := streamGzFile(ctx, path, func(line string) {
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			return
		}
		c, err := parseLine(line)
		if err != nil {
			pf.invalid++
			return
		}
		pf.coupons = append(pf.coupons, c)
	})
	if err != nil {
		return nil, err
	}

	pf.filter = bloom.NewWithEstimates(uint(max(len(pf.coupons), 1)), bloomFPR)
	for _, c := range pf.coupons {
		if pf.filter.TestString(c.Code) {
			pf.suspects[c.Code] = struct{}{}
		}
		pf.filter.AddString(c.Code)
	}
	return pf, nil
}

// parseLine reads "code,type,amount,min_amount[,description]".
func parseLine(line string) (coupon.Coupon, error) {
	parts := strings.SplitN(line, ",", 5)
	if len(parts) < 4 {
		return coupon.Coupon{}, errors.Errorf("want at least 4 fields, got %d", len(parts))
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "amount")
	}
	minAmount, err := decimal.NewFromString(strings.TrimSpace(parts[3]))
	if err != nil {
		return coupon.Coupon{}, errors.Wrap(err, "min amount")
	}
	c := coupon.Coupon{
		Code:      coupon.NormalizeCode(parts[0]),
		Type:      coupon.DiscountType(strings.ToLower(strings.TrimSpace(parts[1]))),
		Amount:    amount,
		MinAmount: minAmount,
	}
	if len(parts) == 5 {
		c.Description = strings.TrimSpace(parts[4])
	}
	if c.Code == "" {
		return coupon.Coupon{}, errors.New("empty code")
	}
	if err := c.Check(); err != nil {
		return coupon.Coupon{}, err
	}
	return c, nil
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
		fn(scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}
