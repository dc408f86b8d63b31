package coupon

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
)

const filterFPR = 0.001

// CodeFilter is a bloom filter over known coupon codes. It answers "this code
// definitely does not exist" without a database round trip, which keeps
// brute-forced or mistyped codes off the hot path. False positives are
// resolved by the repository lookup behind it.
type CodeFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewCodeFilter creates an empty filter sized for the expected number of
// codes.
func NewCodeFilter(expectedCodes uint) *CodeFilter {
	if expectedCodes == 0 {
		expectedCodes = 1
	}
	return &CodeFilter{filter: bloom.NewWithEstimates(expectedCodes, filterFPR)}
}

// WarmCodeFilter builds a filter from every code currently in the repository.
// Called once at startup; newly created coupons are added with Add.
func WarmCodeFilter(ctx context.Context, repo Repository) (*CodeFilter, error) {
	codes, err := repo.ListCodes(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list coupon codes")
	}

	f := NewCodeFilter(uint(max(len(codes), 1)))
	for _, code := range codes {
		f.filter.AddString(NormalizeCode(code))
	}
	return f, nil
}

// MayContain reports whether the code might exist. A false return is
// definitive; a true return must be confirmed by a repository lookup.
func (f *CodeFilter) MayContain(code string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(code)
}

// Add records a newly created coupon code.
func (f *CodeFilter) Add(code string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(NormalizeCode(code))
}
