package quote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"marketproxy/internal/eodhd"
	"marketproxy/internal/retry"
	"marketproxy/internal/symbol"
)

// DividendSource is the slice of the upstream client dividend queries need.
type DividendSource interface {
	Dividends(ctx context.Context, symbol string, from time.Time) ([]eodhd.Dividend, error)
}

// DividendRow is one payout, oldest first in responses.
type DividendRow struct {
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
}

// DefaultRange is the trailing window used when none is given.
const DefaultRange = "5y"

// ErrBadRange marks an unparseable trailing-range argument.
var ErrBadRange = errors.New("invalid range")

// ParseRange converts a trailing range of the form "<N>y" or "<N>mo" into a
// month count. Empty input means DefaultRange.
func ParseRange(s string) (int, error) {
	if s == "" {
		s = DefaultRange
	}
	var n int
	var err error
	switch {
	case strings.HasSuffix(s, "mo"):
		n, err = strconv.Atoi(strings.TrimSuffix(s, "mo"))
	case strings.HasSuffix(s, "y"):
		n, err = strconv.Atoi(strings.TrimSuffix(s, "y"))
		n *= 12
	default:
		return 0, fmt.Errorf("%w %q: want <N>y or <N>mo", ErrBadRange, s)
	}
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w %q: want <N>y or <N>mo", ErrBadRange, s)
	}
	return n, nil
}

// DividendService serves trailing dividend history.
type DividendService struct {
	src    DividendSource
	policy retry.Policy
	log    *slog.Logger
}

func NewDividendService(src DividendSource, policy retry.Policy, log *slog.Logger) *DividendService {
	return &DividendService{src: src, policy: policy, log: log}
}

// History returns payouts within the trailing range, oldest first.
func (s *DividendService) History(ctx context.Context, sym, rng string) ([]DividendRow, error) {
	months, err := ParseRange(rng)
	if err != nil {
		return nil, err
	}
	canonical := symbol.Normalize(sym)
	from := time.Now().UTC().AddDate(0, -months, 0)

	divs, ok := retry.Do(ctx, s.log, s.policy, "dividends:"+canonical, func(ctx context.Context) ([]eodhd.Dividend, error) {
		return s.src.Dividends(ctx, canonical, from)
	})
	if !ok {
		return nil, fmt.Errorf("could not fetch dividends for %s", canonical)
	}

	// the provider is asked to filter by date, but enforce the cutoff anyway
	cutoff := from.Format(dateLayout)
	rows := make([]DividendRow, 0, len(divs))
	for _, d := range divs {
		if d.Date < cutoff {
			continue
		}
		rows = append(rows, DividendRow{Date: d.Date, Amount: d.Value})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date < rows[j].Date })
	return rows, nil
}
