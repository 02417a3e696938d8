package quote

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind selects which price a request wants.
type Kind string

const (
	// KindEntry asks for the open of the first session strictly after a
	// reference timestamp.
	KindEntry Kind = "entry"
	// KindLatest asks for the close of the last completed session.
	KindLatest Kind = "latest"
)

// Request is one element of an incoming batch. Requests are created per
// batch call and discarded with the response.
type Request struct {
	Symbol         string
	Kind           Kind
	TweetTimestamp *time.Time // required for KindEntry
}

// Result is a successfully resolved request.
type Result struct {
	Symbol string
	Kind   Kind
	Price  decimal.Decimal
	AsOf   string // YYYY-MM-DD
}

// Error is a per-request failure. It never aborts sibling requests.
type Error struct {
	Symbol  string
	Kind    Kind
	Message string
}

// Resolution is the outcome of one upstream lookup: a price point or an
// explicit absence. Absence is distinct from transport errors, which the
// retrier has already absorbed by the time a Resolution exists. Resolutions
// are immutable once produced; refreshes replace them wholesale.
type Resolution struct {
	Price  decimal.Decimal `json:"price"`
	AsOf   string          `json:"asof"`
	Absent bool            `json:"absent,omitempty"`
}

// MarkAbsent is the explicit no-value-available outcome.
func MarkAbsent() Resolution { return Resolution{Absent: true} }
