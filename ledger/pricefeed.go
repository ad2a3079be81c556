package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
)

// PriceFeed is an advisory USD price oracle. Prices are pushed by an
// operator and read by the market for display only.
type PriceFeed struct {
	description string
	clock       core.Clock
	maxAge      time.Duration // 0 disables the staleness check

	price     decimal.Decimal
	updatedAt time.Time
	round     uint64
}

// NewPriceFeed returns a feed with no price reported yet.
func NewPriceFeed(description string, clock core.Clock, maxAge time.Duration) *PriceFeed {
	return &PriceFeed{description: description, clock: clock, maxAge: maxAge}
}

func (f *PriceFeed) Description() string { return f.description }

// SetPrice publishes a new round.
func (f *PriceFeed) SetPrice(price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("%s: %s: %w", f.description, price, ErrInvalidPrice)
	}
	f.price = price
	f.updatedAt = f.clock.Now()
	f.round++
	return nil
}

// LatestPrice implements core.PriceOracle.
func (f *PriceFeed) LatestPrice() (decimal.Decimal, error) {
	if f.round == 0 {
		return decimal.Zero, fmt.Errorf("%s: %w", f.description, ErrNoPrice)
	}
	if f.maxAge > 0 {
		if age := f.clock.Now().Sub(f.updatedAt); age > f.maxAge {
			return decimal.Zero, fmt.Errorf("%s: updated %s ago: %w", f.description, age, ErrStalePrice)
		}
	}
	return f.price, nil
}

// LatestRound returns the round number and update time of the last price.
func (f *PriceFeed) LatestRound() (uint64, time.Time) {
	return f.round, f.updatedAt
}
