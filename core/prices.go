package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var errNoFeed = errors.New("price feed not configured")

// CurrentPrices reads both advisory feeds. Feed failures are reported in the
// result and never abort the call.
func (m *Market) CurrentPrices() Prices {
	prices := Prices{NativeUSD: decimal.Zero, TokenUSD: decimal.Zero}

	if p, err := latest(m.deps.NativeFeed); err != nil {
		prices.NativeError = err.Error()
	} else {
		prices.NativeUSD = p
	}

	if p, err := latest(m.deps.TokenFeed); err != nil {
		prices.TokenError = err.Error()
	} else {
		prices.TokenUSD = p
	}
	return prices
}

// Valuation returns the highest bid of an auction in USD.
func (m *Market) Valuation(id AuctionID) (decimal.Decimal, error) {
	a, err := m.lookup(id)
	if err != nil {
		return decimal.Zero, err
	}

	feed := m.deps.NativeFeed
	if a.UsesToken() {
		feed = m.deps.TokenFeed
	}
	price, err := latest(feed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("value auction %d: %w", id, err)
	}
	return a.HighestBid.Mul(price).Round(2), nil
}

func latest(feed PriceOracle) (decimal.Decimal, error) {
	if feed == nil {
		return decimal.Zero, errNoFeed
	}
	return feed.LatestPrice()
}
