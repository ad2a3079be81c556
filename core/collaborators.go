package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// AssetRegistry is the non-fungible ownership capability the market calls into.
// Reserve and Release accept only the registered market address as caller.
type AssetRegistry interface {
	OwnerOf(asset AssetID) (Address, error)

	// Reserve atomically checks that seller owns asset and that no lock is
	// held, then stores a fresh lock token in the asset record.
	Reserve(market Address, asset AssetID, seller Address) (LockToken, error)

	// Release clears the lock. A non-empty to transfers the asset to that
	// address in the same step.
	Release(market Address, asset AssetID, lock LockToken, to Address) error
}

// ValueLedger moves native value between accounts.
type ValueLedger interface {
	BalanceOf(account Address) Amount
	Transfer(from, to Address, amount Amount) error
}

// TokenLedger is the fungible token used by alternate-currency auctions.
type TokenLedger interface {
	Address() Address
	BalanceOf(account Address) Amount
	Allowance(owner, spender Address) Amount
	Transfer(from, to Address, amount Amount) error
	TransferFrom(spender, from, to Address, amount Amount) error
}

// PriceOracle is a read-only USD price feed. It is advisory only.
type PriceOracle interface {
	LatestPrice() (decimal.Decimal, error)
}

// Clock returns the commit instant of the transaction being executed.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
