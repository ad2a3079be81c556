package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address identifies an account on the host ledger (wallets and contracts alike).
// The empty address means "none".
type Address string

// NoAddress is the zero identity, used for "no highest bidder" and "no winner".
const NoAddress Address = ""

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool { return a == NoAddress }

// Amount is a monetary quantity in whole currency units (1 = 1 ETH or 1 AUC).
type Amount = decimal.Decimal

// AuctionID identifies an auction. IDs start at 1; 0 is reserved as "no auction".
type AuctionID uint64

// AssetID identifies a non-fungible asset inside the asset registry.
type AssetID uint64

// LockToken is the exclusive auction lock stored in an asset's registry record.
type LockToken string

// Currency selects how an auction is paid.
type Currency string

// NativeCurrency is the ledger's native value (ETH-like). Token currencies are
// named by the token contract address.
const NativeCurrency Currency = "native"

// TokenCurrency returns the currency for the fungible token at addr.
func TokenCurrency(addr Address) Currency { return Currency(addr) }

// Call carries the transaction context of an external call: who sent it and
// how much native value was attached.
type Call struct {
	Caller Address
	Value  Amount
}

// Auction is the state of a single auction.
type Auction struct {
	ID            AuctionID `json:"auction_id"`
	AssetID       AssetID   `json:"asset_id"`
	Seller        Address   `json:"seller"`
	StartingPrice Amount    `json:"starting_price"`
	ReservePrice  Amount    `json:"reserve_price"`
	EndTime       time.Time `json:"end_time"`
	Currency      Currency  `json:"currency"`
	HighestBid    Amount    `json:"highest_bid"`
	HighestBidder Address   `json:"highest_bidder,omitempty"`
	Ended         bool      `json:"ended"`

	// Deposited is the total value ever escrowed into this auction.
	Deposited Amount `json:"deposited"`
}

// UsesToken reports whether the auction is paid in the alternate fungible token.
func (a *Auction) UsesToken() bool { return a.Currency != NativeCurrency }

// HasBid reports whether any bid has been accepted.
func (a *Auction) HasBid() bool { return !a.HighestBidder.IsZero() }

// isOpen reports whether bids are still accepted at now.
func (a *Auction) isOpen(now time.Time) bool {
	return !a.Ended && now.Before(a.EndTime)
}

// CreateAuctionParams are the seller-supplied auction terms.
type CreateAuctionParams struct {
	AssetID       AssetID
	StartingPrice Amount
	ReservePrice  Amount
	Duration      time.Duration
	UseToken      bool
}

// Settlement describes the outcome of EndAuction.
type Settlement struct {
	AuctionID      AuctionID `json:"auction_id"`
	AssetID        AssetID   `json:"asset_id"`
	Seller         Address   `json:"seller"`
	Winner         Address   `json:"winner,omitempty"` // empty when no sale
	FinalAmount    Amount    `json:"final_amount"`
	Fee            Amount    `json:"fee"`
	SellerProceeds Amount    `json:"seller_proceeds"`
	FeeBps         uint32    `json:"fee_bps"`
	Currency       Currency  `json:"currency"`
	ReserveMet     bool      `json:"reserve_met"`
	Refunded       Amount    `json:"refunded"` // highest bid returned to the bidder when reserve unmet
	SettledAt      time.Time `json:"settled_at"`
	EventHash      string    `json:"event_hash"`
}

// Prices is an advisory valuation snapshot from the price oracles.
type Prices struct {
	NativeUSD Amount `json:"native_usd"`
	TokenUSD  Amount `json:"token_usd"`
	// Errors from the feeds are reported, never raised.
	NativeError string `json:"native_error,omitempty"`
	TokenError  string `json:"token_error,omitempty"`
}
