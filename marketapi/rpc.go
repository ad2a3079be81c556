package marketapi

import (
	"time"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/donation"
)

// JSON-RPC service names registered by marketd.
const (
	MarketService   = "market"
	LedgerService   = "ledger"
	DonationService = "donation"
)

// Every mutating call names its caller and the native value attached,
// the way a signed transaction would.

type EmptyArgs struct{}

type EmptyReply struct{}

type AmountReply struct {
	Amount core.Amount `json:"amount"`
}

// market service

type CreateAuctionArgs struct {
	Caller          core.Address `json:"caller"`
	Value           core.Amount  `json:"value"`
	AssetID         core.AssetID `json:"asset_id"`
	StartingPrice   core.Amount  `json:"starting_price"`
	ReservePrice    core.Amount  `json:"reserve_price"`
	DurationSeconds int64        `json:"duration_seconds"`
	UseToken        bool         `json:"use_token"`
}

type CreateAuctionReply struct {
	AuctionID core.AuctionID `json:"auction_id"`
}

type PlaceBidArgs struct {
	Caller    core.Address   `json:"caller"`
	Value     core.Amount    `json:"value"`
	AuctionID core.AuctionID `json:"auction_id"`
	Amount    core.Amount    `json:"amount"` // token auctions only
}

type AuctionArgs struct {
	Caller    core.Address   `json:"caller,omitempty"`
	AuctionID core.AuctionID `json:"auction_id"`
}

type AuctionReply struct {
	Auction core.Auction `json:"auction"`
}

type EndAuctionReply struct {
	Settlement core.Settlement `json:"settlement"`
	// Receipt is absent when the node runs without a receipt signer.
	Receipt *SignedReceipt `json:"receipt,omitempty"`
}

type CurrencyArgs struct {
	Caller   core.Address  `json:"caller"`
	Currency core.Currency `json:"currency"`
}

type SetPlatformFeeArgs struct {
	Caller core.Address `json:"caller"`
	FeeBps uint32       `json:"fee_bps"`
}

type PlatformFeeReply struct {
	FeeBps      uint32                        `json:"fee_bps"`
	Accumulated map[core.Currency]core.Amount `json:"accumulated"`
}

type PendingReturnArgs struct {
	Bidder    core.Address   `json:"bidder"`
	AuctionID core.AuctionID `json:"auction_id"`
}

type ProceedsArgs struct {
	Seller   core.Address  `json:"seller"`
	Currency core.Currency `json:"currency"`
}

type EventsArgs struct {
	FromSeq uint64 `json:"from_seq"`
}

type EventsReply struct {
	Events []core.Event `json:"events"`
	Head   string       `json:"head"`
}

type PricesReply struct {
	Prices core.Prices `json:"prices"`
}

type ValuationReply struct {
	AuctionID core.AuctionID `json:"auction_id"`
	USD       core.Amount    `json:"usd"`
}

type AuditReply struct {
	Balanced bool   `json:"balanced"`
	Detail   string `json:"detail,omitempty"`
	Height   uint64 `json:"height"`
}

// ledger service

type FundArgs struct {
	Account core.Address `json:"account"`
	Amount  core.Amount  `json:"amount"`
}

type AccountArgs struct {
	Account core.Address `json:"account"`
}

type BalanceReply struct {
	Account core.Address `json:"account"`
	Balance core.Amount  `json:"balance"`
}

type MintAssetArgs struct {
	Caller core.Address `json:"caller"`
	To     core.Address `json:"to"`
}

type AssetArgs struct {
	AssetID core.AssetID `json:"asset_id"`
}

type AssetReply struct {
	AssetID   core.AssetID `json:"asset_id"`
	Owner     core.Address `json:"owner"`
	TokenURI  string       `json:"token_uri"`
	OnAuction bool         `json:"on_auction"`
}

type SetApprovalForAllArgs struct {
	Caller   core.Address `json:"caller"`
	Operator core.Address `json:"operator"`
	Approved bool         `json:"approved"`
}

type TransferAssetArgs struct {
	Caller  core.Address `json:"caller"`
	AssetID core.AssetID `json:"asset_id"`
	To      core.Address `json:"to"`
}

type TransferTokenArgs struct {
	Caller core.Address `json:"caller"`
	To     core.Address `json:"to"`
	Amount core.Amount  `json:"amount"`
}

type ApproveTokenArgs struct {
	Caller  core.Address `json:"caller"`
	Spender core.Address `json:"spender"`
	Amount  core.Amount  `json:"amount"`
}

type TokenBalanceReply struct {
	Account   core.Address `json:"account"`
	Balance   core.Amount  `json:"balance"`
	Allowance core.Amount  `json:"market_allowance"`
}

// Feed names accepted by ledger.SetPrice.
const (
	NativeFeed = "native"
	TokenFeed  = "token"
)

type SetPriceArgs struct {
	Feed  string      `json:"feed"`
	Price core.Amount `json:"price"`
}

type AdvanceTimeArgs struct {
	Seconds int64 `json:"seconds"`
}

type InfoReply struct {
	Deployment Deployment `json:"deployment"`
	Height     uint64     `json:"height"`
	BlockTime  time.Time  `json:"block_time"`
}

// donation service

type DonateArgs struct {
	Caller core.Address `json:"caller"`
	Value  core.Amount  `json:"value"`
}

type DonationArgs struct {
	Donor core.Address `json:"donor"`
}

type DonationReply struct {
	Donor  core.Address `json:"donor"`
	Amount core.Amount  `json:"amount"`
	Total  core.Amount  `json:"total"`
}

type TopDonorsReply struct {
	Donors []donation.Donor `json:"donors"`
}

type CallerArgs struct {
	Caller core.Address `json:"caller"`
}

type SetWindowArgs struct {
	Caller core.Address `json:"caller"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"` // zero for no end
}
