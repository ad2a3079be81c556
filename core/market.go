package core

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
)

// MarketConfig holds the deployment parameters of a market.
type MarketConfig struct {
	// Address is the market's own account on the host ledger. Escrowed value is held here.
	Address Address
	// Owner receives platform fees and may change the fee rate.
	Owner Address
	// PlatformFeeBps defaults to DefaultPlatformFeeBps when nil.
	PlatformFeeBps *uint32
}

// Collaborators are the capabilities the market calls into but does not own.
type Collaborators struct {
	Assets AssetRegistry
	Bank   ValueLedger
	Token  TokenLedger // may be nil; token auctions are then rejected

	NativeFeed PriceOracle // advisory, may be nil
	TokenFeed  PriceOracle // advisory, may be nil

	Clock Clock
}

type pendingKey struct {
	bidder  Address
	auction AuctionID
}

type proceedsKey struct {
	seller   Address
	currency Currency
}

// Market is the auction market state machine. It is not safe for concurrent
// use: the host ledger executes one call at a time.
type Market struct {
	Ownable

	address Address
	deps    Collaborators
	clock   Clock

	nextID   AuctionID
	auctions map[AuctionID]*Auction
	locks    map[AuctionID]LockToken

	pending  map[pendingKey]Amount
	proceeds map[proceedsKey]Amount
	fees     map[Currency]Amount
	feeBps   uint32

	log *eventLog
}

// NewMarket creates an empty market. Auction ids start at 1.
func NewMarket(cfg MarketConfig, deps Collaborators) (*Market, error) {
	if cfg.Address.IsZero() {
		return nil, fmt.Errorf("%w: market address", ErrMissingCollaborator)
	}
	if deps.Assets == nil {
		return nil, fmt.Errorf("%w: asset registry", ErrMissingCollaborator)
	}
	if deps.Bank == nil {
		return nil, fmt.Errorf("%w: value ledger", ErrMissingCollaborator)
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("%w: clock", ErrMissingCollaborator)
	}

	feeBps := DefaultPlatformFeeBps
	if cfg.PlatformFeeBps != nil {
		if err := ValidateFeeBps(*cfg.PlatformFeeBps); err != nil {
			return nil, err
		}
		feeBps = *cfg.PlatformFeeBps
	}

	return &Market{
		Ownable:  NewOwnable(cfg.Owner),
		address:  cfg.Address,
		deps:     deps,
		clock:    deps.Clock,
		nextID:   1,
		auctions: make(map[AuctionID]*Auction),
		locks:    make(map[AuctionID]LockToken),
		pending:  make(map[pendingKey]Amount),
		proceeds: make(map[proceedsKey]Amount),
		fees:     make(map[Currency]Amount),
		feeBps:   feeBps,
		log:      newEventLog(),
	}, nil
}

// Address returns the market's ledger account.
func (m *Market) Address() Address { return m.address }

// CreateAuction opens a new auction for an asset the caller owns and locks the
// asset in the registry until settlement.
func (m *Market) CreateAuction(call Call, p CreateAuctionParams) (AuctionID, error) {
	if p.Duration <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDuration, p.Duration)
	}
	if err := ValidateAmount(p.StartingPrice); err != nil {
		return 0, fmt.Errorf("starting price: %w", err)
	}
	if err := ValidateAmount(p.ReservePrice); err != nil {
		return 0, fmt.Errorf("reserve price: %w", err)
	}
	if call.Value.IsPositive() {
		return 0, fmt.Errorf("%w: createAuction does not accept value", ErrInvalidPayment)
	}

	currency := NativeCurrency
	if p.UseToken {
		if m.deps.Token == nil {
			return 0, fmt.Errorf("%w: no payment token configured", ErrUnknownCurrency)
		}
		currency = TokenCurrency(m.deps.Token.Address())
	}

	owner, err := m.deps.Assets.OwnerOf(p.AssetID)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrNotOwner, err)
	}
	if owner != call.Caller {
		return 0, fmt.Errorf("%w: asset %d", ErrNotOwner, p.AssetID)
	}

	// Acquire the exclusive lock before any value-affecting work.
	lock, err := m.deps.Assets.Reserve(m.address, p.AssetID, call.Caller)
	if err != nil {
		return 0, fmt.Errorf("reserve asset %d: %w", p.AssetID, err)
	}

	now := m.clock.Now()
	id := m.nextID
	m.nextID++

	m.auctions[id] = &Auction{
		ID:            id,
		AssetID:       p.AssetID,
		Seller:        call.Caller,
		StartingPrice: p.StartingPrice,
		ReservePrice:  p.ReservePrice,
		EndTime:       now.Add(p.Duration),
		Currency:      currency,
		HighestBid:    decimal.Zero,
		Deposited:     decimal.Zero,
	}
	m.locks[id] = lock

	m.emit(Event{
		Kind:      EventAuctionCreated,
		AuctionID: id,
		Actor:     call.Caller,
		Amount:    p.StartingPrice,
		Currency:  currency,
		Detail:    fmt.Sprintf("asset=%d", p.AssetID),
		Time:      now,
	})
	return id, nil
}

// PlaceBid escrows a new highest bid. Native auctions bid call.Value; token
// auctions bid amount, pulled from the caller's pre-approved allowance.
// The displaced highest bid becomes a pending return for its bidder.
func (m *Market) PlaceBid(call Call, id AuctionID, amount Amount) error {
	a, err := m.lookup(id)
	if err != nil {
		return err
	}
	now := m.clock.Now()
	if !a.isOpen(now) {
		return fmt.Errorf("%w: auction %d", ErrAuctionNotOpen, id)
	}

	bid, err := bidValue(a, call, amount)
	if err != nil {
		return err
	}
	if !bid.GreaterThan(a.HighestBid) {
		return fmt.Errorf("%w: %s does not exceed highest bid %s", ErrBidTooLow, bid, a.HighestBid)
	}
	if !a.HasBid() && bid.LessThan(a.StartingPrice) {
		return fmt.Errorf("%w: bid below starting price %s", ErrBidTooLow, a.StartingPrice)
	}

	// Pull funds first: a failed pull leaves the auction untouched.
	if err := m.collect(a, call.Caller, bid); err != nil {
		return err
	}

	if a.HasBid() {
		key := pendingKey{bidder: a.HighestBidder, auction: id}
		m.pending[key] = m.PendingReturn(a.HighestBidder, id).Add(a.HighestBid)
	}
	a.HighestBid = bid
	a.HighestBidder = call.Caller
	a.Deposited = a.Deposited.Add(bid)

	m.emit(Event{
		Kind:      EventBidPlaced,
		AuctionID: id,
		Actor:     call.Caller,
		Amount:    bid,
		Currency:  a.Currency,
		Time:      now,
	})
	return nil
}

// bidValue resolves the bid amount from the payment style of the auction.
func bidValue(a *Auction, call Call, amount Amount) (Amount, error) {
	if a.UsesToken() {
		if call.Value.IsPositive() {
			return decimal.Zero, fmt.Errorf("%w: token auction does not accept native value", ErrInvalidPayment)
		}
		if err := ValidateAmount(amount); err != nil {
			return decimal.Zero, err
		}
		return amount, nil
	}

	if !amount.IsZero() && !amount.Equal(call.Value) {
		return decimal.Zero, fmt.Errorf("%w: native auction bids the attached value", ErrInvalidPayment)
	}
	if err := ValidateAmount(call.Value); err != nil {
		return decimal.Zero, err
	}
	return call.Value, nil
}

// EndAuction settles an auction once its end time has passed, or at any time
// when called by the seller. The seller may end early even below reserve; in
// that case the sale only executes if the reserve is met.
func (m *Market) EndAuction(call Call, id AuctionID) (*Settlement, error) {
	a, err := m.lookup(id)
	if err != nil {
		return nil, err
	}
	if a.Ended {
		return nil, fmt.Errorf("%w: auction %d", ErrAlreadyEnded, id)
	}
	now := m.clock.Now()
	if now.Before(a.EndTime) && call.Caller != a.Seller {
		return nil, fmt.Errorf("%w: auction %d ends at %s", ErrEndTooEarly, id, a.EndTime.UTC().Format("2006-01-02T15:04:05Z"))
	}

	settlement := &Settlement{
		AuctionID:      id,
		AssetID:        a.AssetID,
		Seller:         a.Seller,
		FinalAmount:    decimal.Zero,
		Fee:            decimal.Zero,
		SellerProceeds: decimal.Zero,
		Refunded:       decimal.Zero,
		FeeBps:         m.feeBps,
		Currency:       a.Currency,
		SettledAt:      now,
	}

	sale := a.HasBid() && MeetsReserve(a.HighestBid, a.ReservePrice)

	// Release the lock, transferring the asset on a sale. This is the only
	// step that can fail, so nothing has been mutated yet.
	to := NoAddress
	if sale {
		to = a.HighestBidder
	}
	if err := m.deps.Assets.Release(m.address, a.AssetID, m.locks[id], to); err != nil {
		return nil, fmt.Errorf("%w: release asset %d: %w", ErrTransferFailed, a.AssetID, err)
	}
	delete(m.locks, id)
	a.Ended = true

	if sale {
		sellerShare, fee := SplitProceeds(a.HighestBid, m.feeBps)
		key := proceedsKey{seller: a.Seller, currency: a.Currency}
		m.proceeds[key] = m.Proceeds(a.Seller, a.Currency).Add(sellerShare)
		m.fees[a.Currency] = m.AccumulatedFees(a.Currency).Add(fee)

		settlement.Winner = a.HighestBidder
		settlement.FinalAmount = a.HighestBid
		settlement.Fee = fee
		settlement.SellerProceeds = sellerShare
		settlement.ReserveMet = true
	} else if a.HasBid() {
		key := pendingKey{bidder: a.HighestBidder, auction: id}
		m.pending[key] = m.PendingReturn(a.HighestBidder, id).Add(a.HighestBid)
		settlement.Refunded = a.HighestBid
	}

	e := m.emit(Event{
		Kind:         EventAuctionEnded,
		AuctionID:    id,
		Actor:        call.Caller,
		Counterparty: settlement.Winner,
		Amount:       settlement.FinalAmount,
		Currency:     a.Currency,
		Time:         now,
	})
	settlement.EventHash = e.Hash
	return settlement, nil
}

// Auction returns a copy of the auction state.
func (m *Market) Auction(id AuctionID) (Auction, error) {
	a, err := m.lookup(id)
	if err != nil {
		return Auction{}, err
	}
	return *a, nil
}

// Auctions returns copies of all auctions ordered by id.
func (m *Market) Auctions() []Auction {
	out := make([]Auction, 0, len(m.auctions))
	for _, a := range m.auctions {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// NextAuctionID returns the id the next CreateAuction will allocate.
func (m *Market) NextAuctionID() AuctionID { return m.nextID }

func (m *Market) lookup(id AuctionID) (*Auction, error) {
	a, ok := m.auctions[id]
	if !ok {
		return nil, fmt.Errorf("auction %d: %w: %w", id, ErrAuctionNotFound, ErrAuctionNotOpen)
	}
	return a, nil
}
