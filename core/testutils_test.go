package core

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/shopspring/decimal"
)

const (
	marketAddr Address = "0xmarket"
	ownerAddr  Address = "0xowner"
	sellerAddr Address = "0xseller"
	bidder1    Address = "0xbidder1"
	bidder2    Address = "0xbidder2"
	tokenAddr  Address = "0xtoken"
)

var tokenCurrency = TokenCurrency(tokenAddr)

func amt(s string) Amount { return decimal.RequireFromString(s) }

// testClock is a manually advanced clock.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// fakeRegistry is an in-memory AssetRegistry.
type fakeRegistry struct {
	owners map[AssetID]Address
	locks  map[AssetID]LockToken
	next   int

	failRelease bool
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{owners: map[AssetID]Address{}, locks: map[AssetID]LockToken{}}
}

func (r *fakeRegistry) OwnerOf(asset AssetID) (Address, error) {
	owner, ok := r.owners[asset]
	if !ok {
		return NoAddress, fmt.Errorf("asset %d does not exist", asset)
	}
	return owner, nil
}

func (r *fakeRegistry) Reserve(market Address, asset AssetID, seller Address) (LockToken, error) {
	if market != marketAddr {
		return "", ErrUnauthorized
	}
	if r.owners[asset] != seller {
		return "", ErrNotOwner
	}
	if _, locked := r.locks[asset]; locked {
		return "", ErrAlreadyOnAuction
	}
	r.next++
	lock := LockToken(fmt.Sprintf("lock-%d", r.next))
	r.locks[asset] = lock
	return lock, nil
}

func (r *fakeRegistry) Release(market Address, asset AssetID, lock LockToken, to Address) error {
	if r.failRelease {
		return errors.New("registry unavailable")
	}
	if r.locks[asset] != lock {
		return errors.New("stale lock")
	}
	delete(r.locks, asset)
	if !to.IsZero() {
		r.owners[asset] = to
	}
	return nil
}

// fakeBank is an in-memory ValueLedger.
type fakeBank struct {
	balances map[Address]Amount
	fail     bool
}

func newFakeBank() *fakeBank { return &fakeBank{balances: map[Address]Amount{}} }

func (b *fakeBank) BalanceOf(a Address) Amount { return b.balances[a] }

func (b *fakeBank) Transfer(from, to Address, amount Amount) error {
	if b.fail {
		return errors.New("bank offline")
	}
	if b.balances[from].LessThan(amount) {
		return errors.New("insufficient balance")
	}
	b.balances[from] = b.balances[from].Sub(amount)
	b.balances[to] = b.balances[to].Add(amount)
	return nil
}

// fakeToken is an in-memory TokenLedger.
type fakeToken struct {
	fakeBank
	allowances map[[2]Address]Amount
}

func newFakeToken() *fakeToken {
	return &fakeToken{fakeBank: *newFakeBank(), allowances: map[[2]Address]Amount{}}
}

func (t *fakeToken) Address() Address { return tokenAddr }

func (t *fakeToken) Allowance(owner, spender Address) Amount {
	return t.allowances[[2]Address{owner, spender}]
}

func (t *fakeToken) Approve(owner, spender Address, amount Amount) {
	t.allowances[[2]Address{owner, spender}] = amount
}

func (t *fakeToken) TransferFrom(spender, from, to Address, amount Amount) error {
	key := [2]Address{from, spender}
	if t.allowances[key].LessThan(amount) {
		return errors.New("allowance exceeded")
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[key] = t.allowances[key].Sub(amount)
	return nil
}

type fakeFeed struct {
	price Amount
	err   error
}

func (f fakeFeed) LatestPrice() (decimal.Decimal, error) { return f.price, f.err }

type testMarket struct {
	*Market
	clock    *testClock
	registry *fakeRegistry
	bank     *fakeBank
	token    *fakeToken
}

// newTestMarket deploys a market with asset 1 owned by the seller and funded
// bidders in both currencies.
func newTestMarket(t *testing.T) *testMarket {
	t.Helper()
	tm := &testMarket{
		clock:    &testClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
		registry: newFakeRegistry(),
		bank:     newFakeBank(),
		token:    newFakeToken(),
	}
	tm.registry.owners[1] = sellerAddr
	tm.registry.owners[2] = sellerAddr
	for _, a := range []Address{bidder1, bidder2, sellerAddr} {
		tm.bank.balances[a] = amt("10")
		tm.token.balances[a] = amt("1000")
	}

	m, err := NewMarket(MarketConfig{Address: marketAddr, Owner: ownerAddr}, Collaborators{
		Assets:     tm.registry,
		Bank:       tm.bank,
		Token:      tm.token,
		NativeFeed: fakeFeed{price: amt("3000")},
		TokenFeed:  fakeFeed{price: amt("0.5")},
		Clock:      tm.clock,
	})
	assert.NoError(t, err)
	tm.Market = m
	return tm
}

func (tm *testMarket) create(t *testing.T, asset AssetID, start, reserve string, useToken bool) AuctionID {
	t.Helper()
	id, err := tm.CreateAuction(Call{Caller: sellerAddr}, CreateAuctionParams{
		AssetID:       asset,
		StartingPrice: amt(start),
		ReservePrice:  amt(reserve),
		Duration:      time.Hour,
		UseToken:      useToken,
	})
	assert.NoError(t, err)
	return id
}

func (tm *testMarket) bid(bidder Address, id AuctionID, value string) error {
	return tm.PlaceBid(Call{Caller: bidder, Value: amt(value)}, id, decimal.Zero)
}

func (tm *testMarket) tokenBid(bidder Address, id AuctionID, amount string) error {
	return tm.PlaceBid(Call{Caller: bidder}, id, amt(amount))
}
