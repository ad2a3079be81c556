package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PendingReturn returns the refundable balance of bidder in auction id.
func (m *Market) PendingReturn(bidder Address, id AuctionID) Amount {
	return m.pending[pendingKey{bidder: bidder, auction: id}]
}

// Proceeds returns the settled sale proceeds seller can withdraw in currency.
func (m *Market) Proceeds(seller Address, currency Currency) Amount {
	return m.proceeds[proceedsKey{seller: seller, currency: currency}]
}

// ClaimRefund pays out the caller's whole pending return for auction id.
// The entry is removed before the transfer, so a second claim finds nothing.
func (m *Market) ClaimRefund(call Call, id AuctionID) (Amount, error) {
	a, err := m.lookup(id)
	if err != nil {
		return decimal.Zero, err
	}

	key := pendingKey{bidder: call.Caller, auction: id}
	amount, ok := m.pending[key]
	if !ok || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: auction %d", ErrNoRefundAvailable, id)
	}

	delete(m.pending, key)
	if err := m.payout(a.Currency, call.Caller, amount); err != nil {
		m.pending[key] = amount
		return decimal.Zero, err
	}

	m.emit(Event{
		Kind:      EventRefundClaimed,
		AuctionID: id,
		Actor:     call.Caller,
		Amount:    amount,
		Currency:  a.Currency,
	})
	return amount, nil
}

// WithdrawProceeds pays out the caller's settled sale proceeds in currency.
func (m *Market) WithdrawProceeds(call Call, currency Currency) (Amount, error) {
	if err := m.checkCurrency(currency); err != nil {
		return decimal.Zero, err
	}

	key := proceedsKey{seller: call.Caller, currency: currency}
	amount, ok := m.proceeds[key]
	if !ok || !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrNoProceedsAvailable, currency)
	}

	delete(m.proceeds, key)
	if err := m.payout(currency, call.Caller, amount); err != nil {
		m.proceeds[key] = amount
		return decimal.Zero, err
	}

	m.emit(Event{
		Kind:     EventProceedsWithdrawn,
		Actor:    call.Caller,
		Amount:   amount,
		Currency: currency,
	})
	return amount, nil
}

// collect moves a bid from the bidder into the market's escrow account.
func (m *Market) collect(a *Auction, bidder Address, amount Amount) error {
	if !a.UsesToken() {
		if err := m.deps.Bank.Transfer(bidder, m.address, amount); err != nil {
			return fmt.Errorf("%w: escrow bid: %w", ErrTransferFailed, err)
		}
		return nil
	}

	token := m.deps.Token
	if token == nil || TokenCurrency(token.Address()) != a.Currency {
		return fmt.Errorf("%w: %s", ErrUnknownCurrency, a.Currency)
	}
	if token.Allowance(bidder, m.address).LessThan(amount) {
		return fmt.Errorf("%w: need %s", ErrInsufficientAllowance, amount)
	}
	if err := token.TransferFrom(m.address, bidder, m.address, amount); err != nil {
		return fmt.Errorf("%w: pull tokens: %w", ErrTransferFailed, err)
	}
	return nil
}

// payout sends amount of currency from escrow to to.
func (m *Market) payout(currency Currency, to Address, amount Amount) error {
	var err error
	if currency == NativeCurrency {
		err = m.deps.Bank.Transfer(m.address, to, amount)
	} else {
		if cerr := m.checkCurrency(currency); cerr != nil {
			return cerr
		}
		err = m.deps.Token.Transfer(m.address, to, amount)
	}
	if err != nil {
		return fmt.Errorf("%w: payout to %s: %w", ErrTransferFailed, to, err)
	}
	return nil
}

func (m *Market) checkCurrency(currency Currency) error {
	if currency == NativeCurrency {
		return nil
	}
	if m.deps.Token != nil && TokenCurrency(m.deps.Token.Address()) == currency {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnknownCurrency, currency)
}

// Currencies returns the currencies the market settles in.
func (m *Market) Currencies() []Currency {
	out := []Currency{NativeCurrency}
	if m.deps.Token != nil {
		out = append(out, TokenCurrency(m.deps.Token.Address()))
	}
	return out
}

// EscrowLiabilities returns everything the market owes in currency: open
// highest bids, pending returns, unpaid seller proceeds and unpaid fees.
func (m *Market) EscrowLiabilities(currency Currency) Amount {
	total := decimal.Zero
	for _, a := range m.auctions {
		if a.Currency == currency && !a.Ended {
			total = total.Add(a.HighestBid)
		}
	}
	for key, amount := range m.pending {
		if m.auctions[key.auction].Currency == currency {
			total = total.Add(amount)
		}
	}
	for key, amount := range m.proceeds {
		if key.currency == currency {
			total = total.Add(amount)
		}
	}
	return total.Add(m.AccumulatedFees(currency))
}

// Audit checks escrow conservation: for every currency, the market's ledger
// balance equals its liabilities.
func (m *Market) Audit() error {
	for _, currency := range m.Currencies() {
		var held Amount
		if currency == NativeCurrency {
			held = m.deps.Bank.BalanceOf(m.address)
		} else {
			held = m.deps.Token.BalanceOf(m.address)
		}
		owed := m.EscrowLiabilities(currency)
		if !held.Equal(owed) {
			return fmt.Errorf("escrow imbalance in %s: held %s, owed %s", currency, held, owed)
		}
	}
	return nil
}
