package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// AmountPrecision is the number of decimal places the ledger keeps (wei-level for 18-decimal currencies).
	AmountPrecision int32 = 18

	// DefaultPlatformFeeBps is the fee a freshly deployed market charges (2.5%).
	DefaultPlatformFeeBps uint32 = 250

	// MaxPlatformFeeBps caps the platform fee at 10%.
	MaxPlatformFeeBps uint32 = 1000

	bpsDenominatorExp int32 = 4 // 10000 basis points
)

// ComputeFee returns amount × bps / 10000, truncated to AmountPrecision the
// way integer division truncates base units on the ledger.
func ComputeFee(amount Amount, bps uint32) Amount {
	return amount.
		Mul(decimal.NewFromInt(int64(bps))).
		Shift(-bpsDenominatorExp).
		Truncate(AmountPrecision)
}

// SplitProceeds splits a final sale amount into the seller's share and the platform fee.
func SplitProceeds(amount Amount, bps uint32) (sellerShare, fee Amount) {
	fee = ComputeFee(amount, bps)
	return amount.Sub(fee), fee
}

// MeetsReserve returns true if a bid meets or exceeds the reserve price.
func MeetsReserve(bid, reserve Amount) bool {
	return bid.GreaterThanOrEqual(reserve)
}

// ValidateAmount rejects negative amounts and amounts with more than
// AmountPrecision decimal places, which no ledger account can hold.
func ValidateAmount(a Amount) error {
	if a.IsNegative() {
		return fmt.Errorf("%w: %s is negative", ErrInvalidAmount, a)
	}
	if !a.Equal(a.Truncate(AmountPrecision)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrInvalidAmount, a, AmountPrecision)
	}
	return nil
}

// ValidateFeeBps rejects fee rates above MaxPlatformFeeBps.
func ValidateFeeBps(bps uint32) error {
	if bps > MaxPlatformFeeBps {
		return fmt.Errorf("%w: %d bps", ErrFeeTooHigh, bps)
	}
	return nil
}

// SetPlatformFee updates the global fee rate. Open auctions settle at the rate
// in effect when they are ended, not the rate at creation.
func (m *Market) SetPlatformFee(call Call, bps uint32) error {
	if err := m.Authorize(call.Caller); err != nil {
		return err
	}
	if err := ValidateFeeBps(bps); err != nil {
		return err
	}

	previous := m.feeBps
	m.feeBps = bps
	m.emit(Event{
		Kind:   EventPlatformFeeUpdated,
		Actor:  call.Caller,
		Amount: decimal.NewFromInt(int64(bps)),
		Detail: fmt.Sprintf("%d->%d", previous, bps),
	})
	return nil
}

// PlatformFeeBps returns the fee rate currently in effect.
func (m *Market) PlatformFeeBps() uint32 { return m.feeBps }

// AccumulatedFees returns the platform fees held for currency.
func (m *Market) AccumulatedFees(currency Currency) Amount {
	return m.fees[currency]
}

// WithdrawFees sends the accumulated platform fees in currency to the owner.
// A zero balance is a successful no-op.
func (m *Market) WithdrawFees(call Call, currency Currency) (Amount, error) {
	if err := m.Authorize(call.Caller); err != nil {
		return decimal.Zero, err
	}
	if err := m.checkCurrency(currency); err != nil {
		return decimal.Zero, err
	}

	amount := m.fees[currency]
	if !amount.IsPositive() {
		return decimal.Zero, nil
	}

	// Effect before transfer; restored if the payout fails.
	delete(m.fees, currency)
	if err := m.payout(currency, call.Caller, amount); err != nil {
		m.fees[currency] = amount
		return decimal.Zero, err
	}

	m.emit(Event{
		Kind:     EventFeesWithdrawn,
		Actor:    call.Caller,
		Amount:   amount,
		Currency: currency,
	})
	return amount, nil
}
