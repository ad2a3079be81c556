package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
)

// Bank holds native balances. It implements core.ValueLedger.
type Bank struct {
	balances map[core.Address]core.Amount
	supply   core.Amount
}

func NewBank() *Bank {
	return &Bank{
		balances: make(map[core.Address]core.Amount),
		supply:   decimal.Zero,
	}
}

// Credit creates value out of thin air. Used for genesis allocations and the
// development faucet.
func (b *Bank) Credit(to core.Address, amount core.Amount) error {
	if err := checkAmount("credit", amount); err != nil {
		return err
	}
	b.balances[to] = b.BalanceOf(to).Add(amount)
	b.supply = b.supply.Add(amount)
	return nil
}

func (b *Bank) BalanceOf(account core.Address) core.Amount {
	return b.balances[account]
}

// Transfer moves amount from one account to another, or nothing at all.
func (b *Bank) Transfer(from, to core.Address, amount core.Amount) error {
	if err := checkAmount("transfer", amount); err != nil {
		return err
	}
	if b.BalanceOf(from).LessThan(amount) {
		return fmt.Errorf("%s has %s, needs %s: %w", from, b.BalanceOf(from), amount, ErrInsufficientBalance)
	}
	b.balances[from] = b.BalanceOf(from).Sub(amount)
	b.balances[to] = b.BalanceOf(to).Add(amount)
	return nil
}

// TotalSupply returns all value ever credited.
func (b *Bank) TotalSupply() core.Amount {
	return b.supply
}

// checkAmount rejects negative amounts and amounts below the ledger's
// smallest unit.
func checkAmount(op string, amount core.Amount) error {
	if amount.IsNegative() {
		return fmt.Errorf("%s %s: %w", op, amount, ErrNegativeAmount)
	}
	if err := core.ValidateAmount(amount); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
