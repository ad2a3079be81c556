package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
)

const (
	TokenName     = "Auction Token"
	TokenSymbol   = "AUC"
	TokenDecimals = 18
)

// DefaultTokenSupply is minted to the token owner at deployment.
var DefaultTokenSupply = decimal.NewFromInt(1_000_000)

type allowanceKey struct {
	owner, spender core.Address
}

// Token is the fungible payment token for alternate-currency auctions. It
// implements core.TokenLedger.
type Token struct {
	core.Ownable

	address    core.Address
	supply     core.Amount
	balances   map[core.Address]core.Amount
	allowances map[allowanceKey]core.Amount
}

// NewToken deploys the token at address and mints initialSupply to owner.
func NewToken(address, owner core.Address, initialSupply core.Amount) (*Token, error) {
	if err := checkAmount("initial supply", initialSupply); err != nil {
		return nil, err
	}
	t := &Token{
		Ownable:    core.NewOwnable(owner),
		address:    address,
		supply:     decimal.Zero,
		balances:   make(map[core.Address]core.Amount),
		allowances: make(map[allowanceKey]core.Amount),
	}
	t.mint(owner, initialSupply)
	return t, nil
}

func (t *Token) Address() core.Address { return t.address }
func (t *Token) Name() string          { return TokenName }
func (t *Token) Symbol() string        { return TokenSymbol }
func (t *Token) Decimals() uint8       { return TokenDecimals }
func (t *Token) TotalSupply() core.Amount {
	return t.supply
}

func (t *Token) BalanceOf(account core.Address) core.Amount {
	return t.balances[account]
}

func (t *Token) Allowance(owner, spender core.Address) core.Amount {
	return t.allowances[allowanceKey{owner, spender}]
}

// Approve sets (not adds to) the amount spender may pull from owner.
func (t *Token) Approve(owner, spender core.Address, amount core.Amount) error {
	if err := checkAmount("approve", amount); err != nil {
		return err
	}
	t.allowances[allowanceKey{owner, spender}] = amount
	return nil
}

func (t *Token) Transfer(from, to core.Address, amount core.Amount) error {
	if err := checkAmount("transfer", amount); err != nil {
		return err
	}
	if t.BalanceOf(from).LessThan(amount) {
		return fmt.Errorf("%s has %s %s, needs %s: %w", from, t.BalanceOf(from), TokenSymbol, amount, ErrInsufficientBalance)
	}
	t.balances[from] = t.BalanceOf(from).Sub(amount)
	t.balances[to] = t.BalanceOf(to).Add(amount)
	return nil
}

// TransferFrom moves amount from one account to another on behalf of spender
// and spends the allowance.
func (t *Token) TransferFrom(spender, from, to core.Address, amount core.Amount) error {
	if err := checkAmount("transfer", amount); err != nil {
		return err
	}
	key := allowanceKey{from, spender}
	allowed := t.allowances[key]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%s may spend %s of %s: %w", spender, allowed, from, ErrAllowanceExceeded)
	}
	if err := t.Transfer(from, to, amount); err != nil {
		return err
	}
	t.allowances[key] = allowed.Sub(amount)
	return nil
}

// Mint creates new tokens. Owner only.
func (t *Token) Mint(caller, to core.Address, amount core.Amount) error {
	if err := t.Authorize(caller); err != nil {
		return err
	}
	if err := checkAmount("mint", amount); err != nil {
		return err
	}
	t.mint(to, amount)
	return nil
}

func (t *Token) mint(to core.Address, amount core.Amount) {
	t.balances[to] = t.BalanceOf(to).Add(amount)
	t.supply = t.supply.Add(amount)
}
