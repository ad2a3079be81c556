package donation

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
)

// TopDonorCount is the size of the leaderboard.
const TopDonorCount = 3

var (
	ErrZeroDonation  = errors.New("donation amount must be greater than 0")
	ErrOutsideWindow = errors.New("donations are not open")
	ErrInvalidWindow = errors.New("start time must be before end time")
)

// Donor is one leaderboard entry.
type Donor struct {
	Address core.Address `json:"address"`
	Amount  core.Amount  `json:"amount"`
}

// Box collects native-value donations for its owner.
type Box struct {
	core.Ownable

	address core.Address
	bank    core.ValueLedger
	clock   core.Clock

	donations map[core.Address]core.Amount
	order     []core.Address // first-donation order, for stable ties
	total     core.Amount

	start, end time.Time // zero end means no end
}

// NewBox deploys a donation box accepting donations at any time.
func NewBox(address, owner core.Address, bank core.ValueLedger, clock core.Clock) (*Box, error) {
	if address.IsZero() || bank == nil || clock == nil {
		return nil, fmt.Errorf("donation box: %w", core.ErrMissingCollaborator)
	}
	return &Box{
		Ownable:   core.NewOwnable(owner),
		address:   address,
		bank:      bank,
		clock:     clock,
		donations: make(map[core.Address]core.Amount),
		total:     decimal.Zero,
	}, nil
}

func (b *Box) Address() core.Address { return b.address }

// Donate moves the attached value into the box and credits the caller.
func (b *Box) Donate(call core.Call) error {
	if !call.Value.IsPositive() {
		return ErrZeroDonation
	}
	if !b.open(b.clock.Now()) {
		return fmt.Errorf("%w: window %s", ErrOutsideWindow, b.windowString())
	}
	if err := b.bank.Transfer(call.Caller, b.address, call.Value); err != nil {
		return fmt.Errorf("%w: donation: %w", core.ErrTransferFailed, err)
	}

	prev, seen := b.donations[call.Caller]
	if !seen {
		b.order = append(b.order, call.Caller)
	}
	b.donations[call.Caller] = prev.Add(call.Value)
	b.total = b.total.Add(call.Value)
	return nil
}

// DonationOf returns the cumulative donations of donor.
func (b *Box) DonationOf(donor core.Address) core.Amount {
	return b.donations[donor]
}

// Total returns all value ever donated.
func (b *Box) Total() core.Amount { return b.total }

// Withdraw sends the whole balance of the box to the owner.
func (b *Box) Withdraw(call core.Call) (core.Amount, error) {
	if err := b.Authorize(call.Caller); err != nil {
		return decimal.Zero, err
	}
	balance := b.bank.BalanceOf(b.address)
	if !balance.IsPositive() {
		return decimal.Zero, nil
	}
	if err := b.bank.Transfer(b.address, call.Caller, balance); err != nil {
		return decimal.Zero, fmt.Errorf("%w: withdraw: %w", core.ErrTransferFailed, err)
	}
	return balance, nil
}

// TopDonors returns up to TopDonorCount donors by cumulative amount.
// Equal amounts keep first-donation order.
func (b *Box) TopDonors() []Donor {
	donors := make([]Donor, 0, len(b.order))
	for _, a := range b.order {
		donors = append(donors, Donor{Address: a, Amount: b.donations[a]})
	}
	sort.SliceStable(donors, func(i, j int) bool {
		return donors[i].Amount.GreaterThan(donors[j].Amount)
	})
	if len(donors) > TopDonorCount {
		donors = donors[:TopDonorCount]
	}
	return donors
}

// SetDonationWindow limits donations to [start, end). A zero end removes the
// upper bound. Owner only.
func (b *Box) SetDonationWindow(call core.Call, start, end time.Time) error {
	if err := b.Authorize(call.Caller); err != nil {
		return err
	}
	if !end.IsZero() && !start.Before(end) {
		return fmt.Errorf("%w: %s >= %s", ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	b.start, b.end = start, end
	return nil
}

// Window returns the donation window. A zero end means unbounded.
func (b *Box) Window() (start, end time.Time) {
	return b.start, b.end
}

func (b *Box) open(now time.Time) bool {
	if now.Before(b.start) {
		return false
	}
	return b.end.IsZero() || now.Before(b.end)
}

func (b *Box) windowString() string {
	if b.end.IsZero() {
		return fmt.Sprintf("[%s, ∞)", b.start.Format(time.RFC3339))
	}
	return fmt.Sprintf("[%s, %s)", b.start.Format(time.RFC3339), b.end.Format(time.RFC3339))
}
