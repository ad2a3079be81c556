package ledger

import (
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/cloudx-io/nftmarket/core"
)

type operatorKey struct {
	owner, operator core.Address
}

// Collection is the non-fungible asset registry. Assets are minted with ids
// starting at 0. While an asset is locked by the auction market it cannot be
// moved by anyone but the market. Collection implements core.AssetRegistry.
type Collection struct {
	core.Ownable

	address core.Address
	name    string
	symbol  string
	baseURI string
	market  core.Address

	nextID    core.AssetID
	owners    map[core.AssetID]core.Address
	locks     map[core.AssetID]core.LockToken
	operators map[operatorKey]bool
}

// NewCollection deploys an empty collection.
func NewCollection(address, owner core.Address, name, symbol, baseURI string) *Collection {
	return &Collection{
		Ownable:   core.NewOwnable(owner),
		address:   address,
		name:      name,
		symbol:    symbol,
		baseURI:   baseURI,
		owners:    make(map[core.AssetID]core.Address),
		locks:     make(map[core.AssetID]core.LockToken),
		operators: make(map[operatorKey]bool),
	}
}

func (c *Collection) Address() core.Address { return c.address }
func (c *Collection) Name() string          { return c.name }
func (c *Collection) Symbol() string        { return c.symbol }

// Mint creates the next asset for to. Owner only.
func (c *Collection) Mint(caller, to core.Address) (core.AssetID, error) {
	if err := c.Authorize(caller); err != nil {
		return 0, err
	}
	if to.IsZero() {
		return 0, fmt.Errorf("mint: %w", ErrEmptyAddress)
	}
	id := c.nextID
	c.nextID++
	c.owners[id] = to
	return id, nil
}

// TotalMinted returns how many assets exist.
func (c *Collection) TotalMinted() uint64 { return uint64(c.nextID) }

func (c *Collection) OwnerOf(asset core.AssetID) (core.Address, error) {
	owner, ok := c.owners[asset]
	if !ok {
		return core.NoAddress, fmt.Errorf("asset %d: %w", asset, ErrAssetNotFound)
	}
	return owner, nil
}

// BalanceOf counts the assets held by owner.
func (c *Collection) BalanceOf(owner core.Address) int {
	n := 0
	for _, o := range c.owners {
		if o == owner {
			n++
		}
	}
	return n
}

// TokenURI returns the metadata location of asset: base URI + id.
func (c *Collection) TokenURI(asset core.AssetID) (string, error) {
	if _, err := c.OwnerOf(asset); err != nil {
		return "", err
	}
	return c.baseURI + strconv.FormatUint(uint64(asset), 10), nil
}

// SetAuctionMarket registers the only address allowed to lock and release
// assets. Owner only.
func (c *Collection) SetAuctionMarket(caller, market core.Address) error {
	if err := c.Authorize(caller); err != nil {
		return err
	}
	c.market = market
	return nil
}

// AuctionMarket returns the registered market address.
func (c *Collection) AuctionMarket() core.Address { return c.market }

// SetApprovalForAll lets operator move all of owner's assets.
func (c *Collection) SetApprovalForAll(owner, operator core.Address, approved bool) {
	if approved {
		c.operators[operatorKey{owner, operator}] = true
		return
	}
	delete(c.operators, operatorKey{owner, operator})
}

func (c *Collection) IsApprovedForAll(owner, operator core.Address) bool {
	return c.operators[operatorKey{owner, operator}]
}

// IsOnAuction reports whether asset is locked by the market.
func (c *Collection) IsOnAuction(asset core.AssetID) bool {
	_, locked := c.locks[asset]
	return locked
}

// Transfer moves asset to to. The caller must be the owner or an approved
// operator, and the asset must not be locked.
func (c *Collection) Transfer(caller core.Address, asset core.AssetID, to core.Address) error {
	owner, err := c.OwnerOf(asset)
	if err != nil {
		return err
	}
	if caller != owner && !c.IsApprovedForAll(owner, caller) {
		return fmt.Errorf("%s may not move asset %d: %w", caller, asset, core.ErrNotOwner)
	}
	if c.IsOnAuction(asset) {
		return fmt.Errorf("asset %d: %w", asset, ErrAssetLocked)
	}
	if to.IsZero() {
		return fmt.Errorf("transfer asset %d: %w", asset, ErrEmptyAddress)
	}
	c.owners[asset] = to
	return nil
}

// Reserve implements core.AssetRegistry. The seller must have approved the
// market as operator, since settlement moves the asset on the seller's behalf.
func (c *Collection) Reserve(market core.Address, asset core.AssetID, seller core.Address) (core.LockToken, error) {
	if err := c.checkMarket(market); err != nil {
		return "", err
	}
	owner, err := c.OwnerOf(asset)
	if err != nil {
		return "", err
	}
	if owner != seller {
		return "", fmt.Errorf("asset %d: %w", asset, core.ErrNotOwner)
	}
	if c.IsOnAuction(asset) {
		return "", fmt.Errorf("asset %d: %w", asset, core.ErrAlreadyOnAuction)
	}
	if !c.IsApprovedForAll(seller, market) {
		return "", fmt.Errorf("asset %d: %w", asset, ErrNotApproved)
	}

	lock := core.LockToken(uuid.NewString())
	c.locks[asset] = lock
	return lock, nil
}

// Release implements core.AssetRegistry. A non-empty to transfers the asset
// in the same step. Holding the lock is enough to move the asset; operator
// approval is only checked at Reserve.
func (c *Collection) Release(market core.Address, asset core.AssetID, lock core.LockToken, to core.Address) error {
	if err := c.checkMarket(market); err != nil {
		return err
	}
	held, ok := c.locks[asset]
	if !ok || held != lock {
		return fmt.Errorf("asset %d: %w", asset, ErrLockMismatch)
	}
	delete(c.locks, asset)
	if !to.IsZero() {
		c.owners[asset] = to
	}
	return nil
}

func (c *Collection) checkMarket(caller core.Address) error {
	if c.market.IsZero() || caller != c.market {
		return fmt.Errorf("%s: %w", caller, ErrNotMarket)
	}
	return nil
}
