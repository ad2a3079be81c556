package ledger

import "errors"

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAllowanceExceeded   = errors.New("transfer amount exceeds allowance")
	ErrNegativeAmount      = errors.New("amount must not be negative")
	ErrAssetNotFound       = errors.New("asset does not exist")
	ErrNotApproved         = errors.New("market is not approved for the owner's assets")
	ErrAssetLocked         = errors.New("asset is locked by an auction")
	ErrLockMismatch        = errors.New("lock token does not match")
	ErrNotMarket           = errors.New("caller is not the registered auction market")
	ErrNoPrice             = errors.New("no price reported")
	ErrStalePrice          = errors.New("price is stale")
	ErrInvalidPrice        = errors.New("price must be positive")
	ErrEmptyAddress        = errors.New("empty address")
)
