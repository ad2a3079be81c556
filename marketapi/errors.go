package marketapi

import (
	"errors"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/donation"
	"github.com/cloudx-io/nftmarket/ledger"
)

// ErrDevOnly is returned by development calls on a production node.
var ErrDevOnly = errors.New("disabled: node is not running in development mode")

// Codes for the ledger and donation rejections. Market rejections use the
// core taxonomy names.
var extraCodes = []struct {
	err  error
	code string
}{
	{ledger.ErrInsufficientBalance, "InsufficientBalance"},
	{ledger.ErrAllowanceExceeded, "AllowanceExceeded"},
	{ledger.ErrNegativeAmount, "NegativeAmount"},
	{ledger.ErrAssetNotFound, "AssetNotFound"},
	{ledger.ErrNotApproved, "NotApproved"},
	{ledger.ErrAssetLocked, "AssetLocked"},
	{ledger.ErrLockMismatch, "LockMismatch"},
	{ledger.ErrNotMarket, "NotMarket"},
	{ledger.ErrNoPrice, "NoPrice"},
	{ledger.ErrStalePrice, "StalePrice"},
	{ledger.ErrInvalidPrice, "InvalidPrice"},
	{ledger.ErrEmptyAddress, "EmptyAddress"},
	{donation.ErrZeroDonation, "ZeroDonation"},
	{donation.ErrOutsideWindow, "OutsideWindow"},
	{donation.ErrInvalidWindow, "InvalidWindow"},
	{ErrDevOnly, "DevOnly"},
	{ErrUnauthenticated, "Unauthenticated"},
}

// ErrorCode returns the wire code of err: the market taxonomy name when err
// is a market rejection, otherwise a ledger or donation code, otherwise "".
func ErrorCode(err error) string {
	if code := core.ErrorCode(err); code != "" {
		return code
	}
	for _, ec := range extraCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ""
}

// ErrorForCode maps a wire code back to its sentinel, or nil.
func ErrorForCode(code string) error {
	if err := core.ErrorForCode(code); err != nil {
		return err
	}
	for _, ec := range extraCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}
