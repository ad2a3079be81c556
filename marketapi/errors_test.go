package marketapi

import (
	"errors"
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/donation"
	"github.com/cloudx-io/nftmarket/ledger"
)

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{fmt.Errorf("bid: %w", core.ErrBidTooLow), "BidTooLow"},
		{fmt.Errorf("%w: donation: %w", core.ErrTransferFailed, ledger.ErrInsufficientBalance), "TransferFailed"},
		{fmt.Errorf("reserve: %w", ledger.ErrNotApproved), "NotApproved"},
		{donation.ErrOutsideWindow, "OutsideWindow"},
		{ErrDevOnly, "DevOnly"},
		{fmt.Errorf("verify: %w", ErrUnauthenticated), "Unauthenticated"},
		{errors.New("boom"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		check.Equal(t, tt.code, ErrorCode(tt.err))
	}
}

func TestErrorForCode(t *testing.T) {
	check.True(t, errors.Is(ErrorForCode("NoRefundAvailable"), core.ErrNoRefundAvailable))
	check.True(t, errors.Is(ErrorForCode("StalePrice"), ledger.ErrStalePrice))
	check.True(t, errors.Is(ErrorForCode("ZeroDonation"), donation.ErrZeroDonation))
	check.Nil(t, ErrorForCode("NoSuchCode"))
}
