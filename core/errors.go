package core

import "errors"

// Rejections surfaced by the market. Every one of them aborts the whole call.
var (
	ErrNotOwner              = errors.New("caller does not own the asset")
	ErrAlreadyOnAuction      = errors.New("asset is already on auction")
	ErrAuctionNotOpen        = errors.New("auction is not open")
	ErrBidTooLow             = errors.New("bid too low")
	ErrInsufficientAllowance = errors.New("insufficient token allowance")
	ErrTransferFailed        = errors.New("transfer failed")
	ErrEndTooEarly           = errors.New("auction not ended yet")
	ErrAlreadyEnded          = errors.New("auction already ended")
	ErrNoRefundAvailable     = errors.New("no refund available")
	ErrFeeTooHigh            = errors.New("fee too high (max 10%)")

	ErrUnauthorized        = errors.New("caller is not authorized")
	ErrAuctionNotFound     = errors.New("auction does not exist")
	ErrInvalidDuration     = errors.New("duration must be positive")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInvalidPayment      = errors.New("payment does not match auction currency")
	ErrUnknownCurrency     = errors.New("unknown currency")
	ErrNoProceedsAvailable = errors.New("no proceeds available")
	ErrMissingCollaborator = errors.New("missing market collaborator")
)

var errorCodes = []struct {
	err  error
	code string
}{
	// Not-found errors also match ErrAuctionNotOpen, so they are checked first.
	{ErrAuctionNotFound, "AuctionNotFound"},
	{ErrNotOwner, "NotOwner"},
	{ErrAlreadyOnAuction, "AlreadyOnAuction"},
	{ErrAuctionNotOpen, "AuctionNotOpen"},
	{ErrBidTooLow, "BidTooLow"},
	{ErrInsufficientAllowance, "InsufficientAllowance"},
	{ErrTransferFailed, "TransferFailed"},
	{ErrEndTooEarly, "EndTooEarly"},
	{ErrAlreadyEnded, "AlreadyEnded"},
	{ErrNoRefundAvailable, "NoRefundAvailable"},
	{ErrFeeTooHigh, "FeeTooHigh"},
	{ErrUnauthorized, "Unauthorized"},
	{ErrInvalidDuration, "InvalidDuration"},
	{ErrInvalidAmount, "InvalidAmount"},
	{ErrInvalidPayment, "InvalidPayment"},
	{ErrUnknownCurrency, "UnknownCurrency"},
	{ErrNoProceedsAvailable, "NoProceedsAvailable"},
}

// ErrorCode returns the stable taxonomy name of err, or "" if err is not a
// market rejection.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return ""
}

// ErrorForCode is the inverse of ErrorCode. It returns nil for unknown codes.
func ErrorForCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}
