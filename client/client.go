// Package client implements a typed JSON-RPC client for marketd.
package client

import (
	"context"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// Client defines the market, ledger and donation services exposed by marketd.
type Client interface {
	// market service
	CreateAuction(ctx context.Context, args marketapi.CreateAuctionArgs) (core.AuctionID, error)
	PlaceBid(ctx context.Context, args marketapi.PlaceBidArgs) (*core.Auction, error)
	EndAuction(ctx context.Context, caller core.Address, id core.AuctionID) (*marketapi.EndAuctionReply, error)
	ClaimRefund(ctx context.Context, caller core.Address, id core.AuctionID) (core.Amount, error)
	WithdrawProceeds(ctx context.Context, caller core.Address, currency core.Currency) (core.Amount, error)
	WithdrawFees(ctx context.Context, caller core.Address, currency core.Currency) (core.Amount, error)
	SetPlatformFee(ctx context.Context, caller core.Address, feeBps uint32) (*marketapi.PlatformFeeReply, error)
	GetPlatformFee(ctx context.Context) (*marketapi.PlatformFeeReply, error)
	GetAuction(ctx context.Context, id core.AuctionID) (*core.Auction, error)
	GetPendingReturn(ctx context.Context, bidder core.Address, id core.AuctionID) (core.Amount, error)
	GetProceeds(ctx context.Context, seller core.Address, currency core.Currency) (core.Amount, error)
	GetEvents(ctx context.Context, fromSeq uint64) (*marketapi.EventsReply, error)
	GetPrices(ctx context.Context) (core.Prices, error)
	GetValuation(ctx context.Context, id core.AuctionID) (core.Amount, error)
	Audit(ctx context.Context) (*marketapi.AuditReply, error)

	// ledger service
	Info(ctx context.Context) (*marketapi.InfoReply, error)
	Fund(ctx context.Context, account core.Address, amount core.Amount) (core.Amount, error)
	Balance(ctx context.Context, account core.Address) (core.Amount, error)
	MintAsset(ctx context.Context, caller, to core.Address) (*marketapi.AssetReply, error)
	SetApprovalForAll(ctx context.Context, caller, operator core.Address, approved bool) error
	TransferAsset(ctx context.Context, caller core.Address, id core.AssetID, to core.Address) (*marketapi.AssetReply, error)
	GetAsset(ctx context.Context, id core.AssetID) (*marketapi.AssetReply, error)
	TransferToken(ctx context.Context, caller, to core.Address, amount core.Amount) (*marketapi.TokenBalanceReply, error)
	ApproveToken(ctx context.Context, caller, spender core.Address, amount core.Amount) (*marketapi.TokenBalanceReply, error)
	TokenBalance(ctx context.Context, account core.Address) (*marketapi.TokenBalanceReply, error)
	SetPrice(ctx context.Context, feed string, price core.Amount) error
	AdvanceTime(ctx context.Context, seconds int64) (*marketapi.InfoReply, error)

	// donation service
	Donate(ctx context.Context, caller core.Address, value core.Amount) (*marketapi.DonationReply, error)
	GetDonation(ctx context.Context, donor core.Address) (*marketapi.DonationReply, error)
	TopDonors(ctx context.Context) (*marketapi.TopDonorsReply, error)
	WithdrawDonations(ctx context.Context, caller core.Address) (core.Amount, error)
	SetDonationWindow(ctx context.Context, args marketapi.SetWindowArgs) error
}

// New creates a client for the node at uri.
func New(uri string, opts ...Option) Client {
	return NewWithRequester(NewEndpointRequester(uri, opts...))
}

// NewWithRequester creates a client on top of an existing requester.
func NewWithRequester(req EndpointRequester) Client {
	return &client{req: req}
}

type client struct {
	req EndpointRequester
}

func marketMethod(method string) string   { return marketapi.MarketService + "." + method }
func ledgerMethod(method string) string   { return marketapi.LedgerService + "." + method }
func donationMethod(method string) string { return marketapi.DonationService + "." + method }

func (cli *client) CreateAuction(ctx context.Context, args marketapi.CreateAuctionArgs) (core.AuctionID, error) {
	resp := new(marketapi.CreateAuctionReply)
	if err := cli.req.SendRequest(ctx, marketMethod("CreateAuction"), &args, resp); err != nil {
		return 0, err
	}
	return resp.AuctionID, nil
}

func (cli *client) PlaceBid(ctx context.Context, args marketapi.PlaceBidArgs) (*core.Auction, error) {
	resp := new(marketapi.AuctionReply)
	if err := cli.req.SendRequest(ctx, marketMethod("PlaceBid"), &args, resp); err != nil {
		return nil, err
	}
	return &resp.Auction, nil
}

func (cli *client) EndAuction(ctx context.Context, caller core.Address, id core.AuctionID) (*marketapi.EndAuctionReply, error) {
	resp := new(marketapi.EndAuctionReply)
	err := cli.req.SendRequest(ctx, marketMethod("EndAuction"), &marketapi.AuctionArgs{Caller: caller, AuctionID: id}, resp)
	return resp, err
}

func (cli *client) ClaimRefund(ctx context.Context, caller core.Address, id core.AuctionID) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, marketMethod("ClaimRefund"), &marketapi.AuctionArgs{Caller: caller, AuctionID: id}, resp)
	return resp.Amount, err
}

func (cli *client) WithdrawProceeds(ctx context.Context, caller core.Address, currency core.Currency) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, marketMethod("WithdrawProceeds"), &marketapi.CurrencyArgs{Caller: caller, Currency: currency}, resp)
	return resp.Amount, err
}

func (cli *client) WithdrawFees(ctx context.Context, caller core.Address, currency core.Currency) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, marketMethod("WithdrawFees"), &marketapi.CurrencyArgs{Caller: caller, Currency: currency}, resp)
	return resp.Amount, err
}

func (cli *client) SetPlatformFee(ctx context.Context, caller core.Address, feeBps uint32) (*marketapi.PlatformFeeReply, error) {
	resp := new(marketapi.PlatformFeeReply)
	err := cli.req.SendRequest(ctx, marketMethod("SetPlatformFee"), &marketapi.SetPlatformFeeArgs{Caller: caller, FeeBps: feeBps}, resp)
	return resp, err
}

func (cli *client) GetPlatformFee(ctx context.Context) (*marketapi.PlatformFeeReply, error) {
	resp := new(marketapi.PlatformFeeReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetPlatformFee"), &marketapi.EmptyArgs{}, resp)
	return resp, err
}

func (cli *client) GetAuction(ctx context.Context, id core.AuctionID) (*core.Auction, error) {
	resp := new(marketapi.AuctionReply)
	if err := cli.req.SendRequest(ctx, marketMethod("GetAuction"), &marketapi.AuctionArgs{AuctionID: id}, resp); err != nil {
		return nil, err
	}
	return &resp.Auction, nil
}

func (cli *client) GetPendingReturn(ctx context.Context, bidder core.Address, id core.AuctionID) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetPendingReturn"), &marketapi.PendingReturnArgs{Bidder: bidder, AuctionID: id}, resp)
	return resp.Amount, err
}

func (cli *client) GetProceeds(ctx context.Context, seller core.Address, currency core.Currency) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetProceeds"), &marketapi.ProceedsArgs{Seller: seller, Currency: currency}, resp)
	return resp.Amount, err
}

func (cli *client) GetEvents(ctx context.Context, fromSeq uint64) (*marketapi.EventsReply, error) {
	resp := new(marketapi.EventsReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetEvents"), &marketapi.EventsArgs{FromSeq: fromSeq}, resp)
	return resp, err
}

func (cli *client) GetPrices(ctx context.Context) (core.Prices, error) {
	resp := new(marketapi.PricesReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetPrices"), &marketapi.EmptyArgs{}, resp)
	return resp.Prices, err
}

func (cli *client) GetValuation(ctx context.Context, id core.AuctionID) (core.Amount, error) {
	resp := new(marketapi.ValuationReply)
	err := cli.req.SendRequest(ctx, marketMethod("GetValuation"), &marketapi.AuctionArgs{AuctionID: id}, resp)
	return resp.USD, err
}

func (cli *client) Audit(ctx context.Context) (*marketapi.AuditReply, error) {
	resp := new(marketapi.AuditReply)
	err := cli.req.SendRequest(ctx, marketMethod("Audit"), &marketapi.EmptyArgs{}, resp)
	return resp, err
}

func (cli *client) Info(ctx context.Context) (*marketapi.InfoReply, error) {
	resp := new(marketapi.InfoReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("Info"), &marketapi.EmptyArgs{}, resp)
	return resp, err
}

func (cli *client) Fund(ctx context.Context, account core.Address, amount core.Amount) (core.Amount, error) {
	resp := new(marketapi.BalanceReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("Fund"), &marketapi.FundArgs{Account: account, Amount: amount}, resp)
	return resp.Balance, err
}

func (cli *client) Balance(ctx context.Context, account core.Address) (core.Amount, error) {
	resp := new(marketapi.BalanceReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("Balance"), &marketapi.AccountArgs{Account: account}, resp)
	return resp.Balance, err
}

func (cli *client) MintAsset(ctx context.Context, caller, to core.Address) (*marketapi.AssetReply, error) {
	resp := new(marketapi.AssetReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("MintAsset"), &marketapi.MintAssetArgs{Caller: caller, To: to}, resp)
	return resp, err
}

func (cli *client) SetApprovalForAll(ctx context.Context, caller, operator core.Address, approved bool) error {
	args := &marketapi.SetApprovalForAllArgs{Caller: caller, Operator: operator, Approved: approved}
	return cli.req.SendRequest(ctx, ledgerMethod("SetApprovalForAll"), args, &marketapi.EmptyReply{})
}

func (cli *client) TransferAsset(ctx context.Context, caller core.Address, id core.AssetID, to core.Address) (*marketapi.AssetReply, error) {
	resp := new(marketapi.AssetReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("TransferAsset"), &marketapi.TransferAssetArgs{Caller: caller, AssetID: id, To: to}, resp)
	return resp, err
}

func (cli *client) GetAsset(ctx context.Context, id core.AssetID) (*marketapi.AssetReply, error) {
	resp := new(marketapi.AssetReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("GetAsset"), &marketapi.AssetArgs{AssetID: id}, resp)
	return resp, err
}

func (cli *client) TransferToken(ctx context.Context, caller, to core.Address, amount core.Amount) (*marketapi.TokenBalanceReply, error) {
	resp := new(marketapi.TokenBalanceReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("TransferToken"), &marketapi.TransferTokenArgs{Caller: caller, To: to, Amount: amount}, resp)
	return resp, err
}

func (cli *client) ApproveToken(ctx context.Context, caller, spender core.Address, amount core.Amount) (*marketapi.TokenBalanceReply, error) {
	resp := new(marketapi.TokenBalanceReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("ApproveToken"), &marketapi.ApproveTokenArgs{Caller: caller, Spender: spender, Amount: amount}, resp)
	return resp, err
}

func (cli *client) TokenBalance(ctx context.Context, account core.Address) (*marketapi.TokenBalanceReply, error) {
	resp := new(marketapi.TokenBalanceReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("TokenBalance"), &marketapi.AccountArgs{Account: account}, resp)
	return resp, err
}

func (cli *client) SetPrice(ctx context.Context, feed string, price core.Amount) error {
	return cli.req.SendRequest(ctx, ledgerMethod("SetPrice"), &marketapi.SetPriceArgs{Feed: feed, Price: price}, &marketapi.EmptyReply{})
}

func (cli *client) AdvanceTime(ctx context.Context, seconds int64) (*marketapi.InfoReply, error) {
	resp := new(marketapi.InfoReply)
	err := cli.req.SendRequest(ctx, ledgerMethod("AdvanceTime"), &marketapi.AdvanceTimeArgs{Seconds: seconds}, resp)
	return resp, err
}

func (cli *client) Donate(ctx context.Context, caller core.Address, value core.Amount) (*marketapi.DonationReply, error) {
	resp := new(marketapi.DonationReply)
	err := cli.req.SendRequest(ctx, donationMethod("Donate"), &marketapi.DonateArgs{Caller: caller, Value: value}, resp)
	return resp, err
}

func (cli *client) GetDonation(ctx context.Context, donor core.Address) (*marketapi.DonationReply, error) {
	resp := new(marketapi.DonationReply)
	err := cli.req.SendRequest(ctx, donationMethod("GetDonation"), &marketapi.DonationArgs{Donor: donor}, resp)
	return resp, err
}

func (cli *client) TopDonors(ctx context.Context) (*marketapi.TopDonorsReply, error) {
	resp := new(marketapi.TopDonorsReply)
	err := cli.req.SendRequest(ctx, donationMethod("TopDonors"), &marketapi.EmptyArgs{}, resp)
	return resp, err
}

func (cli *client) WithdrawDonations(ctx context.Context, caller core.Address) (core.Amount, error) {
	resp := new(marketapi.AmountReply)
	err := cli.req.SendRequest(ctx, donationMethod("Withdraw"), &marketapi.CallerArgs{Caller: caller}, resp)
	return resp.Amount, err
}

func (cli *client) SetDonationWindow(ctx context.Context, args marketapi.SetWindowArgs) error {
	return cli.req.SendRequest(ctx, donationMethod("SetWindow"), &args, &marketapi.EmptyReply{})
}
