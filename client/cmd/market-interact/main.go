// Command market-interact drives a development marketd node through the
// standard demo: two bidders on a native auction and a token auction. The
// node must run with --dev-faucet and --dev-accounts, since the demo acts as
// several accounts without signing keys.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	log "github.com/inconshreveable/log15"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/client"
	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/receipts"
)

const auctionDuration = 24 * time.Hour

type options struct {
	seller    core.Address
	bidder1   core.Address
	bidder2   core.Address
	fund      core.Amount
	endEarly  bool
	signerKey string
}

// summary is written to --output once the scenario completes.
type summary struct {
	Network        string                      `json:"network"`
	Contracts      marketapi.DeployedContracts `json:"contracts"`
	NativeAuction  core.Auction                `json:"native_auction"`
	TokenAuction   core.Auction                `json:"token_auction"`
	Bidder1Pending core.Amount                 `json:"bidder1_pending_refund"`
	Prices         core.Prices                 `json:"prices"`
	Settlement     *core.Settlement            `json:"settlement,omitempty"`
	Receipt        *marketapi.SignedReceipt    `json:"receipt,omitempty"`
	ReceiptValid   *bool                       `json:"receipt_valid,omitempty"`
	Refunded       core.Amount                 `json:"bidder1_refunded"`
	Audit          *marketapi.AuditReply       `json:"audit"`
}

func main() {
	var (
		node      = flag.String("node", "http://127.0.0.1:9650", "marketd endpoint")
		seller    = flag.String("seller", "0xseller", "Seller address")
		bidder1   = flag.String("bidder1", "0xbidder1", "First bidder address")
		bidder2   = flag.String("bidder2", "0xbidder2", "Second bidder address")
		fund      = flag.String("fund", "10", "Native amount the dev faucet gives each account")
		endEarly  = flag.Bool("end-early", false, "Have the seller end the native auction and validate its receipt")
		signerKey = flag.String("signer-key", "", "PEM public key of the node's local receipt signer")
		output    = flag.String("output", "", "Write a JSON summary to this file")
		timeout   = flag.Duration("timeout", time.Minute, "Overall timeout")
		verbose   = flag.Bool("verbose", false, "Debug logging")
	)
	flag.Parse()

	lvl := log.LvlInfo
	if *verbose {
		lvl = log.LvlDebug
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, log.StreamHandler(os.Stderr, log.TerminalFormat())))

	fundAmount, err := decimal.NewFromString(*fund)
	if err != nil {
		log.Crit("Invalid --fund", "err", err)
		os.Exit(2)
	}

	opts := options{
		seller:   core.Address(*seller),
		bidder1:  core.Address(*bidder1),
		bidder2:  core.Address(*bidder2),
		fund:     fundAmount,
		endEarly: *endEarly,
	}
	if *signerKey != "" {
		data, err := os.ReadFile(*signerKey)
		if err != nil {
			log.Crit("Failed to read --signer-key", "err", err)
			os.Exit(2)
		}
		opts.signerKey = string(data)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	ctx, cancelTimeout := context.WithTimeout(ctx, *timeout)
	defer cancelTimeout()

	result, err := interact(ctx, client.New(*node), opts, log.Root())
	if err != nil {
		log.Crit("Interaction failed", "code", client.ErrorCode(err), "err", err)
		os.Exit(1)
	}

	if *output != "" {
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Crit("Failed to encode summary", "err", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*output, data, 0o644); err != nil {
			log.Crit("Failed to write summary", "err", err)
			os.Exit(1)
		}
		log.Info("Summary written", "path", *output)
	}

	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Advance the clock past the end time (ledger.AdvanceTime) and call market.EndAuction")
	fmt.Println("  2. Outbid bidders call market.ClaimRefund")
	fmt.Println("  3. Validate the receipt with receipt-validator")
}

func interact(ctx context.Context, cli client.Client, opts options, logger log.Logger) (*summary, error) {
	info, err := cli.Info(ctx)
	if err != nil {
		return nil, fmt.Errorf("info: %w", err)
	}
	contracts := info.Deployment.Contracts
	deployer := info.Deployment.Deployer
	logger.Info("Loaded deployment",
		"network", info.Deployment.Network,
		"nft", contracts.NFT,
		"token", contracts.Token,
		"market", contracts.AuctionMarket,
		"height", info.Height)

	out := &summary{Network: info.Deployment.Network, Contracts: contracts}

	for _, account := range []core.Address{opts.seller, opts.bidder1, opts.bidder2} {
		if _, err := cli.Fund(ctx, account, opts.fund); err != nil {
			return nil, fmt.Errorf("fund %s: %w", account, err)
		}
	}
	logger.Info("Funded accounts", "amount", opts.fund)

	asset, err := cli.MintAsset(ctx, deployer, opts.seller)
	if err != nil {
		return nil, fmt.Errorf("mint: %w", err)
	}
	if err := cli.SetApprovalForAll(ctx, opts.seller, contracts.AuctionMarket, true); err != nil {
		return nil, fmt.Errorf("approve market: %w", err)
	}
	logger.Info("Minted asset for seller", "asset", asset.AssetID, "uri", asset.TokenURI)

	nativeID, err := cli.CreateAuction(ctx, marketapi.CreateAuctionArgs{
		Caller:          opts.seller,
		AssetID:         asset.AssetID,
		StartingPrice:   decimal.RequireFromString("1.0"),
		ReservePrice:    decimal.RequireFromString("1.5"),
		DurationSeconds: int64(auctionDuration / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("create native auction: %w", err)
	}
	auction, err := cli.GetAuction(ctx, nativeID)
	if err != nil {
		return nil, fmt.Errorf("get auction: %w", err)
	}
	logger.Info("Auction created",
		"auction", auction.ID,
		"asset", auction.AssetID,
		"starting", auction.StartingPrice,
		"reserve", auction.ReservePrice,
		"end", auction.EndTime.Format(time.RFC3339))

	for _, bidder := range []core.Address{opts.bidder1, opts.bidder2} {
		if _, err := cli.TransferToken(ctx, deployer, bidder, decimal.NewFromInt(1000)); err != nil {
			return nil, fmt.Errorf("transfer tokens to %s: %w", bidder, err)
		}
	}
	logger.Info("Transferred tokens to bidders", "amount", 1000)

	bids := []struct {
		bidder core.Address
		value  string
	}{
		{opts.bidder1, "1.2"},
		{opts.bidder2, "1.8"},
	}
	for _, b := range bids {
		value := decimal.RequireFromString(b.value)
		auction, err = cli.PlaceBid(ctx, marketapi.PlaceBidArgs{Caller: b.bidder, Value: value, AuctionID: nativeID})
		if err != nil {
			return nil, fmt.Errorf("bid %s from %s: %w", b.value, b.bidder, err)
		}
		logger.Info("Bid placed", "bidder", b.bidder, "value", value)
	}
	logger.Info("Auction state", "highest_bidder", auction.HighestBidder, "highest_bid", auction.HighestBid)
	out.NativeAuction = *auction

	if out.Bidder1Pending, err = cli.GetPendingReturn(ctx, opts.bidder1, nativeID); err != nil {
		return nil, fmt.Errorf("pending return: %w", err)
	}
	logger.Info("Pending refund", "bidder", opts.bidder1, "amount", out.Bidder1Pending)

	if out.Prices, err = cli.GetPrices(ctx); err != nil {
		return nil, fmt.Errorf("prices: %w", err)
	}
	logger.Info("Prices",
		"native_usd", out.Prices.NativeUSD,
		"token_usd", out.Prices.TokenUSD,
		"native_error", out.Prices.NativeError,
		"token_error", out.Prices.TokenError)

	second, err := cli.MintAsset(ctx, deployer, opts.seller)
	if err != nil {
		return nil, fmt.Errorf("mint second asset: %w", err)
	}
	tokenID, err := cli.CreateAuction(ctx, marketapi.CreateAuctionArgs{
		Caller:          opts.seller,
		AssetID:         second.AssetID,
		StartingPrice:   decimal.NewFromInt(100),
		ReservePrice:    decimal.NewFromInt(500),
		DurationSeconds: int64(auctionDuration / time.Second),
		UseToken:        true,
	})
	if err != nil {
		return nil, fmt.Errorf("create token auction: %w", err)
	}
	tokenAuction, err := cli.GetAuction(ctx, tokenID)
	if err != nil {
		return nil, fmt.Errorf("get token auction: %w", err)
	}
	out.TokenAuction = *tokenAuction
	logger.Info("Token auction created", "auction", tokenID, "asset", second.AssetID, "currency", tokenAuction.Currency)

	if opts.endEarly {
		if err := endAndVerify(ctx, cli, opts, nativeID, out, logger); err != nil {
			return nil, err
		}
	}

	if out.Audit, err = cli.Audit(ctx); err != nil {
		return nil, fmt.Errorf("audit: %w", err)
	}
	logger.Info("Audit", "balanced", out.Audit.Balanced, "height", out.Audit.Height)
	return out, nil
}

// endAndVerify has the seller settle the native auction, checks the signed
// receipt and lets the outbid bidder claim their refund.
func endAndVerify(ctx context.Context, cli client.Client, opts options, id core.AuctionID, out *summary, logger log.Logger) error {
	ended, err := cli.EndAuction(ctx, opts.seller, id)
	if err != nil {
		return fmt.Errorf("end auction: %w", err)
	}
	out.Settlement = &ended.Settlement
	logger.Info("Auction ended",
		"winner", ended.Settlement.Winner,
		"amount", ended.Settlement.FinalAmount,
		"fee", ended.Settlement.Fee,
		"proceeds", ended.Settlement.SellerProceeds)

	if ended.Receipt == nil {
		logger.Warn("Node returned no receipt")
	} else {
		out.Receipt = ended.Receipt
		coseBytes, err := ended.Receipt.COSEBase64.Decode()
		if err != nil {
			return fmt.Errorf("decode receipt: %w", err)
		}
		winner := ended.Settlement.Winner
		amount := ended.Settlement.FinalAmount
		result, err := receipts.ValidateReceipt(&receipts.ReceiptValidationInput{
			ReceiptCOSE:         coseBytes,
			TrustedSignerKeyPEM: opts.signerKey,
			AuctionID:           id,
			Winner:              &winner,
			Amount:              &amount,
		})
		if err != nil {
			return fmt.Errorf("validate receipt: %w", err)
		}
		valid := result.IsValid()
		out.ReceiptValid = &valid
		logger.Info("Receipt checked", "valid", valid, "enclave", result.Enclave, "signer", ended.Receipt.Signer)
		for _, detail := range result.ValidationDetails {
			logger.Debug("Receipt detail", "detail", detail)
		}
	}

	if out.Refunded, err = cli.ClaimRefund(ctx, opts.bidder1, id); err != nil {
		return fmt.Errorf("claim refund: %w", err)
	}
	logger.Info("Refund claimed", "bidder", opts.bidder1, "amount", out.Refunded)
	return nil
}
