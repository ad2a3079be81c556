package main

import (
	"fmt"
	"time"

	log "github.com/inconshreveable/log15"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/donation"
	"github.com/cloudx-io/nftmarket/ledger"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// Contract addresses deployed next to the market.
const (
	nftAddress        core.Address = "0xnft"
	tokenAddress      core.Address = "0xmytoken"
	donationAddress   core.Address = "0xdonationbox"
	nativeFeedAddress core.Address = "0xethusdfeed"
	tokenFeedAddress  core.Address = "0xerc20usdfeed"

	nftName   = "Auction NFT Collection"
	nftSymbol = "AUC-NFT"
)

// Node owns the host ledger and every contract deployed on it. All state
// changes go through host.Execute; reads go through host.View.
type Node struct {
	cfg    *Config
	host   *ledger.Host
	clock  *ledger.ManualClock // nil unless dev-clock
	bank   *ledger.Bank
	token  *ledger.Token
	nfts   *ledger.Collection
	market *core.Market
	box    *donation.Box

	nativeFeed *ledger.PriceFeed
	tokenFeed  *ledger.PriceFeed

	signer     ReceiptSigner // nil when receipts are disabled
	auth       *requestAuth
	deployment marketapi.Deployment
	log        log.Logger
}

// NewNode deploys the NFT collection, the token, the price feeds, the market
// and the donation box, then links the collection to the market.
func NewNode(cfg *Config, signer ReceiptSigner, logger log.Logger) (*Node, error) {
	n := &Node{cfg: cfg, signer: signer, log: logger, bank: ledger.NewBank(), auth: newRequestAuth(cfg.AccountKeys)}

	var source core.Clock = ledger.SystemClock
	if cfg.DevClock {
		n.clock = ledger.NewManualClock(time.Now().UTC())
		source = n.clock
	}
	n.host = ledger.NewHost(source)

	err := n.host.Execute(func() error {
		var err error
		n.nfts = ledger.NewCollection(nftAddress, cfg.Owner, nftName, nftSymbol, cfg.NFTBaseURI)

		n.token, err = ledger.NewToken(tokenAddress, cfg.Owner, cfg.TokenSupply)
		if err != nil {
			return fmt.Errorf("deploy token: %w", err)
		}

		n.nativeFeed = ledger.NewPriceFeed("ETH / USD", n.host, cfg.PriceMaxAge)
		n.tokenFeed = ledger.NewPriceFeed("AUC / USD", n.host, cfg.PriceMaxAge)
		if cfg.NativeUSDPrice.IsPositive() {
			if err := n.nativeFeed.SetPrice(cfg.NativeUSDPrice); err != nil {
				return fmt.Errorf("seed native feed: %w", err)
			}
		}
		if cfg.TokenUSDPrice.IsPositive() {
			if err := n.tokenFeed.SetPrice(cfg.TokenUSDPrice); err != nil {
				return fmt.Errorf("seed token feed: %w", err)
			}
		}

		bps := cfg.PlatformFeeBps
		n.market, err = core.NewMarket(core.MarketConfig{
			Address:        cfg.MarketAddress,
			Owner:          cfg.Owner,
			PlatformFeeBps: &bps,
		}, core.Collaborators{
			Assets:     n.nfts,
			Bank:       n.bank,
			Token:      n.token,
			NativeFeed: n.nativeFeed,
			TokenFeed:  n.tokenFeed,
			Clock:      n.host,
		})
		if err != nil {
			return fmt.Errorf("deploy market: %w", err)
		}

		if err := n.nfts.SetAuctionMarket(cfg.Owner, cfg.MarketAddress); err != nil {
			return fmt.Errorf("link collection to market: %w", err)
		}

		n.box, err = donation.NewBox(donationAddress, cfg.Owner, n.bank, n.host)
		if err != nil {
			return fmt.Errorf("deploy donation box: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	signerMode := signerNone
	if signer != nil {
		signerMode = signer.Mode()
	}
	n.deployment = marketapi.Deployment{
		Network:        cfg.Network,
		Deployer:       cfg.Owner,
		DeploymentTime: n.host.Now(),
		Contracts: marketapi.DeployedContracts{
			NFT:           nftAddress,
			Token:         tokenAddress,
			AuctionMarket: cfg.MarketAddress,
			DonationBox:   donationAddress,
			PriceFeeds: marketapi.PriceFeedAddresses{
				NativeUSD: string(nativeFeedAddress),
				TokenUSD:  string(tokenFeedAddress),
			},
		},
		PlatformFeeBps: cfg.PlatformFeeBps,
		ReceiptSigner:  signerMode,
	}
	if cfg.NativeUSDPrice.IsZero() || cfg.TokenUSDPrice.IsZero() {
		n.deployment.Note = "Price feeds without an initial price report no data until set"
	}

	logger.Info("contracts deployed",
		"network", cfg.Network,
		"market", cfg.MarketAddress,
		"nft", nftAddress,
		"token", tokenAddress,
		"donation", donationAddress,
		"feeBps", cfg.PlatformFeeBps,
		"receipts", signerMode)

	return n, nil
}

// Deployment returns the record of what this node deployed.
func (n *Node) Deployment() marketapi.Deployment { return n.deployment }

// execute runs fn as one ledger transaction and returns the height it
// committed at.
func (n *Node) execute(fn func() error) (uint64, error) {
	var height uint64
	err := n.host.Execute(func() error {
		height = n.host.Height() + 1
		return fn()
	})
	return height, err
}

// signReceipt signs a settlement. A signing failure never undoes the
// settlement; the caller just gets no receipt.
func (n *Node) signReceipt(s *core.Settlement, height uint64) *marketapi.SignedReceipt {
	if n.signer == nil {
		return nil
	}

	receipt := marketapi.SettlementReceipt{
		Settlement: *s,
		Market:     n.market.Address(),
		Network:    n.cfg.Network,
		Height:     height,
	}
	coseBytes, err := n.signer.Sign(receipt)
	if err != nil {
		n.log.Warn("settlement receipt not signed", "auction", s.AuctionID, "err", err)
		return nil
	}

	return &marketapi.SignedReceipt{
		Receipt:    receipt,
		COSEBase64: coseBytes.EncodeBase64(),
		Signer:     n.signer.Mode(),
	}
}
