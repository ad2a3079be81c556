package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/ledger"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// LedgerService exposes the host ledger primitives: native balances, the
// NFT collection, the token and, on development nodes, the faucet, the
// price feeds and the clock.
type LedgerService struct{ node *Node }

func (s *LedgerService) Info(_ *http.Request, _ *marketapi.EmptyArgs, reply *marketapi.InfoReply) error {
	s.node.host.View(func() {
		reply.Deployment = s.node.Deployment()
		reply.Height = s.node.host.Height()
		reply.BlockTime = s.node.host.Now()
	})
	return nil
}

func (s *LedgerService) Fund(_ *http.Request, args *marketapi.FundArgs, reply *marketapi.BalanceReply) error {
	n := s.node
	if !n.cfg.DevFaucet {
		return rpcError(marketapi.ErrDevOnly)
	}
	_, err := n.execute(func() error {
		if args.Account.IsZero() {
			return ledger.ErrEmptyAddress
		}
		if err := n.bank.Credit(args.Account, args.Amount); err != nil {
			return err
		}
		reply.Account = args.Account
		reply.Balance = n.bank.BalanceOf(args.Account)
		return nil
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("faucet funded account", "account", args.Account, "amount", args.Amount)
	return nil
}

func (s *LedgerService) Balance(_ *http.Request, args *marketapi.AccountArgs, reply *marketapi.BalanceReply) error {
	s.node.host.View(func() {
		reply.Account = args.Account
		reply.Balance = s.node.bank.BalanceOf(args.Account)
	})
	return nil
}

func (s *LedgerService) MintAsset(r *http.Request, args *marketapi.MintAssetArgs, reply *marketapi.AssetReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		id, err := n.nfts.Mint(caller, args.To)
		if err != nil {
			return err
		}
		return s.fillAsset(id, reply)
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("asset minted", "asset", reply.AssetID, "to", reply.Owner)
	return nil
}

func (s *LedgerService) SetApprovalForAll(r *http.Request, args *marketapi.SetApprovalForAllArgs, _ *marketapi.EmptyReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if args.Operator.IsZero() {
			return ledger.ErrEmptyAddress
		}
		n.nfts.SetApprovalForAll(caller, args.Operator, args.Approved)
		return nil
	})
	return rpcError(err)
}

func (s *LedgerService) TransferAsset(r *http.Request, args *marketapi.TransferAssetArgs, reply *marketapi.AssetReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if err := n.nfts.Transfer(caller, args.AssetID, args.To); err != nil {
			return err
		}
		return s.fillAsset(args.AssetID, reply)
	})
	return rpcError(err)
}

func (s *LedgerService) GetAsset(_ *http.Request, args *marketapi.AssetArgs, reply *marketapi.AssetReply) error {
	var err error
	s.node.host.View(func() {
		err = s.fillAsset(args.AssetID, reply)
	})
	return rpcError(err)
}

func (s *LedgerService) fillAsset(id core.AssetID, reply *marketapi.AssetReply) error {
	owner, err := s.node.nfts.OwnerOf(id)
	if err != nil {
		return err
	}
	uri, err := s.node.nfts.TokenURI(id)
	if err != nil {
		return err
	}
	reply.AssetID = id
	reply.Owner = owner
	reply.TokenURI = uri
	reply.OnAuction = s.node.nfts.IsOnAuction(id)
	return nil
}

func (s *LedgerService) TransferToken(r *http.Request, args *marketapi.TransferTokenArgs, reply *marketapi.TokenBalanceReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if err := n.token.Transfer(caller, args.To, args.Amount); err != nil {
			return err
		}
		s.fillTokenBalance(caller, reply)
		return nil
	})
	return rpcError(err)
}

func (s *LedgerService) ApproveToken(r *http.Request, args *marketapi.ApproveTokenArgs, reply *marketapi.TokenBalanceReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if err := n.token.Approve(caller, args.Spender, args.Amount); err != nil {
			return err
		}
		s.fillTokenBalance(caller, reply)
		return nil
	})
	return rpcError(err)
}

func (s *LedgerService) TokenBalance(_ *http.Request, args *marketapi.AccountArgs, reply *marketapi.TokenBalanceReply) error {
	s.node.host.View(func() { s.fillTokenBalance(args.Account, reply) })
	return nil
}

func (s *LedgerService) fillTokenBalance(account core.Address, reply *marketapi.TokenBalanceReply) {
	reply.Account = account
	reply.Balance = s.node.token.BalanceOf(account)
	reply.Allowance = s.node.token.Allowance(account, s.node.market.Address())
}

func (s *LedgerService) SetPrice(_ *http.Request, args *marketapi.SetPriceArgs, _ *marketapi.EmptyReply) error {
	n := s.node
	if !n.cfg.DevFaucet {
		return rpcError(marketapi.ErrDevOnly)
	}

	var feed *ledger.PriceFeed
	switch args.Feed {
	case marketapi.NativeFeed:
		feed = n.nativeFeed
	case marketapi.TokenFeed:
		feed = n.tokenFeed
	default:
		return rpcError(fmt.Errorf("unknown feed %q", args.Feed))
	}

	_, err := n.execute(func() error { return feed.SetPrice(args.Price) })
	if err != nil {
		return rpcError(err)
	}
	n.log.Info("price updated", "feed", feed.Description(), "price", args.Price)
	return nil
}

func (s *LedgerService) AdvanceTime(_ *http.Request, args *marketapi.AdvanceTimeArgs, reply *marketapi.InfoReply) error {
	n := s.node
	if n.clock == nil {
		return rpcError(marketapi.ErrDevOnly)
	}
	if args.Seconds <= 0 {
		return rpcError(fmt.Errorf("seconds must be positive, got %d", args.Seconds))
	}

	n.clock.Advance(time.Duration(args.Seconds) * time.Second)
	// An empty transaction pins the new block time.
	_, err := n.execute(func() error { return nil })
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("clock advanced", "seconds", args.Seconds, "now", n.host.Now())
	return s.Info(nil, nil, reply)
}
