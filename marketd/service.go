package main

import (
	"net/http"
	"time"

	"github.com/gorilla/rpc/v2/json2"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// rpcError converts a rejection into a JSON-RPC error whose data is the
// stable wire code, so clients can match on it.
func rpcError(err error) error {
	if err == nil {
		return nil
	}
	e := &json2.Error{
		Code:    json2.E_SERVER,
		Message: err.Error(),
	}
	if code := marketapi.ErrorCode(err); code != "" {
		e.Data = code
	}
	return e
}

func call(caller core.Address, value core.Amount) core.Call {
	return core.Call{Caller: caller, Value: value}
}

// MarketService is the JSON-RPC surface of the auction market.
type MarketService struct{ node *Node }

func (s *MarketService) CreateAuction(r *http.Request, args *marketapi.CreateAuctionArgs, reply *marketapi.CreateAuctionReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var id core.AuctionID
	_, err = n.execute(func() error {
		var err error
		id, err = n.market.CreateAuction(call(caller, args.Value), core.CreateAuctionParams{
			AssetID:       args.AssetID,
			StartingPrice: args.StartingPrice,
			ReservePrice:  args.ReservePrice,
			Duration:      time.Duration(args.DurationSeconds) * time.Second,
			UseToken:      args.UseToken,
		})
		return err
	})
	if err != nil {
		n.log.Debug("create auction rejected", "seller", caller, "asset", args.AssetID, "err", err)
		return rpcError(err)
	}

	n.log.Info("auction created", "auction", id, "seller", caller, "asset", args.AssetID, "token", args.UseToken)
	reply.AuctionID = id
	return nil
}

func (s *MarketService) PlaceBid(r *http.Request, args *marketapi.PlaceBidArgs, reply *marketapi.AuctionReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var a core.Auction
	_, err = n.execute(func() error {
		if err := n.market.PlaceBid(call(caller, args.Value), args.AuctionID, args.Amount); err != nil {
			return err
		}
		var err error
		a, err = n.market.Auction(args.AuctionID)
		return err
	})
	if err != nil {
		n.log.Debug("bid rejected", "auction", args.AuctionID, "bidder", caller, "err", err)
		return rpcError(err)
	}

	n.log.Info("bid placed", "auction", a.ID, "bidder", a.HighestBidder, "amount", a.HighestBid)
	reply.Auction = a
	return nil
}

func (s *MarketService) EndAuction(r *http.Request, args *marketapi.AuctionArgs, reply *marketapi.EndAuctionReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var settlement *core.Settlement
	height, err := n.execute(func() error {
		var err error
		settlement, err = n.market.EndAuction(call(caller, decimal.Zero), args.AuctionID)
		return err
	})
	if err != nil {
		n.log.Debug("end auction rejected", "auction", args.AuctionID, "caller", caller, "err", err)
		return rpcError(err)
	}

	n.log.Info("auction ended",
		"auction", settlement.AuctionID,
		"winner", settlement.Winner,
		"amount", settlement.FinalAmount,
		"fee", settlement.Fee,
		"reserveMet", settlement.ReserveMet)

	reply.Settlement = *settlement
	reply.Receipt = n.signReceipt(settlement, height)
	return nil
}

func (s *MarketService) ClaimRefund(r *http.Request, args *marketapi.AuctionArgs, reply *marketapi.AmountReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var amount core.Amount
	_, err = n.execute(func() error {
		var err error
		amount, err = n.market.ClaimRefund(call(caller, decimal.Zero), args.AuctionID)
		return err
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("refund claimed", "auction", args.AuctionID, "bidder", caller, "amount", amount)
	reply.Amount = amount
	return nil
}

func (s *MarketService) WithdrawProceeds(r *http.Request, args *marketapi.CurrencyArgs, reply *marketapi.AmountReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var amount core.Amount
	_, err = n.execute(func() error {
		var err error
		amount, err = n.market.WithdrawProceeds(call(caller, decimal.Zero), currencyOrNative(args.Currency))
		return err
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("proceeds withdrawn", "seller", caller, "currency", args.Currency, "amount", amount)
	reply.Amount = amount
	return nil
}

func (s *MarketService) WithdrawFees(r *http.Request, args *marketapi.CurrencyArgs, reply *marketapi.AmountReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	var amount core.Amount
	_, err = n.execute(func() error {
		var err error
		amount, err = n.market.WithdrawFees(call(caller, decimal.Zero), currencyOrNative(args.Currency))
		return err
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("fees withdrawn", "owner", caller, "currency", args.Currency, "amount", amount)
	reply.Amount = amount
	return nil
}

func (s *MarketService) SetPlatformFee(r *http.Request, args *marketapi.SetPlatformFeeArgs, reply *marketapi.PlatformFeeReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if err := n.market.SetPlatformFee(call(caller, decimal.Zero), args.FeeBps); err != nil {
			return err
		}
		s.fillPlatformFee(reply)
		return nil
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("platform fee updated", "feeBps", args.FeeBps)
	return nil
}

func (s *MarketService) GetPlatformFee(_ *http.Request, _ *marketapi.EmptyArgs, reply *marketapi.PlatformFeeReply) error {
	s.node.host.View(func() { s.fillPlatformFee(reply) })
	return nil
}

func (s *MarketService) fillPlatformFee(reply *marketapi.PlatformFeeReply) {
	m := s.node.market
	reply.FeeBps = m.PlatformFeeBps()
	reply.Accumulated = make(map[core.Currency]core.Amount)
	for _, c := range m.Currencies() {
		reply.Accumulated[c] = m.AccumulatedFees(c)
	}
}

func (s *MarketService) GetAuction(_ *http.Request, args *marketapi.AuctionArgs, reply *marketapi.AuctionReply) error {
	var err error
	s.node.host.View(func() {
		reply.Auction, err = s.node.market.Auction(args.AuctionID)
	})
	return rpcError(err)
}

func (s *MarketService) GetPendingReturn(_ *http.Request, args *marketapi.PendingReturnArgs, reply *marketapi.AmountReply) error {
	s.node.host.View(func() {
		reply.Amount = s.node.market.PendingReturn(args.Bidder, args.AuctionID)
	})
	return nil
}

func (s *MarketService) GetProceeds(_ *http.Request, args *marketapi.ProceedsArgs, reply *marketapi.AmountReply) error {
	s.node.host.View(func() {
		reply.Amount = s.node.market.Proceeds(args.Seller, currencyOrNative(args.Currency))
	})
	return nil
}

func (s *MarketService) GetEvents(_ *http.Request, args *marketapi.EventsArgs, reply *marketapi.EventsReply) error {
	s.node.host.View(func() {
		reply.Events = s.node.market.Events(args.FromSeq)
		reply.Head = s.node.market.EventHead()
	})
	return nil
}

func (s *MarketService) GetPrices(_ *http.Request, _ *marketapi.EmptyArgs, reply *marketapi.PricesReply) error {
	s.node.host.View(func() {
		reply.Prices = s.node.market.CurrentPrices()
	})
	return nil
}

func (s *MarketService) GetValuation(_ *http.Request, args *marketapi.AuctionArgs, reply *marketapi.ValuationReply) error {
	var err error
	s.node.host.View(func() {
		reply.AuctionID = args.AuctionID
		reply.USD, err = s.node.market.Valuation(args.AuctionID)
	})
	return rpcError(err)
}

func (s *MarketService) Audit(_ *http.Request, _ *marketapi.EmptyArgs, reply *marketapi.AuditReply) error {
	s.node.host.View(func() {
		reply.Height = s.node.host.Height()
		if err := s.node.market.Audit(); err != nil {
			reply.Detail = err.Error()
			return
		}
		reply.Balanced = true
	})
	return nil
}

// currencyOrNative treats an empty currency as the native one, the way the
// zero token address does.
func currencyOrNative(c core.Currency) core.Currency {
	if c == "" {
		return core.NativeCurrency
	}
	return c
}
