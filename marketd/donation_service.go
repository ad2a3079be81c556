package main

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// DonationService is the JSON-RPC surface of the donation box.
type DonationService struct{ node *Node }

func (s *DonationService) Donate(r *http.Request, args *marketapi.DonateArgs, reply *marketapi.DonationReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		if err := n.box.Donate(call(caller, args.Value)); err != nil {
			return err
		}
		s.fillDonation(caller, reply)
		return nil
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("donation received", "donor", caller, "amount", args.Value)
	return nil
}

func (s *DonationService) GetDonation(_ *http.Request, args *marketapi.DonationArgs, reply *marketapi.DonationReply) error {
	s.node.host.View(func() { s.fillDonation(args.Donor, reply) })
	return nil
}

func (s *DonationService) fillDonation(donor core.Address, reply *marketapi.DonationReply) {
	reply.Donor = donor
	reply.Amount = s.node.box.DonationOf(donor)
	reply.Total = s.node.box.Total()
}

func (s *DonationService) TopDonors(_ *http.Request, _ *marketapi.EmptyArgs, reply *marketapi.TopDonorsReply) error {
	s.node.host.View(func() { reply.Donors = s.node.box.TopDonors() })
	return nil
}

func (s *DonationService) Withdraw(r *http.Request, args *marketapi.CallerArgs, reply *marketapi.AmountReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		var err error
		reply.Amount, err = n.box.Withdraw(call(caller, decimal.Zero))
		return err
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("donations withdrawn", "owner", caller, "amount", reply.Amount)
	return nil
}

func (s *DonationService) SetWindow(r *http.Request, args *marketapi.SetWindowArgs, _ *marketapi.EmptyReply) error {
	n := s.node
	caller, err := n.caller(r, args.Caller)
	if err != nil {
		return rpcError(err)
	}
	_, err = n.execute(func() error {
		return n.box.SetDonationWindow(call(caller, decimal.Zero), args.Start, args.End)
	})
	if err != nil {
		return rpcError(err)
	}

	n.log.Info("donation window set", "start", args.Start, "end", args.End)
	return nil
}
