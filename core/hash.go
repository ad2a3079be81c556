package core

import (
	"crypto/sha256"
	"fmt"
)

// GenesisEventHash chains the first observation of a market.
const GenesisEventHash = "0000000000000000000000000000000000000000000000000000000000000000"

// ComputeEventHash computes the chained hash of an observation.
// Indexers recompute it to detect gaps or rewritten history.
//
// Formula: SHA256(prev_hash + "|" + seq + "|" + kind + "|" + auction_id + "|" +
// actor + "|" + counterparty + "|" + amount + "|" + currency + "|" + unix_nanos + "|" + detail)
//
// The amount is formatted with its canonical decimal string so that 1.5 and
// 1.50 hash identically.
func ComputeEventHash(prevHash string, e Event) string {
	data := fmt.Sprintf("%s|%d|%s|%d|%s|%s|%s|%s|%d|%s",
		prevHash,
		e.Seq,
		e.Kind,
		e.AuctionID,
		e.Actor,
		e.Counterparty,
		e.Amount.String(),
		e.Currency,
		e.Time.UnixNano(),
		e.Detail,
	)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// VerifyEventChain recomputes every hash in events, starting from prevHash.
// It returns the index of the first event whose hash does not match, or -1.
func VerifyEventChain(prevHash string, events []Event) int {
	for i, e := range events {
		if e.PrevHash != prevHash || ComputeEventHash(prevHash, e) != e.Hash {
			return i
		}
		prevHash = e.Hash
	}
	return -1
}
