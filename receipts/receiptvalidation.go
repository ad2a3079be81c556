package receipts

import (
	"fmt"
	"strings"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
)

// ReceiptValidationInput contains everything needed to validate a
// settlement receipt.
type ReceiptValidationInput struct {
	ReceiptCOSE marketapi.ReceiptCOSE

	// RequireEnclave rejects locally signed receipts.
	RequireEnclave bool

	// PCRConfigPath overrides the PCR file used for enclave receipts.
	PCRConfigPath string

	// TrustedSignerKeyPEM pins the public key of a local signer.
	TrustedSignerKeyPEM string

	// Expectations; zero values skip the check.
	AuctionID core.AuctionID
	Winner    *core.Address // pointer to "" expects no sale
	Amount    *core.Amount
}

// ValidateReceipt validates a settlement receipt and verifies:
// - COSE signature against the embedded certificate
// - Certificate: Nitro chain for enclave receipts, self-signed (optionally
//   pinned) for local receipts
// - PCRs against the known sets for enclave receipts
// - Auction, winner and final amount against the caller's expectations
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed receipt, missing config)
func ValidateReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	doc, receipt, err := input.ReceiptCOSE.ParseSettlementReceipt()
	if err != nil {
		return nil, fmt.Errorf("parse receipt: %w", err)
	}

	result := &ReceiptValidationResult{
		BaseValidationResult: BaseValidationResult{ValidationDetails: []string{}},
		Enclave:              doc.ModuleID != marketapi.LocalModuleID,
		Doc:                  doc,
		Receipt:              receipt,
	}

	if result.Enclave {
		if err := validateEnclaveEnvelope(input, doc, result); err != nil {
			return nil, err
		}
	} else {
		validateLocalEnvelope(input, doc, result)
	}

	if err := VerifyCOSESignature(input.ReceiptCOSE, doc.Certificate); err != nil {
		result.SignatureValid = false
		result.detail("COSE signature verification failed: %v", err)
	} else {
		result.SignatureValid = true
		result.detail("COSE signature verified")
	}

	result.AuctionValid = validateAuction(input, receipt, result)
	result.WinnerValid = validateWinner(input, receipt, result)
	result.AmountValid = validateAmount(input, receipt, result)

	return result, nil
}

func validateEnclaveEnvelope(input *ReceiptValidationInput, doc marketapi.ReceiptDoc, result *ReceiptValidationResult) error {
	path := ResolvePCRConfigPath(input.PCRConfigPath)
	knownPCRs, err := LoadPCRsFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load PCR configuration: %w", err)
	}

	pcrMatch, matchedSet := ValidatePCRs(doc.PCRs, knownPCRs)
	result.PCRsValid = pcrMatch
	if !pcrMatch {
		result.detail("PCR0: %s (no match)", doc.PCRs.ImageFileHash)
		result.detail("PCR1: %s (no match)", doc.PCRs.KernelHash)
		result.detail("PCR2: %s (no match)", doc.PCRs.ApplicationHash)
	} else {
		result.detail("PCR measurements valid")
		result.detail("Matched PCR set: #%d (commit: %s)", matchedSet, knownPCRs[matchedSet].CommitHash)
	}

	switch {
	case doc.Certificate == "":
		result.detail("Missing certificate")
	case len(doc.CABundle) == 0:
		result.detail("Missing CA bundle")
	default:
		if err := ValidateCertificateChain(doc.Certificate, doc.CABundle, doc.Timestamp); err != nil {
			result.detail("Certificate chain validation failed: %v", err)
		} else {
			result.CertificateValid = true
			result.detail("Certificate chain verified")
		}
	}
	return nil
}

func validateLocalEnvelope(input *ReceiptValidationInput, doc marketapi.ReceiptDoc, result *ReceiptValidationResult) {
	if input.RequireEnclave {
		result.detail("Receipt was signed locally (%s), enclave receipt required", doc.ModuleID)
		return
	}

	result.PCRsValid = true
	result.detail("Local receipt: PCR check skipped")

	if err := ValidateLocalCertificate(doc.Certificate, doc.Timestamp, input.TrustedSignerKeyPEM); err != nil {
		result.detail("Local certificate validation failed: %v", err)
		return
	}
	result.CertificateValid = true
	if input.TrustedSignerKeyPEM != "" {
		result.detail("Local certificate matches trusted signer key")
	} else {
		result.detail("Local certificate self-signed and valid (signer key not pinned)")
	}
}

func validateAuction(input *ReceiptValidationInput, receipt *marketapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if input.AuctionID == 0 {
		result.detail("Auction: %d (not checked)", receipt.AuctionID)
		return true
	}
	if input.AuctionID == receipt.AuctionID {
		result.detail("Auction validation passed: %d", receipt.AuctionID)
		return true
	}
	result.detail("Auction mismatch: expected %d, receipt has %d", input.AuctionID, receipt.AuctionID)
	return false
}

func validateWinner(input *ReceiptValidationInput, receipt *marketapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if input.Winner == nil {
		result.detail("Winner: %s (not checked)", winnerString(receipt.Winner))
		return true
	}

	want := *input.Winner
	if strings.EqualFold(string(want), string(receipt.Winner)) {
		if want.IsZero() {
			result.detail("Winner validation passed: no sale as expected")
		} else {
			result.detail("Winner validation passed: %s", want)
		}
		return true
	}

	result.detail("Winner mismatch: expected %s, receipt has %s", winnerString(want), winnerString(receipt.Winner))
	return false
}

func validateAmount(input *ReceiptValidationInput, receipt *marketapi.SettlementReceipt, result *ReceiptValidationResult) bool {
	if input.Amount == nil {
		result.detail("Final amount: %s %s (not checked)", receipt.FinalAmount, receipt.Currency)
		return true
	}
	if input.Amount.Equal(receipt.FinalAmount) {
		result.detail("Final amount validation passed: %s %s", receipt.FinalAmount, receipt.Currency)
		return true
	}
	result.detail("Final amount mismatch: expected %s, receipt has %s", input.Amount, receipt.FinalAmount)
	return false
}

func winnerString(a core.Address) string {
	if a.IsZero() {
		return "none"
	}
	return string(a)
}
