package receipts

import (
	"fmt"

	"github.com/cloudx-io/nftmarket/marketapi"
)

// BaseValidationResult contains the envelope checks shared by every receipt
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// ReceiptValidationResult contains validation results for a settlement receipt
type ReceiptValidationResult struct {
	BaseValidationResult

	// Enclave is true when the receipt was attested by a Nitro enclave
	Enclave bool

	AuctionValid bool
	WinnerValid  bool
	AmountValid  bool

	Doc     marketapi.ReceiptDoc
	Receipt *marketapi.SettlementReceipt
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.AuctionValid && r.WinnerValid && r.AmountValid
}

func (r *ReceiptValidationResult) detail(format string, args ...any) {
	r.ValidationDetails = append(r.ValidationDetails, fmt.Sprintf(format, args...))
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // nftmarket commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
