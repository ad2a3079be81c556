package marketapi

import (
	"time"

	"github.com/cloudx-io/nftmarket/core"
)

// LocalModuleID marks receipts signed with a node's own key rather than by
// an enclave's security module.
const LocalModuleID = "marketd-local"

// PCRs represents the Platform Configuration Registers of an enclave receipt
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// IsZero reports whether no PCR was measured, as for locally signed receipts.
func (p PCRs) IsZero() bool {
	return p == PCRs{}
}

// ReceiptDoc is the structured envelope of a signed settlement receipt
type ReceiptDoc struct {
	// Module ID identifies the signer ("marketd-local" or the enclave module)
	ModuleID string `json:"module_id"`

	// Timestamp when the receipt was signed
	Timestamp time.Time `json:"timestamp"`

	// Digest algorithm used (e.g., "SHA384")
	DigestAlgorithm string `json:"digest"`

	// PCRs measured by the enclave. Empty for local receipts.
	PCRs PCRs `json:"pcrs"`

	// Base64 DER certificate whose key signed the COSE envelope
	Certificate string `json:"certificate"`

	// Cabundle for certificate chain validation
	CABundle []string `json:"cabundle"`

	PublicKey string `json:"public_key"`
	Nonce     string `json:"nonce"`
}

// SettlementReceipt is the user data signed for every settled auction
type SettlementReceipt struct {
	core.Settlement
	Market  core.Address `json:"market"`
	Network string       `json:"network"`
	Height  uint64       `json:"height"`
}

// SignedReceipt pairs a receipt with its COSE_Sign1 envelope
type SignedReceipt struct {
	Receipt    SettlementReceipt `json:"receipt"`
	COSEBase64 ReceiptCOSEBase64 `json:"receipt_cose_base64"`
	Signer     string            `json:"signer"` // local or nsm
}

// PriceFeedAddresses names the oracles wired into a market.
type PriceFeedAddresses struct {
	NativeUSD string `json:"ethUsdPriceFeed"`
	TokenUSD  string `json:"erc20UsdPriceFeed"`
}

// DeployedContracts are the addresses of everything a node deploys at startup.
type DeployedContracts struct {
	NFT           core.Address       `json:"NFT"`
	Token         core.Address       `json:"MyToken"`
	AuctionMarket core.Address       `json:"AuctionMarket"`
	DonationBox   core.Address       `json:"DonationBox"`
	PriceFeeds    PriceFeedAddresses `json:"PriceFeeds"`
}

// Deployment is the record written to the deployment file
type Deployment struct {
	Network        string            `json:"network"`
	Deployer       core.Address      `json:"deployer"`
	DeploymentTime time.Time         `json:"deploymentTime"`
	Contracts      DeployedContracts `json:"contracts"`
	PlatformFeeBps uint32            `json:"platformFeeBps"`
	ReceiptSigner  string            `json:"receiptSigner"`
	Note           string            `json:"note,omitempty"`
}
