package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/nftmarket/core"
	"github.com/cloudx-io/nftmarket/marketapi"
	"github.com/cloudx-io/nftmarket/receipts"
)

// gzipBase64URLPrefix is how a gzip stream starts once base64url encoded.
const gzipBase64URLPrefix = "H4sI"

func main() {
	var (
		receiptInput   = flag.String("receipt", "", "Receipt: file path or inline value (base64, gzip base64url, or EndAuction JSON)")
		auctionID      = flag.Uint64("auction-id", 0, "Expected auction id (0 skips the check)")
		winner         = flag.String("winner", "", "Expected winner address; \"none\" expects no sale")
		amount         = flag.String("amount", "", "Expected final amount")
		requireEnclave = flag.Bool("require-enclave", false, "Reject locally signed receipts")
		pcrConfig      = flag.String("pcrs", "", "PCR config file (default: $RECEIPTS_PCR_CONFIG, then receipts/pcrs.json)")
		signerKey      = flag.String("signer-key", "", "PEM public key of the trusted local signer (file path or inline)")
		outputFormat   = flag.String("format", "text", "Output format: text or json")
		help           = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *receiptInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --receipt is required\n")
		os.Exit(1)
	}

	coseBytes, err := decodeReceipt(readInput(*receiptInput))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}

	input := &receipts.ReceiptValidationInput{
		ReceiptCOSE:    coseBytes,
		RequireEnclave: *requireEnclave,
		PCRConfigPath:  *pcrConfig,
		AuctionID:      core.AuctionID(*auctionID),
	}
	if *signerKey != "" {
		input.TrustedSignerKeyPEM = string(readInput(*signerKey))
	}
	if *winner != "" {
		w := core.Address(*winner)
		if strings.EqualFold(*winner, "none") {
			w = core.NoAddress
		}
		input.Winner = &w
	}
	if *amount != "" {
		a, err := decimal.NewFromString(*amount)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error parsing --amount: %v\n", err)
			os.Exit(2)
		}
		input.Amount = &a
	}

	result, err := receipts.ValidateReceipt(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Validates signed settlement receipts returned by market.EndAuction.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --receipt <value> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --receipt <value>                 Receipt as a file path or inline value")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --auction-id <id>                 Expected auction id")
	fmt.Println("  --winner <address|none>           Expected winner")
	fmt.Println("  --amount <decimal>                Expected final amount")
	fmt.Println("  --require-enclave                 Reject locally signed receipts")
	fmt.Println("  --pcrs <file>                     Known PCR sets (enclave receipts)")
	fmt.Println("  --signer-key <pem>                Trusted local signer public key")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Receipt Formats:")
	fmt.Println("  - the receipt_cose_base64 string")
	fmt.Println("  - gzip + base64url (starts with H4sI)")
	fmt.Println("  - the EndAuction reply or SignedReceipt JSON")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  receipt-validator --receipt end_auction_1.json --auction-id 1 --winner 0xbob --amount 1.8")
	fmt.Println("  receipt-validator --receipt H4sIAAAA... --require-enclave --format json")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readInput(input string) []byte {
	if data, err := os.ReadFile(input); err == nil {
		return data
	}
	return []byte(input)
}

// decodeReceipt accepts every form a receipt travels in.
func decodeReceipt(data []byte) (marketapi.ReceiptCOSE, error) {
	s := strings.TrimSpace(string(data))

	if strings.HasPrefix(s, "{") {
		var wrapper struct {
			Receipt *marketapi.SignedReceipt    `json:"receipt"`
			COSE    marketapi.ReceiptCOSEBase64 `json:"receipt_cose_base64"`
		}
		if err := json.Unmarshal([]byte(s), &wrapper); err != nil {
			return nil, fmt.Errorf("parse receipt JSON: %w", err)
		}
		switch {
		case wrapper.COSE != "":
			s = wrapper.COSE.String()
		case wrapper.Receipt != nil && wrapper.Receipt.COSEBase64 != "":
			s = wrapper.Receipt.COSEBase64.String()
		default:
			return nil, fmt.Errorf("no receipt_cose_base64 in JSON input")
		}
	}

	if strings.HasPrefix(s, gzipBase64URLPrefix) {
		return marketapi.ReceiptCOSEGzip(s).Decompress()
	}
	if coseBytes, err := marketapi.ReceiptCOSEBase64(s).Decode(); err == nil {
		return coseBytes, nil
	}
	return marketapi.ReceiptCOSEURLBase64(s).Decode()
}

func outputText(result *receipts.ReceiptValidationResult) {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println("============================")
	fmt.Println()

	if r := result.Receipt; r != nil {
		fmt.Println("Receipt:")
		fmt.Printf("  Auction:       %d (asset %d)\n", r.AuctionID, r.AssetID)
		fmt.Printf("  Seller:        %s\n", r.Seller)
		fmt.Printf("  Winner:        %s\n", winnerString(r.Winner))
		fmt.Printf("  Final amount:  %s %s\n", r.FinalAmount, r.Currency)
		fmt.Printf("  Fee:           %s (%d bps)\n", r.Fee, r.FeeBps)
		fmt.Printf("  Settled at:    %s (height %d)\n", r.SettledAt.UTC().Format("2006-01-02T15:04:05Z"), r.Height)
		fmt.Printf("  Signer:        %s\n", result.Doc.ModuleID)
		fmt.Println()
	}

	fmt.Println("Summary:")
	fmt.Printf("  Enclave:             %v\n", result.Enclave)
	fmt.Printf("  PCRs Valid:          %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:   %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:     %v\n", result.SignatureValid)
	fmt.Printf("  Auction Valid:       %v\n", result.AuctionValid)
	fmt.Printf("  Winner Valid:        %v\n", result.WinnerValid)
	fmt.Printf("  Amount Valid:        %v\n", result.AmountValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("============================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *receipts.ReceiptValidationResult) {
	output := map[string]any{
		"valid":             result.IsValid(),
		"enclave":           result.Enclave,
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"auction_valid":     result.AuctionValid,
		"winner_valid":      result.WinnerValid,
		"amount_valid":      result.AmountValid,
		"receipt":           result.Receipt,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}

func winnerString(a core.Address) string {
	if a.IsZero() {
		return "none"
	}
	return string(a)
}
