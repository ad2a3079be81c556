package marketapi

import (
	"bytes"
	"compress/gzip"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cloudx-io/nftmarket/marketapi/parsing"
)

// ReceiptCOSE is the raw untagged COSE_Sign1 bytes of a signed receipt.
type ReceiptCOSE []byte

// ReceiptCOSEBase64 is a ReceiptCOSE in standard base64, as carried over JSON-RPC.
type ReceiptCOSEBase64 string

// ReceiptCOSEURLBase64 is a ReceiptCOSE in unpadded URL-safe base64.
type ReceiptCOSEURLBase64 string

// ReceiptCOSEGzip is a gzip-compressed ReceiptCOSE in unpadded URL-safe
// base64, short enough to share as a link parameter.
type ReceiptCOSEGzip string

// EncodeBase64 encodes the receipt for JSON transport
func (r ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(r))
}

// EncodeURLSafe encodes the receipt with URL-safe base64 and no padding
func (r ReceiptCOSE) EncodeURLSafe() ReceiptCOSEURLBase64 {
	return ReceiptCOSEURLBase64(base64.RawURLEncoding.EncodeToString(r))
}

// CompressGzip compresses the receipt and encodes it URL-safe.
// The gzip header carries no name or mtime, so output is deterministic.
func (r ReceiptCOSE) CompressGzip() (ReceiptCOSEGzip, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(r); err != nil {
		return "", fmt.Errorf("gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("gzip close: %w", err)
	}
	return ReceiptCOSEGzip(base64.RawURLEncoding.EncodeToString(buf.Bytes())), nil
}

// ParseReceiptDoc extracts the receipt document from the COSE payload.
// It returns the envelope and the raw user data (the JSON SettlementReceipt).
// The signature is not checked here; see the receipts package.
func (r ReceiptCOSE) ParseReceiptDoc() (ReceiptDoc, []byte, error) {
	payload, err := parsing.ExtractCOSEPayload(r)
	if err != nil {
		return ReceiptDoc{}, nil, fmt.Errorf("extract COSE payload: %w", err)
	}

	raw, err := parsing.DecodeReceiptDocument(payload)
	if err != nil {
		return ReceiptDoc{}, nil, err
	}

	doc := ReceiptDoc{
		ModuleID:        raw.ModuleID,
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs:            extractPCRs(raw.PCRs),
		CABundle:        parsing.EncodeCertificateBundle(raw.CABundle),
	}
	if len(raw.Certificate) > 0 {
		doc.Certificate = base64.StdEncoding.EncodeToString(raw.Certificate)
	}
	if len(raw.PublicKey) > 0 {
		doc.PublicKey = base64.StdEncoding.EncodeToString(raw.PublicKey)
	}
	if len(raw.Nonce) > 0 {
		doc.Nonce = string(raw.Nonce)
	}

	return doc, raw.UserData, nil
}

// ParseSettlementReceipt parses the envelope and decodes its user data.
func (r ReceiptCOSE) ParseSettlementReceipt() (ReceiptDoc, *SettlementReceipt, error) {
	doc, userData, err := r.ParseReceiptDoc()
	if err != nil {
		return ReceiptDoc{}, nil, err
	}
	if len(userData) == 0 {
		return doc, nil, fmt.Errorf("receipt user data missing")
	}

	var receipt SettlementReceipt
	if err := json.Unmarshal(userData, &receipt); err != nil {
		return doc, nil, fmt.Errorf("parse receipt user data: %w", err)
	}
	return doc, &receipt, nil
}

func (r ReceiptCOSEBase64) String() string { return string(r) }

// Decode decodes the standard base64 receipt
func (r ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(r))
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

// CompressGzip converts a base64 receipt into its compressed link form
func (r ReceiptCOSEBase64) CompressGzip() (ReceiptCOSEGzip, error) {
	raw, err := r.Decode()
	if err != nil {
		return "", err
	}
	return raw.CompressGzip()
}

func (r ReceiptCOSEURLBase64) String() string { return string(r) }

// Decode decodes URL-safe base64, restoring any stripped padding
func (r ReceiptCOSEURLBase64) Decode() (ReceiptCOSE, error) {
	s := strings.TrimRight(string(r), "=")
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode COSE base64url: %w", err)
	}
	return ReceiptCOSE(data), nil
}

func (r ReceiptCOSEGzip) String() string { return string(r) }

// Decompress reverses CompressGzip
func (r ReceiptCOSEGzip) Decompress() (ReceiptCOSE, error) {
	compressed, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(string(r), "="))
	if err != nil {
		return nil, fmt.Errorf("decode base64url: %w", err)
	}

	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("open gzip reader: %w", err)
	}
	defer zr.Close()

	data, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("read gzip data: %w", err)
	}
	return ReceiptCOSE(data), nil
}

// extractPCRs formats the raw CBOR PCR map
func extractPCRs(rawPCRs map[uint64][]byte) PCRs {
	return PCRs{
		ImageFileHash:   parsing.FormatPCR(rawPCRs[0]),
		KernelHash:      parsing.FormatPCR(rawPCRs[1]),
		ApplicationHash: parsing.FormatPCR(rawPCRs[2]),
		IAMRoleHash:     parsing.FormatPCR(rawPCRs[3]),
		InstanceIDHash:  parsing.FormatPCR(rawPCRs[4]),
		SigningCertHash: parsing.FormatPCR(rawPCRs[8]),
	}
}
