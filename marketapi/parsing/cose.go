package parsing

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// COSESign1 is the decoded form of an untagged COSE_Sign1 message:
// [protected, unprotected, payload, signature]
type COSESign1 struct {
	Protected   []byte
	Unprotected map[any]any
	Payload     []byte
	Signature   []byte
}

// DecodeCOSESign1 splits a COSE_Sign1 4-element array into its parts
func DecodeCOSESign1(coseBytes []byte) (*COSESign1, error) {
	var coseArray []any
	err := cbor.Unmarshal(coseBytes, &coseArray)
	if err != nil {
		return nil, fmt.Errorf("parse COSE array: %w", err)
	}

	if len(coseArray) != 4 {
		return nil, fmt.Errorf("invalid COSE_Sign1 structure: expected 4 elements, got %d", len(coseArray))
	}

	msg := &COSESign1{}
	var ok bool
	if msg.Protected, ok = coseArray[0].([]byte); !ok {
		return nil, fmt.Errorf("invalid protected headers")
	}
	if msg.Payload, ok = coseArray[2].([]byte); !ok {
		return nil, fmt.Errorf("invalid payload in COSE structure")
	}
	if msg.Signature, ok = coseArray[3].([]byte); !ok {
		return nil, fmt.Errorf("invalid signature")
	}
	msg.Unprotected, _ = coseArray[1].(map[any]any)

	return msg, nil
}

// ExtractCOSEPayload returns the payload (element 2) of a COSE_Sign1 array
func ExtractCOSEPayload(coseBytes []byte) ([]byte, error) {
	msg, err := DecodeCOSESign1(coseBytes)
	if err != nil {
		return nil, err
	}
	return msg.Payload, nil
}

// SigStructure builds the COSE Sig_structure that is signed for a
// COSE_Sign1 message. External AAD is always empty for receipts.
func SigStructure(protected, payload []byte) ([]byte, error) {
	sigStructure := []any{
		"Signature1",
		protected,
		[]byte{},
		payload,
	}

	data, err := cbor.Marshal(sigStructure)
	if err != nil {
		return nil, fmt.Errorf("marshal Sig_structure: %w", err)
	}
	return data, nil
}

// EncodeCOSESign1 assembles an untagged COSE_Sign1 array
func EncodeCOSESign1(protected, payload, signature []byte) ([]byte, error) {
	data, err := cbor.Marshal([]any{
		protected,
		map[any]any{},
		payload,
		signature,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal COSE_Sign1: %w", err)
	}
	return data, nil
}
