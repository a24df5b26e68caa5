// Package sidetree provides an abstract DID Document type and resolver
// client, generalized from the teacher's chain-specific DID packages
// (did/ethereum, did/solana) to the "sidetree" external capability spec.md
// §1/§4.2 treats as an abstract collaborator rather than a blockchain.
package sidetree

import (
	"fmt"

	"github.com/sage-x-project/sage/crypto/formats"
)

// VerificationMethod is one public-key entry in a Document, shaped after
// other_examples' bryk-io DID Document (Context/Subject/VerificationMethod)
// adapted to carry a JWK (this project's keys round-trip through JWK via
// crypto/formats, not PEM or multibase).
type VerificationMethod struct {
	ID           string      `json:"id"`
	Type         string      `json:"type"`
	Controller   string      `json:"controller"`
	PublicKeyJwk *formats.JWK `json:"publicKeyJwk"`
}

// Service is a DID Document service endpoint entry.
type Service struct {
	ID              string `json:"id"`
	Type            string `json:"type"`
	ServiceEndpoint string `json:"serviceEndpoint"`
}

// Document is the resolved view of a DID (spec §3). Invariant: ID equals
// the DID that resolved it.
type Document struct {
	Context            []string              `json:"@context"`
	ID                 string                 `json:"id"`
	Controller         string                 `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod   `json:"verificationMethod"`
	Authentication     []string               `json:"authentication,omitempty"`
	AssertionMethod    []string               `json:"assertionMethod,omitempty"`
	KeyAgreement       []string               `json:"keyAgreement,omitempty"`
	Service            []Service              `json:"service,omitempty"`
}

// FindVerificationMethod looks up a verification method by its fragment id
// (e.g. "#signingKey"). It is an error for more than one entry to share an
// id; spec §4.3 requires exactly one #signingKey to exist.
func (d *Document) FindVerificationMethod(id string) (*VerificationMethod, error) {
	var found *VerificationMethod
	count := 0
	for i := range d.VerificationMethod {
		if d.VerificationMethod[i].ID == id {
			found = &d.VerificationMethod[i]
			count++
		}
	}
	if count == 0 {
		return nil, fmt.Errorf("%w: %s", ErrPublicKeyNotFound, id)
	}
	if count > 1 {
		return nil, fmt.Errorf("%w: %s", ErrAmbiguousPublicKey, id)
	}
	return found, nil
}
