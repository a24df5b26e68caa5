// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package vc produces and verifies W3C-style verifiable credentials signed
// with an agent's secp256k1 signing key, following the same
// marshal-without-proof-then-sign shape as the teacher's A2A agent card
// proof (pkg/agent/did/a2a_proof.go), generalized to an arbitrary
// credential subject container and to the sidetree resolver.
package vc

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"time"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/formats"
	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/keyring"
)

var (
	// ErrMissingSigningKey is returned when a credential's document
	// carries zero or more than one #signingKey verification method.
	ErrMissingSigningKey = errors.New("vc: exactly one signing key required")
	// ErrInvalidProof is returned when a credential's signature does not
	// verify against the resolved signing key.
	ErrInvalidProof = errors.New("vc: invalid proof")
	// ErrExpired is returned when a credential's expiration_date has
	// passed as of the verification time supplied by the caller.
	ErrExpired = errors.New("vc: credential expired")
)

// Proof is a secp256k1 JWS-style signature over the credential document
// with this field omitted.
type Proof struct {
	Type               string `json:"type"`
	Created            string `json:"created"`
	VerificationMethod string `json:"verificationMethod"`
	ProofPurpose       string `json:"proofPurpose"`
	ProofValue         string `json:"proofValue"`
}

// Credential is a W3C-style verifiable credential wrapping an arbitrary
// JSON-serializable container.
type Credential struct {
	Context           []string        `json:"@context"`
	Type              []string        `json:"type"`
	Issuer            Issuer          `json:"issuer"`
	IssuanceDate      string          `json:"issuance_date"`
	ExpirationDate    string          `json:"expiration_date,omitempty"`
	CredentialSubject json.RawMessage `json:"credential_subject"`
	Proof             *Proof          `json:"proof,omitempty"`
}

// Issuer identifies the DID that generated a credential.
type Issuer struct {
	ID string `json:"id"`
}

const signingKeyType = "EcdsaSecp256k1Signature2019"

// Generate builds a Credential wrapping container, signed by keyring's
// signing key, as of now. Spec §4.3: issuance_date is RFC3339, the proof
// covers the canonicalized document minus the proof field itself.
func Generate(issuerDID string, kr *keyring.Keyring, container any, now time.Time) (*Credential, error) {
	subject, err := json.Marshal(container)
	if err != nil {
		return nil, fmt.Errorf("vc: marshal credential subject: %w", err)
	}

	vc := &Credential{
		Context:           []string{"https://www.w3.org/2018/credentials/v1"},
		Type:              []string{"VerifiableCredential"},
		Issuer:            Issuer{ID: issuerDID},
		IssuanceDate:      now.UTC().Format(time.RFC3339),
		CredentialSubject: subject,
	}

	signInput, err := json.Marshal(vc)
	if err != nil {
		return nil, fmt.Errorf("vc: marshal signing input: %w", err)
	}
	// kr.Sign.Sign hashes its input with SHA-256 itself, so Verify's
	// sha256(signInput) is the digest that gets signed.
	signature, err := kr.Sign.Sign(signInput)
	if err != nil {
		return nil, fmt.Errorf("vc: sign credential: %w", err)
	}

	vc.Proof = &Proof{
		Type:               signingKeyType,
		Created:            now.UTC().Format(time.RFC3339),
		VerificationMethod: issuerDID + keyring.SigningKeyID,
		ProofPurpose:       "assertionMethod",
		ProofValue:         base64.RawURLEncoding.EncodeToString(signature),
	}
	return vc, nil
}

// Verify resolves vc.Issuer.ID via resolver, locates its #signingKey
// verification method, and checks the proof. now is compared against
// ExpirationDate when present.
func Verify(ctx context.Context, resolver sidetree.Resolver, vc *Credential, now time.Time) (*Credential, error) {
	if vc.Proof == nil {
		return nil, ErrInvalidProof
	}
	if vc.ExpirationDate != "" {
		exp, err := time.Parse(time.RFC3339, vc.ExpirationDate)
		if err != nil {
			return nil, fmt.Errorf("vc: parse expiration_date: %w", err)
		}
		if now.After(exp) {
			return nil, ErrExpired
		}
	}

	doc, err := resolver.FindIdentifier(ctx, vc.Issuer.ID)
	if err != nil {
		return nil, fmt.Errorf("vc: resolve issuer: %w", err)
	}

	vm, err := doc.FindVerificationMethod(keyring.SigningKeyID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingSigningKey, err)
	}
	if vm.PublicKeyJwk == nil {
		return nil, ErrMissingSigningKey
	}

	jwkBytes, err := json.Marshal(vm.PublicKeyJwk)
	if err != nil {
		return nil, fmt.Errorf("vc: marshal signing key jwk: %w", err)
	}

	importer := formats.NewJWKImporter()
	pub, err := importer.ImportPublic(jwkBytes, sagecrypto.KeyFormatJWK)
	if err != nil {
		return nil, fmt.Errorf("%w: import signing key: %v", ErrInvalidProof, err)
	}
	signingKey, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected signing key type", ErrInvalidProof)
	}

	signature, err := base64.RawURLEncoding.DecodeString(vc.Proof.ProofValue)
	if err != nil {
		return nil, fmt.Errorf("%w: decode proof value: %v", ErrInvalidProof, err)
	}
	r, s, err := deserializeSignature(signature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}

	unsigned := *vc
	unsigned.Proof = nil
	signInput, err := json.Marshal(&unsigned)
	if err != nil {
		return nil, fmt.Errorf("vc: marshal verification input: %w", err)
	}
	hash := sha256.Sum256(signInput)

	if !ecdsa.Verify(signingKey, hash[:], r, s) {
		return nil, fmt.Errorf("%w: signature mismatch", ErrInvalidProof)
	}
	return vc, nil
}

// deserializeSignature parses the fixed 64-byte r||s encoding produced by
// crypto/keys/secp256k1.go's Sign, which this package's Generate calls into.
func deserializeSignature(data []byte) (*big.Int, *big.Int, error) {
	if len(data) != 64 {
		return nil, nil, sagecrypto.ErrInvalidSignature
	}
	r := new(big.Int).SetBytes(data[:32])
	s := new(big.Int).SetBytes(data[32:])
	return r, s, nil
}
