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

package cose

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/veraison/go-cose"

	"github.com/sage-x-project/sage/did/sidetree"
)

var (
	// ErrPayloadEmpty is returned when a COSE_Sign1 structure carries no
	// payload to decode.
	ErrPayloadEmpty = errors.New("cose: payload is empty")
	// ErrNotFoundPubkey is returned when the token's did does not resolve
	// or its document carries no verification method of the requested
	// key type.
	ErrNotFoundPubkey = errors.New("cose: verifying key not found")
	// ErrExpired is returned when a token's exp has already passed.
	ErrExpired = errors.New("cose: token expired")
)

var canonicalEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// SignMessage CBOR-encodes message canonically, wraps it in a
// COSE_Sign1 with protected algorithm EdDSA, signs it with signingKey,
// and returns the encoded COSE_Sign1 bytes.
func SignMessage[M any](signingKey ed25519.PrivateKey, message WithToken[M]) ([]byte, error) {
	payload, err := canonicalEncMode.Marshal(message)
	if err != nil {
		return nil, fmt.Errorf("cose: marshal message: %w", err)
	}

	signer, err := cose.NewSigner(cose.AlgorithmEdDSA, signingKey)
	if err != nil {
		return nil, fmt.Errorf("cose: create signer: %w", err)
	}

	sign1 := cose.NewSign1Message()
	sign1.Headers.Protected.SetAlgorithm(cose.AlgorithmEdDSA)
	sign1.Payload = payload

	if err := sign1.Sign(rand.Reader, nil, signer); err != nil {
		return nil, fmt.Errorf("cose: sign: %w", err)
	}

	data, err := sign1.MarshalCBOR()
	if err != nil {
		return nil, fmt.Errorf("cose: marshal sign1: %w", err)
	}
	return data, nil
}

// VerifyMessage parses a COSE_Sign1 structure, decodes its payload as
// WithToken[M], resolves the signing did via resolver, fetches the
// verification method named keyID, rejects an expired token, and
// verifies the COSE signature against that key.
func VerifyMessage[M any](ctx context.Context, resolver sidetree.Resolver, keyID string, data []byte) (WithToken[M], error) {
	var zero WithToken[M]

	var sign1 cose.Sign1Message
	if err := sign1.UnmarshalCBOR(data); err != nil {
		return zero, fmt.Errorf("cose: unmarshal sign1: %w", err)
	}
	if len(sign1.Payload) == 0 {
		return zero, ErrPayloadEmpty
	}

	var message WithToken[M]
	if err := cbor.Unmarshal(sign1.Payload, &message); err != nil {
		return zero, fmt.Errorf("cose: decode payload: %w", err)
	}

	doc, err := resolver.FindIdentifier(ctx, message.Token.DID)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrNotFoundPubkey, err)
	}
	vm, err := doc.FindVerificationMethod(keyID)
	if err != nil || vm.PublicKeyJwk == nil {
		return zero, ErrNotFoundPubkey
	}

	pub, err := ed25519PublicKeyFromJWK(vm.PublicKeyJwk)
	if err != nil {
		return zero, fmt.Errorf("%w: %v", ErrNotFoundPubkey, err)
	}

	if message.Token.Exp.Before(time.Now().UTC()) {
		return zero, ErrExpired
	}

	verifier, err := cose.NewVerifier(cose.AlgorithmEdDSA, pub)
	if err != nil {
		return zero, fmt.Errorf("cose: create verifier: %w", err)
	}
	if err := sign1.Verify(nil, verifier); err != nil {
		return zero, fmt.Errorf("cose: verify signature: %w", err)
	}

	return message, nil
}
