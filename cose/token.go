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

// Package cose signs and verifies CBOR payloads with Ed25519 via
// COSE_Sign1, for the studio-bound telemetry path.
package cose

import "time"

const tokenLifetime = time.Hour

// Token binds a signed message to the did that produced it and an
// expiry, so a verifier can reject stale messages without a live
// connection to the signer.
type Token struct {
	DID string    `cbor:"did"`
	Exp time.Time `cbor:"exp"`
}

// NewToken returns a Token for did that expires one hour from now.
func NewToken(did string) Token {
	return Token{DID: did, Exp: time.Now().UTC().Add(tokenLifetime)}
}

// WithToken pairs a Token with an arbitrary CBOR-serializable payload,
// mirroring the original WithToken<M> envelope.
type WithToken[T any] struct {
	Token Token `cbor:"token"`
	Inner T     `cbor:"inner"`
}
