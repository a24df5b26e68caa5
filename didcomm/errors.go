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

package didcomm

import "errors"

// Named failure kinds for envelope generation/verification, one per
// distinct reported error kind (spec §4.4 failure policy).
var (
	ErrDidPublicKeyNotFound      = errors.New("didcomm: peer encryption key not found")
	ErrDecryptFailed             = errors.New("didcomm: decryption failed")
	ErrNotAddressedToMe          = errors.New("didcomm: envelope not addressed to this did")
	ErrMetadataBodyNotFound      = errors.New("didcomm: promised metadata body absent")
	ErrSidetreeFindRequestFailed = errors.New("didcomm: sidetree resolution failed")
	ErrJSON                      = errors.New("didcomm: malformed inner credential")
)
