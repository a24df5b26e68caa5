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

package sidetree

import (
	"context"

	"github.com/sage-x-project/sage/keyring"
)

// Resolver publishes and looks up Documents against an external sidetree
// node. It is the only collaborator through which an agent's DID becomes
// visible to anyone else, and the abstraction boundary the teacher's
// chain-specific did/ethereum and did/solana resolvers generalize away
// from: this package knows nothing about which ledger backs the node.
type Resolver interface {
	// FindIdentifier resolves did to its current Document. Returns
	// ErrNotFound if no such DID has ever been created.
	FindIdentifier(ctx context.Context, did string) (*Document, error)

	// CreateIdentifier publishes a new Document built from k's public
	// keys and returns the Document the node accepted, DID included.
	CreateIdentifier(ctx context.Context, k *keyring.Keyring) (*Document, error)
}
