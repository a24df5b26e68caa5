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

// Package verify checks a downloaded update archive's Sigstore bundle
// before the controller ever extracts it, generalizing
// original_source/controller/src/validator/sigstore.rs's BundleVerifier
// from the Rust sigstore crate to github.com/sigstore/sigstore-go,
// following terassyi-tomei's internal/verify/sigstore.go for the Go
// SDK's call shape (sync.Once-cached LiveTrustedRoot, sgverify.Verifier,
// sgverify.NewShortCertificateIdentity).
package verify

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/sigstore/sigstore-go/pkg/bundle"
	"github.com/sigstore/sigstore-go/pkg/root"
	"github.com/sigstore/sigstore-go/pkg/tuf"
	sgverify "github.com/sigstore/sigstore-go/pkg/verify"
)

// ErrMissingRekorKey is returned when the trusted root's verifier cannot
// be constructed because no Rekor transparency-log key material is
// available, mirroring the original's VerifyError::MissingRekorKey.
var ErrMissingRekorKey = errors.New("verify: no rekor keys in trusted root")

// ArtifactVerifier checks an update archive against its Sigstore bundle
// before the controller trusts it enough to extract (spec §4.9: "refresh
// trust root, extract Rekor key, verify bundle signature, check cert
// identity/issuer, verify blob signature").
type ArtifactVerifier struct {
	trustedRootOnce sync.Once
	trustedRoot     *root.LiveTrustedRoot
	trustedRootErr  error
}

// NewArtifactVerifier builds an ArtifactVerifier. The Sigstore public-good
// trusted root is fetched lazily on first Verify call and cached for the
// controller process's lifetime.
func NewArtifactVerifier() *ArtifactVerifier {
	return &ArtifactVerifier{}
}

// Verify reads the Sigstore bundle at bundlePath and the artifact at
// blobPath, refreshes (or reuses) the cached trusted root, and checks
// that the bundle's certificate matches identity/issuer and that its
// signature covers blobPath's exact bytes.
func (v *ArtifactVerifier) Verify(bundlePath, blobPath, identity, issuer string) error {
	b, err := bundle.LoadJSONFromPath(bundlePath)
	if err != nil {
		return fmt.Errorf("verify: load bundle: %w", err)
	}

	blob, err := os.ReadFile(blobPath)
	if err != nil {
		return fmt.Errorf("verify: read artifact: %w", err)
	}

	trustedRoot, err := v.getTrustedRoot()
	if err != nil {
		return fmt.Errorf("verify: refresh trust root: %w", err)
	}

	verifier, err := sgverify.NewVerifier(
		trustedRoot,
		sgverify.WithSignedCertificateTimestamps(1),
		sgverify.WithTransparencyLog(1),
		sgverify.WithIntegratedTimestamps(1),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMissingRekorKey, err)
	}

	certIdentity, err := sgverify.NewShortCertificateIdentity(issuer, "", "", identity)
	if err != nil {
		return fmt.Errorf("verify: build certificate identity: %w", err)
	}

	if _, err := verifier.Verify(b, sgverify.NewPolicy(
		sgverify.WithArtifact(bytes.NewReader(blob)),
		sgverify.WithCertificateIdentity(certIdentity),
	)); err != nil {
		return fmt.Errorf("verify: verify bundle: %w", err)
	}

	return nil
}

func (v *ArtifactVerifier) getTrustedRoot() (*root.LiveTrustedRoot, error) {
	v.trustedRootOnce.Do(func() {
		v.trustedRoot, v.trustedRootErr = root.NewLiveTrustedRoot(tuf.DefaultOptions())
	})
	return v.trustedRoot, v.trustedRootErr
}
