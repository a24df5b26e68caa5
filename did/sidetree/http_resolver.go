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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/formats"
	"github.com/sage-x-project/sage/keyring"
)

// HTTPResolver talks to a sidetree node over plain HTTP/JSON, the same
// shape as pkg/agent/transport/http/client.go's HTTPTransport: a base URL,
// a *http.Client with a fixed timeout, context-aware requests.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver builds a resolver against a sidetree node reachable at
// baseURL (e.g. "https://sidetree.example.com").
func NewHTTPResolver(baseURL string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// NewHTTPResolverWithClient is NewHTTPResolver with caller-supplied
// transport/timeout/TLS configuration.
func NewHTTPResolverWithClient(baseURL string, client *http.Client) *HTTPResolver {
	return &HTTPResolver{baseURL: baseURL, client: client}
}

type createIdentifierRequest struct {
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication      []string            `json:"authentication"`
	AssertionMethod     []string            `json:"assertionMethod"`
	KeyAgreement        []string            `json:"keyAgreement"`
}

func (r *HTTPResolver) FindIdentifier(ctx context.Context, did string) (*Document, error) {
	url := r.baseURL + "/identifiers/" + did
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, did)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: sidetree returned %d: %s", ErrTransport, resp.StatusCode, string(body))
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &doc, nil
}

// CreateIdentifier publishes a Document with two verification methods,
// k's sign and encrypt keys, each exported as a public JWK (spec §4.1:
// private key material never leaves the agent). The CBOR-sign, update
// and recovery keys are not published, and no update or recovery
// commitment is sent. The signing key is published under keyring.SigningKeyID and the
// encryption key under keyring.EncryptionKeyID so later resolution can
// rely on Document.FindVerificationMethod to locate them unambiguously.
func (r *HTTPResolver) CreateIdentifier(ctx context.Context, k *keyring.Keyring) (*Document, error) {
	exporter := formats.NewJWKExporter()

	sign := k.Sign
	signJwk, err := exportPublicJWK(exporter, sign)
	if err != nil {
		return nil, fmt.Errorf("%w: export sign key: %v", ErrInvalid, err)
	}
	encryptJwk, err := exportPublicJWK(exporter, k.Encrypt)
	if err != nil {
		return nil, fmt.Errorf("%w: export encrypt key: %v", ErrInvalid, err)
	}

	reqBody := createIdentifierRequest{
		VerificationMethod: []VerificationMethod{
			{ID: keyring.SigningKeyID, Type: "EcdsaSecp256k1VerificationKey2019", PublicKeyJwk: signJwk},
			{ID: keyring.EncryptionKeyID, Type: "X25519KeyAgreementKey2019", PublicKeyJwk: encryptJwk},
		},
		Authentication:  []string{keyring.SigningKeyID},
		AssertionMethod: []string{keyring.SigningKeyID},
		KeyAgreement:    []string{keyring.EncryptionKeyID},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	url := r.baseURL + "/identifiers"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("%w: sidetree returned %d: %s", ErrTransport, resp.StatusCode, string(body))
	}

	var doc Document
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return &doc, nil
}

func exportPublicJWK(exporter sagecrypto.KeyExporter, kp sagecrypto.KeyPair) (*formats.JWK, error) {
	data, err := exporter.ExportPublic(kp, sagecrypto.KeyFormatJWK)
	if err != nil {
		return nil, err
	}
	var jwk formats.JWK
	if err := json.Unmarshal(data, &jwk); err != nil {
		return nil, err
	}
	return &jwk, nil
}
