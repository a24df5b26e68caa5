package vc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/formats"
	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/keyring"
)

// fakeResolver resolves a single fixed Document, enough to exercise
// Verify without a network round trip.
type fakeResolver struct {
	docs map[string]*sidetree.Document
}

func (f *fakeResolver) FindIdentifier(_ context.Context, did string) (*sidetree.Document, error) {
	doc, ok := f.docs[did]
	if !ok {
		return nil, sidetree.ErrNotFound
	}
	return doc, nil
}

func (f *fakeResolver) CreateIdentifier(_ context.Context, _ *keyring.Keyring) (*sidetree.Document, error) {
	return nil, nil
}

func newFakeResolver(t *testing.T, did string, kr *keyring.Keyring) *fakeResolver {
	t.Helper()
	exporter := formats.NewJWKExporter()
	data, err := exporter.ExportPublic(kr.Sign, sagecrypto.KeyFormatJWK)
	require.NoError(t, err)

	var jwk formats.JWK
	require.NoError(t, json.Unmarshal(data, &jwk))

	doc := &sidetree.Document{
		ID: did,
		VerificationMethod: []sidetree.VerificationMethod{
			{ID: keyring.SigningKeyID, Type: signingKeyType, PublicKeyJwk: &jwk},
		},
	}
	return &fakeResolver{docs: map[string]*sidetree.Document{did: doc}}
}

func TestGenerateAndVerifyRoundTrip(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)

	did := "did:sidetree:issuer"
	resolver := newFakeResolver(t, did, kr)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	credential, err := Generate(did, kr, map[string]string{"role": "agent"}, now)
	require.NoError(t, err)
	require.NotNil(t, credential.Proof)

	verified, err := Verify(context.Background(), resolver, credential, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, credential.IssuanceDate, verified.IssuanceDate)
}

func TestVerifyRejectsTamperedSubject(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)

	did := "did:sidetree:issuer"
	resolver := newFakeResolver(t, did, kr)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	credential, err := Generate(did, kr, map[string]string{"role": "agent"}, now)
	require.NoError(t, err)

	credential.CredentialSubject = []byte(`{"role":"admin"}`)

	_, err = Verify(context.Background(), resolver, credential, now)
	assert.ErrorIs(t, err, ErrInvalidProof)
}

func TestVerifyRejectsExpiredCredential(t *testing.T) {
	kr, err := keyring.New()
	require.NoError(t, err)

	did := "did:sidetree:issuer"
	resolver := newFakeResolver(t, did, kr)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	credential, err := Generate(did, kr, map[string]string{"role": "agent"}, now)
	require.NoError(t, err)
	credential.ExpirationDate = now.Add(time.Hour).Format(time.RFC3339)

	_, err = Verify(context.Background(), resolver, credential, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, ErrExpired)
}
