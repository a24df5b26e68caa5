package cose

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage/crypto/formats"
	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/keyring"
)

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

type telemetryPayload struct {
	Metric string `cbor:"metric"`
	Value  int    `cbor:"value"`
}

func TestSignAndVerifyMessageRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	did := "did:sidetree:telemetry-signer"
	resolver := &fakeResolver{docs: map[string]*sidetree.Document{
		did: {
			ID: did,
			VerificationMethod: []sidetree.VerificationMethod{
				{ID: "#cborKey", PublicKeyJwk: &formats.JWK{
					Kty: "OKP",
					Crv: "Ed25519",
					X:   base64.RawURLEncoding.EncodeToString(pub),
				}},
			},
		},
	}}

	msg := WithToken[telemetryPayload]{
		Token: NewToken(did),
		Inner: telemetryPayload{Metric: "cpu", Value: 42},
	}

	data, err := SignMessage(priv, msg)
	require.NoError(t, err)

	got, err := VerifyMessage[telemetryPayload](context.Background(), resolver, "#cborKey", data)
	require.NoError(t, err)
	assert.Equal(t, msg.Inner, got.Inner)
}

func TestVerifyMessageRejectsExpiredToken(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	did := "did:sidetree:telemetry-signer"
	resolver := &fakeResolver{docs: map[string]*sidetree.Document{
		did: {
			ID: did,
			VerificationMethod: []sidetree.VerificationMethod{
				{ID: "#cborKey", PublicKeyJwk: &formats.JWK{
					Kty: "OKP",
					Crv: "Ed25519",
					X:   base64.RawURLEncoding.EncodeToString(pub),
				}},
			},
		},
	}}

	msg := WithToken[telemetryPayload]{
		Token: Token{DID: did, Exp: time.Now().UTC().Add(-time.Minute)},
		Inner: telemetryPayload{Metric: "cpu", Value: 1},
	}

	data, err := SignMessage(priv, msg)
	require.NoError(t, err)

	_, err = VerifyMessage[telemetryPayload](context.Background(), resolver, "#cborKey", data)
	assert.ErrorIs(t, err, ErrExpired)
}
