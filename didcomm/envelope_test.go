package didcomm

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
	"github.com/sage-x-project/sage/vc"
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

func register(t *testing.T, resolver *fakeResolver, did string, kr *keyring.Keyring) {
	t.Helper()
	exporter := formats.NewJWKExporter()

	signData, err := exporter.ExportPublic(kr.Sign, sagecrypto.KeyFormatJWK)
	require.NoError(t, err)
	var signJwk formats.JWK
	require.NoError(t, json.Unmarshal(signData, &signJwk))

	encData, err := exporter.ExportPublic(kr.Encrypt, sagecrypto.KeyFormatJWK)
	require.NoError(t, err)
	var encJwk formats.JWK
	require.NoError(t, json.Unmarshal(encData, &encJwk))

	resolver.docs[did] = &sidetree.Document{
		ID: did,
		VerificationMethod: []sidetree.VerificationMethod{
			{ID: keyring.SigningKeyID, PublicKeyJwk: &signJwk},
			{ID: keyring.EncryptionKeyID, PublicKeyJwk: &encJwk},
		},
	}
}

func TestGenerateAndVerifyEnvelopeRoundTrip(t *testing.T) {
	sender, err := keyring.New()
	require.NoError(t, err)
	recipient, err := keyring.New()
	require.NoError(t, err)

	resolver := &fakeResolver{docs: map[string]*sidetree.Document{}}
	register(t, resolver, "did:sidetree:sender", sender)
	register(t, resolver, "did:sidetree:recipient", recipient)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	credential, err := vc.Generate("did:sidetree:sender", sender, map[string]string{"hello": "world"}, now)
	require.NoError(t, err)

	attachments := []Attachment{{ID: "a1", Data: []byte("meta")}}
	envelope, err := Generate(context.Background(), resolver, credential, sender, "did:sidetree:recipient", attachments)
	require.NoError(t, err)

	got, err := Verify(context.Background(), resolver, envelope, recipient, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, credential.IssuanceDate, got.IssuanceDate)
}

func TestVerifyRejectsWrongRecipient(t *testing.T) {
	sender, err := keyring.New()
	require.NoError(t, err)
	recipient, err := keyring.New()
	require.NoError(t, err)
	stranger, err := keyring.New()
	require.NoError(t, err)

	resolver := &fakeResolver{docs: map[string]*sidetree.Document{}}
	register(t, resolver, "did:sidetree:sender", sender)
	register(t, resolver, "did:sidetree:recipient", recipient)
	register(t, resolver, "did:sidetree:stranger", stranger)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	credential, err := vc.Generate("did:sidetree:sender", sender, map[string]string{"hello": "world"}, now)
	require.NoError(t, err)

	envelope, err := Generate(context.Background(), resolver, credential, sender, "did:sidetree:recipient", nil)
	require.NoError(t, err)

	_, err = Verify(context.Background(), resolver, envelope, stranger, now)
	assert.ErrorIs(t, err, ErrNotAddressedToMe)
}
