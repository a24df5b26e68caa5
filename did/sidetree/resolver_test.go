package sidetree

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sage-x-project/sage/keyring"
)

func TestDocumentFindVerificationMethod(t *testing.T) {
	doc := &Document{
		VerificationMethod: []VerificationMethod{
			{ID: "#signingKey"},
			{ID: "#encryptionKey"},
		},
	}

	vm, err := doc.FindVerificationMethod("#signingKey")
	require.NoError(t, err)
	assert.Equal(t, "#signingKey", vm.ID)

	_, err = doc.FindVerificationMethod("#missing")
	assert.ErrorIs(t, err, ErrPublicKeyNotFound)
}

func TestDocumentFindVerificationMethodAmbiguous(t *testing.T) {
	doc := &Document{
		VerificationMethod: []VerificationMethod{
			{ID: "#signingKey"},
			{ID: "#signingKey"},
		},
	}

	_, err := doc.FindVerificationMethod("#signingKey")
	assert.ErrorIs(t, err, ErrAmbiguousPublicKey)
}

func TestHTTPResolverCreateAndFindIdentifier(t *testing.T) {
	k, err := keyring.New()
	require.NoError(t, err)

	var published Document
	mux := http.NewServeMux()
	mux.HandleFunc("/identifiers", func(w http.ResponseWriter, r *http.Request) {
		var req createIdentifierRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		published = Document{
			ID:                  "did:sidetree:test123",
			VerificationMethod:  req.VerificationMethod,
			Authentication:      req.Authentication,
			AssertionMethod:     req.AssertionMethod,
			KeyAgreement:        req.KeyAgreement,
		}
		w.WriteHeader(http.StatusCreated)
		require.NoError(t, json.NewEncoder(w).Encode(published))
	})
	mux.HandleFunc("/identifiers/did:sidetree:test123", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewEncoder(w).Encode(published))
	})
	mux.HandleFunc("/identifiers/did:sidetree:missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	resolver := NewHTTPResolver(srv.URL)

	doc, err := resolver.CreateIdentifier(context.Background(), k)
	require.NoError(t, err)
	assert.Equal(t, "did:sidetree:test123", doc.ID)

	found, err := resolver.FindIdentifier(context.Background(), "did:sidetree:test123")
	require.NoError(t, err)
	assert.Equal(t, doc.ID, found.ID)

	vm, err := found.FindVerificationMethod(keyring.SigningKeyID)
	require.NoError(t, err)
	assert.NotNil(t, vm.PublicKeyJwk)

	_, err = resolver.FindIdentifier(context.Background(), "did:sidetree:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
