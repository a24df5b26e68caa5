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

// Package didcomm carries a verifiable credential inside an authenticated,
// confidential envelope addressed to a peer DID, generalizing the
// teacher's HPKE handshake helpers (crypto/keys/x25519.go's
// HPKEDeriveSharedSecretToPeer / HPKEOpenSharedSecretWithPriv) from a
// session-establishment transcript to a one-shot sealed message.
package didcomm

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"

	"github.com/sage-x-project/sage/crypto/keys"
	"github.com/sage-x-project/sage/did/sidetree"
	"github.com/sage-x-project/sage/keyring"
	"github.com/sage-x-project/sage/vc"
)

const (
	hpkeInfoLabel      = "sage-didcomm-envelope"
	hpkeExportLen      = 32
	envelopeAlgorithm  = "ECDH-HPKE-X25519-AES256GCM"
)

// Attachment is an additional piece of data authenticated alongside the
// envelope's payload (bound as AEAD additional data, never encrypted
// itself) — spec §4.4: "authenticate any provided attachments as
// additional authenticated data."
type Attachment struct {
	ID   string `json:"id"`
	Data []byte `json:"data"`
}

type protectedHeader struct {
	Alg             string `json:"alg"`
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	EncapsulatedKey string `json:"epk"`
	HasMetadata     bool   `json:"has_metadata"`
}

// Envelope is the JWE-style wire structure spec §4.4 describes:
// protected header, recipient list (here always a single recipient —
// this layer addresses exactly one peer DID), iv/ciphertext/tag, and an
// optional attachments list carried in the clear but authenticated.
type Envelope struct {
	Protected   string       `json:"protected"`
	Recipients  []string     `json:"recipients"`
	IV          string       `json:"iv"`
	Ciphertext  string       `json:"ciphertext"`
	Tag         string       `json:"tag"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Generate encrypts credential for recipientDID, addressed from
// myKeyring's DID. It resolves the recipient's #encryptionKey, performs
// HPKE base-mode key agreement to that key from a fresh ephemeral key,
// and seals the serialized credential with attachments bound as
// additional authenticated data. myKeyring's X25519 key takes no part
// in the key agreement, so the key agreement does not authenticate the
// sender; the sender DID is carried only in the protected header.
func Generate(ctx context.Context, resolver sidetree.Resolver, credential *vc.Credential, myKeyring *keyring.Keyring, recipientDID string, attachments []Attachment) (*Envelope, error) {
	myDID, err := myKeyring.GetIdentifier()
	if err != nil {
		return nil, fmt.Errorf("didcomm: local did: %w", err)
	}

	recipientPub, err := resolvePeerEncryptionKey(ctx, resolver, recipientDID)
	if err != nil {
		return nil, err
	}

	aad := attachmentsAAD(attachments)
	info := []byte(hpkeInfoLabel + "|" + myDID + "|" + recipientDID)
	enc, secret, err := keys.HPKEDeriveSharedSecretToPeer(recipientPub, info, aad, hpkeExportLen)
	if err != nil {
		return nil, fmt.Errorf("didcomm: hpke key agreement: %w", err)
	}

	contentKey, err := deriveContentKey(secret, aad)
	if err != nil {
		return nil, err
	}

	plaintext, err := json.Marshal(credential)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSON, err)
	}

	iv, ciphertext, tag, err := seal(contentKey, plaintext, aad)
	if err != nil {
		return nil, fmt.Errorf("didcomm: seal: %w", err)
	}

	header := protectedHeader{
		Alg:             envelopeAlgorithm,
		Sender:          myDID,
		Recipient:       recipientDID,
		EncapsulatedKey: base64.RawURLEncoding.EncodeToString(enc),
		HasMetadata:     len(attachments) > 0,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("didcomm: marshal protected header: %w", err)
	}

	return &Envelope{
		Protected:   base64.RawURLEncoding.EncodeToString(headerBytes),
		Recipients:  []string{recipientDID},
		IV:          base64.RawURLEncoding.EncodeToString(iv),
		Ciphertext:  base64.RawURLEncoding.EncodeToString(ciphertext),
		Tag:         base64.RawURLEncoding.EncodeToString(tag),
		Attachments: attachments,
	}, nil
}

// Verify decrypts envelope using myKeyring's encryption key, checks that
// it is addressed to myKeyring's DID, and validates the inner credential
// via vc.Verify.
func Verify(ctx context.Context, resolver sidetree.Resolver, envelope *Envelope, myKeyring *keyring.Keyring, now time.Time) (*vc.Credential, error) {
	headerBytes, err := base64.RawURLEncoding.DecodeString(envelope.Protected)
	if err != nil {
		return nil, fmt.Errorf("%w: decode protected header: %v", ErrJSON, err)
	}
	var header protectedHeader
	if err := json.Unmarshal(headerBytes, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSON, err)
	}

	// Confirm the sender is a real, resolvable agent with an encryption
	// key before trusting anything else in the envelope.
	if _, err := resolvePeerEncryptionKey(ctx, resolver, header.Sender); err != nil {
		return nil, err
	}

	myDID, err := myKeyring.GetIdentifier()
	if err != nil {
		return nil, fmt.Errorf("didcomm: local did: %w", err)
	}
	if header.Recipient != myDID {
		return nil, ErrNotAddressedToMe
	}

	if header.HasMetadata && len(envelope.Attachments) == 0 {
		return nil, ErrMetadataBodyNotFound
	}

	encryptKP, ok := myKeyring.Encrypt.(*keys.X25519KeyPair)
	if !ok {
		return nil, fmt.Errorf("didcomm: local encrypt key is not X25519")
	}
	priv, ok := encryptKP.PrivateKey().(*ecdh.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("didcomm: local encrypt key is not X25519")
	}

	enc, err := base64.RawURLEncoding.DecodeString(header.EncapsulatedKey)
	if err != nil {
		return nil, fmt.Errorf("%w: decode encapsulated key: %v", ErrDecryptFailed, err)
	}

	aad := attachmentsAAD(envelope.Attachments)
	info := []byte(hpkeInfoLabel + "|" + header.Sender + "|" + header.Recipient)
	secret, err := keys.HPKEOpenSharedSecretWithPriv(priv, enc, info, aad, hpkeExportLen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	contentKey, err := deriveContentKey(secret, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	iv, err := base64.RawURLEncoding.DecodeString(envelope.IV)
	if err != nil {
		return nil, fmt.Errorf("%w: decode iv: %v", ErrDecryptFailed, err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", ErrDecryptFailed, err)
	}
	tag, err := base64.RawURLEncoding.DecodeString(envelope.Tag)
	if err != nil {
		return nil, fmt.Errorf("%w: decode tag: %v", ErrDecryptFailed, err)
	}

	plaintext, err := open(contentKey, iv, ciphertext, tag, aad)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptFailed, err)
	}

	var credential vc.Credential
	if err := json.Unmarshal(plaintext, &credential); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrJSON, err)
	}

	return vc.Verify(ctx, resolver, &credential, now)
}

func resolvePeerEncryptionKey(ctx context.Context, resolver sidetree.Resolver, did string) (*ecdh.PublicKey, error) {
	doc, err := resolver.FindIdentifier(ctx, did)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSidetreeFindRequestFailed, err)
	}

	vm, err := doc.FindVerificationMethod(keyring.EncryptionKeyID)
	if err != nil || vm.PublicKeyJwk == nil {
		return nil, fmt.Errorf("%w: %s", ErrDidPublicKeyNotFound, did)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(vm.PublicKeyJwk.X)
	if err != nil {
		return nil, fmt.Errorf("%w: decode jwk: %v", ErrDidPublicKeyNotFound, err)
	}
	pub, err := ecdh.X25519().NewPublicKey(xBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDidPublicKeyNotFound, err)
	}
	return pub, nil
}

// attachmentsAAD hashes the attachment set into a fixed-length export
// context so both sides derive the same HPKE export value, and binds
// attachments into the AEAD as additional authenticated data.
func attachmentsAAD(attachments []Attachment) []byte {
	h := sha256.New()
	for _, a := range attachments {
		h.Write([]byte(a.ID))
		h.Write(a.Data)
	}
	return h.Sum(nil)
}

// deriveContentKey expands the HPKE-exported secret into an AES-256 key
// via HKDF, salted by the attachments AAD so a change in attachments
// changes the key material used to seal the payload.
func deriveContentKey(secret, aad []byte) ([]byte, error) {
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, secret, aad, []byte(hpkeInfoLabel+"-content-key"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("didcomm: derive content key: %w", err)
	}
	return key, nil
}

func seal(key, plaintext, aad []byte) (iv, ciphertext, tag []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, nil, nil, err
	}
	sealed := aead.Seal(nil, iv, plaintext, aad)
	ciphertext = sealed[:len(sealed)-aead.Overhead()]
	tag = sealed[len(sealed)-aead.Overhead():]
	return iv, ciphertext, tag, nil
}

func open(key, iv, ciphertext, tag, aad []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, ciphertext...), tag...)
	return aead.Open(nil, iv, sealed, aad)
}
