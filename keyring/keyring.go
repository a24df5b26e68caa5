// Package keyring materializes and persists the five keypairs bound to one
// DID: a secp256k1 signing key, an Ed25519 CBOR-signing key, secp256k1
// update and recovery keys, and an X25519 encryption key.
package keyring

import (
	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/keys"
)

// Well-known verification-method ids used in DID Documents (spec §3/§4.1).
const (
	SigningKeyID    = "#signingKey"
	EncryptionKeyID = "#encryptionKey"
)

// Keyring bundles the five keys associated with one device identity.
// All fields are present together or the keyring is not usable; see
// Load and Save.
type Keyring struct {
	Sign     sagecrypto.KeyPair // secp256k1
	SignCBOR sagecrypto.KeyPair // Ed25519
	Update   sagecrypto.KeyPair // secp256k1
	Recovery sagecrypto.KeyPair // secp256k1
	Encrypt  sagecrypto.KeyPair // X25519

	did string
}

// New generates a fresh keyring from the system CSPRNG. This is the
// default construction strategy (see SPEC_FULL.md §0 resolved open
// question); NewFromMnemonic is the alternative, recovery-phrase-driven
// strategy.
func New() (*Keyring, error) {
	sign, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	signCBOR, err := keys.GenerateEd25519KeyPair()
	if err != nil {
		return nil, err
	}
	update, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	recovery, err := keys.GenerateSecp256k1KeyPair()
	if err != nil {
		return nil, err
	}
	encrypt, err := keys.GenerateX25519KeyPair()
	if err != nil {
		return nil, err
	}

	return &Keyring{
		Sign:     sign,
		SignCBOR: signCBOR,
		Update:   update,
		Recovery: recovery,
		Encrypt:  encrypt,
	}, nil
}

// GetIdentifier returns the DID associated with this keyring by Save.
func (k *Keyring) GetIdentifier() (string, error) {
	if k.did == "" {
		return "", ErrDidNotFound
	}
	return k.did, nil
}

// bindDID associates a DID with an in-memory keyring; used by Save and by
// Load once the secure keystore's did marker has been read.
func (k *Keyring) bindDID(did string) {
	k.did = did
}
