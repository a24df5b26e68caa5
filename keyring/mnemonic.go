package keyring

import (
	"crypto/ecdh"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/keys"
)

// Derivation paths for the mnemonic-driven construction strategy, matching
// original_source/src/nodex/keyring/mnemonic.rs's SIGN/UPDATE/RECOVERY/
// ENCRYPT_DERIVATION_PATH constants. The CBOR signing key has no BIP32
// path in the original and is always generated fresh from the CSPRRNG.
var (
	signPath     = []uint32{44 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0, 10}
	updatePath   = []uint32{44 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0, 20}
	recoveryPath = []uint32{44 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0, 30}
	encryptPath  = []uint32{44 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0 | bip32.FirstHardenedChild, 0, 40}
)

// NewMnemonic generates a fresh 24-word BIP39 recovery phrase.
func NewMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(256)
	if err != nil {
		return "", fmt.Errorf("keyring: generate entropy: %w", err)
	}
	return bip39.NewMnemonic(entropy)
}

// NewFromMnemonic derives a keyring deterministically from a 24-word BIP39
// recovery phrase, using the derivation paths m/44'/0'/0'/0/{10,20,30,40}
// for sign/update/recovery/encrypt. The CBOR signing key is always
// generated fresh from the CSPRNG, matching the original's behavior.
func NewFromMnemonic(mnemonic, passphrase string) (*Keyring, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, ErrInvalidMnemonic
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("keyring: derive master key: %w", err)
	}

	sign, err := deriveSecp256k1(master, signPath)
	if err != nil {
		return nil, err
	}
	update, err := deriveSecp256k1(master, updatePath)
	if err != nil {
		return nil, err
	}
	recovery, err := deriveSecp256k1(master, recoveryPath)
	if err != nil {
		return nil, err
	}
	encrypt, err := deriveX25519(master, encryptPath)
	if err != nil {
		return nil, err
	}
	signCBOR, err := keys.GenerateEd25519KeyPair()
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

func derivePath(master *bip32.Key, path []uint32) (*bip32.Key, error) {
	key := master
	for _, idx := range path {
		var err error
		key, err = key.NewChildKey(idx)
		if err != nil {
			return nil, fmt.Errorf("keyring: derive child key: %w", err)
		}
	}
	return key, nil
}

func deriveSecp256k1(master *bip32.Key, path []uint32) (sagecrypto.KeyPair, error) {
	child, err := derivePath(master, path)
	if err != nil {
		return nil, err
	}
	priv := secp256k1.PrivKeyFromBytes(child.Key)
	return keys.NewSecp256k1KeyPair(priv, "")
}

// deriveX25519 reduces the derived secp256k1 scalar to a 32-byte X25519
// private scalar. X25519 has no native BIP32 derivation, so this project
// follows the common practice (also used where a single seed must produce
// both curve families) of feeding the same derived 32-byte key material
// directly into the X25519 private-key constructor.
func deriveX25519(master *bip32.Key, path []uint32) (sagecrypto.KeyPair, error) {
	child, err := derivePath(master, path)
	if err != nil {
		return nil, err
	}
	priv, err := ecdh.X25519().NewPrivateKey(child.Key)
	if err != nil {
		return nil, fmt.Errorf("keyring: derive x25519 key: %w", err)
	}
	return keys.NewX25519KeyPair(priv, "")
}
