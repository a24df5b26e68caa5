package keyring

import (
	"fmt"
	"os"
	"path/filepath"

	sagecrypto "github.com/sage-x-project/sage/crypto"
	"github.com/sage-x-project/sage/crypto/formats"
)

// Fixed slot names under which each of the five keys is persisted.
const (
	slotSign     = "sign"
	slotSignCBOR = "sign_cbor"
	slotUpdate   = "update"
	slotRecovery = "recovery"
	slotEncrypt  = "encrypt"
	didFileName  = "did.txt"
)

// SecureKeystore persists a Keyring's five slots and its associated DID to
// a directory on disk, one JWK-wrapped file per slot, following the same
// shape as the teacher's file-backed crypto.KeyStorage (one key per file,
// 0600 permissions, 0700 directory).
type SecureKeystore struct {
	storage  sagecrypto.KeyStorage
	directory string
}

// NewSecureKeystore opens (creating if absent) a keystore directory.
func NewSecureKeystore(directory string) (*SecureKeystore, error) {
	storage, err := newFileKeyStorage(directory)
	if err != nil {
		return nil, err
	}
	return &SecureKeystore{storage: storage, directory: directory}, nil
}

// newFileKeyStorage builds a JWK-backed file key storage rooted at directory,
// matching pkg/agent/crypto/storage/file.go's fileKeyStorage shape but kept
// local to this package so the keystore can also manage the did marker
// file alongside the five key slots.
func newFileKeyStorage(directory string) (sagecrypto.KeyStorage, error) {
	if err := os.MkdirAll(directory, 0700); err != nil {
		return nil, fmt.Errorf("keyring: create keystore directory: %w", err)
	}
	return &fileSlotStorage{
		directory: directory,
		exporter:  formats.NewJWKExporter(),
		importer:  formats.NewJWKImporter(),
	}, nil
}

// Load reads all five slots; per spec §4.1 this fails entirely
// (ErrKeyNotFound) if any single slot is missing — a keyring is never
// partially usable.
func (s *SecureKeystore) Load() (*Keyring, error) {
	sign, err := s.storage.Load(slotSign)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	signCBOR, err := s.storage.Load(slotSignCBOR)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	update, err := s.storage.Load(slotUpdate)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	recovery, err := s.storage.Load(slotRecovery)
	if err != nil {
		return nil, ErrKeyNotFound
	}
	encrypt, err := s.storage.Load(slotEncrypt)
	if err != nil {
		return nil, ErrKeyNotFound
	}

	k := &Keyring{
		Sign:     sign,
		SignCBOR: signCBOR,
		Update:   update,
		Recovery: recovery,
		Encrypt:  encrypt,
	}

	did, err := s.readDID()
	if err == nil {
		k.bindDID(did)
	}
	return k, nil
}

// Save atomically commits all five slots and associates did with them. If
// any write fails, every slot written so far in this call is removed so
// the keystore never observes a partial keyring (spec §4.1: "Saves must
// be all-or-nothing").
func (s *SecureKeystore) Save(k *Keyring, did string) error {
	type slot struct {
		name string
		kp   sagecrypto.KeyPair
	}
	slots := []slot{
		{slotSign, k.Sign},
		{slotSignCBOR, k.SignCBOR},
		{slotUpdate, k.Update},
		{slotRecovery, k.Recovery},
		{slotEncrypt, k.Encrypt},
	}

	written := make([]string, 0, len(slots))
	for _, sl := range slots {
		if err := s.storage.Store(sl.name, sl.kp); err != nil {
			s.rollback(written)
			return fmt.Errorf("keyring: save %s: %w", sl.name, err)
		}
		written = append(written, sl.name)
	}

	if err := s.writeDID(did); err != nil {
		s.rollback(written)
		return fmt.Errorf("keyring: save did: %w", err)
	}

	k.bindDID(did)
	return nil
}

func (s *SecureKeystore) rollback(written []string) {
	for _, name := range written {
		_ = s.storage.Delete(name)
	}
}

func (s *SecureKeystore) readDID() (string, error) {
	data, err := os.ReadFile(filepath.Join(s.directory, didFileName))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (s *SecureKeystore) writeDID(did string) error {
	return os.WriteFile(filepath.Join(s.directory, didFileName), []byte(did), 0600)
}

// IsInitialized reports whether a keyring and a DID have both been saved.
func (s *SecureKeystore) IsInitialized() bool {
	_, err := s.readDID()
	return err == nil && s.storage.Exists(slotSign)
}
