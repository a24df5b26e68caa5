package keyring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeneratesAllFiveKeys(t *testing.T) {
	k, err := New()
	require.NoError(t, err)

	assert.NotNil(t, k.Sign)
	assert.NotNil(t, k.SignCBOR)
	assert.NotNil(t, k.Update)
	assert.NotNil(t, k.Recovery)
	assert.NotNil(t, k.Encrypt)

	_, err = k.GetIdentifier()
	assert.ErrorIs(t, err, ErrDidNotFound)
}

func TestSecureKeystoreSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureKeystore(dir)
	require.NoError(t, err)

	k, err := New()
	require.NoError(t, err)

	require.NoError(t, store.Save(k, "did:example:123"))
	assert.True(t, store.IsInitialized())

	loaded, err := store.Load()
	require.NoError(t, err)

	did, err := loaded.GetIdentifier()
	require.NoError(t, err)
	assert.Equal(t, "did:example:123", did)

	assert.Equal(t, k.Sign.ID(), loaded.Sign.ID())
	assert.Equal(t, k.Encrypt.ID(), loaded.Encrypt.ID())
}

func TestSecureKeystoreLoadFailsOnPartialState(t *testing.T) {
	dir := t.TempDir()
	store, err := NewSecureKeystore(dir)
	require.NoError(t, err)

	k, err := New()
	require.NoError(t, err)
	require.NoError(t, store.Save(k, "did:example:123"))

	require.NoError(t, store.storage.Delete(slotEncrypt))

	_, err = store.Load()
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestNewFromMnemonicIsDeterministic(t *testing.T) {
	mnemonic, err := NewMnemonic()
	require.NoError(t, err)

	k1, err := NewFromMnemonic(mnemonic, "")
	require.NoError(t, err)
	k2, err := NewFromMnemonic(mnemonic, "")
	require.NoError(t, err)

	assert.Equal(t, k1.Sign.ID(), k2.Sign.ID())
	assert.Equal(t, k1.Update.ID(), k2.Update.ID())
	assert.Equal(t, k1.Recovery.ID(), k2.Recovery.ID())
	assert.Equal(t, k1.Encrypt.ID(), k2.Encrypt.ID())
	// the CBOR key is always generated fresh, even for identical mnemonics
	assert.NotEqual(t, k1.SignCBOR.ID(), k2.SignCBOR.ID())
}

func TestNewFromMnemonicRejectsInvalidPhrase(t *testing.T) {
	_, err := NewFromMnemonic("not a real mnemonic phrase at all", "")
	assert.ErrorIs(t, err, ErrInvalidMnemonic)
}
