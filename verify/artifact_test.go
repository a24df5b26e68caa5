package verify

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewArtifactVerifierIsUsable(t *testing.T) {
	v := NewArtifactVerifier()
	require.NotNil(t, v)
}

func TestVerifyRejectsMissingBundleFile(t *testing.T) {
	v := NewArtifactVerifier()
	dir := t.TempDir()

	err := v.Verify(filepath.Join(dir, "missing-bundle.json"), filepath.Join(dir, "missing-blob"), "did:sidetree:agent", "https://sage.example.com")
	assert.Error(t, err)
}
