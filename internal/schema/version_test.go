package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckVersionOnCreate(t *testing.T) {
	require.NoError(t, CheckVersion("2025.09-1", "2025.09-1", nil))

	err := CheckVersion("2025.09-2", "2025.09-1", nil)
	require.Error(t, err)
	var mismatch *VersionMismatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "2025.09-1", mismatch.Expected)
	require.Equal(t, "2025.09-2", mismatch.Got)
	require.Empty(t, mismatch.Previous)
}

func TestCheckVersionOnUpdate(t *testing.T) {
	previous := "2025.09-1"
	require.NoError(t, CheckVersion("2025.09-1", "2025.09-1", &previous))

	// An ordinary edit must never migrate a document to a newer revision.
	err := CheckVersion("2025.09-2", "2025.09-2", &previous)
	require.Error(t, err)
	var mismatch *VersionMismatch
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, "2025.09-1", mismatch.Previous)
	require.Equal(t, "2025.09-2", mismatch.Got)
}

func TestCheckVersionOpaqueComparison(t *testing.T) {
	// Tags are opaque tokens; lexically "larger" versions are still
	// mismatches, never upgrades.
	require.Error(t, CheckVersion("2025.09-10", "2025.09-9", nil))
	require.NoError(t, CheckVersion("v1.0", "v1.0", nil))
}

func TestDocumentVersion(t *testing.T) {
	v, ok := DocumentVersion(map[string]any{"schema_version": "x"})
	require.True(t, ok)
	require.Equal(t, "x", v)

	_, ok = DocumentVersion(map[string]any{"schema_version": 3})
	require.False(t, ok)
	_, ok = DocumentVersion(map[string]any{})
	require.False(t, ok)
}
