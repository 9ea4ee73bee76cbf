package rrdp

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/cachefs"
)

func TestHasContiguousDeltas(t *testing.T) {
	deltas := []deltaRef{{Serial: 2}, {Serial: 3}, {Serial: 4}}
	require.True(t, hasContiguousDeltas(1, 4, deltas))
	require.False(t, hasContiguousDeltas(1, 5, deltas), "serial 5 missing from the delta list")

	gappy := []deltaRef{{Serial: 2}, {Serial: 4}}
	require.False(t, hasContiguousDeltas(1, 4, gappy), "serial 3 missing")
}

func TestCheckHash(t *testing.T) {
	content := []byte("hello rrdp")
	sum := sha256.Sum256(content)
	require.NoError(t, checkHash(hex.EncodeToString(sum[:]), content))
	require.Error(t, checkHash(hex.EncodeToString(sum[:]), []byte("tampered")))
	require.NoError(t, checkHash("", content), "empty hash means unconditional, per withdraw-less publish elements")
}

func TestStripBase64Whitespace(t *testing.T) {
	require.Equal(t, "aGVsbG8=", stripBase64Whitespace("aGVs\n  bG8=\t\r\n"))
}

func TestWritePublishDecodesLineWrappedBody(t *testing.T) {
	dir := t.TempDir()
	s := &Syncer{
		ToPath:  func(uri string) string { return filepath.Join(dir, "obj.cer") },
		Touched: cachefs.NewFilepathTree(),
	}
	// RRDP snapshots commonly wrap base64 content at 64/76 columns.
	err := s.writePublish(publishElem{URI: "rsync://repo.example/obj.cer", Body: "aGVs\nbG8g\ncnJk\ncA=="})
	require.NoError(t, err)

	got, err := cachefs.ReadIfExists(filepath.Join(dir, "obj.cer"))
	require.NoError(t, err)
	require.Equal(t, []byte("hello rrdp"), got)
}
