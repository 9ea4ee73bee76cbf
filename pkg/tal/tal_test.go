package tal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseValidTAL(t *testing.T) {
	key := EncodeKey([]byte{0x30, 0x82, 0x01, 0x22})
	content := "# comment\nrsync://rpki.example.net/repo/ta.cer\nhttps://rpki.example.net/ta.cer\n\n" + key + "\n"

	got, err := Parse("/tals/example.tal", strings.NewReader(content))
	require.NoError(t, err)
	require.Equal(t, "example", got.Name)
	require.Equal(t, []string{"rsync://rpki.example.net/repo/ta.cer", "https://rpki.example.net/ta.cer"}, got.URIs)
	require.Equal(t, []byte{0x30, 0x82, 0x01, 0x22}, got.Key)
}

func TestParseRejectsNoURIs(t *testing.T) {
	_, err := Parse("empty.tal", strings.NewReader("\nQUJD\n"))
	require.Error(t, err)
}

func TestParseRejectsBadKey(t *testing.T) {
	content := "rsync://rpki.example.net/repo/ta.cer\n\nnot-valid-base64!!!\n"
	_, err := Parse("bad.tal", strings.NewReader(content))
	require.Error(t, err)
}

func TestKeyRoundTrip(t *testing.T) {
	der := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	enc := EncodeKey(der)
	dec, err := DecodeKey(enc)
	require.NoError(t, err)
	require.Equal(t, der, dec)
}
