package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/model"
)

func sampleVRP(t *testing.T) model.Vrp {
	t.Helper()
	addr, err := model.NewIPAddr(model.AFIv4, []byte{10, 0, 0, 0}, 16)
	require.NoError(t, err)
	return model.Vrp{AFI: model.AFIv4, Prefix: addr, MaxLength: 24, ASID: 64496, TAL: "example"}
}

func TestWriteOpenBGPD(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOpenBGPD(&buf, []model.Vrp{sampleVRP(t)}))
	out := buf.String()
	require.True(t, strings.Contains(out, "10.0.0.0/16"))
	require.True(t, strings.Contains(out, "source-as 64496"))
	require.True(t, strings.Contains(out, "maxlen 24"))
}

func TestWriteBird(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBird(&buf, []model.Vrp{sampleVRP(t)}))
	require.True(t, strings.Contains(buf.String(), "route 10.0.0.0/16 max 24 as 64496;"))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, []model.Vrp{sampleVRP(t)}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[1], "AS64496")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, []model.Vrp{sampleVRP(t)}, 1700000000))
	require.True(t, strings.Contains(buf.String(), "\"asn\": 64496"))
}
