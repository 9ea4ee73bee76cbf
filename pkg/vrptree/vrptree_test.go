package vrptree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/model"
)

func mustAddr(t *testing.T, b []byte, length int) model.IPAddr {
	t.Helper()
	a, err := model.NewIPAddr(model.AFIv4, b, length)
	require.NoError(t, err)
	return a
}

func TestInsertOrdersLexicographically(t *testing.T) {
	tr := New()
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: mustAddr(t, []byte{11, 0, 0, 0}, 16), MaxLength: 24, ASID: 1})
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: mustAddr(t, []byte{10, 0, 0, 0}, 16), MaxLength: 24, ASID: 1})
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: mustAddr(t, []byte{10, 0, 0, 0}, 8), MaxLength: 24, ASID: 1})

	all := tr.All()
	require.Len(t, all, 3)
	require.Equal(t, 8, all[0].Prefix.Length)
	require.Equal(t, 16, all[1].Prefix.Length)
	require.Equal(t, byte(11), all[2].Prefix.Bytes[0])
}

func TestInsertDedupesAcrossTALs(t *testing.T) {
	tr := New()
	p := mustAddr(t, []byte{10, 0, 0, 0}, 16)
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: p, MaxLength: 24, ASID: 64496, TAL: "tal-a", Expires: time.Now()})
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: p, MaxLength: 24, ASID: 64496, TAL: "tal-b", Expires: time.Now().Add(time.Hour)})

	require.Equal(t, 2, tr.Total())
	require.Equal(t, 1, tr.Uniqs())
}

func TestInsertKeepsDistinctMaxLengthSeparate(t *testing.T) {
	tr := New()
	p := mustAddr(t, []byte{10, 0, 0, 0}, 16)
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: p, MaxLength: 24, ASID: 1})
	tr.Insert(model.Vrp{AFI: model.AFIv4, Prefix: p, MaxLength: 32, ASID: 1})
	require.Equal(t, 2, tr.Uniqs())
}
