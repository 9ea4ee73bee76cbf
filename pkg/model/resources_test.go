package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustIPAddr(t *testing.T, afi AFI, addr []byte, length int) IPAddr {
	t.Helper()
	a, err := NewIPAddr(afi, addr, length)
	require.NoError(t, err)
	return a
}

func TestCanonicalRangeIPv4(t *testing.T) {
	a := mustIPAddr(t, AFIv4, []byte{10, 0, 0, 0}, 8)
	r := a.CanonicalRange()
	require.Equal(t, [16]byte{10, 0, 0, 0}, r.Min)
	require.Equal(t, [16]byte{10, 255, 255, 255}, r.Max)
}

func TestCanonicalRangeMaskingOnConstruction(t *testing.T) {
	// Host bits in the input are masked off at construction, not just at
	// CanonicalRange time — matches the round-trip property in spec §8.
	a := mustIPAddr(t, AFIv4, []byte{10, 1, 2, 3}, 8)
	require.Equal(t, byte(0), a.Bytes[1])
	require.Equal(t, byte(0), a.Bytes[2])
	require.Equal(t, byte(0), a.Bytes[3])
}

func TestRangeCoversAndOverlaps(t *testing.T) {
	outer := mustIPAddr(t, AFIv4, []byte{10, 0, 0, 0}, 8).CanonicalRange()
	inner := mustIPAddr(t, AFIv4, []byte{10, 0, 0, 0}, 16).CanonicalRange()
	sibling := mustIPAddr(t, AFIv4, []byte{11, 0, 0, 0}, 16).CanonicalRange()

	require.True(t, outer.Covers(inner))
	require.False(t, inner.Covers(outer))
	require.False(t, outer.Covers(sibling))

	require.True(t, outer.Overlaps(inner))
	require.False(t, outer.Overlaps(sibling))
}

func TestCertIPInheritCanonicalRangePanics(t *testing.T) {
	c := NewCertIPInherit(AFIv4)
	require.Panics(t, func() { c.CanonicalRange() })
}

func TestCertASRange(t *testing.T) {
	lo, hi := CertAS{Kind: CertASRange, Lo: 64496, Hi: 64511}.Range()
	require.Equal(t, uint32(64496), lo)
	require.Equal(t, uint32(64511), hi)

	id, id2 := CertAS{Kind: CertASID, ID: 64496}.Range()
	require.Equal(t, uint32(64496), id)
	require.Equal(t, uint32(64496), id2)
}

func TestNewIPAddrRejectsOversizeLength(t *testing.T) {
	_, err := NewIPAddr(AFIv4, []byte{1, 2, 3, 4}, 33)
	require.Error(t, err)
}

func TestNewIPAddrAcceptsCompressedBitString(t *testing.T) {
	// RFC 3779/6482 encode prefixes as compressed DER BIT STRINGs holding
	// only the significant octets: 10.0.0.0/8 is a single content byte.
	a := mustIPAddr(t, AFIv4, []byte{10}, 8)
	r := a.CanonicalRange()
	require.Equal(t, [16]byte{10, 0, 0, 0}, r.Min)
	require.Equal(t, [16]byte{10, 255, 255, 255}, r.Max)
}

func TestNewIPAddrRejectsOversizeBytes(t *testing.T) {
	_, err := NewIPAddr(AFIv4, []byte{1, 2, 3, 4, 5}, 32)
	require.Error(t, err)
}
