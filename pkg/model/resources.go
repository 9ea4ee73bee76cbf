// Package model holds the plain data types shared across the validation
// pipeline: resource primitives (addresses, ranges, certificate resource
// extensions) and the signed-object structs produced by the parser.
package model

import (
	"bytes"
	"fmt"
)

// AFI distinguishes the two address families a resource can belong to.
type AFI int

const (
	AFIv4 AFI = iota
	AFIv6
)

func (a AFI) String() string {
	if a == AFIv4 {
		return "ipv4"
	}
	return "ipv6"
}

// bitWidth returns the address width in bits for the family.
func (a AFI) bitWidth() int {
	if a == AFIv4 {
		return 32
	}
	return 128
}

// byteWidth returns the address width in bytes for the family.
func (a AFI) byteWidth() int {
	return a.bitWidth() / 8
}

// BitWidthExported returns the address width in bits. Exported for
// callers outside this package (certparse's RFC 3779 decoder) that need
// to reconstruct a full-width address from a DER BIT STRING.
func (a AFI) BitWidthExported() int { return a.bitWidth() }

// ByteWidthExported is the byte-count counterpart of BitWidthExported.
func (a AFI) ByteWidthExported() int { return a.byteWidth() }

// IPAddr is a binary address prefix, stored left-aligned in a 16-byte
// buffer regardless of family, together with its prefix length in bits.
type IPAddr struct {
	AFI    AFI
	Bytes  [16]byte
	Length int // prefix length in bits
}

// IPRange is an inclusive minimum/maximum pair of equal-family addresses.
type IPRange struct {
	AFI      AFI
	Min, Max [16]byte
}

// NewIPAddr builds an IPAddr from family, raw address bytes and prefix
// length, masking off any bits beyond Length. addr is accepted in its
// DER BIT STRING form, which RFC 3779/6482 encode compressed to only
// the significant octets (10.0.0.0/8 is one byte, /16 is two, and so
// on) — addr is left-aligned into the fixed-width buffer and any
// unwritten trailing bytes stay zero.
func NewIPAddr(afi AFI, addr []byte, length int) (IPAddr, error) {
	w := afi.byteWidth()
	if len(addr) > w {
		return IPAddr{}, fmt.Errorf("model: address too long for %s: got %d bytes, want at most %d", afi, len(addr), w)
	}
	if length < 0 || length > afi.bitWidth() {
		return IPAddr{}, fmt.Errorf("model: prefix length %d out of range for %s", length, afi)
	}
	var out IPAddr
	out.AFI = afi
	out.Length = length
	copy(out.Bytes[:w], addr)
	maskInPlace(out.Bytes[:w], length)
	return out, nil
}

// maskInPlace zeroes bits beyond the given prefix length.
func maskInPlace(b []byte, length int) {
	fullBytes := length / 8
	rem := length % 8
	if fullBytes >= len(b) {
		return
	}
	if rem != 0 {
		keep := byte(0xFF << (8 - rem))
		b[fullBytes] &= keep
		fullBytes++
	}
	for i := fullBytes; i < len(b); i++ {
		b[i] = 0
	}
}

// CanonicalRange derives the inclusive (min,max) range covered by the
// prefix: min is the masked address, max has all host bits set to one.
func (a IPAddr) CanonicalRange() IPRange {
	w := a.AFI.byteWidth()
	var r IPRange
	r.AFI = a.AFI
	copy(r.Min[:w], a.Bytes[:w])
	copy(r.Max[:w], a.Bytes[:w])
	fullBytes := a.Length / 8
	rem := a.Length % 8
	if rem != 0 {
		hostMask := byte(0xFF >> rem)
		r.Max[fullBytes] |= hostMask
		fullBytes++
	}
	for i := fullBytes; i < w; i++ {
		r.Max[i] = 0xFF
	}
	return r
}

// Covers reports whether r fully contains inner (same family required).
func (r IPRange) Covers(inner IPRange) bool {
	if r.AFI != inner.AFI {
		return false
	}
	w := r.AFI.byteWidth()
	return bytes.Compare(r.Min[:w], inner.Min[:w]) <= 0 && bytes.Compare(r.Max[:w], inner.Max[:w]) >= 0
}

// Overlaps reports whether r and other share any address.
func (r IPRange) Overlaps(other IPRange) bool {
	if r.AFI != other.AFI {
		return false
	}
	w := r.AFI.byteWidth()
	return bytes.Compare(r.Min[:w], other.Max[:w]) <= 0 && bytes.Compare(other.Min[:w], r.Max[:w]) <= 0
}

// CertIPKind discriminates the three resource-extension forms a
// certificate can carry for a single address family.
type CertIPKind int

const (
	CertIPPrefix CertIPKind = iota
	CertIPRange
	CertIPInherit
)

// CertIP is one entry of a certificate's RFC 3779 IP resource extension.
type CertIP struct {
	AFI     AFI
	Kind    CertIPKind
	Prefix  IPAddr  // valid when Kind == CertIPPrefix
	Range   IPRange // valid when Kind == CertIPRange
	ranged  IPRange // canonical (min,max); computed, not valid for Inherit
	hasCidr bool
}

// NewCertIPPrefix builds a concrete prefix entry with its canonical range
// precomputed.
func NewCertIPPrefix(p IPAddr) CertIP {
	return CertIP{AFI: p.AFI, Kind: CertIPPrefix, Prefix: p, ranged: p.CanonicalRange(), hasCidr: true}
}

// NewCertIPRange builds a concrete range entry.
func NewCertIPRange(afi AFI, r IPRange) CertIP {
	return CertIP{AFI: afi, Kind: CertIPRange, Range: r, ranged: r, hasCidr: true}
}

// NewCertIPInherit builds an Inherit entry for the given family.
func NewCertIPInherit(afi AFI) CertIP {
	return CertIP{AFI: afi, Kind: CertIPInherit}
}

// CanonicalRange returns the entry's (min,max) range. Panics if called on
// an Inherit entry — callers must resolve Inherit against an ancestor
// before asking for a range.
func (c CertIP) CanonicalRange() IPRange {
	if !c.hasCidr {
		panic("model: CanonicalRange called on an Inherit CertIP entry")
	}
	return c.ranged
}

// CertASKind discriminates AS resource-extension forms.
type CertASKind int

const (
	CertASID CertASKind = iota
	CertASRange
	CertASInherit
)

// CertAS is one entry of a certificate's RFC 3779 AS resource extension.
type CertAS struct {
	Kind   CertASKind
	ID     uint32 // valid when Kind == CertASID
	Lo, Hi uint32 // valid when Kind == CertASRange
}

// Range returns the inclusive (lo,hi) this entry covers. Panics on
// Inherit, same convention as CertIP.CanonicalRange.
func (c CertAS) Range() (lo, hi uint32) {
	switch c.Kind {
	case CertASID:
		return c.ID, c.ID
	case CertASRange:
		return c.Lo, c.Hi
	default:
		panic("model: Range called on an Inherit CertAS entry")
	}
}
