package certparse

import (
	"encoding/asn1"
	"fmt"

	"github.com/cuemby/rpkivet/pkg/model"
)

// RFC 3779 extension OIDs. Go's crypto/x509 doesn't know these, so they
// surface only as raw entries in Certificate.Extensions.
var (
	oidIPAddrBlocks  = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 7}
	oidASIdentifiers = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 8}
)

// ipAddressFamily mirrors IPAddressFamily from RFC 3779 §2.2.3.1.
type ipAddressFamily struct {
	AddressFamily []byte
	Choice        asn1.RawValue
}

// asIdentifiers mirrors ASIdentifiers from RFC 3779 §3.2.3.1. Both
// fields are optional context-tagged [0]/[1] EXPLICIT values; asn1.RawValue
// lets us inspect the tag before deciding how to decode the payload.
type asIdentifiers struct {
	ASNum asn1.RawValue `asn1:"optional,tag:0"`
	RDI   asn1.RawValue `asn1:"optional,tag:1"`
}

// ParseIPResources decodes the id-pe-ipAddrBlocks extension value into a
// flat list of CertIP entries, one per address-family/range-or-prefix.
func ParseIPResources(der []byte) ([]model.CertIP, error) {
	var families []ipAddressFamily
	if _, err := asn1.Unmarshal(der, &families); err != nil {
		return nil, fmt.Errorf("certparse: decode IPAddrBlocks: %w", err)
	}
	var out []model.CertIP
	for _, fam := range families {
		afi, err := decodeAFI(fam.AddressFamily)
		if err != nil {
			return nil, err
		}
		if fam.Choice.Tag == asn1.TagNull || len(fam.Choice.Bytes) == 0 && fam.Choice.Class == asn1.ClassUniversal && fam.Choice.Tag == 5 {
			out = append(out, model.NewCertIPInherit(afi))
			continue
		}
		var addrs []asn1.RawValue
		if _, err := asn1.Unmarshal(fam.Choice.FullBytes, &addrs); err != nil {
			return nil, fmt.Errorf("certparse: decode addressesOrRanges for %s: %w", afi, err)
		}
		for _, a := range addrs {
			entry, err := decodeIPAddressOrRange(afi, a)
			if err != nil {
				return nil, err
			}
			out = append(out, entry)
		}
	}
	return out, nil
}

// DecodeAFIExported is decodeAFI, exported for the ROA parser, which
// needs to interpret the same two-byte addressFamily encoding RFC 3779
// uses outside of a certificate extension.
func DecodeAFIExported(b []byte) (model.AFI, error) { return decodeAFI(b) }

func decodeAFI(b []byte) (model.AFI, error) {
	if len(b) < 2 {
		return 0, fmt.Errorf("certparse: short addressFamily value")
	}
	switch {
	case b[0] == 0 && b[1] == 1:
		return model.AFIv4, nil
	case b[0] == 0 && b[1] == 2:
		return model.AFIv6, nil
	default:
		return 0, fmt.Errorf("certparse: unknown address family %x", b)
	}
}

func decodeIPAddressOrRange(afi model.AFI, v asn1.RawValue) (model.CertIP, error) {
	// addressPrefix is a BIT STRING (universal tag 3); addressRange is a
	// SEQUENCE (universal tag 16, constructed).
	switch {
	case v.Class == asn1.ClassUniversal && v.Tag == asn1.TagBitString:
		var bits asn1.BitString
		if _, err := asn1.Unmarshal(v.FullBytes, &bits); err != nil {
			return model.CertIP{}, fmt.Errorf("certparse: decode addressPrefix: %w", err)
		}
		addr, err := model.NewIPAddr(afi, bits.Bytes, bits.BitLength)
		if err != nil {
			return model.CertIP{}, err
		}
		return model.NewCertIPPrefix(addr), nil
	case v.Class == asn1.ClassUniversal && v.Tag == asn1.TagSequence:
		var r struct {
			Min asn1.BitString
			Max asn1.BitString
		}
		if _, err := asn1.Unmarshal(v.FullBytes, &r); err != nil {
			return model.CertIP{}, fmt.Errorf("certparse: decode addressRange: %w", err)
		}
		minAddr, err := model.NewIPAddr(afi, r.Min.Bytes, afi.BitWidthExported())
		if err != nil {
			return model.CertIP{}, err
		}
		maxAddr, err := model.NewIPAddr(afi, r.Max.Bytes, afi.BitWidthExported())
		if err != nil {
			return model.CertIP{}, err
		}
		return model.NewCertIPRange(afi, model.IPRange{AFI: afi, Min: minAddr.Bytes, Max: padMax(maxAddr.Bytes, afi, r.Max.BitLength)}), nil
	default:
		return model.CertIP{}, fmt.Errorf("certparse: unrecognized IPAddressOrRange tag %d", v.Tag)
	}
}

// padMax fills the host bits of a range's max address with ones for any
// bits the DER BIT STRING left unspecified (RFC 3779 allows a shorter
// maximum encoding when trailing bits are all one).
func padMax(b [16]byte, afi model.AFI, bitLen int) [16]byte {
	w := afi.ByteWidthExported()
	fullBytes := bitLen / 8
	rem := bitLen % 8
	if rem != 0 {
		b[fullBytes] |= byte(0xFF >> rem)
		fullBytes++
	}
	for i := fullBytes; i < w; i++ {
		b[i] = 0xFF
	}
	return b
}

// ParseASResources decodes the id-pe-autonomousSysIds extension value.
// Only the asnum branch is used for validation; the RDI branch (routing
// domain identifiers) has no bearing on resource containment.
func ParseASResources(der []byte) ([]model.CertAS, error) {
	var ids asIdentifiers
	if _, err := asn1.Unmarshal(der, &ids); err != nil {
		return nil, fmt.Errorf("certparse: decode ASIdentifiers: %w", err)
	}
	if len(ids.ASNum.Bytes) == 0 && ids.ASNum.Tag != asn1.TagNull {
		return nil, nil
	}
	inner := ids.ASNum
	// The tag:0 field above already stripped the EXPLICIT [0] wrapper's
	// outer tag via asn1's "optional,tag:0" handling is not quite right
	// for EXPLICIT tags carrying a CHOICE; re-parse the raw content.
	if inner.IsCompound {
		var choice asn1.RawValue
		if _, err := asn1.Unmarshal(inner.Bytes, &choice); err == nil {
			inner = choice
		}
	}
	if inner.Tag == asn1.TagNull {
		return []model.CertAS{{Kind: model.CertASInherit}}, nil
	}
	var entries []asn1.RawValue
	if _, err := asn1.Unmarshal(inner.FullBytes, &entries); err != nil {
		return nil, fmt.Errorf("certparse: decode asIdsOrRanges: %w", err)
	}
	out := make([]model.CertAS, 0, len(entries))
	for _, e := range entries {
		switch {
		case e.Class == asn1.ClassUniversal && e.Tag == asn1.TagInteger:
			var id int64
			if _, err := asn1.Unmarshal(e.FullBytes, &id); err != nil {
				return nil, fmt.Errorf("certparse: decode ASId: %w", err)
			}
			out = append(out, model.CertAS{Kind: model.CertASID, ID: uint32(id)})
		case e.Class == asn1.ClassUniversal && e.Tag == asn1.TagSequence:
			var r struct{ Min, Max int64 }
			if _, err := asn1.Unmarshal(e.FullBytes, &r); err != nil {
				return nil, fmt.Errorf("certparse: decode ASRange: %w", err)
			}
			out = append(out, model.CertAS{Kind: model.CertASRange, Lo: uint32(r.Min), Hi: uint32(r.Max)})
		default:
			return nil, fmt.Errorf("certparse: unrecognized ASIdOrRange tag %d", e.Tag)
		}
	}
	return out, nil
}
