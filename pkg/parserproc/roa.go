package parserproc

import (
	"encoding/asn1"
	"fmt"

	"github.com/cuemby/rpkivet/pkg/certparse"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
	"github.com/cuemby/rpkivet/pkg/signedobj"
)

// roaContent mirrors RFC 6482's RouteOriginAttestation SEQUENCE.
type roaContent struct {
	Version      int `asn1:"optional,default:0,tag:0"`
	ASID         int64
	IPAddrBlocks []roaIPAddressFamily
}

type roaIPAddressFamily struct {
	AddressFamily []byte
	Addresses     []roaIPAddress
}

type roaIPAddress struct {
	Address   asn1.BitString
	MaxLength int `asn1:"optional,default:-1"`
}

// ParseROA recovers and decodes a ROA's CMS envelope.
func ParseROA(der []byte, tal string) (*model.Roa, error) {
	res, err := signedobj.Recover(der, signedobj.OIDRouteOrigin)
	if err != nil {
		return nil, err
	}
	var content roaContent
	if _, err := asn1.Unmarshal(res.Content, &content); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "ROA content", err)
	}

	roa := &model.Roa{
		ASID:    uint32(content.ASID),
		TAL:     tal,
		Expires: res.EECert.NotAfter,
		EECert:  &model.Cert{X509: res.EECert, SKI: res.EECert.SubjectKeyId, AKI: res.EECert.AuthorityKeyId},
	}

	for _, fam := range content.IPAddrBlocks {
		afi, err := certparse.DecodeAFIExported(fam.AddressFamily)
		if err != nil {
			return nil, err
		}
		for _, a := range fam.Addresses {
			prefix, err := model.NewIPAddr(afi, a.Address.Bytes, a.Address.BitLength)
			if err != nil {
				return nil, rpkierrors.Wrap(rpkierrors.Parse, "ROA prefix", err)
			}
			maxLen := a.MaxLength
			if maxLen < 0 {
				maxLen = prefix.Length
			}
			if maxLen < prefix.Length {
				return nil, rpkierrors.Wrap(rpkierrors.Validation, "ROA maxLength", fmt.Errorf("maxLength %d below prefix length %d", maxLen, prefix.Length))
			}
			if maxLen > afi.BitWidthExported() {
				return nil, rpkierrors.Wrap(rpkierrors.Validation, "ROA maxLength", fmt.Errorf("maxLength %d exceeds address width", maxLen))
			}
			roa.IPs = append(roa.IPs, model.RoaIP{AFI: afi, Prefix: prefix, MaxLength: maxLen})
		}
	}
	return roa, nil
}
