package parserproc

import (
	"crypto/x509"
	"encoding/asn1"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
	"github.com/cuemby/rpkivet/pkg/signedobj"
)

// oidAuthorityKeyIdentifier is RFC 5280's id-ce-authorityKeyIdentifier.
// x509.RevocationList doesn't surface this the way x509.Certificate
// surfaces AuthorityKeyId, so the CRL parser decodes it by hand.
var oidAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}

type authorityKeyIdentifier struct {
	KeyIdentifier []byte `asn1:"optional,tag:0"`
}

// extractKeyID decodes an AuthorityKeyIdentifier extension's value,
// returning the keyIdentifier field (the only part RPKI CRLs use).
func extractKeyID(extnValue []byte) []byte {
	var aki authorityKeyIdentifier
	if _, err := asn1.Unmarshal(extnValue, &aki); err != nil {
		return nil
	}
	return aki.KeyIdentifier
}

// ParseCRL parses an X.509 CRL and records the AKI (the issuing CA's
// SKI) the authority tree indexes CRLs by.
func ParseCRL(der []byte) (*model.Crl, error) {
	list, err := x509.ParseRevocationList(der)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "CRL", err)
	}
	var aki []byte
	for _, ext := range list.Extensions {
		if ext.Id.Equal(oidAuthorityKeyIdentifier) {
			aki = extractKeyID(ext.Value)
		}
	}
	return &model.Crl{AKI: aki, List: list}, nil
}

// ParseGBR recovers a Ghostbuster record's CMS envelope. The vCard body
// is carried verbatim; nothing here inspects its contents.
func ParseGBR(der []byte, tal string) (*model.Gbr, error) {
	res, err := signedobj.Recover(der, signedobj.OIDGhostbuster)
	if err != nil {
		return nil, err
	}
	return &model.Gbr{
		VCard: res.Content,
		TAL:   tal,
		EECert: &model.Cert{X509: res.EECert, SKI: res.EECert.SubjectKeyId, AKI: res.EECert.AuthorityKeyId},
	}, nil
}
