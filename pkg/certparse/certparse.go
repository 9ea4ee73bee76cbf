// Package certparse turns DER bytes into model.Cert values: trust-anchor
// certificates (self-signature checked against the TAL key) and child
// certificates (pointers extracted, signature left to the authority
// tree). Neither path re-implements X.509 path validation — both lean on
// crypto/x509 for signature checking and ASN.1 parsing.
package certparse

import (
	"crypto/x509"
	"encoding/asn1"
	"encoding/hex"
	"fmt"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

var oidSubjectInfoAccess = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 11}

// accessDescription mirrors the SubjectInfoAccessSyntax / AIA entries:
// SEQUENCE OF { accessMethod OID, accessLocation GeneralName }.
type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

var (
	oidAdCARepository = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 5}
	oidAdRpkiManifest = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 10}
	oidAdRpkiNotify   = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 13}
)

// HexEncode renders a key identifier for logs, matching the original
// implementation's hex_encode helper.
func HexEncode(id []byte) string { return hex.EncodeToString(id) }

// ParseTA parses a trust-anchor certificate: DER decode, verify the
// embedded public key matches the TAL's pinned key, verify the
// self-signature, require the SIA pointers a TA must carry, and reject
// any Inherit resource entry (a TA has no issuer to inherit from).
func ParseTA(der []byte, tal model.Tal) (*model.Cert, error) {
	xc, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "parse TA certificate", err)
	}
	if !keyMatches(xc, tal.Key) {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "TA public key mismatch", fmt.Errorf("cert key does not match TAL key"))
	}
	if err := xc.CheckSignatureFrom(xc); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "TA self-signature", err)
	}
	c, err := fromX509(xc)
	if err != nil {
		return nil, err
	}
	c.IsTA = true
	c.TAL = tal.Name
	if c.SIARepo == "" || c.SIAMft == "" {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "TA SIA pointers", fmt.Errorf("missing id-ad-caRepository or id-ad-rpkiManifest"))
	}
	for _, ip := range c.IPResources {
		if ip.Kind == model.CertIPInherit {
			return nil, rpkierrors.Wrap(rpkierrors.Validation, "TA resources", fmt.Errorf("trust anchor carries inherit for %s", ip.AFI))
		}
	}
	for _, as := range c.ASResources {
		if as.Kind == model.CertASInherit {
			return nil, rpkierrors.Wrap(rpkierrors.Validation, "TA resources", fmt.Errorf("trust anchor carries inherit for AS resources"))
		}
	}
	return c, nil
}

// ParseChild parses a non-TA certificate. Signature verification against
// its issuer is deliberately not performed here — that happens once the
// certificate is admitted to the authority tree, where the issuer is
// known to be present.
func ParseChild(der []byte) (*model.Cert, error) {
	xc, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "parse child certificate", err)
	}
	c, err := fromX509(xc)
	if err != nil {
		return nil, err
	}
	if len(c.AKI) == 0 {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "child certificate AKI", fmt.Errorf("non-TA certificate missing AuthorityKeyId"))
	}
	return c, nil
}

func keyMatches(xc *x509.Certificate, pinned []byte) bool {
	return string(xc.RawSubjectPublicKeyInfo) == string(pinned)
}

func fromX509(xc *x509.Certificate) (*model.Cert, error) {
	c := &model.Cert{
		X509: xc,
		SKI:  xc.SubjectKeyId,
		AKI:  xc.AuthorityKeyId,
	}
	if len(xc.IssuingCertificateURL) > 0 {
		c.AIA = xc.IssuingCertificateURL[0]
	}
	if len(xc.CRLDistributionPoints) > 0 {
		c.CRLDP = xc.CRLDistributionPoints[0]
	}
	if err := parseSIA(xc, c); err != nil {
		return nil, err
	}
	for _, ext := range xc.Extensions {
		switch {
		case ext.Id.Equal(oidIPAddrBlocks):
			ips, err := ParseIPResources(ext.Value)
			if err != nil {
				return nil, rpkierrors.Wrap(rpkierrors.Parse, "IP resource extension", err)
			}
			c.IPResources = ips
		case ext.Id.Equal(oidASIdentifiers):
			ases, err := ParseASResources(ext.Value)
			if err != nil {
				return nil, rpkierrors.Wrap(rpkierrors.Parse, "AS resource extension", err)
			}
			c.ASResources = ases
		}
	}
	return c, nil
}

// parseSIA decodes the Subject Information Access extension, which
// crypto/x509 leaves unparsed, and fills the CA-repository, manifest and
// RRDP-notify pointers.
func parseSIA(xc *x509.Certificate, c *model.Cert) error {
	for _, ext := range xc.Extensions {
		if !ext.Id.Equal(oidSubjectInfoAccess) {
			continue
		}
		var descs []accessDescription
		if _, err := asn1.Unmarshal(ext.Value, &descs); err != nil {
			return rpkierrors.Wrap(rpkierrors.Parse, "SIA extension", err)
		}
		for _, d := range descs {
			uri := string(d.Location.Bytes)
			switch {
			case d.Method.Equal(oidAdCARepository):
				c.SIARepo = uri
			case d.Method.Equal(oidAdRpkiManifest):
				c.SIAMft = uri
			case d.Method.Equal(oidAdRpkiNotify):
				c.SIANotify = uri
			}
		}
	}
	return nil
}
