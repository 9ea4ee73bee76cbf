// Package signedobj recovers the signed content and embedded EE
// certificate from the CMS SignedData envelopes manifests, ROAs and
// Ghostbuster records are published as. Raw ASN.1/CMS parsing is treated
// as an external collaborator's job: this package delegates the envelope
// mechanics to go.mozilla.org/pkcs7 and only adds the RPKI-specific
// eContentType check the library has no opinion on.
package signedobj

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"

	"go.mozilla.org/pkcs7"

	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// eContentType OIDs named in spec.md §4.1.
var (
	OIDManifest    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 26}
	OIDRouteOrigin = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 24}
	OIDGhostbuster = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 16, 1, 35}
)

// contentInfo and encapContentInfo are the two outer CMS layers we need
// to peek at to confirm eContentType before trusting the library's
// generic parse.
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,tag:0"`
}

type signedData struct {
	Version          int
	DigestAlgorithms asn1.RawValue `asn1:"set"`
	EncapContentInfo encapContentInfo
	Rest             asn1.RawValue `asn1:"optional"`
}

type encapContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"optional,explicit,tag:0"`
}

var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// Result is the recovered content plus the EE certificate that signed it.
type Result struct {
	Content []byte
	EECert  *x509.Certificate
}

// Recover unwraps a CMS SignedData object, checks that its eContentType
// matches want, verifies the signature against the embedded EE
// certificate, and returns the recovered content plus that certificate.
func Recover(der []byte, want asn1.ObjectIdentifier) (*Result, error) {
	var ci contentInfo
	if _, err := asn1.Unmarshal(der, &ci); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "CMS ContentInfo", err)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "CMS ContentInfo type", fmt.Errorf("not id-signedData"))
	}
	var sd signedData
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "CMS SignedData", err)
	}
	if !sd.EncapContentInfo.EContentType.Equal(want) {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "CMS eContentType", fmt.Errorf("got %v, want %v", sd.EncapContentInfo.EContentType, want))
	}

	p7, err := pkcs7.Parse(der)
	if err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "pkcs7 parse", err)
	}
	ee := p7.GetOnlySigner()
	if ee == nil {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "CMS signer", fmt.Errorf("no embedded EE certificate"))
	}
	if err := p7.Verify(); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Validation, "CMS signature", err)
	}
	return &Result{Content: p7.Content, EECert: ee}, nil
}
