package model

import (
	"crypto/x509"
	"math/big"
	"time"
)

// Tal is a parsed Trust Anchor Locator: the bootstrap pointer to a trust
// anchor's certificate plus the key used to authenticate it.
type Tal struct {
	Name string   // basename the TAL file was loaded from, sans extension
	URIs []string // rsync:// and/or https:// candidate locations, in order
	Key  []byte   // DER-encoded SubjectPublicKeyInfo
}

// Cert is a parsed and (for TAs) self-validated RPKI certificate plus the
// pointers the pipeline needs to keep walking the tree.
type Cert struct {
	X509 *x509.Certificate

	SKI []byte
	AKI []byte // nil only for a trust anchor

	AIA       string // Authority Information Access: issuer cert URI
	SIARepo   string // SIA id-ad-caRepository: rsync base URI for this CA's publication point
	SIAMft    string // SIA id-ad-rpkiManifest: this CA's manifest URI
	SIANotify string // SIA id-ad-rpkiNotify: optional RRDP notification URI
	CRLDP     string // CRL distribution point URI

	IPResources []CertIP
	ASResources []CertAS

	IsTA bool

	TAL string // owning TAL name

	Validated bool
}

// NotAfter is a small convenience accessor used throughout validation and
// VRP expiry derivation.
func (c *Cert) NotAfter() time.Time {
	return c.X509.NotAfter
}

// MftFile is one entry of a manifest's file list.
type MftFile struct {
	Name   string
	SHA256 [32]byte
}

// Mft is a parsed and CMS-unwrapped manifest.
type Mft struct {
	Path           string
	ManifestNumber uint64
	ThisUpdate     time.Time
	NextUpdate     time.Time
	Files          []MftFile
	Stale          bool

	EECert *Cert // the manifest's embedding EE certificate (X509, SKI and AKI only)
	TAL    string
}

// RoaIP is one prefix entry of a ROA.
type RoaIP struct {
	AFI       AFI
	Prefix    IPAddr
	MaxLength int
}

// Roa is a parsed and CMS-unwrapped Route Origin Authorization.
type Roa struct {
	ASID   uint32
	IPs    []RoaIP
	EECert *Cert
	TAL    string
	Expires time.Time
}

// Crl is a parsed X.509 CRL, indexed by its AKI (the issuing CA's SKI).
type Crl struct {
	AKI  []byte
	List *x509.RevocationList
}

// Revokes reports whether the CRL lists the given certificate serial.
func (c *Crl) Revokes(serial *big.Int) bool {
	if c.List == nil || serial == nil {
		return false
	}
	for _, rc := range c.List.RevokedCertificateEntries {
		if rc.SerialNumber.Cmp(serial) == 0 {
			return true
		}
	}
	return false
}

// Gbr is a parsed and CMS-unwrapped Ghostbuster record. The vCard body is
// carried verbatim; nothing in validation inspects it.
type Gbr struct {
	VCard  []byte
	EECert *Cert
	TAL    string
}

// Vrp is a single Validated ROA Payload: one (prefix, maxlength, asid)
// triple that survived validation, tagged with its origin TAL and expiry.
type Vrp struct {
	AFI       AFI
	Prefix    IPAddr
	MaxLength int
	ASID      uint32
	TAL       string
	Expires   time.Time
}

// Stats accumulates the run-wide counters named by the error-handling and
// output sections: per-category parse/validation failures, fetch
// failures by transport, and the final VRP counts.
type Stats struct {
	Certs       int
	CertsFail   int
	CertsInvalid int

	Roas        int
	RoasFail    int
	RoasInvalid int

	Mfts      int
	MftsFail  int
	MftsStale int

	RsyncFails int
	HTTPFails  int
	RRDPFails  int

	VRPs  int // pre-dedup total
	Uniqs int // distinct entries in the final VRP tree

	CleanedFiles int
	CleanedDirs  int

	Elapsed time.Duration
}
