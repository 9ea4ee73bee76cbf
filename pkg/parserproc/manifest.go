package parserproc

import (
	"crypto/sha256"
	"encoding/asn1"
	"fmt"
	"math/big"
	"time"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
	"github.com/cuemby/rpkivet/pkg/signedobj"
)

// manifestContent mirrors RFC 6486's Manifest SEQUENCE.
type manifestContent struct {
	Version        int `asn1:"optional,default:0,tag:0"`
	ManifestNumber *big.Int
	ThisUpdate     time.Time `asn1:"generalized"`
	NextUpdate     time.Time `asn1:"generalized"`
	FileHashAlg    asn1.ObjectIdentifier
	FileList       []fileAndHash
}

type fileAndHash struct {
	File string
	Hash asn1.BitString
}

// ParseManifest recovers and decodes a manifest's CMS envelope, marking
// it stale if now is past NextUpdate.
func ParseManifest(der []byte, path string, tal string, now time.Time) (*model.Mft, error) {
	res, err := signedobj.Recover(der, signedobj.OIDManifest)
	if err != nil {
		return nil, err
	}
	var content manifestContent
	if _, err := asn1.Unmarshal(res.Content, &content); err != nil {
		return nil, rpkierrors.Wrap(rpkierrors.Parse, "manifest content", err)
	}

	mft := &model.Mft{
		Path:           path,
		ManifestNumber: content.ManifestNumber.Uint64(),
		ThisUpdate:     content.ThisUpdate,
		NextUpdate:     content.NextUpdate,
		TAL:            tal,
		EECert:         &model.Cert{X509: res.EECert, SKI: res.EECert.SubjectKeyId, AKI: res.EECert.AuthorityKeyId},
	}
	mft.Stale = now.After(content.NextUpdate)

	mft.Files = make([]model.MftFile, 0, len(content.FileList))
	for _, f := range content.FileList {
		if len(f.Hash.Bytes) != sha256.Size {
			return nil, rpkierrors.Wrap(rpkierrors.Parse, "manifest file hash length", fmt.Errorf("%s: expected 32-byte SHA-256, got %d", f.File, len(f.Hash.Bytes)))
		}
		var sum [32]byte
		copy(sum[:], f.Hash.Bytes)
		mft.Files = append(mft.Files, model.MftFile{Name: f.File, SHA256: sum})
	}
	return mft, nil
}
