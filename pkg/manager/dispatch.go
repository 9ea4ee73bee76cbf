package manager

import (
	"crypto/sha256"
	"path/filepath"

	"github.com/cuemby/rpkivet/pkg/authority"
	"github.com/cuemby/rpkivet/pkg/cachefs"
	"github.com/cuemby/rpkivet/pkg/certparse"
	"github.com/cuemby/rpkivet/pkg/events"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/parserproc"
	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rlog"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// handleParseResponse routes a decoded (or failed) object to the right
// validation step and statistics counter.
func (m *Manager) handleParseResponse(resp parserproc.Response) {
	log := rlog.WithEntity(rlog.WithComponent("parser"), resp.Entity.LocalPath)

	switch resp.Entity.Kind {
	case repository.EntityTACert, repository.EntityChildCert:
		if resp.Err != nil {
			log.Warn().Err(resp.Err).Msg("certificate parse failed")
			m.countCertOutcome(resp.Err)
			return
		}
		m.admitCert(resp.Cert, resp.Entity.LocalPath)

	case repository.EntityManifest:
		if resp.Err != nil {
			log.Warn().Err(resp.Err).Msg("manifest parse failed")
			m.stats.MftsFail++
			return
		}
		m.handleManifest(resp.Entity, resp.Mft)

	case repository.EntityROA:
		if resp.Err != nil {
			log.Warn().Err(resp.Err).Msg("ROA parse failed")
			m.countRoaOutcome(resp.Err)
			return
		}
		vrps, err := authority.ValidateROA(m.Tree, resp.Roa)
		if err != nil {
			log.Warn().Err(err).Msg("ROA validation failed")
			m.countRoaOutcome(err)
			m.publish(events.Event{Type: events.RoaRejected, Subject: resp.Entity.LocalPath, Message: err.Error()})
			return
		}
		m.stats.Roas++
		for _, v := range vrps {
			m.VRPs.Insert(v)
		}
		m.publish(events.Event{Type: events.RoaAccepted, Subject: resp.Entity.LocalPath})

	case repository.EntityCRL:
		if resp.Err != nil {
			log.Warn().Err(resp.Err).Msg("CRL parse failed")
			return
		}
		m.Tree.InsertCRL(resp.Crl)

	case repository.EntityGBR:
		if resp.Err != nil {
			log.Warn().Err(resp.Err).Msg("ghostbuster record parse failed")
		}
	}
}

func (m *Manager) countCertOutcome(err error) {
	if rpkierrors.Is(err, rpkierrors.Validation) {
		m.stats.CertsInvalid++
		return
	}
	m.stats.CertsFail++
}

func (m *Manager) countRoaOutcome(err error) {
	if rpkierrors.Is(err, rpkierrors.Validation) {
		m.stats.RoasInvalid++
		return
	}
	m.stats.RoasFail++
}

// admitCert applies the authority tree's insertion discipline to cert.
// On success it kicks off that CA's own repository fetch (if it has
// one) and retries any certificates that were waiting on this SKI as
// their AKI.
func (m *Manager) admitCert(cert *model.Cert, debugPath string) {
	_, err := m.Tree.Insert(cert, debugPath)
	if err != nil {
		if err == authority.ErrDeferred {
			return
		}
		m.countCertOutcome(err)
		m.publish(events.Event{Type: events.CertRejected, Subject: certparse.HexEncode(cert.SKI), Message: err.Error()})
		return
	}
	m.stats.Certs++
	m.publish(events.Event{Type: events.CertValidated, Subject: certparse.HexEncode(cert.SKI)})
	m.scheduleOwnRepository(cert)

	for _, waiting := range m.Tree.FlushPending(cert.SKI) {
		m.admitCert(waiting, "")
	}
}

// scheduleOwnRepository enqueues the manifest walk for a CA certificate
// that owns its own publication point. An EE certificate signing a ROA
// or Ghostbuster record carries no SIA caRepository/manifest and is
// skipped here — it has no manifest of its own to walk.
func (m *Manager) scheduleOwnRepository(cert *model.Cert) {
	if cert.SIARepo == "" || cert.SIAMft == "" {
		return
	}
	transport := repository.TransportRsync
	if cert.SIANotify != "" {
		transport = repository.TransportRRDP
	}
	repo := m.registry.GetOrCreate(cert.SIARepo, transport, cert.SIANotify)
	m.ensureFetchStarted(cert.SIARepo, repo)

	mftPath := m.cachePathForURI(cert.SIAMft)
	m.registry.Enqueue(repository.NewEntity(repository.EntityManifest, mftPath, cert.SIARepo, cert.TAL))
}

// handleManifest walks a validated manifest's file list, verifying each
// entry's SHA-256 against the cached copy before enqueueing it as a
// parse request, per spec §4.3.
func (m *Manager) handleManifest(e repository.Entity, mft *model.Mft) {
	log := rlog.WithEntity(rlog.WithComponent("manager"), e.LocalPath)

	if mft.Stale {
		m.stats.MftsStale++
		return
	}

	if _, err := m.Tree.ValidateEE(mft.EECert); err != nil {
		log.Warn().Err(err).Msg("manifest EE certificate failed validation")
		m.stats.MftsFail++
		return
	}
	m.stats.Mfts++

	dir := filepath.Dir(e.LocalPath)

	for _, f := range mft.Files {
		path := filepath.Join(dir, f.Name)
		data, err := cachefs.ReadIfExists(path)
		if err != nil {
			log.Warn().Err(err).Str("file", f.Name).Msg("manifest entry unreadable")
			continue
		}
		if data == nil {
			log.Warn().Str("file", f.Name).Msg("manifest entry missing from cache")
			continue
		}
		sum := sha256.Sum256(data)
		if sum != f.SHA256 {
			log.Warn().Str("file", f.Name).Msg("manifest entry hash mismatch")
			continue
		}
		kind, ok := repository.KindFromSuffix(filepath.Ext(f.Name))
		if !ok {
			continue
		}
		m.registry.Enqueue(repository.NewEntity(kind, path, e.RepoURI, e.TAL))
	}
}
