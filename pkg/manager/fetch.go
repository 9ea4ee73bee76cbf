package manager

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/rpkivet/pkg/cachefs"
	"github.com/cuemby/rpkivet/pkg/fetch/rrdp"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/parserproc"
	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rlog"
)

// fetchResult is what a fetch goroutine reports back on fetchOut.
type fetchResult struct {
	RepoURI    string
	Err        error
	RRDPFailed bool // true if an RRDP attempt preceded a successful or failed rsync fallback
}

// newRRDPSyncer builds the shared RRDP synchroniser, or nil if no
// session store was configured — in that case every repository with a
// notify URI still falls back to rsync, it just never gets the
// incremental-delta fast path.
func newRRDPSyncer(m *Manager) *rrdp.Syncer {
	if m.cfg.Store == nil {
		return nil
	}
	return &rrdp.Syncer{
		HTTP:    m.http,
		Store:   m.cfg.Store,
		ToPath:  m.cachePathForURI,
		Touched: m.touched,
	}
}

// cachePathForURI maps a repository or object URI to its local mirror
// path under the cache root, matching spec §6's "mirrors its authority
// + URI path" layout.
func (m *Manager) cachePathForURI(rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil {
		return filepath.Join(m.cfg.CacheRoot, "_unparsed", rawURI)
	}
	return filepath.Join(m.cfg.CacheRoot, u.Host, filepath.FromSlash(u.Path))
}

// ensureFetchStarted launches repoURI's fetch exactly once per run, per
// spec §4.3.
func (m *Manager) ensureFetchStarted(repoURI string, repo *repository.Repo) {
	if m.fetchStarted[repoURI] {
		return
	}
	m.fetchStarted[repoURI] = true
	m.registry.MarkFetching(repoURI)
	m.pendingFetch++
	go m.runFetch(repoURI, repo)
}

func (m *Manager) runFetch(repoURI string, repo *repository.Repo) {
	if repo.Transport == repository.TransportRRDP && repo.NotifyURI != "" && m.rrdpSync != nil {
		_, err := m.rrdpSync.Sync(context.Background(), repoURI, repo.NotifyURI)
		if err == nil {
			m.fetchOut <- fetchResult{RepoURI: repoURI}
			return
		}
		rlog.WithComponent("fetch").Warn().Err(err).Str("repo", repoURI).Msg("RRDP sync failed, falling back to rsync")
		rerr := m.fetchRsync(repoURI)
		m.fetchOut <- fetchResult{RepoURI: repoURI, Err: rerr, RRDPFailed: true}
		return
	}
	m.fetchOut <- fetchResult{RepoURI: repoURI, Err: m.fetchRsync(repoURI)}
}

func (m *Manager) fetchRsync(repoURI string) error {
	dest := m.cachePathForURI(repoURI)
	if err := cachefs.MkPath(dest); err != nil {
		return err
	}
	res := m.rsync.Fetch(context.Background(), repoURI, dest)
	if res.Err != nil {
		return res.Err
	}
	if err := touchTree(m.touched, dest); err != nil {
		return err
	}
	return nil
}

// touchTree marks every regular file under root as touched, so a
// rsync-mirrored repository's files survive end-of-run cleanup.
func touchTree(tree *cachefs.FilepathTree, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		tree.Touch(path)
		return nil
	})
}

func (m *Manager) handleFetchResult(fr fetchResult) {
	m.pendingFetch--
	if fr.RRDPFailed {
		m.stats.RRDPFails++
	}
	if fr.Err != nil {
		m.stats.RsyncFails++
		rlog.WithComponent("fetch").Error().Err(fr.Err).Str("repo", fr.RepoURI).Msg("repository fetch failed")
		m.registry.TransitionFailed(fr.RepoURI)
		return
	}
	m.registry.TransitionReady(fr.RepoURI)
}

// bootstrapTAL fetches a trust anchor's certificate by trying each URI
// in the TAL in order, then submits it for parsing.
func (m *Manager) bootstrapTAL(ctx context.Context, tal model.Tal) {
	log := rlog.WithTAL(rlog.WithComponent("manager"), tal.Name)
	path, err := m.fetchTACert(ctx, tal)
	if err != nil {
		log.Error().Err(err).Msg("could not fetch trust anchor certificate")
		m.stats.CertsFail++
		return
	}
	talCopy := tal
	m.submitParse(parserproc.Request{
		Entity: repository.NewEntity(repository.EntityTACert, path, "", tal.Name),
		Tal:    &talCopy,
		Now:    m.now,
	})
}

func (m *Manager) fetchTACert(ctx context.Context, tal model.Tal) (string, error) {
	var lastErr error
	for _, u := range tal.URIs {
		path := m.cachePathForURI(u)
		switch {
		case strings.HasPrefix(u, "https://"):
			resp, err := m.http.Get(ctx, u, "")
			if err != nil {
				lastErr = err
				continue
			}
			if err := cachefs.WriteAtomic(path, resp.Body); err != nil {
				lastErr = err
				continue
			}
			m.touched.Touch(path)
			return path, nil
		case strings.HasPrefix(u, "rsync://"):
			if err := cachefs.MkPath(filepath.Dir(path)); err != nil {
				lastErr = err
				continue
			}
			res := m.rsync.Fetch(ctx, u, path)
			if res.Err != nil {
				lastErr = res.Err
				continue
			}
			m.touched.Touch(path)
			return path, nil
		default:
			lastErr = fmt.Errorf("manager: unsupported TAL URI scheme: %s", u)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("manager: TAL %s has no URIs", tal.Name)
	}
	return "", lastErr
}
