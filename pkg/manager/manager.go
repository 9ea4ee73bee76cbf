// Package manager implements the main actor: it owns the work queue, the
// authority tree, the CRL index and the VRP tree, and multiplexes the
// parser and fetcher completion channels described in spec §5. Nothing
// outside this package ever mutates those trees directly.
package manager

import (
	"context"
	"errors"
	"time"

	"github.com/cuemby/rpkivet/pkg/authority"
	"github.com/cuemby/rpkivet/pkg/cachefs"
	"github.com/cuemby/rpkivet/pkg/certparse"
	"github.com/cuemby/rpkivet/pkg/events"
	"github.com/cuemby/rpkivet/pkg/fetch/httpf"
	"github.com/cuemby/rpkivet/pkg/fetch/rrdp"
	"github.com/cuemby/rpkivet/pkg/fetch/rsync"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/parserproc"
	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rlog"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
	"github.com/cuemby/rpkivet/pkg/store"
	"github.com/cuemby/rpkivet/pkg/vrptree"
)

// Config holds everything the manager needs to wire its subordinate
// actors. Zero-value fields take the same defaults their owning package
// already applies.
type Config struct {
	CacheRoot     string
	RsyncBin      string
	FetchTimeout  time.Duration
	ParserWorkers int

	Store  *store.Store   // nil disables RRDP; every repository is then fetched over rsync
	Broker *events.Broker // nil disables lifecycle event publication
}

// Manager drives one validation run end to end: TAL bootstrap, fetch
// orchestration, manifest walk, and VRP aggregation.
type Manager struct {
	cfg Config

	Tree *authority.Tree
	VRPs *vrptree.Tree

	registry *repository.Registry
	rsync    *rsync.Fetcher
	http     *httpf.Fetcher
	rrdpSync *rrdp.Syncer
	touched  *cachefs.FilepathTree
	broker   *events.Broker

	parseIn  chan parserproc.Request
	parseOut chan parserproc.Response
	fetchOut chan fetchResult

	fetchStarted map[string]bool
	pendingFetch int
	outstanding  int // parse requests sent but not yet answered

	stats model.Stats
	now   time.Time
}

// New builds a Manager and starts its parser worker pool. Call Close
// when the run (and any subsequent runs sharing this Manager) is done.
func New(cfg Config) *Manager {
	if cfg.ParserWorkers <= 0 {
		cfg.ParserWorkers = 4
	}
	m := &Manager{
		cfg:          cfg,
		Tree:         authority.NewTree(),
		VRPs:         vrptree.New(),
		registry:     repository.NewRegistry(),
		rsync:        &rsync.Fetcher{Binary: cfg.RsyncBin, CacheRoot: cfg.CacheRoot, Timeout: cfg.FetchTimeout},
		http:         httpf.NewFetcher(cfg.FetchTimeout),
		touched:      cachefs.NewFilepathTree(),
		broker:       cfg.Broker,
		parseIn:      make(chan parserproc.Request, 256),
		parseOut:     make(chan parserproc.Response, 256),
		fetchOut:     make(chan fetchResult, 64),
		fetchStarted: make(map[string]bool),
	}
	m.rrdpSync = newRRDPSyncer(m)

	for i := 0; i < cfg.ParserWorkers; i++ {
		go parserproc.NewProcessor(m.parseIn, m.parseOut).Run()
	}
	return m
}

// Close shuts down the parser worker pool.
func (m *Manager) Close() {
	close(m.parseIn)
}

// publish is a no-op when no broker is configured.
func (m *Manager) publish(ev events.Event) {
	if m.broker != nil {
		m.broker.Publish(ev)
	}
}

// Run validates every TAL, drains the work queue to completion, and
// returns the accumulated statistics. now pins the reference time used
// for manifest staleness checks.
func (m *Manager) Run(ctx context.Context, tals []model.Tal, now time.Time) model.Stats {
	m.now = now
	start := time.Now()

	log := rlog.WithComponent("manager")
	for _, tal := range tals {
		m.bootstrapTAL(ctx, tal)
	}

	m.drain(ctx)

	for _, cert := range m.Tree.DrainAllPending() {
		log.Warn().Str("ski", certparse.HexEncode(cert.SKI)).Msg("certificate's issuer never arrived; rejecting")
		m.countCertOutcome(rpkierrors.Wrap(rpkierrors.Validation, "authority insert", errIssuerNeverArrived))
	}

	cleanup, err := m.touched.Cleanup(m.cfg.CacheRoot)
	if err != nil {
		log.Error().Err(err).Msg("cache cleanup failed")
	}
	m.stats.CleanedFiles = cleanup.Files
	m.stats.CleanedDirs = cleanup.Dirs

	m.stats.VRPs = m.VRPs.Total()
	m.stats.Uniqs = m.VRPs.Uniqs()
	m.stats.Elapsed = time.Since(start)

	m.publish(events.Event{Type: events.RunCompleted, Subject: "run", Message: "validation run completed"})
	return m.stats
}

// drain runs the main select loop until the work queue is empty, no
// fetches are outstanding, and every parse request has been answered —
// the termination condition from spec §4.3.
//
// A dequeued entity is held in pending until it can be handed to
// parseIn; the select below stays willing to drain fetchOut/parseOut
// the whole time it's waiting. Submitting inside its own unconditional
// send (the prior version's "continue" loop) would starve parseOut
// once the workers' own output channel filled up, deadlocking the
// whole pipeline against itself.
func (m *Manager) drain(ctx context.Context) {
	var pending *repository.Entity
	for {
		if pending == nil {
			if e, ok := m.registry.Dequeue(); ok {
				pending = &e
			} else if m.pendingFetch == 0 && m.outstanding == 0 && m.registry.Drained() {
				return
			}
		}

		var submit chan<- parserproc.Request
		var req parserproc.Request
		if pending != nil {
			submit = m.parseIn
			req = parserproc.Request{Entity: *pending, Now: m.now}
		}

		select {
		case submit <- req:
			m.outstanding++
			pending = nil
		case fr := <-m.fetchOut:
			m.handleFetchResult(fr)
		case resp := <-m.parseOut:
			// Trust-anchor certificates are submitted directly, bypassing
			// registry.Dequeue, so only entities pulled from the FIFO
			// count against its in-flight tally.
			if resp.Entity.Kind != repository.EntityTACert {
				m.registry.MarkAnswered()
			}
			m.outstanding--
			m.handleParseResponse(resp)
		}
	}
}

func (m *Manager) submitParse(req parserproc.Request) {
	m.outstanding++
	m.parseIn <- req
}

var errIssuerNeverArrived = errors.New("issuer authority never arrived before the work queue drained")
