// Package repository implements the per-remote-repository state machine
// and the FIFO entity work queue the manager drains to drive parsing.
package repository

import (
	"sync"

	"github.com/google/uuid"
)

// State is a repository's fetch status.
type State int

const (
	StateNew State = iota
	StateFetching
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateFetching:
		return "fetching"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Transport names which fetcher owns a repository.
type Transport int

const (
	TransportRsync Transport = iota
	TransportRRDP
)

// EntityKind names the kind of object an Entity asks the parser to
// decode, inferred from the cached file's suffix during the manifest
// walk (spec §4.3).
type EntityKind int

const (
	EntityTACert EntityKind = iota
	EntityChildCert
	EntityManifest
	EntityROA
	EntityCRL
	EntityGBR
)

// KindFromSuffix maps a manifest file-list entry's suffix to an
// EntityKind, or false if the suffix isn't one the pipeline handles.
func KindFromSuffix(suffix string) (EntityKind, bool) {
	switch suffix {
	case ".cer":
		return EntityChildCert, true
	case ".roa":
		return EntityROA, true
	case ".crl":
		return EntityCRL, true
	case ".gbr":
		return EntityGBR, true
	default:
		return 0, false
	}
}

// Entity is one unit of work for the parser.
type Entity struct {
	ID         string
	Kind       EntityKind
	LocalPath  string
	TAKey      []byte // set only for EntityTACert
	TAL        string
	RepoURI    string
}

// NewEntity stamps a fresh correlation ID onto e's fields, matching the
// manager/scheduler convention of tagging queued work with a UUID for
// log correlation.
func NewEntity(kind EntityKind, localPath, repoURI, tal string) Entity {
	return Entity{ID: uuid.NewString(), Kind: kind, LocalPath: localPath, RepoURI: repoURI, TAL: tal}
}

// Repo tracks one remote publication point.
type Repo struct {
	URI       string
	Transport Transport
	NotifyURI string // RRDP notification.xml, if this repo has one
	State     State
	queued    []Entity
}

// Registry owns every known Repo plus the FIFO of entities ready to be
// parsed. It is the manager's single source of truth for "is there still
// work to do" (spec §4.3's drain condition).
type Registry struct {
	mu       sync.Mutex
	repos    map[string]*Repo
	fifo     []Entity
	inflight int // parse requests sent to the parser actor, not yet answered
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{repos: make(map[string]*Repo)}
}

// GetOrCreate returns the Repo for uri, creating it in StateNew if this
// is the first time it's been referenced.
func (r *Registry) GetOrCreate(uri string, transport Transport, notifyURI string) *Repo {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep, ok := r.repos[uri]; ok {
		return rep
	}
	rep := &Repo{URI: uri, Transport: transport, NotifyURI: notifyURI, State: StateNew}
	r.repos[uri] = rep
	return rep
}

// Lookup returns the Repo for uri without creating it.
func (r *Registry) Lookup(uri string) (*Repo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.repos[uri]
	return rep, ok
}

// MarkFetching transitions a repo from New to Fetching.
func (r *Registry) MarkFetching(uri string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rep, ok := r.repos[uri]; ok {
		rep.State = StateFetching
	}
}

// Enqueue parks e on its target repo's queue if that repo isn't Ready or
// Failed yet. It pushes e straight onto the FIFO if the repo is Ready or
// not registered, and drops e if the repo is Failed.
func (r *Registry) Enqueue(e Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.repos[e.RepoURI]
	if !ok || rep.State == StateReady {
		r.fifo = append(r.fifo, e)
		return
	}
	if rep.State == StateFailed {
		return // children of a failed repo are rejected, not enqueued
	}
	rep.queued = append(rep.queued, e)
}

// TransitionReady marks uri Ready and returns its parked entities for
// the caller to push onto the FIFO.
func (r *Registry) TransitionReady(uri string) []Entity {
	return r.transition(uri, StateReady)
}

// TransitionFailed marks uri Failed. Its parked entities are dropped —
// per spec §4.3/§7 they are rejected, not retried.
func (r *Registry) TransitionFailed(uri string) []Entity {
	r.transition(uri, StateFailed)
	return nil
}

func (r *Registry) transition(uri string, state State) []Entity {
	r.mu.Lock()
	defer r.mu.Unlock()
	rep, ok := r.repos[uri]
	if !ok {
		return nil
	}
	rep.State = state
	waiting := rep.queued
	rep.queued = nil
	if state == StateReady {
		r.fifo = append(r.fifo, waiting...)
		return waiting
	}
	return nil
}

// Dequeue pops the next entity ready to parse.
func (r *Registry) Dequeue() (Entity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fifo) == 0 {
		return Entity{}, false
	}
	e := r.fifo[0]
	r.fifo = r.fifo[1:]
	r.inflight++
	return e, true
}

// MarkAnswered decrements the in-flight parse-request counter once the
// parser responds.
func (r *Registry) MarkAnswered() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight > 0 {
		r.inflight--
	}
}

// Drained reports whether there is no more work: the FIFO is empty, no
// parse requests are outstanding, and no repository still has entities
// parked waiting on a fetch that hasn't completed.
func (r *Registry) Drained() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.fifo) != 0 || r.inflight != 0 {
		return false
	}
	for _, rep := range r.repos {
		if len(rep.queued) != 0 {
			return false
		}
	}
	return true
}
