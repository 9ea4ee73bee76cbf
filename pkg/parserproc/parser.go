// Package parserproc implements the parser actor (spec §4.1): it accepts
// framed decode requests for one cached repository entity at a time and
// emits a framed response carrying either the decoded object or a typed
// failure, never touching the authority tree or the network itself.
package parserproc

import (
	"fmt"
	"time"

	"github.com/cuemby/rpkivet/pkg/cachefs"
	"github.com/cuemby/rpkivet/pkg/certparse"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// Request asks the parser actor to decode one on-disk repository entity.
type Request struct {
	Entity repository.Entity
	Tal    *model.Tal // set only for repository.EntityTACert
	Now    time.Time  // manifest staleness reference; defaults to time.Now()
}

// Response carries the parser actor's verdict for one Request. At most
// one of the typed fields is populated, matching Entity.Kind; Err is set
// on any failure and the typed field is left nil.
type Response struct {
	Entity repository.Entity
	Cert   *model.Cert
	Mft    *model.Mft
	Roa    *model.Roa
	Crl    *model.Crl
	Gbr    *model.Gbr
	Err    error
}

// Processor is the parser actor. It reads Requests off In, decodes the
// framed object according to Entity.Kind, and sends exactly one Response
// per Request on Out. Several Processors may share one In/Out pair to
// parallelize decoding.
type Processor struct {
	In  <-chan Request
	Out chan<- Response
}

// NewProcessor wires a Processor to the given channel pair.
func NewProcessor(in <-chan Request, out chan<- Response) *Processor {
	return &Processor{In: in, Out: out}
}

// Run drains In until it's closed, decoding each Request and sending its
// Response on Out. Callers typically launch several of these as
// goroutines sharing one channel pair.
func (p *Processor) Run() {
	for req := range p.In {
		p.Out <- p.decode(req)
	}
}

func (p *Processor) decode(req Request) Response {
	resp := Response{Entity: req.Entity}

	der, err := cachefs.ReadIfExists(req.Entity.LocalPath)
	if err != nil {
		resp.Err = rpkierrors.Wrap(rpkierrors.Transient, "read cached entity", err)
		return resp
	}
	if der == nil {
		resp.Err = rpkierrors.Wrap(rpkierrors.Transient, "read cached entity",
			fmt.Errorf("%s: not present in cache", req.Entity.LocalPath))
		return resp
	}

	now := req.Now
	if now.IsZero() {
		now = time.Now()
	}

	switch req.Entity.Kind {
	case repository.EntityTACert:
		if req.Tal == nil {
			resp.Err = rpkierrors.Wrap(rpkierrors.Fatal, "TA cert",
				fmt.Errorf("%s: no TAL supplied", req.Entity.LocalPath))
			return resp
		}
		resp.Cert, resp.Err = certparse.ParseTA(der, *req.Tal)
	case repository.EntityChildCert:
		resp.Cert, resp.Err = certparse.ParseChild(der)
	case repository.EntityManifest:
		resp.Mft, resp.Err = ParseManifest(der, req.Entity.LocalPath, req.Entity.TAL, now)
	case repository.EntityROA:
		resp.Roa, resp.Err = ParseROA(der, req.Entity.TAL)
	case repository.EntityCRL:
		resp.Crl, resp.Err = ParseCRL(der)
	case repository.EntityGBR:
		resp.Gbr, resp.Err = ParseGBR(der, req.Entity.TAL)
	default:
		resp.Err = rpkierrors.Wrap(rpkierrors.Fatal, "parse", fmt.Errorf("unknown entity kind %d", req.Entity.Kind))
	}
	return resp
}
