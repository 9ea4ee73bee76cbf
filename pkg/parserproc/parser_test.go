package parserproc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuemby/rpkivet/pkg/repository"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

func TestProcessorMissingFileIsTransient(t *testing.T) {
	in := make(chan Request, 1)
	out := make(chan Response, 1)
	p := NewProcessor(in, out)

	in <- Request{Entity: repository.Entity{
		Kind:      repository.EntityROA,
		LocalPath: filepath.Join(t.TempDir(), "missing.roa"),
	}}
	close(in)
	p.Run()

	resp := <-out
	require.Error(t, resp.Err)
	require.True(t, rpkierrors.Is(resp.Err, rpkierrors.Transient))
}

func TestProcessorUnknownKindErrors(t *testing.T) {
	in := make(chan Request, 1)
	out := make(chan Response, 1)
	p := NewProcessor(in, out)

	dir := t.TempDir()
	path := filepath.Join(dir, "whatever.bin")
	require.NoError(t, os.WriteFile(path, []byte("not empty"), 0o644))

	in <- Request{Entity: repository.Entity{Kind: repository.EntityKind(99), LocalPath: path}}
	close(in)
	p.Run()

	resp := <-out
	require.Error(t, resp.Err)
}

func TestProcessorTACertWithoutTalErrors(t *testing.T) {
	in := make(chan Request, 1)
	out := make(chan Response, 1)
	p := NewProcessor(in, out)

	dir := t.TempDir()
	path := filepath.Join(dir, "ta.cer")
	require.NoError(t, os.WriteFile(path, []byte("not a real cert"), 0o644))

	in <- Request{Entity: repository.Entity{Kind: repository.EntityTACert, LocalPath: path}}
	close(in)
	p.Run()

	resp := <-out
	require.Error(t, resp.Err, "TA certs require a TAL for key-match validation")
}
