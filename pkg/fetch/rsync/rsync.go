// Package rsync mirrors rsync:// publication points into the local
// cache by shelling out to the rsync binary, the same os/exec subprocess
// pattern the teacher uses for its network helpers.
package rsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// Fetcher mirrors rsync repositories under a local cache root.
type Fetcher struct {
	Binary     string // defaults to "rsync" if empty
	CacheRoot  string
	Timeout    time.Duration
}

// Result reports the outcome of one repository mirror.
type Result struct {
	URI string
	Err error
}

// Fetch mirrors the rsync module rooted at uri into dest (a subdirectory
// of CacheRoot chosen by the caller), enforcing the per-repository
// wall-clock timeout named in spec §5.
func (f *Fetcher) Fetch(ctx context.Context, uri, dest string) Result {
	timeout := f.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	bin := f.Binary
	if bin == "" {
		bin = "rsync"
	}

	cmd := exec.CommandContext(ctx, bin, "-rtz", "--delete", uri, dest)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		wrapped := rpkierrors.Wrap(rpkierrors.Transient, fmt.Sprintf("rsync %s", uri), fmt.Errorf("%w: %s", err, stderr.String()))
		return Result{URI: uri, Err: wrapped}
	}
	return Result{URI: uri}
}
