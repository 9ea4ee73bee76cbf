// Package tal parses Trust Anchor Locator files in the RFC 7730/8630 text
// format: comment lines, one or more URIs, a blank line, then a
// base64-encoded SubjectPublicKeyInfo.
package tal

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/rpkierrors"
)

// Parse reads a TAL file's contents and returns the parsed Tal. name is
// the file's path; its basename (minus extension) becomes Tal.Name.
func Parse(name string, r io.Reader) (model.Tal, error) {
	base := filepath.Base(name)
	tal := model.Tal{Name: strings.TrimSuffix(base, filepath.Ext(base))}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var uris []string
	var keyLines []string
	inKey := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			if len(uris) > 0 {
				inKey = true
			}
			continue
		case strings.HasPrefix(line, "#"):
			continue
		case inKey:
			keyLines = append(keyLines, line)
		default:
			if !strings.HasPrefix(line, "rsync://") && !strings.HasPrefix(line, "https://") {
				return model.Tal{}, rpkierrors.Wrap(rpkierrors.Parse, "TAL URI line", fmt.Errorf("not an rsync:// or https:// URI: %q", line))
			}
			uris = append(uris, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return model.Tal{}, rpkierrors.Wrap(rpkierrors.Parse, "read TAL", err)
	}
	if len(uris) == 0 {
		return model.Tal{}, rpkierrors.Wrap(rpkierrors.Parse, "TAL URIs", fmt.Errorf("no rsync:// or https:// URIs found"))
	}
	key, err := DecodeKey(strings.Join(keyLines, ""))
	if err != nil {
		return model.Tal{}, rpkierrors.Wrap(rpkierrors.Parse, "TAL key", err)
	}
	tal.URIs = uris
	tal.Key = key
	return tal, nil
}

// DecodeKey base64-decodes the TAL's SubjectPublicKeyInfo. Kept as a
// standalone function so the base64 round-trip property in spec §8 has a
// direct unit under test.
func DecodeKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("tal: empty key material")
	}
	return base64.StdEncoding.DecodeString(s)
}

// EncodeKey is DecodeKey's inverse, used by tests.
func EncodeKey(der []byte) string {
	return base64.StdEncoding.EncodeToString(der)
}
