package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/cuemby/rpkivet/pkg/cachefs"
	"github.com/cuemby/rpkivet/pkg/certparse"
	"github.com/cuemby/rpkivet/pkg/fetch/httpf"
	"github.com/cuemby/rpkivet/pkg/fetch/rsync"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/tal"
)

func newTalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tal",
		Short: "Inspect configured trust anchor locators",
	}
	cmd.AddCommand(newTalListCmd())
	cmd.AddCommand(newTalFetchCmd())
	return cmd
}

func newTalListCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the TALs found in a directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(dir)
			if err != nil {
				return fmt.Errorf("rpkivet: read %s: %w", dir, err)
			}
			for _, e := range entries {
				if e.IsDir() || filepath.Ext(e.Name()) != ".tal" {
					continue
				}
				path := filepath.Join(dir, e.Name())
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				t, err := tal.Parse(path, f)
				f.Close()
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", t.Name, strings.Join(t.URIs, ","))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "tal-dir", "/etc/rpkivet/tals", "directory of .tal files to list")
	return cmd
}

func newTalFetchCmd() *cobra.Command {
	var cacheDir string
	cmd := &cobra.Command{
		Use:   "fetch <tal-file>",
		Short: "Fetch a TAL's trust anchor certificate and print its key identifiers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			t, err := tal.Parse(args[0], f)
			f.Close()
			if err != nil {
				return err
			}

			der, err := fetchOne(cmd.Context(), t, cacheDir)
			if err != nil {
				return fmt.Errorf("rpkivet: fetch trust anchor for %s: %w", t.Name, err)
			}
			cert, err := certparse.ParseTA(der, t)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ski=%s repo=%s manifest=%s\n", certparse.HexEncode(cert.SKI), cert.SIARepo, cert.SIAMft)
			return nil
		},
	}
	cmd.Flags().StringVar(&cacheDir, "cache-dir", "", "directory to mirror the fetched certificate into (default a temp dir)")
	return cmd
}

// fetchOne mirrors manager's TA bootstrap logic for the standalone "tal
// fetch" inspection command, which doesn't want to spin up a full
// Manager just to fetch one certificate.
func fetchOne(ctx context.Context, t model.Tal, cacheDir string) ([]byte, error) {
	if cacheDir == "" {
		var err error
		cacheDir, err = os.MkdirTemp("", "rpkivet-tal-fetch-")
		if err != nil {
			return nil, err
		}
	}
	rsyncFetcher := &rsync.Fetcher{CacheRoot: cacheDir}
	httpFetcher := httpf.NewFetcher(0)

	var lastErr error
	for _, u := range t.URIs {
		dest := cachePathFor(cacheDir, u)
		switch {
		case strings.HasPrefix(u, "https://"):
			resp, err := httpFetcher.Get(ctx, u, "")
			if err != nil {
				lastErr = err
				continue
			}
			if err := cachefs.WriteAtomic(dest, resp.Body); err != nil {
				lastErr = err
				continue
			}
			return resp.Body, nil
		case strings.HasPrefix(u, "rsync://"):
			if err := cachefs.MkPath(filepath.Dir(dest)); err != nil {
				lastErr = err
				continue
			}
			res := rsyncFetcher.Fetch(ctx, u, dest)
			if res.Err != nil {
				lastErr = res.Err
				continue
			}
			return cachefs.ReadIfExists(dest)
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no usable URIs in TAL %s", t.Name)
	}
	return nil, lastErr
}

func cachePathFor(root, rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil {
		return filepath.Join(root, "_unparsed")
	}
	return filepath.Join(root, u.Host, filepath.FromSlash(u.Path))
}
