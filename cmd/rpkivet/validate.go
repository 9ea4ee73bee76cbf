package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/rpkivet/pkg/config"
	"github.com/cuemby/rpkivet/pkg/events"
	"github.com/cuemby/rpkivet/pkg/manager"
	"github.com/cuemby/rpkivet/pkg/metrics"
	"github.com/cuemby/rpkivet/pkg/model"
	"github.com/cuemby/rpkivet/pkg/output"
	"github.com/cuemby/rpkivet/pkg/rlog"
	"github.com/cuemby/rpkivet/pkg/statusapi"
	"github.com/cuemby/rpkivet/pkg/store"
	"github.com/cuemby/rpkivet/pkg/tal"
)

type validateFlags struct {
	talDir     string
	configFile string
	cacheDir   string
	outputDir  string
	statusAddr string

	bird   bool
	json   bool
	csv    bool
	bgpd   bool
}

func newValidateCmd() *cobra.Command {
	f := &validateFlags{}
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Run one validation pass: load TALs, fetch, validate, emit output",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.talDir, "tal-dir", "/etc/rpkivet/tals", "directory of .tal files to load")
	cmd.Flags().StringVar(&f.configFile, "config", "", "optional YAML config bundling TALs and run defaults")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "repository cache directory (default RPKI_PATH_BASE_DIR)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "VRP output directory (default RPKI_PATH_OUT_DIR)")
	cmd.Flags().StringVar(&f.statusAddr, "status-addr", "", "address to serve /health, /ready, /stats, /metrics on")
	cmd.Flags().BoolVarP(&f.bird, "bird", "B", false, "write BIRD2 static ROA table")
	cmd.Flags().BoolVarP(&f.json, "json", "j", false, "write RIPE-validator-style JSON")
	cmd.Flags().BoolVarP(&f.csv, "csv", "c", false, "write CSV")
	cmd.Flags().BoolVarP(&f.bgpd, "bgpd", "b", false, "write OpenBGPD roa-set config snippet")
	return cmd
}

func runValidate(ctx context.Context, f *validateFlags) error {
	cfg := config.Config{CacheDir: f.cacheDir, OutputDir: f.outputDir, StatusAddr: f.statusAddr}
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = cfg.ApplyDefaults()

	tals, err := loadTALs(f.talDir, cfg.TrustAnchors)
	if err != nil {
		return err
	}
	if len(tals) == 0 {
		return fmt.Errorf("rpkivet: no TALs found under %s", f.talDir)
	}

	sessionStore, err := store.Open(filepath.Join(cfg.CacheDir, "rrdp-sessions.db"))
	if err != nil {
		return err
	}
	defer sessionStore.Close()

	broker := events.NewBroker()
	statusAddr := f.statusAddr
	if statusAddr == "" {
		statusAddr = cfg.StatusAddr
	}
	var status *statusapi.Server
	if statusAddr != "" {
		status = statusapi.New(broker)
		go func() {
			if err := status.ListenAndServe(statusAddr); err != nil {
				rlog.WithComponent("status").Error().Err(err).Msg("status server exited")
			}
		}()
	}

	mgr := manager.New(manager.Config{
		CacheRoot:     cfg.CacheDir,
		FetchTimeout:  cfg.FetchTimeout,
		ParserWorkers: cfg.ParserWorkers,
		Store:         sessionStore,
		Broker:        broker,
	})
	defer mgr.Close()

	stats := mgr.Run(ctx, tals, time.Now())
	metrics.Record(stats)
	if status != nil {
		status.SetStats(stats)
	}

	rlog.Logger.Info().
		Int("certs", stats.Certs).Int("certs_fail", stats.CertsFail).Int("certs_invalid", stats.CertsInvalid).
		Int("roas", stats.Roas).Int("roas_fail", stats.RoasFail).Int("roas_invalid", stats.RoasInvalid).
		Int("vrps", stats.VRPs).Int("uniqs", stats.Uniqs).
		Dur("elapsed", stats.Elapsed).
		Msg("validation run completed")

	formats := outputFormats(f)
	if formats == 0 || stats.Uniqs == 0 {
		return nil
	}
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("rpkivet: create output dir: %w", err)
	}
	return output.WriteAll(formats, mgr.VRPs.All(), time.Now().Unix(), func(name string) (io.WriteCloser, error) {
		return os.Create(filepath.Join(cfg.OutputDir, name))
	})
}

func outputFormats(f *validateFlags) output.Format {
	var formats output.Format
	if f.bird {
		formats |= output.FormatBird
	}
	if f.json {
		formats |= output.FormatJSON
	}
	if f.csv {
		formats |= output.FormatCSV
	}
	if f.bgpd {
		formats |= output.FormatOpenBGPD
	}
	return formats
}

// loadTALs reads every *.tal file in dir, plus any extra paths named by
// a loaded config file's trust_anchors list.
func loadTALs(dir string, extra []config.TrustAnchor) ([]model.Tal, error) {
	var tals []model.Tal

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("rpkivet: read TAL directory %s: %w", dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".tal" {
			continue
		}
		t, err := loadOneTAL(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		tals = append(tals, t)
	}

	for _, ta := range extra {
		t, err := loadOneTAL(ta.Path)
		if err != nil {
			return nil, err
		}
		tals = append(tals, t)
	}
	return tals, nil
}

func loadOneTAL(path string) (model.Tal, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Tal{}, fmt.Errorf("rpkivet: open TAL %s: %w", path, err)
	}
	defer f.Close()
	return tal.Parse(path, f)
}
