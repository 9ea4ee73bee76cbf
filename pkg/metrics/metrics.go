// Package metrics exposes the run's statistics counters as Prometheus
// collectors, mirroring the gauge/counter shapes the teacher and
// OctoRPKI both use for long-running process introspection.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/rpkivet/pkg/model"
)

var (
	certsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_certs_total",
		Help: "Certificates seen, by outcome.",
	}, []string{"outcome"}) // valid, fail, invalid

	roasTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_roas_total",
		Help: "ROAs seen, by outcome.",
	}, []string{"outcome"})

	mftsTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_manifests_total",
		Help: "Manifests seen, by outcome.",
	}, []string{"outcome"}) // valid, fail, stale

	fetchFailuresTotal = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_fetch_failures_total",
		Help: "Repository fetch failures, by transport.",
	}, []string{"transport"}) // rsync, http, rrdp

	vrpsGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_vrps",
		Help: "VRP counts for the most recent run.",
	}, []string{"kind"}) // total, uniqs

	cleanedGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "rpkivet_cache_cleaned",
		Help: "Cache entries removed during stale-file cleanup, by kind.",
	}, []string{"kind"}) // files, dirs

	lastRunDuration = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "rpkivet_last_run_seconds",
		Help: "Wall-clock duration of the most recently completed run.",
	})
)

func init() {
	prometheus.MustRegister(certsTotal, roasTotal, mftsTotal, fetchFailuresTotal, vrpsGauge, cleanedGauge, lastRunDuration)
}

// Handler returns the HTTP handler that serves the registered
// collectors in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Record pushes a completed run's Stats onto the collectors above.
func Record(s model.Stats) {
	certsTotal.WithLabelValues("valid").Set(float64(s.Certs))
	certsTotal.WithLabelValues("fail").Set(float64(s.CertsFail))
	certsTotal.WithLabelValues("invalid").Set(float64(s.CertsInvalid))

	roasTotal.WithLabelValues("valid").Set(float64(s.Roas))
	roasTotal.WithLabelValues("fail").Set(float64(s.RoasFail))
	roasTotal.WithLabelValues("invalid").Set(float64(s.RoasInvalid))

	mftsTotal.WithLabelValues("valid").Set(float64(s.Mfts))
	mftsTotal.WithLabelValues("fail").Set(float64(s.MftsFail))
	mftsTotal.WithLabelValues("stale").Set(float64(s.MftsStale))

	fetchFailuresTotal.WithLabelValues("rsync").Set(float64(s.RsyncFails))
	fetchFailuresTotal.WithLabelValues("http").Set(float64(s.HTTPFails))
	fetchFailuresTotal.WithLabelValues("rrdp").Set(float64(s.RRDPFails))

	vrpsGauge.WithLabelValues("total").Set(float64(s.VRPs))
	vrpsGauge.WithLabelValues("uniqs").Set(float64(s.Uniqs))

	cleanedGauge.WithLabelValues("files").Set(float64(s.CleanedFiles))
	cleanedGauge.WithLabelValues("dirs").Set(float64(s.CleanedDirs))

	lastRunDuration.Set(s.Elapsed.Seconds())
}
